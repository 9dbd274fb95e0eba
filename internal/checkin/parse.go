package checkin

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

var errNoPayload = errors.New("no qr payload")

// Payload is the structured content of a scanned QR string. Zero ids mean
// the field was absent.
type Payload struct {
	CourseID    int64
	SessionID   int64
	StudentCode string
	Hash        string
}

// parseQR accepts the two QR shapes the mobile scanner produces: a bare JSON
// object, or a composite string of whitespace-delimited prefix tokens and a
// URL followed by the JSON object. In the composite form the JSON starts at
// the first token beginning with '{'.
func parseQR(raw string) (*Payload, error) {
	jsonPart := raw
	if !strings.HasPrefix(raw, "{") {
		parts := strings.Split(raw, " ")
		jsonPart = ""
		for i, part := range parts {
			if strings.HasPrefix(part, "{") {
				jsonPart = strings.Join(parts[i:], " ")
				break
			}
		}
		if jsonPart == "" {
			return nil, errNoPayload
		}
	}

	var wire struct {
		CourseID  any    `json:"courseId"`
		SessionID any    `json:"sessionId"`
		Code      string `json:"code"`
		Hash      string `json:"hash"`
	}
	if err := json.Unmarshal([]byte(jsonPart), &wire); err != nil {
		return nil, errNoPayload
	}

	return &Payload{
		CourseID:    toID(wire.CourseID),
		SessionID:   toID(wire.SessionID),
		StudentCode: wire.Code,
		Hash:        wire.Hash,
	}, nil
}

// toID coerces a JSON number or numeric string to an id; anything else is 0.
func toID(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}
		return id
	default:
		return 0
	}
}
