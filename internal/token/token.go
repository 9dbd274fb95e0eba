package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
)

// Codec builds and verifies check-in credentials. A credential binds a
// student code to one session of one course under the session's keyword,
// keyed by a process-wide secret. The same inputs always produce the same
// token, so a student device can re-render its QR without server help.
type Codec struct {
	secret []byte
}

// New creates a codec with the given signing secret.
func New(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Generate computes the credential for (studentCode, courseID, keyword, sessionID)
// as lowercase hex of HMAC-SHA-256 over "studentCode|courseId|keyword|sessionId".
// The sessionId term is required: without it a reused keyword yields colliding
// tokens across sessions.
func (c *Codec) Generate(studentCode string, courseID int64, keyword string, sessionID int64) (string, error) {
	if studentCode == "" {
		return "", errors.New("student code required")
	}
	if keyword == "" {
		return "", errors.New("keyword required")
	}
	if courseID <= 0 || sessionID <= 0 {
		return "", errors.New("course and session ids must be positive")
	}
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(canonical(studentCode, courseID, keyword, sessionID)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the expected credential and compares in constant time.
// Malformed inputs verify as false, never as an error.
func (c *Codec) Verify(tok, studentCode string, courseID int64, keyword string, sessionID int64) bool {
	expected, err := c.Generate(studentCode, courseID, keyword, sessionID)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(tok)) == 1
}

// canonical renders ids as plain decimal with no leading zeros.
func canonical(studentCode string, courseID int64, keyword string, sessionID int64) string {
	return studentCode + "|" + strconv.FormatInt(courseID, 10) + "|" + keyword + "|" + strconv.FormatInt(sessionID, 10)
}
