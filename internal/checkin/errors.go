package checkin

import "net/http"

// Kind enumerates every way a check-in can fail. A DUPLICATE scan is not in
// this list: re-scanning an already-present student is a successful outcome.
type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindExpired
	KindConflict
	KindInvalid
)

// Error is a terminal check-in failure. Status carries the machine-readable
// status string for outcomes that have one (EXPIRED, INVALID).
type Error struct {
	Kind    Kind
	Status  string
	Message string
}

func (e *Error) Error() string { return e.Message }

// HTTPStatus maps the failure to its response code. Expired and invalid
// tokens are 400s distinguished by their Status field, per the scan client
// contract.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func badRequest(msg string) *Error {
	return &Error{Kind: KindBadRequest, Message: msg}
}

func unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func notFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func expired() *Error {
	return &Error{Kind: KindExpired, Status: "EXPIRED", Message: "Session expired"}
}

func invalid() *Error {
	return &Error{Kind: KindInvalid, Status: "INVALID", Message: "Invalid payload/hash mismatch"}
}
