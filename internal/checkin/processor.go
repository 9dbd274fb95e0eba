package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkin/internal/identity"
	"checkin/internal/ledger"
	"checkin/internal/roster"
	"checkin/internal/session"
	"checkin/internal/token"
)

// SessionStore is the session registry as the processor sees it.
type SessionStore interface {
	FindByID(ctx context.Context, courseID, sessionID int64) (*session.Session, error)
}

// Roster is the enrollment oracle. Implementations return
// roster.ErrNotEnrolled when no enrollment matches.
type Roster interface {
	FindByCode(ctx context.Context, courseID int64, studentCode string) (*roster.Enrollment, error)
}

// Authorizer decides whether a caller may redeem tokens for a course.
type Authorizer interface {
	CanRedeem(ctx context.Context, userID string, courseID int64) (bool, error)
}

// Ledger records redemptions. RecordPresence reports created=false when the
// (session, student) pair already holds a row.
type Ledger interface {
	RecordPresence(ctx context.Context, rec ledger.Record) (bool, error)
}

// Resolver maps account hints from the scan payload to a known user.
type Resolver interface {
	Resolve(ctx context.Context, accounts ...string) (*identity.User, error)
}

// Scan is one raw redemption attempt as received from a scanner device.
// Caller is the authenticated principal, nil when the device posted without a
// bearer token. CourseID/SessionID are preset on the session-scoped route and
// zero on the global webhook; ids inside the QR JSON win either way.
type Scan struct {
	Caller     *identity.User
	QR         string
	ITAccount  string
	CMUAccount string
	Email      string
	CourseID   int64
	SessionID  int64
	RawBody    string
	IP         string
	DeviceInfo string
}

// Statuses of a successful redemption.
const (
	StatusPresent   = "PRESENT"
	StatusDuplicate = "DUPLICATE"
)

// Outcome is a successful redemption result.
type Outcome struct {
	Status      string
	StudentCode string
	Session     *session.Session
}

// Processor orchestrates one check-in: scanner resolution, payload parsing,
// authorization, enrollment, token verification, and the ledger write. Every
// failure is a *Error; the two-valued result makes the full failure surface
// explicit.
type Processor struct {
	codec    *token.Codec
	sessions SessionStore
	roster   Roster
	gate     Authorizer
	ledger   Ledger
	users    Resolver
	now      func() time.Time
}

// NewProcessor wires the processor to its collaborators.
func NewProcessor(codec *token.Codec, sessions SessionStore, r Roster, gate Authorizer, l Ledger, users Resolver) *Processor {
	return &Processor{
		codec:    codec,
		sessions: sessions,
		roster:   r,
		gate:     gate,
		ledger:   l,
		users:    users,
		now:      time.Now,
	}
}

// Process runs one redemption attempt. Authorization is decided before the
// student or token is examined, so an unauthorized scanner learns nothing
// about enrollment or token validity.
func (p *Processor) Process(ctx context.Context, scan Scan) (*Outcome, error) {
	caller, err := p.resolveScanner(ctx, scan)
	if err != nil {
		return nil, err
	}

	if scan.QR == "" {
		return nil, badRequest("Missing qr payload")
	}
	payload, perr := parseQR(scan.QR)
	if perr != nil {
		return nil, badRequest("Missing qr payload")
	}

	courseID := payload.CourseID
	if courseID == 0 {
		courseID = scan.CourseID
	}
	sessionID := payload.SessionID
	if sessionID == 0 {
		sessionID = scan.SessionID
	}
	if courseID <= 0 || sessionID <= 0 {
		return nil, badRequest("QR code must contain courseId and sessionId")
	}

	sess, err := p.sessions.FindByID(ctx, courseID, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, notFound("Session not found")
		}
		return nil, err
	}
	if sess.Expired(p.now()) {
		return nil, expired()
	}

	allowed, err := p.gate.CanRedeem(ctx, caller.ID, courseID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, forbidden("Only TA, Teacher, or Co-Teacher of this course can scan students")
	}

	if payload.StudentCode == "" {
		return nil, badRequest("Missing student_id in QR")
	}

	enrollment, err := p.roster.FindByCode(ctx, courseID, payload.StudentCode)
	if err != nil {
		if errors.Is(err, roster.ErrNotEnrolled) {
			return nil, forbidden(fmt.Sprintf("Student %s not enrolled", payload.StudentCode))
		}
		return nil, err
	}

	if !p.codec.Verify(payload.Hash, payload.StudentCode, courseID, sess.Keyword, sessionID) {
		return nil, invalid()
	}

	created, err := p.ledger.RecordPresence(ctx, ledger.Record{
		SessionID:  sessionID,
		StudentID:  enrollment.StudentID,
		ScannerID:  caller.ID,
		PayloadRaw: scan.RawBody,
		IP:         scan.IP,
		DeviceInfo: scan.DeviceInfo,
		CheckedAt:  p.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	status := StatusPresent
	if !created {
		// The pair already holds a row, possibly written by a concurrent
		// scan a moment ago. Either way the student is present.
		status = StatusDuplicate
	}
	return &Outcome{Status: status, StudentCode: payload.StudentCode, Session: sess}, nil
}

// resolveScanner returns the authenticated principal, or falls back to the
// account hints the scanner app places in the payload.
func (p *Processor) resolveScanner(ctx context.Context, scan Scan) (*identity.User, error) {
	if scan.Caller != nil {
		return scan.Caller, nil
	}
	hint := scan.ITAccount
	if hint == "" {
		hint = scan.CMUAccount
	}
	if hint == "" {
		hint = scan.Email
	}
	if hint == "" {
		return nil, unauthorized("Unauthorized: Please login or provide scanner info")
	}
	user, err := p.users.Resolve(ctx, scan.ITAccount, scan.CMUAccount, scan.Email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, unauthorized(fmt.Sprintf("Scanner account '%s' not found in system", hint))
		}
		return nil, err
	}
	return user, nil
}
