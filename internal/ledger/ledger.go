package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Statuses an attendance row can carry. The automated protocol only ever
// writes StatusPresent; the rest exist for manual teacher edits elsewhere.
const (
	StatusPresent = "PRESENT"
	StatusLate    = "LATE"
	StatusAbsent  = "ABSENT"
	StatusLeave   = "LEAVE"
)

// Record is one redemption event with its audit payload.
type Record struct {
	ID         string    `json:"id"`
	SessionID  int64     `json:"sessionId"`
	StudentID  string    `json:"studentId"`
	ScannerID  string    `json:"scannerId"`
	Status     string    `json:"status"`
	PayloadRaw string    `json:"-"`
	IP         string    `json:"-"`
	DeviceInfo string    `json:"-"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Ledger persists redemption events in Postgres.
type Ledger struct {
	db *sql.DB
}

// New creates a ledger.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// RecordPresence writes exactly one PRESENT row per (session, student). The
// write is a single conditional insert keyed on the composite unique
// constraint, so two racing scanners cannot both insert; the loser sees
// created=false and nothing else changes. Audit fields are only persisted
// with a winning write.
func (l *Ledger) RecordPresence(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now().UTC()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO attendance (id, class_session_id, student_id, scanner_id, status, payload_raw, ip, device_info, checked_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (class_session_id, student_id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.StudentID, rec.ScannerID, StatusPresent, rec.PayloadRaw, rec.IP, rec.DeviceInfo, rec.CheckedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListBySession returns redemption records for reporting, oldest first.
func (l *Ledger) ListBySession(ctx context.Context, sessionID int64) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, class_session_id, student_id, scanner_id, status, payload_raw, ip, device_info, checked_at
		FROM attendance
		WHERE class_session_id = $1
		ORDER BY checked_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.ScannerID, &rec.Status, &rec.PayloadRaw, &rec.IP, &rec.DeviceInfo, &rec.CheckedAt); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
