package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrConflict is returned by Create when an unexpired session already holds
// the same keyword for the course.
var ErrConflict = errors.New("keyword already active for course")

// ErrNotFound is returned by lookups when no matching session exists.
var ErrNotFound = errors.New("session not found")

// Session is a time-boxed class meeting owning a keyword and an expiry deadline.
type Session struct {
	ID         int64     `json:"id"`
	CourseID   int64     `json:"courseId"`
	Name       string    `json:"name"`
	ClassIndex *int      `json:"classIndex,omitempty"`
	Date       time.Time `json:"date"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Keyword    string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reports whether the check-in deadline has passed at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ComputeExpiry derives the check-in deadline from the session end plus a
// grace period in minutes.
func ComputeExpiry(endTime time.Time, graceMinutes int) time.Time {
	return endTime.Add(time.Duration(graceMinutes) * time.Minute)
}

// CreateParams describes a session to open. Zero times default to now and
// now+1h; a zero grace falls back to the registry default.
type CreateParams struct {
	CourseID     int64
	Name         string
	ClassIndex   *int
	Date         time.Time
	StartTime    time.Time
	EndTime      time.Time
	GraceMinutes int
}

// Registry persists class sessions in Postgres.
type Registry struct {
	db           *sql.DB
	graceMinutes int
}

// NewRegistry creates a registry with the default grace period in minutes.
func NewRegistry(db *sql.DB, graceMinutes int) *Registry {
	if graceMinutes <= 0 {
		graceMinutes = 120
	}
	return &Registry{db: db, graceMinutes: graceMinutes}
}

// Create opens a session. At most one unexpired session per (course, keyword)
// may exist at any instant; concurrent creates for the same pair are
// serialized on a per-pair advisory lock held for the transaction, so exactly
// one caller wins and the rest get ErrConflict.
func (r *Registry) Create(ctx context.Context, keyword string, p CreateParams) (int64, error) {
	if keyword == "" {
		return 0, errors.New("keyword required")
	}
	if p.CourseID <= 0 {
		return 0, errors.New("course id required")
	}
	now := time.Now().UTC()
	if p.Name == "" {
		p.Name = "Class"
	}
	if p.Date.IsZero() {
		p.Date = now
	}
	if p.StartTime.IsZero() {
		p.StartTime = now
	}
	if p.EndTime.IsZero() {
		p.EndTime = p.StartTime.Add(time.Hour)
	}
	grace := p.GraceMinutes
	if grace <= 0 {
		grace = r.graceMinutes
	}
	expiresAt := ComputeExpiry(p.EndTime, grace)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`,
		fmt.Sprintf("class_sessions:%d:%s", p.CourseID, keyword),
	); err != nil {
		return 0, err
	}

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM class_sessions
		WHERE course_id = $1 AND keyword = $2 AND expires_at > NOW()
		LIMIT 1
	`, p.CourseID, keyword).Scan(&existing)
	if err == nil {
		return 0, ErrConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO class_sessions (course_id, name, class_index, date, start_time, end_time, keyword, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id
	`, p.CourseID, p.Name, p.ClassIndex, p.Date, p.StartTime, p.EndTime, keyword, expiresAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// FindActiveByKeyword returns the most recently created unexpired session for
// (course, keyword). Used by the student token-request path.
func (r *Registry) FindActiveByKeyword(ctx context.Context, courseID int64, keyword string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, name, class_index, date, start_time, end_time, keyword, expires_at, created_at
		FROM class_sessions
		WHERE course_id = $1 AND keyword = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, courseID, keyword)
	return scanSession(row)
}

// FindByID returns the session scoped to the course. Used by redemption.
func (r *Registry) FindByID(ctx context.Context, courseID, sessionID int64) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, name, class_index, date, start_time, end_time, keyword, expires_at, created_at
		FROM class_sessions
		WHERE id = $1 AND course_id = $2
	`, sessionID, courseID)
	return scanSession(row)
}

// ListByCourse returns sessions newest first.
func (r *Registry) ListByCourse(ctx context.Context, courseID int64) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, course_id, name, class_index, date, start_time, end_time, keyword, expires_at, created_at
		FROM class_sessions
		WHERE course_id = $1
		ORDER BY created_at DESC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Name, &s.ClassIndex, &s.Date, &s.StartTime, &s.EndTime, &s.Keyword, &s.ExpiresAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Delete removes a session. Attendance rows cascade via the foreign key.
func (r *Registry) Delete(ctx context.Context, courseID, sessionID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM class_sessions WHERE id = $1 AND course_id = $2`,
		sessionID, courseID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.CourseID, &s.Name, &s.ClassIndex, &s.Date, &s.StartTime, &s.EndTime, &s.Keyword, &s.ExpiresAt, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
