package tokenlog

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Entry is one observed upstream one-time token, kept for forensic review.
// Tokens are never verified here: verification consumes them upstream.
type Entry struct {
	Token     string    `json:"token"`
	Device    string    `json:"device,omitempty"`
	URL       string    `json:"url,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referer   string    `json:"referer,omitempty"`
	LoggedAt  time.Time `json:"loggedAt"`
}

// Repository persists token logs in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one entry.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	if e.Token == "" {
		return errors.New("token required")
	}
	if e.LoggedAt.IsZero() {
		e.LoggedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO token_logs (token, device, url, ip, user_agent, referer, logged_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, e.Token, e.Device, e.URL, e.IP, e.UserAgent, e.Referer, e.LoggedAt)
	return err
}

// List returns the newest entries.
func (r *Repository) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT token, device, url, ip, user_agent, referer, logged_at
		FROM token_logs
		ORDER BY logged_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Token, &e.Device, &e.URL, &e.IP, &e.UserAgent, &e.Referer, &e.LoggedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
