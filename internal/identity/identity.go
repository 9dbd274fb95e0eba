package identity

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrNotFound is returned when no user matches any candidate account.
var ErrNotFound = errors.New("user not found")

// User is an account known to the system. Identity federation happens
// upstream; this store only maps verified account identifiers to users.
type User struct {
	ID      string
	Account string
	Email   string
}

// Store resolves account identifiers against Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// emailDomain matches the upstream identity provider's account namespace.
const emailDomain = "cmu.ac.th"

// Resolve finds a user by any of the supplied account hints. Each hint is
// matched against the account column, the email column, and the hint expanded
// to a full institutional email. Empty hints are skipped; an email hint is
// reduced to its local part first.
func (s *Store) Resolve(ctx context.Context, accounts ...string) (*User, error) {
	for _, raw := range accounts {
		acct := strings.TrimSpace(raw)
		if acct == "" {
			continue
		}
		if at := strings.IndexByte(acct, '@'); at > 0 {
			acct = acct[:at]
		}
		row := s.db.QueryRowContext(ctx, `
			SELECT id, account, email FROM users
			WHERE account = $1 OR email = $1 OR email = $2
			LIMIT 1
		`, acct, acct+"@"+emailDomain)
		var u User
		err := row.Scan(&u.ID, &u.Account, &u.Email)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &u, nil
	}
	return nil, ErrNotFound
}
