package authz

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Role is the closed set of roles the system knows. Ownership is a column on
// the course, not a role grant, so it has no Role value.
type Role int

const (
	RoleStudent Role = iota
	RoleTA
	RoleTeacher
	RoleCoTeacher
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleStudent:   "STUDENT",
	RoleTA:        "TA",
	RoleTeacher:   "TEACHER",
	RoleCoTeacher: "CO_TEACHER",
	RoleAdmin:     "ADMIN",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// ParseRole maps a stored role name to the enum.
func ParseRole(name string) (Role, error) {
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return RoleStudent, fmt.Errorf("unknown role %q", name)
}

// Grant is one role assignment. CourseID is nil for a global grant.
type Grant struct {
	Role     Role
	CourseID *int64
}

// scoped reports whether the grant applies to the given course.
func (g Grant) scoped(courseID int64) bool {
	return g.CourseID != nil && *g.CourseID == courseID
}

// CanRedeem decides whether the caller may redeem tokens for the course:
// the course owner, a TEACHER/CO_TEACHER/TA/ADMIN grant scoped to the course,
// or a global ADMIN grant. Every other role is course-scoped only; a global
// TEACHER grant gives nothing. STUDENT grants never authorize redemption.
func CanRedeem(callerID, ownerID string, grants []Grant, courseID int64) bool {
	if callerID != "" && callerID == ownerID {
		return true
	}
	for _, g := range grants {
		switch g.Role {
		case RoleAdmin:
			if g.CourseID == nil || g.scoped(courseID) {
				return true
			}
		case RoleTeacher, RoleCoTeacher, RoleTA:
			if g.scoped(courseID) {
				return true
			}
		}
	}
	return false
}

// CanManageSessions decides whether the caller may open or delete sessions:
// the owner or a course-scoped TEACHER/CO_TEACHER.
func CanManageSessions(callerID, ownerID string, grants []Grant, courseID int64) bool {
	if callerID != "" && callerID == ownerID {
		return true
	}
	for _, g := range grants {
		if (g.Role == RoleTeacher || g.Role == RoleCoTeacher) && g.scoped(courseID) {
			return true
		}
	}
	return false
}

// IsGlobalAdmin reports whether any grant is an unscoped ADMIN.
func IsGlobalAdmin(grants []Grant) bool {
	for _, g := range grants {
		if g.Role == RoleAdmin && g.CourseID == nil {
			return true
		}
	}
	return false
}

// ErrCourseNotFound is returned when the course does not exist.
var ErrCourseNotFound = errors.New("course not found")

// Gate loads ownership and grants from Postgres and applies the pure
// decision functions.
type Gate struct {
	db *sql.DB
}

// NewGate creates a gate.
func NewGate(db *sql.DB) *Gate {
	return &Gate{db: db}
}

// CourseOwner returns the owner id of a course.
func (g *Gate) CourseOwner(ctx context.Context, courseID int64) (string, error) {
	var owner string
	err := g.db.QueryRowContext(ctx,
		`SELECT owner_id FROM courses WHERE id = $1`, courseID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCourseNotFound
	}
	return owner, err
}

// Grants loads all role grants for a user. Unknown role names are skipped
// rather than failing the whole decision.
func (g *Gate) Grants(ctx context.Context, userID string) ([]Grant, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT role, course_id FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var name string
		var courseID sql.NullInt64
		if err := rows.Scan(&name, &courseID); err != nil {
			return nil, err
		}
		role, err := ParseRole(name)
		if err != nil {
			continue
		}
		gr := Grant{Role: role}
		if courseID.Valid {
			id := courseID.Int64
			gr.CourseID = &id
		}
		grants = append(grants, gr)
	}
	return grants, rows.Err()
}

// CanRedeem loads course owner and caller grants, then applies the pure rule.
func (g *Gate) CanRedeem(ctx context.Context, userID string, courseID int64) (bool, error) {
	owner, err := g.CourseOwner(ctx, courseID)
	if err != nil {
		return false, err
	}
	grants, err := g.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanRedeem(userID, owner, grants, courseID), nil
}

// CanManageSessions loads course owner and caller grants, then applies the pure rule.
func (g *Gate) CanManageSessions(ctx context.Context, userID string, courseID int64) (bool, error) {
	owner, err := g.CourseOwner(ctx, courseID)
	if err != nil {
		return false, err
	}
	grants, err := g.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	return CanManageSessions(userID, owner, grants, courseID), nil
}

// IsGlobalAdmin loads caller grants and applies the pure rule.
func (g *Gate) IsGlobalAdmin(ctx context.Context, userID string) (bool, error) {
	grants, err := g.Grants(ctx, userID)
	if err != nil {
		return false, err
	}
	return IsGlobalAdmin(grants), nil
}
