package roster

import (
	"context"
	"database/sql"
	"errors"
)

// ErrNotEnrolled is returned when no enrollment links the student to the course.
var ErrNotEnrolled = errors.New("student not enrolled")

// Enrollment links a student identity to a course under a human-readable
// student code. Rows are created by roster import elsewhere; this package
// only reads them.
type Enrollment struct {
	ID          int64
	CourseID    int64
	StudentID   string
	StudentCode string
	Section     *string
	LabSection  *string
}

// Repository reads enrollments from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode resolves a scanned student code to the enrollment carrying the
// canonical student identity. Redemption path.
func (r *Repository) FindByCode(ctx context.Context, courseID int64, studentCode string) (*Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, student_id, student_code, section, lab_section
		FROM enrollments
		WHERE course_id = $1 AND student_code = $2
	`, courseID, studentCode)
	return scanEnrollment(row)
}

// FindByStudent resolves the caller's own enrollment. Token issuance path.
func (r *Repository) FindByStudent(ctx context.Context, courseID int64, studentID string) (*Enrollment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, student_id, student_code, section, lab_section
		FROM enrollments
		WHERE course_id = $1 AND student_id = $2
	`, courseID, studentID)
	return scanEnrollment(row)
}

func scanEnrollment(row *sql.Row) (*Enrollment, error) {
	var e Enrollment
	err := row.Scan(&e.ID, &e.CourseID, &e.StudentID, &e.StudentCode, &e.Section, &e.LabSection)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}
