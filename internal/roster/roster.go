package roster

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"classroll/internal/apperr"
)

// Class is one teaching class.
type Class struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Student is the roster view of a student account.
type Student struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository reads class and membership reference data from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ListClasses returns all classes ordered by name.
func (r *Repository) ListClasses(ctx context.Context) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM classes ORDER BY name`)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "class list failed", err)
	}
	defer rows.Close()

	var classes []Class
	for rows.Next() {
		var cls Class
		if err := rows.Scan(&cls.ID, &cls.Name); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "class scan failed", err)
		}
		classes = append(classes, cls)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "class list failed", err)
	}
	return classes, nil
}

// GetRoster returns the set of student ids enrolled in classID. Unknown
// classes yield NotFound.
func (r *Repository) GetRoster(ctx context.Context, classID string) (map[string]bool, error) {
	var exists string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM classes WHERE id = $1`, classID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Newf(apperr.KindNotFound, "class %s not found", classID)
		}
		return nil, apperr.Wrap(apperr.KindStorage, "class lookup failed", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT student_id FROM class_students WHERE class_id = $1`, classID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "roster query failed", err)
	}
	defer rows.Close()

	members := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "roster scan failed", err)
		}
		members[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "roster query failed", err)
	}
	return members, nil
}

// ListStudents returns student accounts, optionally restricted to one class.
func (r *Repository) ListStudents(ctx context.Context, classID string) ([]Student, error) {
	query := `
		SELECT u.id, u.name, u.email, u.created_at
		FROM users u
		WHERE u.role = 'student'
		ORDER BY u.name`
	args := []any{}
	if classID != "" {
		query = `
			SELECT u.id, u.name, u.email, u.created_at
			FROM users u
			JOIN class_students cs ON cs.student_id = u.id
			WHERE u.role = 'student' AND cs.class_id = $1
			ORDER BY u.name`
		args = append(args, classID)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "student list failed", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var st Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Email, &st.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "student scan failed", err)
		}
		students = append(students, st)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "student list failed", err)
	}
	return students, nil
}

// Enroll adds a student to a class; enrolling twice is a no-op.
func (r *Repository) Enroll(ctx context.Context, classID, studentID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_students (class_id, student_id)
		VALUES ($1, $2)
		ON CONFLICT (class_id, student_id) DO NOTHING
	`, classID, studentID)
	if err != nil {
		return apperr.Wrap(apperr.KindStorage, "enroll failed", err)
	}
	return nil
}
