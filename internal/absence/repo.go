package absence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classroll/internal/apperr"
)

// Repository persists absence explanations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes a new explanation.
func (r *Repository) Insert(ctx context.Context, exp Explanation) (Explanation, error) {
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.Status == "" {
		exp.Status = StatusPending
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO absence_explanations (id, student_id, day, reason, attachment_url, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING submitted_at
	`, exp.ID, exp.StudentID, exp.Day, exp.Reason, exp.AttachmentURL, exp.Status)
	if err := row.Scan(&exp.SubmittedAt); err != nil {
		return Explanation{}, apperr.Wrap(apperr.KindStorage, "explanation insert failed", err)
	}
	return exp, nil
}

// Get returns a single explanation by id.
func (r *Repository) Get(ctx context.Context, id string) (Explanation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, day, reason, attachment_url, status, review_comment, reviewed_by, submitted_at, decided_at
		FROM absence_explanations WHERE id = $1
	`, id)
	var exp Explanation
	err := row.Scan(&exp.ID, &exp.StudentID, &exp.Day, &exp.Reason, &exp.AttachmentURL,
		&exp.Status, &exp.ReviewComment, &exp.ReviewedBy, &exp.SubmittedAt, &exp.DecidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Explanation{}, apperr.Newf(apperr.KindNotFound, "explanation %s not found", id)
		}
		return Explanation{}, apperr.Wrap(apperr.KindStorage, "explanation lookup failed", err)
	}
	return exp, nil
}

// Decide is the compare-and-set transition out of Pending. The WHERE clause
// conditions the write on the current status, so of two concurrent reviewers
// exactly one sees a row affected.
func (r *Repository) Decide(ctx context.Context, id string, status Status, comment *string, reviewedBy string, decidedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE absence_explanations
		SET status = $2, review_comment = $3, reviewed_by = $4, decided_at = $5
		WHERE id = $1 AND status = $6
	`, id, status, comment, reviewedBy, decidedAt, StatusPending)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "decision write failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.KindStorage, "decision write failed", err)
	}
	return n == 1, nil
}

// List returns explanations matching f, ordered by day descending.
func (r *Repository) List(ctx context.Context, f Filter) ([]Explanation, error) {
	query := `
		SELECT id, student_id, day, reason, attachment_url, status, review_comment, reviewed_by, submitted_at, decided_at
		FROM absence_explanations`
	args := []any{}
	clauses := []string{}
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = $"+itoa(len(args)+1))
		args = append(args, f.StudentID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = $"+itoa(len(args)+1))
		args = append(args, f.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY day DESC, submitted_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "explanation query failed", err)
	}
	defer rows.Close()

	var res []Explanation
	for rows.Next() {
		var exp Explanation
		err := rows.Scan(&exp.ID, &exp.StudentID, &exp.Day, &exp.Reason, &exp.AttachmentURL,
			&exp.Status, &exp.ReviewComment, &exp.ReviewedBy, &exp.SubmittedAt, &exp.DecidedAt)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "explanation scan failed", err)
		}
		res = append(res, exp)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "explanation query failed", err)
	}
	return res, nil
}

// CountPending returns the number of explanations awaiting review for the
// dashboard, optionally scoped to one student.
func (r *Repository) CountPending(ctx context.Context, studentID string) (int, error) {
	query := `SELECT COUNT(*) FROM absence_explanations WHERE status = $1`
	args := []any{StatusPending}
	if studentID != "" {
		query += ` AND student_id = $2`
		args = append(args, studentID)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "pending count failed", err)
	}
	return n, nil
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
