package attendance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classroll/internal/apperr"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// UpsertSheet writes every entry for (classID, day) in one transaction.
// The unique index on (student_id, class_id, day) turns repeat writes into
// overwrites; any failure rolls the whole sheet back.
func (r *Repository) UpsertSheet(ctx context.Context, classID string, day time.Time, entries []Entry, markedBy string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "begin sheet transaction failed", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_records (id, student_id, class_id, day, status, marked_by, marked_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (student_id, class_id, day) DO UPDATE SET
				status    = EXCLUDED.status,
				marked_by = EXCLUDED.marked_by,
				marked_at = EXCLUDED.marked_at
		`, uuid.NewString(), e.StudentID, classID, day, e.Status, markedBy, now)
		if err != nil {
			return 0, apperr.Wrap(apperr.KindStorage, "sheet write failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.KindStorage, "sheet commit failed", err)
	}
	return len(entries), nil
}

// List returns records matching f, ordered by day descending then class id
// ascending for a deterministic sequence.
func (r *Repository) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT id, student_id, class_id, day, status, marked_by, marked_at FROM attendance_records`
	args := []any{}
	clauses := []string{}
	if f.StudentID != "" {
		clauses = append(clauses, "student_id = $"+itoa(len(args)+1))
		args = append(args, f.StudentID)
	}
	if f.ClassID != "" {
		clauses = append(clauses, "class_id = $"+itoa(len(args)+1))
		args = append(args, f.ClassID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "day >= $"+itoa(len(args)+1))
		args = append(args, Day(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "day <= $"+itoa(len(args)+1))
		args = append(args, Day(f.To))
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY day DESC, class_id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "attendance query failed", err)
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.Day, &rec.Status, &rec.MarkedBy, &rec.MarkedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "attendance scan failed", err)
		}
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "attendance query failed", err)
	}
	return res, nil
}

// CountByStatus returns per-status totals for the dashboard, optionally
// scoped to one student.
func (r *Repository) CountByStatus(ctx context.Context, studentID string) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM attendance_records`
	args := []any{}
	if studentID != "" {
		query += ` WHERE student_id = $1`
		args = append(args, studentID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "attendance count failed", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, apperr.Wrap(apperr.KindStorage, "attendance count scan failed", err)
		}
		counts[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "attendance count failed", err)
	}
	return counts, nil
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
