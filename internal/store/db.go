package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and ensures the
// schema exists.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return &DB{Client: db}, err
	}
	if err := migrate(db); err != nil {
		return &DB{Client: db}, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		role          TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS refresh_tokens (
		token      TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		expires_at TIMESTAMPTZ NOT NULL,
		revoked    BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE TABLE IF NOT EXISTS classes (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS class_students (
		class_id   TEXT NOT NULL REFERENCES classes(id),
		student_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (class_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS attendance_records (
		id         TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES users(id),
		class_id   TEXT NOT NULL REFERENCES classes(id),
		day        DATE NOT NULL,
		status     TEXT NOT NULL,
		marked_by  TEXT NOT NULL,
		marked_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, class_id, day)
	);

	CREATE TABLE IF NOT EXISTS absence_explanations (
		id             TEXT PRIMARY KEY,
		student_id     TEXT NOT NULL REFERENCES users(id),
		day            DATE NOT NULL,
		reason         TEXT NOT NULL,
		attachment_url TEXT,
		status         TEXT NOT NULL DEFAULT 'Pending',
		review_comment TEXT,
		reviewed_by    TEXT,
		submitted_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		decided_at     TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_class_day ON attendance_records(class_id, day);
	CREATE INDEX IF NOT EXISTS idx_attendance_student   ON attendance_records(student_id);
	CREATE INDEX IF NOT EXISTS idx_absence_student      ON absence_explanations(student_id);
	CREATE INDEX IF NOT EXISTS idx_absence_status       ON absence_explanations(status);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
