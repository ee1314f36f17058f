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

// NewDB creates a Postgres connection with sane defaults and applies the
// schema migration.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		email          TEXT NOT NULL UNIQUE,
		password_hash  TEXT NOT NULL,
		name           TEXT NOT NULL,
		role           TEXT NOT NULL,
		student_id     TEXT UNIQUE,
		department     TEXT NOT NULL DEFAULT '',
		year           INT NOT NULL DEFAULT 0,
		division       TEXT NOT NULL DEFAULT '',
		phone          TEXT NOT NULL DEFAULT '',
		address        TEXT NOT NULL DEFAULT '',
		face_embedding JSONB,
		is_active      BOOLEAN NOT NULL DEFAULT TRUE,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_users_cohort
		ON users (department, year, division) WHERE role = 'student';

	CREATE TABLE IF NOT EXISTS attendance_sessions (
		session_id     TEXT PRIMARY KEY,
		date           TIMESTAMPTZ NOT NULL,
		subject        TEXT NOT NULL,
		department     TEXT NOT NULL,
		year           INT NOT NULL,
		division       TEXT NOT NULL,
		semester       TEXT NOT NULL DEFAULT '',
		teacher_id     TEXT NOT NULL REFERENCES users(id),
		start_time     TIMESTAMPTZ NOT NULL,
		end_time       TIMESTAMPTZ,
		status         TEXT NOT NULL DEFAULT 'active',
		attended       JSONB NOT NULL DEFAULT '[]',
		total_students INT NOT NULL DEFAULT 0,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_cohort
		ON attendance_sessions (department, year, division);
	CREATE INDEX IF NOT EXISTS idx_sessions_date
		ON attendance_sessions (date DESC, start_time DESC);
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
