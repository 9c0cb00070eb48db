// Package store persists exported schedules to Postgres.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kickoff-planner/kickoff/internal/schedule"
)

// Store wraps a pgxpool.Pool.
type Store struct {
	*pgxpool.Pool
}

// Open creates and validates a connection pool.
func Open(ctx context.Context, url string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS schedule_sessions (
	id         UUID PRIMARY KEY,
	saved_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedule_matches (
	session_id UUID NOT NULL REFERENCES schedule_sessions(id) ON DELETE CASCADE,
	position   INT NOT NULL,
	week       INT NOT NULL,
	home       TEXT NOT NULL,
	away       TEXT NOT NULL,
	match_date DATE NOT NULL,
	kickoff    TEXT NOT NULL,
	stadium    TEXT NOT NULL,
	city       TEXT NOT NULL,
	maghrib    TEXT,
	isha       TEXT,
	PRIMARY KEY (session_id, position)
);

CREATE INDEX IF NOT EXISTS schedule_matches_date_idx ON schedule_matches (match_date);
`

// EnsureSchema creates the schedule tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const insertMatchSQL = `
INSERT INTO schedule_matches
	(session_id, position, week, home, away, match_date, kickoff, stadium, city, maghrib, isha)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''))`

// SaveSchedule replaces the stored rows of a session in one transaction.
func (s *Store) SaveSchedule(ctx context.Context, sessionID uuid.UUID, rows []schedule.ExportRow) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO schedule_sessions (id) VALUES ($1)
		ON CONFLICT (id) DO UPDATE SET saved_at = now()`, sessionID); err != nil {
		return fmt.Errorf("upsert session %s: %w", sessionID, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM schedule_matches WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}

	batch := &pgx.Batch{}
	for i, r := range rows {
		batch.Queue(insertMatchSQL, sessionID, i+1, r.Week, r.Home, r.Away, r.Date,
			r.Time, r.Stadium, r.City, r.Maghrib, r.Isha)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert row %d (%s vs %s): %w", i+1, rows[i].Home, rows[i].Away, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SavedRows returns the number of rows stored for a session.
func (s *Store) SavedRows(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := s.QueryRow(ctx, `SELECT count(*) FROM schedule_matches WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}
