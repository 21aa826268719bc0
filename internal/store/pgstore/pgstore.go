// Package pgstore is a Postgres-backed message log for deployments that share
// a database across instances.
package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lox/groundwater/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    session_id TEXT NOT NULL,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, id);
`

type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and ensures the schema exists.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// LogMessage appends one chat message.
func (s *Store) LogMessage(ctx context.Context, e models.LogEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (session_id, sender, content, created_at)
		VALUES ($1, $2, $3, $4)
	`, e.SessionID, string(e.Sender), e.Content, ts.UTC())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// MessagesForSession returns the logged messages of a session, oldest first.
func (s *Store) MessagesForSession(ctx context.Context, sessionID string) ([]models.LogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, sender, content, created_at
		FROM messages WHERE session_id = $1 ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var sender string
		if err := rows.Scan(&e.SessionID, &sender, &e.Content, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Sender = models.Sender(sender)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
