package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/groundwater/internal/models"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Open opens a SQLite database at path with WAL and a busy timeout.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// LogMessage appends one chat message. Writes that hit a locked database are
// retried briefly; any other failure is returned immediately.
func (s *Store) LogMessage(ctx context.Context, e models.LogEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	operation := func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO messages (session_id, sender, content, created_at)
			VALUES (?, ?, ?, ?)
		`, e.SessionID, string(e.Sender), e.Content, ts.UTC())
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = 2 * time.Second
	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// MessagesForSession returns the logged messages of a session, oldest first.
func (s *Store) MessagesForSession(ctx context.Context, sessionID string) ([]models.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, sender, content, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY id ASC
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

// CountMessages returns the total number of logged messages.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}
