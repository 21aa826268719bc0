package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// TurnRun audits one pipeline turn.
type TurnRun struct {
	ID                 int64
	SessionID          string
	StartedAt          time.Time
	FinishedAt         sql.NullTime
	Kind               string
	LocationsRequested int
	LocationsSucceeded int
	RowsLoaded         int
	Unavailable        []string
}

// StartTurnRun creates a turn record and returns it.
func (s *Store) StartTurnRun(ctx context.Context, sessionID string) (*TurnRun, error) {
	run := &TurnRun{
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO turn_runs (session_id, started_at) VALUES (?, ?)
	`, run.SessionID, run.StartedAt)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteTurnRun records the outcome of a turn.
func (s *Store) CompleteTurnRun(ctx context.Context, run *TurnRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.ExecContext(ctx, `
		UPDATE turn_runs SET
			finished_at = ?,
			kind = ?,
			locations_requested = ?,
			locations_succeeded = ?,
			rows_loaded = ?,
			unavailable = ?
		WHERE id = ?
	`, run.FinishedAt, run.Kind, run.LocationsRequested, run.LocationsSucceeded,
		run.RowsLoaded, strings.Join(run.Unavailable, ","), run.ID)
	return err
}

// RecentTurnRuns returns the latest completed turns, newest first.
func (s *Store) RecentTurnRuns(ctx context.Context, limit int) ([]TurnRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, started_at, finished_at, kind, locations_requested,
		       locations_succeeded, rows_loaded, unavailable
		FROM turn_runs
		WHERE finished_at IS NOT NULL
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TurnRun
	for rows.Next() {
		var r TurnRun
		var unavailable string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.StartedAt, &r.FinishedAt, &r.Kind,
			&r.LocationsRequested, &r.LocationsSucceeded, &r.RowsLoaded, &unavailable); err != nil {
			return nil, err
		}
		if unavailable != "" {
			r.Unavailable = strings.Split(unavailable, ",")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
