package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// RawPayload is an archived provider response.
type RawPayload struct {
	ID                int64
	FetchedAt         time.Time
	Location          string
	PayloadCompressed []byte
	PayloadHash       string
	SizeBytes         int64
}

// StoreRawPayload stores a compressed provider response.
// Returns the payload ID, or 0 if the location already has an identical payload.
func (s *Store) StoreRawPayload(ctx context.Context, location string, payload []byte) (int64, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}
	if err := gz.Close(); err != nil {
		return 0, fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_payloads (fetched_at, location, payload_compressed, payload_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(location, payload_hash) DO NOTHING
	`, time.Now().UTC(), location, buf.Bytes(), hashHex, len(payload))
	if err != nil {
		return 0, fmt.Errorf("insert raw payload: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return result.LastInsertId()
}

// GetRawPayload retrieves and decompresses a stored payload by ID.
func (s *Store) GetRawPayload(ctx context.Context, id int64) ([]byte, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload_compressed FROM raw_payloads WHERE id = ?`, id).
		Scan(&compressed)
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	return io.ReadAll(gz)
}

// LatestRawPayload returns the most recent archived payload for a location, or nil.
func (s *Store) LatestRawPayload(ctx context.Context, location string) (*RawPayload, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, fetched_at, location, payload_compressed, payload_hash, size_bytes
		FROM raw_payloads WHERE location = ?
		ORDER BY id DESC LIMIT 1
	`, location)

	var p RawPayload
	err := row.Scan(&p.ID, &p.FetchedAt, &p.Location, &p.PayloadCompressed, &p.PayloadHash, &p.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CleanupOldRawPayloads deletes payloads older than retentionDays and returns the count.
func (s *Store) CleanupOldRawPayloads(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	result, err := s.db.ExecContext(ctx, `DELETE FROM raw_payloads WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
