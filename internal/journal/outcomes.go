package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// OutcomeError marks a request that ended in an error response.
const OutcomeError = "error"

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Entry is one journaled request. It never carries the email or client key.
type Entry struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Outcome    string    `json:"outcome"`
	Provider   string    `json:"provider,omitempty"`
	ErrorCode  string    `json:"error_code,omitempty"`
	HTTPStatus int       `json:"http_status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Record inserts an entry. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if s == nil || s.DB == nil {
		return errors.New("journal is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(entry.RequestID) == "" {
		return errors.New("request id is required")
	}
	if strings.TrimSpace(entry.Outcome) == "" {
		return errors.New("outcome is required")
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO outcomes (request_id, outcome, provider, error_code, http_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.RequestID, entry.Outcome, nullString(entry.Provider), nullString(entry.ErrorCode),
		entry.HTTPStatus, createdAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

// List returns the most recent entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("journal is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, request_id, outcome, provider, error_code, http_status, created_at
		FROM outcomes
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []Entry{}
	for rows.Next() {
		var (
			entry     Entry
			provider  sql.NullString
			errorCode sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.RequestID, &entry.Outcome, &provider, &errorCode,
			&entry.HTTPStatus, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		entry.Provider = provider.String
		entry.ErrorCode = errorCode.String
		entry.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	return entries, nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
