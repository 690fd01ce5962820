package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultDeadLetterTable = "telemetry_dead_letters"

// DeadLetterStore is a Postgres store for records that failed validation.
type DeadLetterStore struct {
	db    *sql.DB
	table string
}

// NewDeadLetterStore constructs a dead letter store.
func NewDeadLetterStore(db *sql.DB, opts ...DeadLetterOption) *DeadLetterStore {
	store := &DeadLetterStore{db: db, table: defaultDeadLetterTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DeadLetterOption configures the dead letter store.
type DeadLetterOption func(*DeadLetterStore)

// WithDeadLetterTable overrides the table name.
func WithDeadLetterTable(table string) DeadLetterOption {
	return func(store *DeadLetterStore) {
		if table != "" {
			store.table = table
		}
	}
}

// RecordFailure inserts a dead letter row for a rejected payload. The
// deviceId may be empty when the payload was too malformed to carry one.
func (s *DeadLetterStore) RecordFailure(ctx context.Context, deviceID string, payload []byte, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dead letter store: nil db")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	payload,
	error,
	created_at
) VALUES (
	$1, $2, $3, $4
)`, s.table)

	_, err := s.db.ExecContext(ctx, query, deviceID, payload, message, time.Now().UTC())
	return err
}
