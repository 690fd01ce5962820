package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

const defaultTelemetryTable = "telemetry_records"

// TelemetryRepository is a Postgres implementation of the record store.
type TelemetryRepository struct {
	db    *sql.DB
	table string
}

// NewTelemetryRepository constructs a repository with default table name.
func NewTelemetryRepository(db *sql.DB, opts ...RepositoryOption) *TelemetryRepository {
	repo := &TelemetryRepository{db: db, table: defaultTelemetryTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*TelemetryRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *TelemetryRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Upsert stores a record. A duplicate (device_id, ts) key overwrites the
// prior row; there is no version check.
func (r *TelemetryRepository) Upsert(ctx context.Context, record telemetry.Record) error {
	if r == nil || r.db == nil {
		return errors.New("telemetry repo: nil db")
	}
	if record.DeviceID == "" || record.Timestamp == "" {
		return errors.New("telemetry repo: empty key")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	ts,
	battery_level,
	latitude,
	longitude,
	speed,
	temperature,
	status,
	battery_health_status
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (device_id, ts)
DO UPDATE SET
	battery_level = EXCLUDED.battery_level,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	speed = EXCLUDED.speed,
	temperature = EXCLUDED.temperature,
	status = EXCLUDED.status,
	battery_health_status = EXCLUDED.battery_health_status,
	updated_at = NOW()`, r.table)

	_, err := r.db.ExecContext(
		ctx,
		query,
		record.DeviceID,
		record.Timestamp,
		record.BatteryLevel,
		record.Location.Latitude,
		record.Location.Longitude,
		record.Speed,
		record.Temperature,
		record.Status,
		record.BatteryHealthStatus,
	)
	return err
}
