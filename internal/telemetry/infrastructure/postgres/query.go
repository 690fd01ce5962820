package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

// pgUndefinedTable is the Postgres error code for a missing relation.
// It distinguishes an absent store from an empty one.
const pgUndefinedTable = "42P01"

// TelemetryQuery is a Postgres query implementation.
type TelemetryQuery struct {
	db    *sql.DB
	table string
}

// NewTelemetryQuery constructs a query with default table name.
func NewTelemetryQuery(db *sql.DB, opts ...QueryOption) *TelemetryQuery {
	query := &TelemetryQuery{db: db, table: defaultTelemetryTable}
	for _, opt := range opts {
		opt(query)
	}
	return query
}

// QueryOption configures the telemetry query.
type QueryOption func(*TelemetryQuery)

// WithQueryTable overrides the default table name for queries.
func WithQueryTable(table string) QueryOption {
	return func(query *TelemetryQuery) {
		if query != nil && table != "" {
			query.table = table
		}
	}
}

const recordColumns = `device_id, ts, battery_level, latitude, longitude, speed, temperature, status, battery_health_status`

// ScanPage returns up to limit records in (device_id, ts) order starting
// after the cursor. The zero cursor starts the scan; a zero next cursor
// ends it.
func (q *TelemetryQuery) ScanPage(ctx context.Context, after telemetry.Key, limit int) ([]telemetry.Record, telemetry.Key, error) {
	if q == nil || q.db == nil {
		return nil, telemetry.Key{}, errors.New("telemetry query: nil db")
	}
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE (device_id, ts) > ($1, $2)
ORDER BY device_id ASC, ts ASC
LIMIT $3`, recordColumns, q.table)

	rows, err := q.db.QueryContext(ctx, query, after.DeviceID, after.Timestamp, limit)
	if err != nil {
		return nil, telemetry.Key{}, translateStoreErr(err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, telemetry.Key{}, err
	}

	next := telemetry.Key{}
	if len(records) == limit {
		next = records[len(records)-1].Key()
	}
	return records, next, nil
}

// ListByDevice returns one device's records ordered by timestamp.
func (q *TelemetryQuery) ListByDevice(ctx context.Context, deviceID string) ([]telemetry.Record, error) {
	if deviceID == "" {
		return nil, errors.New("telemetry query: empty device id")
	}
	return q.ListByAttribute(ctx, telemetry.AttrDeviceID, deviceID)
}

// attributeColumns whitelists the secondary access paths. Every entry is
// backed by a (column, ts) index.
var attributeColumns = map[telemetry.Attribute]string{
	telemetry.AttrDeviceID:            "device_id",
	telemetry.AttrStatus:              "status",
	telemetry.AttrBatteryLevel:        "battery_level",
	telemetry.AttrBatteryHealthStatus: "battery_health_status",
}

// ListByAttribute returns records matching one indexed attribute,
// ordered by timestamp. One method serves all four access paths.
func (q *TelemetryQuery) ListByAttribute(ctx context.Context, attr telemetry.Attribute, value any) ([]telemetry.Record, error) {
	if q == nil || q.db == nil {
		return nil, errors.New("telemetry query: nil db")
	}
	column, ok := attributeColumns[attr]
	if !ok {
		return nil, fmt.Errorf("telemetry query: unknown attribute %q", attr)
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE %s = $1
ORDER BY ts ASC`, recordColumns, q.table, column)

	rows, err := q.db.QueryContext(ctx, query, value)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]telemetry.Record, error) {
	records := make([]telemetry.Record, 0)
	for rows.Next() {
		var record telemetry.Record
		if err := rows.Scan(
			&record.DeviceID,
			&record.Timestamp,
			&record.BatteryLevel,
			&record.Location.Latitude,
			&record.Location.Longitude,
			&record.Speed,
			&record.Temperature,
			&record.Status,
			&record.BatteryHealthStatus,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func translateStoreErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		return fmt.Errorf("%w: %v", telemetry.ErrStoreNotFound, err)
	}
	return err
}
