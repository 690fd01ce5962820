package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
	telemetrypostgres "fleet-telemetry-cloud/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestTelemetryRepository_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, _ = db.ExecContext(ctx, "DELETE FROM telemetry_records WHERE device_id LIKE 'device-it%'")

	repo := telemetrypostgres.NewTelemetryRepository(db)
	query := telemetrypostgres.NewTelemetryQuery(db)

	record := telemetry.Record{
		DeviceID:            "device-it-1",
		Timestamp:           "2026-01-21T09:05:00Z",
		BatteryLevel:        73.5,
		Location:            telemetry.Location{Latitude: 52.52, Longitude: 13.405},
		Speed:               41.5,
		Temperature:         22.1,
		Status:              "active",
		BatteryHealthStatus: "good",
	}

	if err := repo.Upsert(ctx, record); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := query.ListByDevice(ctx, record.DeviceID)
	if err != nil {
		t.Fatalf("list by device: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
	if got[0] != record {
		t.Fatalf("round trip mismatch: got=%+v want=%+v", got[0], record)
	}

	// Same key written again must overwrite, not duplicate.
	record.BatteryLevel = 12
	record.Status = "inactive"
	record.BatteryHealthStatus = "poor"
	if err := repo.Upsert(ctx, record); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = query.ListByDevice(ctx, record.DeviceID)
	if err != nil {
		t.Fatalf("list by device: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 record after overwrite, got %d", len(got))
	}
	if got[0].BatteryLevel != 12 || got[0].Status != "inactive" {
		t.Fatalf("last write did not win: %+v", got[0])
	}
}

func TestTelemetryQueryScanPage_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, _ = db.ExecContext(ctx, "DELETE FROM telemetry_records WHERE device_id LIKE 'device-scan%'")

	repo := telemetrypostgres.NewTelemetryRepository(db)
	query := telemetrypostgres.NewTelemetryQuery(db)

	timestamps := []string{
		"2026-01-21T09:00:00Z",
		"2026-01-21T09:01:00Z",
		"2026-01-21T09:02:00Z",
	}
	for _, ts := range timestamps {
		record := telemetry.Record{
			DeviceID:            "device-scan-1",
			Timestamp:           ts,
			BatteryLevel:        50,
			Location:            telemetry.Location{Latitude: 1, Longitude: 2},
			Speed:               10,
			Temperature:         20,
			Status:              "active",
			BatteryHealthStatus: "good",
		}
		if err := repo.Upsert(ctx, record); err != nil {
			t.Fatalf("upsert %s: %v", ts, err)
		}
	}

	page, next, err := query.ScanPage(ctx, telemetry.Key{DeviceID: "device-scan-0"}, 2)
	if err != nil {
		t.Fatalf("scan page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
	if next.IsZero() {
		t.Fatal("expected a next cursor")
	}
	if page[0].Timestamp != timestamps[0] || page[1].Timestamp != timestamps[1] {
		t.Fatalf("page out of order: %+v", page)
	}

	rest, _, err := query.ScanPage(ctx, next, 2)
	if err != nil {
		t.Fatalf("scan next page: %v", err)
	}
	if len(rest) < 1 || rest[0].Timestamp != timestamps[2] {
		t.Fatalf("cursor did not resume after %+v: %+v", next, rest)
	}
}

func TestTelemetryQueryListByAttribute_Postgres(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, _ = db.ExecContext(ctx, "DELETE FROM telemetry_records WHERE device_id LIKE 'device-attr%'")

	repo := telemetrypostgres.NewTelemetryRepository(db)
	query := telemetrypostgres.NewTelemetryQuery(db)

	records := []telemetry.Record{
		{DeviceID: "device-attr-1", Timestamp: "2026-01-21T09:00:00Z", BatteryLevel: 90, Location: telemetry.Location{Latitude: 1, Longitude: 2}, Speed: 10, Temperature: 20, Status: "active", BatteryHealthStatus: "good"},
		{DeviceID: "device-attr-2", Timestamp: "2026-01-21T09:00:01Z", BatteryLevel: 15, Location: telemetry.Location{Latitude: 1, Longitude: 2}, Speed: 10, Temperature: 20, Status: "inactive", BatteryHealthStatus: "poor"},
		{DeviceID: "device-attr-3", Timestamp: "2026-01-21T09:00:02Z", BatteryLevel: 15, Location: telemetry.Location{Latitude: 1, Longitude: 2}, Speed: 10, Temperature: 20, Status: "inactive", BatteryHealthStatus: "poor"},
	}
	for _, record := range records {
		if err := repo.Upsert(ctx, record); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	inactive, err := query.ListByAttribute(ctx, telemetry.AttrStatus, "inactive")
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if countPrefixed(inactive, "device-attr") != 2 {
		t.Fatalf("expected 2 inactive devices, got %+v", inactive)
	}
	for i := 1; i < len(inactive); i++ {
		if inactive[i-1].Timestamp > inactive[i].Timestamp {
			t.Fatalf("results not ordered by timestamp: %+v", inactive)
		}
	}

	poor, err := query.ListByAttribute(ctx, telemetry.AttrBatteryHealthStatus, "poor")
	if err != nil {
		t.Fatalf("list by battery health: %v", err)
	}
	if countPrefixed(poor, "device-attr") != 2 {
		t.Fatalf("expected 2 poor-health devices, got %+v", poor)
	}

	level, err := query.ListByAttribute(ctx, telemetry.AttrBatteryLevel, 15.0)
	if err != nil {
		t.Fatalf("list by battery level: %v", err)
	}
	if countPrefixed(level, "device-attr") != 2 {
		t.Fatalf("expected 2 devices at level 15, got %+v", level)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if !tableExists(db, "telemetry_records") {
		t.Skip("telemetry_records missing; run migrations")
	}
	return db
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}

func countPrefixed(records []telemetry.Record, prefix string) int {
	n := 0
	for _, record := range records {
		if len(record.DeviceID) >= len(prefix) && record.DeviceID[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
