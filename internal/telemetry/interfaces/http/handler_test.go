package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

type stubReadService struct {
	records   []telemetry.Record
	byDevice  map[string][]telemetry.Record
	summary   telemetry.FleetSummary
	listErr   error
	deviceErr error
	sumErr    error
}

func (s *stubReadService) ListAll(context.Context) ([]telemetry.Record, error) {
	return s.records, s.listErr
}

func (s *stubReadService) ListByDevice(_ context.Context, deviceID string) ([]telemetry.Record, error) {
	if s.deviceErr != nil {
		return nil, s.deviceErr
	}
	return s.byDevice[deviceID], nil
}

func (s *stubReadService) Summarize(context.Context) (telemetry.FleetSummary, error) {
	return s.summary, s.sumErr
}

func testLogger(t *testing.T) *log.Logger {
	t.Helper()
	return log.New(logWriter{t}, "", 0)
}

type logWriter struct{ t *testing.T }

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func sampleRecord(deviceID, ts string) telemetry.Record {
	return telemetry.Record{
		DeviceID:            deviceID,
		Timestamp:           ts,
		BatteryLevel:        50,
		Location:            telemetry.Location{Latitude: 1, Longitude: 2},
		Speed:               10,
		Temperature:         20,
		Status:              "active",
		BatteryHealthStatus: "good",
	}
}

func TestListHandler(t *testing.T) {
	service := &stubReadService{records: []telemetry.Record{sampleRecord("d1", "2024-01-01T00:00:00Z")}}
	handler, err := NewListHandler(service, testLogger(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var got []telemetry.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].DeviceID != "d1" {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestListHandlerStoreError(t *testing.T) {
	service := &stubReadService{listErr: errors.New("boom")}
	handler, err := NewListHandler(service, testLogger(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListHandlerMethodNotAllowed(t *testing.T) {
	handler, err := NewListHandler(&stubReadService{}, testLogger(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/telemetry", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDeviceHandler(t *testing.T) {
	service := &stubReadService{byDevice: map[string][]telemetry.Record{
		"d1": {sampleRecord("d1", "2024-01-01T00:00:00Z"), sampleRecord("d1", "2024-01-01T00:00:01Z")},
	}}
	handler, err := NewDeviceHandler(service, testLogger(t), "")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/devices/d1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []telemetry.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
}

func TestDeviceHandlerUnknownDeviceEmptyArray(t *testing.T) {
	handler, err := NewDeviceHandler(&stubReadService{byDevice: map[string][]telemetry.Record{}}, testLogger(t), "")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/devices/missing", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got []telemetry.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty array, got %d records", len(got))
	}
}

func TestDeviceHandlerMissingDeviceID(t *testing.T) {
	handler, err := NewDeviceHandler(&stubReadService{}, testLogger(t), "")
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	for _, path := range []string{"/api/v1/telemetry/devices/", "/api/v1/telemetry/devices/a/b"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("path %s: status = %d", path, rec.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Message != "deviceId is required" {
			t.Fatalf("message = %q", resp.Message)
		}
	}
}

func TestSummaryHandler(t *testing.T) {
	service := &stubReadService{summary: telemetry.FleetSummary{
		TotalDevices:          3,
		ActiveDevices:         2,
		LowBatteryDevices:     1,
		BatteryHealthGrouping: map[string]int{"good": 3},
	}}
	handler, err := NewSummaryHandler(service, testLogger(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/summary", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got telemetry.FleetSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.TotalDevices != 3 || got.BatteryHealthGrouping["good"] != 3 {
		t.Fatalf("summary = %+v", got)
	}
}

func TestSummaryHandlerAbsentStore(t *testing.T) {
	service := &stubReadService{sumErr: telemetry.ErrStoreNotFound}
	handler, err := NewSummaryHandler(service, testLogger(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/summary", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "no devices found" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestSummaryHandlerStoreError(t *testing.T) {
	service := &stubReadService{sumErr: errors.New("boom")}
	handler, err := NewSummaryHandler(service, testLogger(t))
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry/summary", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}
