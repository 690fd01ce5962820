package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

// ReadService is the read-side surface the handlers depend on.
type ReadService interface {
	ListAll(ctx context.Context) ([]telemetry.Record, error)
	ListByDevice(ctx context.Context, deviceID string) ([]telemetry.Record, error)
	Summarize(ctx context.Context) (telemetry.FleetSummary, error)
}

// ListHandler serves the full record set.
type ListHandler struct {
	service ReadService
	logger  *log.Logger
}

// NewListHandler constructs a ListHandler.
func NewListHandler(service ReadService, logger *log.Logger) (*ListHandler, error) {
	if service == nil {
		return nil, errors.New("list handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ListHandler{service: service, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/telemetry.
func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	records, err := h.service.ListAll(r.Context())
	if err != nil {
		h.logger.Printf("telemetry list: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query telemetry store")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// DeviceHandler serves one device's history.
type DeviceHandler struct {
	service ReadService
	logger  *log.Logger
	prefix  string
}

// NewDeviceHandler constructs a DeviceHandler routed under prefix,
// e.g. "/api/v1/telemetry/devices/".
func NewDeviceHandler(service ReadService, logger *log.Logger, prefix string) (*DeviceHandler, error) {
	if service == nil {
		return nil, errors.New("device handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	if prefix == "" {
		prefix = "/api/v1/telemetry/devices/"
	}
	return &DeviceHandler{service: service, logger: logger, prefix: prefix}, nil
}

// ServeHTTP handles GET {prefix}{deviceId}. A device with no records
// gets an empty array, not an error.
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	deviceID := strings.Trim(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		writeError(w, http.StatusBadRequest, "deviceId is required")
		return
	}
	records, err := h.service.ListByDevice(r.Context(), deviceID)
	if err != nil {
		h.logger.Printf("telemetry device list: deviceId=%s: %v", deviceID, err)
		writeError(w, http.StatusInternalServerError, "failed to query telemetry store")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// SummaryHandler serves the fleet summary.
type SummaryHandler struct {
	service ReadService
	logger  *log.Logger
}

// NewSummaryHandler constructs a SummaryHandler.
func NewSummaryHandler(service ReadService, logger *log.Logger) (*SummaryHandler, error) {
	if service == nil {
		return nil, errors.New("summary handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &SummaryHandler{service: service, logger: logger}, nil
}

// ServeHTTP handles GET /api/v1/telemetry/summary. An absent store is a
// 404; an empty store is a zeroed summary with 200.
func (h *SummaryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	summary, err := h.service.Summarize(r.Context())
	if err != nil {
		if errors.Is(err, telemetry.ErrStoreNotFound) {
			writeError(w, http.StatusNotFound, "no devices found")
			return
		}
		h.logger.Printf("telemetry summary: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to query telemetry store")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}
