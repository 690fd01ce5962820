package http

import (
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"fleet-telemetry-cloud/internal/observability/metrics"
	"fleet-telemetry-cloud/internal/queue"
	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

// IntakeHandler accepts one telemetry payload or an array of them and
// enqueues each item as an independent message, so a failure during
// ingestion is isolated per device reading, not per request.
type IntakeHandler struct {
	publisher queue.Publisher
	logger    *log.Logger
}

// NewIntakeHandler constructs an intake handler.
func NewIntakeHandler(publisher queue.Publisher, logger *log.Logger) (*IntakeHandler, error) {
	if publisher == nil {
		return nil, errors.New("intake handler: nil publisher")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IntakeHandler{publisher: publisher, logger: logger}, nil
}

type intakeItemResult struct {
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type intakeResponse struct {
	Message  string             `json:"message"`
	Enqueued int                `json:"enqueued"`
	Results  []intakeItemResult `json:"results"`
}

// ServeHTTP handles POST /api/v1/telemetry. The response reports every
// item's enqueue outcome, not just the first.
func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIntake(result, time.Since(start))
	}()

	if r.Method != http.MethodPost {
		result = metrics.ResultError
		metrics.IncIntakeError("method_not_allowed")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Printf("intake: read body error: %v", err)
		result = metrics.ResultError
		metrics.IncIntakeError("read_body")
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	items, err := telemetry.SplitItems(body)
	if err != nil {
		h.logger.Printf("intake: invalid json: %v", err)
		result = metrics.ResultError
		metrics.IncIntakeError("invalid_json")
		writeError(w, http.StatusBadRequest, "invalid request body, must be valid JSON")
		return
	}

	resp := intakeResponse{Results: make([]intakeItemResult, 0, len(items))}
	failed := false
	for _, item := range items {
		id, err := h.publisher.Publish(r.Context(), item)
		if err != nil {
			h.logger.Printf("intake: enqueue error: %v", err)
			metrics.IncIntakeError("enqueue")
			resp.Results = append(resp.Results, intakeItemResult{Error: "failed to enqueue message"})
			failed = true
			continue
		}
		resp.Results = append(resp.Results, intakeItemResult{MessageID: id})
		resp.Enqueued++
	}

	if failed {
		result = metrics.ResultError
		resp.Message = "some messages could not be enqueued"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Message = "messages enqueued"
	writeJSON(w, http.StatusOK, resp)
}
