package application

import (
	"context"
	"errors"
	"log"
	"time"

	"fleet-telemetry-cloud/internal/observability/metrics"
	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

const defaultScanPageSize = 250

// QueryService is the read side: listing and fleet summary over the
// stored record set.
type QueryService struct {
	query    telemetry.Query
	logger   *log.Logger
	pageSize int
}

// NewQueryService constructs a query service.
func NewQueryService(query telemetry.Query, logger *log.Logger) (*QueryService, error) {
	if query == nil {
		return nil, errors.New("query service: nil query")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &QueryService{query: query, logger: logger, pageSize: defaultScanPageSize}, nil
}

// ListAll returns every stored record, walking the scan page by page.
func (s *QueryService) ListAll(ctx context.Context) ([]telemetry.Record, error) {
	all := make([]telemetry.Record, 0)
	cursor := telemetry.Key{}
	for {
		page, next, err := s.query.ScanPage(ctx, cursor, s.pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if next.IsZero() {
			return all, nil
		}
		cursor = next
	}
}

// ListByDevice returns one device's records ordered by timestamp. A
// device with no records yields an empty slice, not an error.
func (s *QueryService) ListByDevice(ctx context.Context, deviceID string) ([]telemetry.Record, error) {
	if deviceID == "" {
		return nil, errors.New("query service: empty device id")
	}
	return s.query.ListByDevice(ctx, deviceID)
}

// Summarize scans the full record set and aggregates fleet health in a
// single pass. An empty-but-present store yields a zeroed summary; an
// absent store yields ErrStoreNotFound.
func (s *QueryService) Summarize(ctx context.Context) (telemetry.FleetSummary, error) {
	start := time.Now()
	records, err := s.ListAll(ctx)
	if err != nil {
		metrics.ObserveSummary(metrics.ResultError, time.Since(start))
		return telemetry.FleetSummary{}, err
	}
	summary := telemetry.Summarize(records)
	metrics.ObserveSummary(metrics.ResultSuccess, time.Since(start))
	return summary, nil
}
