package telemetry

import "context"

// DeadLetterStore keeps records that failed validation. Dead-lettered
// records are dropped from the pipeline, not redelivered; the store is
// their audit trail.
type DeadLetterStore interface {
	RecordFailure(ctx context.Context, deviceID string, payload []byte, cause error) error
}
