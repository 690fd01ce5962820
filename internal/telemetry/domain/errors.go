package telemetry

import "errors"

var (
	// ErrInvalidPayload marks a message body that is not valid JSON.
	ErrInvalidPayload = errors.New("telemetry: invalid payload")

	// ErrInvalidRecord marks a record that failed validation or numeric
	// coercion. Such records are never retried.
	ErrInvalidRecord = errors.New("telemetry: invalid record")

	// ErrStoreNotFound is returned when the backing store itself is
	// absent, as opposed to present but empty.
	ErrStoreNotFound = errors.New("telemetry: store not found")
)
