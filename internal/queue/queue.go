// Package queue defines the boundary between the service and the
// durable message broker. Producers and the ingest consumer depend on
// these interfaces only; swapping the broker means implementing them.
package queue

import (
	"context"
	"time"
)

// Message is one delivered queue message. Delivery is at-least-once:
// a message that is not acked within the broker's ack window becomes
// eligible for redelivery.
type Message struct {
	ID       string
	Data     []byte
	Attempts int

	ack func() error
	nak func() error
}

// NewMessage wraps broker-specific ack/nak callbacks. Implementations
// of Consumer use it to build delivered messages.
func NewMessage(id string, data []byte, attempts int, ack, nak func() error) Message {
	return Message{ID: id, Data: data, Attempts: attempts, ack: ack, nak: nak}
}

// Ack marks the message consumed; it will not be redelivered.
func (m *Message) Ack() error {
	if m.ack == nil {
		return nil
	}
	return m.ack()
}

// Nak reports the message failed so the broker redelivers it without
// waiting for the ack window to lapse.
func (m *Message) Nak() error {
	if m.nak == nil {
		return nil
	}
	return m.nak()
}

// Publisher enqueues messages.
type Publisher interface {
	// Publish enqueues one message and returns its broker-assigned id.
	Publish(ctx context.Context, data []byte) (string, error)
}

// Consumer delivers messages in batches with per-message acknowledgment,
// so only failed messages of a batch are redelivered.
type Consumer interface {
	// Fetch returns up to max messages, waiting up to the consumer's
	// poll interval when the queue is empty. An empty batch is not an
	// error.
	Fetch(ctx context.Context, max int) ([]Message, error)
}

// Options tunes broker behavior common to implementations.
type Options struct {
	// Retention is how long unconsumed messages survive.
	Retention time.Duration
	// AckWait is the visibility window: how long the broker waits for
	// an ack before redelivering.
	AckWait time.Duration
	// MaxDeliver bounds redelivery attempts per message.
	MaxDeliver int
	// FetchWait is the long-poll wait when no messages are pending.
	FetchWait time.Duration
}

// WithDefaults fills unset options with the service defaults.
func (o Options) WithDefaults() Options {
	if o.Retention <= 0 {
		o.Retention = 96 * time.Hour
	}
	if o.AckWait <= 0 {
		o.AckWait = 2 * time.Minute
	}
	if o.MaxDeliver <= 0 {
		o.MaxDeliver = 5
	}
	if o.FetchWait <= 0 {
		o.FetchWait = 10 * time.Second
	}
	return o
}
