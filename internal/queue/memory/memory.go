// Package memqueue is an in-process queue for demos and tests. It keeps
// the broker's at-least-once contract: fetched messages stay invisible
// until acked, and nak'd or expired messages are redelivered.
package memqueue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-telemetry-cloud/internal/queue"
)

type entry struct {
	id       string
	data     []byte
	attempts int
}

// Queue is a channel-free, mutex-guarded queue double.
type Queue struct {
	mu        sync.Mutex
	pending   []*entry
	invisible map[string]invisibleEntry
	opts      queue.Options
	closed    bool
}

type invisibleEntry struct {
	entry    *entry
	deadline time.Time
}

// New constructs an empty queue.
func New(opts queue.Options) *Queue {
	return &Queue{
		invisible: make(map[string]invisibleEntry),
		opts:      opts.WithDefaults(),
	}
}

// Publish enqueues one message.
func (q *Queue) Publish(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return "", fmt.Errorf("memqueue: closed")
	}
	id := uuid.NewString()
	copied := make([]byte, len(data))
	copy(copied, data)
	q.pending = append(q.pending, &entry{id: id, data: copied})
	return id, nil
}

// Fetch returns up to max messages. Messages whose ack window lapsed
// are requeued first.
func (q *Queue) Fetch(ctx context.Context, max int) ([]queue.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.requeueExpiredLocked(time.Now())

	n := max
	if n > len(q.pending) {
		n = len(q.pending)
	}
	batch := q.pending[:n]
	q.pending = q.pending[n:]

	messages := make([]queue.Message, 0, n)
	deadline := time.Now().Add(q.opts.AckWait)
	for _, e := range batch {
		e.attempts++
		q.invisible[e.id] = invisibleEntry{entry: e, deadline: deadline}
		id := e.id
		messages = append(messages, queue.NewMessage(e.id, e.data, e.attempts,
			func() error { return q.ack(id) },
			func() error { return q.nak(id) },
		))
	}
	return messages, nil
}

// Depth reports messages awaiting delivery.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close rejects further publishes.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *Queue) ack(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.invisible, id)
	return nil
}

func (q *Queue) nak(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	inv, ok := q.invisible[id]
	if !ok {
		return nil
	}
	delete(q.invisible, id)
	if inv.entry.attempts >= q.opts.MaxDeliver {
		return nil
	}
	q.pending = append(q.pending, inv.entry)
	return nil
}

func (q *Queue) requeueExpiredLocked(now time.Time) {
	for id, inv := range q.invisible {
		if now.Before(inv.deadline) {
			continue
		}
		delete(q.invisible, id)
		if inv.entry.attempts >= q.opts.MaxDeliver {
			continue
		}
		q.pending = append(q.pending, inv.entry)
	}
}
