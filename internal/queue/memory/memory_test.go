package memqueue

import (
	"context"
	"testing"
	"time"

	"fleet-telemetry-cloud/internal/queue"
)

func TestPublishFetchAck(t *testing.T) {
	q := New(queue.Options{})
	ctx := context.Background()

	id, err := q.Publish(ctx, []byte(`{"deviceId":"d1"}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatal("expected message id")
	}

	batch, err := q.Fetch(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected 1 message, got %d", len(batch))
	}
	if batch[0].ID != id {
		t.Fatalf("id mismatch: %s vs %s", batch[0].ID, id)
	}
	if batch[0].Attempts != 1 {
		t.Fatalf("attempts = %d", batch[0].Attempts)
	}
	if err := batch[0].Ack(); err != nil {
		t.Fatalf("ack: %v", err)
	}

	batch, err = q.Fetch(ctx, 10)
	if err != nil {
		t.Fatalf("fetch after ack: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("acked message redelivered: %d", len(batch))
	}
}

func TestNakRedelivers(t *testing.T) {
	q := New(queue.Options{})
	ctx := context.Background()

	if _, err := q.Publish(ctx, []byte(`x`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	batch, err := q.Fetch(ctx, 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := batch[0].Nak(); err != nil {
		t.Fatalf("nak: %v", err)
	}

	batch, err = q.Fetch(ctx, 1)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected redelivery, got %d messages", len(batch))
	}
	if batch[0].Attempts != 2 {
		t.Fatalf("attempts = %d", batch[0].Attempts)
	}
}

func TestMaxDeliverBoundsRedelivery(t *testing.T) {
	q := New(queue.Options{MaxDeliver: 2})
	ctx := context.Background()

	if _, err := q.Publish(ctx, []byte(`x`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i := 0; i < 2; i++ {
		batch, err := q.Fetch(ctx, 1)
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if len(batch) != 1 {
			t.Fatalf("fetch %d: expected 1 message, got %d", i, len(batch))
		}
		_ = batch[0].Nak()
	}

	batch, err := q.Fetch(ctx, 1)
	if err != nil {
		t.Fatalf("final fetch: %v", err)
	}
	if len(batch) != 0 {
		t.Fatalf("message exceeded max deliver: %d", len(batch))
	}
}

func TestAckWaitExpiryRequeues(t *testing.T) {
	q := New(queue.Options{AckWait: 10 * time.Millisecond})
	ctx := context.Background()

	if _, err := q.Publish(ctx, []byte(`x`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := q.Fetch(ctx, 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	batch, err := q.Fetch(ctx, 1)
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	if len(batch) != 1 {
		t.Fatalf("expected requeue after ack window, got %d", len(batch))
	}
	if batch[0].Attempts != 2 {
		t.Fatalf("attempts = %d", batch[0].Attempts)
	}
}

func TestFetchBatchBound(t *testing.T) {
	q := New(queue.Options{})
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := q.Publish(ctx, []byte(`x`)); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	batch, err := q.Fetch(ctx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(batch) != 10 {
		t.Fatalf("expected batch of 10, got %d", len(batch))
	}
	if q.Depth() != 5 {
		t.Fatalf("depth = %d", q.Depth())
	}
}
