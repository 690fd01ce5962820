// Package natsqueue implements the queue interfaces on NATS JetStream.
package natsqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"fleet-telemetry-cloud/internal/queue"
)

const msgIDHeader = "Nats-Msg-Id"

// Queue is a durable JetStream-backed queue with explicit per-message
// acknowledgment.
type Queue struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	subject  string
	opts     queue.Options
}

// New connects to NATS, provisions the stream and a durable pull
// consumer, and returns the queue.
// url: NATS connection URL, e.g. "nats://127.0.0.1:4222".
// name: client name shown in NATS monitoring.
func New(ctx context.Context, url, name, stream, subject, durable string, opts queue.Options) (*Queue, error) {
	opts = opts.WithDefaults()

	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.PingInterval(5*time.Second),
		nats.MaxPingsOutstanding(3),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       stream,
		Subjects:   []string{subject},
		Storage:    jetstream.FileStorage,
		MaxAge:     opts.Retention,
		Duplicates: opts.AckWait,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", stream, err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       opts.AckWait,
		MaxDeliver:    opts.MaxDeliver,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer %s: %w", durable, err)
	}

	return &Queue{nc: nc, js: js, consumer: consumer, subject: subject, opts: opts}, nil
}

// Publish enqueues one message with a deduplication id and returns it.
func (q *Queue) Publish(ctx context.Context, data []byte) (string, error) {
	id := uuid.NewString()
	msg := &nats.Msg{
		Subject: q.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(msgIDHeader, id)

	if _, err := q.js.PublishMsg(ctx, msg); err != nil {
		return "", fmt.Errorf("publish %s: %w", q.subject, err)
	}
	return id, nil
}

// Fetch pulls up to max messages, long-polling up to FetchWait when the
// stream is empty.
func (q *Queue) Fetch(ctx context.Context, max int) ([]queue.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10
	}
	batch, err := q.consumer.Fetch(max, jetstream.FetchMaxWait(q.opts.FetchWait))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", q.subject, err)
	}

	messages := make([]queue.Message, 0, max)
	for msg := range batch.Messages() {
		attempts := 1
		if meta, err := msg.Metadata(); err == nil {
			attempts = int(meta.NumDelivered)
		}
		id := msg.Headers().Get(msgIDHeader)
		messages = append(messages, queue.NewMessage(id, msg.Data(), attempts, msg.Ack, msg.Nak))
	}
	if err := batch.Error(); err != nil {
		return messages, fmt.Errorf("fetch %s: %w", q.subject, err)
	}
	return messages, nil
}

// Close drains the connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}
