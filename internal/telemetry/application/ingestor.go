package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"fleet-telemetry-cloud/internal/audit"
	"fleet-telemetry-cloud/internal/observability/metrics"
	"fleet-telemetry-cloud/internal/queue"
	telemetry "fleet-telemetry-cloud/internal/telemetry/domain"
)

// Ingestor consumes queue batches and writes telemetry records to the
// store. Records that fail validation are dead-lettered and audited,
// never retried; store failures nak only the affected message so the
// broker redelivers it alone.
type Ingestor struct {
	consumer    queue.Consumer
	repo        telemetry.Repository
	deadLetters telemetry.DeadLetterStore
	auditLog    audit.Logger
	logger      *log.Logger

	workers   int
	batchSize int
}

// NewIngestor constructs an ingestor.
func NewIngestor(consumer queue.Consumer, repo telemetry.Repository, deadLetters telemetry.DeadLetterStore, auditLog audit.Logger, logger *log.Logger, cfg IngestConfig) (*Ingestor, error) {
	if consumer == nil {
		return nil, errors.New("ingestor: nil consumer")
	}
	if repo == nil {
		return nil, errors.New("ingestor: nil repository")
	}
	if logger == nil {
		logger = log.Default()
	}
	cfg = cfg.withDefaults()
	return &Ingestor{
		consumer:    consumer,
		repo:        repo,
		deadLetters: deadLetters,
		auditLog:    auditLog,
		logger:      logger,
		workers:     cfg.Workers,
		batchSize:   cfg.BatchSize,
	}, nil
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for w := 0; w < i.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			i.runWorker(ctx)
		}()
	}
	wg.Wait()
}

func (i *Ingestor) runWorker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		batch, err := i.consumer.Fetch(ctx, i.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			i.logger.Printf("ingest: fetch error: %v", err)
			sleepCtx(ctx, time.Second)
			continue
		}
		if len(batch) == 0 {
			continue
		}

		// Messages of one batch are processed concurrently. Every write
		// targets a distinct primary key and commits as a blind upsert,
		// so no cross-record locking is needed.
		var wg sync.WaitGroup
		for idx := range batch {
			wg.Add(1)
			go func(msg *queue.Message) {
				defer wg.Done()
				i.processMessage(ctx, msg)
			}(&batch[idx])
		}
		wg.Wait()
	}
}

// processMessage handles one queue message: a body that is either one
// telemetry record or an array of them. The message is acked once every
// record is stored or dead-lettered, and nak'd when any store write
// fails so only this message is redelivered.
func (i *Ingestor) processMessage(ctx context.Context, msg *queue.Message) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveMessage(result, time.Since(start))
	}()

	firstDelivery := msg.Attempts <= 1
	if !firstDelivery {
		metrics.IncRedelivered()
	}

	items, err := telemetry.SplitItems(msg.Data)
	if err != nil {
		i.dropRecord(ctx, msg.ID, "", msg.Data, err, firstDelivery)
		result = metrics.ResultError
		if err := msg.Ack(); err != nil {
			i.logger.Printf("ingest: ack error: %v", err)
		}
		return
	}

	stored := 0
	dropped := 0
	storeFailed := false
	for _, item := range items {
		record, err := telemetry.ParseRecord(item)
		if err != nil {
			i.dropRecord(ctx, msg.ID, peekDeviceID(item), item, err, firstDelivery)
			dropped++
			continue
		}
		if err := i.repo.Upsert(ctx, record); err != nil {
			i.logger.Printf("ingest: store error for deviceId=%s: %v", record.DeviceID, err)
			storeFailed = true
			continue
		}
		stored++
	}
	metrics.AddRecordsStored(stored)

	if storeFailed {
		result = metrics.ResultError
		if err := msg.Nak(); err != nil {
			i.logger.Printf("ingest: nak error: %v", err)
		}
		return
	}
	if dropped > 0 {
		result = metrics.ResultError
	}
	if err := msg.Ack(); err != nil {
		i.logger.Printf("ingest: ack error: %v", err)
	}
}

// dropRecord dead-letters an invalid payload with an audit trail. The
// drop is terminal: malformed data never becomes valid on retry. A
// message nak'd for a sibling's store failure comes back with the same
// invalid elements, so the dead-letter and audit rows are written on
// the first delivery only.
func (i *Ingestor) dropRecord(ctx context.Context, messageID, deviceID string, payload []byte, cause error, firstDelivery bool) {
	i.logger.Printf("ingest: dropped record deviceId=%s: %v", deviceID, cause)
	if !firstDelivery {
		return
	}
	metrics.AddRecordsDeadLettered(1)

	if i.deadLetters != nil {
		if err := i.deadLetters.RecordFailure(ctx, deviceID, payload, cause); err != nil {
			i.logger.Printf("ingest: dead letter error for deviceId=%s: %v", deviceID, err)
		}
	}
	if i.auditLog != nil {
		entry := audit.Entry{
			Action:        audit.ActionRecordDropped,
			DeviceID:      deviceID,
			MessageID:     messageID,
			Reason:        cause.Error(),
			PayloadDigest: audit.DigestJSON(payload),
		}
		if json.Valid(payload) {
			entry.Metadata = json.RawMessage(payload)
		}
		if err := i.auditLog.Log(ctx, entry); err != nil {
			i.logger.Printf("ingest: audit error for deviceId=%s: %v", deviceID, err)
		}
	}
}

// peekDeviceID extracts the deviceId from a payload that failed full
// validation, for logging and dead-lettering.
func peekDeviceID(data []byte) string {
	var probe struct {
		DeviceID string `json:"deviceId"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.DeviceID
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
