// Package outbox relays registered records to an event stream without
// holding up the request that created them.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/geo-anchor-service/internal/domain"
	"github.com/couchcryptid/geo-anchor-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
	drainTimeout   = 5 * time.Second
)

// Publisher writes a batch of record events to the destination.
type Publisher interface {
	PublishBatch(ctx context.Context, records []domain.Record) error
}

// Relay buffers records in a bounded queue and publishes them in batches,
// flushing when a batch fills or the flush interval elapses.
type Relay struct {
	queue         chan domain.Record
	publisher     Publisher
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// New creates a Relay. queueSize bounds how many events may wait for
// publishing; beyond that Enqueue drops.
func New(p Publisher, batchSize int, flushInterval time.Duration, queueSize int, logger *slog.Logger, metrics *observability.Metrics) *Relay {
	return &Relay{
		queue:         make(chan domain.Record, queueSize),
		publisher:     p,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		metrics:       metrics,
	}
}

// Enqueue hands r to the relay without blocking. It reports false when the
// queue is full and the event was dropped.
func (r *Relay) Enqueue(rec domain.Record) bool {
	select {
	case r.queue <- rec:
		return true
	default:
		r.metrics.OutboxDropped.Inc()
		r.logger.Warn("outbox full, dropping record event", "id", rec.ID)
		return false
	}
}

// Run publishes queued records until ctx is cancelled, then makes one final
// attempt to flush whatever is still buffered.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("outbox relay started", "batch_size", r.batchSize, "flush_interval", r.flushInterval)
	r.metrics.OutboxRunning.Set(1)
	defer r.metrics.OutboxRunning.Set(0)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]domain.Record, 0, r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.drain(batch)
			r.logger.Info("outbox relay stopped", "reason", ctx.Err())
			return nil
		case rec := <-r.queue:
			batch = append(batch, rec)
			if len(batch) < r.batchSize {
				continue
			}
		case <-ticker.C:
			if len(batch) == 0 {
				continue
			}
		}

		if !r.flush(ctx, batch) {
			r.drain(batch)
			r.logger.Info("outbox relay stopped", "reason", ctx.Err())
			return nil
		}
		batch = batch[:0]
	}
}

// flush publishes batch, backing off between failures. Returns false if ctx
// ended before the batch was accepted.
func (r *Relay) flush(ctx context.Context, batch []domain.Record) bool {
	backoff := initialBackoff
	for {
		err := r.publisher.PublishBatch(ctx, batch)
		if err == nil {
			r.metrics.RecordsPublished.Add(float64(len(batch)))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		r.metrics.PublishErrors.Inc()
		r.logger.Error("publish batch failed", "error", err, "batch_size", len(batch), "retry_in", backoff)
		if !retry.SleepWithContext(ctx, backoff) {
			return false
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
}

// drain publishes the pending batch plus anything left in the queue, once,
// under its own deadline.
func (r *Relay) drain(pending []domain.Record) {
loop:
	for {
		select {
		case rec := <-r.queue:
			pending = append(pending, rec)
		default:
			break loop
		}
	}
	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := r.publisher.PublishBatch(ctx, pending); err != nil {
		r.metrics.PublishErrors.Inc()
		r.logger.Error("final outbox flush failed, events lost", "error", err, "count", len(pending))
		return
	}
	r.metrics.RecordsPublished.Add(float64(len(pending)))
}
