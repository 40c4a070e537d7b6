package reconciler

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/smpp"
)

// messageIDMask truncates gateway message ids to their low 32 bits so that
// receipt ids and submit-response ids compare equal regardless of how the
// gateway widened them.
const messageIDMask = 0xffffffff

// Updater applies delivery reports to the reporting store and returns the
// affected-row count per report, in order.
type Updater interface {
	UpdateDeliveryStatus(ctx context.Context, reports []models.DeliveryReport) ([]int64, error)
}

// Config tunes the reconciliation loop.
type Config struct {
	// FlushInterval is how often queued reports are pushed to the store.
	FlushInterval time.Duration
	// BatchSize caps how many reports one flush takes off the queue.
	BatchSize int
	// MaxRetries bounds how often a report whose UPDATE matched no row is
	// requeued before being dropped.
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.FlushInterval <= 0 {
		c.FlushInterval = 200 * time.Millisecond
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
}

// Reconciler buffers delivery receipts and periodically patches their final
// status into the reporting store. Receipts for rows the pipeline has not
// persisted yet are retried on later flushes. The queue is unbounded; receipt
// arrival must never block the protocol session's receive loop.
type Reconciler struct {
	cfg     Config
	updater Updater
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending []models.DeliveryReport

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Reconciler. The loop does not run until Start is called.
func New(cfg Config, updater Updater, logger zerolog.Logger) (*Reconciler, error) {
	if updater == nil {
		return nil, errors.New("reconciler: updater dependency is required")
	}
	cfg.applyDefaults()
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Reconciler{
		cfg:     cfg,
		updater: updater,
		logger:  logger.With().Str("component", "delivery_reconciler").Logger(),
		now:     time.Now,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}, nil
}

// OnReceipt parses an inbound delivery receipt and queues it for
// reconciliation. Receipts whose message id is not a decimal number are
// logged and discarded.
func (r *Reconciler) OnReceipt(receipt smpp.Receipt) {
	id, err := strconv.ParseInt(receipt.MessageID, 10, 64)
	if err != nil {
		r.logger.Warn().
			Str("message_id", receipt.MessageID).
			Msg("discarding receipt with non-numeric message id")
		return
	}

	deliveredAt := receipt.DoneDate
	if deliveredAt.IsZero() {
		deliveredAt = r.now()
	}

	r.enqueue(models.DeliveryReport{
		MessageID:   id & messageIDMask,
		FinalStatus: receipt.FinalStatus,
		DeliveredAt: deliveredAt,
	})
}

func (r *Reconciler) enqueue(report models.DeliveryReport) {
	r.mu.Lock()
	r.pending = append(r.pending, report)
	r.mu.Unlock()
}

// QueueDepth reports how many delivery reports are waiting for reconciliation.
func (r *Reconciler) QueueDepth() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Start runs the flush loop until Close is called.
func (r *Reconciler) Start(ctx context.Context) {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Flush(ctx)
			}
		}
	}()
}

// Close stops the loop and flushes whatever is still queued.
func (r *Reconciler) Close() {
	close(r.stopCh)
	<-r.doneCh
	r.Flush(context.Background())
}

// Flush takes one batch off the queue and applies it to the store. Reports
// whose UPDATE matched no row are requeued with an incremented retry count;
// once the retry budget is spent they are dropped with a single error log.
func (r *Reconciler) Flush(ctx context.Context) {
	batch := r.take()
	if len(batch) == 0 {
		return
	}

	affected, err := r.updater.UpdateDeliveryStatus(ctx, batch)
	if err != nil {
		r.logger.Error().Err(err).Int("batch", len(batch)).Msg("delivery status update failed, dropping batch")
		return
	}

	for i, report := range batch {
		if i < len(affected) && affected[i] > 0 {
			continue
		}
		if report.RetryCount >= r.cfg.MaxRetries {
			r.logger.Error().
				Int64("message_id", report.MessageID).
				Str("final_status", report.FinalStatus).
				Msg("no reporting row matched receipt after retries, dropping")
			continue
		}
		report.RetryCount++
		r.logger.Debug().
			Int64("message_id", report.MessageID).
			Int("retry", report.RetryCount).
			Msg("receipt matched no reporting row yet, requeueing")
		r.enqueue(report)
	}
}

// take pops up to BatchSize reports off the queue.
func (r *Reconciler) take() []models.DeliveryReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	n := len(r.pending)
	if n > r.cfg.BatchSize {
		n = r.cfg.BatchSize
	}
	batch := make([]models.DeliveryReport, n)
	copy(batch, r.pending[:n])
	r.pending = append(r.pending[:0], r.pending[n:]...)
	return batch
}
