package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/smpp"
)

// ReportingSink batch-writes pipeline records to the relational store.
type ReportingSink interface {
	BatchWrite(ctx context.Context, records []*models.PipelineRecord, status string) error
}

// EventPublisher emits communication response events. Publishing is
// fire-and-forget; the pipeline logs failures and never retries.
type EventPublisher interface {
	PublishResponse(ctx context.Context, event models.ResponseEvent) error
}

// MessageSubmitter performs the protocol-level submission for one record.
type MessageSubmitter interface {
	Submit(ctx context.Context, rec *models.PipelineRecord) (smpp.SubmitResult, error)
}

// Config tunes the dispatch pipeline.
type Config struct {
	// BufferSize bounds the queue; Enqueue blocks while it is full.
	BufferSize  int
	WorkerCount int
	// FlushInterval forces a flush when this much time passed since the
	// previous one, batch full or not.
	FlushInterval time.Duration
	// PollTimeout is how long a worker waits for the next record before
	// re-checking its flush conditions.
	PollTimeout time.Duration
}

// Dependencies collects the pipeline's collaborators.
type Dependencies struct {
	Sink      ReportingSink
	Publisher EventPublisher
	Submitter MessageSubmitter
	Logger    zerolog.Logger
}

// Stats is a snapshot of the pipeline counters. SendFailures counts records
// whose protocol submission failed even though their batch was persisted with
// a success status; the discrepancy is deliberate and observable here.
type Stats struct {
	Persisted    uint64
	Submitted    uint64
	SendFailures uint64
	PersistError uint64
}

// Pipeline is the bounded queue plus worker pool that batches records,
// routes them by outcome and classification, submits real sends over the
// shared protocol session and batch-writes outcomes to the reporting sink.
type Pipeline struct {
	cfg       Config
	sink      ReportingSink
	publisher EventPublisher
	submitter MessageSubmitter
	logger    zerolog.Logger

	queue  chan *models.PipelineRecord
	stopCh chan struct{}
	wg     sync.WaitGroup

	persisted    atomic.Uint64
	submitted    atomic.Uint64
	sendFailures atomic.Uint64
	persistError atomic.Uint64
}

// New constructs a Pipeline. Workers do not run until Start is called.
func New(cfg Config, deps Dependencies) (*Pipeline, error) {
	if cfg.BufferSize < 1 {
		return nil, errors.New("pipeline: buffer size must be >= 1")
	}
	if cfg.WorkerCount < 1 {
		return nil, errors.New("pipeline: worker count must be >= 1")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	if deps.Sink == nil {
		return nil, errors.New("pipeline: reporting sink dependency is required")
	}
	if deps.Publisher == nil {
		return nil, errors.New("pipeline: event publisher dependency is required")
	}
	if deps.Submitter == nil {
		return nil, errors.New("pipeline: submitter dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	return &Pipeline{
		cfg:       cfg,
		sink:      deps.Sink,
		publisher: deps.Publisher,
		submitter: deps.Submitter,
		logger:    logger.With().Str("component", "dispatch_pipeline").Logger(),
		queue:     make(chan *models.PipelineRecord, cfg.BufferSize),
		stopCh:    make(chan struct{}),
	}, nil
}

// Enqueue hands a record to the pipeline, blocking while the queue is full.
// It fails only when the caller's context is cancelled while blocked.
func (p *Pipeline) Enqueue(ctx context.Context, rec *models.PipelineRecord) error {
	select {
	case p.queue <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker pool.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Close stops the workers after one final forced flush of everything still
// queued. In-flight submissions are not interrupted.
func (p *Pipeline) Close() {
	close(p.stopCh)
	p.wg.Wait()
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Persisted:    p.persisted.Load(),
		Submitted:    p.submitted.Load(),
		SendFailures: p.sendFailures.Load(),
		PersistError: p.persistError.Load(),
	}
}

// batchLimit is how many records one worker accumulates before flushing.
func (p *Pipeline) batchLimit() int {
	limit := p.cfg.BufferSize / p.cfg.WorkerCount
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With().Int("worker", id).Logger()
	limit := p.batchLimit()
	batch := make([]*models.PipelineRecord, 0, limit)
	lastFlush := time.Now()

	timer := time.NewTimer(p.cfg.PollTimeout)
	defer timer.Stop()

	for {
		timer.Reset(p.cfg.PollTimeout)
		select {
		case <-p.stopCh:
			batch = p.drain(batch)
			p.persist(ctx, batch)
			return
		case rec := <-p.queue:
			batch = append(batch, rec)
		case <-timer.C:
		}

		if len(batch) >= limit || time.Since(lastFlush) > p.cfg.FlushInterval {
			if len(batch) > 0 {
				logger.Debug().Int("batch", len(batch)).Msg("flushing batch")
				p.persist(ctx, batch)
				batch = make([]*models.PipelineRecord, 0, limit)
			}
			lastFlush = time.Now()
		}
	}
}

// drain empties whatever is immediately available from the queue into the
// batch, used during the final shutdown flush.
func (p *Pipeline) drain(batch []*models.PipelineRecord) []*models.PipelineRecord {
	for {
		select {
		case rec := <-p.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
}
