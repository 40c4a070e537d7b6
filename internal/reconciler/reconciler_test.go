package reconciler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/reconciler"
	"github.com/example/sms-dispatch/internal/smpp"
)

// stubUpdater scripts the affected-row counts returned per flush.
type stubUpdater struct {
	mu      sync.Mutex
	batches [][]models.DeliveryReport
	scripts [][]int64
	err     error
}

func (s *stubUpdater) UpdateDeliveryStatus(_ context.Context, reports []models.DeliveryReport) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	batch := make([]models.DeliveryReport, len(reports))
	copy(batch, reports)
	s.batches = append(s.batches, batch)

	if len(s.scripts) > 0 {
		next := s.scripts[0]
		s.scripts = s.scripts[1:]
		return next, nil
	}
	affected := make([]int64, len(reports))
	for i := range affected {
		affected[i] = 1
	}
	return affected, nil
}

func (s *stubUpdater) calls() [][]models.DeliveryReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]models.DeliveryReport, len(s.batches))
	copy(out, s.batches)
	return out
}

func newReconciler(t *testing.T, updater reconciler.Updater, cfg reconciler.Config) *reconciler.Reconciler {
	t.Helper()
	r, err := reconciler.New(cfg, updater, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error building reconciler: %v", err)
	}
	return r
}

func TestOnReceiptMasksMessageID(t *testing.T) {
	updater := &stubUpdater{}
	r := newReconciler(t, updater, reconciler.Config{})

	// 2^32 + 7 masks down to 7.
	r.OnReceipt(smpp.Receipt{MessageID: "4294967303", FinalStatus: "DELIVRD", DoneDate: time.Now()})
	if r.QueueDepth() != 1 {
		t.Fatalf("expected one queued report, got %d", r.QueueDepth())
	}

	r.Flush(context.Background())
	calls := updater.calls()
	if len(calls) != 1 || len(calls[0]) != 1 {
		t.Fatalf("unexpected update calls: %+v", calls)
	}
	if calls[0][0].MessageID != 7 {
		t.Fatalf("expected masked id 7, got %d", calls[0][0].MessageID)
	}
}

func TestOnReceiptDiscardsNonNumericID(t *testing.T) {
	updater := &stubUpdater{}
	r := newReconciler(t, updater, reconciler.Config{})

	r.OnReceipt(smpp.Receipt{MessageID: "abc-123", FinalStatus: "DELIVRD"})
	if r.QueueDepth() != 0 {
		t.Fatalf("expected non-numeric receipt to be dropped")
	}
}

func TestFlushRequeuesZeroRowReports(t *testing.T) {
	updater := &stubUpdater{scripts: [][]int64{{0}, {1}}}
	r := newReconciler(t, updater, reconciler.Config{MaxRetries: 2})

	r.OnReceipt(smpp.Receipt{MessageID: "1001", FinalStatus: "DELIVRD", DoneDate: time.Now()})

	ctx := context.Background()
	r.Flush(ctx)
	if r.QueueDepth() != 1 {
		t.Fatalf("expected zero-row report requeued, depth %d", r.QueueDepth())
	}

	r.Flush(ctx)
	if r.QueueDepth() != 0 {
		t.Fatalf("expected report reconciled on retry, depth %d", r.QueueDepth())
	}

	calls := updater.calls()
	if len(calls) != 2 {
		t.Fatalf("expected two update calls, got %d", len(calls))
	}
	if calls[1][0].RetryCount != 1 {
		t.Fatalf("expected retry count 1 on second attempt, got %d", calls[1][0].RetryCount)
	}
}

func TestFlushDropsAfterRetryBudget(t *testing.T) {
	updater := &stubUpdater{scripts: [][]int64{{0}, {0}, {0}}}
	r := newReconciler(t, updater, reconciler.Config{MaxRetries: 2})

	r.OnReceipt(smpp.Receipt{MessageID: "1001", FinalStatus: "UNDELIV", DoneDate: time.Now()})

	ctx := context.Background()
	r.Flush(ctx) // retry 1
	r.Flush(ctx) // retry 2
	r.Flush(ctx) // budget spent, dropped
	if r.QueueDepth() != 0 {
		t.Fatalf("expected report dropped after retries, depth %d", r.QueueDepth())
	}
	if len(updater.calls()) != 3 {
		t.Fatalf("expected three update attempts, got %d", len(updater.calls()))
	}
}

func TestFlushDropsBatchOnUpdaterError(t *testing.T) {
	updater := &stubUpdater{err: errors.New("store down")}
	r := newReconciler(t, updater, reconciler.Config{})

	r.OnReceipt(smpp.Receipt{MessageID: "1001", FinalStatus: "DELIVRD", DoneDate: time.Now()})
	r.Flush(context.Background())
	if r.QueueDepth() != 0 {
		t.Fatalf("expected batch dropped on updater error, depth %d", r.QueueDepth())
	}
}

func TestFlushRespectsBatchSize(t *testing.T) {
	updater := &stubUpdater{}
	r := newReconciler(t, updater, reconciler.Config{BatchSize: 2})

	for _, id := range []string{"1", "2", "3"} {
		r.OnReceipt(smpp.Receipt{MessageID: id, FinalStatus: "DELIVRD", DoneDate: time.Now()})
	}

	r.Flush(context.Background())
	if r.QueueDepth() != 1 {
		t.Fatalf("expected one report left after capped flush, depth %d", r.QueueDepth())
	}
	if calls := updater.calls(); len(calls[0]) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(calls[0]))
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	updater := &stubUpdater{}
	r := newReconciler(t, updater, reconciler.Config{FlushInterval: time.Hour})
	r.Start(context.Background())

	r.OnReceipt(smpp.Receipt{MessageID: "1001", FinalStatus: "DELIVRD", DoneDate: time.Now()})
	r.Close()

	if r.QueueDepth() != 0 {
		t.Fatalf("expected queue drained on close, depth %d", r.QueueDepth())
	}
	if len(updater.calls()) != 1 {
		t.Fatalf("expected the final flush to reach the store, got %d calls", len(updater.calls()))
	}
}
