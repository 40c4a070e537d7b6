package smpp

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/example/sms-dispatch/internal/models"
)

// SubmitResult reports the identifiers returned by the gateway for one
// message. MessageID is the identifier of the last submitted segment, which
// is the one delivery receipts correlate against; SegmentIDs keeps the full
// list so callers may persist every part if they choose to.
type SubmitResult struct {
	MessageID  string
	SegmentIDs []string
}

// Submitter owns all access to the shared protocol session. Workers hand it
// pipeline records; it selects and encodes the text, segments oversized
// payloads and submits them sequentially. Rebinds are collapsed through a
// single-flight group so concurrent workers observing an unbound session
// trigger exactly one bind attempt.
type Submitter struct {
	session Session
	logger  zerolog.Logger

	rebind singleflight.Group

	randMu sync.Mutex
	rnd    *rand.Rand
}

// NewSubmitter constructs a Submitter around the shared session.
func NewSubmitter(session Session, logger zerolog.Logger) (*Submitter, error) {
	if session == nil {
		return nil, errors.New("smpp: session dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Submitter{
		session: session,
		logger:  logger.With().Str("component", "smpp_submitter").Logger(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Submit encodes and submits one record's message. The record is not
// mutated; the caller attaches the returned identifiers. An unbound session
// is rebound synchronously first, and a rebind failure aborts only this
// record.
func (s *Submitter) Submit(ctx context.Context, rec *models.PipelineRecord) (SubmitResult, error) {
	encoded, err := EncodeText(&rec.Computed)
	if err != nil {
		return SubmitResult{}, err
	}

	if !s.session.IsBound() {
		s.logger.Error().Msg("session is not bound, trying to reconnect")
		if err := s.ensureBound(ctx); err != nil {
			return SubmitResult{}, fmt.Errorf("smpp: rebind session: %w", err)
		}
		s.logger.Debug().Msg("session successfully reconnected and bound")
	}

	chunks := SplitSegments(encoded.Payload, encoded.SegmentSize)
	base := Segment{
		SourceAddr: rec.Computed.SenderID,
		DestAddr:   rec.Computed.To,
		DataCoding: encoded.DataCoding,
	}

	if len(chunks) == 1 {
		seg := base
		seg.Payload = chunks[0]
		id, err := s.session.Submit(ctx, seg)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("smpp: submit message: %w", err)
		}
		return SubmitResult{MessageID: id, SegmentIDs: []string{id}}, nil
	}

	refNum := s.referenceByte()
	total := len(chunks)
	ids := make([]string, 0, total)
	for i, chunk := range chunks {
		seg := base
		seg.Payload = chunk
		seg.Sar = &SarParams{RefNum: refNum, SeqNum: i + 1, Total: total}
		id, err := s.session.Submit(ctx, seg)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("smpp: submit segment %d/%d: %w", i+1, total, err)
		}
		ids = append(ids, id)
	}

	s.logger.Info().
		Int("segments", total).
		Strs("segment_ids", ids).
		Msg("segmented message submitted")
	return SubmitResult{MessageID: ids[len(ids)-1], SegmentIDs: ids}, nil
}

// OnReceipt registers the delivery receipt handler on the session.
func (s *Submitter) OnReceipt(handler ReceiptHandler) {
	s.session.OnReceipt(handler)
}

func (s *Submitter) ensureBound(ctx context.Context) error {
	_, err, _ := s.rebind.Do("rebind", func() (interface{}, error) {
		if s.session.IsBound() {
			return nil, nil
		}
		return nil, s.session.Bind(ctx)
	})
	return err
}

func (s *Submitter) referenceByte() byte {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return byte(s.rnd.Intn(256))
}
