package handler

import (
	"context"
	"errors"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
	"github.com/example/sms-dispatch/internal/quota"
)

// Evaluator is the quota engine surface the service depends on.
type Evaluator interface {
	Evaluate(ctx context.Context, req *models.CommunicationRequest) quota.Outcome
	IncrementUsage(ctx context.Context, actorID, messageType string) error
}

// Service is the quota-gated front of the dispatch path. Every request is
// evaluated, handed to the request handler with its verdict, and, when the
// contact policy was applied and passed, the actor's daily counter is bumped.
type Service struct {
	engine  Evaluator
	handler *Handler
	logger  zerolog.Logger
}

// NewService wires the quota engine and the request handler together.
func NewService(engine Evaluator, h *Handler, logger zerolog.Logger) (*Service, error) {
	if engine == nil {
		return nil, errors.New("handler: quota engine dependency is required")
	}
	if h == nil {
		return nil, errors.New("handler: request handler dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Service{
		engine:  engine,
		handler: h,
		logger:  logger.With().Str("component", "communication_service").Logger(),
	}, nil
}

// Process evaluates quota for the request, enqueues the resulting pipeline
// record and returns the verdict to the caller. Counter updates happen after
// the record is enqueued; an update failure is logged and does not turn the
// verdict into a failure.
func (s *Service) Process(ctx context.Context, req *models.CommunicationRequest) quota.Outcome {
	req.EnsureUUID()

	outcome := s.engine.Evaluate(ctx, req)
	s.handler.Handle(ctx, req, outcome.Reason)

	if outcome.PolicyApplied {
		if err := s.engine.IncrementUsage(ctx, req.ActorID, outcome.MessageType); err != nil {
			s.logger.Error().Err(err).
				Str("actor_id", req.ActorID).
				Msg("failed to update usage counter after successful quota check")
		}
	}
	return outcome
}
