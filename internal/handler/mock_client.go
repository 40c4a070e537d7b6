package handler

import (
	"context"
	"errors"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
)

// MockClient hands requests straight to the handler with an OK verdict,
// skipping quota evaluation entirely. Useful for integration testing the
// dispatch pipeline in isolation.
type MockClient struct {
	handler *Handler
	logger  zerolog.Logger
}

// NewMockClient constructs a MockClient.
func NewMockClient(h *Handler, logger zerolog.Logger) (*MockClient, error) {
	if h == nil {
		return nil, errors.New("handler: request handler dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &MockClient{
		handler: h,
		logger:  logger.With().Str("component", "mock_client").Logger(),
	}, nil
}

// Process enqueues the request as accepted without touching the cache.
func (m *MockClient) Process(ctx context.Context, req *models.CommunicationRequest) {
	req.EnsureUUID()
	m.logger.Info().Str("actor_id", req.ActorID).Msg("mock communication sender invoked")
	m.handler.Handle(ctx, req, models.TagOK)
}
