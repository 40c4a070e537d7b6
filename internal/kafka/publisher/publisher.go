package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"

	"github.com/example/sms-dispatch/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour the publisher needs.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// ResponsePublisher emits communication response events to a Kafka topic,
// keyed by actor id so one actor's outcomes stay ordered within a partition.
type ResponsePublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewResponsePublisher constructs a ResponsePublisher instance.
func NewResponsePublisher(prod SyncProducer, topic string, logger zerolog.Logger) *ResponsePublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &ResponsePublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishResponse writes the supplied response event to Kafka synchronously.
func (p *ResponsePublisher) PublishResponse(_ context.Context, event models.ResponseEvent) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal response event: %w", err)
	}

	key := []byte(event.ActorID)
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	if err := p.producer.PublishSync(p.topic, cloneBytes(key), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish response event: %w", err)
	}
	return nil
}

func cloneBytes(src []byte) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
