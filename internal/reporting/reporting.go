package reporting

import (
	"context"

	"github.com/example/sms-dispatch/internal/models"
)

// Sink is the reporting store contract: batch outcome writes plus delivery
// status patches keyed by message id.
type Sink interface {
	// BatchWrite persists one routed sub-list with the given status.
	BatchWrite(ctx context.Context, records []*models.PipelineRecord, status string) error
	// UpdateDeliveryStatus applies each report's final status to its
	// outbound row and returns the affected-row count per report, in order.
	UpdateDeliveryStatus(ctx context.Context, reports []models.DeliveryReport) ([]int64, error)
	Close() error
}
