package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"negotiations/internal/app/catalog"
	"negotiations/internal/domain"
)

// ProductEventConsumer keeps the local product read model in sync with the catalog.
type ProductEventConsumer struct {
	catalog catalog.CatalogService
	logger  *zap.Logger
}

func NewProductEventConsumer(s catalog.CatalogService, l *zap.Logger) *ProductEventConsumer {
	return &ProductEventConsumer{catalog: s, logger: l}
}

// HandleMessage drops malformed events; returning an error would stall the partition.
func (c *ProductEventConsumer) HandleMessage(ctx context.Context, message kafka.Message) error {
	var event domain.ProductEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		c.logger.Error("Error unmarshalling product event", zap.Error(err), zap.String("raw_message", string(message.Value)))
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = message.Time
		if event.OccurredAt.IsZero() {
			event.OccurredAt = time.Now()
		}
	}

	if err := c.catalog.ApplyEvent(ctx, event); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.logger.Warn("Invalid product event, skipping",
				zap.String("product_id", event.ProductID),
				zap.Int64("offset", message.Offset),
				zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}
