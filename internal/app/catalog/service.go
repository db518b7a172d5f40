package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"negotiations/internal/domain"
	"negotiations/internal/repository/product_repo"
)

// CatalogService maintains the local product read model. Events come from the
// product_events topic or from a seed file loaded at startup.
type CatalogService interface {
	ApplyEvent(ctx context.Context, event domain.ProductEvent) error
	LoadSeed(ctx context.Context, r io.Reader) (int, error)
}

type catalogService struct {
	products product_repo.ProductRepository
	logger   *zap.Logger
}

func NewCatalogService(products product_repo.ProductRepository, logger *zap.Logger) CatalogService {
	return &catalogService{products: products, logger: logger}
}

// ApplyEvent returns a validation error for events that can never be applied.
func (s *catalogService) ApplyEvent(ctx context.Context, event domain.ProductEvent) error {
	if event.ProductID == "" {
		return domain.Validationf("product event without product_id")
	}

	switch event.Type {
	case domain.ProductEventUpserted:
		if event.SellerID == "" || event.Price.IsNegative() || event.Quantity < 0 {
			return domain.Validationf("invalid product %s", event.ProductID)
		}
		err := s.products.UpsertProduct(ctx, &domain.Product{
			ID:         event.ProductID,
			SellerID:   event.SellerID,
			Price:      event.Price,
			Quantity:   event.Quantity,
			Negotiable: event.Negotiable,
			UpdatedAt:  event.OccurredAt,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", event.ProductID, err)
		}
	case domain.ProductEventDeleted:
		if err := s.products.DeleteProduct(ctx, event.ProductID, event.OccurredAt); err != nil {
			return fmt.Errorf("failed to delete product %s: %w", event.ProductID, err)
		}
	default:
		return domain.Validationf("unknown product event type %q", event.Type)
	}

	s.logger.Debug("Product event applied", zap.String("type", event.Type), zap.String("product_id", event.ProductID))
	return nil
}

// LoadSeed reads a JSON array of product events. Entries without a type are upserts.
// Entries without occurred_at get the zero time, so any later catalog event wins over them.
func (s *catalogService) LoadSeed(ctx context.Context, r io.Reader) (int, error) {
	var events []domain.ProductEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return 0, domain.Validationf("malformed product seed: %v", err)
	}

	for i, event := range events {
		if event.Type == "" {
			event.Type = domain.ProductEventUpserted
		}
		if err := s.ApplyEvent(ctx, event); err != nil {
			return i, fmt.Errorf("product seed entry %d: %w", i, err)
		}
	}
	s.logger.Info("Product seed loaded", zap.Int("products", len(events)))
	return len(events), nil
}
