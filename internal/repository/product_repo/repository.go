package product_repo

import (
	"context"
	"time"

	"negotiations/internal/domain"
)

type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	// UpsertProduct ignores writes older than the stored UpdatedAt.
	UpsertProduct(ctx context.Context, p *domain.Product) error
	DeleteProduct(ctx context.Context, id string, at time.Time) error
}
