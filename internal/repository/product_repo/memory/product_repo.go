package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"negotiations/internal/domain"
	"negotiations/internal/repository/product_repo"
)

type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

var _ product_repo.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository(seed ...domain.Product) *ProductRepository {
	r := &ProductRepository{products: make(map[string]domain.Product)}
	for _, p := range seed {
		r.products[p.ID] = p
	}
	return r
}

func (r *ProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return &p, nil
}

func (r *ProductRepository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.products[p.ID]; ok && cur.UpdatedAt.After(p.UpdatedAt) {
		return nil
	}
	r.products[p.ID] = *p
	return nil
}

func (r *ProductRepository) DeleteProduct(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.products[id]; ok && !cur.UpdatedAt.After(at) {
		delete(r.products, id)
	}
	return nil
}
