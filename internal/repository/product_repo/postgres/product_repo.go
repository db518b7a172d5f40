package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"negotiations/internal/domain"
	"negotiations/internal/repository/product_repo"
)

type pgProductRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewProductRepository(db *sql.DB, l *zap.Logger) product_repo.ProductRepository {
	return &pgProductRepository{db: db, logger: l}
}

func (r *pgProductRepository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p := &domain.Product{}
	query := `SELECT id, seller_id, price, quantity, negotiable, updated_at FROM products WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.SellerID, &p.Price, &p.Quantity, &p.Negotiable, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
		}
		r.logger.Error("Failed to get product by ID", zap.String("product_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return p, nil
}

func (r *pgProductRepository) UpsertProduct(ctx context.Context, p *domain.Product) error {
	query := `
		INSERT INTO products (id, seller_id, price, quantity, negotiable, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET seller_id = EXCLUDED.seller_id,
		    price = EXCLUDED.price,
		    quantity = EXCLUDED.quantity,
		    negotiable = EXCLUDED.negotiable,
		    updated_at = EXCLUDED.updated_at
		WHERE products.updated_at <= EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.SellerID, p.Price, p.Quantity, p.Negotiable, p.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to upsert product", zap.String("product_id", p.ID), zap.Error(err))
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	r.logger.Debug("Product upserted", zap.String("product_id", p.ID))
	return nil
}

func (r *pgProductRepository) DeleteProduct(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1 AND updated_at <= $2`, id, at)
	if err != nil {
		r.logger.Error("Failed to delete product", zap.String("product_id", id), zap.Error(err))
		return fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	return nil
}
