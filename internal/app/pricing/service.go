package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"negotiations/internal/domain"
)

type NegotiationFinder interface {
	FindLatestAccepted(ctx context.Context, productID, customerID string) (*domain.Negotiation, error)
}

type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type ResolvedPrice struct {
	Price       decimal.Decimal
	ResolvedAt  time.Time
	Negotiation *domain.Negotiation
}

type LineQuote struct {
	ProductID     string          `json:"productId"`
	Quantity      int             `json:"quantity"`
	ListPrice     decimal.Decimal `json:"listPrice"`
	UnitPrice     decimal.Decimal `json:"unitPrice"`
	LineTotal     decimal.Decimal `json:"lineTotal"`
	Negotiated    bool            `json:"negotiated"`
	NegotiationID string          `json:"negotiationId,omitempty"`
}

type PricingService interface {
	// ResolvePrice returns nil without error when the pair has no accepted negotiation.
	ResolvePrice(ctx context.Context, productID, customerID string) (*ResolvedPrice, error)
	QuoteLine(ctx context.Context, caller domain.User, productID string, quantity int) (*LineQuote, error)
}

type pricingService struct {
	negotiations NegotiationFinder
	catalog      ProductCatalog
	logger       *zap.Logger
}

func NewPricingService(negotiations NegotiationFinder, catalog ProductCatalog, logger *zap.Logger) PricingService {
	return &pricingService{negotiations: negotiations, catalog: catalog, logger: logger}
}

func (s *pricingService) ResolvePrice(ctx context.Context, productID, customerID string) (*ResolvedPrice, error) {
	if productID == "" || customerID == "" {
		return nil, domain.Validationf("productId and customerId are required")
	}
	n, err := s.negotiations.FindLatestAccepted(ctx, productID, customerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		s.logger.Error("Failed to resolve negotiated price",
			zap.String("product_id", productID),
			zap.String("customer_id", customerID),
			zap.Error(err))
		return nil, domain.ErrInternal
	}

	price, ok := n.ResolvedPrice()
	if !ok {
		return nil, nil
	}
	return &ResolvedPrice{Price: price, ResolvedAt: n.UpdatedAt, Negotiation: n}, nil
}

func (s *pricingService) QuoteLine(ctx context.Context, caller domain.User, productID string, quantity int) (*LineQuote, error) {
	if productID == "" {
		return nil, domain.Validationf("productId is required")
	}
	if quantity <= 0 {
		return nil, domain.Validationf("quantity must be positive")
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("product %s not found", productID)
		}
		s.logger.Error("Failed to look up product", zap.String("product_id", productID), zap.Error(err))
		return nil, domain.ErrInternal
	}
	if product.SellerID == caller.UserID() {
		return nil, domain.Forbiddenf("a seller cannot add their own product to the cart")
	}

	var customer domain.Customer
	switch u := caller.(type) {
	case domain.Customer:
		customer = u
	case domain.Seller:
		return nil, domain.Forbiddenf("only customers can add products to the cart")
	}

	if quantity > product.Quantity {
		return nil, domain.Validationf("requested quantity %d exceeds available stock %d", quantity, product.Quantity)
	}

	quote := &LineQuote{
		ProductID: product.ID,
		Quantity:  quantity,
		ListPrice: product.Price,
		UnitPrice: product.Price,
	}

	resolved, err := s.ResolvePrice(ctx, product.ID, customer.ID)
	if err != nil {
		return nil, err
	}
	if resolved != nil {
		quote.UnitPrice = resolved.Price
		quote.Negotiated = true
		quote.NegotiationID = resolved.Negotiation.ID
	}
	quote.LineTotal = quote.UnitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	return quote, nil
}
