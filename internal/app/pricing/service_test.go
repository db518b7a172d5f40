package pricing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"negotiations/internal/domain"
	product_memory "negotiations/internal/repository/product_repo/memory"
)

type fakeFinder struct {
	accepted map[string]*domain.Negotiation
	err      error
}

func (f *fakeFinder) FindLatestAccepted(_ context.Context, productID, customerID string) (*domain.Negotiation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if n, ok := f.accepted[productID+"/"+customerID]; ok {
		return n, nil
	}
	return nil, domain.ErrNotFound
}

func acceptedAt(t *testing.T, initial, counter int64) *domain.Negotiation {
	t.Helper()
	now := time.Now()
	n, err := domain.NewNegotiation("n-1", "phone", "c-1", "s-1", decimal.NewFromInt(initial), "", now)
	require.NoError(t, err)
	if counter > 0 {
		n.CounterOffer = decimal.NewNullDecimal(decimal.NewFromInt(counter))
	}
	n.Status = domain.NegotiationStatusAccepted
	return n
}

func newCatalog() *product_memory.ProductRepository {
	return product_memory.NewProductRepository(
		domain.Product{ID: "phone", SellerID: "s-1", Price: decimal.NewFromInt(10000), Quantity: 3, Negotiable: true},
	)
}

func TestResolvePrice(t *testing.T) {
	finder := &fakeFinder{accepted: map[string]*domain.Negotiation{"phone/c-1": acceptedAt(t, 8000, 9000)}}
	svc := NewPricingService(finder, newCatalog(), zap.NewNop())

	resolved, err := svc.ResolvePrice(context.Background(), "phone", "c-1")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.True(t, resolved.Price.Equal(decimal.NewFromInt(9000)))
	assert.Equal(t, "n-1", resolved.Negotiation.ID)

	resolved, err = svc.ResolvePrice(context.Background(), "phone", "c-2")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolvePriceHidesStoreFailure(t *testing.T) {
	svc := NewPricingService(&fakeFinder{err: errors.New("connection reset")}, newCatalog(), zap.NewNop())
	_, err := svc.ResolvePrice(context.Background(), "phone", "c-1")
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestQuoteLineUsesNegotiatedPrice(t *testing.T) {
	finder := &fakeFinder{accepted: map[string]*domain.Negotiation{"phone/c-1": acceptedAt(t, 8000, 0)}}
	svc := NewPricingService(finder, newCatalog(), zap.NewNop())

	quote, err := svc.QuoteLine(context.Background(), domain.Customer{ID: "c-1"}, "phone", 2)
	require.NoError(t, err)
	assert.True(t, quote.Negotiated)
	assert.Equal(t, "n-1", quote.NegotiationID)
	assert.True(t, quote.ListPrice.Equal(decimal.NewFromInt(10000)))
	assert.True(t, quote.UnitPrice.Equal(decimal.NewFromInt(8000)))
	assert.True(t, quote.LineTotal.Equal(decimal.NewFromInt(16000)))
}

func TestQuoteLineFallsBackToListPrice(t *testing.T) {
	svc := NewPricingService(&fakeFinder{}, newCatalog(), zap.NewNop())

	quote, err := svc.QuoteLine(context.Background(), domain.Customer{ID: "c-2"}, "phone", 3)
	require.NoError(t, err)
	assert.False(t, quote.Negotiated)
	assert.Empty(t, quote.NegotiationID)
	assert.True(t, quote.LineTotal.Equal(decimal.NewFromInt(30000)))
}

func TestQuoteLineRules(t *testing.T) {
	svc := NewPricingService(&fakeFinder{}, newCatalog(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name     string
		caller   domain.User
		product  string
		quantity int
		want     error
	}{
		{"zero quantity", domain.Customer{ID: "c-1"}, "phone", 0, domain.ErrValidation},
		{"over stock", domain.Customer{ID: "c-1"}, "phone", 4, domain.ErrValidation},
		{"unknown product", domain.Customer{ID: "c-1"}, "tablet", 1, domain.ErrNotFound},
		{"own product", domain.Customer{ID: "s-1"}, "phone", 1, domain.ErrForbidden},
		{"seller role", domain.Seller{ID: "s-2"}, "phone", 1, domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.QuoteLine(ctx, tt.caller, tt.product, tt.quantity)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
