package negotiations

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"negotiations/internal/app/pricing"
	"negotiations/internal/domain"
	"negotiations/internal/repository/negotiation_repo"
	negotiation_memory "negotiations/internal/repository/negotiation_repo/memory"
	outbox_memory "negotiations/internal/repository/outbox_repo/memory"
	product_memory "negotiations/internal/repository/product_repo/memory"
)

var (
	customer = domain.Customer{ID: "customer-1"}
	seller   = domain.Seller{ID: "seller-1"}
	stranger = domain.Customer{ID: "customer-2"}
)

type fixture struct {
	svc     NegotiationService
	repo    negotiation_repo.NegotiationRepository
	outbox  *outbox_memory.OutboxRepository
	pricing pricing.PricingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	catalog := product_memory.NewProductRepository(
		domain.Product{ID: "phone", SellerID: seller.ID, Price: decimal.NewFromInt(10000), Quantity: 5, Negotiable: true},
		domain.Product{ID: "fixed", SellerID: seller.ID, Price: decimal.NewFromInt(500), Quantity: 5},
		domain.Product{ID: "sold-out", SellerID: seller.ID, Price: decimal.NewFromInt(500), Quantity: 0, Negotiable: true},
	)
	outbox := outbox_memory.NewOutboxRepository()
	repo := negotiation_memory.NewNegotiationRepository(outbox, zaptest.NewLogger(t))
	return &fixture{
		svc:     NewNegotiationService(repo, catalog, "negotiation_events", zaptest.NewLogger(t)),
		repo:    repo,
		outbox:  outbox,
		pricing: pricing.NewPricingService(repo, catalog, zaptest.NewLogger(t)),
	}
}

func (f *fixture) create(t *testing.T, price int64) *NegotiationResponse {
	t.Helper()
	resp, err := f.svc.CreateNegotiation(context.Background(), customer, &CreateNegotiationRequest{
		ProductID:    "phone",
		InitialPrice: decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	return resp
}

func price(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func TestCounterThenAcceptResolvesToCounter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, 8000)
	assert.Equal(t, "pending", created.Status)
	assert.Nil(t, created.CounterOffer)
	require.NotEmpty(t, created.Messages)
	assert.Equal(t, "offered ₹8000", created.Messages[0].Message)

	countered, err := f.svc.ApplyAction(ctx, seller, created.ID, &ActionRequest{Action: "counter", CounterOffer: price(9000)})
	require.NoError(t, err)
	assert.Equal(t, "countered", countered.Status)

	resolved, err := f.pricing.ResolvePrice(ctx, "phone", customer.ID)
	require.NoError(t, err)
	assert.Nil(t, resolved, "no price before acceptance")

	accepted, err := f.svc.ApplyAction(ctx, customer, created.ID, &ActionRequest{Action: "accept"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", accepted.Status)
	require.NotNil(t, accepted.ResolvedPrice)

	resolved, err = f.pricing.ResolvePrice(ctx, "phone", customer.ID)
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.True(t, resolved.Price.Equal(decimal.NewFromInt(9000)))
}

func TestRejectFreezesNegotiation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created := f.create(t, 7000)
	rejected, err := f.svc.ApplyAction(ctx, seller, created.ID, &ActionRequest{Action: "reject", Message: "not for that price"})
	require.NoError(t, err)
	assert.Equal(t, "rejected", rejected.Status)

	for _, u := range []domain.User{customer, seller} {
		_, err := f.svc.ApplyAction(ctx, u, created.ID, &ActionRequest{Action: "accept"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	}
	_, err = f.svc.SendMessage(ctx, customer, created.ID, "please reconsider")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	resolved, err := f.pricing.ResolvePrice(ctx, "phone", customer.ID)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestSellerCannotNegotiateOwnProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateNegotiation(ctx, seller, &CreateNegotiationRequest{ProductID: "phone", InitialPrice: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// same id, but authenticated with the customer role
	_, err = f.svc.CreateNegotiation(ctx, domain.Customer{ID: seller.ID}, &CreateNegotiationRequest{ProductID: "phone", InitialPrice: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	list, err := f.repo.ListByProduct(ctx, "phone")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.outbox.All())
}

func TestCreateNegotiationChecksProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		productID string
		price     decimal.Decimal
		want      error
	}{
		{"unknown product", "nope", decimal.NewFromInt(10), domain.ErrNotFound},
		{"not negotiable", "fixed", decimal.NewFromInt(10), domain.ErrValidation},
		{"out of stock", "sold-out", decimal.NewFromInt(10), domain.ErrValidation},
		{"zero price", "phone", decimal.Zero, domain.ErrValidation},
		{"missing product", "", decimal.NewFromInt(10), domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateNegotiation(ctx, customer, &CreateNegotiationRequest{ProductID: tt.productID, InitialPrice: tt.price})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateWritesEvent(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 8000)

	events := f.outbox.All()
	require.Len(t, events, 1)
	assert.Equal(t, created.ID, events[0].Key)
	assert.Equal(t, domain.EventNegotiationCreated, events[0].MessageType)

	var ev domain.NegotiationEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &ev))
	assert.Equal(t, "pending", ev.Status)
	assert.Equal(t, seller.ID, ev.SellerID)
	assert.True(t, ev.InitialPrice.Equal(decimal.NewFromInt(8000)))
}

func TestSecondOpenNegotiationIsRejected(t *testing.T) {
	f := newFixture(t)
	f.create(t, 8000)

	_, err := f.svc.CreateNegotiation(context.Background(), customer, &CreateNegotiationRequest{ProductID: "phone", InitialPrice: decimal.NewFromInt(8500)})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestPartiesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 8000)

	_, err := f.svc.GetNegotiation(ctx, stranger, created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ListMessages(ctx, stranger, created.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.svc.ApplyAction(ctx, stranger, created.ID, &ActionRequest{Action: "reject"})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.svc.GetNegotiation(ctx, seller, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = f.svc.GetNegotiation(ctx, customer, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCustomerCannotAcceptOwnOffer(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 8000)

	_, err := f.svc.ApplyAction(context.Background(), customer, created.ID, &ActionRequest{Action: "accept"})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestUnknownActionIsValidationError(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 8000)

	_, err := f.svc.ApplyAction(context.Background(), seller, created.ID, &ActionRequest{Action: "withdraw"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMessagesKeepOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 8000)

	_, err := f.svc.SendMessage(ctx, seller, created.ID, "is it for a gift?")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, customer, created.ID, "yes")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(ctx, customer, created.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrValidation)

	messages, err := f.svc.ListMessages(ctx, seller, created.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "is it for a gift?", messages[1].Message)
	assert.Equal(t, "yes", messages[2].Message)
	assert.Less(t, messages[1].Seq, messages[2].Seq)

	got, err := f.svc.GetNegotiation(ctx, customer, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Version, got.Version)
	assert.Len(t, f.outbox.All(), 1, "messages do not emit events")
}

func TestListMineAndForProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, 8000)

	mine, err := f.svc.ListMine(ctx, customer, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	asSeller, err := f.svc.ListMine(ctx, seller, "")
	require.NoError(t, err)
	assert.Len(t, asSeller, 1)

	empty, err := f.svc.ListMine(ctx, customer, "seller")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = f.svc.ListMine(ctx, customer, "admin")
	assert.ErrorIs(t, err, domain.ErrValidation)

	byProduct, err := f.svc.ListForProduct(ctx, seller, "phone")
	require.NoError(t, err)
	assert.Len(t, byProduct, 1)

	_, err = f.svc.ListForProduct(ctx, customer, "phone")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// racingRepository lets another writer win between the service's read and its write.
type racingRepository struct {
	negotiation_repo.NegotiationRepository
	race func(id string)
}

func (r *racingRepository) Update(ctx context.Context, id string, patch negotiation_repo.Patch) (*domain.Negotiation, error) {
	if r.race != nil {
		race := r.race
		r.race = nil
		race(id)
	}
	return r.NegotiationRepository.Update(ctx, id, patch)
}

func TestLostRaceReportsCurrentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 8000)

	racing := &racingRepository{NegotiationRepository: f.repo}
	racing.race = func(id string) {
		n, err := f.repo.GetByID(ctx, id)
		require.NoError(t, err)
		_, err = f.repo.Update(ctx, id, negotiation_repo.Patch{ExpectedVersion: n.Version, Status: domain.NegotiationStatusRejected})
		require.NoError(t, err)
	}
	svc := NewNegotiationService(racing, product_memory.NewProductRepository(
		domain.Product{ID: "phone", SellerID: seller.ID, Price: decimal.NewFromInt(10000), Quantity: 5, Negotiable: true},
	), "", zaptest.NewLogger(t))

	_, err := svc.ApplyAction(ctx, seller, created.ID, &ActionRequest{Action: "accept"})
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var ae *domain.ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, domain.NegotiationStatusRejected, ae.Status)
}

func TestTimestampsComeFromServiceClock(t *testing.T) {
	f := newFixture(t)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.(*negotiationService).now = func() time.Time { return fixed }

	created := f.create(t, 8000)
	assert.Equal(t, fixed, created.CreatedAt)
	assert.Equal(t, fixed, created.Messages[0].Timestamp)

	later := fixed.Add(time.Hour)
	f.svc.(*negotiationService).now = func() time.Time { return later }
	countered, err := f.svc.ApplyAction(context.Background(), seller, created.ID, &ActionRequest{Action: "counter", CounterOffer: price(9000)})
	require.NoError(t, err)
	assert.Equal(t, later, countered.UpdatedAt)
	assert.Equal(t, later, countered.Messages[len(countered.Messages)-1].Timestamp)

	latest := later.Add(time.Minute)
	f.svc.(*negotiationService).now = func() time.Time { return latest }
	chatted, err := f.svc.SendMessage(context.Background(), customer, created.ID, "let me think")
	require.NoError(t, err)
	assert.Equal(t, latest, chatted.UpdatedAt)
	assert.Equal(t, countered.Version, chatted.Version)
}

func TestRejectedActionCarriesCurrentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, 8000)
	_, err := f.svc.ApplyAction(ctx, seller, created.ID, &ActionRequest{Action: "counter", CounterOffer: price(9000)})
	require.NoError(t, err)

	zero := decimal.Zero
	fractional := decimal.RequireFromString("9000.005")
	tests := []struct {
		name   string
		caller domain.User
		req    *ActionRequest
		kind   error
	}{
		{"counter without price", seller, &ActionRequest{Action: "counter"}, domain.ErrValidation},
		{"counter of zero", seller, &ActionRequest{Action: "counter", CounterOffer: &zero}, domain.ErrValidation},
		{"counter with three decimals", seller, &ActionRequest{Action: "counter", CounterOffer: &fractional}, domain.ErrValidation},
		{"blank message", customer, &ActionRequest{Action: "message", Message: "  "}, domain.ErrValidation},
		{"unknown action", customer, &ActionRequest{Action: "withdraw"}, domain.ErrValidation},
		{"customer counter", customer, &ActionRequest{Action: "counter", CounterOffer: price(8500)}, domain.ErrForbidden},
		{"seller accepts own counter", seller, &ActionRequest{Action: "accept"}, domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.ApplyAction(ctx, tt.caller, created.ID, tt.req)
			require.ErrorIs(t, err, tt.kind)

			var ae *domain.ActionError
			require.True(t, errors.As(err, &ae))
			assert.Equal(t, domain.NegotiationStatusCountered, ae.Status)
		})
	}

	_, err = f.svc.ApplyAction(ctx, stranger, created.ID, &ActionRequest{Action: "counter"})
	require.ErrorIs(t, err, domain.ErrForbidden)
	var ae *domain.ActionError
	require.True(t, errors.As(err, &ae))
	assert.Empty(t, ae.Status)
}
