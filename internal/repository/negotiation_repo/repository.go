package negotiation_repo

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"negotiations/internal/domain"
)

var (
	ErrVersionConflict       = errors.New("negotiation was modified concurrently")
	ErrOpenNegotiationExists = errors.New("an open negotiation already exists for this product and customer")
)

// Patch is a conditional update of a negotiation. It is applied only when the stored
// version still equals ExpectedVersion. A zero UpdatedAt means the store's clock.
type Patch struct {
	ExpectedVersion int64
	Status          domain.NegotiationStatus
	CounterOffer    decimal.NullDecimal
	ClearCounter    bool
	Messages        []domain.Message
	Outbox          *domain.OutboxMessage
	UpdatedAt       time.Time
}

type NegotiationRepository interface {
	Create(ctx context.Context, n *domain.Negotiation, msg *domain.OutboxMessage) (*domain.Negotiation, error)
	GetByID(ctx context.Context, id string) (*domain.Negotiation, error)
	ListByProduct(ctx context.Context, productID string) ([]*domain.Negotiation, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Negotiation, error)
	ListBySeller(ctx context.Context, sellerID string) ([]*domain.Negotiation, error)
	Update(ctx context.Context, id string, patch Patch) (*domain.Negotiation, error)
	// AppendMessage stamps updated_at with msg.SentAt and leaves the version alone.
	AppendMessage(ctx context.Context, id string, msg domain.Message) (*domain.Negotiation, error)
	ListMessages(ctx context.Context, id string) ([]domain.Message, error)
	FindLatestAccepted(ctx context.Context, productID, customerID string) (*domain.Negotiation, error)
}
