package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"negotiations/internal/domain"
	"negotiations/internal/repository/negotiation_repo"
)

// OutboxWriter receives events written together with a negotiation change.
type OutboxWriter interface {
	Add(msg domain.OutboxMessage)
}

type memNegotiationRepository struct {
	mu           sync.RWMutex
	negotiations map[string]*domain.Negotiation
	seq          int64
	outbox       OutboxWriter
	now          func() time.Time
	logger       *zap.Logger
}

// NewNegotiationRepository returns a store backed by process memory. outbox may be nil,
// in which case events are dropped.
func NewNegotiationRepository(outbox OutboxWriter, l *zap.Logger) negotiation_repo.NegotiationRepository {
	return &memNegotiationRepository{
		negotiations: make(map[string]*domain.Negotiation),
		outbox:       outbox,
		now:          time.Now,
		logger:       l,
	}
}

func (r *memNegotiationRepository) Create(ctx context.Context, n *domain.Negotiation, msg *domain.OutboxMessage) (*domain.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !n.InitialPrice.IsPositive() {
		return nil, domain.Validationf("initial price must be positive")
	}
	if n.CustomerID == n.SellerID {
		return nil, domain.Validationf("customer and seller must differ")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if _, exists := r.negotiations[n.ID]; exists {
		return nil, fmt.Errorf("negotiation %s already exists", n.ID)
	}
	for _, existing := range r.negotiations {
		if existing.ProductID == n.ProductID && existing.CustomerID == n.CustomerID && existing.Status.IsOpen() {
			return nil, negotiation_repo.ErrOpenNegotiationExists
		}
	}

	stored := n.Clone()
	for i := range stored.Messages {
		r.seq++
		stored.Messages[i].Seq = r.seq
	}
	r.negotiations[stored.ID] = stored
	r.emit(msg)

	r.logger.Debug("Negotiation stored", zap.String("negotiation_id", stored.ID))
	return stored.Clone(), nil
}

func (r *memNegotiationRepository) GetByID(ctx context.Context, id string) (*domain.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.negotiations[id]
	if !ok {
		return nil, fmt.Errorf("negotiation %s: %w", id, domain.ErrNotFound)
	}
	return n.Clone(), nil
}

func (r *memNegotiationRepository) ListByProduct(ctx context.Context, productID string) ([]*domain.Negotiation, error) {
	return r.list(ctx, func(n *domain.Negotiation) bool { return n.ProductID == productID })
}

func (r *memNegotiationRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Negotiation, error) {
	return r.list(ctx, func(n *domain.Negotiation) bool { return n.CustomerID == customerID })
}

func (r *memNegotiationRepository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Negotiation, error) {
	return r.list(ctx, func(n *domain.Negotiation) bool { return n.SellerID == sellerID })
}

func (r *memNegotiationRepository) list(ctx context.Context, match func(*domain.Negotiation) bool) ([]*domain.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Negotiation
	for _, n := range r.negotiations {
		if match(n) {
			out = append(out, n.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *memNegotiationRepository) Update(ctx context.Context, id string, patch negotiation_repo.Patch) (*domain.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.negotiations[id]
	if !ok {
		return nil, fmt.Errorf("negotiation %s: %w", id, domain.ErrNotFound)
	}
	if n.Version != patch.ExpectedVersion {
		return nil, negotiation_repo.ErrVersionConflict
	}

	if patch.Status != "" {
		n.Status = patch.Status
	}
	switch {
	case patch.ClearCounter:
		n.CounterOffer = decimal.NullDecimal{}
	case patch.CounterOffer.Valid:
		n.CounterOffer = patch.CounterOffer
	}
	r.appendLocked(n, patch.Messages...)
	n.Version++
	n.UpdatedAt = r.stamp(patch.UpdatedAt)
	r.emit(patch.Outbox)

	r.logger.Debug("Negotiation updated",
		zap.String("negotiation_id", id),
		zap.String("status", string(n.Status)),
		zap.Int64("version", n.Version))
	return n.Clone(), nil
}

func (r *memNegotiationRepository) AppendMessage(ctx context.Context, id string, msg domain.Message) (*domain.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.negotiations[id]
	if !ok {
		return nil, fmt.Errorf("negotiation %s: %w", id, domain.ErrNotFound)
	}
	if !n.Status.IsOpen() {
		return nil, domain.InvalidTransitionf(n.Status, "negotiation is already %s", n.Status)
	}
	r.appendLocked(n, msg)
	n.UpdatedAt = r.stamp(msg.SentAt)
	return n.Clone(), nil
}

func (r *memNegotiationRepository) ListMessages(ctx context.Context, id string) ([]domain.Message, error) {
	n, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return n.Messages, nil
}

func (r *memNegotiationRepository) FindLatestAccepted(ctx context.Context, productID, customerID string) (*domain.Negotiation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *domain.Negotiation
	for _, n := range r.negotiations {
		if n.ProductID != productID || n.CustomerID != customerID || n.Status != domain.NegotiationStatusAccepted {
			continue
		}
		if latest == nil || n.UpdatedAt.After(latest.UpdatedAt) ||
			(n.UpdatedAt.Equal(latest.UpdatedAt) && n.Version > latest.Version) {
			latest = n
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("accepted negotiation for product %s: %w", productID, domain.ErrNotFound)
	}
	return latest.Clone(), nil
}

func (r *memNegotiationRepository) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return r.now()
	}
	return at
}

func (r *memNegotiationRepository) appendLocked(n *domain.Negotiation, msgs ...domain.Message) {
	for _, m := range msgs {
		r.seq++
		m.Seq = r.seq
		n.Messages = append(n.Messages, m)
	}
}

func (r *memNegotiationRepository) emit(msg *domain.OutboxMessage) {
	if msg == nil || r.outbox == nil {
		return
	}
	r.outbox.Add(*msg)
}
