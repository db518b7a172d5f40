package negotiations

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"negotiations/internal/domain"
	"negotiations/internal/repository/negotiation_repo"
	"negotiations/internal/util"
)

// ProductCatalog is the read side of the product catalog.
type ProductCatalog interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
}

type NegotiationService interface {
	CreateNegotiation(ctx context.Context, caller domain.User, req *CreateNegotiationRequest) (*NegotiationResponse, error)
	GetNegotiation(ctx context.Context, caller domain.User, id string) (*NegotiationResponse, error)
	ApplyAction(ctx context.Context, caller domain.User, id string, req *ActionRequest) (*NegotiationResponse, error)
	SendMessage(ctx context.Context, caller domain.User, id string, text string) (*NegotiationResponse, error)
	ListMine(ctx context.Context, caller domain.User, role string) ([]*NegotiationResponse, error)
	ListForProduct(ctx context.Context, caller domain.User, productID string) ([]*NegotiationResponse, error)
	ListMessages(ctx context.Context, caller domain.User, id string) ([]MessageResponse, error)
}

type negotiationService struct {
	repo        negotiation_repo.NegotiationRepository
	catalog     ProductCatalog
	eventsTopic string
	now         func() time.Time
	logger      *zap.Logger
}

// NewNegotiationService wires the service. With an empty eventsTopic no outbox events are written.
func NewNegotiationService(
	repo negotiation_repo.NegotiationRepository,
	catalog ProductCatalog,
	eventsTopic string,
	logger *zap.Logger,
) NegotiationService {
	return &negotiationService{
		repo:        repo,
		catalog:     catalog,
		eventsTopic: eventsTopic,
		now:         time.Now,
		logger:      logger,
	}
}

func (s *negotiationService) CreateNegotiation(ctx context.Context, caller domain.User, req *CreateNegotiationRequest) (*NegotiationResponse, error) {
	customer, ok := caller.(domain.Customer)
	if !ok {
		return nil, domain.Forbiddenf("only customers can start a negotiation")
	}
	if req.ProductID == "" {
		return nil, domain.Validationf("productId is required")
	}

	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("product %s not found", req.ProductID)
		}
		s.logger.Error("Failed to look up product", zap.String("product_id", req.ProductID), zap.Error(err))
		return nil, domain.ErrInternal
	}
	if product.SellerID == customer.ID {
		return nil, domain.Forbiddenf("a seller cannot negotiate on their own product")
	}
	if !product.Negotiable {
		return nil, domain.Validationf("product %s is not open to negotiation", product.ID)
	}
	if !product.InStock() {
		return nil, domain.Validationf("product %s is out of stock", product.ID)
	}

	now := s.now()
	n, err := domain.NewNegotiation(util.GenerateUUID(), product.ID, customer.ID, product.SellerID, req.InitialPrice, req.Message, now)
	if err != nil {
		return nil, err
	}

	event, err := s.newEvent(n, domain.EventNegotiationCreated, customer.ID, now)
	if err != nil {
		return nil, err
	}
	stored, err := s.repo.Create(ctx, n, event)
	if err != nil {
		return nil, s.mapRepoError(err, n.ID)
	}

	s.logger.Info("Negotiation created",
		zap.String("negotiation_id", stored.ID),
		zap.String("product_id", stored.ProductID),
		zap.String("customer_id", stored.CustomerID),
		zap.String("initial_price", stored.InitialPrice.String()))
	return MapNegotiationToResponse(stored), nil
}

func (s *negotiationService) GetNegotiation(ctx context.Context, caller domain.User, id string) (*NegotiationResponse, error) {
	n, err := s.getForParty(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return MapNegotiationToResponse(n), nil
}

func (s *negotiationService) ApplyAction(ctx context.Context, caller domain.User, id string, req *ActionRequest) (*NegotiationResponse, error) {
	n, err := s.getForParty(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	action, err := domain.ParseAction(req.Action)
	if err != nil {
		return nil, domain.WithStatus(err, n.Status)
	}

	in := domain.ActionInput{Action: action, ActorID: caller.UserID(), Note: req.Message}
	if req.CounterOffer != nil {
		in.CounterOffer = decimal.NewNullDecimal(*req.CounterOffer)
	}

	now := s.now()
	tr, err := n.Decide(in, now)
	if err != nil {
		s.logger.Warn("Negotiation action rejected",
			zap.String("negotiation_id", id),
			zap.String("action", string(action)),
			zap.String("user_id", caller.UserID()),
			zap.String("status", string(n.Status)),
			zap.Error(err))
		return nil, err
	}

	if !tr.ChangesState() {
		updated, err := s.repo.AppendMessage(ctx, id, tr.Messages[0])
		if err != nil {
			return nil, s.mapRepoError(err, id)
		}
		return MapNegotiationToResponse(updated), nil
	}

	next := n.Clone()
	next.Apply(tr, now)
	event, err := s.newEvent(next, domain.EventTypeFor(next.Status), caller.UserID(), now)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, negotiation_repo.Patch{
		ExpectedVersion: n.Version,
		Status:          tr.To,
		CounterOffer:    tr.CounterOffer,
		Messages:        tr.Messages,
		UpdatedAt:       now,
		Outbox:          event,
	})
	if err != nil {
		if errors.Is(err, negotiation_repo.ErrVersionConflict) {
			return nil, s.conflict(ctx, id, action)
		}
		return nil, s.mapRepoError(err, id)
	}

	s.logger.Info("Negotiation status changed",
		zap.String("negotiation_id", id),
		zap.String("action", string(action)),
		zap.String("from", string(tr.From)),
		zap.String("to", string(updated.Status)),
		zap.String("user_id", caller.UserID()))
	return MapNegotiationToResponse(updated), nil
}

func (s *negotiationService) SendMessage(ctx context.Context, caller domain.User, id string, text string) (*NegotiationResponse, error) {
	return s.ApplyAction(ctx, caller, id, &ActionRequest{Action: string(domain.ActionMessage), Message: text})
}

func (s *negotiationService) ListMine(ctx context.Context, caller domain.User, role string) ([]*NegotiationResponse, error) {
	r := caller.Role()
	if role != "" {
		parsed, err := domain.ParseRole(role)
		if err != nil {
			return nil, domain.Validationf("role must be customer or seller")
		}
		r = parsed
	}

	var list []*domain.Negotiation
	var err error
	switch r {
	case domain.RoleSeller:
		list, err = s.repo.ListBySeller(ctx, caller.UserID())
	default:
		list, err = s.repo.ListByCustomer(ctx, caller.UserID())
	}
	if err != nil {
		return nil, s.mapRepoError(err, "")
	}
	return mapNegotiationsToResponse(list), nil
}

func (s *negotiationService) ListForProduct(ctx context.Context, caller domain.User, productID string) ([]*NegotiationResponse, error) {
	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.NotFoundf("product %s not found", productID)
		}
		s.logger.Error("Failed to look up product", zap.String("product_id", productID), zap.Error(err))
		return nil, domain.ErrInternal
	}
	if product.SellerID != caller.UserID() {
		return nil, domain.Forbiddenf("only the seller of product %s can list its negotiations", productID)
	}

	list, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, s.mapRepoError(err, "")
	}
	return mapNegotiationsToResponse(list), nil
}

func (s *negotiationService) ListMessages(ctx context.Context, caller domain.User, id string) ([]MessageResponse, error) {
	n, err := s.getForParty(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	return mapMessagesToResponse(n.Messages), nil
}

func (s *negotiationService) getForParty(ctx context.Context, caller domain.User, id string) (*domain.Negotiation, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapRepoError(err, id)
	}
	if n.PartyOf(caller.UserID()) == domain.PartyNone {
		return nil, domain.Forbiddenf("user %s is not a party to negotiation %s", caller.UserID(), id)
	}
	return n, nil
}

// conflict re-reads the record after a lost compare-and-swap so the caller sees the
// status that won.
func (s *negotiationService) conflict(ctx context.Context, id string, action domain.Action) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return s.mapRepoError(err, id)
	}
	s.logger.Warn("Negotiation changed concurrently",
		zap.String("negotiation_id", id),
		zap.String("action", string(action)),
		zap.String("status", string(current.Status)))
	return domain.InvalidTransitionf(current.Status, "negotiation was changed concurrently and is now %s", current.Status)
}

func (s *negotiationService) newEvent(n *domain.Negotiation, eventType, actorID string, at time.Time) (*domain.OutboxMessage, error) {
	if s.eventsTopic == "" {
		return nil, nil
	}
	ev := domain.NewNegotiationEvent(util.GenerateUUID(), eventType, n, actorID, at)
	msg, err := domain.NewOutboxMessage(util.GenerateUUID(), s.eventsTopic, ev)
	if err != nil {
		s.logger.Error("Failed to build negotiation event", zap.String("negotiation_id", n.ID), zap.Error(err))
		return nil, domain.ErrInternal
	}
	return msg, nil
}

func (s *negotiationService) mapRepoError(err error, id string) error {
	var ae *domain.ActionError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, domain.ErrNotFound):
		return domain.NotFoundf("negotiation %s not found", id)
	case errors.Is(err, negotiation_repo.ErrOpenNegotiationExists):
		return &domain.ActionError{Kind: domain.ErrInvalidTransition, Reason: "an open negotiation for this product already exists"}
	case errors.Is(err, negotiation_repo.ErrVersionConflict):
		return domain.InvalidTransitionf("", "negotiation was changed concurrently")
	default:
		s.logger.Error("Negotiation repository failure", zap.String("negotiation_id", id), zap.Error(err))
		return domain.ErrInternal
	}
}
