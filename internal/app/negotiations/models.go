package negotiations

import (
	"time"

	"github.com/shopspring/decimal"

	"negotiations/internal/domain"
)

type CreateNegotiationRequest struct {
	ProductID    string          `json:"productId"`
	InitialPrice decimal.Decimal `json:"initialPrice"`
	Message      string          `json:"message"`
}

type ActionRequest struct {
	Action       string           `json:"action"`
	CounterOffer *decimal.Decimal `json:"counterOffer,omitempty"`
	Message      string           `json:"message,omitempty"`
}

type MessageRequest struct {
	Message string `json:"message"`
}

type MessageResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	AuthorID  string    `json:"authorId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type NegotiationResponse struct {
	ID            string            `json:"id"`
	ProductID     string            `json:"productId"`
	CustomerID    string            `json:"customerId"`
	SellerID      string            `json:"sellerId"`
	InitialPrice  decimal.Decimal   `json:"initialPrice"`
	CounterOffer  *decimal.Decimal  `json:"counterOffer,omitempty"`
	ResolvedPrice *decimal.Decimal  `json:"resolvedPrice,omitempty"`
	Status        string            `json:"status"`
	Version       int64             `json:"version"`
	Messages      []MessageResponse `json:"messages"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func MapNegotiationToResponse(n *domain.Negotiation) *NegotiationResponse {
	resp := &NegotiationResponse{
		ID:           n.ID,
		ProductID:    n.ProductID,
		CustomerID:   n.CustomerID,
		SellerID:     n.SellerID,
		InitialPrice: n.InitialPrice,
		Status:       string(n.Status),
		Version:      n.Version,
		Messages:     mapMessagesToResponse(n.Messages),
		CreatedAt:    n.CreatedAt,
		UpdatedAt:    n.UpdatedAt,
	}
	if n.CounterOffer.Valid {
		c := n.CounterOffer.Decimal
		resp.CounterOffer = &c
	}
	if p, ok := n.ResolvedPrice(); ok {
		resp.ResolvedPrice = &p
	}
	return resp
}

func mapNegotiationsToResponse(list []*domain.Negotiation) []*NegotiationResponse {
	responses := make([]*NegotiationResponse, len(list))
	for i, n := range list {
		responses[i] = MapNegotiationToResponse(n)
	}
	return responses
}

func mapMessagesToResponse(messages []domain.Message) []MessageResponse {
	out := make([]MessageResponse, len(messages))
	for i, m := range messages {
		out[i] = MessageResponse{
			ID:        m.ID,
			Seq:       m.Seq,
			AuthorID:  m.AuthorID,
			Kind:      string(m.Kind),
			Message:   m.Text,
			Timestamp: m.SentAt,
		}
	}
	return out
}
