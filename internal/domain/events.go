package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const NegotiationAggregateType = "negotiation"

const (
	EventNegotiationCreated   = "negotiation.created"
	EventNegotiationCountered = "negotiation.countered"
	EventNegotiationAccepted  = "negotiation.accepted"
	EventNegotiationRejected  = "negotiation.rejected"
)

// NegotiationEvent - событие, публикуемое в negotiation_events при каждой смене состояния
type NegotiationEvent struct {
	EventID       string           `json:"event_id"`
	Type          string           `json:"type"`
	NegotiationID string           `json:"negotiation_id"`
	ProductID     string           `json:"product_id"`
	CustomerID    string           `json:"customer_id"`
	SellerID      string           `json:"seller_id"`
	Status        string           `json:"status"`
	InitialPrice  decimal.Decimal  `json:"initial_price"`
	CounterOffer  *decimal.Decimal `json:"counter_offer,omitempty"`
	ResolvedPrice *decimal.Decimal `json:"resolved_price,omitempty"`
	ActorID       string           `json:"actor_id"`
	OccurredAt    time.Time        `json:"occurred_at"`
}

// ProductEvent - событие каталога, из которого строится локальная копия товаров
type ProductEvent struct {
	Type       string          `json:"type"`
	ProductID  string          `json:"product_id"`
	SellerID   string          `json:"seller_id"`
	Price      decimal.Decimal `json:"price"`
	Quantity   int             `json:"quantity"`
	Negotiable bool            `json:"negotiable"`
	OccurredAt time.Time       `json:"occurred_at"`
}

const (
	ProductEventUpserted = "product.upserted"
	ProductEventDeleted  = "product.deleted"
)

// EventTypeFor maps the status a negotiation moved into to its event type.
func EventTypeFor(status NegotiationStatus) string {
	switch status {
	case NegotiationStatusCountered:
		return EventNegotiationCountered
	case NegotiationStatusAccepted:
		return EventNegotiationAccepted
	case NegotiationStatusRejected:
		return EventNegotiationRejected
	default:
		return EventNegotiationCreated
	}
}

func NewNegotiationEvent(eventID, eventType string, n *Negotiation, actorID string, at time.Time) NegotiationEvent {
	ev := NegotiationEvent{
		EventID:       eventID,
		Type:          eventType,
		NegotiationID: n.ID,
		ProductID:     n.ProductID,
		CustomerID:    n.CustomerID,
		SellerID:      n.SellerID,
		Status:        string(n.Status),
		InitialPrice:  n.InitialPrice,
		ActorID:       actorID,
		OccurredAt:    at,
	}
	if n.CounterOffer.Valid {
		c := n.CounterOffer.Decimal
		ev.CounterOffer = &c
	}
	if p, ok := n.ResolvedPrice(); ok {
		ev.ResolvedPrice = &p
	}
	return ev
}

func NewOutboxMessage(id, topic string, ev NegotiationEvent) (*OutboxMessage, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}
	return &OutboxMessage{
		ID:            id,
		AggregateID:   ev.NegotiationID,
		AggregateType: NegotiationAggregateType,
		MessageType:   ev.Type,
		Topic:         topic,
		Key:           ev.NegotiationID,
		Payload:       payload,
		Status:        OutboxStatusPending,
		CreatedAt:     ev.OccurredAt,
	}, nil
}
