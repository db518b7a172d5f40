package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type NegotiationStatus string

const (
	NegotiationStatusPending   NegotiationStatus = "pending"
	NegotiationStatusCountered NegotiationStatus = "countered"
	NegotiationStatusAccepted  NegotiationStatus = "accepted"
	NegotiationStatusRejected  NegotiationStatus = "rejected"
)

var transitions = map[NegotiationStatus][]NegotiationStatus{
	NegotiationStatusPending:   {NegotiationStatusCountered, NegotiationStatusAccepted, NegotiationStatusRejected},
	NegotiationStatusCountered: {NegotiationStatusCountered, NegotiationStatusAccepted, NegotiationStatusRejected},
}

func ParseNegotiationStatus(s string) (NegotiationStatus, error) {
	switch st := NegotiationStatus(s); st {
	case NegotiationStatusPending, NegotiationStatusCountered, NegotiationStatusAccepted, NegotiationStatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("unknown negotiation status %q", s)
	}
}

func (s NegotiationStatus) IsOpen() bool {
	return s == NegotiationStatusPending || s == NegotiationStatusCountered
}

func (s NegotiationStatus) IsTerminal() bool {
	return s == NegotiationStatusAccepted || s == NegotiationStatusRejected
}

func CanTransition(from, to NegotiationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Party string

const (
	PartyNone     Party = ""
	PartyCustomer Party = "customer"
	PartySeller   Party = "seller"
)

type Action string

const (
	ActionAccept  Action = "accept"
	ActionReject  Action = "reject"
	ActionCounter Action = "counter"
	ActionMessage Action = "message"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionReject, ActionCounter, ActionMessage:
		return a, nil
	default:
		return "", Validationf("unknown action %q", s)
	}
}

type Negotiation struct {
	ID           string
	ProductID    string
	CustomerID   string
	SellerID     string
	InitialPrice decimal.Decimal
	CounterOffer decimal.NullDecimal
	Status       NegotiationStatus
	Messages     []Message
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewNegotiation builds a pending negotiation whose log starts with the customer's offer.
// A non-blank opening note is logged right after the offer line.
func NewNegotiation(id, productID, customerID, sellerID string, initialPrice decimal.Decimal, opening string, now time.Time) (*Negotiation, error) {
	if productID == "" || customerID == "" || sellerID == "" {
		return nil, Validationf("product, customer and seller are required")
	}
	if customerID == sellerID {
		return nil, Validationf("a seller cannot negotiate on their own product")
	}
	if err := ValidatePrice(initialPrice); err != nil {
		return nil, err
	}

	n := &Negotiation{
		ID:           id,
		ProductID:    productID,
		CustomerID:   customerID,
		SellerID:     sellerID,
		InitialPrice: initialPrice,
		Status:       NegotiationStatusPending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	offer, err := NewMessage(customerID, MessageKindOffer, "offered "+FormatPrice(initialPrice), now)
	if err != nil {
		return nil, err
	}
	n.Messages = append(n.Messages, offer)

	if strings.TrimSpace(opening) != "" {
		note, err := NewMessage(customerID, MessageKindText, opening, now)
		if err != nil {
			return nil, err
		}
		n.Messages = append(n.Messages, note)
	}
	return n, nil
}

func (n *Negotiation) PartyOf(userID string) Party {
	switch userID {
	case "":
		return PartyNone
	case n.CustomerID:
		return PartyCustomer
	case n.SellerID:
		return PartySeller
	default:
		return PartyNone
	}
}

// LastOfferBy reports which party made the offer currently on the table.
func (n *Negotiation) LastOfferBy() Party {
	if n.Status == NegotiationStatusCountered {
		return PartySeller
	}
	return PartyCustomer
}

// ResolvedPrice is defined only for accepted negotiations.
func (n *Negotiation) ResolvedPrice() (decimal.Decimal, bool) {
	if n.Status != NegotiationStatusAccepted {
		return decimal.Decimal{}, false
	}
	if n.CounterOffer.Valid {
		return n.CounterOffer.Decimal, true
	}
	return n.InitialPrice, true
}

// CurrentPrice is the price on the table: the standing counter, or the initial offer.
func (n *Negotiation) CurrentPrice() decimal.Decimal {
	if n.CounterOffer.Valid {
		return n.CounterOffer.Decimal
	}
	return n.InitialPrice
}

type ActionInput struct {
	Action       Action
	ActorID      string
	CounterOffer decimal.NullDecimal
	Note         string
}

// Transition is the outcome of a validated action. It is applied by the store, never in place.
type Transition struct {
	Action       Action
	Actor        Party
	From         NegotiationStatus
	To           NegotiationStatus
	CounterOffer decimal.NullDecimal
	Messages     []Message
}

func (t *Transition) ChangesState() bool {
	return t.Action != ActionMessage
}

// Decide validates an action against the current record without mutating it. Every error
// returned to a party carries the record's current status.
func (n *Negotiation) Decide(in ActionInput, now time.Time) (*Transition, error) {
	actor := n.PartyOf(in.ActorID)
	if actor == PartyNone {
		return nil, Forbiddenf("user %s is not a party to negotiation %s", in.ActorID, n.ID)
	}
	t, err := n.decide(actor, in, now)
	if err != nil {
		return nil, WithStatus(err, n.Status)
	}
	return t, nil
}

func (n *Negotiation) decide(actor Party, in ActionInput, now time.Time) (*Transition, error) {
	if n.Status.IsTerminal() {
		return nil, InvalidTransitionf(n.Status, "negotiation is already %s", n.Status)
	}

	t := &Transition{Action: in.Action, Actor: actor, From: n.Status, To: n.Status}

	var audit string
	var kind MessageKind
	switch in.Action {
	case ActionAccept:
		if actor == n.LastOfferBy() {
			return nil, &ActionError{Kind: ErrForbidden, Reason: "cannot accept your own offer", Status: n.Status}
		}
		t.To = NegotiationStatusAccepted
		kind, audit = MessageKindAccept, "accepted"
	case ActionReject:
		t.To = NegotiationStatusRejected
		kind, audit = MessageKindReject, "rejected"
	case ActionCounter:
		if actor != PartySeller {
			return nil, &ActionError{Kind: ErrForbidden, Reason: "only the seller can make a counter offer", Status: n.Status}
		}
		if !in.CounterOffer.Valid {
			return nil, Validationf("counter offer is required")
		}
		if err := ValidatePrice(in.CounterOffer.Decimal); err != nil {
			return nil, err
		}
		t.To = NegotiationStatusCountered
		t.CounterOffer = in.CounterOffer
		kind, audit = MessageKindCounter, "countered with "+FormatPrice(in.CounterOffer.Decimal)
	case ActionMessage:
		msg, err := NewMessage(in.ActorID, MessageKindText, in.Note, now)
		if err != nil {
			return nil, err
		}
		t.Messages = []Message{msg}
		return t, nil
	default:
		return nil, Validationf("unknown action %q", in.Action)
	}

	if !CanTransition(t.From, t.To) {
		return nil, InvalidTransitionf(n.Status, "cannot move from %s to %s", t.From, t.To)
	}

	auditMsg, err := NewMessage(in.ActorID, kind, audit, now)
	if err != nil {
		return nil, err
	}
	t.Messages = append(t.Messages, auditMsg)

	if strings.TrimSpace(in.Note) != "" {
		note, err := NewMessage(in.ActorID, MessageKindText, in.Note, now)
		if err != nil {
			return nil, err
		}
		t.Messages = append(t.Messages, note)
	}
	return t, nil
}

// Apply folds a decided transition into the record. Stores use it to compute the new state.
func (n *Negotiation) Apply(t *Transition, now time.Time) {
	if t.ChangesState() {
		n.Status = t.To
		if t.CounterOffer.Valid {
			n.CounterOffer = t.CounterOffer
		}
		n.Version++
	}
	n.Messages = append(n.Messages, t.Messages...)
	n.UpdatedAt = now
}

func (n *Negotiation) Clone() *Negotiation {
	c := *n
	c.Messages = append([]Message(nil), n.Messages...)
	return &c
}

func ValidatePrice(p decimal.Decimal) error {
	if !p.IsPositive() {
		return Validationf("price must be positive, got %s", p.String())
	}
	if !p.Equal(p.Round(2)) {
		return Validationf("price %s has more than two decimal places", p.String())
	}
	return nil
}

func FormatPrice(p decimal.Decimal) string {
	if p.IsInteger() {
		return "₹" + p.String()
	}
	return "₹" + p.StringFixed(2)
}
