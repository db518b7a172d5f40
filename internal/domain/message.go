package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

const MaxMessageLength = 2000

type MessageKind string

const (
	MessageKindText    MessageKind = "text"
	MessageKindOffer   MessageKind = "offer"
	MessageKindCounter MessageKind = "counter"
	MessageKindAccept  MessageKind = "accept"
	MessageKindReject  MessageKind = "reject"
)

// Message is one entry of a negotiation's log. Seq is assigned by the store on append
// and is the only ordering that counts.
type Message struct {
	ID       string
	Seq      int64
	AuthorID string
	Kind     MessageKind
	Text     string
	SentAt   time.Time
}

func NewMessage(authorID string, kind MessageKind, text string, now time.Time) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, Validationf("message text must not be blank")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return Message{}, Validationf("message text exceeds %d characters", MaxMessageLength)
	}
	return Message{
		ID:       ulid.Make().String(),
		AuthorID: authorID,
		Kind:     kind,
		Text:     text,
		SentAt:   now,
	}, nil
}
