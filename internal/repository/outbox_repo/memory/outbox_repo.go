package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"negotiations/internal/domain"
	"negotiations/internal/repository/outbox_repo"
)

// OutboxRepository keeps outbox messages in process memory. Negotiation writes add to it
// through Add while holding their own lock, which keeps record and event in step.
type OutboxRepository struct {
	mu       sync.Mutex
	messages map[string]domain.OutboxMessage
}

var _ outbox_repo.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{messages: make(map[string]domain.OutboxMessage)}
}

func (r *OutboxRepository) Add(msg domain.OutboxMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg.Payload = append([]byte(nil), msg.Payload...)
	r.messages[msg.ID] = msg
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []domain.OutboxMessage
	for _, m := range r.messages {
		if m.Status == domain.OutboxStatusPending {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *OutboxRepository) MarkMessagesAsSent(ctx context.Context, ids []string) error {
	return r.setStatus(ctx, ids, domain.OutboxStatusSent)
}

func (r *OutboxRepository) MarkMessagesAsFailed(ctx context.Context, ids []string) error {
	return r.setStatus(ctx, ids, domain.OutboxStatusFailed)
}

func (r *OutboxRepository) setStatus(ctx context.Context, ids []string, status domain.OutboxMessageStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		m, ok := r.messages[id]
		if !ok {
			continue
		}
		m.Status = status
		if status == domain.OutboxStatusSent {
			sentAt := now
			m.SentAt = &sentAt
		} else {
			m.SentAt = nil
		}
		r.messages[id] = m
	}
	return nil
}

// All returns every stored message regardless of status, oldest first.
func (r *OutboxRepository) All() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.OutboxMessage, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
