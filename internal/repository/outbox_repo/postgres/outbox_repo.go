package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"negotiations/internal/domain"
	"negotiations/internal/repository/outbox_repo"
)

type pgOutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOutboxRepository(db *sql.DB, l *zap.Logger) outbox_repo.OutboxRepository {
	return &pgOutboxRepository{db: db, logger: l}
}

// CreateMessageTx inserts msg using q, so callers can write it in their own transaction.
func CreateMessageTx(ctx context.Context, q domain.Querier, msg *domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, aggregate_id, aggregate_type, message_type, topic, message_key, payload, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.ExecContext(ctx, query,
		msg.ID,
		msg.AggregateID,
		msg.AggregateType,
		msg.MessageType,
		msg.Topic,
		msg.Key,
		msg.Payload,
		msg.Status,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

func (r *pgOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	query := `
		SELECT id, aggregate_id, aggregate_type, message_type, topic, message_key, payload, status, created_at, sent_at
		FROM outbox_messages
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, domain.OutboxStatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to query pending outbox messages", zap.Error(err))
		return nil, fmt.Errorf("failed to get pending outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []domain.OutboxMessage
	for rows.Next() {
		var msg domain.OutboxMessage
		var sentAt sql.NullTime
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateID,
			&msg.AggregateType,
			&msg.MessageType,
			&msg.Topic,
			&msg.Key,
			&msg.Payload,
			&msg.Status,
			&msg.CreatedAt,
			&sentAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		if sentAt.Valid {
			msg.SentAt = &sentAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}
	return messages, nil
}

func (r *pgOutboxRepository) MarkMessagesAsSent(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox_messages SET status = $1, sent_at = $2 WHERE id = ANY($3)`
	if _, err := r.db.ExecContext(ctx, query, domain.OutboxStatusSent, time.Now(), pq.Array(ids)); err != nil {
		r.logger.Error("Failed to mark outbox messages as sent", zap.Strings("ids", ids), zap.Error(err))
		return fmt.Errorf("failed to mark outbox messages as sent: %w", err)
	}
	r.logger.Debug("Outbox messages marked as sent", zap.Int("count", len(ids)))
	return nil
}

func (r *pgOutboxRepository) MarkMessagesAsFailed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE outbox_messages SET status = $1, sent_at = NULL WHERE id = ANY($2)`
	if _, err := r.db.ExecContext(ctx, query, domain.OutboxStatusFailed, pq.Array(ids)); err != nil {
		r.logger.Error("Failed to mark outbox messages as failed", zap.Strings("ids", ids), zap.Error(err))
		return fmt.Errorf("failed to mark outbox messages as failed: %w", err)
	}
	return nil
}
