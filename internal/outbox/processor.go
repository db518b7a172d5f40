package outbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	kafka_infra "negotiations/internal/infrastructure/kafka"
	"negotiations/internal/repository/outbox_repo"
)

// Processor relays pending outbox messages to Kafka. A message that fails to publish is
// marked FAILED and left for an operator; it is not retried.
type Processor struct {
	outboxRepo    outbox_repo.OutboxRepository
	kafkaProducer kafka_infra.Producer
	pollInterval  time.Duration
	pollTimeout   time.Duration
	batchSize     int
	logger        *zap.Logger
}

func NewProcessor(
	outboxRepo outbox_repo.OutboxRepository,
	kafkaProducer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	batchSize int,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		outboxRepo:    outboxRepo,
		kafkaProducer: kafkaProducer,
		pollInterval:  pollInterval,
		pollTimeout:   pollTimeout,
		batchSize:     batchSize,
		logger:        logger,
	}
}

// Start polls until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Info("Starting outbox processor...", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped.")
			return nil
		case <-ticker.C:
			p.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce publishes one batch and returns how many messages were sent.
func (p *Processor) ProcessOnce(ctx context.Context) int {
	queryCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	messages, err := p.outboxRepo.GetPendingMessages(queryCtx, p.batchSize)
	cancel()
	if err != nil {
		p.logger.Error("Failed to get pending outbox messages", zap.Error(err))
		return 0
	}
	if len(messages) == 0 {
		return 0
	}

	p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

	var sent, failed []string
	for _, msg := range messages {
		if err := p.kafkaProducer.Produce(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Error("Failed to send outbox message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			failed = append(failed, msg.ID)
			continue
		}
		sent = append(sent, msg.ID)
	}

	// Status updates must land even if shutdown started mid-batch.
	updateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.pollTimeout)
	defer cancel()
	if err := p.outboxRepo.MarkMessagesAsSent(updateCtx, sent); err != nil {
		p.logger.Error("Failed to mark outbox messages as sent", zap.Strings("ids", sent), zap.Error(err))
	}
	if err := p.outboxRepo.MarkMessagesAsFailed(updateCtx, failed); err != nil {
		p.logger.Error("Failed to mark outbox messages as failed", zap.Strings("ids", failed), zap.Error(err))
	}

	if len(sent) > 0 {
		p.logger.Info("Outbox messages published", zap.Int("sent", len(sent)), zap.Int("failed", len(failed)))
	}
	return len(sent)
}
