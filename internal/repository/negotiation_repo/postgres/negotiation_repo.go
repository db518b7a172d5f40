package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"negotiations/internal/domain"
	"negotiations/internal/repository/negotiation_repo"
	outbox_postgres "negotiations/internal/repository/outbox_repo/postgres"
)

const uniqueViolation = "23505"

const negotiationColumns = `id, product_id, customer_id, seller_id, initial_price, counter_offer, status, version, created_at, updated_at`

type pgNegotiationRepository struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

func NewNegotiationRepository(db *sql.DB, l *zap.Logger) negotiation_repo.NegotiationRepository {
	return &pgNegotiationRepository{db: db, now: time.Now, logger: l}
}

func (r *pgNegotiationRepository) withTx(ctx context.Context, id string, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction", zap.String("negotiation_id", id), zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during negotiation transaction, rolling back", zap.String("negotiation_id", id))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				r.logger.Error("Failed to commit negotiation transaction", zap.String("negotiation_id", id), zap.Error(err))
				err = fmt.Errorf("failed to commit transaction: %w", err)
			}
		}
	}()

	return fn(tx)
}

func (r *pgNegotiationRepository) Create(ctx context.Context, n *domain.Negotiation, msg *domain.OutboxMessage) (*domain.Negotiation, error) {
	if !n.InitialPrice.IsPositive() {
		return nil, domain.Validationf("initial price must be positive")
	}
	if n.CustomerID == n.SellerID {
		return nil, domain.Validationf("customer and seller must differ")
	}
	stored := n.Clone()
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}

	err := r.withTx(ctx, stored.ID, func(tx *sql.Tx) error {
		query := `INSERT INTO negotiations (` + negotiationColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err := tx.ExecContext(ctx, query,
			stored.ID,
			stored.ProductID,
			stored.CustomerID,
			stored.SellerID,
			stored.InitialPrice,
			stored.CounterOffer,
			stored.Status,
			stored.Version,
			stored.CreatedAt,
			stored.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return negotiation_repo.ErrOpenNegotiationExists
			}
			return fmt.Errorf("tx failed to create negotiation: %w", err)
		}

		for i := range stored.Messages {
			if err := insertMessage(ctx, tx, stored.ID, &stored.Messages[i]); err != nil {
				return err
			}
		}
		if msg != nil {
			if err := outbox_postgres.CreateMessageTx(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, negotiation_repo.ErrOpenNegotiationExists) {
			r.logger.Error("Failed to create negotiation", zap.String("negotiation_id", stored.ID), zap.Error(err))
		}
		return nil, err
	}

	r.logger.Debug("Negotiation created", zap.String("negotiation_id", stored.ID))
	return stored, nil
}

func (r *pgNegotiationRepository) GetByID(ctx context.Context, id string) (*domain.Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negotiations WHERE id = $1`
	n, err := scanNegotiation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("negotiation %s: %w", id, domain.ErrNotFound)
		}
		r.logger.Error("Failed to get negotiation by ID", zap.String("negotiation_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get negotiation by ID %s: %w", id, err)
	}

	if n.Messages, err = r.ListMessages(ctx, id); err != nil {
		return nil, err
	}
	return n, nil
}

func (r *pgNegotiationRepository) ListByProduct(ctx context.Context, productID string) ([]*domain.Negotiation, error) {
	return r.list(ctx, "product_id", productID)
}

func (r *pgNegotiationRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Negotiation, error) {
	return r.list(ctx, "customer_id", customerID)
}

func (r *pgNegotiationRepository) ListBySeller(ctx context.Context, sellerID string) ([]*domain.Negotiation, error) {
	return r.list(ctx, "seller_id", sellerID)
}

// list is only called with a fixed set of column names, never with user input.
func (r *pgNegotiationRepository) list(ctx context.Context, column, value string) ([]*domain.Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negotiations WHERE ` + column + ` = $1 ORDER BY created_at DESC, id DESC`
	rows, err := r.db.QueryContext(ctx, query, value)
	if err != nil {
		r.logger.Error("Failed to list negotiations", zap.String(column, value), zap.Error(err))
		return nil, fmt.Errorf("failed to list negotiations by %s: %w", column, err)
	}
	defer rows.Close()

	var negotiations []*domain.Negotiation
	byID := make(map[string]*domain.Negotiation)
	for rows.Next() {
		n, err := scanNegotiation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan negotiation: %w", err)
		}
		negotiations = append(negotiations, n)
		byID[n.ID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating negotiations: %w", err)
	}
	if len(negotiations) == 0 {
		return negotiations, nil
	}

	ids := make([]string, 0, len(negotiations))
	for _, n := range negotiations {
		ids = append(ids, n.ID)
	}
	msgRows, err := r.db.QueryContext(ctx,
		`SELECT negotiation_id, seq, id, author_id, kind, body, sent_at
		 FROM negotiation_messages WHERE negotiation_id = ANY($1) ORDER BY seq ASC`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load negotiation messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var negotiationID string
		var m domain.Message
		if err := msgRows.Scan(&negotiationID, &m.Seq, &m.ID, &m.AuthorID, &m.Kind, &m.Text, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan negotiation message: %w", err)
		}
		if n, ok := byID[negotiationID]; ok {
			n.Messages = append(n.Messages, m)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating negotiation messages: %w", err)
	}
	return negotiations, nil
}

func (r *pgNegotiationRepository) Update(ctx context.Context, id string, patch negotiation_repo.Patch) (*domain.Negotiation, error) {
	err := r.withTx(ctx, id, func(tx *sql.Tx) error {
		var status interface{}
		if patch.Status != "" {
			status = string(patch.Status)
		}
		query := `
			UPDATE negotiations
			SET status = COALESCE($2, status),
			    counter_offer = CASE WHEN $3 THEN NULL ELSE COALESCE($4, counter_offer) END,
			    version = version + 1,
			    updated_at = $5
			WHERE id = $1 AND version = $6
		`
		res, err := tx.ExecContext(ctx, query, id, status, patch.ClearCounter, patch.CounterOffer, r.stamp(patch.UpdatedAt), patch.ExpectedVersion)
		if err != nil {
			return fmt.Errorf("tx failed to update negotiation: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected for negotiation %s: %w", id, err)
		}
		if affected == 0 {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM negotiations WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check negotiation %s: %w", id, err)
			}
			if !exists {
				return fmt.Errorf("negotiation %s: %w", id, domain.ErrNotFound)
			}
			return negotiation_repo.ErrVersionConflict
		}

		for i := range patch.Messages {
			if err := insertMessage(ctx, tx, id, &patch.Messages[i]); err != nil {
				return err
			}
		}
		if patch.Outbox != nil {
			if err := outbox_postgres.CreateMessageTx(ctx, tx, patch.Outbox); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, negotiation_repo.ErrVersionConflict) {
			r.logger.Error("Failed to update negotiation", zap.String("negotiation_id", id), zap.Error(err))
		}
		return nil, err
	}

	r.logger.Debug("Negotiation updated", zap.String("negotiation_id", id), zap.String("status", string(patch.Status)))
	return r.GetByID(ctx, id)
}

func (r *pgNegotiationRepository) AppendMessage(ctx context.Context, id string, msg domain.Message) (*domain.Negotiation, error) {
	err := r.withTx(ctx, id, func(tx *sql.Tx) error {
		var locked string
		err := tx.QueryRowContext(ctx,
			`UPDATE negotiations SET updated_at = $2
			 WHERE id = $1 AND status IN ('pending', 'countered')
			 RETURNING id`,
			id, r.stamp(msg.SentAt)).Scan(&locked)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("tx failed to lock negotiation: %w", err)
			}
			var status domain.NegotiationStatus
			if err := tx.QueryRowContext(ctx, `SELECT status FROM negotiations WHERE id = $1`, id).Scan(&status); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("negotiation %s: %w", id, domain.ErrNotFound)
				}
				return fmt.Errorf("failed to read negotiation status: %w", err)
			}
			return domain.InvalidTransitionf(status, "negotiation is already %s", status)
		}
		return insertMessage(ctx, tx, id, &msg)
	})
	if err != nil {
		var ae *domain.ActionError
		if !errors.As(err, &ae) && !errors.Is(err, domain.ErrNotFound) {
			r.logger.Error("Failed to append negotiation message", zap.String("negotiation_id", id), zap.Error(err))
		}
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *pgNegotiationRepository) ListMessages(ctx context.Context, id string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, id, author_id, kind, body, sent_at FROM negotiation_messages WHERE negotiation_id = $1 ORDER BY seq ASC`,
		id)
	if err != nil {
		r.logger.Error("Failed to list negotiation messages", zap.String("negotiation_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to list messages for negotiation %s: %w", id, err)
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.AuthorID, &m.Kind, &m.Text, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan negotiation message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating negotiation messages: %w", err)
	}
	return messages, nil
}

func (r *pgNegotiationRepository) FindLatestAccepted(ctx context.Context, productID, customerID string) (*domain.Negotiation, error) {
	query := `SELECT ` + negotiationColumns + ` FROM negotiations
		WHERE product_id = $1 AND customer_id = $2 AND status = 'accepted'
		ORDER BY updated_at DESC, version DESC
		LIMIT 1`
	n, err := scanNegotiation(r.db.QueryRowContext(ctx, query, productID, customerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("accepted negotiation for product %s: %w", productID, domain.ErrNotFound)
		}
		r.logger.Error("Failed to find accepted negotiation",
			zap.String("product_id", productID),
			zap.String("customer_id", customerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find accepted negotiation: %w", err)
	}
	return n, nil
}

func (r *pgNegotiationRepository) stamp(at time.Time) time.Time {
	if at.IsZero() {
		return r.now()
	}
	return at
}

func insertMessage(ctx context.Context, q domain.Querier, negotiationID string, m *domain.Message) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO negotiation_messages (id, negotiation_id, author_id, kind, body, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`,
		m.ID, negotiationID, m.AuthorID, m.Kind, m.Text, m.SentAt).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("tx failed to insert negotiation message: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNegotiation(row rowScanner) (*domain.Negotiation, error) {
	n := &domain.Negotiation{}
	var counter decimal.NullDecimal
	if err := row.Scan(
		&n.ID,
		&n.ProductID,
		&n.CustomerID,
		&n.SellerID,
		&n.InitialPrice,
		&counter,
		&n.Status,
		&n.Version,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		return nil, err
	}
	n.CounterOffer = counter
	return n, nil
}
