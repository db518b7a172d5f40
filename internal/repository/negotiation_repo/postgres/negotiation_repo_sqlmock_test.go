package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"negotiations/internal/domain"
	"negotiations/internal/repository/negotiation_repo"
)

var sqlNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newMockRepo(t *testing.T) (negotiation_repo.NegotiationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewNegotiationRepository(db, zaptest.NewLogger(t)), mock
}

func expectGetByID(mock sqlmock.Sqlmock, id, status string, version int64, counter interface{}) {
	mock.ExpectQuery(`SELECT id, product_id, customer_id, seller_id`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "product_id", "customer_id", "seller_id", "initial_price", "counter_offer", "status", "version", "created_at", "updated_at",
		}).AddRow(id, "p-1", "c-1", "s-1", "8000.00", counter, status, version, sqlNow, sqlNow))
	mock.ExpectQuery(`FROM negotiation_messages WHERE negotiation_id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"seq", "id", "author_id", "kind", "body", "sent_at"}).
			AddRow(int64(1), "m-1", "c-1", "offer", "offered ₹8000", sqlNow))
}

func TestUpdateAppliesPatchInOneTransaction(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := sqlNow.Add(time.Hour)
	msg, err := domain.NewMessage("s-1", domain.MessageKindCounter, "countered with ₹9000", at)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE negotiations SET status = COALESCE\(\$2, status\)`).
		WithArgs("n-1", "countered", false, "9000", at, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO negotiation_messages`).
		WithArgs(msg.ID, "n-1", "s-1", "counter", "countered with ₹9000", at).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(2)))
	mock.ExpectExec(`INSERT INTO outbox_messages`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectGetByID(mock, "n-1", "countered", 2, "9000.00")

	got, err := repo.Update(context.Background(), "n-1", negotiation_repo.Patch{
		ExpectedVersion: 1,
		Status:          domain.NegotiationStatusCountered,
		CounterOffer:    decimal.NewNullDecimal(decimal.NewFromInt(9000)),
		Messages:        []domain.Message{msg},
		Outbox:          &domain.OutboxMessage{ID: "o-1", Topic: "negotiation_events", Status: domain.OutboxStatusPending},
		UpdatedAt:       at,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NegotiationStatusCountered, got.Status)
	assert.EqualValues(t, 2, got.Version)
	assert.True(t, got.CounterOffer.Decimal.Equal(decimal.NewFromInt(9000)))
}

func TestUpdateWithStaleVersionRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE negotiations SET status`).
		WithArgs("n-1", "accepted", false, nil, sqlNow, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("n-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "n-1", negotiation_repo.Patch{
		ExpectedVersion: 1,
		Status:          domain.NegotiationStatusAccepted,
		UpdatedAt:       sqlNow,
	})
	assert.ErrorIs(t, err, negotiation_repo.ErrVersionConflict)
}

func TestUpdateOfMissingNegotiation(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE negotiations SET status`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := repo.Update(context.Background(), "missing", negotiation_repo.Patch{ExpectedVersion: 1, UpdatedAt: sqlNow})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppendMessageLocksOpenNegotiation(t *testing.T) {
	repo, mock := newMockRepo(t)
	at := sqlNow.Add(time.Minute)
	msg, err := domain.NewMessage("s-1", domain.MessageKindText, "still available", at)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE negotiations SET updated_at = \$2 WHERE id = \$1 AND status IN \('pending', 'countered'\) RETURNING id`).
		WithArgs("n-1", at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("n-1"))
	mock.ExpectQuery(`INSERT INTO negotiation_messages`).
		WithArgs(msg.ID, "n-1", "s-1", "text", "still available", at).
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(2)))
	mock.ExpectCommit()
	expectGetByID(mock, "n-1", "pending", 1, nil)

	got, err := repo.AppendMessage(context.Background(), "n-1", msg)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.Version)
}

func TestAppendMessageToClosedNegotiation(t *testing.T) {
	repo, mock := newMockRepo(t)
	msg, err := domain.NewMessage("c-1", domain.MessageKindText, "hello?", sqlNow)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE negotiations SET updated_at`).
		WithArgs("n-1", sqlNow).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT status FROM negotiations WHERE id = \$1`).WithArgs("n-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("accepted"))
	mock.ExpectRollback()

	_, err = repo.AppendMessage(context.Background(), "n-1", msg)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var ae *domain.ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, domain.NegotiationStatusAccepted, ae.Status)
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := newMockRepo(t)
	n, err := domain.NewNegotiation("n-2", "p-1", "c-1", "s-1", decimal.NewFromInt(8000), "", sqlNow)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO negotiations`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "uq_negotiations_open"})
	mock.ExpectRollback()

	_, err = repo.Create(context.Background(), n, nil)
	assert.ErrorIs(t, err, negotiation_repo.ErrOpenNegotiationExists)
}
