package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockDBPool runs the unit-of-work function with a nil pgx.Tx; repository
// mocks ignore the Querier. Expecting an error on BeginFunc simulates a
// connection-level failure before the function runs.
type MockDBPool struct {
	mock.Mock
}

func (m *MockDBPool) BeginFunc(ctx context.Context, fn func(pgx.Tx) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(nil)
}

func (m *MockDBPool) Close() {
	m.Called()
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, q, id)
	var acc *domain.Account
	if args.Get(0) != nil {
		acc = args.Get(0).(*domain.Account)
	}
	return acc, args.Error(1)
}

func (m *MockAccountRepository) GetByNumber(ctx context.Context, q repository.Querier, accountNumber string) (*domain.Account, error) {
	args := m.Called(ctx, q, accountNumber)
	var acc *domain.Account
	if args.Get(0) != nil {
		acc = args.Get(0).(*domain.Account)
	}
	return acc, args.Error(1)
}

func (m *MockAccountRepository) GetByNumberForUser(ctx context.Context, q repository.Querier, accountNumber string, userID uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, q, accountNumber, userID)
	var acc *domain.Account
	if args.Get(0) != nil {
		acc = args.Get(0).(*domain.Account)
	}
	return acc, args.Error(1)
}

func (m *MockAccountRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Account, error) {
	args := m.Called(ctx, q, id)
	var acc *domain.Account
	if args.Get(0) != nil {
		acc = args.Get(0).(*domain.Account)
	}
	return acc, args.Error(1)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, q repository.Querier, id uuid.UUID, balance decimal.Decimal) error {
	args := m.Called(ctx, q, id, balance)
	return args.Error(0)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, q, id)
	var u *domain.User
	if args.Get(0) != nil {
		u = args.Get(0).(*domain.User)
	}
	return u, args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, q repository.Querier, username string) (*domain.User, error) {
	args := m.Called(ctx, q, username)
	var u *domain.User
	if args.Get(0) != nil {
		u = args.Get(0).(*domain.User)
	}
	return u, args.Error(1)
}

func (m *MockUserRepository) SetTransferOTP(ctx context.Context, q repository.Querier, userID uuid.UUID, otp, reference string, expiresAt time.Time) error {
	args := m.Called(ctx, q, userID, otp, reference, expiresAt)
	return args.Error(0)
}

func (m *MockUserRepository) ClearTransferOTP(ctx context.Context, q repository.Querier, userID uuid.UUID) error {
	args := m.Called(ctx, q, userID)
	return args.Error(0)
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, q repository.Querier, txn *domain.Transaction) error {
	args := m.Called(ctx, q, txn)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByReference(ctx context.Context, q repository.Querier, reference string) (*domain.Transaction, error) {
	args := m.Called(ctx, q, reference)
	var t *domain.Transaction
	if args.Get(0) != nil {
		t = args.Get(0).(*domain.Transaction)
	}
	return t, args.Error(1)
}

func (m *MockTransactionRepository) GetPendingByReferenceForUpdate(ctx context.Context, q repository.Querier, reference string) (*domain.Transaction, error) {
	args := m.Called(ctx, q, reference)
	var t *domain.Transaction
	if args.Get(0) != nil {
		t = args.Get(0).(*domain.Transaction)
	}
	return t, args.Error(1)
}

func (m *MockTransactionRepository) MarkCompleted(ctx context.Context, q repository.Querier, id uuid.UUID, completedAt time.Time) error {
	args := m.Called(ctx, q, id, completedAt)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkFailed(ctx context.Context, q repository.Querier, id uuid.UUID, reason domain.FailureReason, metadata map[string]any) error {
	args := m.Called(ctx, q, id, reason, metadata)
	return args.Error(0)
}

func (m *MockTransactionRepository) ListForUser(ctx context.Context, q repository.Querier, userID uuid.UUID, filter repository.TransactionFilter) ([]domain.Transaction, int, error) {
	args := m.Called(ctx, q, userID, filter)
	var txns []domain.Transaction
	if args.Get(0) != nil {
		txns = args.Get(0).([]domain.Transaction)
	}
	return txns, args.Int(1), args.Error(2)
}

type MockIdempotencyRepository struct {
	mock.Mock
}

func (m *MockIdempotencyRepository) Lookup(ctx context.Context, q repository.Querier, key string, userID uuid.UUID, endpoint string) (*domain.IdempotencyKey, error) {
	args := m.Called(ctx, q, key, userID, endpoint)
	var rec *domain.IdempotencyKey
	if args.Get(0) != nil {
		rec = args.Get(0).(*domain.IdempotencyKey)
	}
	return rec, args.Error(1)
}

func (m *MockIdempotencyRepository) Store(ctx context.Context, q repository.Querier, record *domain.IdempotencyKey) error {
	args := m.Called(ctx, q, record)
	return args.Error(0)
}

type MockCardRepository struct {
	mock.Mock
}

func (m *MockCardRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.VirtualCard, error) {
	args := m.Called(ctx, q, id)
	var c *domain.VirtualCard
	if args.Get(0) != nil {
		c = args.Get(0).(*domain.VirtualCard)
	}
	return c, args.Error(1)
}

func (m *MockCardRepository) ApplyTopUp(ctx context.Context, q repository.Querier, id uuid.UUID, amount decimal.Decimal, at time.Time) error {
	args := m.Called(ctx, q, id, amount, at)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) TransferOTPIssued(ctx context.Context, ev TransferOTPEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockNotifier) TransferCompleted(ctx context.Context, ev TransferAlertEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func (m *MockNotifier) AccountAlert(ctx context.Context, ev AccountAlertEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}
