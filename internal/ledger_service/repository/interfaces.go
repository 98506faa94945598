package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
)

// Querier is the common interface of *pgxpool.Pool and pgx.Tx, so repository
// methods can run inside or outside a transactional unit.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DBPool is the transactional entry point services depend on. The postgres
// implementation wraps *pgxpool.Pool; unit tests substitute a mock that
// invokes fn with a nil pgx.Tx.
type DBPool interface {
	BeginFunc(ctx context.Context, fn func(pgx.Tx) error) error
	Close()
}

// TransactionFilter narrows a transaction-history listing.
type TransactionFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Type      *domain.TransactionType
	Category  *domain.TransactionCategory
	Status    *domain.TransactionStatus
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int
	Offset    int
}

// AccountRepository is the account store: atomic reads and balance writes.
// Balance writes must execute on the Querier of the enclosing transactional
// unit, against a balance read under GetForUpdate.
type AccountRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.Account, error)
	GetByNumber(ctx context.Context, q Querier, accountNumber string) (*domain.Account, error)
	GetByNumberForUser(ctx context.Context, q Querier, accountNumber string, userID uuid.UUID) (*domain.Account, error)
	// GetForUpdate acquires a row lock (SELECT ... FOR UPDATE) so that the
	// balance read cannot go stale before UpdateBalance commits.
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, q Querier, id uuid.UUID, balance decimal.Decimal) error
}

// UserRepository resolves account holders and owns the transfer-OTP
// lifecycle fields on the user row.
type UserRepository interface {
	GetByID(ctx context.Context, q Querier, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, q Querier, username string) (*domain.User, error)
	SetTransferOTP(ctx context.Context, q Querier, userID uuid.UUID, otp, reference string, expiresAt time.Time) error
	ClearTransferOTP(ctx context.Context, q Querier, userID uuid.UUID) error
}

// TransactionRepository persists ledger entries. Entries are never deleted;
// the only mutations are the status transitions expressed here.
type TransactionRepository interface {
	Create(ctx context.Context, q Querier, txn *domain.Transaction) error
	GetByReference(ctx context.Context, q Querier, reference string) (*domain.Transaction, error)
	// GetPendingByReferenceForUpdate locks the pending row for completion.
	// A reference that is absent or already terminal yields
	// domain.ErrTransferNotFound, which is what makes replayed completions
	// observe "not found" instead of re-executing.
	GetPendingByReferenceForUpdate(ctx context.Context, q Querier, reference string) (*domain.Transaction, error)
	MarkCompleted(ctx context.Context, q Querier, id uuid.UUID, completedAt time.Time) error
	MarkFailed(ctx context.Context, q Querier, id uuid.UUID, reason domain.FailureReason, metadata map[string]any) error
	ListForUser(ctx context.Context, q Querier, userID uuid.UUID, filter TransactionFilter) ([]domain.Transaction, int, error)
}

// IdempotencyRepository stores cached responses for retried requests. Store
// must surface domain.ErrIdempotencyKeyExists on a unique-constraint
// violation rather than overwrite.
type IdempotencyRepository interface {
	// Lookup returns domain.ErrIdempotencyKeyNotFound on a miss, including
	// when the stored row has expired or belongs to a different user.
	Lookup(ctx context.Context, q Querier, key string, userID uuid.UUID, endpoint string) (*domain.IdempotencyKey, error)
	Store(ctx context.Context, q Querier, record *domain.IdempotencyKey) error
}

// CardRepository exposes the balance effects of virtual cards.
type CardRepository interface {
	GetForUpdate(ctx context.Context, q Querier, id uuid.UUID) (*domain.VirtualCard, error)
	ApplyTopUp(ctx context.Context, q Querier, id uuid.UUID, amount decimal.Decimal, at time.Time) error
}
