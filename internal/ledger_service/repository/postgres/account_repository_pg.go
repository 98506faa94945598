package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

type pgAccountRepository struct{}

// NewPgAccountRepository creates the PostgreSQL account store.
func NewPgAccountRepository() repository.AccountRepository {
	return &pgAccountRepository{}
}

const accountColumns = `id, user_id, account_number, account_name, currency, account_status, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	acc := &domain.Account{}
	err := row.Scan(
		&acc.ID, &acc.UserID, &acc.AccountNumber, &acc.AccountName,
		&acc.Currency, &acc.Status, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return acc, nil
}

func (r *pgAccountRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(q.QueryRow(ctx, query, id))
}

func (r *pgAccountRepository) GetByNumber(ctx context.Context, q repository.Querier, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(q.QueryRow(ctx, query, accountNumber))
}

func (r *pgAccountRepository) GetByNumberForUser(ctx context.Context, q repository.Querier, accountNumber string, userID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1 AND user_id = $2`
	return scanAccount(q.QueryRow(ctx, query, accountNumber, userID))
}

func (r *pgAccountRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
	return scanAccount(q.QueryRow(ctx, query, id))
}

func (r *pgAccountRepository) UpdateBalance(ctx context.Context, q repository.Querier, id uuid.UUID, balance decimal.Decimal) error {
	tag, err := q.Exec(ctx,
		`UPDATE accounts SET balance = $1, updated_at = $2 WHERE id = $3`,
		balance, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}
