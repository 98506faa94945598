package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

type pgTransactionRepository struct{}

// NewPgTransactionRepository creates the PostgreSQL transaction ledger.
func NewPgTransactionRepository() repository.TransactionRepository {
	return &pgTransactionRepository{}
}

const transactionColumns = `id, reference, amount, COALESCE(description, ''), transaction_type,
       transaction_category, status, balance_before, balance_after,
       sender_account_id, receiver_account_id, sender_id, receiver_id, processed_by,
       transaction_metadata, failed_reason, created_at, completed_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	err := row.Scan(
		&txn.ID, &txn.Reference, &txn.Amount, &txn.Description, &txn.Type,
		&txn.Category, &txn.Status, &txn.BalanceBefore, &txn.BalanceAfter,
		&txn.SenderAccountID, &txn.ReceiverAccountID, &txn.SenderID, &txn.ReceiverID, &txn.ProcessedBy,
		&txn.Metadata, &txn.FailedReason, &txn.CreatedAt, &txn.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransferNotFound
		}
		return nil, err
	}
	return txn, nil
}

func (r *pgTransactionRepository) Create(ctx context.Context, q repository.Querier, txn *domain.Transaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}

	_, err := q.Exec(ctx, `
		INSERT INTO transactions (id, reference, amount, description, transaction_type,
		                          transaction_category, status, balance_before, balance_after,
		                          sender_account_id, receiver_account_id, sender_id, receiver_id, processed_by,
		                          transaction_metadata, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		txn.ID, txn.Reference, txn.Amount, txn.Description, txn.Type,
		txn.Category, txn.Status, txn.BalanceBefore, txn.BalanceAfter,
		txn.SenderAccountID, txn.ReceiverAccountID, txn.SenderID, txn.ReceiverID, txn.ProcessedBy,
		txn.Metadata, txn.CreatedAt, txn.CompletedAt,
	)
	return err
}

func (r *pgTransactionRepository) GetByReference(ctx context.Context, q repository.Querier, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(q.QueryRow(ctx, query, reference))
}

// GetPendingByReferenceForUpdate locks the pending row so that concurrent
// completions of the same reference serialize: the loser finds no pending
// row once the winner commits and observes domain.ErrTransferNotFound.
func (r *pgTransactionRepository) GetPendingByReferenceForUpdate(ctx context.Context, q repository.Querier, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
	          WHERE reference = $1 AND status = $2 FOR UPDATE`
	return scanTransaction(q.QueryRow(ctx, query, reference, domain.TransactionStatusPending))
}

func (r *pgTransactionRepository) MarkCompleted(ctx context.Context, q repository.Querier, id uuid.UUID, completedAt time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE transactions SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`,
		domain.TransactionStatusCompleted, completedAt, id, domain.TransactionStatusPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransferNotFound
	}
	return nil
}

func (r *pgTransactionRepository) MarkFailed(ctx context.Context, q repository.Querier, id uuid.UUID, reason domain.FailureReason, metadata map[string]any) error {
	tag, err := q.Exec(ctx,
		`UPDATE transactions SET status = $1, failed_reason = $2, transaction_metadata = $3
		 WHERE id = $4 AND status = $5`,
		domain.TransactionStatusFailed, string(reason), metadata, id, domain.TransactionStatusPending,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransferNotFound
	}
	return nil
}

func (r *pgTransactionRepository) ListForUser(ctx context.Context, q repository.Querier, userID uuid.UUID, filter repository.TransactionFilter) ([]domain.Transaction, int, error) {
	where := `WHERE (t.sender_id = $1 OR t.receiver_id = $1
	           OR t.sender_account_id IN (SELECT id FROM accounts WHERE user_id = $1)
	           OR t.receiver_account_id IN (SELECT id FROM accounts WHERE user_id = $1))`
	args := []interface{}{userID}

	addArg := func(clause string, value interface{}) {
		args = append(args, value)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}

	if filter.StartDate != nil {
		addArg("t.created_at >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		addArg("t.created_at <= $%d", *filter.EndDate)
	}
	if filter.Type != nil {
		addArg("t.transaction_type = $%d", *filter.Type)
	}
	if filter.Category != nil {
		addArg("t.transaction_category = $%d", *filter.Category)
	}
	if filter.Status != nil {
		addArg("t.status = $%d", *filter.Status)
	}
	if filter.MinAmount != nil {
		addArg("t.amount >= $%d", *filter.MinAmount)
	}
	if filter.MaxAmount != nil {
		addArg("t.amount <= $%d", *filter.MaxAmount)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions t ` + where
	if err := q.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, filter.Offset)
	listQuery := fmt.Sprintf(`SELECT %s FROM transactions t %s ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d`,
		transactionColumnsAliased, where, len(args)-1, len(args))

	rows, err := q.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		err := rows.Scan(
			&txn.ID, &txn.Reference, &txn.Amount, &txn.Description, &txn.Type,
			&txn.Category, &txn.Status, &txn.BalanceBefore, &txn.BalanceAfter,
			&txn.SenderAccountID, &txn.ReceiverAccountID, &txn.SenderID, &txn.ReceiverID, &txn.ProcessedBy,
			&txn.Metadata, &txn.FailedReason, &txn.CreatedAt, &txn.CompletedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

const transactionColumnsAliased = `t.id, t.reference, t.amount, COALESCE(t.description, ''), t.transaction_type,
       t.transaction_category, t.status, t.balance_before, t.balance_after,
       t.sender_account_id, t.receiver_account_id, t.sender_id, t.receiver_id, t.processed_by,
       t.transaction_metadata, t.failed_reason, t.created_at, t.completed_at`
