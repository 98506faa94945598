package app

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// TransactionPage is one page of a user's history, newest first.
type TransactionPage struct {
	Transactions []domain.Transaction
	Total        int
	Limit        int
	Offset       int
}

// HistoryService serves read-only transaction listings. Listings never
// block on row locks and run outside any transactional unit.
type HistoryService struct {
	transactions repository.TransactionRepository
	accounts     repository.AccountRepository
	users        repository.UserRepository
	pool         repository.Querier
	logger       *slog.Logger
}

func NewHistoryService(
	transactions repository.TransactionRepository,
	accounts repository.AccountRepository,
	users repository.UserRepository,
	pool repository.Querier,
	logger *slog.Logger,
) *HistoryService {
	return &HistoryService{
		transactions: transactions,
		accounts:     accounts,
		users:        users,
		pool:         pool,
		logger:       logger.With("service", "history"),
	}
}

// ListUserTransactions returns the page of ledger entries the user took part
// in, matching the filter. For transfer rows the counterparty's display name
// and account number are merged into the metadata so the caller can render a
// statement without extra lookups.
func (s *HistoryService) ListUserTransactions(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) (*TransactionPage, error) {
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return nil, domain.ErrInvalidDateRange
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultHistoryPageSize
	}
	if filter.Limit > maxHistoryPageSize {
		filter.Limit = maxHistoryPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	txns, total, err := s.transactions.ListForUser(ctx, s.pool, userID, filter)
	if err != nil {
		return nil, err
	}

	for i := range txns {
		s.attachCounterparty(ctx, userID, &txns[i])
	}

	return &TransactionPage{
		Transactions: txns,
		Total:        total,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	}, nil
}

// attachCounterparty enriches a transfer row with the other party's details.
// Enrichment is cosmetic; a lookup failure leaves the row as stored.
func (s *HistoryService) attachCounterparty(ctx context.Context, userID uuid.UUID, txn *domain.Transaction) {
	if txn.Type != domain.TransactionTypeTransfer {
		return
	}

	var otherUserID, otherAccountID *uuid.UUID
	if txn.SenderID != nil && *txn.SenderID == userID {
		otherUserID, otherAccountID = txn.ReceiverID, txn.ReceiverAccountID
	} else {
		otherUserID, otherAccountID = txn.SenderID, txn.SenderAccountID
	}
	if otherUserID == nil || otherAccountID == nil {
		return
	}

	other, err := s.users.GetByID(ctx, s.pool, *otherUserID)
	if err != nil {
		s.logger.WarnContext(ctx, "counterparty user lookup failed",
			"reference", txn.Reference, "error", err)
		return
	}
	otherAccount, err := s.accounts.GetByID(ctx, s.pool, *otherAccountID)
	if err != nil {
		s.logger.WarnContext(ctx, "counterparty account lookup failed",
			"reference", txn.Reference, "error", err)
		return
	}

	txn.SetMeta("counterparty_name", other.FullName())
	txn.SetMeta("counterparty_account_number", otherAccount.AccountNumber)
}
