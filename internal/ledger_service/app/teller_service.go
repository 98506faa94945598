package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

// DepositInput funds the caller's own account. ProcessedBy identifies the
// teller for counter deposits; nil for self-service credits.
type DepositInput struct {
	UserID        uuid.UUID
	AccountNumber string
	Amount        decimal.Decimal
	Description   string
	ProcessedBy   *uuid.UUID
}

// WithdrawInput debits the caller's own account.
type WithdrawInput struct {
	UserID        uuid.UUID
	AccountNumber string
	Amount        decimal.Decimal
	Description   string
}

// TellerResult is the outcome of a single-phase movement: the completed
// ledger entry and the account at its post-mutation balance.
type TellerResult struct {
	Transaction *domain.Transaction
	Account     *domain.Account
	Owner       *domain.User
}

// TellerService executes the single-phase movements: deposits and
// withdrawals complete (or fail) within one call, with the ledger entry and
// the balance mutation committed in the same unit of work.
type TellerService struct {
	accounts     repository.AccountRepository
	users        repository.UserRepository
	transactions repository.TransactionRepository
	notifier     Notifier
	db           repository.DBPool
	logger       *slog.Logger
}

func NewTellerService(
	accounts repository.AccountRepository,
	users repository.UserRepository,
	transactions repository.TransactionRepository,
	notifier Notifier,
	db repository.DBPool,
	logger *slog.Logger,
) *TellerService {
	return &TellerService{
		accounts:     accounts,
		users:        users,
		transactions: transactions,
		notifier:     notifier,
		db:           db,
		logger:       logger.With("service", "teller"),
	}
}

// Deposit credits the account in one unit of work: lock the row, insert the
// completed credit entry, write the new balance.
func (s *TellerService) Deposit(ctx context.Context, in DepositInput) (*TellerResult, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	var out *TellerResult
	err := s.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = s.deposit(ctx, tx, in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.sendAccountAlert(ctx, "deposit", out)
	transactionsProcessedCounter.WithLabelValues(string(domain.TransactionTypeDeposit), string(domain.TransactionStatusCompleted)).Inc()
	s.logger.InfoContext(ctx, "deposit completed",
		"reference", out.Transaction.Reference, "account", out.Account.AccountNumber,
		"amount", in.Amount, "balance", out.Account.Balance)
	return out, nil
}

func (s *TellerService) deposit(ctx context.Context, q repository.Querier, in DepositInput) (*TellerResult, error) {
	account, err := s.accounts.GetByNumberForUser(ctx, q, in.AccountNumber, in.UserID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, domain.ErrAccountInactive
	}
	account, err = s.accounts.GetForUpdate(ctx, q, account.ID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.GetByID(ctx, q, account.UserID)
	if err != nil {
		return nil, err
	}

	newBalance := account.Balance.Add(in.Amount)
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:                uuid.New(),
		Reference:         domain.NewReference(domain.TransactionTypeDeposit),
		Amount:            in.Amount,
		Description:       in.Description,
		Type:              domain.TransactionTypeDeposit,
		Category:          domain.TransactionCategoryCredit,
		Status:            domain.TransactionStatusCompleted,
		BalanceBefore:     account.Balance,
		BalanceAfter:      newBalance,
		ReceiverAccountID: &account.ID,
		ReceiverID:        &owner.ID,
		ProcessedBy:       in.ProcessedBy,
		CreatedAt:         now,
		CompletedAt:       &now,
	}
	if in.ProcessedBy != nil {
		txn.SetMeta("processed_by", in.ProcessedBy.String())
	}
	if err := s.transactions.Create(ctx, q, txn); err != nil {
		return nil, fmt.Errorf("failed to record deposit: %w", err)
	}
	if err := s.accounts.UpdateBalance(ctx, q, account.ID, newBalance); err != nil {
		return nil, err
	}
	account.Balance = newBalance

	return &TellerResult{Transaction: txn, Account: account, Owner: owner}, nil
}

// Withdraw debits the account on the supplied unit of work. The caller gates
// it behind the idempotency registry, which owns the unit, so a replayed
// request never debits twice. No events are published here: the unit may
// still roll back, so the caller announces the debit via NotifyWithdrawal
// once its unit has committed.
func (s *TellerService) Withdraw(ctx context.Context, q repository.Querier, in WithdrawInput) (*TellerResult, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByNumberForUser(ctx, q, in.AccountNumber, in.UserID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive() {
		return nil, domain.ErrAccountInactive
	}
	account, err = s.accounts.GetForUpdate(ctx, q, account.ID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.GetByID(ctx, q, account.UserID)
	if err != nil {
		return nil, err
	}

	// Funds check against the balance under the row lock, before any write.
	if account.Balance.LessThan(in.Amount) {
		return nil, domain.ErrInsufficientBalance
	}

	newBalance := account.Balance.Sub(in.Amount)
	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:              uuid.New(),
		Reference:       domain.NewReference(domain.TransactionTypeWithdrawal),
		Amount:          in.Amount,
		Description:     in.Description,
		Type:            domain.TransactionTypeWithdrawal,
		Category:        domain.TransactionCategoryDebit,
		Status:          domain.TransactionStatusCompleted,
		BalanceBefore:   account.Balance,
		BalanceAfter:    newBalance,
		SenderAccountID: &account.ID,
		SenderID:        &owner.ID,
		CreatedAt:       now,
		CompletedAt:     &now,
	}
	if err := s.transactions.Create(ctx, q, txn); err != nil {
		return nil, fmt.Errorf("failed to record withdrawal: %w", err)
	}
	if err := s.accounts.UpdateBalance(ctx, q, account.ID, newBalance); err != nil {
		return nil, err
	}
	account.Balance = newBalance

	return &TellerResult{Transaction: txn, Account: account, Owner: owner}, nil
}

// NotifyWithdrawal announces a committed withdrawal: customer alert, metrics,
// log. Must only be called after the gating unit of work has committed; a
// rolled-back debit must never produce an alert.
func (s *TellerService) NotifyWithdrawal(ctx context.Context, res *TellerResult) {
	s.sendAccountAlert(ctx, "withdrawal", res)
	transactionsProcessedCounter.WithLabelValues(string(domain.TransactionTypeWithdrawal), string(domain.TransactionStatusCompleted)).Inc()
	s.logger.InfoContext(ctx, "withdrawal completed",
		"reference", res.Transaction.Reference, "account", res.Account.AccountNumber,
		"amount", res.Transaction.Amount, "balance", res.Account.Balance)
}

func (s *TellerService) sendAccountAlert(ctx context.Context, kind string, res *TellerResult) {
	ev := AccountAlertEvent{
		Email:           res.Owner.Email,
		FullName:        res.Owner.FullName(),
		Kind:            kind,
		Amount:          res.Transaction.Amount,
		AccountName:     res.Account.AccountName,
		AccountNumber:   res.Account.AccountNumber,
		Currency:        res.Account.Currency,
		Description:     res.Transaction.Description,
		Reference:       res.Transaction.Reference,
		Balance:         res.Account.Balance,
		TransactionDate: res.Transaction.CreatedAt,
	}
	if err := s.notifier.AccountAlert(ctx, ev); err != nil {
		notificationFailuresCounter.WithLabelValues(kind + "_alert").Inc()
		s.logger.ErrorContext(ctx, "failed to send account alert",
			"kind", kind, "reference", res.Transaction.Reference, "error", err)
	}
}
