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

const cardTopUpReferencePrefix = "TOP"

// TopUpInput moves funds from a user's bank account onto their virtual card.
type TopUpInput struct {
	UserID uuid.UUID
	CardID uuid.UUID
	Amount decimal.Decimal
}

// TopUpResult is the settled top-up: the debit ledger entry, the funding
// account after the debit and the card after the credit.
type TopUpResult struct {
	Transaction *domain.Transaction
	Account     *domain.Account
	Card        *domain.VirtualCard
	Owner       *domain.User
}

// CardService covers the balance effects of virtual cards. Card issuance and
// blocking live elsewhere; the ledger only sees money moving between the
// funding account and the card.
type CardService struct {
	cards        repository.CardRepository
	accounts     repository.AccountRepository
	users        repository.UserRepository
	transactions repository.TransactionRepository
	notifier     Notifier
	db           repository.DBPool
	logger       *slog.Logger
}

func NewCardService(
	cards repository.CardRepository,
	accounts repository.AccountRepository,
	users repository.UserRepository,
	transactions repository.TransactionRepository,
	notifier Notifier,
	db repository.DBPool,
	logger *slog.Logger,
) *CardService {
	return &CardService{
		cards:        cards,
		accounts:     accounts,
		users:        users,
		transactions: transactions,
		notifier:     notifier,
		db:           db,
		logger:       logger.With("service", "card"),
	}
}

// TopUp debits the funding account and credits the card in one unit of work.
// The card and its funding account must share a currency; cross-currency
// top-ups are rejected rather than converted.
func (s *CardService) TopUp(ctx context.Context, in TopUpInput) (*TopUpResult, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	var out *TopUpResult
	err := s.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		card, err := s.cards.GetForUpdate(ctx, tx, in.CardID)
		if err != nil {
			return err
		}
		if card.UserID != in.UserID {
			return domain.ErrCardNotFound
		}
		if card.Status != domain.VirtualCardStatusActive {
			return domain.ErrCardInactive
		}

		account, err := s.accounts.GetForUpdate(ctx, tx, card.AccountID)
		if err != nil {
			return fmt.Errorf("funding account: %w", err)
		}
		if !account.IsActive() {
			return fmt.Errorf("funding account: %w", domain.ErrAccountInactive)
		}
		if card.Currency != account.Currency {
			return domain.ErrCurrencyMismatch
		}
		if account.Balance.LessThan(in.Amount) {
			return domain.ErrInsufficientBalance
		}

		owner, err := s.users.GetByID(ctx, tx, account.UserID)
		if err != nil {
			return err
		}

		newBalance := account.Balance.Sub(in.Amount)
		now := time.Now().UTC()
		txn := &domain.Transaction{
			ID:              uuid.New(),
			Reference:       domain.NewReferenceWithPrefix(cardTopUpReferencePrefix),
			Amount:          in.Amount,
			Description:     fmt.Sprintf("Top-up of virtual card ending %s", card.LastFour),
			Type:            domain.TransactionTypeWithdrawal,
			Category:        domain.TransactionCategoryDebit,
			Status:          domain.TransactionStatusCompleted,
			BalanceBefore:   account.Balance,
			BalanceAfter:    newBalance,
			SenderAccountID: &account.ID,
			SenderID:        &owner.ID,
			CreatedAt:       now,
			CompletedAt:     &now,
			Metadata: map[string]any{
				"top_up_type":    "virtual_card",
				"card_id":        card.ID.String(),
				"card_last_four": card.LastFour,
			},
		}
		if err := s.transactions.Create(ctx, tx, txn); err != nil {
			return fmt.Errorf("failed to record top-up: %w", err)
		}
		if err := s.accounts.UpdateBalance(ctx, tx, account.ID, newBalance); err != nil {
			return err
		}
		if err := s.cards.ApplyTopUp(ctx, tx, card.ID, in.Amount, now); err != nil {
			return err
		}

		account.Balance = newBalance
		card.AvailableBalance = card.AvailableBalance.Add(in.Amount)
		card.TotalToppedUp = card.TotalToppedUp.Add(in.Amount)
		card.LastTopUpAt = &now

		out = &TopUpResult{Transaction: txn, Account: account, Card: card, Owner: owner}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.sendTopUpAlert(ctx, out)
	transactionsProcessedCounter.WithLabelValues("card_topup", string(domain.TransactionStatusCompleted)).Inc()
	s.logger.InfoContext(ctx, "card top-up completed",
		"reference", out.Transaction.Reference, "card_last_four", out.Card.LastFour,
		"amount", in.Amount, "account_balance", out.Account.Balance)
	return out, nil
}

func (s *CardService) sendTopUpAlert(ctx context.Context, res *TopUpResult) {
	ev := AccountAlertEvent{
		Email:           res.Owner.Email,
		FullName:        res.Owner.FullName(),
		Kind:            "card_topup",
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
		notificationFailuresCounter.WithLabelValues("card_topup_alert").Inc()
		s.logger.ErrorContext(ctx, "failed to send top-up alert",
			"reference", res.Transaction.Reference, "error", err)
	}
}
