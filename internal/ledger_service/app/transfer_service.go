package app

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

// InitiateTransferInput carries the first phase of a peer transfer.
type InitiateTransferInput struct {
	SenderID              uuid.UUID
	SenderAccountID       uuid.UUID
	ReceiverAccountNumber string
	Amount                decimal.Decimal
	Description           string
	SecurityAnswer        string
}

// TransferInitiation is returned from a successful initiate: the pending
// ledger entry plus the resolved parties, so the caller can message the
// sender.
type TransferInitiation struct {
	Transaction     *domain.Transaction
	SenderAccount   *domain.Account
	ReceiverAccount *domain.Account
	Sender          *domain.User
	Receiver        *domain.User
}

// TransferCompletion is returned from a successful complete, with both
// accounts reflecting their post-mutation balances.
type TransferCompletion struct {
	Transaction     *domain.Transaction
	SenderAccount   *domain.Account
	ReceiverAccount *domain.Account
	Sender          *domain.User
	Receiver        *domain.User
}

// TransferService is the two-phase transfer state machine:
// initiate (pending entry + OTP, no balances touched) -> complete
// (OTP verified, balances mutated, entry completed) or failed (entry failed
// with a recorded reason, no balance mutation).
type TransferService struct {
	accounts     repository.AccountRepository
	users        repository.UserRepository
	transactions repository.TransactionRepository
	converter    Converter
	notifier     Notifier
	failures     *FailureClassifier
	db           repository.DBPool
	logger       *slog.Logger
	otpLength    int
	otpTTL       time.Duration
}

func NewTransferService(
	accounts repository.AccountRepository,
	users repository.UserRepository,
	transactions repository.TransactionRepository,
	converter Converter,
	notifier Notifier,
	failures *FailureClassifier,
	db repository.DBPool,
	logger *slog.Logger,
	otpLength int,
	otpTTL time.Duration,
) *TransferService {
	return &TransferService{
		accounts:     accounts,
		users:        users,
		transactions: transactions,
		converter:    converter,
		notifier:     notifier,
		failures:     failures,
		db:           db,
		logger:       logger.With("service", "transfer"),
		otpLength:    otpLength,
		otpTTL:       otpTTL,
	}
}

func validateAmount(amount decimal.Decimal) error {
	if amount.Sign() <= 0 || amount.Exponent() < -2 {
		return domain.ErrInvalidAmount
	}
	return nil
}

func generateOTP(length int) (string, error) {
	const digits = "0123456789"
	// Rejection sampling: bytes >= 250 are discarded so every digit is
	// equally likely, a plain modulo would skew toward 0-5.
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("otp generation failed: %w", err)
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			out = append(out, digits[int(b)%len(digits)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// InitiateTransfer validates the transfer, prices the conversion, creates
// the pending ledger entry and issues the sender's OTP, all on the supplied
// unit of work. No balance is touched in this phase and nothing is
// published: the unit may still roll back, so the caller sends the OTP via
// NotifyInitiated once its unit has committed.
func (s *TransferService) InitiateTransfer(ctx context.Context, q repository.Querier, in InitiateTransferInput) (*TransferInitiation, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}

	// Self-transfer is never permitted; reject before creating anything.
	if _, err := s.accounts.GetByNumberForUser(ctx, q, in.ReceiverAccountNumber, in.SenderID); err == nil {
		return nil, domain.ErrSelfTransfer
	} else if !errors.Is(err, domain.ErrAccountNotFound) {
		return nil, err
	}

	senderAccount, err := s.accounts.GetByID(ctx, q, in.SenderAccountID)
	if err != nil {
		return nil, fmt.Errorf("sender account: %w", err)
	}
	if senderAccount.UserID != in.SenderID {
		return nil, fmt.Errorf("sender account: %w", domain.ErrAccountNotFound)
	}
	if !senderAccount.IsActive() {
		return nil, fmt.Errorf("sender account: %w", domain.ErrAccountInactive)
	}

	sender, err := s.users.GetByID(ctx, q, senderAccount.UserID)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(sender.SecurityAnswerHash), []byte(in.SecurityAnswer)) != nil {
		return nil, domain.ErrInvalidSecurityAnswer
	}

	receiverAccount, err := s.accounts.GetByNumber(ctx, q, in.ReceiverAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("receiver account: %w", err)
	}
	if !receiverAccount.IsActive() {
		return nil, fmt.Errorf("receiver account: %w", domain.ErrAccountInactive)
	}
	receiver, err := s.users.GetByID(ctx, q, receiverAccount.UserID)
	if err != nil {
		return nil, fmt.Errorf("receiver: %w", err)
	}

	// Advisory check only; the authoritative re-check happens under the row
	// lock at completion.
	if senderAccount.Balance.LessThan(in.Amount) {
		return nil, domain.ErrInsufficientBalance
	}

	quote, err := s.converter.Convert(in.Amount, senderAccount.Currency, receiverAccount.Currency)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:                uuid.New(),
		Reference:         domain.NewReference(domain.TransactionTypeTransfer),
		Amount:            in.Amount,
		Description:       in.Description,
		Type:              domain.TransactionTypeTransfer,
		Category:          domain.TransactionCategoryDebit,
		Status:            domain.TransactionStatusPending,
		BalanceBefore:     senderAccount.Balance,
		BalanceAfter:      senderAccount.Balance.Sub(in.Amount),
		SenderAccountID:   &senderAccount.ID,
		ReceiverAccountID: &receiverAccount.ID,
		SenderID:          &sender.ID,
		ReceiverID:        &receiver.ID,
		CreatedAt:         time.Now().UTC(),
		Metadata: map[string]any{
			domain.MetaKeyConversionRate:  quote.Rate.String(),
			domain.MetaKeyConversionFee:   quote.Fee.String(),
			domain.MetaKeyOriginalAmount:  in.Amount.String(),
			domain.MetaKeyConvertedAmount: quote.ConvertedAmount.String(),
			domain.MetaKeyFromCurrency:    senderAccount.Currency,
			domain.MetaKeyToCurrency:      receiverAccount.Currency,
		},
	}
	if err := s.transactions.Create(ctx, q, txn); err != nil {
		return nil, fmt.Errorf("failed to create pending transfer: %w", err)
	}

	otp, err := generateOTP(s.otpLength)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(s.otpTTL)
	// Overwrites any prior outstanding code: a previously pending transfer
	// of this sender can no longer be completed.
	if err := s.users.SetTransferOTP(ctx, q, sender.ID, otp, txn.Reference, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to attach transfer OTP: %w", err)
	}
	sender.TransferOTP = otp
	sender.TransferOTPReference = txn.Reference
	sender.TransferOTPExpiresAt = &expiresAt

	return &TransferInitiation{
		Transaction:     txn,
		SenderAccount:   senderAccount,
		ReceiverAccount: receiverAccount,
		Sender:          sender,
		Receiver:        receiver,
	}, nil
}

// NotifyInitiated sends the sender's OTP email for a committed initiation:
// the caller invokes it once the unit of work that created the pending entry
// has committed, so a rolled-back initiation never leaks a code. Delivery is
// best-effort; a publish failure leaves the transfer pending and retrievable
// by reference.
func (s *TransferService) NotifyInitiated(ctx context.Context, res *TransferInitiation) {
	sender := res.Sender
	txn := res.Transaction

	ev := TransferOTPEvent{
		Email:         sender.Email,
		FullName:      sender.FullName(),
		OTP:           sender.TransferOTP,
		Reference:     txn.Reference,
		Amount:        txn.Amount,
		ExpiryMinutes: int(s.otpTTL.Minutes()),
	}
	if sender.TransferOTPExpiresAt != nil {
		ev.ExpiresAt = *sender.TransferOTPExpiresAt
	}
	if err := s.notifier.TransferOTPIssued(ctx, ev); err != nil {
		notificationFailuresCounter.WithLabelValues("transfer_otp").Inc()
		s.logger.ErrorContext(ctx, "failed to send transfer OTP", "reference", txn.Reference, "error", err)
	}

	transactionsProcessedCounter.WithLabelValues(string(domain.TransactionTypeTransfer), string(domain.TransactionStatusPending)).Inc()
	s.logger.InfoContext(ctx, "transfer initiated",
		"reference", txn.Reference, "sender_account", res.SenderAccount.AccountNumber,
		"receiver_account", res.ReceiverAccount.AccountNumber, "amount", txn.Amount)
}

// transferFailure captures a validation failure observed inside the
// completion unit, to be recorded by the failure classifier after the unit
// has rolled back.
type transferFailure struct {
	reason  domain.FailureReason
	details map[string]any
	message string
	err     error
}

// CompleteTransfer verifies the OTP and settles the pending transfer named
// by reference. All checks and all four mutations (debit, credit, status,
// OTP clear) run in a single unit of work with the pending row locked, so a
// concurrent completion of the same reference observes "not found" once the
// winner commits. Validation failures abort the unit and are then recorded
// as the transaction's terminal failure reason.
func (s *TransferService) CompleteTransfer(ctx context.Context, reference, otp string) (*TransferCompletion, error) {
	start := time.Now()

	var (
		out       *TransferCompletion
		loadedTxn *domain.Transaction
		failure   *transferFailure
	)

	fail := func(f transferFailure) error {
		failure = &f
		return f.err
	}

	err := s.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		txn, err := s.transactions.GetPendingByReferenceForUpdate(ctx, tx, reference)
		if err != nil {
			return err
		}
		loadedTxn = txn

		if txn.SenderAccountID == nil || txn.ReceiverAccountID == nil || txn.SenderID == nil || txn.ReceiverID == nil {
			return fail(transferFailure{
				reason:  domain.FailureInvalidAccount,
				details: map[string]any{"error": "transfer is missing party references"},
				message: "Account information not found",
				err:     domain.ErrAccountNotFound,
			})
		}

		senderAccount, receiverAccount, err := s.lockAccountPair(ctx, tx, *txn.SenderAccountID, *txn.ReceiverAccountID)
		if err != nil {
			if errors.Is(err, domain.ErrAccountNotFound) {
				return fail(transferFailure{
					reason:  domain.FailureInvalidAccount,
					details: map[string]any{"error": err.Error()},
					message: "Account information not found",
					err:     domain.ErrAccountNotFound,
				})
			}
			return err
		}

		sender, err := s.users.GetByID(ctx, tx, *txn.SenderID)
		if err != nil {
			return s.failUserLookup(fail, err)
		}
		receiver, err := s.users.GetByID(ctx, tx, *txn.ReceiverID)
		if err != nil {
			return s.failUserLookup(fail, err)
		}

		if sender.TransferOTP == "" || sender.TransferOTP != otp || sender.TransferOTPReference != txn.Reference {
			return fail(transferFailure{
				reason:  domain.FailureInvalidOTP,
				details: map[string]any{"provided_otp": otp},
				message: "Invalid OTP",
				err:     domain.ErrInvalidOTP,
			})
		}

		now := time.Now().UTC()
		if sender.TransferOTPExpiresAt == nil || now.After(*sender.TransferOTPExpiresAt) {
			var expiry any
			if sender.TransferOTPExpiresAt != nil {
				expiry = sender.TransferOTPExpiresAt.Format(time.RFC3339)
			}
			return fail(transferFailure{
				reason:  domain.FailureOTPExpired,
				details: map[string]any{"expiry_time": expiry, "current_time": now.Format(time.RFC3339)},
				message: "OTP has expired",
				err:     domain.ErrOTPExpired,
			})
		}

		if !senderAccount.IsActive() {
			return fail(transferFailure{
				reason:  domain.FailureAccountInactive,
				details: map[string]any{"account": "sender"},
				message: "Sender account is no longer active",
				err:     domain.ErrAccountInactive,
			})
		}
		if !receiverAccount.IsActive() {
			return fail(transferFailure{
				reason:  domain.FailureAccountInactive,
				details: map[string]any{"account": "receiver"},
				message: "Receiver account is no longer active",
				err:     domain.ErrAccountInactive,
			})
		}

		// Authoritative funds check, against the balance under the row lock.
		if senderAccount.Balance.LessThan(txn.Amount) {
			return fail(transferFailure{
				reason: domain.FailureInsufficientBalance,
				details: map[string]any{
					"required_amount":   txn.Amount.String(),
					"available_balance": senderAccount.Balance.String(),
					"shortfall":         txn.Amount.Sub(senderAccount.Balance).String(),
				},
				message: "Insufficient balance",
				err:     domain.ErrInsufficientBalance,
			})
		}

		convertedAmount, err := txn.ConvertedAmount()
		if err != nil {
			return fail(transferFailure{
				reason:  domain.FailureSystemError,
				details: map[string]any{"error": err.Error()},
				message: "Missing transaction metadata",
				err:     domain.ErrTransactionMetadataLost,
			})
		}

		newSenderBalance := senderAccount.Balance.Sub(txn.Amount)
		newReceiverBalance := receiverAccount.Balance.Add(convertedAmount)

		if err := s.accounts.UpdateBalance(ctx, tx, senderAccount.ID, newSenderBalance); err != nil {
			return err
		}
		if err := s.accounts.UpdateBalance(ctx, tx, receiverAccount.ID, newReceiverBalance); err != nil {
			return err
		}
		completedAt := time.Now().UTC()
		if err := s.transactions.MarkCompleted(ctx, tx, txn.ID, completedAt); err != nil {
			return err
		}
		if err := s.users.ClearTransferOTP(ctx, tx, sender.ID); err != nil {
			return err
		}

		senderAccount.Balance = newSenderBalance
		receiverAccount.Balance = newReceiverBalance
		txn.Status = domain.TransactionStatusCompleted
		txn.CompletedAt = &completedAt
		sender.TransferOTP = ""
		sender.TransferOTPReference = ""
		sender.TransferOTPExpiresAt = nil

		out = &TransferCompletion{
			Transaction:     txn,
			SenderAccount:   senderAccount,
			ReceiverAccount: receiverAccount,
			Sender:          sender,
			Receiver:        receiver,
		}
		return nil
	})

	if err != nil {
		if failure != nil {
			_ = s.failures.MarkFailed(ctx, loadedTxn, failure.reason, failure.details, failure.message)
			return nil, failure.err
		}
		if loadedTxn != nil && !errors.Is(err, domain.ErrTransferNotFound) {
			// Unexpected error with an existing pending row: record it so the
			// reference never vanishes without a diagnosable reason.
			_ = s.failures.MarkFailed(ctx, loadedTxn, domain.FailureSystemError,
				map[string]any{"error": err.Error()}, "A system error occurred")
		}
		return nil, err
	}

	s.notifyCompleted(ctx, out)

	transactionsProcessedCounter.WithLabelValues(string(domain.TransactionTypeTransfer), string(domain.TransactionStatusCompleted)).Inc()
	transferCompletionDurationHist.Observe(time.Since(start).Seconds())
	s.logger.InfoContext(ctx, "transfer completed", "reference", reference,
		"sender_balance", out.SenderAccount.Balance, "receiver_balance", out.ReceiverAccount.Balance)

	return out, nil
}

func (s *TransferService) failUserLookup(fail func(transferFailure) error, err error) error {
	if errors.Is(err, domain.ErrUserNotFound) {
		return fail(transferFailure{
			reason:  domain.FailureInvalidAccount,
			details: map[string]any{"error": err.Error()},
			message: "Account information not found",
			err:     domain.ErrAccountNotFound,
		})
	}
	return err
}

// lockAccountPair acquires both account row locks in ascending ID order so
// two transfers between the same accounts in opposite directions cannot
// deadlock.
func (s *TransferService) lockAccountPair(ctx context.Context, q repository.Querier, senderID, receiverID uuid.UUID) (*domain.Account, *domain.Account, error) {
	first, second := senderID, receiverID
	if bytes.Compare(first[:], second[:]) > 0 {
		first, second = second, first
	}

	firstAcc, err := s.accounts.GetForUpdate(ctx, q, first)
	if err != nil {
		return nil, nil, err
	}
	secondAcc, err := s.accounts.GetForUpdate(ctx, q, second)
	if err != nil {
		return nil, nil, err
	}

	if firstAcc.ID == senderID {
		return firstAcc, secondAcc, nil
	}
	return secondAcc, firstAcc, nil
}

func (s *TransferService) notifyCompleted(ctx context.Context, c *TransferCompletion) {
	rate, _ := decimal.NewFromString(stringMeta(c.Transaction, domain.MetaKeyConversionRate, "1"))
	fee, _ := decimal.NewFromString(stringMeta(c.Transaction, domain.MetaKeyConversionFee, "0"))
	converted, err := c.Transaction.ConvertedAmount()
	if err != nil {
		converted = c.Transaction.Amount
	}

	ev := TransferAlertEvent{
		SenderEmail:           c.Sender.Email,
		ReceiverEmail:         c.Receiver.Email,
		SenderName:            c.Sender.FullName(),
		ReceiverName:          c.Receiver.FullName(),
		SenderAccountNumber:   c.SenderAccount.AccountNumber,
		ReceiverAccountNumber: c.ReceiverAccount.AccountNumber,
		Amount:                c.Transaction.Amount,
		ConvertedAmount:       converted,
		SenderCurrency:        c.SenderAccount.Currency,
		ReceiverCurrency:      c.ReceiverAccount.Currency,
		ExchangeRate:          rate,
		ConversionFee:         fee,
		Description:           c.Transaction.Description,
		Reference:             c.Transaction.Reference,
		TransactionDate:       *c.Transaction.CompletedAt,
	}
	if err := s.notifier.TransferCompleted(ctx, ev); err != nil {
		notificationFailuresCounter.WithLabelValues("transfer_alert").Inc()
		s.logger.ErrorContext(ctx, "failed to send transfer alert", "reference", c.Transaction.Reference, "error", err)
	}
}

func stringMeta(txn *domain.Transaction, key, fallback string) string {
	if v, ok := txn.MetaString(key); ok {
		return v
	}
	return fallback
}
