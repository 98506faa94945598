package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransferOTPEvent asks the notification collaborator to deliver a one-time
// code to the sender out of band.
type TransferOTPEvent struct {
	Email         string          `json:"email"`
	FullName      string          `json:"full_name"`
	OTP           string          `json:"otp"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	ExpiresAt     time.Time       `json:"expires_at"`
	ExpiryMinutes int             `json:"expiry_minutes"`
}

// TransferAlertEvent informs both parties of a settled transfer.
type TransferAlertEvent struct {
	SenderEmail           string          `json:"sender_email"`
	ReceiverEmail         string          `json:"receiver_email"`
	SenderName            string          `json:"sender_name"`
	ReceiverName          string          `json:"receiver_name"`
	SenderAccountNumber   string          `json:"sender_account_number"`
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	ConvertedAmount       decimal.Decimal `json:"converted_amount"`
	SenderCurrency        string          `json:"sender_currency"`
	ReceiverCurrency      string          `json:"receiver_currency"`
	ExchangeRate          decimal.Decimal `json:"exchange_rate"`
	ConversionFee         decimal.Decimal `json:"conversion_fee"`
	Description           string          `json:"description,omitempty"`
	Reference             string          `json:"reference"`
	TransactionDate       time.Time       `json:"transaction_date"`
}

// AccountAlertEvent informs an account owner of a single-phase movement
// (deposit, withdrawal, card top-up).
type AccountAlertEvent struct {
	Email           string          `json:"email"`
	FullName        string          `json:"full_name"`
	Kind            string          `json:"kind"`
	Amount          decimal.Decimal `json:"amount"`
	AccountName     string          `json:"account_name"`
	AccountNumber   string          `json:"account_number"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description,omitempty"`
	Reference       string          `json:"reference"`
	Balance         decimal.Decimal `json:"balance"`
	TransactionDate time.Time       `json:"transaction_date"`
}

// Notifier is the out-of-band notification collaborator. Delivery is
// best-effort: callers log returned errors and never let them affect the
// transactional outcome.
type Notifier interface {
	TransferOTPIssued(ctx context.Context, ev TransferOTPEvent) error
	TransferCompleted(ctx context.Context, ev TransferAlertEvent) error
	AccountAlert(ctx context.Context, ev AccountAlertEvent) error
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) TransferOTPIssued(context.Context, TransferOTPEvent) error  { return nil }
func (NopNotifier) TransferCompleted(context.Context, TransferAlertEvent) error { return nil }
func (NopNotifier) AccountAlert(context.Context, AccountAlertEvent) error       { return nil }
