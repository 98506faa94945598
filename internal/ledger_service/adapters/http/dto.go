package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/app"
	"github.com/novabank/corebanking/internal/ledger_service/domain"
)

type depositRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

type withdrawRequest struct {
	AccountNumber string          `json:"account_number"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
}

type initiateTransferRequest struct {
	SenderAccountID       uuid.UUID       `json:"sender_account_id"`
	ReceiverAccountNumber string          `json:"receiver_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	Description           string          `json:"description,omitempty"`
	SecurityAnswer        string          `json:"security_answer"`
}

type completeTransferRequest struct {
	Reference string `json:"reference"`
	OTP       string `json:"otp"`
}

type topUpRequest struct {
	CardID uuid.UUID       `json:"card_id"`
	Amount decimal.Decimal `json:"amount"`
}

type transactionResponse struct {
	ID            uuid.UUID       `json:"id"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description,omitempty"`
	Type          string          `json:"transaction_type"`
	Category      string          `json:"transaction_category"`
	Status        string          `json:"status"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	FailedReason  *string         `json:"failed_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

func newTransactionResponse(t *domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:            t.ID,
		Reference:     t.Reference,
		Amount:        t.Amount,
		Description:   t.Description,
		Type:          string(t.Type),
		Category:      string(t.Category),
		Status:        string(t.Status),
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Metadata:      t.Metadata,
		FailedReason:  t.FailedReason,
		CreatedAt:     t.CreatedAt,
		CompletedAt:   t.CompletedAt,
	}
}

type movementResponse struct {
	Message     string              `json:"message"`
	Transaction transactionResponse `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
}

func newMovementResponse(message string, res *app.TellerResult) movementResponse {
	return movementResponse{
		Message:     message,
		Transaction: newTransactionResponse(res.Transaction),
		Balance:     res.Account.Balance,
	}
}

type initiateTransferResponse struct {
	Message      string              `json:"message"`
	Transaction  transactionResponse `json:"transaction"`
	ReceiverName string              `json:"receiver_name"`
	OTPExpiresAt *time.Time          `json:"otp_expires_at,omitempty"`
}

type completeTransferResponse struct {
	Message     string              `json:"message"`
	Transaction transactionResponse `json:"transaction"`
	Balance     decimal.Decimal     `json:"balance"`
}

type topUpResponse struct {
	Message        string              `json:"message"`
	Transaction    transactionResponse `json:"transaction"`
	AccountBalance decimal.Decimal     `json:"account_balance"`
	CardBalance    decimal.Decimal     `json:"card_balance"`
	CardLastFour   string              `json:"card_last_four"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func newTransactionListResponse(page *app.TransactionPage) transactionListResponse {
	out := transactionListResponse{
		Transactions: make([]transactionResponse, 0, len(page.Transactions)),
		Total:        page.Total,
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	for i := range page.Transactions {
		out.Transactions = append(out.Transactions, newTransactionResponse(&page.Transactions[i]))
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}
