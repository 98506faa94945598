package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountStatus is the administrative state of a bank account. Only active
// accounts may source or receive funds.
type AccountStatus string

const (
	AccountStatusActive    AccountStatus = "active"
	AccountStatusInactive  AccountStatus = "inactive"
	AccountStatusClosed    AccountStatus = "closed"
	AccountStatusSuspended AccountStatus = "suspended"
)

// Account holds a customer's current balance. The balance is mutated only
// through the account repository inside the same transactional unit as the
// ledger write it accompanies.
type Account struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	AccountNumber string          `json:"account_number"`
	AccountName   string          `json:"account_name"`
	Currency      string          `json:"currency"`
	Status        AccountStatus   `json:"account_status"`
	Balance       decimal.Decimal `json:"balance"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// IsActive reports whether the account may take part in money movements.
func (a *Account) IsActive() bool {
	return a.Status == AccountStatusActive
}
