package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VirtualCardStatus is the administrative state of a virtual card.
type VirtualCardStatus string

const (
	VirtualCardStatusActive  VirtualCardStatus = "active"
	VirtualCardStatusBlocked VirtualCardStatus = "blocked"
	VirtualCardStatusExpired VirtualCardStatus = "expired"
)

// VirtualCard models the balance-relevant part of a virtual card. Issuance
// and blocking mechanics live elsewhere; the ledger core only moves money
// onto it from a funding account.
type VirtualCard struct {
	ID               uuid.UUID         `json:"id"`
	UserID           uuid.UUID         `json:"user_id"`
	AccountID        uuid.UUID         `json:"account_id"`
	LastFour         string            `json:"last_four_digits"`
	Currency         string            `json:"currency"`
	Status           VirtualCardStatus `json:"card_status"`
	AvailableBalance decimal.Decimal   `json:"available_balance"`
	TotalToppedUp    decimal.Decimal   `json:"total_topped_up"`
	LastTopUpAt      *time.Time        `json:"last_top_up_date,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
