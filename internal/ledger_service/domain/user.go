package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account holder. Besides identity it carries the transfer-OTP
// lifecycle state: at most one transfer OTP may be outstanding per user at a
// time, and it is bound to the reference of the pending transfer it
// authorizes. Initiating a new transfer overwrites any prior code.
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	LastName    string    `json:"last_name"`
	IsActive    bool      `json:"is_active"`

	// Secondary authentication factor for outgoing transfers, independent
	// of session auth. Stored as a bcrypt hash.
	SecurityAnswerHash string `json:"-"`

	TransferOTP          string     `json:"-"`
	TransferOTPReference string     `json:"-"`
	TransferOTPExpiresAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName renders the display name used in counterparty metadata and
// notification payloads.
func (u *User) FullName() string {
	parts := []string{u.FirstName, u.MiddleName, u.LastName}
	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
