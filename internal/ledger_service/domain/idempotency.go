package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyKey is the stored response of a previously executed mutating
// request. Rows are never mutated; they expire naturally and a globally
// unique constraint on the key arbitrates concurrent retries.
type IdempotencyKey struct {
	ID           uuid.UUID `json:"id"`
	Key          string    `json:"key"`
	UserID       uuid.UUID `json:"user_id"`
	Endpoint     string    `json:"endpoint"`
	ResponseCode int       `json:"response_code"`
	ResponseBody []byte    `json:"response_body"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}
