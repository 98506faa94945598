package domain

import "errors"

// Sentinel errors for the ledger core. Services wrap these with context via
// fmt.Errorf("...: %w", err); the transport adapter maps them to status
// codes with errors.Is.
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountInactive     = errors.New("account is not active")
	ErrUserNotFound        = errors.New("user not found")
	ErrTransferNotFound    = errors.New("transfer not found")
	ErrCardNotFound        = errors.New("virtual card not found")
	ErrCardInactive        = errors.New("card is not active")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrConversionFailed    = errors.New("currency conversion failed")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSelfTransfer        = errors.New("cannot transfer to your own account")
	ErrInvalidSecurityAnswer = errors.New("incorrect security answer")
	ErrInvalidOTP            = errors.New("invalid OTP")
	ErrOTPExpired            = errors.New("OTP has expired")
	ErrInvalidAmount         = errors.New("amount must be a positive value with at most two decimal places")
	ErrInvalidDateRange      = errors.New("start date must not be after end date")

	ErrInvalidIdempotencyKey   = errors.New("idempotency key must be a canonical lowercase UUID v4")
	ErrIdempotencyKeyNotFound  = errors.New("idempotency key not found")
	ErrIdempotencyKeyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyInProgress   = errors.New("a request with this idempotency key is being processed")
	ErrTransactionMetadataLost = errors.New("transaction metadata is missing or corrupted")
)
