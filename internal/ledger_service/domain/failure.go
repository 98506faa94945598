package domain

// FailureReason is the closed taxonomy of why a transaction did not
// complete. Every transaction that leaves pending without reaching
// completed carries exactly one of these.
type FailureReason string

const (
	FailureInsufficientBalance      FailureReason = "insufficient_balance"
	FailureInvalidOTP               FailureReason = "invalid_otp"
	FailureOTPExpired               FailureReason = "otp_expired"
	FailureCurrencyConversionFailed FailureReason = "currency_conversion_failed"
	FailureAccountInactive          FailureReason = "account_inactive"
	FailureSystemError              FailureReason = "system_error"
	FailureInvalidAmount            FailureReason = "invalid_amount"
	FailureInvalidAccount           FailureReason = "invalid_account"
	FailureSelfTransfer             FailureReason = "self_transfer"
	FailureSuspiciousActivity       FailureReason = "suspicious_activity"
)
