package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType defines the nature of a money movement.
type TransactionType string

const (
	TransactionTypeDeposit          TransactionType = "deposit"
	TransactionTypeWithdrawal       TransactionType = "withdrawal"
	TransactionTypeTransfer         TransactionType = "transfer"
	TransactionTypeReversal         TransactionType = "reversal"
	TransactionTypeFeeCharged       TransactionType = "fee_charged"
	TransactionTypeLoanDisbursement TransactionType = "loan_disbursement"
	TransactionTypeLoanRepayment    TransactionType = "loan_repayment"
	TransactionTypeInterestCredited TransactionType = "interest_credited"
)

// Value implements driver.Valuer for TransactionType.
func (tt TransactionType) Value() (driver.Value, error) {
	return string(tt), nil
}

// Scan implements sql.Scanner for TransactionType.
func (tt *TransactionType) Scan(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		bytesVal, ok := value.([]byte)
		if !ok {
			return fmt.Errorf("failed to scan TransactionType: value is not string or []byte, it is %T", value)
		}
		strVal = string(bytesVal)
	}
	*tt = TransactionType(strVal)
	switch *tt {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransfer,
		TransactionTypeReversal, TransactionTypeFeeCharged, TransactionTypeLoanDisbursement,
		TransactionTypeLoanRepayment, TransactionTypeInterestCredited:
		return nil
	default:
		return fmt.Errorf("unknown TransactionType value: %s", strVal)
	}
}

// TransactionStatus is the lifecycle state of a transaction. The only
// permitted transitions are pending -> completed and pending -> failed;
// completed, failed, reversed and cancelled are terminal.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether no further status transition is possible.
func (ts TransactionStatus) IsTerminal() bool {
	return ts != TransactionStatusPending
}

// TransactionCategory marks which side of the affected account the entry is on.
type TransactionCategory string

const (
	TransactionCategoryCredit TransactionCategory = "credit"
	TransactionCategoryDebit  TransactionCategory = "debit"
)

var referencePrefixes = map[TransactionType]string{
	TransactionTypeDeposit:          "DEP",
	TransactionTypeWithdrawal:       "WTH",
	TransactionTypeTransfer:         "TRF",
	TransactionTypeReversal:         "RVS",
	TransactionTypeFeeCharged:       "FEE",
	TransactionTypeLoanDisbursement: "LND",
	TransactionTypeLoanRepayment:    "LNR",
	TransactionTypeInterestCredited: "INT",
}

// NewReference produces the human-readable unique reference for a
// transaction: a 3-letter type prefix followed by 8 uppercase hex chars,
// e.g. "TRF1A2B3C4D".
func NewReference(tt TransactionType) string {
	prefix, ok := referencePrefixes[tt]
	if !ok {
		prefix = "TXN"
	}
	return NewReferenceWithPrefix(prefix)
}

// NewReferenceWithPrefix builds a reference under an explicit prefix, for
// movements that share a transaction type but carry a distinct reference
// family (virtual-card top-ups use "TOP" over type withdrawal).
func NewReferenceWithPrefix(prefix string) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(hex[:8])
}

// Metadata keys shared between the transfer state machine and the
// failure classifier.
const (
	MetaKeyConvertedAmount = "converted_amount"
	MetaKeyOriginalAmount  = "original_amount"
	MetaKeyConversionRate  = "conversion_rate"
	MetaKeyConversionFee   = "conversion_fee"
	MetaKeyFromCurrency    = "from_currency"
	MetaKeyToCurrency      = "to_currency"
	MetaKeyFailureDetails  = "failure_details"
)

// Transaction is the ledger entry for one money-movement attempt. Rows are
// never deleted; after creation the only permitted mutation is a status
// transition (plus the metadata merged by the failure classifier).
type Transaction struct {
	ID            uuid.UUID           `json:"id"`
	Reference     string              `json:"reference"`
	Amount        decimal.Decimal     `json:"amount"`
	Description   string              `json:"description,omitempty"`
	Type          TransactionType     `json:"transaction_type"`
	Category      TransactionCategory `json:"transaction_category"`
	Status        TransactionStatus   `json:"status"`
	BalanceBefore decimal.Decimal     `json:"balance_before"`
	BalanceAfter  decimal.Decimal     `json:"balance_after"`

	SenderAccountID   *uuid.UUID `json:"sender_account_id,omitempty"`
	ReceiverAccountID *uuid.UUID `json:"receiver_account_id,omitempty"`
	SenderID          *uuid.UUID `json:"sender_id,omitempty"`
	ReceiverID        *uuid.UUID `json:"receiver_id,omitempty"`
	ProcessedBy       *uuid.UUID `json:"processed_by,omitempty"`

	Metadata     map[string]any `json:"transaction_metadata,omitempty"`
	FailedReason *string        `json:"failed_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SetMeta initializes the metadata map on first use.
func (t *Transaction) SetMeta(key string, value any) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
}

// MetaString returns a metadata value as a string, with ok=false when the
// key is absent or not a string.
func (t *Transaction) MetaString(key string) (string, bool) {
	if t.Metadata == nil {
		return "", false
	}
	s, ok := t.Metadata[key].(string)
	return s, ok
}

// ConvertedAmount extracts the receiver-side credit amount recorded at
// initiation time. The transfer state machine treats a missing or
// unparseable value as corrupted metadata.
func (t *Transaction) ConvertedAmount() (decimal.Decimal, error) {
	raw, ok := t.MetaString(MetaKeyConvertedAmount)
	if !ok {
		return decimal.Zero, fmt.Errorf("transaction %s: metadata has no %s", t.Reference, MetaKeyConvertedAmount)
	}
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("transaction %s: invalid %s %q: %w", t.Reference, MetaKeyConvertedAmount, raw, err)
	}
	return amt, nil
}
