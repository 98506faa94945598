package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

// FailureClassifier is the single place a transaction transitions to failed.
// The transition runs in its own unit of work and touches no account
// balance, so a failed transaction never has a balance side effect.
type FailureClassifier struct {
	transactions repository.TransactionRepository
	db           repository.DBPool
	logger       *slog.Logger
}

func NewFailureClassifier(transactions repository.TransactionRepository, db repository.DBPool, logger *slog.Logger) *FailureClassifier {
	return &FailureClassifier{
		transactions: transactions,
		db:           db,
		logger:       logger.With("component", "failure_classifier"),
	}
}

// MarkFailed records why txn did not complete: status -> failed,
// failed_reason set, and a failure_details block (reason, timestamp,
// error message, caller-supplied details) merged into the metadata.
func (c *FailureClassifier) MarkFailed(ctx context.Context, txn *domain.Transaction, reason domain.FailureReason, details map[string]any, errorMessage string) error {
	failureDetails := map[string]any{
		"reason":        string(reason),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"error_message": errorMessage,
	}
	for k, v := range details {
		failureDetails[k] = v
	}

	metadata := make(map[string]any, len(txn.Metadata)+1)
	for k, v := range txn.Metadata {
		metadata[k] = v
	}
	metadata[domain.MetaKeyFailureDetails] = failureDetails

	err := c.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		return c.transactions.MarkFailed(ctx, tx, txn.ID, reason, metadata)
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to mark transaction failed",
			"reference", txn.Reference, "reason", reason, "error", err)
		return err
	}

	txn.Status = domain.TransactionStatusFailed
	reasonStr := string(reason)
	txn.FailedReason = &reasonStr
	txn.Metadata = metadata

	transactionFailureCounter.WithLabelValues(string(reason)).Inc()
	c.logger.ErrorContext(ctx, "transaction failed",
		"reference", txn.Reference, "reason", reason, "details", failureDetails)
	return nil
}
