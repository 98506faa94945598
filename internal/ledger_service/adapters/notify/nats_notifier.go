package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/novabank/corebanking/internal/ledger_service/app"
	"github.com/novabank/corebanking/internal/platform/messagebroker"
)

// Subjects consumed by the notification service.
const (
	SubjectTransferOTP   = "notifications.email.transfer_otp"
	SubjectTransferAlert = "notifications.email.transfer_alert"
	SubjectAccountAlert  = "notifications.email.account_alert"
)

// NatsNotifier publishes notification events as JSON onto NATS subjects.
// Delivery to the customer is the notification service's problem; the ledger
// only guarantees a publish attempt.
type NatsNotifier struct {
	client *messagebroker.NatsClient
	logger *slog.Logger
}

func NewNatsNotifier(client *messagebroker.NatsClient, logger *slog.Logger) *NatsNotifier {
	return &NatsNotifier{
		client: client,
		logger: logger.With("component", "nats_notifier"),
	}
}

func (n *NatsNotifier) publish(ctx context.Context, subject string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := n.client.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	n.logger.DebugContext(ctx, "published notification event", "subject", subject, "size", len(payload))
	return nil
}

func (n *NatsNotifier) TransferOTPIssued(ctx context.Context, ev app.TransferOTPEvent) error {
	return n.publish(ctx, SubjectTransferOTP, ev)
}

func (n *NatsNotifier) TransferCompleted(ctx context.Context, ev app.TransferAlertEvent) error {
	return n.publish(ctx, SubjectTransferAlert, ev)
}

func (n *NatsNotifier) AccountAlert(ctx context.Context, ev app.AccountAlertEvent) error {
	return n.publish(ctx, SubjectAccountAlert, ev)
}
