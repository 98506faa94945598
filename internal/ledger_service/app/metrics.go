package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transactionsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transactions_processed_total",
			Help:      "Total number of money-movement operations processed.",
		},
		[]string{"type", "status"},
	)

	transactionFailureCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "transaction_failures_total",
			Help:      "Total number of transactions marked failed, by reason.",
		},
		[]string{"reason"},
	)

	transferCompletionDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "transfer_completion_duration_seconds",
			Help:      "Duration of transfer completion (OTP verification through commit).",
			Buckets:   prometheus.DefBuckets,
		},
	)

	idempotencyRequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "idempotency_requests_total",
			Help:      "Idempotency registry outcomes per endpoint.",
		},
		[]string{"endpoint", "outcome"}, // outcome: hit, miss, conflict
	)

	notificationFailuresCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ledger",
			Name:      "notification_failures_total",
			Help:      "Best-effort notification sends that failed.",
		},
		[]string{"kind"},
	)
)
