package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

// ValidateIdempotencyKey accepts only a canonical lowercase UUID v4: the
// parsed key rendered back to its canonical form must equal the input
// exactly, which rejects uppercase, braced, and urn-prefixed variants.
func ValidateIdempotencyKey(key string) error {
	u, err := uuid.Parse(key)
	if err != nil || u.Version() != 4 || u.String() != key {
		return domain.ErrInvalidIdempotencyKey
	}
	return nil
}

// OperationResult is what a gated operation produces for caching: the
// response to replay on retries.
type OperationResult struct {
	Code int
	Body []byte
}

// OperationFunc runs the gated operation on the Querier of the registry's
// transactional unit, so the operation's effects and the stored response
// commit or roll back together.
type OperationFunc func(ctx context.Context, q repository.Querier) (OperationResult, error)

// IdempotencyRegistry makes retried mutating requests safe: the first
// execution's response is stored under the client-supplied key and replayed
// verbatim for every later attempt until the key expires.
type IdempotencyRegistry struct {
	keys   repository.IdempotencyRepository
	pool   repository.Querier
	db     repository.DBPool
	logger *slog.Logger
	ttl    time.Duration
}

func NewIdempotencyRegistry(keys repository.IdempotencyRepository, pool repository.Querier, db repository.DBPool, logger *slog.Logger, ttl time.Duration) *IdempotencyRegistry {
	return &IdempotencyRegistry{
		keys:   keys,
		pool:   pool,
		db:     db,
		logger: logger.With("component", "idempotency_registry"),
		ttl:    ttl,
	}
}

// Execute runs fn at most once per key while the key is unexpired. Stored
// responses are scoped to the acting user: a lookup only matches rows stored
// for userID, so a caller replaying someone else's key never sees their
// response. The returned bool reports whether the response was replayed from
// the registry. The unique constraint on the key arbitrates concurrent
// retries: the loser's unit rolls back and the winner's stored response is
// re-queried, so the underlying operation never executes twice.
func (r *IdempotencyRegistry) Execute(ctx context.Context, key string, userID uuid.UUID, endpoint string, fn OperationFunc) (int, []byte, bool, error) {
	if err := ValidateIdempotencyKey(key); err != nil {
		return 0, nil, false, err
	}

	if rec, err := r.keys.Lookup(ctx, r.pool, key, userID, endpoint); err == nil {
		idempotencyRequestsCounter.WithLabelValues(endpoint, "hit").Inc()
		return rec.ResponseCode, rec.ResponseBody, true, nil
	} else if !errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return 0, nil, false, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	idempotencyRequestsCounter.WithLabelValues(endpoint, "miss").Inc()

	var res OperationResult
	err := r.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var err error
		res, err = fn(ctx, tx)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		return r.keys.Store(ctx, tx, &domain.IdempotencyKey{
			Key:          key,
			UserID:       userID,
			Endpoint:     endpoint,
			ResponseCode: res.Code,
			ResponseBody: res.Body,
			CreatedAt:    now,
			ExpiresAt:    now.Add(r.ttl),
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyExists) {
			// Lost the race: someone else executed under this key and our
			// unit rolled back. Serve their stored response if it belongs to
			// the same user; a stranger's row stays invisible.
			idempotencyRequestsCounter.WithLabelValues(endpoint, "conflict").Inc()
			r.logger.InfoContext(ctx, "idempotency key race lost, replaying stored response",
				"endpoint", endpoint, "key", key)
			if rec, lerr := r.keys.Lookup(ctx, r.pool, key, userID, endpoint); lerr == nil {
				return rec.ResponseCode, rec.ResponseBody, true, nil
			}
			return 0, nil, false, domain.ErrIdempotencyInProgress
		}
		return 0, nil, false, err
	}

	return res.Code, res.Body, false, nil
}
