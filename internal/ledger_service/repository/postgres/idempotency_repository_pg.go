package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

// pgUniqueViolation is the PostgreSQL error code for a unique-constraint
// violation, raised when two retries of the same request race on Store.
const pgUniqueViolation = "23505"

type pgIdempotencyRepository struct{}

// NewPgIdempotencyRepository creates the PostgreSQL idempotency registry.
func NewPgIdempotencyRepository() repository.IdempotencyRepository {
	return &pgIdempotencyRepository{}
}

func (r *pgIdempotencyRepository) Lookup(ctx context.Context, q repository.Querier, key string, userID uuid.UUID, endpoint string) (*domain.IdempotencyKey, error) {
	rec := &domain.IdempotencyKey{}
	err := q.QueryRow(ctx, `
		SELECT id, key, user_id, endpoint, response_code, response_body, created_at, expires_at
		FROM idempotency_keys
		WHERE key = $1 AND user_id = $2 AND endpoint = $3 AND expires_at > $4`,
		key, userID, endpoint, time.Now().UTC(),
	).Scan(
		&rec.ID, &rec.Key, &rec.UserID, &rec.Endpoint,
		&rec.ResponseCode, &rec.ResponseBody, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIdempotencyKeyNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (r *pgIdempotencyRepository) Store(ctx context.Context, q repository.Querier, record *domain.IdempotencyKey) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := q.Exec(ctx, `
		INSERT INTO idempotency_keys (id, key, user_id, endpoint, response_code, response_body, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Key, record.UserID, record.Endpoint,
		record.ResponseCode, record.ResponseBody, record.CreatedAt, record.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrIdempotencyKeyExists
		}
		return err
	}
	return nil
}
