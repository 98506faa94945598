package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

type pgUserRepository struct{}

// NewPgUserRepository creates the PostgreSQL user repository.
func NewPgUserRepository() repository.UserRepository {
	return &pgUserRepository{}
}

const userColumns = `id, username, email, first_name, COALESCE(middle_name, ''), last_name, is_active,
       security_answer_hash, COALESCE(transfer_otp, ''), COALESCE(transfer_otp_reference, ''),
       transfer_otp_expires_at, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.MiddleName, &u.LastName, &u.IsActive,
		&u.SecurityAnswerHash, &u.TransferOTP, &u.TransferOTPReference,
		&u.TransferOTPExpiresAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (r *pgUserRepository) GetByID(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(q.QueryRow(ctx, query, id))
}

func (r *pgUserRepository) GetByUsername(ctx context.Context, q repository.Querier, username string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(q.QueryRow(ctx, query, username))
}

// SetTransferOTP overwrites any outstanding code; only one transfer OTP may
// be outstanding per user at a time.
func (r *pgUserRepository) SetTransferOTP(ctx context.Context, q repository.Querier, userID uuid.UUID, otp, reference string, expiresAt time.Time) error {
	tag, err := q.Exec(ctx,
		`UPDATE users
		 SET transfer_otp = $1, transfer_otp_reference = $2, transfer_otp_expires_at = $3, updated_at = $4
		 WHERE id = $5`,
		otp, reference, expiresAt, time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *pgUserRepository) ClearTransferOTP(ctx context.Context, q repository.Querier, userID uuid.UUID) error {
	tag, err := q.Exec(ctx,
		`UPDATE users
		 SET transfer_otp = '', transfer_otp_reference = '', transfer_otp_expires_at = NULL, updated_at = $1
		 WHERE id = $2`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}
