package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

type pgCardRepository struct{}

// NewPgCardRepository creates the PostgreSQL virtual-card repository.
func NewPgCardRepository() repository.CardRepository {
	return &pgCardRepository{}
}

func (r *pgCardRepository) GetForUpdate(ctx context.Context, q repository.Querier, id uuid.UUID) (*domain.VirtualCard, error) {
	card := &domain.VirtualCard{}
	err := q.QueryRow(ctx, `
		SELECT id, user_id, account_id, last_four_digits, currency, card_status,
		       available_balance, total_topped_up, last_top_up_date, created_at
		FROM virtual_cards WHERE id = $1 FOR UPDATE`, id,
	).Scan(
		&card.ID, &card.UserID, &card.AccountID, &card.LastFour, &card.Currency, &card.Status,
		&card.AvailableBalance, &card.TotalToppedUp, &card.LastTopUpAt, &card.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCardNotFound
		}
		return nil, err
	}
	return card, nil
}

func (r *pgCardRepository) ApplyTopUp(ctx context.Context, q repository.Querier, id uuid.UUID, amount decimal.Decimal, at time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE virtual_cards
		SET available_balance = available_balance + $1,
		    total_topped_up = total_topped_up + $1,
		    last_top_up_date = $2
		WHERE id = $3`,
		amount, at, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCardNotFound
	}
	return nil
}
