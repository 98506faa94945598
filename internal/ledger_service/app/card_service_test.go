package app

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
)

type cardFixture struct {
	cards    *MockCardRepository
	accounts *MockAccountRepository
	users    *MockUserRepository
	txns     *MockTransactionRepository
	notifier *MockNotifier
	db       *MockDBPool
	svc      *CardService

	owner   *domain.User
	account *domain.Account
	card    *domain.VirtualCard
}

func newCardFixture() *cardFixture {
	f := &cardFixture{
		cards:    new(MockCardRepository),
		accounts: new(MockAccountRepository),
		users:    new(MockUserRepository),
		txns:     new(MockTransactionRepository),
		notifier: new(MockNotifier),
		db:       new(MockDBPool),
	}
	f.owner = &domain.User{
		ID:        uuid.New(),
		Username:  "ada",
		Email:     "ada@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		IsActive:  true,
	}
	f.account = &domain.Account{
		ID:            uuid.New(),
		UserID:        f.owner.ID,
		AccountNumber: "0011223344",
		Currency:      "USD",
		Status:        domain.AccountStatusActive,
		Balance:       decimal.NewFromInt(400),
	}
	f.card = &domain.VirtualCard{
		ID:               uuid.New(),
		UserID:           f.owner.ID,
		AccountID:        f.account.ID,
		LastFour:         "4242",
		Currency:         "USD",
		Status:           domain.VirtualCardStatusActive,
		AvailableBalance: decimal.NewFromInt(25),
		TotalToppedUp:    decimal.NewFromInt(25),
	}
	f.svc = NewCardService(f.cards, f.accounts, f.users, f.txns, f.notifier, f.db, newTestLogger())
	return f
}

func (f *cardFixture) expectResolution() {
	f.db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	f.cards.On("GetForUpdate", mock.Anything, mock.Anything, f.card.ID).Return(f.card, nil)
	f.accounts.On("GetForUpdate", mock.Anything, mock.Anything, f.account.ID).Return(f.account, nil)
	f.users.On("GetByID", mock.Anything, mock.Anything, f.owner.ID).Return(f.owner, nil)
}

func TestTopUp_Success(t *testing.T) {
	f := newCardFixture()
	f.expectResolution()

	var created *domain.Transaction
	f.txns.On("Create", mock.Anything, mock.Anything, mock.AnythingOfType("*domain.Transaction")).
		Run(func(args mock.Arguments) { created = args.Get(2).(*domain.Transaction) }).
		Return(nil)
	f.accounts.On("UpdateBalance", mock.Anything, mock.Anything, f.account.ID,
		decimal.NewFromInt(250)).Return(nil)
	f.cards.On("ApplyTopUp", mock.Anything, mock.Anything, f.card.ID,
		decimal.NewFromInt(150), mock.AnythingOfType("time.Time")).Return(nil)
	f.notifier.On("AccountAlert", mock.Anything, mock.AnythingOfType("app.AccountAlertEvent")).Return(nil)

	res, err := f.svc.TopUp(context.Background(), TopUpInput{
		UserID: f.owner.ID,
		CardID: f.card.ID,
		Amount: decimal.NewFromInt(150),
	})
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^TOP[0-9A-F]{8}$`), created.Reference)
	assert.Equal(t, domain.TransactionCategoryDebit, created.Category)
	assert.Equal(t, "virtual_card", created.Metadata["top_up_type"])
	assert.Equal(t, "4242", created.Metadata["card_last_four"])

	// The funding account is debited: after = before - amount.
	assert.True(t, created.BalanceBefore.Equal(decimal.NewFromInt(400)))
	assert.True(t, created.BalanceAfter.Equal(decimal.NewFromInt(250)))
	assert.True(t, created.BalanceAfter.Equal(created.BalanceBefore.Sub(created.Amount)))

	assert.True(t, res.Account.Balance.Equal(decimal.NewFromInt(250)))
	assert.True(t, res.Card.AvailableBalance.Equal(decimal.NewFromInt(175)))
	assert.True(t, res.Card.TotalToppedUp.Equal(decimal.NewFromInt(175)))
	require.NotNil(t, res.Card.LastTopUpAt)
}

func TestTopUp_CurrencyMismatch(t *testing.T) {
	f := newCardFixture()
	f.card.Currency = "EUR"
	f.db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	f.cards.On("GetForUpdate", mock.Anything, mock.Anything, f.card.ID).Return(f.card, nil)
	f.accounts.On("GetForUpdate", mock.Anything, mock.Anything, f.account.ID).Return(f.account, nil)

	_, err := f.svc.TopUp(context.Background(), TopUpInput{
		UserID: f.owner.ID,
		CardID: f.card.ID,
		Amount: decimal.NewFromInt(10),
	})

	assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	f.txns.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	f.cards.AssertNotCalled(t, "ApplyTopUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTopUp_InsufficientBalance(t *testing.T) {
	f := newCardFixture()
	f.db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	f.cards.On("GetForUpdate", mock.Anything, mock.Anything, f.card.ID).Return(f.card, nil)
	f.accounts.On("GetForUpdate", mock.Anything, mock.Anything, f.account.ID).Return(f.account, nil)

	_, err := f.svc.TopUp(context.Background(), TopUpInput{
		UserID: f.owner.ID,
		CardID: f.card.ID,
		Amount: decimal.NewFromInt(401),
	})

	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	f.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestTopUp_BlockedCard(t *testing.T) {
	f := newCardFixture()
	f.card.Status = domain.VirtualCardStatusBlocked
	f.db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	f.cards.On("GetForUpdate", mock.Anything, mock.Anything, f.card.ID).Return(f.card, nil)

	_, err := f.svc.TopUp(context.Background(), TopUpInput{
		UserID: f.owner.ID,
		CardID: f.card.ID,
		Amount: decimal.NewFromInt(10),
	})

	assert.ErrorIs(t, err, domain.ErrCardInactive)
}

func TestTopUp_CardOfAnotherUser(t *testing.T) {
	f := newCardFixture()
	f.db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	f.cards.On("GetForUpdate", mock.Anything, mock.Anything, f.card.ID).Return(f.card, nil)

	_, err := f.svc.TopUp(context.Background(), TopUpInput{
		UserID: uuid.New(),
		CardID: f.card.ID,
		Amount: decimal.NewFromInt(10),
	})

	assert.ErrorIs(t, err, domain.ErrCardNotFound)
}
