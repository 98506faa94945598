package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

func TestValidateIdempotencyKey(t *testing.T) {
	valid := uuid.New().String()

	cases := []struct {
		name string
		key  string
		ok   bool
	}{
		{"canonical lowercase v4", valid, true},
		{"uppercase rejected", "6BA7B810-9DAD-41D1-80B4-00C04FD430C8", false},
		{"braced rejected", "{" + valid + "}", false},
		{"urn prefix rejected", "urn:uuid:" + valid, false},
		{"v1 rejected", "6ba7b810-9dad-11d1-80b4-00c04fd430c8", false},
		{"not a uuid", "not-a-key", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIdempotencyKey(tc.key)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, domain.ErrInvalidIdempotencyKey)
			}
		})
	}
}

func newRegistryFixture() (*MockIdempotencyRepository, *MockDBPool, *IdempotencyRegistry) {
	keys := new(MockIdempotencyRepository)
	db := new(MockDBPool)
	reg := NewIdempotencyRegistry(keys, nil, db, newTestLogger(), 24*time.Hour)
	return keys, db, reg
}

func TestIdempotencyExecute_FirstAttemptRunsAndStores(t *testing.T) {
	keys, db, reg := newRegistryFixture()
	key := uuid.New().String()
	userID := uuid.New()

	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").
		Return(nil, domain.ErrIdempotencyKeyNotFound)
	db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)

	var stored *domain.IdempotencyKey
	keys.On("Store", mock.Anything, mock.Anything, mock.AnythingOfType("*domain.IdempotencyKey")).
		Run(func(args mock.Arguments) { stored = args.Get(2).(*domain.IdempotencyKey) }).
		Return(nil)

	calls := 0
	code, body, replayed, err := reg.Execute(context.Background(), key, userID, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			calls++
			return OperationResult{Code: 200, Body: []byte(`{"ok":true}`)}, nil
		})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, replayed)
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"ok":true}`, string(body))

	require.NotNil(t, stored)
	assert.Equal(t, key, stored.Key)
	assert.Equal(t, "withdraw", stored.Endpoint)
	assert.Equal(t, userID, stored.UserID)
	assert.Equal(t, stored.CreatedAt.Add(24*time.Hour), stored.ExpiresAt)
}

func TestIdempotencyExecute_ReplaysStoredResponseWithoutRunning(t *testing.T) {
	keys, _, reg := newRegistryFixture()
	key := uuid.New().String()
	userID := uuid.New()

	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").
		Return(&domain.IdempotencyKey{
			Key:          key,
			UserID:       userID,
			Endpoint:     "withdraw",
			ResponseCode: 200,
			ResponseBody: []byte(`{"reference":"WTH12345678"}`),
		}, nil)

	calls := 0
	code, body, replayed, err := reg.Execute(context.Background(), key, userID, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			calls++
			return OperationResult{}, nil
		})

	require.NoError(t, err)
	assert.Zero(t, calls, "a replayed request must not execute the operation")
	assert.True(t, replayed)
	assert.Equal(t, 200, code)
	assert.Equal(t, `{"reference":"WTH12345678"}`, string(body))
}

// A key stored for one user is invisible to every other caller: both lookups
// are user-scoped, so the stranger's attempt runs, collides on the unique
// key, rolls back, and surfaces a conflict instead of the owner's response.
func TestIdempotencyExecute_KeyOfAnotherUserNeverReplaysTheirResponse(t *testing.T) {
	keys, db, reg := newRegistryFixture()
	key := uuid.New().String()
	stranger := uuid.New()

	keys.On("Lookup", mock.Anything, mock.Anything, key, stranger, "withdraw").
		Return(nil, domain.ErrIdempotencyKeyNotFound)
	db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	keys.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrIdempotencyKeyExists)

	_, body, _, err := reg.Execute(context.Background(), key, stranger, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			return OperationResult{Code: 200, Body: []byte(`{"stranger":true}`)}, nil
		})

	assert.ErrorIs(t, err, domain.ErrIdempotencyInProgress)
	assert.Nil(t, body, "the owner's stored response must not leak")
}

func TestIdempotencyExecute_OperationErrorNothingStored(t *testing.T) {
	keys, db, reg := newRegistryFixture()
	key := uuid.New().String()
	userID := uuid.New()

	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").
		Return(nil, domain.ErrIdempotencyKeyNotFound)
	db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)

	_, _, _, err := reg.Execute(context.Background(), key, userID, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			return OperationResult{}, domain.ErrInsufficientBalance
		})

	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	keys.AssertNotCalled(t, "Store", mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotencyExecute_RaceLoserServesWinnersResponse(t *testing.T) {
	keys, db, reg := newRegistryFixture()
	key := uuid.New().String()
	userID := uuid.New()

	// Miss on the fast path, then the unique constraint fires at store time
	// and the second lookup finds the winner's row.
	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").
		Return(nil, domain.ErrIdempotencyKeyNotFound).Once()
	db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	keys.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrIdempotencyKeyExists)
	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").
		Return(&domain.IdempotencyKey{ResponseCode: 200, ResponseBody: []byte(`{"winner":true}`)}, nil)

	code, body, replayed, err := reg.Execute(context.Background(), key, userID, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			return OperationResult{Code: 200, Body: []byte(`{"loser":true}`)}, nil
		})

	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, 200, code)
	assert.Equal(t, `{"winner":true}`, string(body))
}

func TestIdempotencyExecute_RaceLoserWinnerNotVisibleYet(t *testing.T) {
	keys, db, reg := newRegistryFixture()
	key := uuid.New().String()
	userID := uuid.New()

	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").
		Return(nil, domain.ErrIdempotencyKeyNotFound)
	db.On("BeginFunc", mock.Anything, mock.Anything).Return(nil)
	keys.On("Store", mock.Anything, mock.Anything, mock.Anything).
		Return(domain.ErrIdempotencyKeyExists)

	_, _, _, err := reg.Execute(context.Background(), key, userID, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			return OperationResult{Code: 200, Body: []byte(`{}`)}, nil
		})

	assert.ErrorIs(t, err, domain.ErrIdempotencyInProgress)
}

func TestIdempotencyExecute_MalformedKeyRejectedUpFront(t *testing.T) {
	keys, _, reg := newRegistryFixture()

	_, _, _, err := reg.Execute(context.Background(), "nope", uuid.New(), "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			t.Fatal("operation must not run")
			return OperationResult{}, nil
		})

	assert.ErrorIs(t, err, domain.ErrInvalidIdempotencyKey)
	keys.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestIdempotencyExecute_LookupInfrastructureError(t *testing.T) {
	keys, _, reg := newRegistryFixture()
	key := uuid.New().String()
	userID := uuid.New()
	boom := errors.New("connection reset")

	keys.On("Lookup", mock.Anything, mock.Anything, key, userID, "withdraw").Return(nil, boom)

	_, _, _, err := reg.Execute(context.Background(), key, userID, "withdraw",
		func(ctx context.Context, q repository.Querier) (OperationResult, error) {
			return OperationResult{}, nil
		})

	assert.ErrorIs(t, err, boom)
}
