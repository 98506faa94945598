package http

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novabank/corebanking/internal/ledger_service/domain"
)

func newTestHandler() *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandler(nil, nil, nil, nil, nil, logger)
}

func TestHandleWithdraw_MissingIdempotencyKey(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bank-account/withdraw",
		strings.NewReader(`{"account_number":"0011223344","amount":"10"}`))
	req.Header.Set(userIDHeader, uuid.New().String())
	rec := httptest.NewRecorder()

	h.handleWithdraw(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Idempotency-Key")
}

func TestCallerIdentityRequired(t *testing.T) {
	h := newTestHandler()

	for _, header := range []string{"", "not-a-uuid"} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/bank-account/deposit",
			strings.NewReader(`{}`))
		if header != "" {
			req.Header.Set(userIDHeader, header)
		}
		rec := httptest.NewRecorder()

		h.handleDeposit(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestHandleCompleteTransfer_RequiresReferenceAndOTP(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bank-account/transfer/complete",
		strings.NewReader(`{"reference":"","otp":""}`))
	req.Header.Set(userIDHeader, uuid.New().String())
	rec := httptest.NewRecorder()

	h.handleCompleteTransfer(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteDomainError_StatusMapping(t *testing.T) {
	h := newTestHandler()

	cases := []struct {
		err  error
		code int
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrSelfTransfer, http.StatusBadRequest},
		{domain.ErrInvalidOTP, http.StatusBadRequest},
		{domain.ErrOTPExpired, http.StatusBadRequest},
		{domain.ErrInvalidIdempotencyKey, http.StatusBadRequest},
		{domain.ErrInvalidSecurityAnswer, http.StatusForbidden},
		{domain.ErrAccountInactive, http.StatusForbidden},
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{domain.ErrTransferNotFound, http.StatusNotFound},
		{domain.ErrCardNotFound, http.StatusNotFound},
		{domain.ErrInsufficientBalance, http.StatusPaymentRequired},
		{domain.ErrConversionFailed, http.StatusUnprocessableEntity},
		{domain.ErrIdempotencyInProgress, http.StatusConflict},
		{errors.New("pool exhausted"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		h.writeDomainError(rec, req, tc.err)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}

	// Wrapped errors map the same as their sentinels.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	h.writeDomainError(rec, req, errors.New("sender account: "+domain.ErrAccountInactive.Error()))
	assert.Equal(t, http.StatusInternalServerError, rec.Code,
		"string-matching must not substitute for errors.Is")
}

func TestParseTransactionFilter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/bank-account/transactions?start_date=2026-01-01T00:00:00Z&end_date=2026-02-01T00:00:00Z&type=transfer&status=completed&min_amount=5.50&limit=10&offset=20", nil)

	filter, err := parseTransactionFilter(req)
	require.NoError(t, err)

	require.NotNil(t, filter.StartDate)
	require.NotNil(t, filter.EndDate)
	assert.Equal(t, domain.TransactionTypeTransfer, *filter.Type)
	assert.Equal(t, domain.TransactionStatusCompleted, *filter.Status)
	assert.Equal(t, "5.5", filter.MinAmount.String())
	assert.Equal(t, 10, filter.Limit)
	assert.Equal(t, 20, filter.Offset)
	assert.Nil(t, filter.Category)
	assert.Nil(t, filter.MaxAmount)
}

func TestParseTransactionFilter_BadInput(t *testing.T) {
	for _, query := range []string{
		"start_date=yesterday",
		"min_amount=ten",
		"limit=many",
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/bank-account/transactions?"+query, nil)
		_, err := parseTransactionFilter(req)
		assert.Error(t, err, "query %q", query)
	}
}
