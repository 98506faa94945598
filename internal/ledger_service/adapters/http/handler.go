package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/novabank/corebanking/internal/ledger_service/app"
	"github.com/novabank/corebanking/internal/ledger_service/domain"
	"github.com/novabank/corebanking/internal/ledger_service/repository"
)

const MaxRequestBodySize = 1 << 20 // 1 MB

// Idempotency registry endpoint identifiers. Stable strings, not paths: a
// route move must not invalidate stored keys.
const (
	endpointWithdraw         = "bank-account/withdraw"
	endpointTransferInitiate = "bank-account/transfer/initiate"
)

// userIDHeader carries the authenticated caller, injected by the API
// gateway after session validation.
const userIDHeader = "X-User-ID"

// Handler exposes the ledger operations over HTTP.
type Handler struct {
	teller      *app.TellerService
	transfers   *app.TransferService
	cards       *app.CardService
	history     *app.HistoryService
	idempotency *app.IdempotencyRegistry
	logger      *slog.Logger
}

func NewHandler(
	teller *app.TellerService,
	transfers *app.TransferService,
	cards *app.CardService,
	history *app.HistoryService,
	idempotency *app.IdempotencyRegistry,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		teller:      teller,
		transfers:   transfers,
		cards:       cards,
		history:     history,
		idempotency: idempotency,
		logger:      logger.With("component", "http_handler"),
	}
}

// Routes mounts the operation surface under /api/v1.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/bank-account", func(r chi.Router) {
			r.Post("/deposit", h.handleDeposit)
			r.Post("/withdraw", h.handleWithdraw)
			r.Post("/transfer/initiate", h.handleInitiateTransfer)
			r.Post("/transfer/complete", h.handleCompleteTransfer)
			r.Get("/transactions", h.handleListTransactions)
		})
		r.Route("/virtual-card", func(r chi.Router) {
			r.Post("/top-up", h.handleTopUp)
		})
	})
}

func (h *Handler) requestLogger(r *http.Request) *slog.Logger {
	return h.logger.With("request_id", chi_middleware.GetReqID(r.Context()))
}

func (h *Handler) callerID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(userIDHeader)
	id, err := uuid.Parse(raw)
	if err != nil {
		h.requestLogger(r).WarnContext(r.Context(), "missing or malformed caller identity header")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Missing or invalid caller identity"})
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeRawJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

// writeDomainError maps engine errors to HTTP statuses. Unrecognized errors
// become a generic 500 without leaking internals.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := h.requestLogger(r)

	var code int
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidDateRange),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrInvalidOTP),
		errors.Is(err, domain.ErrOTPExpired),
		errors.Is(err, domain.ErrInvalidIdempotencyKey):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidSecurityAnswer),
		errors.Is(err, domain.ErrAccountInactive),
		errors.Is(err, domain.ErrCardInactive):
		code = http.StatusForbidden
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrTransferNotFound),
		errors.Is(err, domain.ErrCardNotFound):
		code = http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientBalance):
		code = http.StatusPaymentRequired
	case errors.Is(err, domain.ErrConversionFailed):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		code = http.StatusConflict
	default:
		logger.ErrorContext(r.Context(), "unhandled error in ledger operation", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}

	logger.WarnContext(r.Context(), "ledger operation rejected", "status", code, "error", err)
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.teller.Deposit(r.Context(), app.DepositInput{
		UserID:        userID,
		AccountNumber: req.AccountNumber,
		Amount:        req.Amount,
		Description:   req.Description,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMovementResponse("Deposit successful", res))
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Idempotency-Key header is required"})
		return
	}
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var res *app.TellerResult
	code, body, replayed, err := h.idempotency.Execute(r.Context(), key, userID, endpointWithdraw,
		func(ctx context.Context, q repository.Querier) (app.OperationResult, error) {
			out, err := h.teller.Withdraw(ctx, q, app.WithdrawInput{
				UserID:        userID,
				AccountNumber: req.AccountNumber,
				Amount:        req.Amount,
				Description:   req.Description,
			})
			if err != nil {
				return app.OperationResult{}, err
			}
			res = out
			payload, err := json.Marshal(newMovementResponse("Withdrawal successful", out))
			if err != nil {
				return app.OperationResult{}, err
			}
			return app.OperationResult{Code: http.StatusOK, Body: payload}, nil
		})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if replayed {
		// Covers the race-loser path too, where the operation ran but its
		// unit rolled back: no alert for a debit that never committed.
		w.Header().Set("Idempotent-Replayed", "true")
	} else if res != nil {
		h.teller.NotifyWithdrawal(r.Context(), res)
	}
	writeRawJSON(w, code, body)
}

func (h *Handler) handleInitiateTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Idempotency-Key header is required"})
		return
	}
	var req initiateTransferRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var res *app.TransferInitiation
	code, body, replayed, err := h.idempotency.Execute(r.Context(), key, userID, endpointTransferInitiate,
		func(ctx context.Context, q repository.Querier) (app.OperationResult, error) {
			out, err := h.transfers.InitiateTransfer(ctx, q, app.InitiateTransferInput{
				SenderID:              userID,
				SenderAccountID:       req.SenderAccountID,
				ReceiverAccountNumber: req.ReceiverAccountNumber,
				Amount:                req.Amount,
				Description:           req.Description,
				SecurityAnswer:        req.SecurityAnswer,
			})
			if err != nil {
				return app.OperationResult{}, err
			}
			res = out
			payload, err := json.Marshal(initiateTransferResponse{
				Message:      "Transfer initiated; confirm with the code sent to your email",
				Transaction:  newTransactionResponse(out.Transaction),
				ReceiverName: out.Receiver.FullName(),
				OTPExpiresAt: out.Sender.TransferOTPExpiresAt,
			})
			if err != nil {
				return app.OperationResult{}, err
			}
			return app.OperationResult{Code: http.StatusAccepted, Body: payload}, nil
		})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if replayed {
		// A race loser's initiation rolled back; its OTP must not be sent.
		w.Header().Set("Idempotent-Replayed", "true")
	} else if res != nil {
		h.transfers.NotifyInitiated(r.Context(), res)
	}
	writeRawJSON(w, code, body)
}

func (h *Handler) handleCompleteTransfer(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.callerID(w, r); !ok {
		return
	}
	var req completeTransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Reference == "" || req.OTP == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "reference and otp are required"})
		return
	}

	res, err := h.transfers.CompleteTransfer(r.Context(), req.Reference, req.OTP)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, completeTransferResponse{
		Message:     "Transfer completed",
		Transaction: newTransactionResponse(res.Transaction),
		Balance:     res.SenderAccount.Balance,
	})
}

func (h *Handler) handleTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}
	var req topUpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.cards.TopUp(r.Context(), app.TopUpInput{
		UserID: userID,
		CardID: req.CardID,
		Amount: req.Amount,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, topUpResponse{
		Message:        "Card top-up successful",
		Transaction:    newTransactionResponse(res.Transaction),
		AccountBalance: res.Account.Balance,
		CardBalance:    res.Card.AvailableBalance,
		CardLastFour:   res.Card.LastFour,
	})
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.callerID(w, r)
	if !ok {
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	page, err := h.history.ListUserTransactions(r.Context(), userID, filter)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionListResponse(page))
}

func parseTransactionFilter(r *http.Request) (repository.TransactionFilter, error) {
	var filter repository.TransactionFilter
	q := r.URL.Query()

	if raw := q.Get("start_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid start_date: %q", raw)
		}
		filter.StartDate = &t
	}
	if raw := q.Get("end_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, fmt.Errorf("invalid end_date: %q", raw)
		}
		filter.EndDate = &t
	}
	if raw := q.Get("type"); raw != "" {
		tt := domain.TransactionType(raw)
		filter.Type = &tt
	}
	if raw := q.Get("category"); raw != "" {
		tc := domain.TransactionCategory(raw)
		filter.Category = &tc
	}
	if raw := q.Get("status"); raw != "" {
		ts := domain.TransactionStatus(raw)
		filter.Status = &ts
	}
	if raw := q.Get("min_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid min_amount: %q", raw)
		}
		filter.MinAmount = &d
	}
	if raw := q.Get("max_amount"); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid max_amount: %q", raw)
		}
		filter.MaxAmount = &d
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %q", raw)
		}
		filter.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("invalid offset: %q", raw)
		}
		filter.Offset = n
	}
	return filter, nil
}
