package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/novabank/corebanking/internal/ledger_service/adapters/http"
	"github.com/novabank/corebanking/internal/ledger_service/adapters/notify"
	"github.com/novabank/corebanking/internal/ledger_service/app"
	"github.com/novabank/corebanking/internal/ledger_service/repository/postgres"
	"github.com/novabank/corebanking/internal/platform/config"
	"github.com/novabank/corebanking/internal/platform/database"
	"github.com/novabank/corebanking/internal/platform/logger"
	"github.com/novabank/corebanking/internal/platform/messagebroker"
)

const (
	serviceName     = "ledger-service"
	shutdownTimeout = 15 * time.Second
)

// httpLogger is a middleware that logs HTTP requests using slog.
func httpLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			requestID := chiMiddleware.GetReqID(r.Context())

			next.ServeHTTP(ww, r)

			logger.LogAttrs(r.Context(), slog.LevelInfo, "HTTP request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", ww.Status()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
				slog.String("request_id", requestID),
			)
		}
		return http.HandlerFunc(fn)
	}
}

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Ledger service starting...",
		"port", cfg.ServerPort, "log_level", cfg.LogLevel)

	dbPool, err := database.NewDBPool(mainCtx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Successfully connected to PostgreSQL")
	txPool := database.NewTxPool(dbPool)

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS", "url", cfg.NATSUrl)

	accountRepo := postgres.NewPgAccountRepository()
	userRepo := postgres.NewPgUserRepository()
	transactionRepo := postgres.NewPgTransactionRepository()
	idempotencyRepo := postgres.NewPgIdempotencyRepository()
	cardRepo := postgres.NewPgCardRepository()

	converter, err := app.NewRateTableConverter(cfg.ExchangeRates, int64(cfg.ConversionFeeBps))
	if err != nil {
		appLogger.Error("Invalid exchange rate configuration", "error", err)
		os.Exit(1)
	}

	notifier := notify.NewNatsNotifier(natsClient, appLogger)
	failures := app.NewFailureClassifier(transactionRepo, txPool, appLogger)
	idempotency := app.NewIdempotencyRegistry(idempotencyRepo, dbPool, txPool, appLogger,
		time.Duration(cfg.IdempotencyTTLHours)*time.Hour)
	transferService := app.NewTransferService(accountRepo, userRepo, transactionRepo,
		converter, notifier, failures, txPool, appLogger,
		cfg.TransferOTPLength, time.Duration(cfg.TransferOTPExpiryMinutes)*time.Minute)
	tellerService := app.NewTellerService(accountRepo, userRepo, transactionRepo,
		notifier, txPool, appLogger)
	cardService := app.NewCardService(cardRepo, accountRepo, userRepo, transactionRepo,
		notifier, txPool, appLogger)
	historyService := app.NewHistoryService(transactionRepo, accountRepo, userRepo,
		dbPool, appLogger)

	handler := httpadapter.NewHandler(tellerService, transferService, cardService,
		historyService, idempotency, appLogger)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Recoverer)
	router.Use(httpLogger(appLogger))
	handler.Routes(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server ListenAndServe error", "error", err)
			return err
		}
		appLogger.Info("HTTP server shut down gracefully.")
		return nil
	})

	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)

	g.Go(func() error {
		select {
		case sig := <-stopSignal:
			appLogger.Info("Received termination signal", "signal", sig.String())
			mainCancel()
			return nil
		case <-groupCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Initiating graceful shutdown...")

		shutdownCtx, cancelShutdownTimeout := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdownTimeout()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server graceful shutdown failed", "error", err)
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	appLogger.Info("Ledger service is ready and running.")
	if err := g.Wait(); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Service group encountered an error during run/shutdown", "error", err)
		}
	}

	appLogger.Info("Ledger service shut down successfully.")
}
