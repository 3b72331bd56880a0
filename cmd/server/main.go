package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeexam/examdesk/internal/config"
	"github.com/freeexam/examdesk/internal/database"
	"github.com/freeexam/examdesk/internal/freeexam"
	"github.com/freeexam/examdesk/internal/handler"
	"github.com/freeexam/examdesk/internal/logger"
	"github.com/freeexam/examdesk/internal/middleware"
	"github.com/freeexam/examdesk/internal/repository"
	"github.com/freeexam/examdesk/internal/response"
	"github.com/freeexam/examdesk/internal/router"
	"github.com/freeexam/examdesk/internal/service"
	"github.com/freeexam/examdesk/internal/validator"
	"github.com/freeexam/examdesk/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("upstream", cfg.UpstreamBaseURL).
		Msg("Starting examdesk gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Upstream Client ───────────────────────────────────────────────
	api := freeexam.NewClient(freeexam.Config{
		BaseURL:   cfg.UpstreamBaseURL,
		Timeout:   cfg.UpstreamTimeout,
		RequestID: response.RequestIDFromContext,
		Logger:    log,
	})

	// ─── Initialize Repositories ───────────────────────────────────────
	ledgerRepo := repository.NewSessionLedgerRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	cache := service.NewQueryCache(rdb, cfg.CacheTTL, log)
	events := service.NewRedisEventBus(rdb, log)
	ledger := service.NewLedgerQueue(rdb, log)
	answerSync := service.NewAnswerSync(rdb, api, ledger, events, cfg.SyncMaxAttempts, cfg.SyncRetryDelay, log)

	authService := service.NewAuthService(cfg, rdb, api, log)
	sessionService := service.NewExamSessionService(api, answerSync, ledger, events, cache, service.SessionOptions{}, log)
	accessService := service.NewAccessService(api, cache, sessionService, ledger, log)
	leaderboardService := service.NewLeaderboardService(api, cache, log)
	adminService := service.NewAdminService(api, ledgerRepo, cache, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:          handler.NewAuthHandler(authService),
		StudentPortal: handler.NewStudentPortalHandler(accessService, sessionService, leaderboardService),
		Admin:         handler.NewAdminHandler(adminService, cfg.MaxUploadBytes),
		WS:            handler.NewWSHandler(sessionService, events, log, cfg.AllowedOrigins),
		System:        handler.NewSystemHandler(pool, rdb, sessionService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	answerSyncWorker := worker.NewAnswerSyncWorker(answerSync, log)
	ledgerWorker := worker.NewLedgerWorker(ledgerRepo, rdb, log)
	janitor := worker.NewSessionJanitor(sessionService, cfg.JanitorSchedule, cfg.SessionRetention, log)

	workers.Add(3)
	go func() {
		defer workers.Done()
		answerSyncWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		ledgerWorker.Start(workerCtx)
	}()
	go func() {
		defer workers.Done()
		if err := janitor.Start(workerCtx); err != nil {
			log.Error().Err(err).Msg("Janitor not started")
		}
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	loginLimiter := middleware.NewRateLimiter(rdb, cfg.LoginRateLimit, time.Minute, log)
	r := router.SetupRouter(authService, loginLimiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop every countdown.
	log.Info().Int("active_sessions", sessionService.ActiveCount()).Msg("Stopping sessions")
	sessionService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
