package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/database"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/logger"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/repository"
	"github.com/stemsi/exstem-assessment/internal/router"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
	"github.com/stemsi/exstem-assessment/internal/worker"
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
		Msg("Starting assessment engine")

	// ─── Initialize Validator & Locales ────────────────────────────────
	validator.Setup()
	if err := i18n.Init(cfg.DefaultLocale); err != nil {
		log.Fatal().Err(err).Msg("Failed to load locales")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Migrate ───────────────────────────────────────────────────────
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate schema")
		}
	}

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

	// ─── Metrics ───────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// ─── Initialize Repositories ───────────────────────────────────────
	stores := repository.NewStores(pool)
	cache := repository.NewExamCache(rdb)
	monitorRepo := repository.NewMonitorRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	scoringService := service.NewScoringService(stores, cache, cfg.Exam, m, log)
	selector := service.NewSelector(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	sessionService := service.NewExamSessionService(stores, cache, scoringService, selector, cfg.Exam, m, log)
	answerService := service.NewAnswerService(sessionService, stores, cache, cfg.Exam, m, log)
	antiCheatService := service.NewAntiCheatService(sessionService, stores, cache, cfg.Exam, m, log)
	gradingService := service.NewGradingService(stores, cache, scoringService, log)
	monitorService := service.NewMonitorService(monitorRepo, cfg.Exam)

	// ─── Initialize Handlers ──────────────────────────────────────────
	healthChecks := map[string]handler.HealthCheck{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}
	handlers := &router.Handlers{
		Exam:    handler.NewExamHandler(sessionService, answerService, antiCheatService, cfg.Exam),
		Admin:   handler.NewAdminHandler(gradingService),
		Monitor: handler.NewMonitorHandler(monitorService, cache, log),
		WS:      handler.NewWSHandler(sessionService, answerService, antiCheatService, cfg.Exam, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(healthChecks, cache, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	cheatWorker := worker.NewCheatWorker(
		worker.NewRedisQueue(rdb, config.WorkerKey.CheatEventsQueue),
		repository.NewCheatEventRepository(pool),
		m, log,
	)
	scoringWorker := worker.NewScoringWorker(
		worker.NewRedisQueue(rdb, config.WorkerKey.RescoreQueue),
		scoringService, cfg.Exam.RescoreMaxAttempts, m, log,
	)

	workers.Go(func() { cheatWorker.Start(workerCtx) })
	workers.Go(func() { scoringWorker.Start(workerCtx) })

	// ─── Setup Router ──────────────────────────────────────────────────
	eventLimiter := middleware.NewRateLimiter(cfg.EventRateLimit, time.Minute)
	defer eventLimiter.Stop()

	r := router.SetupRouter(handlers, router.Deps{
		Auth:       authService,
		Metrics:    m,
		Gatherer:   reg,
		EventLimit: eventLimiter,
		Log:        log,
	}, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

	// 2. Stop background workers and wait for their final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}
