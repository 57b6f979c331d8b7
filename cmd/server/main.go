package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nadmax/nexcoach/internal/api"
	"github.com/nadmax/nexcoach/internal/coach"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/forecast"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/llm"
	"github.com/nadmax/nexcoach/internal/logging"
	"github.com/nadmax/nexcoach/internal/middleware"
	"github.com/nadmax/nexcoach/internal/notion"
	"github.com/nadmax/nexcoach/internal/queue"
	"github.com/nadmax/nexcoach/internal/repository"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("COACH_CONFIG"))
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(config.Requirements{Notion: true, LLM: true}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workspace, err := notion.NewClient(cfg.Notion, logger)
	if err != nil {
		return err
	}

	completer, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return err
	}

	forecaster := forecast.New()
	deps := api.Deps{
		Tasks:      workspace,
		Coach:      coach.NewService(workspace, completer, logger),
		Insights:   insights.NewEngine(workspace, completer, forecaster, logger),
		Forecaster: forecaster,
		Logger:     logger,
	}

	var recorder queue.Recorder
	if cfg.Postgres.DSN != "" {
		repo, err := repository.NewPostgresRepository(ctx, cfg.Postgres.DSN, logger)
		if err != nil {
			return err
		}

		defer func() {
			if err := repo.Close(); err != nil {
				logger.Warn("failed to close Postgres repository", "error", err)
			}
		}()

		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}

		deps.History = repo
		deps.JobHistory = repo
		recorder = repo
		logger.Info("insight history enabled")
	}

	// Jobs are optional for the server: an unreachable Redis only disables them.
	if q, err := queue.NewQueue(ctx, cfg.Redis.Addr, recorder, logger); err != nil {
		logger.Warn("insight jobs disabled", "redis", cfg.Redis.Addr, "error", err)
	} else {
		defer func() {
			if err := q.Close(); err != nil {
				logger.Warn("failed to close server queue", "error", err)
			}
		}()

		deps.Jobs = q
		go startMetricsCollector(ctx, q, deps.JobHistory, logger)
		logger.Info("insight jobs enabled", "redis", cfg.Redis.Addr)
	}

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, "/health", "/metrics")
	limiter.TrustProxy(cfg.Server.TrustProxy)
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", middleware.MetricsMiddleware(limiter.Middleware(api.NewAPI(deps))))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           c.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			logger.Warn("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server starting", "port", cfg.Server.Port, "allowed_origins", cfg.Server.AllowedOrigins)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("server stopped")
	return nil
}
