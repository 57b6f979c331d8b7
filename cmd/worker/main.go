package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/forecast"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/llm"
	"github.com/nadmax/nexcoach/internal/logging"
	"github.com/nadmax/nexcoach/internal/notion"
	"github.com/nadmax/nexcoach/internal/queue"
	"github.com/nadmax/nexcoach/internal/repository"
	"github.com/nadmax/nexcoach/internal/worker"
	"github.com/nadmax/nexcoach/internal/worker/handlers"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
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

	if err := cfg.Validate(config.Requirements{Notion: true, LLM: true, Redis: true}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		recorder queue.Recorder
		store    handlers.InsightStore
		mailer   handlers.Mailer
	)

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
		recorder = repo
		store = repo
	} else {
		logger.Warn("POSTGRES_DSN not set, generated insights will not be stored")
	}

	q, err := queue.NewQueue(ctx, cfg.Redis.Addr, recorder, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := q.Close(); err != nil {
			logger.Warn("failed to close worker queue", "error", err)
		}
	}()

	workspace, err := notion.NewClient(cfg.Notion, logger)
	if err != nil {
		return err
	}

	completer, err := llm.NewClient(cfg.LLM, logger)
	if err != nil {
		return err
	}

	if cfg.EmailEnabled() {
		mailer = handlers.NewSendGridMailer(cfg.Email, logger)
	}

	engine := insights.NewEngine(workspace, completer, forecast.New(), logger)
	h := handlers.NewInsightHandlers(engine, store, mailer, cfg.Email.Recipient, logger)

	w := worker.NewWorker(cfg.Worker.ID, q, logger)
	w.RegisterHandler(queue.JobGenerateInsights, h.GenerateInsights)
	w.RegisterHandler(queue.JobSendDigest, h.SendDigest)
	w.SetPollInterval(cfg.Worker.PollInterval.Duration)

	logger.Info("worker starting", "worker_id", cfg.Worker.ID, "redis", cfg.Redis.Addr, "email", cfg.EmailEnabled())
	w.Start(ctx)

	logger.Info("worker stopped")
	return nil
}
