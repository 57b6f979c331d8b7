// Package worker claims insight jobs from the queue and runs the handler
// registered for each job type.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/nadmax/nexcoach/internal/queue"
)

const defaultPollInterval = time.Second

// Handler runs one job. The returned result is stored on the job, e.g. the
// id of the insight it produced.
type Handler func(ctx context.Context, j *queue.Job) (string, error)

type Worker struct {
	id           string
	queue        *queue.Queue
	handlers     map[queue.JobType]Handler
	pollInterval time.Duration
	logger       *slog.Logger
}

func NewWorker(id string, q *queue.Queue, logger *slog.Logger) *Worker {
	return &Worker{
		id:           id,
		queue:        q,
		handlers:     make(map[queue.JobType]Handler),
		pollInterval: defaultPollInterval,
		logger:       logger.With("worker_id", id),
	}
}

func (w *Worker) RegisterHandler(jobType queue.JobType, handler Handler) {
	w.handlers[jobType] = handler
}

func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Start polls until ctx is cancelled. A job that is already running is
// finished before Start returns.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)

	for {
		if ctx.Err() != nil {
			w.logger.Info("worker stopped")
			return
		}

		processed, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("failed to claim job", "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and processes at most one due job. It reports whether a
// job was processed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	j, err := w.queue.Dequeue(ctx, w.id)
	if err != nil || j == nil {
		return false, err
	}

	w.processJob(context.WithoutCancel(ctx), j)
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, j *queue.Job) {
	logger := w.logger.With("job_id", j.ID, "job_type", j.Type)
	logger.Info("processing job")

	start := time.Now()
	handler, exists := w.handlers[j.Type]
	if !exists {
		w.fail(ctx, logger, j, fmt.Sprintf("no handler for job type: %s", j.Type), time.Since(start))
		return
	}

	result, err := handler(ctx, j)
	duration := time.Since(start)
	if err != nil {
		w.fail(ctx, logger, j, err.Error(), duration)
		return
	}

	metrics.RecordJobCompleted(string(j.Type), duration)
	if err := w.queue.Complete(ctx, j, result, duration); err != nil {
		logger.Error("failed to store completed job", "error", err)
		return
	}
	logger.Info("job completed", "duration", duration, "result", result)
}

func (w *Worker) fail(ctx context.Context, logger *slog.Logger, j *queue.Job, reason string, duration time.Duration) {
	metrics.RecordJobFailed(string(j.Type), duration)
	if err := w.queue.Fail(ctx, j, reason, duration); err != nil {
		logger.Error("failed to store failed job", "error", err)
	}
	logger.Warn("job failed", "reason", reason, "duration", duration)
}
