// Package queue keeps insight jobs in Redis: a hash of job documents plus a
// sorted set of pending ids scored by scheduled time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	jobsKey    = "coach:jobs"
	pendingKey = "coach:job_queue"
)

// Recorder mirrors job lifecycle changes into durable history. Recorder
// failures are logged and never fail the queue operation.
type Recorder interface {
	SaveJob(ctx context.Context, j *Job) error
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, workerID string) error
	CompleteJob(ctx context.Context, jobID string, durationMs int) error
	FailJob(ctx context.Context, jobID string, reason string, durationMs int) error
}

type Queue struct {
	client   *redis.Client
	recorder Recorder
	logger   *slog.Logger
}

func NewQueue(ctx context.Context, redisAddr string, recorder Recorder, logger *slog.Logger) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperr.Config("queue.connect", fmt.Errorf("failed to connect to Redis: %w", err))
	}

	return &Queue{
		client:   client,
		recorder: recorder,
		logger:   logger,
	}, nil
}

// Enqueue stores the job document and schedules it in one transaction, so
// a job is never stored without being scheduled.
func (q *Queue) Enqueue(ctx context.Context, j *Job) error {
	data, err := j.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", j.ID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, jobsKey, j.ID, data)
		pipe.ZAdd(ctx, pendingKey, redis.Z{
			Score:  float64(j.ScheduledAt.UnixMilli()),
			Member: j.ID,
		})
		return nil
	})
	if err != nil {
		return apperr.Transport("queue.enqueue", fmt.Errorf("failed to enqueue job %s: %w", j.ID, err))
	}

	metrics.RecordJobEnqueued(string(j.Type))
	q.record(j.ID, "save", func(r Recorder) error { return r.SaveJob(ctx, j) })
	return nil
}

// Dequeue claims the earliest job whose scheduled time has passed and marks
// it running for workerID. It returns nil when nothing is due or another
// worker claimed the candidate first.
func (q *Queue) Dequeue(ctx context.Context, workerID string) (*Job, error) {
	due, err := q.client.ZRangeByScoreWithScores(ctx, pendingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: 1,
	}).Result()
	if err != nil {
		return nil, apperr.Transport("queue.dequeue", err)
	}
	if len(due) == 0 {
		return nil, nil
	}

	candidate := due[0]
	id, ok := candidate.Member.(string)
	if !ok {
		return nil, apperr.DataShape("queue.dequeue", fmt.Errorf("unexpected member %v in %s", candidate.Member, pendingKey))
	}

	removed, err := q.client.ZRem(ctx, pendingKey, id).Result()
	if err != nil {
		return nil, apperr.Transport("queue.dequeue", err)
	}
	if removed == 0 {
		return nil, nil
	}

	j, err := q.GetJob(ctx, id)
	if err != nil {
		return nil, q.unclaim(ctx, candidate, id, err)
	}

	started := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &started
	j.WorkerID = workerID
	if err := q.save(ctx, j); err != nil {
		return nil, q.unclaim(ctx, candidate, id, err)
	}

	metrics.RecordJobWaitTime(string(j.Type), started.Sub(j.ScheduledAt))
	q.record(j.ID, "status", func(r Recorder) error { return r.UpdateJobStatus(ctx, j.ID, StatusRunning, workerID) })
	return j, nil
}

// unclaim deals with a job taken off the schedule that could not be
// started. Transport failures put it back with its original score. An
// undecodable document is replaced by a failed job so it stays visible; a
// missing document leaves nothing to run.
func (q *Queue) unclaim(ctx context.Context, candidate redis.Z, id string, cause error) error {
	ctx = context.WithoutCancel(ctx)

	switch apperr.KindOf(cause) {
	case apperr.KindTransport:
		if err := q.client.ZAdd(ctx, pendingKey, candidate).Err(); err != nil {
			q.logger.Error("failed to reschedule claimed job", "job_id", id, "error", err)
		}
	case apperr.KindDataShape:
		finished := time.Now()
		failed := &Job{
			ID:          id,
			Status:      StatusFailed,
			CreatedAt:   finished,
			CompletedAt: &finished,
			Error:       "job document could not be decoded",
		}
		if err := q.save(ctx, failed); err != nil {
			q.logger.Error("failed to mark undecodable job failed", "job_id", id, "error", err)
		}
	default:
		q.logger.Error("dropping claimed job", "job_id", id, "error", cause)
	}
	return cause
}

// Complete stores the job as completed with an optional result reference.
func (q *Queue) Complete(ctx context.Context, j *Job, result string, duration time.Duration) error {
	finished := time.Now()
	j.Status = StatusCompleted
	j.CompletedAt = &finished
	j.Result = result
	j.Error = ""
	if err := q.save(ctx, j); err != nil {
		return err
	}

	q.record(j.ID, "complete", func(r Recorder) error { return r.CompleteJob(ctx, j.ID, int(duration.Milliseconds())) })
	return nil
}

// Fail stores the job as failed. Jobs are not retried.
func (q *Queue) Fail(ctx context.Context, j *Job, reason string, duration time.Duration) error {
	finished := time.Now()
	j.Status = StatusFailed
	j.CompletedAt = &finished
	j.Error = reason
	if err := q.save(ctx, j); err != nil {
		return err
	}

	q.record(j.ID, "fail", func(r Recorder) error { return r.FailJob(ctx, j.ID, reason, int(duration.Milliseconds())) })
	return nil
}

func (q *Queue) UpdateJob(ctx context.Context, j *Job) error {
	return q.save(ctx, j)
}

func (q *Queue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.HGet(ctx, jobsKey, jobID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.NotFound("queue.get_job", fmt.Errorf("job %s not found", jobID))
	}
	if err != nil {
		return nil, apperr.Transport("queue.get_job", err)
	}

	j, err := JobFromJSON(data)
	if err != nil {
		return nil, apperr.DataShape("queue.get_job", fmt.Errorf("failed to decode job %s: %w", jobID, err))
	}
	return j, nil
}

// GetAllJobs returns every stored job. Undecodable entries are skipped.
func (q *Queue) GetAllJobs(ctx context.Context) ([]*Job, error) {
	entries, err := q.client.HGetAll(ctx, jobsKey).Result()
	if err != nil {
		return nil, apperr.Transport("queue.get_all_jobs", err)
	}

	jobs := make([]*Job, 0, len(entries))
	for id, data := range entries {
		j, err := JobFromJSON(data)
		if err != nil {
			q.logger.Warn("skipping undecodable job", "job_id", id, "error", err)
			continue
		}
		jobs = append(jobs, j)
	}

	return jobs, nil
}

// Depth is the number of jobs waiting to be claimed.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	n, err := q.client.ZCard(ctx, pendingKey).Result()
	if err != nil {
		return 0, apperr.Transport("queue.depth", err)
	}
	return n, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) save(ctx context.Context, j *Job) error {
	data, err := j.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", j.ID, err)
	}
	if err := q.client.HSet(ctx, jobsKey, j.ID, data).Err(); err != nil {
		return apperr.Transport("queue.save", fmt.Errorf("failed to store job %s: %w", j.ID, err))
	}
	return nil
}

func (q *Queue) record(jobID, action string, fn func(Recorder) error) {
	if q.recorder == nil {
		return
	}
	if err := fn(q.recorder); err != nil {
		q.logger.Warn("failed to record job history", "job_id", jobID, "action", action, "error", err)
	}
}
