package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/queue"
)

// MockRepository is an in-memory InsightRepository and JobRepository for
// tests. Set the *Error fields to make the matching call fail.
type MockRepository struct {
	mu sync.Mutex

	Insights []insights.Insight
	Jobs     map[string]*RecentJob
	JobStats []JobStats

	SaveInsightCalls     []string
	UpdateJobStatusCalls []UpdateJobStatusCall
	CompleteJobCalls     []CompleteJobCall
	FailJobCalls         []FailJobCall

	SaveInsightError   error
	RecentInsightError error
	SaveJobError       error
	JobStatsError      error
	RecentJobsError    error
}

type UpdateJobStatusCall struct {
	JobID    string
	Status   queue.JobStatus
	WorkerID string
}

type CompleteJobCall struct {
	JobID      string
	DurationMs int
}

type FailJobCall struct {
	JobID      string
	Reason     string
	DurationMs int
}

var (
	_ InsightRepository = (*MockRepository)(nil)
	_ JobRepository     = (*MockRepository)(nil)
)

func NewMockRepository() *MockRepository {
	return &MockRepository{
		Insights: make([]insights.Insight, 0),
		Jobs:     make(map[string]*RecentJob),
		JobStats: make([]JobStats, 0),
	}
}

func (m *MockRepository) EnsureSchema(ctx context.Context) error {
	return nil
}

func (m *MockRepository) SaveInsight(ctx context.Context, in *insights.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveInsightCalls = append(m.SaveInsightCalls, in.ID)
	if m.SaveInsightError != nil {
		return m.SaveInsightError
	}
	m.Insights = append(m.Insights, *in)
	return nil
}

func (m *MockRepository) RecentInsights(ctx context.Context, limit int) ([]insights.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecentInsightError != nil {
		return nil, m.RecentInsightError
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	out := make([]insights.Insight, len(m.Insights))
	copy(out, m.Insights)
	sort.SliceStable(out, func(i, j int) bool { return out[i].GeneratedAt.After(out[j].GeneratedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) LatestInsight(ctx context.Context) (*insights.Insight, error) {
	recent, err := m.RecentInsights(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(recent) == 0 {
		return nil, apperr.NotFound("mock.latest_insight", errors.New("no insight has been generated yet"))
	}
	return &recent[0], nil
}

func (m *MockRepository) SaveJob(ctx context.Context, j *queue.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveJobError != nil {
		return m.SaveJobError
	}
	m.Jobs[j.ID] = &RecentJob{
		JobID:         j.ID,
		Type:          string(j.Type),
		Status:        string(j.Status),
		CreatedAt:     j.CreatedAt,
		FailureReason: j.Error,
	}
	return nil
}

func (m *MockRepository) UpdateJobStatus(ctx context.Context, jobID string, status queue.JobStatus, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpdateJobStatusCalls = append(m.UpdateJobStatusCalls, UpdateJobStatusCall{JobID: jobID, Status: status, WorkerID: workerID})
	if j, ok := m.Jobs[jobID]; ok {
		j.Status = string(status)
		j.WorkerID = workerID
	}
	return nil
}

func (m *MockRepository) CompleteJob(ctx context.Context, jobID string, durationMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteJobCalls = append(m.CompleteJobCalls, CompleteJobCall{JobID: jobID, DurationMs: durationMs})
	m.finish(jobID, string(queue.StatusCompleted), "", durationMs)
	return nil
}

func (m *MockRepository) FailJob(ctx context.Context, jobID string, reason string, durationMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailJobCalls = append(m.FailJobCalls, FailJobCall{JobID: jobID, Reason: reason, DurationMs: durationMs})
	m.finish(jobID, string(queue.StatusFailed), reason, durationMs)
	return nil
}

func (m *MockRepository) finish(jobID, status, reason string, durationMs int) {
	j, ok := m.Jobs[jobID]
	if !ok {
		return
	}
	now := time.Now()
	j.Status = status
	j.CompletedAt = &now
	j.DurationMs = &durationMs
	j.FailureReason = reason
}

func (m *MockRepository) GetJobStats(ctx context.Context, hours int) ([]JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.JobStatsError != nil {
		return nil, m.JobStatsError
	}
	return m.JobStats, nil
}

func (m *MockRepository) GetRecentJobs(ctx context.Context, limit int) ([]RecentJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RecentJobsError != nil {
		return nil, m.RecentJobsError
	}
	out := make([]RecentJob, 0, len(m.Jobs))
	for _, j := range m.Jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockRepository) Close() error {
	return nil
}

func (m *MockRepository) SavedInsightCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SaveInsightCalls)
}
