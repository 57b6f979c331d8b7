package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

type JobType string

const (
	// JobGenerateInsights runs the insight engine and stores the result.
	JobGenerateInsights JobType = "generate_insights"
	// JobSendDigest mails the latest stored insight.
	JobSendDigest JobType = "send_digest"
)

type Job struct {
	ID          string         `json:"id"`
	Type        JobType        `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Status      JobStatus      `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ScheduledAt time.Time      `json:"scheduled_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Error       string         `json:"error,omitempty"`
	Result      string         `json:"result,omitempty"`
	WorkerID    string         `json:"worker_id,omitempty"`
}

func NewJob(jobType JobType, payload map[string]any) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     payload,
		Status:      StatusPending,
		CreatedAt:   now,
		ScheduledAt: now,
	}
}

// Finished reports whether the job reached a terminal status.
func (j *Job) Finished() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func (j *Job) ToJSON() (string, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func JobFromJSON(data string) (*Job, error) {
	var j Job
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, err
	}
	return &j, nil
}
