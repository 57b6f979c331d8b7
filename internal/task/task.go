// Package task defines the workspace records the coach reads: tasks, goals
// and projects. Every field the workspace may omit is optional here, and
// defaulting happens once when records are decoded.
package task

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusBlocked    Status = "Blocked"
	StatusDelayed    Status = "Delayed"
)

// TypeMilestone marks tasks whose completion is forecast.
const TypeMilestone = "Milestone"

type Task struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Category              string     `json:"category,omitempty"`
	Type                  string     `json:"type,omitempty"`
	Status                Status     `json:"status,omitempty"`
	Priority              string     `json:"priority,omitempty"`
	ProjectID             string     `json:"project_id,omitempty"`
	StartDate             *time.Time `json:"start_date,omitempty"`
	CompletionDate        *time.Time `json:"completion_date,omitempty"`
	PlannedCompletionDate *time.Time `json:"planned_completion_date,omitempty"`
	DueDate               *time.Time `json:"due_date,omitempty"`
	Dependencies          []string   `json:"dependencies,omitempty"`
	Quality               *float64   `json:"quality,omitempty"`
	Delayed               bool       `json:"delayed,omitempty"`
	URL                   string     `json:"url,omitempty"`
}

// IsMilestone matches the type exactly; "milestone" is not a milestone.
func (t Task) IsMilestone() bool {
	return t.Type == TypeMilestone
}

func (t Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

func (t Task) IsBlocked() bool {
	return t.Status == StatusBlocked
}

// Duration is the time between start and completion. ok is false when
// either timestamp is missing.
func (t Task) Duration() (d time.Duration, ok bool) {
	if t.StartDate == nil || t.CompletionDate == nil {
		return 0, false
	}
	return t.CompletionDate.Sub(*t.StartDate), true
}

// DependsOn reports whether id appears in the task's dependency list.
func (t Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

type Goal struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Category        string     `json:"category,omitempty"`
	Status          Status     `json:"status,omitempty"`
	TargetDate      *time.Time `json:"target_date,omitempty"`
	Progress        *float64   `json:"progress,omitempty"`
	SuccessCriteria []string   `json:"success_criteria,omitempty"`
}

type Project struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Status     Status   `json:"status,omitempty"`
	GoalIDs    []string `json:"goal_ids,omitempty"`
	Objectives []string `json:"objectives,omitempty"`
	Tasks      []Task   `json:"tasks,omitempty"`
}

// GroupByProject attaches each task to the project it references, keeping
// the input order of tasks inside every project.
func GroupByProject(projects []Project, tasks []Task) []Project {
	index := make(map[string]int, len(projects))
	out := make([]Project, len(projects))
	for i, p := range projects {
		p.Tasks = nil
		out[i] = p
		index[p.ID] = i
	}

	for _, t := range tasks {
		if i, ok := index[t.ProjectID]; ok {
			out[i].Tasks = append(out[i].Tasks, t)
		}
	}

	return out
}

// Update is a partial change to a task. Nil fields are left untouched.
type Update struct {
	Status                *Status    `json:"status,omitempty"`
	Priority              *string    `json:"priority,omitempty"`
	Category              *string    `json:"category,omitempty"`
	Type                  *string    `json:"type,omitempty"`
	StartDate             *time.Time `json:"start_date,omitempty"`
	CompletionDate        *time.Time `json:"completion_date,omitempty"`
	PlannedCompletionDate *time.Time `json:"planned_completion_date,omitempty"`
	DueDate               *time.Time `json:"due_date,omitempty"`
	Quality               *float64   `json:"quality,omitempty"`
	Delayed               *bool      `json:"delayed,omitempty"`
}

func (u Update) IsEmpty() bool {
	return u.Status == nil && u.Priority == nil && u.Category == nil && u.Type == nil &&
		u.StartDate == nil && u.CompletionDate == nil && u.PlannedCompletionDate == nil &&
		u.DueDate == nil && u.Quality == nil && u.Delayed == nil
}

var (
	ErrEmptyUpdate  = errors.New("update contains no fields")
	ErrQualityRange = errors.New("quality must be within [0,1]")
	ErrDateOrder    = errors.New("completion date precedes start date")
	ErrBlankStatus  = errors.New("status must not be blank")
)

func (u Update) Validate() error {
	if u.IsEmpty() {
		return ErrEmptyUpdate
	}
	if u.Status != nil && strings.TrimSpace(string(*u.Status)) == "" {
		return ErrBlankStatus
	}
	if u.Quality != nil && (*u.Quality < 0 || *u.Quality > 1) {
		return ErrQualityRange
	}
	if u.StartDate != nil && u.CompletionDate != nil && u.CompletionDate.Before(*u.StartDate) {
		return ErrDateOrder
	}
	return nil
}
