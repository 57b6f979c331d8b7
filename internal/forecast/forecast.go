// Package forecast turns a snapshot of task records into per-category
// duration statistics, an approximate critical path and milestone
// completion estimates.
//
// Every operation is a pure function of its input and an injected clock.
// Missing optional fields count as absent; nothing here returns an error on
// malformed records.
package forecast

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/nadmax/nexcoach/internal/task"
)

const (
	// DefaultReliabilityThreshold separates categories whose averages are
	// backed by enough of the dataset from those that are not.
	DefaultReliabilityThreshold = 0.6

	baseConfidence     = 0.7
	missingDatePenalty = 0.8
	blockedDepPenalty  = 0.1
)

// CategoryStats are the duration statistics of one category, in hours.
type CategoryStats struct {
	MeanDuration float64 `json:"mean_duration"`
	StdDuration  float64 `json:"std_duration"`
	Reliability  float64 `json:"reliability"`
	Samples      int     `json:"samples"`
}

// Durations maps a category label to its statistics.
type Durations map[string]CategoryStats

// Mean returns the mean duration of category, or 0 when it is unknown.
func (d Durations) Mean(category string) float64 {
	return d[category].MeanDuration
}

type PathStep struct {
	TaskID   string  `json:"task_id"`
	Duration float64 `json:"duration"`
}

type Milestone struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	Confidence          float64   `json:"confidence"`
}

// Timeline bundles every forecast for one project.
type Timeline struct {
	ProjectID            string          `json:"project_id"`
	ProjectName          string          `json:"project_name"`
	Categories           Durations       `json:"categories"`
	CriticalPath         []PathStep      `json:"critical_path"`
	CriticalPathHours    float64         `json:"critical_path_hours"`
	Milestones           []Milestone     `json:"milestones"`
	Dependents           DependencyGraph `json:"dependents"`
	Cyclic               bool            `json:"cyclic"`
	UnreliableCategories []string        `json:"unreliable_categories,omitempty"`
}

type Forecaster struct {
	now                  func() time.Time
	reliabilityThreshold float64
}

type Option func(*Forecaster)

// WithClock replaces time.Now, used for milestone estimates.
func WithClock(now func() time.Time) Option {
	return func(f *Forecaster) {
		f.now = now
	}
}

func WithReliabilityThreshold(threshold float64) Option {
	return func(f *Forecaster) {
		f.reliabilityThreshold = threshold
	}
}

func New(opts ...Option) *Forecaster {
	f := &Forecaster{
		now:                  time.Now,
		reliabilityThreshold: DefaultReliabilityThreshold,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AnalyzeCompletionPatterns groups the durations of tasks that have a
// category, a start and a completion timestamp. Reliability is the share of
// all tasks (not only timed ones) that contributed to the category.
func (f *Forecaster) AnalyzeCompletionPatterns(tasks []task.Task) Durations {
	byCategory := make(map[string][]float64)
	for _, t := range tasks {
		if t.Category == "" {
			continue
		}
		d, ok := t.Duration()
		if !ok {
			continue
		}
		byCategory[t.Category] = append(byCategory[t.Category], d.Hours())
	}

	result := make(Durations, len(byCategory))
	for category, hours := range byCategory {
		mean, _ := stats.Mean(hours)

		var std float64
		if len(hours) > 1 {
			std, _ = stats.StandardDeviationPopulation(hours)
		}

		var reliability float64
		if len(tasks) > 0 {
			reliability = float64(len(hours)) / float64(len(tasks))
		}

		result[category] = CategoryStats{
			MeanDuration: mean,
			StdDuration:  std,
			Reliability:  reliability,
			Samples:      len(hours),
		}
	}

	return result
}

// CriticalPath walks a single chain through the project: it starts at the
// first task without dependencies and repeatedly moves to the first task
// (in input order) that depends on the current one. The walk stops before
// revisiting a task, so cyclic dependency lists end the path instead of
// looping.
func (f *Forecaster) CriticalPath(project task.Project, durations Durations) []PathStep {
	tasks := project.Tasks
	path := []PathStep{}

	current := -1
	for i, t := range tasks {
		if len(t.Dependencies) == 0 {
			current = i
			break
		}
	}

	visited := make(map[string]bool)
	for current >= 0 {
		t := tasks[current]
		visited[t.ID] = true
		path = append(path, PathStep{
			TaskID:   t.ID,
			Duration: durations.Mean(t.Category),
		})

		next := -1
		for i, candidate := range tasks {
			if candidate.DependsOn(t.ID) {
				next = i
				break
			}
		}
		if next >= 0 && visited[tasks[next].ID] {
			break
		}
		current = next
	}

	return path
}

// ForecastMilestones estimates when every milestone task completes: now plus
// the mean durations of its direct dependencies' categories.
func (f *Forecaster) ForecastMilestones(project task.Project, durations Durations) []Milestone {
	tasks := project.Tasks
	milestones := []Milestone{}
	now := f.now()

	for _, t := range tasks {
		if !t.IsMilestone() {
			continue
		}

		deps := directDependencies(t, tasks)

		var hours float64
		for _, dep := range deps {
			hours += durations.Mean(dep.Category)
		}

		milestones = append(milestones, Milestone{
			ID:                  t.ID,
			Name:                t.Title,
			EstimatedCompletion: now.Add(time.Duration(hours * float64(time.Hour))),
			Confidence:          confidenceScore(t, deps),
		})
	}

	return milestones
}

// directDependencies returns the tasks listed in t's dependencies, in the
// order they appear in tasks. Unknown ids are skipped.
func directDependencies(t task.Task, tasks []task.Task) []task.Task {
	var deps []task.Task
	for _, candidate := range tasks {
		if t.DependsOn(candidate.ID) {
			deps = append(deps, candidate)
		}
	}
	return deps
}

func confidenceScore(t task.Task, deps []task.Task) float64 {
	score := baseConfidence
	if t.StartDate == nil {
		score *= missingDatePenalty
	}
	if t.PlannedCompletionDate == nil {
		score *= missingDatePenalty
	}

	blocked := 0
	for _, dep := range deps {
		if dep.IsBlocked() {
			blocked++
		}
	}
	if blocked > 0 {
		score *= 1 - blockedDepPenalty*float64(blocked)
	}

	return clamp(score, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Forecast computes a project's timeline. Category statistics come from
// history, which is usually every task in the workspace rather than only
// the project's own.
func (f *Forecaster) Forecast(project task.Project, history []task.Task) Timeline {
	durations := f.AnalyzeCompletionPatterns(history)
	graph := BuildDependencyGraph(project.Tasks)
	path := f.CriticalPath(project, durations)

	var total float64
	for _, step := range path {
		total += step.Duration
	}

	var unreliable []string
	for category, s := range durations {
		if s.Reliability < f.reliabilityThreshold {
			unreliable = append(unreliable, category)
		}
	}
	sort.Strings(unreliable)

	return Timeline{
		ProjectID:            project.ID,
		ProjectName:          project.Name,
		Categories:           durations,
		CriticalPath:         path,
		CriticalPathHours:    total,
		Milestones:           f.ForecastMilestones(project, durations),
		Dependents:           graph,
		Cyclic:               graph.HasCycle(project.Tasks),
		UnreliableCategories: unreliable,
	}
}
