// Package patterns extracts descriptive productivity, success and behavior
// patterns from task and goal history.
package patterns

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/nadmax/nexcoach/internal/task"
)

const (
	peakHourCount        = 3
	highQualityThreshold = 0.8
	completionWeight     = 0.6
	qualityWeight        = 0.4
)

type Report struct {
	Productivity   Productivity   `json:"productivity"`
	SuccessFactors SuccessFactors `json:"success_factors"`
	Behavior       Behavior       `json:"behavior"`
}

type Productivity struct {
	PeakHours       []int              `json:"peak_hours"`
	TaskVelocity    float64            `json:"task_velocity"`
	OptimalDuration map[string]float64 `json:"optimal_duration"`
}

type SuccessFactors struct {
	Tasks TaskSuccess `json:"task_success_patterns"`
	Goals GoalSuccess `json:"goal_success_patterns"`
}

type TaskSuccess struct {
	Categories map[string]int `json:"categories"`
	StartHours map[int]int    `json:"completion_times"`
	Quality    QualityFactors `json:"quality_factors"`
}

type QualityFactors struct {
	Average          float64 `json:"average"`
	HighQualityCount int     `json:"high_quality_count"`
}

type GoalSuccess struct {
	Categories  map[string]int `json:"categories"`
	SuccessRate float64        `json:"success_rate"`
}

type Behavior struct {
	FocusPeriods            []FocusPeriod `json:"focus_periods"`
	ProcrastinationTriggers []string      `json:"procrastination_triggers"`
	Adaptability            float64       `json:"adaptability_score"`
}

type FocusPeriod struct {
	TaskID     string    `json:"task_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	FocusScore float64   `json:"focus_score"`
}

// Analyze builds the full report. It never fails: records lacking the
// fields a pattern needs are left out of that pattern.
func Analyze(tasks []task.Task, goals []task.Goal) Report {
	return Report{
		Productivity:   AnalyzeProductivity(tasks),
		SuccessFactors: AnalyzeSuccessFactors(tasks, goals),
		Behavior:       AnalyzeBehavior(tasks),
	}
}

func completed(tasks []task.Task) []task.Task {
	var out []task.Task
	for _, t := range tasks {
		if t.IsCompleted() {
			out = append(out, t)
		}
	}
	return out
}

// AnalyzeProductivity looks at completed tasks only.
func AnalyzeProductivity(tasks []task.Task) Productivity {
	done := completed(tasks)

	return Productivity{
		PeakHours:       peakHours(done),
		TaskVelocity:    taskVelocity(done),
		OptimalDuration: optimalDuration(done),
	}
}

// peakHours returns up to three completion hours, busiest first. Ties go to
// the earlier hour.
func peakHours(tasks []task.Task) []int {
	counts := make(map[int]int)
	for _, t := range tasks {
		if t.CompletionDate != nil {
			counts[t.CompletionDate.Hour()]++
		}
	}

	hours := make([]int, 0, len(counts))
	for h := range counts {
		hours = append(hours, h)
	}
	sort.Slice(hours, func(i, j int) bool {
		if counts[hours[i]] != counts[hours[j]] {
			return counts[hours[i]] > counts[hours[j]]
		}
		return hours[i] < hours[j]
	})

	if len(hours) > peakHourCount {
		hours = hours[:peakHourCount]
	}
	return hours
}

// taskVelocity is the mean gap in hours between the completions of
// neighboring tasks, in input order. A pair is skipped when either task has
// no completion date, and gaps may be negative.
func taskVelocity(tasks []task.Task) float64 {
	var gaps []float64
	for i := 1; i < len(tasks); i++ {
		cur, prev := tasks[i].CompletionDate, tasks[i-1].CompletionDate
		if cur == nil || prev == nil {
			continue
		}
		gaps = append(gaps, cur.Sub(*prev).Hours())
	}
	if len(gaps) == 0 {
		return 0
	}

	mean, _ := stats.Mean(gaps)
	return mean
}

// optimalDuration is the median duration in hours per category.
func optimalDuration(tasks []task.Task) map[string]float64 {
	byCategory := make(map[string][]float64)
	for _, t := range tasks {
		if t.Category == "" {
			continue
		}
		if d, ok := t.Duration(); ok {
			byCategory[t.Category] = append(byCategory[t.Category], d.Hours())
		}
	}

	out := make(map[string]float64, len(byCategory))
	for category, hours := range byCategory {
		median, _ := stats.Median(hours)
		out[category] = median
	}
	return out
}

func AnalyzeSuccessFactors(tasks []task.Task, goals []task.Goal) SuccessFactors {
	done := completed(tasks)

	taskCategories := make(map[string]int)
	startHours := make(map[int]int)
	for _, t := range done {
		if t.Category != "" {
			taskCategories[t.Category]++
		}
		if t.StartDate != nil {
			startHours[t.StartDate.Hour()]++
		}
	}

	goalCategories := make(map[string]int)
	goalsDone := 0
	for _, g := range goals {
		if g.Status != task.StatusCompleted {
			continue
		}
		goalsDone++
		if g.Category != "" {
			goalCategories[g.Category]++
		}
	}

	var rate float64
	if len(goals) > 0 {
		rate = float64(goalsDone) / float64(len(goals))
	}

	return SuccessFactors{
		Tasks: TaskSuccess{
			Categories: taskCategories,
			StartHours: startHours,
			Quality:    qualityFactors(done),
		},
		Goals: GoalSuccess{
			Categories:  goalCategories,
			SuccessRate: rate,
		},
	}
}

// qualityFactors averages quality over every task, counting a missing score
// as zero.
func qualityFactors(tasks []task.Task) QualityFactors {
	if len(tasks) == 0 {
		return QualityFactors{}
	}

	scores := make([]float64, 0, len(tasks))
	high := 0
	for _, t := range tasks {
		var q float64
		if t.Quality != nil {
			q = *t.Quality
		}
		scores = append(scores, q)
		if q > highQualityThreshold {
			high++
		}
	}

	avg, _ := stats.Mean(scores)
	return QualityFactors{Average: avg, HighQualityCount: high}
}

func AnalyzeBehavior(tasks []task.Task) Behavior {
	return Behavior{
		FocusPeriods:            focusPeriods(tasks),
		ProcrastinationTriggers: procrastinationTriggers(tasks),
		Adaptability:            adaptability(tasks),
	}
}

func focusPeriods(tasks []task.Task) []FocusPeriod {
	periods := []FocusPeriod{}
	for _, t := range tasks {
		if t.StartDate == nil || t.CompletionDate == nil {
			continue
		}
		periods = append(periods, FocusPeriod{
			TaskID:     t.ID,
			Start:      *t.StartDate,
			End:        *t.CompletionDate,
			FocusScore: FocusScore([]task.Task{t}),
		})
	}
	return periods
}

// FocusScore weighs the completion rate of tasks against the average of
// the quality scores that are present.
func FocusScore(tasks []task.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}

	var scores []float64
	for _, t := range tasks {
		if t.Quality != nil {
			scores = append(scores, *t.Quality)
		}
	}

	var quality float64
	if len(scores) > 0 {
		quality, _ = stats.Mean(scores)
	}

	rate := float64(len(completed(tasks))) / float64(len(tasks))
	return rate*completionWeight + quality*qualityWeight
}

// procrastinationTriggers lists the categories of delayed tasks, most
// frequent first and alphabetically among equals.
func procrastinationTriggers(tasks []task.Task) []string {
	counts := make(map[string]int)
	for _, t := range tasks {
		if t.Status == task.StatusDelayed && t.Category != "" {
			counts[t.Category]++
		}
	}

	triggers := make([]string, 0, len(counts))
	for c := range counts {
		triggers = append(triggers, c)
	}
	sort.Slice(triggers, func(i, j int) bool {
		if counts[triggers[i]] != counts[triggers[j]] {
			return counts[triggers[i]] > counts[triggers[j]]
		}
		return triggers[i] < triggers[j]
	})
	return triggers
}

// adaptability is the share of tasks completed without being flagged as
// delayed.
func adaptability(tasks []task.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	onTime := 0
	for _, t := range tasks {
		if t.IsCompleted() && !t.Delayed {
			onTime++
		}
	}
	return float64(onTime) / float64(len(tasks))
}
