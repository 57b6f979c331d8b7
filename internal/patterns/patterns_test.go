package patterns

import (
	"testing"
	"time"

	"github.com/nadmax/nexcoach/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func at(hour int, minutes ...int) *time.Time {
	m := 0
	if len(minutes) > 0 {
		m = minutes[0]
	}
	t := base.Add(time.Duration(hour)*time.Hour + time.Duration(m)*time.Minute)
	return &t
}

func TestAnalyzeProductivity(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Status: task.StatusCompleted, Category: "Dev", StartDate: at(8), CompletionDate: at(10)},
		{ID: "b", Status: task.StatusCompleted, Category: "Dev", StartDate: at(9), CompletionDate: at(13)},
		{ID: "c", Status: task.StatusCompleted, Category: "Dev", StartDate: at(12), CompletionDate: at(15)},
		{ID: "d", Status: task.StatusCompleted, CompletionDate: at(10, 30)},
		{ID: "e", Status: task.StatusCompleted, Category: "Ops", StartDate: at(16), CompletionDate: at(17)},
		{ID: "f", Status: task.StatusInProgress, Category: "Dev", StartDate: at(1), CompletionDate: at(20)},
	}

	got := AnalyzeProductivity(tasks)

	assert.Equal(t, []int{10, 13, 15}, got.PeakHours)
	// completions in input order 10:00, 13:00, 15:00, 10:30, 17:00 give gaps 3, 2, -4.5, 6.5
	assert.InDelta(t, 7.0/4.0, got.TaskVelocity, 1e-9)
	assert.Equal(t, map[string]float64{"Dev": 3, "Ops": 1}, got.OptimalDuration)
}

func TestTaskVelocity_InputOrder(t *testing.T) {
	tests := []struct {
		name     string
		tasks    []task.Task
		expected float64
	}{
		{name: "single task", tasks: []task.Task{{CompletionDate: at(10)}}, expected: 0},
		{name: "descending completions", tasks: []task.Task{{CompletionDate: at(12)}, {CompletionDate: at(10)}}, expected: -2},
		{
			name:     "missing completion breaks both pairs",
			tasks:    []task.Task{{CompletionDate: at(10)}, {}, {CompletionDate: at(12)}},
			expected: 0,
		},
		{
			name:     "only adjacent pairs count",
			tasks:    []task.Task{{CompletionDate: at(10)}, {CompletionDate: at(11)}, {}, {CompletionDate: at(14)}, {CompletionDate: at(17)}},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, taskVelocity(tt.tasks), 1e-9)
		})
	}
}

func TestAnalyzeProductivity_Empty(t *testing.T) {
	got := AnalyzeProductivity(nil)

	assert.Empty(t, got.PeakHours)
	assert.Equal(t, 0.0, got.TaskVelocity)
	assert.Empty(t, got.OptimalDuration)
}

func TestAnalyzeSuccessFactors(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Status: task.StatusCompleted, Category: "Dev", StartDate: at(9), Quality: ptr(0.9)},
		{ID: "b", Status: task.StatusCompleted, Category: "Dev", StartDate: at(9), Quality: ptr(0.5)},
		{ID: "c", Status: task.StatusCompleted, Category: "Writing", StartDate: at(14)},
		{ID: "d", Status: task.StatusBlocked, Category: "Dev", Quality: ptr(1.0)},
	}
	goals := []task.Goal{
		{ID: "g1", Status: task.StatusCompleted, Category: "Health"},
		{ID: "g2", Status: task.StatusInProgress, Category: "Health"},
		{ID: "g3", Status: task.StatusCompleted},
		{ID: "g4"},
	}

	got := AnalyzeSuccessFactors(tasks, goals)

	assert.Equal(t, map[string]int{"Dev": 2, "Writing": 1}, got.Tasks.Categories)
	assert.Equal(t, map[int]int{9: 2, 14: 1}, got.Tasks.StartHours)
	assert.InDelta(t, 1.4/3, got.Tasks.Quality.Average, 1e-9)
	assert.Equal(t, 1, got.Tasks.Quality.HighQualityCount)

	assert.Equal(t, map[string]int{"Health": 1}, got.Goals.Categories)
	assert.InDelta(t, 0.5, got.Goals.SuccessRate, 1e-9)
}

func TestAnalyzeSuccessFactors_NoGoals(t *testing.T) {
	got := AnalyzeSuccessFactors(nil, nil)

	assert.Equal(t, 0.0, got.Goals.SuccessRate)
	assert.Equal(t, QualityFactors{}, got.Tasks.Quality)
}

func TestAnalyzeBehavior(t *testing.T) {
	tasks := []task.Task{
		{ID: "a", Status: task.StatusCompleted, StartDate: at(8), CompletionDate: at(9), Quality: ptr(0.5)},
		{ID: "b", Status: task.StatusInProgress, StartDate: at(8), CompletionDate: at(12)},
		{ID: "c", Status: task.StatusCompleted, Delayed: true},
		{ID: "d", Status: task.StatusDelayed, Category: "Writing"},
		{ID: "e", Status: task.StatusDelayed, Category: "Admin"},
		{ID: "f", Status: task.StatusDelayed, Category: "Writing"},
		{ID: "g", Status: task.StatusDelayed, Category: "Dev"},
	}

	got := AnalyzeBehavior(tasks)

	require.Len(t, got.FocusPeriods, 2)
	assert.Equal(t, "a", got.FocusPeriods[0].TaskID)
	assert.InDelta(t, 0.6+0.2, got.FocusPeriods[0].FocusScore, 1e-9)
	assert.Equal(t, *at(12), got.FocusPeriods[1].End)
	assert.Equal(t, 0.0, got.FocusPeriods[1].FocusScore)

	assert.Equal(t, []string{"Writing", "Admin", "Dev"}, got.ProcrastinationTriggers)
	assert.InDelta(t, 1.0/7.0, got.Adaptability, 1e-9)
}

func TestFocusScore(t *testing.T) {
	tests := []struct {
		name     string
		tasks    []task.Task
		expected float64
	}{
		{name: "empty", tasks: nil, expected: 0},
		{name: "completed without quality", tasks: []task.Task{{Status: task.StatusCompleted}}, expected: 0.6},
		{name: "quality only", tasks: []task.Task{{Quality: ptr(1.0)}}, expected: 0.4},
		{
			name: "mixed",
			tasks: []task.Task{
				{Status: task.StatusCompleted, Quality: ptr(0.8)},
				{Status: task.StatusBlocked},
			},
			expected: 0.5*0.6 + 0.8*0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, FocusScore(tt.tasks), 1e-9)
		})
	}
}

func TestAnalyze(t *testing.T) {
	report := Analyze([]task.Task{{ID: "a", Status: task.StatusCompleted, CompletionDate: at(11)}}, nil)

	assert.Equal(t, []int{11}, report.Productivity.PeakHours)
	assert.InDelta(t, 1.0, report.Behavior.Adaptability, 1e-9)
}
