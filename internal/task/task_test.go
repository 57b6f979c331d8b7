package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func TestTask_Duration(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(150 * time.Minute)

	d, ok := Task{StartDate: &start, CompletionDate: &end}.Duration()
	assert.True(t, ok)
	assert.Equal(t, 150*time.Minute, d)

	_, ok = Task{StartDate: &start}.Duration()
	assert.False(t, ok)

	_, ok = Task{CompletionDate: &end}.Duration()
	assert.False(t, ok)
}

func TestTask_Predicates(t *testing.T) {
	milestone := Task{Type: "Milestone", Status: StatusBlocked, Dependencies: []string{"a", "b"}}

	assert.True(t, milestone.IsMilestone())
	assert.True(t, milestone.IsBlocked())
	assert.False(t, milestone.IsCompleted())
	assert.True(t, milestone.DependsOn("b"))
	assert.False(t, milestone.DependsOn("c"))
	assert.True(t, Task{Status: StatusCompleted}.IsCompleted())
	assert.False(t, Task{Type: "milestone"}.IsMilestone())
	assert.False(t, Task{Type: "MILESTONE"}.IsMilestone())
}

func TestGroupByProject(t *testing.T) {
	projects := []Project{{ID: "p1", Name: "Launch"}, {ID: "p2", Name: "Hiring"}}
	tasks := []Task{
		{ID: "t1", ProjectID: "p1"},
		{ID: "t2", ProjectID: "p2"},
		{ID: "t3", ProjectID: "p1"},
		{ID: "t4", ProjectID: "unknown"},
		{ID: "t5"},
	}

	grouped := GroupByProject(projects, tasks)

	assert.Len(t, grouped, 2)
	assert.Equal(t, []string{"t1", "t3"}, taskIDs(grouped[0].Tasks))
	assert.Equal(t, []string{"t2"}, taskIDs(grouped[1].Tasks))
	assert.Nil(t, projects[0].Tasks, "input projects must not be mutated")
}

func taskIDs(tasks []Task) []string {
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	return ids
}

func TestUpdate_Validate(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	before := start.Add(-time.Hour)

	tests := []struct {
		name     string
		update   Update
		expected error
	}{
		{name: "empty", update: Update{}, expected: ErrEmptyUpdate},
		{name: "status only", update: Update{Status: ptr(StatusInProgress)}, expected: nil},
		{name: "blank status", update: Update{Status: ptr(Status("  "))}, expected: ErrBlankStatus},
		{name: "quality too high", update: Update{Quality: ptr(1.2)}, expected: ErrQualityRange},
		{name: "quality negative", update: Update{Quality: ptr(-0.1)}, expected: ErrQualityRange},
		{name: "dates out of order", update: Update{StartDate: &start, CompletionDate: &before}, expected: ErrDateOrder},
		{name: "delayed flag", update: Update{Delayed: ptr(true)}, expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.update.Validate())
		})
	}
}
