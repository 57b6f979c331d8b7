package forecast

import (
	"testing"

	"github.com/nadmax/nexcoach/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestBuildDependencyGraph(t *testing.T) {
	tasks := []task.Task{
		{ID: "a"},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"a", "b"}},
		{ID: "d", Dependencies: []string{"missing"}},
	}

	g := BuildDependencyGraph(tasks)

	assert.Equal(t, DependencyGraph{
		"a":       {"b", "c"},
		"b":       {"c"},
		"missing": {"d"},
	}, g)
}

func TestHasCycle(t *testing.T) {
	tests := []struct {
		name     string
		tasks    []task.Task
		expected bool
	}{
		{name: "empty", tasks: nil, expected: false},
		{
			name: "chain",
			tasks: []task.Task{
				{ID: "a"},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "c", Dependencies: []string{"b"}},
			},
			expected: false,
		},
		{
			name: "diamond",
			tasks: []task.Task{
				{ID: "a"},
				{ID: "b", Dependencies: []string{"a"}},
				{ID: "c", Dependencies: []string{"a"}},
				{ID: "d", Dependencies: []string{"b", "c", "b"}},
			},
			expected: false,
		},
		{
			name: "two-node cycle",
			tasks: []task.Task{
				{ID: "a", Dependencies: []string{"b"}},
				{ID: "b", Dependencies: []string{"a"}},
			},
			expected: true,
		},
		{
			name:     "self dependency",
			tasks:    []task.Task{{ID: "a", Dependencies: []string{"a"}}},
			expected: true,
		},
		{
			name:     "unknown dependency ignored",
			tasks:    []task.Task{{ID: "a", Dependencies: []string{"zzz"}}},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HasCycle(tt.tasks))
		})
	}
}
