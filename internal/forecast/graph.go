package forecast

import (
	"github.com/nadmax/nexcoach/internal/task"
)

// DependencyGraph maps a task id to the ids of the tasks that depend on it.
type DependencyGraph map[string][]string

// BuildDependencyGraph builds the dependents adjacency from every task's
// dependency list. Ids referenced but not present in tasks still get an
// entry. Dependents keep input order.
func BuildDependencyGraph(tasks []task.Task) DependencyGraph {
	g := make(DependencyGraph)
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			g[dep] = append(g[dep], t.ID)
		}
	}
	return g
}

// HasCycle reports whether the dependency lists of tasks form a cycle.
// Dependencies on ids outside tasks are ignored. A task that depends on
// itself is a cycle.
func HasCycle(tasks []task.Task) bool {
	return BuildDependencyGraph(tasks).HasCycle(tasks)
}

// HasCycle runs Kahn's algorithm over g restricted to the ids in tasks.
func (g DependencyGraph) HasCycle(tasks []task.Task) bool {
	inDegree := make(map[string]int, len(tasks))
	for _, t := range tasks {
		inDegree[t.ID] = 0
	}
	for dep, dependents := range g {
		if _, ok := inDegree[dep]; !ok {
			continue
		}
		for _, id := range dependents {
			inDegree[id]++
		}
	}

	var queue []string
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}

	sorted := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted++

		for _, succ := range g[node] {
			inDegree[succ]--
			if inDegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	return sorted != len(inDegree)
}
