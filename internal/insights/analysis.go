package insights

import (
	"sort"
	"time"

	"github.com/nadmax/nexcoach/internal/forecast"
	"github.com/nadmax/nexcoach/internal/patterns"
	"github.com/nadmax/nexcoach/internal/task"
)

// Data is one snapshot of the workspace. Projects carry their tasks.
type Data struct {
	Goals    []task.Goal    `json:"goals"`
	Tasks    []task.Task    `json:"tasks"`
	Projects []task.Project `json:"projects"`
}

type Analysis struct {
	TaskCount          int                  `json:"task_count"`
	CompletionRate     float64              `json:"completion_rate"`
	CategoryCompletion map[string]float64   `json:"category_completion"`
	GoalProgress       []GoalProgress       `json:"goal_progress"`
	Blockers           []Blocker            `json:"blockers"`
	Alignment          map[string]Alignment `json:"alignment"`
	Bottlenecks        []Bottleneck         `json:"bottlenecks"`
	Patterns           patterns.Report      `json:"patterns"`
	Timelines          []forecast.Timeline  `json:"timelines"`
}

type GoalProgress struct {
	GoalID       string     `json:"goal_id"`
	Title        string     `json:"title"`
	Status       string     `json:"status,omitempty"`
	Progress     float64    `json:"progress"`
	TargetDate   *time.Time `json:"target_date,omitempty"`
	ProjectCount int        `json:"project_count"`
}

type Blocker struct {
	TaskID       string   `json:"task_id"`
	Title        string   `json:"title"`
	Category     string   `json:"category,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Alignment describes how well a goal's success criteria are covered by the
// objectives of the projects linked to it.
type Alignment struct {
	ProjectCount int      `json:"project_count"`
	Coverage     float64  `json:"coverage"`
	Gaps         []string `json:"gaps"`
}

type Bottleneck struct {
	ProjectID    string   `json:"project_id"`
	ProjectName  string   `json:"project_name"`
	BlockedTasks []string `json:"blocked_tasks"`
	Impact       float64  `json:"impact"`
}

func completionRate(tasks []task.Task) float64 {
	if len(tasks) == 0 {
		return 0
	}
	done := 0
	for _, t := range tasks {
		if t.IsCompleted() {
			done++
		}
	}
	return float64(done) / float64(len(tasks))
}

func categoryCompletion(tasks []task.Task) map[string]float64 {
	byCategory := make(map[string][]task.Task)
	for _, t := range tasks {
		if t.Category != "" {
			byCategory[t.Category] = append(byCategory[t.Category], t)
		}
	}

	out := make(map[string]float64, len(byCategory))
	for category, ts := range byCategory {
		out[category] = completionRate(ts)
	}
	return out
}

func goalProgress(goals []task.Goal, projects []task.Project) []GoalProgress {
	out := make([]GoalProgress, 0, len(goals))
	for _, g := range goals {
		gp := GoalProgress{
			GoalID:       g.ID,
			Title:        g.Title,
			Status:       string(g.Status),
			TargetDate:   g.TargetDate,
			ProjectCount: len(linkedProjects(g, projects)),
		}
		if g.Progress != nil {
			gp.Progress = *g.Progress
		}
		out = append(out, gp)
	}
	return out
}

func blockers(tasks []task.Task) []Blocker {
	out := []Blocker{}
	for _, t := range tasks {
		if !t.IsBlocked() {
			continue
		}
		out = append(out, Blocker{
			TaskID:       t.ID,
			Title:        t.Title,
			Category:     t.Category,
			ProjectID:    t.ProjectID,
			Dependencies: t.Dependencies,
		})
	}
	return out
}

func linkedProjects(g task.Goal, projects []task.Project) []task.Project {
	var out []task.Project
	for _, p := range projects {
		for _, id := range p.GoalIDs {
			if id == g.ID {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// alignment computes, per goal, the share of distinct success criteria that
// appear among linked project objectives. A goal without criteria has zero
// coverage and no gaps.
func alignment(goals []task.Goal, projects []task.Project) map[string]Alignment {
	out := make(map[string]Alignment, len(goals))
	for _, g := range goals {
		linked := linkedProjects(g, projects)

		covered := make(map[string]bool)
		for _, p := range linked {
			for _, obj := range p.Objectives {
				covered[obj] = true
			}
		}

		criteria := dedupe(g.SuccessCriteria)
		gaps := []string{}
		hits := 0
		for _, c := range criteria {
			if covered[c] {
				hits++
			} else {
				gaps = append(gaps, c)
			}
		}

		var coverage float64
		if len(criteria) > 0 {
			coverage = float64(hits) / float64(len(criteria))
		}

		out[g.ID] = Alignment{
			ProjectCount: len(linked),
			Coverage:     coverage,
			Gaps:         gaps,
		}
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, s := range items {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// bottlenecks lists projects with blocked tasks, most affected first.
func bottlenecks(projects []task.Project) []Bottleneck {
	out := []Bottleneck{}
	for _, p := range projects {
		var blocked []string
		for _, t := range p.Tasks {
			if t.IsBlocked() {
				blocked = append(blocked, t.ID)
			}
		}
		if len(blocked) == 0 {
			continue
		}
		out = append(out, Bottleneck{
			ProjectID:    p.ID,
			ProjectName:  p.Name,
			BlockedTasks: blocked,
			Impact:       float64(len(blocked)) / float64(len(p.Tasks)),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Impact > out[j].Impact
	})
	return out
}
