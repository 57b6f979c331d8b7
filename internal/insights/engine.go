// Package insights gathers a workspace snapshot, summarizes it and asks the
// LLM for strategic insights.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nadmax/nexcoach/internal/forecast"
	"github.com/nadmax/nexcoach/internal/llm"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/nadmax/nexcoach/internal/patterns"
	"github.com/nadmax/nexcoach/internal/task"
)

// Workspace is the subset of the Notion client the engine reads from.
type Workspace interface {
	ListTasks(ctx context.Context, status string) ([]task.Task, error)
	ListGoals(ctx context.Context) ([]task.Goal, error)
	ListProjects(ctx context.Context) ([]task.Project, error)
}

type Insight struct {
	ID              string    `json:"id"`
	GeneratedAt     time.Time `json:"generated_at"`
	Summary         string    `json:"summary"`
	Patterns        []string  `json:"patterns"`
	Recommendations []string  `json:"recommendations"`
	Priorities      []string  `json:"priorities"`
	Raw             string    `json:"raw,omitempty"`
	Analysis        *Analysis `json:"analysis,omitempty"`
}

type Engine struct {
	workspace  Workspace
	completer  llm.Completer
	forecaster *forecast.Forecaster
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(workspace Workspace, completer llm.Completer, forecaster *forecast.Forecaster, logger *slog.Logger) *Engine {
	return &Engine{
		workspace:  workspace,
		completer:  completer,
		forecaster: forecaster,
		logger:     logger,
		now:        time.Now,
	}
}

// Gather reads goals, tasks and projects and attaches tasks to projects.
// Any failed read aborts the whole snapshot.
func (e *Engine) Gather(ctx context.Context) (Data, error) {
	goals, err := e.workspace.ListGoals(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("failed to list goals: %w", err)
	}

	tasks, err := e.workspace.ListTasks(ctx, "")
	if err != nil {
		return Data{}, fmt.Errorf("failed to list tasks: %w", err)
	}

	projects, err := e.workspace.ListProjects(ctx)
	if err != nil {
		return Data{}, fmt.Errorf("failed to list projects: %w", err)
	}

	return Data{
		Goals:    goals,
		Tasks:    tasks,
		Projects: task.GroupByProject(projects, tasks),
	}, nil
}

func (e *Engine) Analyze(d Data) Analysis {
	timelines := make([]forecast.Timeline, 0, len(d.Projects))
	for _, p := range d.Projects {
		tl := e.forecaster.Forecast(p, d.Tasks)
		metrics.RecordForecast(tl.Cyclic)
		if tl.Cyclic {
			e.logger.Warn("project has cyclic task dependencies", "project_id", p.ID)
		}
		timelines = append(timelines, tl)
	}

	return Analysis{
		TaskCount:          len(d.Tasks),
		CompletionRate:     completionRate(d.Tasks),
		CategoryCompletion: categoryCompletion(d.Tasks),
		GoalProgress:       goalProgress(d.Goals, d.Projects),
		Blockers:           blockers(d.Tasks),
		Alignment:          alignment(d.Goals, d.Projects),
		Bottlenecks:        bottlenecks(d.Projects),
		Patterns:           patterns.Analyze(d.Tasks, d.Goals),
		Timelines:          timelines,
	}
}

// Generate runs Gather, Analyze and Synthesize.
func (e *Engine) Generate(ctx context.Context) (*Insight, error) {
	data, err := e.Gather(ctx)
	if err != nil {
		return nil, err
	}

	analysis := e.Analyze(data)
	e.logger.Info("workspace analyzed",
		"tasks", analysis.TaskCount,
		"goals", len(data.Goals),
		"projects", len(data.Projects),
	)

	return e.Synthesize(ctx, analysis)
}

// Synthesize sends the analysis to the LLM and parses its reply.
func (e *Engine) Synthesize(ctx context.Context, a Analysis) (*Insight, error) {
	prompt, err := buildPrompt(a)
	if err != nil {
		return nil, err
	}

	reply, err := e.completer.Complete(ctx, llm.Request{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize insights: %w", err)
	}

	insight := parseReply(reply)
	insight.ID = uuid.New().String()
	insight.GeneratedAt = e.now().UTC()
	insight.Analysis = &a

	return insight, nil
}
