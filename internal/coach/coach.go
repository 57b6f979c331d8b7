// Package coach answers questions about single tasks: property suggestions
// for one task and a chat that may propose task changes.
package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/llm"
	"github.com/nadmax/nexcoach/internal/task"
	"github.com/tidwall/gjson"
)

const (
	analysisSystemPrompt = "You are a task analysis expert helping prioritize and organize work."

	chatSystemPrompt = `You are a productivity coach helping the user plan and complete their tasks.
Answer conversationally. When the user agrees to change the task, append exactly one block:
[TASK_UPDATE]
status: <new status>
priority: <High|Medium|Low>
due_date: <YYYY-MM-DD>
[/TASK_UPDATE]
Include only the fields that change. Allowed keys: status, priority, category, type,
start_date, completion_date, planned_completion_date, due_date, quality (0-1), delayed (true/false).`

	analysisPrompt = `Analyze this task and suggest appropriate properties:
Task: %s
%s
Provide suggestions for:
1. Priority level (High/Medium/Low)
2. Estimated time required (in hours)
3. Energy level needed (High/Medium/Low)
4. Best time of day to work on it
5. Related project categories

Format as JSON with keys: priority, estimated_hours, energy_level, best_time_of_day,
categories, explanation.`
)

var ErrNoMessages = errors.New("chat needs at least one message")

type TaskReader interface {
	GetTask(ctx context.Context, id string) (task.Task, error)
}

type Service struct {
	tasks     TaskReader
	completer llm.Completer
	logger    *slog.Logger
}

func NewService(tasks TaskReader, completer llm.Completer, logger *slog.Logger) *Service {
	return &Service{tasks: tasks, completer: completer, logger: logger}
}

// Suggestion is the structured part of a task analysis. Fields the model
// left out stay empty.
type Suggestion struct {
	Priority       string   `json:"priority,omitempty"`
	EstimatedHours float64  `json:"estimated_hours,omitempty"`
	EnergyLevel    string   `json:"energy_level,omitempty"`
	BestTimeOfDay  string   `json:"best_time_of_day,omitempty"`
	Categories     []string `json:"categories,omitempty"`
	Explanation    string   `json:"explanation,omitempty"`
}

type TaskAnalysis struct {
	TaskID     string      `json:"task_id"`
	TaskTitle  string      `json:"task_title"`
	Analysis   string      `json:"analysis"`
	Suggestion *Suggestion `json:"suggestion,omitempty"`
}

func (s *Service) AnalyzeTask(ctx context.Context, id string) (*TaskAnalysis, error) {
	t, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	var details strings.Builder
	if t.Category != "" {
		fmt.Fprintf(&details, "Category: %s\n", t.Category)
	}
	if t.Status != "" {
		fmt.Fprintf(&details, "Status: %s\n", t.Status)
	}
	if t.DueDate != nil {
		fmt.Fprintf(&details, "Due: %s\n", t.DueDate.Format("2006-01-02"))
	}

	reply, err := s.completer.Complete(ctx, llm.Request{
		System:   analysisSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(analysisPrompt, t.Title, details.String())}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze task %s: %w", id, err)
	}

	s.logger.Info("task analyzed", "task_id", id)
	return &TaskAnalysis{
		TaskID:     t.ID,
		TaskTitle:  t.Title,
		Analysis:   reply,
		Suggestion: parseSuggestion(reply),
	}, nil
}

func parseSuggestion(reply string) *Suggestion {
	body := llm.StripJSONFences(reply)
	if !gjson.Valid(body) {
		return nil
	}
	parsed := gjson.Parse(body)
	if !parsed.IsObject() {
		return nil
	}

	sg := &Suggestion{
		Priority:       parsed.Get("priority").String(),
		EstimatedHours: parsed.Get("estimated_hours").Float(),
		EnergyLevel:    parsed.Get("energy_level").String(),
		BestTimeOfDay:  parsed.Get("best_time_of_day").String(),
		Explanation:    parsed.Get("explanation").String(),
	}
	categories := parsed.Get("categories")
	if categories.IsArray() {
		for _, c := range categories.Array() {
			sg.Categories = append(sg.Categories, c.String())
		}
	} else if c := categories.String(); c != "" {
		sg.Categories = []string{c}
	}
	return sg
}

type ChatRequest struct {
	Messages []llm.Message `json:"messages"`
	TaskID   string        `json:"taskId,omitempty"`
	Context  string        `json:"context,omitempty"`
}

// ChatResponse carries the reply and the task change it proposes, if any.
// Proposed changes are not applied.
type ChatResponse struct {
	Response    string       `json:"response"`
	TaskUpdates *task.Update `json:"taskUpdates"`
}

func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Messages) == 0 {
		return nil, apperr.Validation("coach.chat", ErrNoMessages)
	}

	var conversation strings.Builder
	if req.TaskID != "" {
		t, err := s.tasks.GetTask(ctx, req.TaskID)
		if err != nil {
			return nil, err
		}
		taskJSON, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal task context: %w", err)
		}
		fmt.Fprintf(&conversation, "Task Context: %s\n", taskJSON)
	}
	if req.Context != "" {
		conversation.WriteString(req.Context)
		conversation.WriteString("\n")
	}
	for _, m := range req.Messages {
		fmt.Fprintf(&conversation, "%s: %s\n", m.Role, m.Content)
	}

	reply, err := s.completer.Complete(ctx, llm.Request{
		System:   chatSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: conversation.String()}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chat reply: %w", err)
	}

	text, update := ParseUpdateBlock(reply)
	if update != nil {
		s.logger.Info("chat proposed task update", "task_id", req.TaskID)
	}

	return &ChatResponse{Response: text, TaskUpdates: update}, nil
}
