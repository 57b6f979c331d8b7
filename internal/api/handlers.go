// Package api exposes the coach over HTTP: tasks, task analysis, chat,
// insights, forecasts and insight jobs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/coach"
	"github.com/nadmax/nexcoach/internal/dashboard"
	"github.com/nadmax/nexcoach/internal/forecast"
	"github.com/nadmax/nexcoach/internal/httputil"
	"github.com/nadmax/nexcoach/internal/insights"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/nadmax/nexcoach/internal/queue"
	"github.com/nadmax/nexcoach/internal/repository"
	"github.com/nadmax/nexcoach/internal/task"
)

const maxBodyBytes = 1 << 20

type TaskStore interface {
	ListTasks(ctx context.Context, status string) ([]task.Task, error)
	GetTask(ctx context.Context, id string) (task.Task, error)
	UpdateTask(ctx context.Context, id string, u task.Update) (task.Task, error)
	CreateTask(ctx context.Context, title string, u task.Update) (task.Task, error)
}

type Coach interface {
	AnalyzeTask(ctx context.Context, id string) (*coach.TaskAnalysis, error)
	Chat(ctx context.Context, req coach.ChatRequest) (*coach.ChatResponse, error)
}

type InsightEngine interface {
	Gather(ctx context.Context) (insights.Data, error)
	Generate(ctx context.Context) (*insights.Insight, error)
}

type InsightHistory interface {
	SaveInsight(ctx context.Context, in *insights.Insight) error
	RecentInsights(ctx context.Context, limit int) ([]insights.Insight, error)
}

// Deps are the collaborators behind the routes. History, Jobs and
// JobHistory are optional; their routes answer 503 when unset.
type Deps struct {
	Tasks      TaskStore
	Coach      Coach
	Insights   InsightEngine
	Forecaster *forecast.Forecaster
	History    InsightHistory
	Jobs       *queue.Queue
	JobHistory repository.JobRepository
	Logger     *slog.Logger
}

type API struct {
	deps Deps
	dash *dashboard.Dashboard
	mux  *http.ServeMux
}

type CreateTaskRequest struct {
	Title string `json:"title"`
	task.Update
}

type CreateJobRequest struct {
	Type       queue.JobType `json:"type"`
	SendDigest bool          `json:"send_digest"`
	Recipient  string        `json:"recipient"`
	ScheduleIn *int          `json:"schedule_in"`
}

func NewAPI(deps Deps) *API {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	api := &API{
		deps: deps,
		mux:  http.NewServeMux(),
	}
	if deps.Jobs != nil {
		api.dash = dashboard.NewDashboard(deps.Jobs, deps.JobHistory, deps.Logger)
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/health", a.handleHealth)
	a.mux.HandleFunc("/api/tasks", a.handleTasks)
	a.mux.HandleFunc("/api/tasks/", a.handleTaskAction)
	a.mux.HandleFunc("/api/chat", a.handleChat)
	a.mux.HandleFunc("/api/insights/generate", a.handleGenerateInsights)
	a.mux.HandleFunc("/api/insights/history", a.handleInsightHistory)
	a.mux.HandleFunc("/api/insights/jobs", a.handleInsightJobs)
	a.mux.HandleFunc("/api/insights/jobs/", a.handleInsightJobByID)
	a.mux.HandleFunc("/api/forecast", a.handleForecast)
	a.mux.HandleFunc("/api/jobs/stats", a.withDashboard(func(d *dashboard.Dashboard) http.HandlerFunc { return d.GetStats }))
	a.mux.HandleFunc("/api/jobs/history", a.withDashboard(func(d *dashboard.Dashboard) http.HandlerFunc { return d.GetRecentJobs }))
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	httputil.WriteJSON(w, map[string]any{
		"status": "healthy",
		"services": map[string]string{
			"notion":  "connected",
			"llm":     "ready",
			"history": enabled(a.deps.History != nil),
			"jobs":    enabled(a.deps.Jobs != nil),
		},
	}, http.StatusOK)
}

func enabled(ok bool) string {
	if ok {
		return "enabled"
	}
	return "disabled"
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listTasks(w, r)
	case http.MethodPost:
		a.createTask(w, r)
	default:
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.deps.Tasks.ListTasks(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httputil.WriteError(w, "Failed to fetch tasks", err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}

	httputil.WriteJSON(w, tasks, http.StatusOK)
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !a.decode(w, r, &req) {
		return
	}

	created, err := a.deps.Tasks.CreateTask(r.Context(), req.Title, req.Update)
	if err != nil {
		httputil.WriteError(w, "Failed to create task", err)
		return
	}

	httputil.WriteJSON(w, created, http.StatusCreated)
}

// handleTaskAction serves /api/tasks/{id}/properties and /api/tasks/{id}/analyze.
func (a *API) handleTaskAction(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/tasks/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		httputil.WriteJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	taskID, action := parts[0], parts[1]

	switch action {
	case "properties":
		if r.Method != http.MethodPatch {
			httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a.updateTaskProperties(w, r, taskID)
	case "analyze":
		if r.Method != http.MethodPost {
			httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		a.analyzeTask(w, r, taskID)
	default:
		httputil.WriteJSONError(w, "Not found", http.StatusNotFound)
	}
}

func (a *API) updateTaskProperties(w http.ResponseWriter, r *http.Request, taskID string) {
	var u task.Update
	if !a.decode(w, r, &u) {
		return
	}

	updated, err := a.deps.Tasks.UpdateTask(r.Context(), taskID, u)
	if err != nil {
		httputil.WriteError(w, "Failed to update task", err)
		return
	}

	httputil.WriteJSON(w, map[string]any{"status": "success", "task": updated}, http.StatusOK)
}

func (a *API) analyzeTask(w http.ResponseWriter, r *http.Request, taskID string) {
	analysis, err := a.deps.Coach.AnalyzeTask(r.Context(), taskID)
	if err != nil {
		httputil.WriteError(w, "Failed to analyze task", err)
		return
	}

	httputil.WriteJSON(w, analysis, http.StatusOK)
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req coach.ChatRequest
	if !a.decode(w, r, &req) {
		return
	}

	resp, err := a.deps.Coach.Chat(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, "Failed to process chat", err)
		return
	}

	httputil.WriteJSON(w, resp, http.StatusOK)
}

// handleGenerateInsights runs the engine synchronously. The insight is kept
// in history when history is configured; a failed save is only logged.
func (a *API) handleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	in, err := a.deps.Insights.Generate(r.Context())
	if err != nil {
		httputil.WriteError(w, "Failed to generate insights", err)
		return
	}
	metrics.RecordInsightGenerated("api")

	if a.deps.History != nil {
		if err := a.deps.History.SaveInsight(r.Context(), in); err != nil {
			a.deps.Logger.Warn("failed to save insight", "insight_id", in.ID, "error", err)
		}
	}

	httputil.WriteJSON(w, in, http.StatusOK)
}

func (a *API) handleInsightHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.deps.History == nil {
		httputil.WriteJSONError(w, "Insight history is not configured", http.StatusServiceUnavailable)
		return
	}

	limit := repository.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, "Invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = n
	}

	history, err := a.deps.History.RecentInsights(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, "Failed to load insight history", err)
		return
	}

	httputil.WriteJSON(w, map[string]any{"insights": history, "count": len(history)}, http.StatusOK)
}

func (a *API) handleInsightJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.deps.Jobs == nil {
		httputil.WriteJSONError(w, "Job queue is not configured", http.StatusServiceUnavailable)
		return
	}

	var req CreateJobRequest
	if r.ContentLength != 0 && !a.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = queue.JobGenerateInsights
	}
	if req.Type != queue.JobGenerateInsights && req.Type != queue.JobSendDigest {
		httputil.WriteJSONError(w, fmt.Sprintf("Unknown job type: %s", req.Type), http.StatusBadRequest)
		return
	}

	payload := map[string]any{}
	if req.SendDigest {
		payload["send_digest"] = true
	}
	if req.Recipient != "" {
		payload["recipient"] = req.Recipient
	}

	job := queue.NewJob(req.Type, payload)
	if req.ScheduleIn != nil {
		if *req.ScheduleIn < 0 {
			httputil.WriteJSONError(w, "schedule_in must not be negative", http.StatusBadRequest)
			return
		}
		job.ScheduledAt = time.Now().Add(time.Duration(*req.ScheduleIn) * time.Second)
	}

	if err := a.deps.Jobs.Enqueue(r.Context(), job); err != nil {
		httputil.WriteError(w, "Failed to enqueue job", err)
		return
	}

	httputil.WriteJSON(w, job, http.StatusAccepted)
}

func (a *API) handleInsightJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if a.deps.Jobs == nil {
		httputil.WriteJSONError(w, "Job queue is not configured", http.StatusServiceUnavailable)
		return
	}

	jobID := strings.TrimPrefix(r.URL.Path, "/api/insights/jobs/")
	if jobID == "" || strings.Contains(jobID, "/") {
		httputil.WriteJSONError(w, "Job ID is required", http.StatusBadRequest)
		return
	}

	job, err := a.deps.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		httputil.WriteError(w, "Failed to load job", err)
		return
	}

	httputil.WriteJSON(w, job, http.StatusOK)
}

// handleForecast returns one timeline per project, or only the project
// named by ?project= (matched by id or name).
func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := a.deps.Insights.Gather(r.Context())
	if err != nil {
		httputil.WriteError(w, "Failed to load workspace", err)
		return
	}

	want := r.URL.Query().Get("project")
	timelines := []forecast.Timeline{}
	for _, p := range data.Projects {
		if want != "" && p.ID != want && p.Name != want {
			continue
		}
		tl := a.deps.Forecaster.Forecast(p, data.Tasks)
		metrics.RecordForecast(tl.Cyclic)
		timelines = append(timelines, tl)
	}

	if want != "" && len(timelines) == 0 {
		httputil.WriteError(w, "Failed to forecast", apperr.NotFound("api.forecast", fmt.Errorf("project %s not found", want)))
		return
	}

	httputil.WriteJSON(w, timelines, http.StatusOK)
}

func (a *API) withDashboard(route func(*dashboard.Dashboard) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			httputil.WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if a.dash == nil {
			httputil.WriteJSONError(w, "Job queue is not configured", http.StatusServiceUnavailable)
			return
		}
		route(a.dash)(w, r)
	}
}

// decode reads a JSON body into v and writes a 400 on failure.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() {
		if err := r.Body.Close(); err != nil {
			a.deps.Logger.Warn("failed to close request body", "error", err)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.WriteJSONError(w, "Failed to read request body", http.StatusBadRequest)
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			httputil.WriteJSONError(w, fmt.Sprintf("Invalid value for %s", typeErr.Field), http.StatusBadRequest)
			return false
		}
		httputil.WriteJSONError(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}
