// Package notion reads and writes the coach's tasks, goals and projects in
// Notion databases and decodes their property bags into task records.
package notion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jomei/notionapi"
	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/metrics"
	"github.com/nadmax/nexcoach/internal/task"
)

const (
	StatusKindStatus = "status"
	StatusKindSelect = "select"

	service = "notion"
)

var ErrBlankTitle = errors.New("task title must not be blank")

type Client struct {
	api        *notionapi.Client
	tasksDB    notionapi.DatabaseID
	projectsDB notionapi.DatabaseID
	goalsDB    notionapi.DatabaseID
	statusKind string
	logger     *slog.Logger
}

// NewClient validates the credentials in cfg and builds a client. Extra
// options are passed to the underlying notionapi client.
func NewClient(cfg config.Notion, logger *slog.Logger, opts ...notionapi.ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Config("notion.new_client", errors.New("notion api key not set"))
	}
	if cfg.TasksDatabaseID == "" {
		return nil, apperr.Config("notion.new_client", errors.New("notion tasks database id not set"))
	}

	kind := strings.ToLower(strings.TrimSpace(cfg.StatusKind))
	switch kind {
	case "", StatusKindStatus:
		kind = StatusKindStatus
	case StatusKindSelect:
	default:
		return nil, apperr.Config("notion.new_client", fmt.Errorf("unknown status kind %q", cfg.StatusKind))
	}

	return &Client{
		api:        notionapi.NewClient(notionapi.Token(cfg.APIKey), opts...),
		tasksDB:    notionapi.DatabaseID(cfg.TasksDatabaseID),
		projectsDB: notionapi.DatabaseID(cfg.ProjectsDatabaseID),
		goalsDB:    notionapi.DatabaseID(cfg.GoalsDatabaseID),
		statusKind: kind,
		logger:     logger,
	}, nil
}

// ListTasks returns every task, or only those whose status equals status
// when it is non-empty.
func (c *Client) ListTasks(ctx context.Context, status string) ([]task.Task, error) {
	var filter notionapi.Filter
	if status != "" {
		f := &notionapi.PropertyFilter{Property: propStatus}
		if c.statusKind == StatusKindSelect {
			f.Select = &notionapi.SelectFilterCondition{Equals: status}
		} else {
			f.Status = &notionapi.StatusFilterCondition{Equals: status}
		}
		filter = f
	}

	pages, err := c.queryAll(ctx, "notion.list_tasks", c.tasksDB, filter)
	if err != nil {
		return nil, err
	}

	tasks := make([]task.Task, 0, len(pages))
	for _, p := range pages {
		tasks = append(tasks, decodeTask(p))
	}

	c.logger.Debug("tasks fetched", "count", len(tasks), "status", status)
	return tasks, nil
}

func (c *Client) GetTask(ctx context.Context, id string) (task.Task, error) {
	start := time.Now()
	page, err := c.api.Page.Get(ctx, notionapi.PageID(id))
	metrics.RecordUpstreamCall(service, "get_page", time.Since(start), err)
	if err != nil {
		return task.Task{}, c.wrap("notion.get_task", err)
	}
	return decodeTask(*page), nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, u task.Update) (task.Task, error) {
	if err := u.Validate(); err != nil {
		return task.Task{}, apperr.Validation("notion.update_task", err)
	}

	start := time.Now()
	page, err := c.api.Page.Update(ctx, notionapi.PageID(id), &notionapi.PageUpdateRequest{
		Properties: c.encodeUpdate(u),
	})
	metrics.RecordUpstreamCall(service, "update_page", time.Since(start), err)
	if err != nil {
		return task.Task{}, c.wrap("notion.update_task", err)
	}

	c.logger.Info("task updated", "task_id", id)
	return decodeTask(*page), nil
}

// CreateTask adds a page to the tasks database. u may be empty.
func (c *Client) CreateTask(ctx context.Context, title string, u task.Update) (task.Task, error) {
	if strings.TrimSpace(title) == "" {
		return task.Task{}, apperr.Validation("notion.create_task", ErrBlankTitle)
	}
	if !u.IsEmpty() {
		if err := u.Validate(); err != nil {
			return task.Task{}, apperr.Validation("notion.create_task", err)
		}
	}

	props := c.encodeUpdate(u)
	props[propTitle] = titleProperty(title)

	start := time.Now()
	page, err := c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.tasksDB,
		},
		Properties: props,
	})
	metrics.RecordUpstreamCall(service, "create_page", time.Since(start), err)
	if err != nil {
		return task.Task{}, c.wrap("notion.create_task", err)
	}

	c.logger.Info("task created", "task_id", string(page.ID))
	return decodeTask(*page), nil
}

// ListGoals returns nothing when no goals database is configured.
func (c *Client) ListGoals(ctx context.Context) ([]task.Goal, error) {
	if c.goalsDB == "" {
		return nil, nil
	}

	pages, err := c.queryAll(ctx, "notion.list_goals", c.goalsDB, nil)
	if err != nil {
		return nil, err
	}

	goals := make([]task.Goal, 0, len(pages))
	for _, p := range pages {
		goals = append(goals, decodeGoal(p))
	}
	return goals, nil
}

// ListProjects returns nothing when no projects database is configured.
// Projects come back without tasks; see task.GroupByProject.
func (c *Client) ListProjects(ctx context.Context) ([]task.Project, error) {
	if c.projectsDB == "" {
		return nil, nil
	}

	pages, err := c.queryAll(ctx, "notion.list_projects", c.projectsDB, nil)
	if err != nil {
		return nil, err
	}

	projects := make([]task.Project, 0, len(pages))
	for _, p := range pages {
		projects = append(projects, decodeProject(p))
	}
	return projects, nil
}

func (c *Client) queryAll(ctx context.Context, op string, db notionapi.DatabaseID, filter notionapi.Filter) ([]notionapi.Page, error) {
	var pages []notionapi.Page
	req := &notionapi.DatabaseQueryRequest{Filter: filter}

	for {
		start := time.Now()
		resp, err := c.api.Database.Query(ctx, db, req)
		metrics.RecordUpstreamCall(service, "query_database", time.Since(start), err)
		if err != nil {
			return nil, c.wrap(op, err)
		}

		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return pages, nil
		}
		req.StartCursor = resp.NextCursor
	}
}

func (c *Client) wrap(op string, err error) error {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return apperr.NotFound(op, err)
	}

	c.logger.Error("notion request failed", "op", op, "error", err)
	return apperr.Transport(op, fmt.Errorf("failed to call notion: %w", err))
}
