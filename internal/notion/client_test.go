package notion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/logging"
	"github.com/nadmax/nexcoach/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// rewriteTransport sends every request to the test server.
type rewriteTransport struct {
	target *url.URL
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = rt.target.Scheme
	req.URL.Host = rt.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func setupTestClient(t *testing.T, cfg config.Notion, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	if cfg.APIKey == "" {
		cfg.APIKey = "secret"
	}
	if cfg.TasksDatabaseID == "" {
		cfg.TasksDatabaseID = "tasks-db"
	}

	client, err := NewClient(cfg, logging.Discard(),
		notionapi.WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}))
	require.NoError(t, err)
	return client
}

func pageJSON(id, props string) string {
	return fmt.Sprintf(`{
		"object": "page",
		"id": %q,
		"created_time": "2024-03-01T08:00:00.000Z",
		"last_edited_time": "2024-03-02T08:00:00.000Z",
		"parent": {"type": "database_id", "database_id": "tasks-db"},
		"archived": false,
		"url": "https://www.notion.so/%s",
		"properties": {%s}
	}`, id, id, props)
}

const taskProps = `
	"Name": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": "Write launch post"}, "plain_text": "Write launch post"}]},
	"Status": {"id": "s", "type": "status", "status": {"id": "1", "name": "In Progress", "color": "blue"}},
	"Category": {"id": "c", "type": "select", "select": {"id": "2", "name": "Writing", "color": "red"}},
	"Type": {"id": "ty", "type": "select", "select": {"id": "3", "name": "Milestone", "color": "gray"}},
	"Priority": {"id": "p", "type": "select", "select": {"id": "4", "name": "High", "color": "red"}},
	"Project": {"id": "pr", "type": "relation", "relation": [{"id": "proj-1"}]},
	"Start Date": {"id": "sd", "type": "date", "date": {"start": "2024-03-01T09:00:00.000Z", "end": null}},
	"Planned Completion Date": {"id": "pd", "type": "date", "date": {"start": "2024-03-05T09:00:00.000Z", "end": null}},
	"Due Date": {"id": "dd", "type": "date", "date": null},
	"Dependencies": {"id": "dep", "type": "relation", "relation": [{"id": "t0"}, {"id": "t9"}]},
	"Quality": {"id": "q", "type": "number", "number": 0.9},
	"Delayed": {"id": "d", "type": "checkbox", "checkbox": true}
`

func TestNewClient_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Notion
	}{
		{name: "missing key", cfg: config.Notion{TasksDatabaseID: "db"}},
		{name: "missing tasks database", cfg: config.Notion{APIKey: "k"}},
		{name: "unknown status kind", cfg: config.Notion{APIKey: "k", TasksDatabaseID: "db", StatusKind: "multi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg, logging.Discard())
			require.Error(t, err)
			assert.True(t, apperr.IsConfig(err))
		})
	}
}

func TestClient_ListTasks(t *testing.T) {
	var bodies []string
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/databases/tasks-db/query", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))

		w.Header().Set("Content-Type", "application/json")
		if gjson.GetBytes(body, "start_cursor").String() == "" {
			fmt.Fprintf(w, `{"object": "list", "results": [%s], "has_more": true, "next_cursor": "cursor-2"}`, pageJSON("t1", taskProps))
			return
		}
		fmt.Fprintf(w, `{"object": "list", "results": [%s], "has_more": false, "next_cursor": null}`,
			pageJSON("t2", `"Name": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": "Bare"}, "plain_text": "Bare"}]}`))
	})

	tasks, err := client.ListTasks(context.Background(), "In Progress")

	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Len(t, bodies, 2)
	assert.Equal(t, "Status", gjson.Get(bodies[0], "filter.property").String())
	assert.Equal(t, "In Progress", gjson.Get(bodies[0], "filter.status.equals").String())
	assert.Equal(t, "cursor-2", gjson.Get(bodies[1], "start_cursor").String())

	first := tasks[0]
	assert.Equal(t, "t1", first.ID)
	assert.Equal(t, "Write launch post", first.Title)
	assert.Equal(t, task.StatusInProgress, first.Status)
	assert.Equal(t, "Writing", first.Category)
	assert.True(t, first.IsMilestone())
	assert.Equal(t, "High", first.Priority)
	assert.Equal(t, "proj-1", first.ProjectID)
	require.NotNil(t, first.StartDate)
	assert.True(t, first.StartDate.Equal(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)))
	require.NotNil(t, first.PlannedCompletionDate)
	assert.Nil(t, first.CompletionDate)
	assert.Nil(t, first.DueDate)
	assert.Equal(t, []string{"t0", "t9"}, first.Dependencies)
	require.NotNil(t, first.Quality)
	assert.InDelta(t, 0.9, *first.Quality, 1e-9)
	assert.True(t, first.Delayed)
	assert.Equal(t, "https://www.notion.so/t1", first.URL)

	bare := tasks[1]
	assert.Equal(t, "Bare", bare.Title)
	assert.Empty(t, bare.Category)
	assert.Nil(t, bare.StartDate)
	assert.Nil(t, bare.Dependencies)
	assert.Nil(t, bare.Quality)
}

func TestClient_ListTasks_SelectStatus(t *testing.T) {
	var body []byte
	client := setupTestClient(t, config.Notion{StatusKind: "select"}, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "results": [], "has_more": false}`))
	})

	tasks, err := client.ListTasks(context.Background(), "Blocked")

	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Equal(t, "Blocked", gjson.GetBytes(body, "filter.select.equals").String())
	assert.False(t, gjson.GetBytes(body, "filter.status").Exists())
}

func TestClient_ListTasks_NoFilter(t *testing.T) {
	var body []byte
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object": "list", "results": [], "has_more": false}`))
	})

	_, err := client.ListTasks(context.Background(), "")

	require.NoError(t, err)
	assert.False(t, gjson.GetBytes(body, "filter").Exists())
}

func TestClient_ListTasks_TransportError(t *testing.T) {
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"object": "error", "status": 401, "code": "unauthorized", "message": "API token is invalid."}`))
	})

	_, err := client.ListTasks(context.Background(), "")

	require.Error(t, err)
	assert.True(t, apperr.IsTransport(err))
}

func TestClient_GetTask(t *testing.T) {
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/pages/t1":
			_, _ = w.Write([]byte(pageJSON("t1", taskProps)))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object": "error", "status": 404, "code": "object_not_found", "message": "Could not find page"}`))
		}
	})

	got, err := client.GetTask(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "Write launch post", got.Title)

	_, err = client.GetTask(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
}

func TestClient_UpdateTask(t *testing.T) {
	var body []byte
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v1/pages/t1", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pageJSON("t1", taskProps)))
	})

	status := task.StatusCompleted
	priority := "Low"
	done := time.Date(2024, 3, 4, 17, 0, 0, 0, time.UTC)
	quality := 0.75
	delayed := false

	_, err := client.UpdateTask(context.Background(), "t1", task.Update{
		Status:         &status,
		Priority:       &priority,
		CompletionDate: &done,
		Quality:        &quality,
		Delayed:        &delayed,
	})

	require.NoError(t, err)
	props := gjson.GetBytes(body, "properties")
	assert.Equal(t, "Completed", props.Get("Status.status.name").String())
	assert.Equal(t, "Low", props.Get("Priority.select.name").String())
	assert.True(t, strings.HasPrefix(props.Get("Completion Date.date.start").String(), "2024-03-04"))
	assert.InDelta(t, 0.75, props.Get("Quality.number").Float(), 1e-9)
	assert.True(t, props.Get("Delayed").Exists())
	assert.False(t, props.Get("Category").Exists())
}

func TestClient_UpdateTask_Invalid(t *testing.T) {
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.UpdateTask(context.Background(), "t1", task.Update{})

	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
}

func TestClient_CreateTask(t *testing.T) {
	var body []byte
	client := setupTestClient(t, config.Notion{StatusKind: "select"}, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/pages", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pageJSON("new-1", `"Name": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": "Plan sprint"}, "plain_text": "Plan sprint"}]}`)))
	})

	status := task.StatusNotStarted
	created, err := client.CreateTask(context.Background(), "Plan sprint", task.Update{Status: &status})

	require.NoError(t, err)
	assert.Equal(t, "new-1", created.ID)
	assert.Equal(t, "tasks-db", gjson.GetBytes(body, "parent.database_id").String())
	assert.Equal(t, "Plan sprint", gjson.GetBytes(body, "properties.Name.title.0.text.content").String())
	assert.Equal(t, "Not Started", gjson.GetBytes(body, "properties.Status.select.name").String())

	_, err = client.CreateTask(context.Background(), "  ", task.Update{})
	assert.True(t, apperr.IsValidation(err))
}

func TestClient_ListGoalsAndProjects(t *testing.T) {
	client := setupTestClient(t, config.Notion{GoalsDatabaseID: "goals-db", ProjectsDatabaseID: "projects-db"},
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			switch r.URL.Path {
			case "/v1/databases/goals-db/query":
				fmt.Fprintf(w, `{"object": "list", "results": [%s], "has_more": false}`, pageJSON("g1", `
					"Title": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": "Run a marathon"}, "plain_text": "Run a marathon"}]},
					"Status": {"id": "s", "type": "select", "select": {"name": "In Progress"}},
					"Category": {"id": "c", "type": "select", "select": {"name": "Health"}},
					"Target Date": {"id": "td", "type": "date", "date": {"start": "2024-10-01"}},
					"Progress": {"id": "pg", "type": "number", "number": 0.4},
					"Success Criteria": {"id": "sc", "type": "rich_text", "rich_text": [{"type": "text", "text": {"content": "- Sub 4h\n- No injuries"}, "plain_text": "- Sub 4h\n- No injuries"}]}
				`))
			case "/v1/databases/projects-db/query":
				fmt.Fprintf(w, `{"object": "list", "results": [%s], "has_more": false}`, pageJSON("proj-1", `
					"Name": {"id": "title", "type": "title", "title": [{"type": "text", "text": {"content": "Training plan"}, "plain_text": "Training plan"}]},
					"Goals": {"id": "g", "type": "relation", "relation": [{"id": "g1"}]},
					"Objectives": {"id": "o", "type": "rich_text", "rich_text": [{"type": "text", "text": {"content": "Build base\nTaper"}, "plain_text": "Build base\nTaper"}]}
				`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		})

	goals, err := client.ListGoals(context.Background())
	require.NoError(t, err)
	require.Len(t, goals, 1)
	assert.Equal(t, "Run a marathon", goals[0].Title)
	assert.Equal(t, task.StatusInProgress, goals[0].Status)
	assert.Equal(t, "Health", goals[0].Category)
	require.NotNil(t, goals[0].TargetDate)
	require.NotNil(t, goals[0].Progress)
	assert.InDelta(t, 0.4, *goals[0].Progress, 1e-9)
	assert.Equal(t, []string{"Sub 4h", "No injuries"}, goals[0].SuccessCriteria)

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Training plan", projects[0].Name)
	assert.Equal(t, []string{"g1"}, projects[0].GoalIDs)
	assert.Equal(t, []string{"Build base", "Taper"}, projects[0].Objectives)
}

func TestClient_OptionalDatabasesUnset(t *testing.T) {
	client := setupTestClient(t, config.Notion{}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	goals, err := client.ListGoals(context.Background())
	require.NoError(t, err)
	assert.Nil(t, goals)

	projects, err := client.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Nil(t, projects)
}
