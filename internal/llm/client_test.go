package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const messageResponse = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4-5",
	"content": [
		{"type": "text", "text": "  Focus on "},
		{"type": "text", "text": "the launch.  "}
	],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 12, "output_tokens": 5}
}`

func setupTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.LLM{
		APIKey:      "test-key",
		Model:       "claude-sonnet-4-5",
		BaseURL:     srv.URL,
		MaxTokens:   1000,
		Temperature: 0.7,
		Timeout:     config.Duration{Duration: 5 * time.Second},
	}, logging.Discard())
	require.NoError(t, err)

	return client
}

func TestNewClient_MissingKey(t *testing.T) {
	_, err := NewClient(config.LLM{}, logging.Discard())

	require.Error(t, err)
	assert.True(t, apperr.IsConfig(err))
}

func TestClient_Complete(t *testing.T) {
	var body []byte
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))

		var err error
		body, err = io.ReadAll(r.Body)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageResponse))
	})

	temperature := 0.2
	reply, err := client.Complete(context.Background(), Request{
		System: "You are a productivity coach.",
		Messages: []Message{
			{Role: RoleUser, Content: "What next?"},
			{Role: RoleAssistant, Content: "Which project?"},
			{Role: RoleUser, Content: "Launch"},
		},
		Temperature: &temperature,
	})

	require.NoError(t, err)
	assert.Equal(t, "Focus on the launch.", reply)

	parsed := gjson.ParseBytes(body)
	assert.Equal(t, "claude-sonnet-4-5", parsed.Get("model").String())
	assert.Equal(t, int64(1000), parsed.Get("max_tokens").Int())
	assert.InDelta(t, 0.2, parsed.Get("temperature").Float(), 1e-9)
	assert.Equal(t, "You are a productivity coach.", parsed.Get("system.0.text").String())
	assert.Equal(t, int64(3), parsed.Get("messages.#").Int())
	assert.Equal(t, "assistant", parsed.Get("messages.1.role").String())
	assert.Equal(t, "Launch", parsed.Get("messages.2.content.0.text").String())
}

func TestClient_Complete_DefaultsAndNoSystem(t *testing.T) {
	var body []byte
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(messageResponse))
	})

	_, err := client.Complete(context.Background(), Request{
		Messages:  []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens: 200,
	})
	require.NoError(t, err)

	parsed := gjson.ParseBytes(body)
	assert.False(t, parsed.Get("system").Exists())
	assert.Equal(t, int64(200), parsed.Get("max_tokens").Int())
	assert.InDelta(t, 0.7, parsed.Get("temperature").Float(), 1e-9)
}

func TestClient_Complete_UpstreamError(t *testing.T) {
	calls := 0
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	})

	_, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})

	require.Error(t, err)
	assert.True(t, apperr.IsTransport(err))
	assert.Equal(t, 1, calls, "failed calls must not be retried")
}

func TestClient_Complete_InvalidRequest(t *testing.T) {
	client := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	tests := []struct {
		name string
		req  Request
	}{
		{name: "no messages", req: Request{System: "x"}},
		{name: "unknown role", req: Request{Messages: []Message{{Role: "system", Content: "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Complete(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperr.IsValidation(err))
		})
	}
}

func TestCompleterFunc(t *testing.T) {
	var c Completer = CompleterFunc(func(ctx context.Context, req Request) (string, error) {
		return req.Messages[0].Content, nil
	})

	got, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "echo"}}})
	require.NoError(t, err)
	assert.Equal(t, "echo", got)
}

func TestStripJSONFences(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "clean", in: `{"summary": "ok"}`, expected: `{"summary": "ok"}`},
		{name: "json tag", in: "```json\n{\"summary\": \"ok\"}\n```", expected: `{"summary": "ok"}`},
		{name: "plain fence", in: "```\n{}\n```", expected: `{}`},
		{name: "surrounding whitespace", in: "  \n```json\n[]\n```\n  ", expected: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripJSONFences(tt.in))
		})
	}
}
