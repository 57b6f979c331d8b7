package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Method not allowed"}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{
			name:    "not found",
			err:     fmt.Errorf("lookup: %w", apperr.NotFound("notion.get_task", errors.New("task t9 not found"))),
			status:  http.StatusNotFound,
			message: "task t9 not found",
		},
		{
			name:    "validation",
			err:     apperr.Validation("coach.chat", errors.New("chat needs at least one message")),
			status:  http.StatusBadRequest,
			message: "chat needs at least one message",
		},
		{
			name:    "transport",
			err:     apperr.Transport("llm.complete", errors.New("timeout")),
			status:  http.StatusInternalServerError,
			message: "Failed to chat",
		},
		{
			name:    "plain",
			err:     errors.New("boom"),
			status:  http.StatusInternalServerError,
			message: "Failed to chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			WriteError(w, "Failed to chat", tt.err)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.message, gjson.Get(w.Body.String(), "error").String())
			assert.Equal(t, tt.err.Error(), gjson.Get(w.Body.String(), "detail").String())
		})
	}
}
