package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basecamp-mcp/internal/basecamp"
)

// staticStrategy always yields the same upstream token.
type staticStrategy struct {
	token string
	err   error
}

func (s staticStrategy) UpstreamToken(ctx context.Context) (string, error) {
	return s.token, s.err
}

func newTestToolset(t *testing.T, handler http.Handler) *Toolset {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewToolset("999", staticStrategy{token: "test-token"}, basecamp.WithBaseURL(srv.URL))
}

func toolRequest(args map[string]interface{}) mcp.CallToolRequest {
	request := mcp.CallToolRequest{}
	request.Params.Arguments = args
	return request
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestHandleListProjects(t *testing.T) {
	toolset := newTestToolset(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]basecamp.Project{{ID: 1, Name: "Alpha"}})
	}))

	result, err := toolset.handleListProjects(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var projects []basecamp.Project
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, "Alpha", projects[0].Name)
}

func TestHandleGetProject_MissingArgument(t *testing.T) {
	toolset := newTestToolset(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API must not be called for invalid arguments")
	}))

	result, err := toolset.handleGetProject(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "project_id")
}

func TestHandleCreateTodo(t *testing.T) {
	toolset := newTestToolset(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/999/buckets/42/todolists/100/todos.json", r.URL.Path)
		var create basecamp.TodoCreate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&create))
		assert.Equal(t, "Write docs", create.Content)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(basecamp.Todo{ID: 5, Content: create.Content})
	}))

	result, err := toolset.handleCreateTodo(context.Background(), toolRequest(map[string]interface{}{
		"project_id":  float64(42),
		"todolist_id": float64(100),
		"content":     "Write docs",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Write docs")
}

func TestHandleCompleteTodo(t *testing.T) {
	toolset := newTestToolset(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))

	result, err := toolset.handleCompleteTodo(context.Background(), toolRequest(map[string]interface{}{
		"project_id": float64(42),
		"todo_id":    float64(5),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "completed")
}

func TestHandlers_AuthenticationFailure(t *testing.T) {
	toolset := NewToolset("999", staticStrategy{err: errors.New("request is not authenticated")})

	result, err := toolset.handleListProjects(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Authentication required")
}

func TestHandlers_RateLimitSurfaced(t *testing.T) {
	toolset := newTestToolset(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	result, err := toolset.handleListPeople(context.Background(), toolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "rate limit")
	assert.Contains(t, resultText(t, result), "12s")
}

func TestHandleListRecordings(t *testing.T) {
	toolset := newTestToolset(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Todo", r.URL.Query().Get("type"))
		json.NewEncoder(w).Encode([]basecamp.Recording{{ID: 9, Title: "Fix login", Type: "Todo"}})
	}))

	result, err := toolset.handleListRecordings(context.Background(), toolRequest(map[string]interface{}{
		"type": "Todo",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Fix login")
}
