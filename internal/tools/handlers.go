package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"basecamp-mcp/internal/basecamp"
)

func (t *Toolset) handleListProjects(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	projects, err := client.Projects(ctx)
	if err != nil {
		return apiError("list projects", err), nil
	}
	return jsonResult(projects)
}

func (t *Toolset) handleGetProject(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	project, err := client.Project(ctx, int64(projectID))
	if err != nil {
		return apiError("get project", err), nil
	}
	return jsonResult(project)
}

func (t *Toolset) handleListTodoLists(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	lists, err := client.TodoLists(ctx, int64(projectID))
	if err != nil {
		return apiError("list todo lists", err), nil
	}
	return jsonResult(lists)
}

func (t *Toolset) handleListTodos(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}
	todolistID, err := request.RequireInt("todolist_id")
	if err != nil {
		return mcp.NewToolResultError("todolist_id argument is required"), nil
	}
	includeCompleted := request.GetBool("include_completed", false)

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	todos, err := client.Todos(ctx, int64(projectID), int64(todolistID), includeCompleted)
	if err != nil {
		return apiError("list todos", err), nil
	}
	return jsonResult(todos)
}

func (t *Toolset) handleCreateTodo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}
	todolistID, err := request.RequireInt("todolist_id")
	if err != nil {
		return mcp.NewToolResultError("todolist_id argument is required"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	todo, err := client.CreateTodo(ctx, int64(projectID), int64(todolistID), basecamp.TodoCreate{
		Content:     content,
		Description: request.GetString("description", ""),
		DueOn:       request.GetString("due_on", ""),
	})
	if err != nil {
		return apiError("create todo", err), nil
	}
	return jsonResult(todo)
}

func (t *Toolset) handleCompleteTodo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}
	todoID, err := request.RequireInt("todo_id")
	if err != nil {
		return mcp.NewToolResultError("todo_id argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	if err := client.CompleteTodo(ctx, int64(projectID), int64(todoID)); err != nil {
		return apiError("complete todo", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Todo %d completed", todoID)), nil
}

func (t *Toolset) handleListPeople(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	people, err := client.People(ctx)
	if err != nil {
		return apiError("list people", err), nil
	}
	return jsonResult(people)
}

func (t *Toolset) handleGetPerson(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	personID, err := request.RequireInt("person_id")
	if err != nil {
		return mcp.NewToolResultError("person_id argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	person, err := client.Person(ctx, int64(personID))
	if err != nil {
		return apiError("get person", err), nil
	}
	return jsonResult(person)
}

func (t *Toolset) handleListMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	messages, err := client.Messages(ctx, int64(projectID))
	if err != nil {
		return apiError("list messages", err), nil
	}
	return jsonResult(messages)
}

func (t *Toolset) handleGetCardTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, err := request.RequireInt("project_id")
	if err != nil {
		return mcp.NewToolResultError("project_id argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	table, err := client.CardTable(ctx, int64(projectID))
	if err != nil {
		return apiError("get card table", err), nil
	}
	return jsonResult(table)
}

func (t *Toolset) handleListRecordings(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordingType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type argument is required"), nil
	}

	client, err := t.client(ctx)
	if err != nil {
		return authError(err), nil
	}

	recordings, err := client.Recordings(ctx, recordingType)
	if err != nil {
		return apiError("list recordings", err), nil
	}
	return jsonResult(recordings)
}

func authError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("Authentication required: %v", err))
}

// apiError turns client errors into tool errors, keeping rate limits
// distinguishable so callers know to back off.
func apiError(operation string, err error) *mcp.CallToolResult {
	var rateErr *basecamp.RateLimitedError
	if errors.As(err, &rateErr) {
		return mcp.NewToolResultError(fmt.Sprintf("Basecamp rate limit hit, retry after %s", rateErr.RetryAfter))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", operation, err))
}
