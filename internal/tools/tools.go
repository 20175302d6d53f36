package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"basecamp-mcp/internal/auth"
	"basecamp-mcp/internal/basecamp"
	"basecamp-mcp/pkg/logging"
)

// Toolset owns the Basecamp tools and the token strategy behind them.
type Toolset struct {
	accountID  string
	strategy   auth.TokenStrategy
	clientOpts []basecamp.ClientOption
}

// NewToolset creates the toolset for one Basecamp account. The client
// options are applied to every per-call client.
func NewToolset(accountID string, strategy auth.TokenStrategy, clientOpts ...basecamp.ClientOption) *Toolset {
	return &Toolset{
		accountID:  accountID,
		strategy:   strategy,
		clientOpts: clientOpts,
	}
}

// Register adds all Basecamp tools to the MCP server.
func (t *Toolset) Register(srv *server.MCPServer) {
	srv.AddTool(mcp.NewTool("basecamp_list_projects",
		mcp.WithDescription("List all active Basecamp projects visible to the authenticated user"),
	), t.handleListProjects)

	srv.AddTool(mcp.NewTool("basecamp_get_project",
		mcp.WithDescription("Get a Basecamp project with its enabled tools"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
	), t.handleGetProject)

	srv.AddTool(mcp.NewTool("basecamp_list_todolists",
		mcp.WithDescription("List the todo lists of a project"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
	), t.handleListTodoLists)

	srv.AddTool(mcp.NewTool("basecamp_list_todos",
		mcp.WithDescription("List the todos of a todo list"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
		mcp.WithNumber("todolist_id",
			mcp.Required(),
			mcp.Description("ID of the todo list"),
		),
		mcp.WithBoolean("include_completed",
			mcp.Description("Include completed todos (default false)"),
		),
	), t.handleListTodos)

	srv.AddTool(mcp.NewTool("basecamp_create_todo",
		mcp.WithDescription("Create a todo in a todo list"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
		mcp.WithNumber("todolist_id",
			mcp.Required(),
			mcp.Description("ID of the todo list"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("The todo text"),
		),
		mcp.WithString("description",
			mcp.Description("Optional longer description (may contain HTML)"),
		),
		mcp.WithString("due_on",
			mcp.Description("Optional due date, YYYY-MM-DD"),
		),
	), t.handleCreateTodo)

	srv.AddTool(mcp.NewTool("basecamp_complete_todo",
		mcp.WithDescription("Mark a todo as completed"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
		mcp.WithNumber("todo_id",
			mcp.Required(),
			mcp.Description("ID of the todo"),
		),
	), t.handleCompleteTodo)

	srv.AddTool(mcp.NewTool("basecamp_list_people",
		mcp.WithDescription("List everyone on the Basecamp account"),
	), t.handleListPeople)

	srv.AddTool(mcp.NewTool("basecamp_get_person",
		mcp.WithDescription("Get one Basecamp account member"),
		mcp.WithNumber("person_id",
			mcp.Required(),
			mcp.Description("ID of the person"),
		),
	), t.handleGetPerson)

	srv.AddTool(mcp.NewTool("basecamp_list_messages",
		mcp.WithDescription("List the posts on a project's message board"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
	), t.handleListMessages)

	srv.AddTool(mcp.NewTool("basecamp_get_card_table",
		mcp.WithDescription("Get a project's card table with its columns"),
		mcp.WithNumber("project_id",
			mcp.Required(),
			mcp.Description("ID of the project"),
		),
	), t.handleGetCardTable)

	srv.AddTool(mcp.NewTool("basecamp_list_recordings",
		mcp.WithDescription("List recent records of one type across all projects"),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Record type: Todo, Message, Document, Comment, Upload or Schedule::Entry"),
		),
	), t.handleListRecordings)

	logging.Info("Tools", "Registered Basecamp tools for account %s", t.accountID)
}

// client builds an API client around the caller's upstream token.
func (t *Toolset) client(ctx context.Context) (*basecamp.Client, error) {
	token, err := t.strategy.UpstreamToken(ctx)
	if err != nil {
		return nil, err
	}
	return basecamp.NewClientWithToken(t.accountID, token, t.clientOpts...), nil
}

// jsonResult renders a value as an indented JSON tool result.
func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}
