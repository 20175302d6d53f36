package basecamp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"basecamp-mcp/pkg/logging"
)

const (
	// DefaultBaseURL is the Basecamp 3 API origin. Account-scoped paths hang
	// off /{accountID}/.
	DefaultBaseURL = "https://3.basecampapi.com"

	// defaultUserAgent identifies this integration. Basecamp rejects
	// requests without a User-Agent carrying contact information.
	defaultUserAgent = "basecamp-mcp (https://github.com/basecamp-mcp/basecamp-mcp)"

	defaultTimeout = 30 * time.Second

	// maxErrorBodySnippet bounds how much of an API error body is carried
	// into error messages.
	maxErrorBodySnippet = 500

	// maxPages caps transparent pagination so a huge account cannot make a
	// single tool call fetch forever.
	maxPages = 10
)

// APIError is a non-2xx response from the Basecamp API.
type APIError struct {
	StatusCode int
	Snippet    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("basecamp API error (status %d): %s", e.StatusCode, e.Snippet)
}

// RateLimitedError reports a 429 response with the server's requested
// backoff interval.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("basecamp API rate limited, retry after %s", e.RetryAfter)
}

// Client talks to the Basecamp 3 API for one account.
type Client struct {
	httpClient *http.Client
	baseURL    string
	accountID  string
	userAgent  string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API origin.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client, replacing the
// token-injecting default.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// NewClient creates a client for the account using the given token source.
// The token source is typically oauth2.StaticTokenSource over a resolved
// access token; in server mode a fresh client is built per request around
// the verified upstream token.
func NewClient(accountID string, source oauth2.TokenSource, opts ...ClientOption) *Client {
	httpClient := oauth2.NewClient(context.Background(), source)
	httpClient.Timeout = defaultTimeout

	c := &Client{
		httpClient: httpClient,
		baseURL:    DefaultBaseURL,
		accountID:  accountID,
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientWithToken is a convenience for the common static-token case.
func NewClientWithToken(accountID, accessToken string, opts ...ClientOption) *Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return NewClient(accountID, source, opts...)
}

// accountURL builds an account-scoped API URL.
func (c *Client) accountURL(path string) string {
	return fmt.Sprintf("%s/%s%s", c.baseURL, c.accountID, path)
}

// do performs one request and decodes a 2xx JSON body into out (which may
// be nil for endpoints answering 204).
func (c *Client) do(ctx context.Context, method, url string, body, out interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("basecamp API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		logging.Warn("Basecamp", "Rate limited by API, retry after %s", retryAfter)
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySnippet))
		return nil, &APIError{StatusCode: resp.StatusCode, Snippet: string(snippet)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode API response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}

	return resp, nil
}

// getPaginated fetches url and every Link rel="next" page after it, calling
// collect with each decoded page.
func (c *Client) getPaginated(ctx context.Context, url string, collect func(body io.Reader) error) error {
	for page := 0; url != "" && page < maxPages; page++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("basecamp API request failed: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			return &RateLimitedError{RetryAfter: retryAfter}
		}
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySnippet))
			resp.Body.Close()
			return &APIError{StatusCode: resp.StatusCode, Snippet: string(snippet)}
		}

		err = collect(resp.Body)
		next := parseNextLink(resp.Header.Get("Link"))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode API response: %w", err)
		}
		url = next
	}
	return nil
}

// parseNextLink extracts the rel="next" URL from a Link header, or returns
// an empty string when there is no next page.
func parseNextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		url := strings.TrimSpace(section[0])
		url = strings.TrimPrefix(url, "<")
		url = strings.TrimSuffix(url, ">")
		return url
	}
	return ""
}

func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

// Projects lists all active projects visible to the token.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var projects []Project
	err := c.getPaginated(ctx, c.accountURL("/projects.json"), func(body io.Reader) error {
		var page []Project
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		projects = append(projects, page...)
		return nil
	})
	return projects, err
}

// Project fetches a single project with its dock.
func (c *Client) Project(ctx context.Context, projectID int64) (*Project, error) {
	var project Project
	url := c.accountURL(fmt.Sprintf("/projects/%d.json", projectID))
	if _, err := c.do(ctx, http.MethodGet, url, nil, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// TodoLists lists the todo lists of a project's todoset.
func (c *Client) TodoLists(ctx context.Context, projectID int64) ([]TodoList, error) {
	todosetID, err := c.dockToolID(ctx, projectID, "todoset")
	if err != nil {
		return nil, err
	}

	var lists []TodoList
	url := c.accountURL(fmt.Sprintf("/buckets/%d/todosets/%d/todolists.json", projectID, todosetID))
	err = c.getPaginated(ctx, url, func(body io.Reader) error {
		var page []TodoList
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		lists = append(lists, page...)
		return nil
	})
	return lists, err
}

// Todos lists the todos of a todo list. Completed items are excluded unless
// includeCompleted is set.
func (c *Client) Todos(ctx context.Context, projectID, todolistID int64, includeCompleted bool) ([]Todo, error) {
	url := c.accountURL(fmt.Sprintf("/buckets/%d/todolists/%d/todos.json", projectID, todolistID))
	if includeCompleted {
		url += "?completed=true"
	}

	var todos []Todo
	err := c.getPaginated(ctx, url, func(body io.Reader) error {
		var page []Todo
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		todos = append(todos, page...)
		return nil
	})
	return todos, err
}

// CreateTodo adds a todo to a todo list.
func (c *Client) CreateTodo(ctx context.Context, projectID, todolistID int64, create TodoCreate) (*Todo, error) {
	var todo Todo
	url := c.accountURL(fmt.Sprintf("/buckets/%d/todolists/%d/todos.json", projectID, todolistID))
	if _, err := c.do(ctx, http.MethodPost, url, create, &todo); err != nil {
		return nil, err
	}
	return &todo, nil
}

// CompleteTodo marks a todo as done. Completion answers 204.
func (c *Client) CompleteTodo(ctx context.Context, projectID, todoID int64) error {
	url := c.accountURL(fmt.Sprintf("/buckets/%d/todos/%d/completion.json", projectID, todoID))
	_, err := c.do(ctx, http.MethodPost, url, nil, nil)
	return err
}

// People lists everyone on the account.
func (c *Client) People(ctx context.Context) ([]Person, error) {
	var people []Person
	err := c.getPaginated(ctx, c.accountURL("/people.json"), func(body io.Reader) error {
		var page []Person
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		people = append(people, page...)
		return nil
	})
	return people, err
}

// Person fetches one account member.
func (c *Client) Person(ctx context.Context, personID int64) (*Person, error) {
	var person Person
	url := c.accountURL(fmt.Sprintf("/people/%d.json", personID))
	if _, err := c.do(ctx, http.MethodGet, url, nil, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

// Messages lists the posts on a project's message board.
func (c *Client) Messages(ctx context.Context, projectID int64) ([]Message, error) {
	boardID, err := c.dockToolID(ctx, projectID, "message_board")
	if err != nil {
		return nil, err
	}

	var messages []Message
	url := c.accountURL(fmt.Sprintf("/buckets/%d/message_boards/%d/messages.json", projectID, boardID))
	err = c.getPaginated(ctx, url, func(body io.Reader) error {
		var page []Message
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		messages = append(messages, page...)
		return nil
	})
	return messages, err
}

// CardTable fetches a project's card table with its columns.
func (c *Client) CardTable(ctx context.Context, projectID int64) (*CardTable, error) {
	tableID, err := c.dockToolID(ctx, projectID, "kanban_board")
	if err != nil {
		return nil, err
	}

	var table CardTable
	url := c.accountURL(fmt.Sprintf("/buckets/%d/card_tables/%d.json", projectID, tableID))
	if _, err := c.do(ctx, http.MethodGet, url, nil, &table); err != nil {
		return nil, err
	}
	return &table, nil
}

// Recordings lists records of one type (Todo, Message, Document, ...)
// across all projects, newest first.
func (c *Client) Recordings(ctx context.Context, recordingType string) ([]Recording, error) {
	var recordings []Recording
	url := c.accountURL("/projects/recordings.json?type=" + recordingType)
	err := c.getPaginated(ctx, url, func(body io.Reader) error {
		var page []Recording
		if err := json.NewDecoder(body).Decode(&page); err != nil {
			return err
		}
		recordings = append(recordings, page...)
		return nil
	})
	return recordings, err
}

// dockToolID resolves the ID of a project's dock tool by name.
func (c *Client) dockToolID(ctx context.Context, projectID int64, name string) (int64, error) {
	project, err := c.Project(ctx, projectID)
	if err != nil {
		return 0, err
	}
	id, ok := project.DockItemID(name)
	if !ok {
		return 0, fmt.Errorf("project %d has no enabled %s", projectID, name)
	}
	return id, nil
}
