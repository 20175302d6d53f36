package basecamp

import "time"

// Project is a Basecamp project.
type Project struct {
	ID          int64      `json:"id"`
	Status      string     `json:"status"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Purpose     string     `json:"purpose"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Dock        []DockItem `json:"dock"`
}

// DockItem is a tool enabled on a project (todoset, message board, card
// table, and so on). The ID is what the per-tool endpoints key on.
type DockItem struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
}

// DockItemID returns the ID of the named dock tool, or false when the
// project does not have it enabled.
func (p *Project) DockItemID(name string) (int64, bool) {
	for _, item := range p.Dock {
		if item.Name == name && item.Enabled {
			return item.ID, true
		}
	}
	return 0, false
}

// TodoList is a list of todos inside a project's todoset.
type TodoList struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Completed      bool   `json:"completed"`
	CompletedRatio string `json:"completed_ratio"`
	AppURL         string `json:"app_url"`
}

// Todo is a single todo item.
type Todo struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	DueOn       string    `json:"due_on"`
	Assignees   []Person  `json:"assignees"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	AppURL      string    `json:"app_url"`
}

// TodoCreate is the payload for creating a todo.
type TodoCreate struct {
	Content     string  `json:"content"`
	Description string  `json:"description,omitempty"`
	DueOn       string  `json:"due_on,omitempty"`
	AssigneeIDs []int64 `json:"assignee_ids,omitempty"`
}

// Person is a Basecamp account member.
type Person struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address"`
	Title        string `json:"title"`
	Admin        bool   `json:"admin"`
	Owner        bool   `json:"owner"`
}

// Message is a message board post.
type Message struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Content   string    `json:"content"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Creator   Person    `json:"creator"`
	AppURL    string    `json:"app_url"`
}

// CardTable is a project's card table with its columns.
type CardTable struct {
	ID    int64      `json:"id"`
	Title string     `json:"title"`
	Lists []CardList `json:"lists"`
}

// CardList is one column of a card table.
type CardList struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	CardsCount   int    `json:"cards_count"`
	Color        string `json:"color"`
	Subscribable bool   `json:"subscribable"`
}

// Recording is a generic content record returned by the recordings
// endpoint, used for cross-project listing by type.
type Recording struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	Creator   Person    `json:"creator"`
	AppURL    string    `json:"app_url"`
	Bucket    struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"bucket"`
}
