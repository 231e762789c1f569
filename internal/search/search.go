package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProject ResultType = "project"
	ResultTask    ResultType = "task"
	ResultComment ResultType = "comment"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	ProjectID string     `json:"projectId"`
}

// Query describes a search request. ProjectIDs carries the caller's
// visibility scope: nil means unrestricted (admin/manager), an empty
// non-nil slice means the caller can see no projects at all.
type Query struct {
	Text       string
	FilterType ResultType // empty = all types
	ProjectIDs []string
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// ProjectRecord is the data we index for a project. ProjectID duplicates
// ID so the visibility filter works uniformly across all three indexes.
type ProjectRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Status      string `json:"status"`
	ProjectID   string `json:"projectId"`
}

// TaskRecord is the data we index for a task.
type TaskRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ProjectID   string `json:"projectId"`
	Status      string `json:"status"`
}

// CommentRecord is the data we index for a comment.
type CommentRecord struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	TaskID    string `json:"taskId"`
	ProjectID string `json:"projectId"`
}
