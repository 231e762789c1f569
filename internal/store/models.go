package store

import "time"

// Project lifecycle and task workflow enumerations. Validation happens in
// the service layer; the store trusts its callers.
const (
	ProjectPlanning  = "planning"
	ProjectActive    = "active"
	ProjectOnHold    = "on_hold"
	ProjectCompleted = "completed"
	ProjectCancelled = "cancelled"

	TaskTodo       = "todo"
	TaskInProgress = "in_progress"
	TaskInReview   = "in_review"
	TaskDone       = "done"

	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	OwnerID     string     `json:"ownerId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	// Joined fields for API responses
	OwnerName string `json:"ownerName,omitempty"`
	TaskCount int    `json:"taskCount"`
}

type ProjectMember struct {
	ProjectID string    `json:"projectId"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	AddedAt   time.Time `json:"addedAt"`
	// Joined fields for API responses
	UserName  string `json:"userName,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
}

type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"projectId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssigneeID     *string    `json:"assigneeId"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours float64    `json:"estimatedHours"`
	ActualHours    float64    `json:"actualHours"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	// Joined fields for API responses
	AssigneeName string `json:"assigneeName,omitempty"`
	ProjectName  string `json:"projectName,omitempty"`
}

type Comment struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	AuthorID  string    `json:"authorId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// Joined field for API responses
	AuthorName string `json:"authorName,omitempty"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Activity rows are append-only; no update or delete path exists for them.
type Activity struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actorId"`
	Action     string    `json:"action"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	Detail     string    `json:"detail"`
	CreatedAt  time.Time `json:"createdAt"`
	// Joined field for API responses
	ActorName string `json:"actorName,omitempty"`
}

type Attachment struct {
	ID          string    `json:"id"`
	TaskID      string    `json:"taskId"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	ObjectKey   string    `json:"-"`
	UploadedBy  string    `json:"uploadedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type PasswordResetToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// DashboardStats is the aggregate snapshot computed per request.
type DashboardStats struct {
	TotalProjects   int            `json:"totalProjects"`
	ActiveProjects  int            `json:"activeProjects"`
	TotalTasks      int            `json:"totalTasks"`
	CompletedTasks  int            `json:"completedTasks"`
	OverdueTasks    int            `json:"overdueTasks"`
	TotalUsers      int            `json:"totalUsers,omitempty"`
	EstimatedHours  float64        `json:"estimatedHours"`
	ActualHours     float64        `json:"actualHours"`
	TasksByStatus   map[string]int `json:"tasksByStatus"`
	TasksByPriority map[string]int `json:"tasksByPriority"`
	RecentActivity  []Activity     `json:"recentActivity"`
}
