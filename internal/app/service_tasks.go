package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskboard/api/internal/rbac"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

var taskStatuses = map[string]struct{}{
	store.TaskTodo:       {},
	store.TaskInProgress: {},
	store.TaskInReview:   {},
	store.TaskDone:       {},
}

var taskSortColumns = map[string]struct{}{
	"title":      {},
	"status":     {},
	"priority":   {},
	"due_date":   {},
	"created_at": {},
	"updated_at": {},
}

type CreateTaskInput struct {
	ProjectID      string     `json:"projectId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	AssigneeID     *string    `json:"assigneeId"`
	DueDate        *time.Time `json:"dueDate"`
	EstimatedHours float64    `json:"estimatedHours"`
}

func validateTaskFields(title, status, priority string, estimated, actual float64) []FieldError {
	var fields []FieldError
	if strings.TrimSpace(title) == "" {
		fields = append(fields, FieldError{Field: "title", Message: "is required"})
	}
	if _, ok := taskStatuses[status]; !ok {
		fields = append(fields, FieldError{Field: "status", Message: "is not a valid status"})
	}
	if _, ok := priorities[priority]; !ok {
		fields = append(fields, FieldError{Field: "priority", Message: "is not a valid priority"})
	}
	if estimated < 0 {
		fields = append(fields, FieldError{Field: "estimatedHours", Message: "must not be negative"})
	}
	if actual < 0 {
		fields = append(fields, FieldError{Field: "actualHours", Message: "must not be negative"})
	}
	return fields
}

// checkAssignee enforces that an assignee belongs to the task's project.
func (s *Service) checkAssignee(ctx context.Context, projectID string, assigneeID *string) error {
	if assigneeID == nil || *assigneeID == "" {
		return nil
	}
	member, err := s.db.IsProjectMember(ctx, projectID, *assigneeID)
	if err != nil {
		return fmt.Errorf("check assignee membership: %w", err)
	}
	if !member {
		return ErrValidation("invalid task", FieldError{Field: "assigneeId", Message: "is not a member of the project"})
	}
	return nil
}

// CreateTask requires an existing project; an unknown projectId is a
// client error, not a lookup failure.
func (s *Service) CreateTask(ctx context.Context, session Session, input CreateTaskInput) (store.Task, error) {
	if input.ProjectID == "" {
		return store.Task{}, ErrValidation("invalid task", FieldError{Field: "projectId", Message: "is required"})
	}
	project, err := s.db.GetProject(ctx, input.ProjectID)
	if err != nil {
		if isNoRows(err) {
			return store.Task{}, ErrValidation("invalid task", FieldError{Field: "projectId", Message: "is unknown"})
		}
		return store.Task{}, fmt.Errorf("load project %s: %w", input.ProjectID, err)
	}

	visible, err := s.canSeeProject(ctx, session, project.ID)
	if err != nil {
		return store.Task{}, err
	}
	if !visible {
		return store.Task{}, ErrAuthorization("not a member of this project")
	}

	if input.Status == "" {
		input.Status = store.TaskTodo
	}
	if input.Priority == "" {
		input.Priority = store.PriorityMedium
	}
	if fields := validateTaskFields(input.Title, input.Status, input.Priority, input.EstimatedHours, 0); len(fields) > 0 {
		return store.Task{}, ErrValidation("invalid task", fields...)
	}
	if err := s.checkAssignee(ctx, project.ID, input.AssigneeID); err != nil {
		return store.Task{}, err
	}

	task := store.Task{
		ID:             util.NewID("tsk"),
		ProjectID:      project.ID,
		Title:          strings.TrimSpace(input.Title),
		Description:    input.Description,
		Status:         input.Status,
		Priority:       input.Priority,
		AssigneeID:     input.AssigneeID,
		DueDate:        input.DueDate,
		EstimatedHours: input.EstimatedHours,
		CreatedBy:      session.UserID,
	}
	if err := s.db.CreateTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("create task: %w", err)
	}

	s.recordActivity(ctx, session.UserID, "created", "task", task.ID, task.Title, task.ProjectID)
	if s.search != nil {
		s.search.IndexTask(taskRecord(task))
	}
	s.announceAssignment(ctx, session, task, project.Name)
	return task, nil
}

func taskRecord(t store.Task) search.TaskRecord {
	return search.TaskRecord{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		ProjectID:   t.ProjectID,
		Status:      t.Status,
	}
}

// announceAssignment tells the assignee about their new task, skipping
// self-assignment.
func (s *Service) announceAssignment(ctx context.Context, session Session, task store.Task, projectName string) {
	if task.AssigneeID == nil || *task.AssigneeID == "" {
		return
	}
	if s.hub != nil {
		s.hub.EmitToRoom(task.ProjectID, realtime.EventTaskAssigned, task)
	}
	if *task.AssigneeID == session.UserID {
		return
	}
	s.notify(ctx, *task.AssigneeID, "task_assigned", "Task assigned",
		fmt.Sprintf("You were assigned %q", task.Title))
	if s.mail != nil && s.mail.IsConfigured() {
		assignee, err := s.db.GetUser(ctx, *task.AssigneeID)
		if err != nil {
			s.log.WithField("task", task.ID).Warnf("load assignee: %v", err)
			return
		}
		taskURL := fmt.Sprintf("%s/tasks/%s", s.appBaseURL, task.ID)
		go func() {
			if err := s.mail.SendTaskAssignedEmail(assignee.Email, assignee.Name, task.Title, projectName, taskURL); err != nil {
				s.log.WithField("task", task.ID).Warnf("send assignment email: %v", err)
			}
		}()
	}
}

func (s *Service) GetTask(ctx context.Context, session Session, taskID string) (store.Task, error) {
	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	visible, err := s.canSeeProject(ctx, session, task.ProjectID)
	if err != nil {
		return store.Task{}, err
	}
	if !visible {
		return store.Task{}, ErrAuthorization("not a member of this project")
	}
	return task, nil
}

type TaskListInput struct {
	ProjectID  string
	Status     string
	Priority   string
	AssigneeID string
	DueBefore  *time.Time
	Search     string
	SortBy     string
	SortOrder  string
	Page       Page
}

func (s *Service) ListTasks(ctx context.Context, session Session, input TaskListInput) (map[string]any, error) {
	sortBy, sortOrder, err := validateSort(input.SortBy, input.SortOrder, taskSortColumns)
	if err != nil {
		return nil, err
	}
	if input.Status != "" {
		if _, ok := taskStatuses[input.Status]; !ok {
			return nil, ErrValidation("invalid filter", FieldError{Field: "status", Message: "is not a valid status"})
		}
	}
	if input.Priority != "" {
		if _, ok := priorities[input.Priority]; !ok {
			return nil, ErrValidation("invalid filter", FieldError{Field: "priority", Message: "is not a valid priority"})
		}
	}

	filter := store.TaskFilter{
		ProjectID:  input.ProjectID,
		Status:     input.Status,
		Priority:   input.Priority,
		AssigneeID: input.AssigneeID,
		DueBefore:  input.DueBefore,
		Search:     input.Search,
		SortBy:     sortBy,
		SortOrder:  sortOrder,
		Limit:      input.Page.Limit,
		Offset:     input.Page.Offset,
	}
	if !rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) {
		filter.MemberID = session.UserID
	}

	tasks, total, err := s.db.ListTasks(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return pagedPayload("tasks", tasks, total, input.Page), nil
}

type UpdateTaskInput struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	Priority       *string    `json:"priority"`
	AssigneeID     *string    `json:"assigneeId"`
	ClearAssignee  bool       `json:"clearAssignee"`
	DueDate        *time.Time `json:"dueDate"`
	ClearDueDate   bool       `json:"clearDueDate"`
	EstimatedHours *float64   `json:"estimatedHours"`
	ActualHours    *float64   `json:"actualHours"`
}

// UpdateTask applies a partial patch. Status and assignment changes fan
// out to the project room.
func (s *Service) UpdateTask(ctx context.Context, session Session, taskID string, input UpdateTaskInput) (store.Task, error) {
	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	visible, err := s.canSeeProject(ctx, session, task.ProjectID)
	if err != nil {
		return store.Task{}, err
	}
	if !visible {
		return store.Task{}, ErrAuthorization("not a member of this project")
	}

	previousStatus := task.Status
	previousAssignee := ""
	if task.AssigneeID != nil {
		previousAssignee = *task.AssigneeID
	}

	if input.Title != nil {
		task.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if input.Priority != nil {
		task.Priority = *input.Priority
	}
	if input.ClearAssignee {
		task.AssigneeID = nil
	}
	if input.AssigneeID != nil {
		task.AssigneeID = input.AssigneeID
	}
	if input.ClearDueDate {
		task.DueDate = nil
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.EstimatedHours != nil {
		task.EstimatedHours = *input.EstimatedHours
	}
	if input.ActualHours != nil {
		task.ActualHours = *input.ActualHours
	}

	if fields := validateTaskFields(task.Title, task.Status, task.Priority, task.EstimatedHours, task.ActualHours); len(fields) > 0 {
		return store.Task{}, ErrValidation("invalid task", fields...)
	}
	if err := s.checkAssignee(ctx, task.ProjectID, task.AssigneeID); err != nil {
		return store.Task{}, err
	}

	if err := s.db.UpdateTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("update task %s: %w", taskID, err)
	}

	s.recordActivity(ctx, session.UserID, "updated", "task", task.ID, task.Title, task.ProjectID)
	if s.search != nil {
		s.search.IndexTask(taskRecord(task))
	}

	if task.Status != previousStatus && s.hub != nil {
		s.hub.EmitToRoom(task.ProjectID, realtime.EventTaskStatusUpdated, task)
	}
	currentAssignee := ""
	if task.AssigneeID != nil {
		currentAssignee = *task.AssigneeID
	}
	if currentAssignee != "" && currentAssignee != previousAssignee {
		project, err := s.db.GetProject(ctx, task.ProjectID)
		projectName := ""
		if err == nil {
			projectName = project.Name
		}
		s.announceAssignment(ctx, session, task, projectName)
	}
	return task, nil
}

// UpdateTaskStatusForUser backs socket-originated status changes; it
// reuses the HTTP update path so validation stays in one place.
func (s *Service) UpdateTaskStatusForUser(ctx context.Context, userID, role, taskID, status string) (store.Task, error) {
	session := Session{UserID: userID, Role: role}
	return s.UpdateTask(ctx, session, taskID, UpdateTaskInput{Status: &status})
}

// DeleteTask allows admin, manager, the project owner or the creator.
func (s *Service) DeleteTask(ctx context.Context, session Session, taskID string) error {
	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", taskID, err)
	}

	allowed := rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) || task.CreatedBy == session.UserID
	if !allowed {
		project, err := s.db.GetProject(ctx, task.ProjectID)
		if err == nil && project.OwnerID == session.UserID {
			allowed = true
		}
	}
	if !allowed {
		return ErrAuthorization("not allowed to delete this task")
	}

	if err := s.db.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	s.recordActivity(ctx, session.UserID, "deleted", "task", task.ID, task.Title, task.ProjectID)
	if s.search != nil {
		s.search.DeleteTask(taskID)
	}
	return nil
}
