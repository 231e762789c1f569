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

var projectStatuses = map[string]struct{}{
	store.ProjectPlanning:  {},
	store.ProjectActive:    {},
	store.ProjectOnHold:    {},
	store.ProjectCompleted: {},
	store.ProjectCancelled: {},
}

var priorities = map[string]struct{}{
	store.PriorityLow:      {},
	store.PriorityMedium:   {},
	store.PriorityHigh:     {},
	store.PriorityCritical: {},
}

var projectSortColumns = map[string]struct{}{
	"name":       {},
	"status":     {},
	"priority":   {},
	"created_at": {},
	"updated_at": {},
}

type CreateProjectInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

func validateProjectFields(name, status, priority string, start, end *time.Time) []FieldError {
	var fields []FieldError
	if strings.TrimSpace(name) == "" {
		fields = append(fields, FieldError{Field: "name", Message: "is required"})
	}
	if _, ok := projectStatuses[status]; !ok {
		fields = append(fields, FieldError{Field: "status", Message: "is not a valid status"})
	}
	if _, ok := priorities[priority]; !ok {
		fields = append(fields, FieldError{Field: "priority", Message: "is not a valid priority"})
	}
	if start != nil && end != nil && start.After(*end) {
		fields = append(fields, FieldError{Field: "endDate", Message: "must not be before startDate"})
	}
	return fields
}

// CreateProject makes the caller the owner and the first member.
func (s *Service) CreateProject(ctx context.Context, session Session, input CreateProjectInput) (store.Project, error) {
	if input.Status == "" {
		input.Status = store.ProjectPlanning
	}
	if input.Priority == "" {
		input.Priority = store.PriorityMedium
	}
	if fields := validateProjectFields(input.Name, input.Status, input.Priority, input.StartDate, input.EndDate); len(fields) > 0 {
		return store.Project{}, ErrValidation("invalid project", fields...)
	}

	project := store.Project{
		ID:          util.NewID("prj"),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		OwnerID:     session.UserID,
	}
	if err := s.db.CreateProject(ctx, project); err != nil {
		return store.Project{}, fmt.Errorf("create project: %w", err)
	}

	s.recordActivity(ctx, session.UserID, "created", "project", project.ID, project.Name, project.ID)
	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	return project, nil
}

func projectRecord(p store.Project) search.ProjectRecord {
	return search.ProjectRecord{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Status:      p.Status,
		ProjectID:   p.ID,
	}
}

// canSeeProject reports whether the caller may read the project. The
// project is known to exist at this point, so a false answer is a 403.
func (s *Service) canSeeProject(ctx context.Context, session Session, projectID string) (bool, error) {
	if rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) {
		return true, nil
	}
	member, err := s.db.IsProjectMember(ctx, projectID, session.UserID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

func (s *Service) GetProject(ctx context.Context, session Session, projectID string) (store.Project, error) {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	visible, err := s.canSeeProject(ctx, session, projectID)
	if err != nil {
		return store.Project{}, err
	}
	if !visible {
		return store.Project{}, ErrAuthorization("not a member of this project")
	}
	return project, nil
}

type ProjectListInput struct {
	Status    string
	Priority  string
	Search    string
	SortBy    string
	SortOrder string
	Page      Page
}

// ListProjects scopes developers to their memberships.
func (s *Service) ListProjects(ctx context.Context, session Session, input ProjectListInput) (map[string]any, error) {
	sortBy, sortOrder, err := validateSort(input.SortBy, input.SortOrder, projectSortColumns)
	if err != nil {
		return nil, err
	}
	if input.Status != "" {
		if _, ok := projectStatuses[input.Status]; !ok {
			return nil, ErrValidation("invalid filter", FieldError{Field: "status", Message: "is not a valid status"})
		}
	}
	if input.Priority != "" {
		if _, ok := priorities[input.Priority]; !ok {
			return nil, ErrValidation("invalid filter", FieldError{Field: "priority", Message: "is not a valid priority"})
		}
	}

	filter := store.ProjectFilter{
		Status:    input.Status,
		Priority:  input.Priority,
		Search:    input.Search,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Limit:     input.Page.Limit,
		Offset:    input.Page.Offset,
	}
	if !rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) {
		filter.MemberID = session.UserID
	}

	projects, total, err := s.db.ListProjects(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return pagedPayload("projects", projects, total, input.Page), nil
}

type UpdateProjectInput struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Priority    *string    `json:"priority"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	ClearDates  bool       `json:"clearDates"`
}

// UpdateProject applies a partial patch, owner-or-role gated. Updates are
// last write wins; there is no revision check.
func (s *Service) UpdateProject(ctx context.Context, session Session, projectID string, input UpdateProjectInput) (store.Project, error) {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return store.Project{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	if !rbac.CanMutate(session.UserID, rbac.Role(session.Role), project.OwnerID) {
		return store.Project{}, ErrAuthorization("not allowed to modify this project")
	}

	if input.Name != nil {
		project.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		project.Description = *input.Description
	}
	if input.Status != nil {
		project.Status = *input.Status
	}
	if input.Priority != nil {
		project.Priority = *input.Priority
	}
	if input.ClearDates {
		project.StartDate = nil
		project.EndDate = nil
	}
	if input.StartDate != nil {
		project.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		project.EndDate = input.EndDate
	}

	if fields := validateProjectFields(project.Name, project.Status, project.Priority, project.StartDate, project.EndDate); len(fields) > 0 {
		return store.Project{}, ErrValidation("invalid project", fields...)
	}

	if err := s.db.UpdateProject(ctx, project); err != nil {
		return store.Project{}, fmt.Errorf("update project %s: %w", projectID, err)
	}

	s.recordActivity(ctx, session.UserID, "updated", "project", project.ID, project.Name, project.ID)
	if s.search != nil {
		s.search.IndexProject(projectRecord(project))
	}
	if s.hub != nil {
		s.hub.EmitToRoom(project.ID, realtime.EventProjectUpdated, project)
	}
	return project, nil
}

func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string) error {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	if !rbac.CanMutate(session.UserID, rbac.Role(session.Role), project.OwnerID) {
		return ErrAuthorization("not allowed to delete this project")
	}

	if err := s.db.DeleteProject(ctx, projectID); err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}
	s.recordActivity(ctx, session.UserID, "deleted", "project", project.ID, project.Name, "")
	if s.search != nil {
		s.search.DeleteProject(projectID)
	}
	return nil
}

// canManageMembers gates membership mutation: admin, manager, or owner.
func canManageMembers(session Session, ownerID string) bool {
	return rbac.CanMutate(session.UserID, rbac.Role(session.Role), ownerID)
}

func (s *Service) ListProjectMembers(ctx context.Context, session Session, projectID string) ([]store.ProjectMember, error) {
	if _, err := s.db.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("load project %s: %w", projectID, err)
	}
	visible, err := s.canSeeProject(ctx, session, projectID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrAuthorization("not a member of this project")
	}

	members, err := s.db.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

type AddMemberInput struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Service) AddProjectMember(ctx context.Context, session Session, projectID string, input AddMemberInput) (store.ProjectMember, error) {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return store.ProjectMember{}, fmt.Errorf("load project %s: %w", projectID, err)
	}
	if !canManageMembers(session, project.OwnerID) {
		return store.ProjectMember{}, ErrAuthorization("not allowed to manage members")
	}

	memberRole := rbac.NormalizeMember(input.Role)
	if memberRole == "" {
		return store.ProjectMember{}, ErrValidation("invalid member", FieldError{Field: "role", Message: "is not a valid member role"})
	}
	user, err := s.db.GetUser(ctx, input.UserID)
	if err != nil {
		return store.ProjectMember{}, ErrValidation("invalid member", FieldError{Field: "userId", Message: "is unknown"})
	}

	member := store.ProjectMember{
		ProjectID: projectID,
		UserID:    user.ID,
		Role:      string(memberRole),
	}
	if err := s.db.AddProjectMember(ctx, member); err != nil {
		return store.ProjectMember{}, fmt.Errorf("add member: %w", err)
	}

	s.recordActivity(ctx, session.UserID, "added_member", "project", projectID, user.Name, projectID)
	s.notify(ctx, user.ID, "member_added", "Added to project",
		fmt.Sprintf("You were added to project %q", project.Name))
	if s.mail != nil && s.mail.IsConfigured() {
		projectURL := fmt.Sprintf("%s/projects/%s", s.appBaseURL, projectID)
		go func() {
			if err := s.mail.SendMemberAddedEmail(user.Email, user.Name, project.Name, projectURL); err != nil {
				s.log.WithField("user", user.ID).Warnf("send member email: %v", err)
			}
		}()
	}
	return member, nil
}

func (s *Service) UpdateProjectMemberRole(ctx context.Context, session Session, projectID, userID, role string) error {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	if !canManageMembers(session, project.OwnerID) {
		return ErrAuthorization("not allowed to manage members")
	}
	memberRole := rbac.NormalizeMember(role)
	if memberRole == "" {
		return ErrValidation("invalid member", FieldError{Field: "role", Message: "is not a valid member role"})
	}
	if err := s.db.UpdateProjectMemberRole(ctx, projectID, userID, string(memberRole)); err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return nil
}

func (s *Service) RemoveProjectMember(ctx context.Context, session Session, projectID, userID string) error {
	project, err := s.db.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project %s: %w", projectID, err)
	}
	if !canManageMembers(session, project.OwnerID) {
		return ErrAuthorization("not allowed to manage members")
	}
	if userID == project.OwnerID {
		return ErrValidation("invalid member", FieldError{Field: "userId", Message: "owner cannot be removed"})
	}
	if err := s.db.RemoveProjectMember(ctx, projectID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.recordActivity(ctx, session.UserID, "removed_member", "project", projectID, userID, projectID)
	return nil
}
