package app

import (
	"context"
	"fmt"
	"time"

	"taskboard/api/internal/rbac"
	"taskboard/api/internal/store"
)

// Dashboard computes the aggregate snapshot per call; there is no cache.
// Admin and manager see global numbers, a developer sees numbers over
// their member projects. An optional date range bounds the activity list.
func (s *Service) Dashboard(ctx context.Context, session Session, start, end *time.Time) (store.DashboardStats, error) {
	if err := validateDateRange(start, end); err != nil {
		return store.DashboardStats{}, err
	}

	memberID := ""
	if !rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) {
		memberID = session.UserID
	}

	stats, err := s.db.LoadDashboardStats(ctx, memberID)
	if err != nil {
		return store.DashboardStats{}, fmt.Errorf("load dashboard stats: %w", err)
	}
	if !rbac.In(rbac.Role(session.Role), rbac.RoleAdmin) {
		stats.TotalUsers = 0
	}

	if start != nil || end != nil {
		activities, _, err := s.db.ListActivities(ctx, store.ActivityFilter{
			MemberID:  memberID,
			StartDate: start,
			EndDate:   end,
			Limit:     10,
		})
		if err != nil {
			return store.DashboardStats{}, fmt.Errorf("load recent activity: %w", err)
		}
		stats.RecentActivity = activities
	}
	return stats, nil
}

type ActivityListInput struct {
	ProjectID string
	ActorID   string
	StartDate *time.Time
	EndDate   *time.Time
	Page      Page
}

// ListActivities is read-only; developers are scoped to their projects.
func (s *Service) ListActivities(ctx context.Context, session Session, input ActivityListInput) (map[string]any, error) {
	if err := validateDateRange(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	if input.ProjectID != "" {
		if _, err := s.db.GetProject(ctx, input.ProjectID); err != nil {
			return nil, fmt.Errorf("load project %s: %w", input.ProjectID, err)
		}
		visible, err := s.canSeeProject(ctx, session, input.ProjectID)
		if err != nil {
			return nil, err
		}
		if !visible {
			return nil, ErrAuthorization("not a member of this project")
		}
	}

	filter := store.ActivityFilter{
		ProjectID: input.ProjectID,
		ActorID:   input.ActorID,
		StartDate: input.StartDate,
		EndDate:   input.EndDate,
		Limit:     input.Page.Limit,
		Offset:    input.Page.Offset,
	}
	if input.ProjectID == "" && !rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) {
		filter.MemberID = session.UserID
	}

	activities, total, err := s.db.ListActivities(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	return pagedPayload("activities", activities, total, input.Page), nil
}
