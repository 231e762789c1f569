package store

import (
	"context"
	"fmt"
)

// LoadDashboardStats recomputes the aggregate snapshot on every call.
// When memberID is non-empty, projects and tasks are restricted to that
// user's memberships and the user total is omitted.
func (s *PostgresStore) LoadDashboardStats(ctx context.Context, memberID string) (DashboardStats, error) {
	stats := DashboardStats{
		TasksByStatus:   map[string]int{},
		TasksByPriority: map[string]int{},
	}

	projectWhere := "TRUE"
	taskWhere := "TRUE"
	args := []any{}
	if memberID != "" {
		projectWhere = "p.id IN (SELECT project_id FROM project_members pm WHERE pm.user_id = $1)"
		taskWhere = "t.project_id IN (SELECT project_id FROM project_members pm WHERE pm.user_id = $1)"
		args = append(args, memberID)
	}

	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT count(*), count(*) FILTER (WHERE p.status = 'active')
		FROM projects p WHERE %s
	`, projectWhere), args...).Scan(&stats.TotalProjects, &stats.ActiveProjects)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("count dashboard projects: %w", err)
	}

	err = s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT count(*),
			count(*) FILTER (WHERE t.status = 'done'),
			count(*) FILTER (WHERE t.due_date IS NOT NULL AND t.due_date < NOW() AND t.status <> 'done'),
			COALESCE(sum(t.estimated_hours), 0),
			COALESCE(sum(t.actual_hours), 0)
		FROM tasks t WHERE %s
	`, taskWhere), args...).Scan(&stats.TotalTasks, &stats.CompletedTasks, &stats.OverdueTasks,
		&stats.EstimatedHours, &stats.ActualHours)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("count dashboard tasks: %w", err)
	}

	if memberID == "" {
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&stats.TotalUsers); err != nil {
			return DashboardStats{}, fmt.Errorf("count dashboard users: %w", err)
		}
	}

	statusRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT t.status, count(*) FROM tasks t WHERE %s GROUP BY t.status
	`, taskWhere), args...)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("group tasks by status: %w", err)
	}
	defer statusRows.Close()
	for statusRows.Next() {
		var status string
		var n int
		if err := statusRows.Scan(&status, &n); err != nil {
			return DashboardStats{}, fmt.Errorf("scan status group: %w", err)
		}
		stats.TasksByStatus[status] = n
	}
	if err := statusRows.Err(); err != nil {
		return DashboardStats{}, fmt.Errorf("iterate status groups: %w", err)
	}

	priorityRows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT t.priority, count(*) FROM tasks t WHERE %s GROUP BY t.priority
	`, taskWhere), args...)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("group tasks by priority: %w", err)
	}
	defer priorityRows.Close()
	for priorityRows.Next() {
		var priority string
		var n int
		if err := priorityRows.Scan(&priority, &n); err != nil {
			return DashboardStats{}, fmt.Errorf("scan priority group: %w", err)
		}
		stats.TasksByPriority[priority] = n
	}
	if err := priorityRows.Err(); err != nil {
		return DashboardStats{}, fmt.Errorf("iterate priority groups: %w", err)
	}

	recent, _, err := s.ListActivities(ctx, ActivityFilter{MemberID: memberID, Limit: 10})
	if err != nil {
		return DashboardStats{}, err
	}
	stats.RecentActivity = recent

	return stats, nil
}
