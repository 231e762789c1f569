package store

import (
	"context"
	"fmt"
	"time"
)

const taskColumns = `
	t.id, t.project_id, t.title, t.description, t.status, t.priority,
	t.assignee_id, t.due_date, t.estimated_hours, t.actual_hours,
	t.created_by, t.created_at, t.updated_at,
	COALESCE(a.name, ''), COALESCE(p.name, '')
`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var item Task
	err := row.Scan(&item.ID, &item.ProjectID, &item.Title, &item.Description, &item.Status,
		&item.Priority, &item.AssigneeID, &item.DueDate, &item.EstimatedHours, &item.ActualHours,
		&item.CreatedBy, &item.CreatedAt, &item.UpdatedAt, &item.AssigneeName, &item.ProjectName)
	return item, err
}

func (s *PostgresStore) CreateTask(ctx context.Context, item Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, assignee_id, due_date, estimated_hours, actual_hours, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, item.ID, item.ProjectID, item.Title, item.Description, item.Status, item.Priority,
		item.AssigneeID, item.DueDate, item.EstimatedHours, item.ActualHours, item.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, taskID string) (Task, error) {
	return scanTask(s.db.QueryRowContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks t
		LEFT JOIN users a ON a.id = t.assignee_id
		LEFT JOIN projects p ON p.id = t.project_id
		WHERE t.id=$1
	`, taskID))
}

type TaskFilter struct {
	ProjectID  string
	Status     string
	Priority   string
	AssigneeID string
	DueBefore  *time.Time
	MemberID   string
	Search     string
	SortBy     string
	SortOrder  string
	Limit      int
	Offset     int
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, int, error) {
	where := "TRUE"
	args := []any{}
	argN := 1

	if filter.ProjectID != "" {
		where += fmt.Sprintf(" AND t.project_id = $%d", argN)
		args = append(args, filter.ProjectID)
		argN++
	}
	if filter.Status != "" {
		where += fmt.Sprintf(" AND t.status = $%d", argN)
		args = append(args, filter.Status)
		argN++
	}
	if filter.Priority != "" {
		where += fmt.Sprintf(" AND t.priority = $%d", argN)
		args = append(args, filter.Priority)
		argN++
	}
	if filter.AssigneeID != "" {
		where += fmt.Sprintf(" AND t.assignee_id = $%d", argN)
		args = append(args, filter.AssigneeID)
		argN++
	}
	if filter.DueBefore != nil {
		where += fmt.Sprintf(" AND t.due_date IS NOT NULL AND t.due_date < $%d", argN)
		args = append(args, *filter.DueBefore)
		argN++
	}
	if filter.MemberID != "" {
		where += fmt.Sprintf(" AND EXISTS(SELECT 1 FROM project_members pm WHERE pm.project_id = t.project_id AND pm.user_id = $%d)", argN)
		args = append(args, filter.MemberID)
		argN++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (t.title ILIKE $%d OR t.description ILIKE $%d)", argN, argN)
		args = append(args, "%"+filter.Search+"%")
		argN++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM tasks t WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	sortBy, sortOrder := sortClause(filter.SortBy, filter.SortOrder)
	query := fmt.Sprintf(`
		SELECT %s
		FROM tasks t
		LEFT JOIN users a ON a.id = t.assignee_id
		LEFT JOIN projects p ON p.id = t.project_id
		WHERE %s
		ORDER BY t.%s %s
		LIMIT %d OFFSET %d
	`, taskColumns, where, sortBy, sortOrder, filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, item Task) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$2, description=$3, status=$4, priority=$5, assignee_id=$6, due_date=$7,
			estimated_hours=$8, actual_hours=$9, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Title, item.Description, item.Status, item.Priority, item.AssigneeID,
		item.DueDate, item.EstimatedHours, item.ActualHours)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1`, taskID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}
