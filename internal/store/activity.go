package store

import (
	"context"
	"fmt"
	"time"
)

// InsertActivity appends one audit row. There is deliberately no update or
// delete counterpart in this package.
func (s *PostgresStore) InsertActivity(ctx context.Context, item Activity, projectID string) error {
	var project any
	if projectID != "" {
		project = projectID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, actor_id, action, entity_type, entity_id, detail, project_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.ActorID, item.Action, item.EntityType, item.EntityID, item.Detail, project)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

type ActivityFilter struct {
	ProjectID string
	ActorID   string
	MemberID  string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

func (s *PostgresStore) ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, int, error) {
	where := "TRUE"
	args := []any{}
	argN := 1

	if filter.ProjectID != "" {
		where += fmt.Sprintf(" AND a.project_id = $%d", argN)
		args = append(args, filter.ProjectID)
		argN++
	}
	if filter.ActorID != "" {
		where += fmt.Sprintf(" AND a.actor_id = $%d", argN)
		args = append(args, filter.ActorID)
		argN++
	}
	if filter.MemberID != "" {
		where += fmt.Sprintf(" AND a.project_id IN (SELECT project_id FROM project_members pm WHERE pm.user_id = $%d)", argN)
		args = append(args, filter.MemberID)
		argN++
	}
	if filter.StartDate != nil {
		where += fmt.Sprintf(" AND a.created_at >= $%d", argN)
		args = append(args, *filter.StartDate)
		argN++
	}
	if filter.EndDate != nil {
		where += fmt.Sprintf(" AND a.created_at <= $%d", argN)
		args = append(args, *filter.EndDate)
		argN++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM activities a WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activities: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT a.id, a.actor_id, a.action, a.entity_type, a.entity_id, a.detail, a.created_at, COALESCE(u.name, '')
		FROM activities a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE %s
		ORDER BY a.created_at DESC
		LIMIT %d OFFSET %d
	`, where, filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var item Activity
		if err := rows.Scan(&item.ID, &item.ActorID, &item.Action, &item.EntityType, &item.EntityID, &item.Detail, &item.CreatedAt, &item.ActorName); err != nil {
			return nil, 0, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activities: %w", err)
	}
	return items, total, nil
}
