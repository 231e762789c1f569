package store

import (
	"context"
	"fmt"
)

const projectColumns = `
	p.id, p.name, p.description, p.status, p.priority, p.start_date, p.end_date,
	p.owner_id, p.created_at, p.updated_at,
	COALESCE(u.name, ''),
	(SELECT count(*) FROM tasks t WHERE t.project_id = p.id)
`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	err := row.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &item.Priority,
		&item.StartDate, &item.EndDate, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt,
		&item.OwnerName, &item.TaskCount)
	return item, err
}

// CreateProject inserts the project and its owner membership atomically.
func (s *PostgresStore) CreateProject(ctx context.Context, item Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, status, priority, start_date, end_date, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, item.ID, item.Name, item.Description, item.Status, item.Priority, item.StartDate, item.EndDate, item.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert project: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, 'manager')
	`, item.ID, item.OwnerID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert owner membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	return scanProject(s.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects p
		LEFT JOIN users u ON u.id = p.owner_id
		WHERE p.id=$1
	`, projectID))
}

type ProjectFilter struct {
	Status    string
	Priority  string
	OwnerID   string
	MemberID  string
	Search    string
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]Project, int, error) {
	where := "TRUE"
	args := []any{}
	argN := 1

	if filter.Status != "" {
		where += fmt.Sprintf(" AND p.status = $%d", argN)
		args = append(args, filter.Status)
		argN++
	}
	if filter.Priority != "" {
		where += fmt.Sprintf(" AND p.priority = $%d", argN)
		args = append(args, filter.Priority)
		argN++
	}
	if filter.OwnerID != "" {
		where += fmt.Sprintf(" AND p.owner_id = $%d", argN)
		args = append(args, filter.OwnerID)
		argN++
	}
	if filter.MemberID != "" {
		where += fmt.Sprintf(" AND EXISTS(SELECT 1 FROM project_members pm WHERE pm.project_id = p.id AND pm.user_id = $%d)", argN)
		args = append(args, filter.MemberID)
		argN++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (p.name ILIKE $%d OR p.description ILIKE $%d)", argN, argN)
		args = append(args, "%"+filter.Search+"%")
		argN++
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM projects p WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count projects: %w", err)
	}

	sortBy, sortOrder := sortClause(filter.SortBy, filter.SortOrder)
	query := fmt.Sprintf(`
		SELECT %s
		FROM projects p
		LEFT JOIN users u ON u.id = p.owner_id
		WHERE %s
		ORDER BY p.%s %s
		LIMIT %d OFFSET %d
	`, projectColumns, where, sortBy, sortOrder, filter.Limit, filter.Offset)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate projects: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, item Project) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET name=$2, description=$3, status=$4, priority=$5, start_date=$6, end_date=$7, owner_id=$8, updated_at=NOW()
		WHERE id=$1
	`, item.ID, item.Name, item.Description, item.Status, item.Priority, item.StartDate, item.EndDate, item.OwnerID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireRow(result)
}

// DeleteProject removes the project; tasks, memberships, comments and
// attachments cascade through foreign keys.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListProjectMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pm.project_id, pm.user_id, pm.role, pm.added_at, u.name, u.email
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id=$1
		ORDER BY pm.added_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list project members: %w", err)
	}
	defer rows.Close()

	items := make([]ProjectMember, 0)
	for rows.Next() {
		var item ProjectMember
		if err := rows.Scan(&item.ProjectID, &item.UserID, &item.Role, &item.AddedAt, &item.UserName, &item.UserEmail); err != nil {
			return nil, fmt.Errorf("scan project member: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, member ProjectMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, member.ProjectID, member.UserID, member.Role)
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProjectMemberRole(ctx context.Context, projectID, userID, role string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE project_members SET role=$3 WHERE project_id=$1 AND user_id=$2
	`, projectID, userID, role)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) RemoveProjectMember(ctx context.Context, projectID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM project_members WHERE project_id=$1 AND user_id=$2
	`, projectID, userID)
	if err != nil {
		return fmt.Errorf("remove project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM project_members WHERE project_id=$1 AND user_id=$2)`,
		projectID, userID).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return member, nil
}

// MemberProjectIDs lists the projects a user belongs to, for visibility
// scoping in search and the dashboard.
func (s *PostgresStore) MemberProjectIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id FROM project_members WHERE user_id=$1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list member projects: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate member projects: %w", err)
	}
	return ids, nil
}
