package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateComment(ctx context.Context, item Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, author_id, content)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.TaskID, item.AuthorID, item.Content)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var item Comment
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.task_id, c.author_id, c.content, c.created_at, c.updated_at, COALESCE(u.name, '')
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.id=$1
	`, commentID).Scan(&item.ID, &item.TaskID, &item.AuthorID, &item.Content, &item.CreatedAt, &item.UpdatedAt, &item.AuthorName)
	if err != nil {
		return Comment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTaskComments(ctx context.Context, taskID string, limit, offset int) ([]Comment, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM comments WHERE task_id=$1`, taskID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count comments: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.task_id, c.author_id, c.content, c.created_at, c.updated_at, COALESCE(u.name, '')
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.task_id=$1
		ORDER BY c.created_at DESC
		LIMIT %d OFFSET %d
	`, limit, offset), taskID)
	if err != nil {
		return nil, 0, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.AuthorID, &item.Content, &item.CreatedAt, &item.UpdatedAt, &item.AuthorName); err != nil {
			return nil, 0, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate comments: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) UpdateComment(ctx context.Context, commentID, content string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE comments SET content=$2, updated_at=NOW() WHERE id=$1`, commentID, content)
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteComment(ctx context.Context, commentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}
