package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertAttachment(ctx context.Context, item Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, task_id, file_name, content_type, size_bytes, object_key, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.TaskID, item.FileName, item.ContentType, item.SizeBytes, item.ObjectKey, item.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var item Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, task_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM attachments
		WHERE id=$1
	`, attachmentID).Scan(&item.ID, &item.TaskID, &item.FileName, &item.ContentType,
		&item.SizeBytes, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt)
	if err != nil {
		return Attachment{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListTaskAttachments(ctx context.Context, taskID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at
		FROM attachments
		WHERE task_id=$1
		ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var item Attachment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.FileName, &item.ContentType,
			&item.SizeBytes, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, attachmentID); err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return nil
}
