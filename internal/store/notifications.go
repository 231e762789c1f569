package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateNotification(ctx context.Context, item Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, item.ID, item.UserID, item.Type, item.Title, item.Message)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, int, error) {
	where := "user_id=$1"
	if unreadOnly {
		where += " AND read=FALSE"
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE `+where, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id, type, title, message, read, created_at
		FROM notifications
		WHERE %s
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d
	`, where, limit, offset), userID)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Title, &item.Message, &item.Read, &item.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM notifications WHERE user_id=$1 AND read=FALSE`, userID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return total, nil
}

// MarkNotificationRead scopes by recipient so one user can never flip
// another user's notifications; a foreign id reads as absent.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE`, userID); err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNotification(ctx context.Context, notificationID, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE id=$1 AND user_id=$2`, notificationID, userID); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}
