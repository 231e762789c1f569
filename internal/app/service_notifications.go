package app

import (
	"context"
	"fmt"
)

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool, page Page) (map[string]any, error) {
	items, total, err := s.db.ListNotifications(ctx, session.UserID, unreadOnly, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return pagedPayload("notifications", items, total, page), nil
}

func (s *Service) UnreadNotificationCount(ctx context.Context, session Session) (int, error) {
	count, err := s.db.CountUnreadNotifications(ctx, session.UserID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead only touches rows owned by the caller; the store
// query is recipient-scoped, so a foreign id reads as not found.
func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID string) error {
	if err := s.db.MarkNotificationRead(ctx, notificationID, session.UserID); err != nil {
		return fmt.Errorf("mark notification %s read: %w", notificationID, err)
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) error {
	if err := s.db.MarkAllNotificationsRead(ctx, session.UserID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

func (s *Service) DeleteNotification(ctx context.Context, session Session, notificationID string) error {
	if err := s.db.DeleteNotification(ctx, notificationID, session.UserID); err != nil {
		return fmt.Errorf("delete notification %s: %w", notificationID, err)
	}
	return nil
}
