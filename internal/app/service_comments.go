package app

import (
	"context"
	"fmt"
	"strings"

	"taskboard/api/internal/rbac"
	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type CreateCommentInput struct {
	Content string `json:"content"`
}

// CreateComment requires an existing, visible task. The task creator and
// assignee are notified unless they wrote the comment themselves.
func (s *Service) CreateComment(ctx context.Context, session Session, taskID string, input CreateCommentInput) (store.Comment, error) {
	if strings.TrimSpace(input.Content) == "" {
		return store.Comment{}, ErrValidation("invalid comment", FieldError{Field: "content", Message: "is required"})
	}

	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return store.Comment{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	visible, err := s.canSeeProject(ctx, session, task.ProjectID)
	if err != nil {
		return store.Comment{}, err
	}
	if !visible {
		return store.Comment{}, ErrAuthorization("not a member of this project")
	}

	comment := store.Comment{
		ID:       util.NewID("cmt"),
		TaskID:   taskID,
		AuthorID: session.UserID,
		Content:  input.Content,
	}
	if err := s.db.CreateComment(ctx, comment); err != nil {
		return store.Comment{}, fmt.Errorf("create comment: %w", err)
	}

	s.recordActivity(ctx, session.UserID, "commented", "task", task.ID, task.Title, task.ProjectID)
	if s.search != nil {
		s.search.IndexComment(search.CommentRecord{
			ID:        comment.ID,
			Content:   comment.Content,
			TaskID:    taskID,
			ProjectID: task.ProjectID,
		})
	}

	recipients := map[string]struct{}{}
	if task.CreatedBy != "" && task.CreatedBy != session.UserID {
		recipients[task.CreatedBy] = struct{}{}
	}
	if task.AssigneeID != nil && *task.AssigneeID != "" && *task.AssigneeID != session.UserID {
		recipients[*task.AssigneeID] = struct{}{}
	}
	for userID := range recipients {
		s.notify(ctx, userID, "comment", "New comment",
			fmt.Sprintf("%s commented on %q", session.Name, task.Title))
	}
	return comment, nil
}

func (s *Service) ListTaskComments(ctx context.Context, session Session, taskID string, page Page) (map[string]any, error) {
	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	visible, err := s.canSeeProject(ctx, session, task.ProjectID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrAuthorization("not a member of this project")
	}

	comments, total, err := s.db.ListTaskComments(ctx, taskID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return pagedPayload("comments", comments, total, page), nil
}

// UpdateComment is author-or-role gated.
func (s *Service) UpdateComment(ctx context.Context, session Session, commentID, content string) (store.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return store.Comment{}, ErrValidation("invalid comment", FieldError{Field: "content", Message: "is required"})
	}

	comment, err := s.db.GetComment(ctx, commentID)
	if err != nil {
		return store.Comment{}, fmt.Errorf("load comment %s: %w", commentID, err)
	}
	if !rbac.CanMutate(session.UserID, rbac.Role(session.Role), comment.AuthorID) {
		return store.Comment{}, ErrAuthorization("not allowed to modify this comment")
	}

	if err := s.db.UpdateComment(ctx, commentID, content); err != nil {
		return store.Comment{}, fmt.Errorf("update comment %s: %w", commentID, err)
	}
	comment.Content = content

	if s.search != nil {
		task, err := s.db.GetTask(ctx, comment.TaskID)
		if err == nil {
			s.search.IndexComment(search.CommentRecord{
				ID:        comment.ID,
				Content:   content,
				TaskID:    comment.TaskID,
				ProjectID: task.ProjectID,
			})
		}
	}
	return comment, nil
}

func (s *Service) DeleteComment(ctx context.Context, session Session, commentID string) error {
	comment, err := s.db.GetComment(ctx, commentID)
	if err != nil {
		return fmt.Errorf("load comment %s: %w", commentID, err)
	}
	if !rbac.CanMutate(session.UserID, rbac.Role(session.Role), comment.AuthorID) {
		return ErrAuthorization("not allowed to delete this comment")
	}

	if err := s.db.DeleteComment(ctx, commentID); err != nil {
		return fmt.Errorf("delete comment %s: %w", commentID, err)
	}
	if s.search != nil {
		s.search.DeleteComment(commentID)
	}
	return nil
}
