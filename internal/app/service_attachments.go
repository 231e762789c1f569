package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"taskboard/api/internal/files"
	"taskboard/api/internal/rbac"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type UploadAttachmentInput struct {
	FileName    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// UploadAttachment streams one file into object storage and records its
// metadata row. Object storage being unconfigured degrades to 503.
func (s *Service) UploadAttachment(ctx context.Context, session Session, taskID string, input UploadAttachmentInput) (store.Attachment, error) {
	if s.files == nil {
		return store.Attachment{}, ErrUnavailable("attachments unavailable")
	}
	if input.FileName == "" {
		return store.Attachment{}, ErrValidation("invalid attachment", FieldError{Field: "file", Message: "is required"})
	}
	if input.Size > files.MaxAttachmentSize {
		return store.Attachment{}, domainError(413, "PAYLOAD_TOO_LARGE", "attachment exceeds 10 MiB", nil)
	}

	task, err := s.db.GetTask(ctx, taskID)
	if err != nil {
		return store.Attachment{}, fmt.Errorf("load task %s: %w", taskID, err)
	}
	visible, err := s.canSeeProject(ctx, session, task.ProjectID)
	if err != nil {
		return store.Attachment{}, err
	}
	if !visible {
		return store.Attachment{}, ErrAuthorization("not a member of this project")
	}

	attachment := store.Attachment{
		ID:          util.NewID("att"),
		TaskID:      taskID,
		FileName:    filepath.Base(input.FileName),
		ContentType: input.ContentType,
		SizeBytes:   input.Size,
		UploadedBy:  session.UserID,
	}
	attachment.ObjectKey = fmt.Sprintf("tasks/%s/%s/%s", taskID, attachment.ID, attachment.FileName)

	if err := s.files.Upload(ctx, attachment.ObjectKey, input.Reader, input.Size, input.ContentType); err != nil {
		return store.Attachment{}, fmt.Errorf("upload attachment: %w", err)
	}
	if err := s.db.InsertAttachment(ctx, attachment); err != nil {
		// Best effort: remove the orphaned object before reporting.
		_ = s.files.Remove(ctx, attachment.ObjectKey)
		return store.Attachment{}, fmt.Errorf("insert attachment: %w", err)
	}

	s.recordActivity(ctx, session.UserID, "attached", "task", task.ID, attachment.FileName, task.ProjectID)
	return attachment, nil
}

// OpenAttachment returns the metadata row plus the object stream. The
// caller must close the reader.
func (s *Service) OpenAttachment(ctx context.Context, session Session, attachmentID string) (store.Attachment, io.ReadCloser, error) {
	if s.files == nil {
		return store.Attachment{}, nil, ErrUnavailable("attachments unavailable")
	}

	attachment, err := s.db.GetAttachment(ctx, attachmentID)
	if err != nil {
		return store.Attachment{}, nil, fmt.Errorf("load attachment %s: %w", attachmentID, err)
	}
	task, err := s.db.GetTask(ctx, attachment.TaskID)
	if err != nil {
		return store.Attachment{}, nil, fmt.Errorf("load task %s: %w", attachment.TaskID, err)
	}
	visible, err := s.canSeeProject(ctx, session, task.ProjectID)
	if err != nil {
		return store.Attachment{}, nil, err
	}
	if !visible {
		return store.Attachment{}, nil, ErrAuthorization("not a member of this project")
	}

	reader, err := s.files.Download(ctx, attachment.ObjectKey)
	if err != nil {
		return store.Attachment{}, nil, fmt.Errorf("download attachment: %w", err)
	}
	return attachment, reader, nil
}

// DeleteAttachment is uploader-or-role gated.
func (s *Service) DeleteAttachment(ctx context.Context, session Session, attachmentID string) error {
	attachment, err := s.db.GetAttachment(ctx, attachmentID)
	if err != nil {
		return fmt.Errorf("load attachment %s: %w", attachmentID, err)
	}
	if !rbac.CanMutate(session.UserID, rbac.Role(session.Role), attachment.UploadedBy) {
		return ErrAuthorization("not allowed to delete this attachment")
	}

	if err := s.db.DeleteAttachment(ctx, attachmentID); err != nil {
		return fmt.Errorf("delete attachment %s: %w", attachmentID, err)
	}
	if s.files != nil {
		if err := s.files.Remove(ctx, attachment.ObjectKey); err != nil {
			s.log.WithField("attachment", attachmentID).Warnf("remove object: %v", err)
		}
	}
	return nil
}
