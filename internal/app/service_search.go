package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskboard/api/internal/assist"
	"taskboard/api/internal/rbac"
	"taskboard/api/internal/search"
)

type SearchInput struct {
	Text string
	Type string
	Page Page
}

// Search runs the cross-entity query scoped to the caller's visible
// projects: admin and manager search everything, a developer only their
// member projects.
func (s *Service) Search(ctx context.Context, session Session, input SearchInput) (search.Response, error) {
	if strings.TrimSpace(input.Text) == "" {
		return search.Response{}, ErrValidation("invalid search", FieldError{Field: "q", Message: "is required"})
	}
	if s.search == nil {
		return search.Response{}, ErrUnavailable("search unavailable")
	}

	var filterType search.ResultType
	switch input.Type {
	case "":
	case string(search.ResultProject), string(search.ResultTask), string(search.ResultComment):
		filterType = search.ResultType(input.Type)
	default:
		return search.Response{}, ErrValidation("invalid search", FieldError{Field: "type", Message: "must be project, task or comment"})
	}

	var scope []string
	if !rbac.In(rbac.Role(session.Role), rbac.RoleAdmin, rbac.RoleManager) {
		ids, err := s.db.MemberProjectIDs(ctx, session.UserID)
		if err != nil {
			return search.Response{}, fmt.Errorf("load member projects: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		scope = ids
	}

	return s.search.Search(search.Query{
		Text:       input.Text,
		FilterType: filterType,
		ProjectIDs: scope,
		Limit:      input.Page.Limit,
		Offset:     input.Page.Offset,
	}), nil
}

// GenerateText proxies the assist provider. Every degraded condition
// maps to one 503 so clients need a single fallback path.
func (s *Service) GenerateText(ctx context.Context, prompt string) (string, error) {
	if s.assist == nil || !s.assist.Configured() {
		return "", ErrUnavailable("assistant unavailable")
	}
	text, err := s.assist.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, assist.ErrEmptyPrompt) {
			return "", ErrValidation("invalid prompt", FieldError{Field: "prompt", Message: "is required"})
		}
		return "", ErrUnavailable("assistant unavailable")
	}
	return text, nil
}
