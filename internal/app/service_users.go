package app

import (
	"context"
	"fmt"
	"strings"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/rbac"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

var userSortColumns = map[string]struct{}{
	"name":       {},
	"email":      {},
	"role":       {},
	"created_at": {},
}

type UserListInput struct {
	Role      string
	Active    *bool
	Search    string
	SortBy    string
	SortOrder string
	Page      Page
}

// validateSort checks the requested ordering against the resource's
// allow-list and fills the default, newest first, when unset.
func validateSort(sortBy, sortOrder string, allowed map[string]struct{}) (string, string, error) {
	if sortBy == "" {
		sortBy = "created_at"
	} else if _, ok := allowed[sortBy]; !ok {
		return "", "", ErrValidation("invalid sort", FieldError{Field: "sortBy", Message: "is not sortable"})
	}
	switch sortOrder {
	case "":
		sortOrder = "desc"
	case "asc", "desc":
	default:
		return "", "", ErrValidation("invalid sort", FieldError{Field: "sortOrder", Message: "must be asc or desc"})
	}
	return sortBy, sortOrder, nil
}

func (s *Service) ListUsers(ctx context.Context, input UserListInput) (map[string]any, error) {
	sortBy, sortOrder, err := validateSort(input.SortBy, input.SortOrder, userSortColumns)
	if err != nil {
		return nil, err
	}
	if input.Role != "" && !rbac.Valid(rbac.Role(input.Role)) {
		return nil, ErrValidation("invalid filter", FieldError{Field: "role", Message: "is not a valid role"})
	}

	users, total, err := s.db.ListUsers(ctx, store.UserFilter{
		Role:      input.Role,
		Active:    input.Active,
		Search:    input.Search,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Limit:     input.Page.Limit,
		Offset:    input.Page.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return pagedPayload("users", users, total, input.Page), nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return store.User{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return user, nil
}

type CreateUserInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// CreateUser is the admin path; unlike Register it assigns any role.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (store.User, error) {
	var fields []FieldError
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if input.Name == "" {
		fields = append(fields, FieldError{Field: "name", Message: "is required"})
	}
	if !validEmail(input.Email) {
		fields = append(fields, FieldError{Field: "email", Message: "is invalid"})
	}
	if len(input.Password) < auth.MinPasswordLength {
		fields = append(fields, FieldError{Field: "password", Message: "must be at least 8 characters"})
	}
	role := rbac.Normalize(input.Role)
	if role == "" {
		fields = append(fields, FieldError{Field: "role", Message: "is not a valid role"})
	}
	if len(fields) > 0 {
		return store.User{}, ErrValidation("invalid user", fields...)
	}

	taken, err := s.db.EmailTaken(ctx, input.Email, "")
	if err != nil {
		return store.User{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return store.User{}, ErrValidation("invalid user", FieldError{Field: "email", Message: "is already registered"})
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         string(role),
		Active:       true,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

type UpdateUserInput struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Role   *string `json:"role"`
	Active *bool   `json:"active"`
}

// UpdateUser applies an admin patch: profile fields, role, activation.
func (s *Service) UpdateUser(ctx context.Context, session Session, userID string, input UpdateUserInput) (store.User, error) {
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return store.User{}, fmt.Errorf("load user %s: %w", userID, err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return store.User{}, ErrValidation("invalid user", FieldError{Field: "name", Message: "is required"})
		}
		user.Name = name
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if !validEmail(email) {
			return store.User{}, ErrValidation("invalid user", FieldError{Field: "email", Message: "is invalid"})
		}
		taken, err := s.db.EmailTaken(ctx, email, userID)
		if err != nil {
			return store.User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return store.User{}, ErrValidation("invalid user", FieldError{Field: "email", Message: "is already registered"})
		}
		user.Email = email
	}
	if input.Role != nil {
		role := rbac.Normalize(*input.Role)
		if role == "" {
			return store.User{}, ErrValidation("invalid user", FieldError{Field: "role", Message: "is not a valid role"})
		}
		user.Role = string(role)
	}
	if input.Active != nil {
		if !*input.Active && userID == session.UserID {
			return store.User{}, ErrValidation("invalid user", FieldError{Field: "active", Message: "cannot deactivate own account"})
		}
		user.Active = *input.Active
	}

	if err := s.db.UpdateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("update user %s: %w", userID, err)
	}
	s.recordActivity(ctx, session.UserID, "updated", "user", user.ID, user.Name, "")
	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, session Session, userID string) error {
	if userID == session.UserID {
		return ErrValidation("cannot delete own account")
	}
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if err := s.db.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("delete user %s: %w", userID, err)
	}
	s.recordActivity(ctx, session.UserID, "deleted", "user", user.ID, user.Name, "")
	return nil
}

type UpdateProfileInput struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (s *Service) UpdateProfile(ctx context.Context, session Session, input UpdateProfileInput) (store.User, error) {
	user, err := s.db.GetUser(ctx, session.UserID)
	if err != nil {
		return store.User{}, fmt.Errorf("load user %s: %w", session.UserID, err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return store.User{}, ErrValidation("invalid profile", FieldError{Field: "name", Message: "is required"})
		}
		user.Name = name
	}
	if input.Email != nil {
		email := normalizeEmail(*input.Email)
		if !validEmail(email) {
			return store.User{}, ErrValidation("invalid profile", FieldError{Field: "email", Message: "is invalid"})
		}
		taken, err := s.db.EmailTaken(ctx, email, session.UserID)
		if err != nil {
			return store.User{}, fmt.Errorf("check email: %w", err)
		}
		if taken {
			return store.User{}, ErrValidation("invalid profile", FieldError{Field: "email", Message: "is already registered"})
		}
		user.Email = email
	}

	if err := s.db.UpdateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("update user %s: %w", session.UserID, err)
	}
	return user, nil
}

// ChangePassword requires the current password even with a valid session.
func (s *Service) ChangePassword(ctx context.Context, session Session, current, next string) error {
	if len(next) < auth.MinPasswordLength {
		return ErrValidation("invalid password", FieldError{Field: "newPassword", Message: "must be at least 8 characters"})
	}

	user, err := s.db.GetUser(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("load user %s: %w", session.UserID, err)
	}
	if !auth.CheckPassword(current, user.PasswordHash) {
		return ErrValidation("invalid password", FieldError{Field: "currentPassword", Message: "is incorrect"})
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.UpdateUserPassword(ctx, session.UserID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
