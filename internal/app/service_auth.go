package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/rbac"
	"taskboard/api/internal/session"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is the payload of register, login and refresh.
type AuthResult struct {
	User         store.User `json:"user"`
	Token        string     `json:"token"`
	RefreshToken string     `json:"refreshToken"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

const passwordResetTTL = time.Hour

// Bootstrap seeds the first admin account on an empty database. The
// generated password is logged once; it must be rotated after first
// login.
func (s *Service) Bootstrap(ctx context.Context) error {
	count, err := s.db.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	password := util.NewToken()[:16]
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	admin := store.User{
		ID:           util.NewID("usr"),
		Name:         "Administrator",
		Email:        "admin@taskboard.local",
		PasswordHash: hash,
		Role:         string(rbac.RoleAdmin),
		Active:       true,
	}
	if err := s.db.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	s.log.Warnf("created bootstrap admin %s with password %s", admin.Email, password)
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// Register creates a developer account. Privileged roles are only
// assigned by an admin through user management.
func (s *Service) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
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
	if len(fields) > 0 {
		return AuthResult{}, ErrValidation("invalid registration", fields...)
	}

	taken, err := s.db.EmailTaken(ctx, input.Email, "")
	if err != nil {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return AuthResult{}, ErrValidation("invalid registration", FieldError{Field: "email", Message: "is already registered"})
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
		Role:         string(rbac.RoleDeveloper),
		Active:       true,
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	return s.issueSession(ctx, user)
}

// Login checks credentials and issues a token pair. Unknown email and
// wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (AuthResult, error) {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResult{}, ErrAuthentication("invalid credentials")
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return AuthResult{}, ErrAuthentication("invalid credentials")
	}
	if !user.Active {
		return AuthResult{}, ErrAuthentication("account is deactivated")
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (AuthResult, error) {
	claims := auth.NewClaims(user.ID, user.Name, user.Role, util.NewID("jti"), s.accessTTL)
	token, err := auth.IssueToken(s.secret, claims)
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	refresh := util.NewToken()
	expiresAt := time.Now().Add(s.refreshTTL)
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), user.ID, expiresAt); err != nil {
		return AuthResult{}, fmt.Errorf("save refresh session: %w", err)
	}

	return AuthResult{
		User:         user,
		Token:        token,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

// Refresh rotates a refresh token. The presented token is consumed
// atomically, so a replay of an already-rotated token fails.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	if refreshToken == "" {
		return AuthResult{}, ErrAuthentication("refresh token is required")
	}

	userID, err := s.sessions.Consume(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return AuthResult{}, ErrAuthentication("refresh token invalid")
		}
		return AuthResult{}, fmt.Errorf("consume refresh session: %w", err)
	}

	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AuthResult{}, ErrAuthentication("refresh token invalid")
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return AuthResult{}, ErrAuthentication("account is deactivated")
	}

	return s.issueSession(ctx, user)
}

// Logout revokes the refresh token. The access token simply ages out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, auth.HashToken(refreshToken)); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// SessionFromToken verifies an access token and builds the caller session.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken(s.secret, token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID: claims.Subject,
		Name:   claims.Name,
		Role:   claims.Role,
		JTI:    claims.ID,
	}, nil
}

// ForgotPassword starts a reset. The response never reveals whether the
// email exists. When SMTP is not configured the token is returned to the
// caller instead, which keeps local development workable.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return "", nil
	}

	token := util.NewToken()
	expiresAt := time.Now().Add(passwordResetTTL)
	if err := s.db.SavePasswordResetToken(ctx, auth.HashToken(token), user.ID, expiresAt); err != nil {
		return "", fmt.Errorf("save reset token: %w", err)
	}

	if s.mail != nil && s.mail.IsConfigured() {
		resetURL := fmt.Sprintf("%s/reset-password?token=%s", s.appBaseURL, token)
		go func() {
			if err := s.mail.SendPasswordResetEmail(user.Email, user.Name, resetURL); err != nil {
				s.log.WithField("user", user.ID).Warnf("send reset email: %v", err)
			}
		}()
		return "", nil
	}
	return token, nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrValidation("invalid reset request", FieldError{Field: "token", Message: "is required"})
	}
	if len(newPassword) < auth.MinPasswordLength {
		return ErrValidation("invalid reset request", FieldError{Field: "newPassword", Message: "must be at least 8 characters"})
	}

	userID, err := s.db.ConsumePasswordResetToken(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrValidation("reset token is invalid or expired")
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.UpdateUserPassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
