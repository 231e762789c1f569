// Package app holds the HTTP surface and the service layer sitting
// between the router and the persistence/integration packages.
package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"taskboard/api/internal/logging"
	"taskboard/api/internal/realtime"
	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

// Session is the authenticated caller, extracted once per request by the
// auth middleware and threaded through every service method.
type Session struct {
	UserID string
	Name   string
	Role   string
	JTI    string
}

// dataStore is everything the service needs from Postgres. PostgresStore
// implements it; tests substitute a fake with optional function fields.
type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUser(ctx context.Context, userID string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	EmailTaken(ctx context.Context, email, excludeUserID string) (bool, error)
	ListUsers(ctx context.Context, filter store.UserFilter) ([]store.User, int, error)
	UpdateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	DeleteUser(ctx context.Context, userID string) error
	CountUsers(ctx context.Context) (int, error)
	SavePasswordResetToken(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	ConsumePasswordResetToken(ctx context.Context, tokenHash string) (string, error)

	CreateProject(ctx context.Context, item store.Project) error
	GetProject(ctx context.Context, projectID string) (store.Project, error)
	ListProjects(ctx context.Context, filter store.ProjectFilter) ([]store.Project, int, error)
	UpdateProject(ctx context.Context, item store.Project) error
	DeleteProject(ctx context.Context, projectID string) error
	ListProjectMembers(ctx context.Context, projectID string) ([]store.ProjectMember, error)
	AddProjectMember(ctx context.Context, member store.ProjectMember) error
	UpdateProjectMemberRole(ctx context.Context, projectID, userID, role string) error
	RemoveProjectMember(ctx context.Context, projectID, userID string) error
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	MemberProjectIDs(ctx context.Context, userID string) ([]string, error)

	CreateTask(ctx context.Context, item store.Task) error
	GetTask(ctx context.Context, taskID string) (store.Task, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]store.Task, int, error)
	UpdateTask(ctx context.Context, item store.Task) error
	DeleteTask(ctx context.Context, taskID string) error

	CreateComment(ctx context.Context, item store.Comment) error
	GetComment(ctx context.Context, commentID string) (store.Comment, error)
	ListTaskComments(ctx context.Context, taskID string, limit, offset int) ([]store.Comment, int, error)
	UpdateComment(ctx context.Context, commentID, content string) error
	DeleteComment(ctx context.Context, commentID string) error

	CreateNotification(ctx context.Context, item store.Notification) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, int, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, notificationID, userID string) error

	InsertActivity(ctx context.Context, item store.Activity, projectID string) error
	ListActivities(ctx context.Context, filter store.ActivityFilter) ([]store.Activity, int, error)

	LoadDashboardStats(ctx context.Context, memberID string) (store.DashboardStats, error)

	InsertAttachment(ctx context.Context, item store.Attachment) error
	GetAttachment(ctx context.Context, attachmentID string) (store.Attachment, error)
	ListTaskAttachments(ctx context.Context, taskID string) ([]store.Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) error
}

// sessionStore holds refresh tokens; session.RedisStore implements it.
type sessionStore interface {
	Save(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	Consume(ctx context.Context, tokenHash string) (string, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// eventHub fans events out to connected socket clients.
type eventHub interface {
	EmitToUser(userID, event string, data any)
	EmitToRoom(projectID, event string, data any)
}

// mailer sends notification and password-reset mail.
type mailer interface {
	IsConfigured() bool
	SendPasswordResetEmail(to, userName, resetURL string) error
	SendTaskAssignedEmail(to, userName, taskTitle, projectName, taskURL string) error
	SendMemberAddedEmail(to, userName, projectName, projectURL string) error
}

// searchIndex mirrors writes into the search backend and serves queries.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexProject(p search.ProjectRecord)
	IndexTask(t search.TaskRecord)
	IndexComment(c search.CommentRecord)
	DeleteProject(id string)
	DeleteTask(id string)
	DeleteComment(id string)
}

// assistant generates text for the assist endpoint.
type assistant interface {
	Configured() bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// fileStore keeps attachment objects; files.Service implements it.
type fileStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

type Service struct {
	db         dataStore
	sessions   sessionStore
	hub        eventHub
	mail       mailer
	search     searchIndex
	assist     assistant
	files      fileStore
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	appBaseURL string
	log        *logrus.Entry
}

func NewService(db dataStore, sessions sessionStore, secret []byte, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		db:         db,
		sessions:   sessions,
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		log:        logging.Component("app"),
	}
}

// Optional collaborators; a nil value degrades the feature it backs.

func (s *Service) SetHub(hub eventHub)           { s.hub = hub }
func (s *Service) SetMailer(mail mailer)         { s.mail = mail }
func (s *Service) SetSearch(index searchIndex)   { s.search = index }
func (s *Service) SetAssistant(assist assistant) { s.assist = assist }
func (s *Service) SetFiles(files fileStore)      { s.files = files }
func (s *Service) SetAppBaseURL(baseURL string)  { s.appBaseURL = baseURL }

// Ping backs the readiness endpoint: database plus the session store.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return err
	}
	if s.sessions != nil {
		return s.sessions.Ping(ctx)
	}
	return nil
}

// recordActivity appends one audit row; failures are logged, never
// surfaced, so a broken audit trail cannot fail the mutation it follows.
func (s *Service) recordActivity(ctx context.Context, actorID, action, entityType, entityID, detail, projectID string) {
	item := store.Activity{
		ID:         util.NewID("act"),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
	}
	if err := s.db.InsertActivity(ctx, item, projectID); err != nil {
		s.log.WithField("entity", entityType).Warnf("record activity: %v", err)
	}
}

// notify stores a notification and pushes it to the recipient's sockets.
func (s *Service) notify(ctx context.Context, userID, ntype, title, message string) {
	item := store.Notification{
		ID:      util.NewID("ntf"),
		UserID:  userID,
		Type:    ntype,
		Title:   title,
		Message: message,
	}
	if err := s.db.CreateNotification(ctx, item); err != nil {
		s.log.WithField("user", userID).Warnf("create notification: %v", err)
		return
	}
	if s.hub != nil {
		s.hub.EmitToUser(userID, realtime.EventNotification, item)
	}
}

// Page carries the validated pagination window of one list request.
type Page struct {
	Page   int
	Limit  int
	Offset int
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
	maxPageOffset    = 10000
)

// NewPage validates page/limit and computes the offset. Offsets past
// 10000 are rejected outright; deep scans belong in exports, not here.
func NewPage(page, limit int) (Page, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		return Page{}, ErrValidation("limit too large", FieldError{Field: "limit", Message: "must be at most 100"})
	}
	offset := (page - 1) * limit
	if offset > maxPageOffset {
		return Page{}, ErrValidation("page too deep", FieldError{Field: "page", Message: "page too deep"})
	}
	return Page{Page: page, Limit: limit, Offset: offset}, nil
}

// pagedPayload is the uniform list response body.
func pagedPayload(key string, items any, total int, page Page) map[string]any {
	totalPages := 0
	if total > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(page.Limit)))
	}
	return map[string]any{
		key:          items,
		"total":      total,
		"page":       page.Page,
		"limit":      page.Limit,
		"totalPages": totalPages,
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

const maxDateRange = 730 * 24 * time.Hour

// validateDateRange enforces ordering and the two-year span ceiling.
func validateDateRange(start, end *time.Time) error {
	if start == nil || end == nil {
		return nil
	}
	if start.After(*end) {
		return ErrValidation("invalid date range", FieldError{Field: "startDate", Message: "must not be after endDate"})
	}
	if end.Sub(*start) > maxDateRange {
		return ErrValidation("date range too wide", FieldError{Field: "endDate", Message: "range must not exceed 730 days"})
	}
	return nil
}
