package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/logging"
	"taskboard/api/internal/ratelimit"
	"taskboard/api/internal/rbac"
)

type HTTPServer struct {
	service     *Service
	corsOrigin  string
	general     *ratelimit.Limiter
	authLimiter *ratelimit.Limiter
	ws          http.Handler
	log         *logrus.Entry
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		log:        logging.Component("http"),
	}
}

// SetRateLimiters installs the general limiter and the stricter one that
// guards credential endpoints.
func (s *HTTPServer) SetRateLimiters(general, authLimiter *ratelimit.Limiter) {
	s.general = general
	s.authLimiter = authLimiter
}

// SetWebSocket mounts the upgrade handler at /api/v1/ws.
func (s *HTTPServer) SetWebSocket(handler http.Handler) {
	s.ws = handler
}

func (s *HTTPServer) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	api.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet, http.MethodHead)

	api.HandleFunc("/auth/register", s.throttledAuth(s.handleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.throttledAuth(s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.throttledAuth(s.handleRefresh)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/forgot-password", s.throttledAuth(s.handleForgotPassword)).Methods(http.MethodPost)
	api.HandleFunc("/auth/reset-password", s.throttledAuth(s.handleResetPassword)).Methods(http.MethodPost)

	api.HandleFunc("/users/me", s.authed(s.handleGetProfile)).Methods(http.MethodGet)
	api.HandleFunc("/users/me", s.authed(s.handleUpdateProfile)).Methods(http.MethodPut)
	api.HandleFunc("/users/me/password", s.authed(s.handleChangePassword)).Methods(http.MethodPut)
	api.HandleFunc("/users", s.authed(s.handleListUsers, rbac.RoleAdmin, rbac.RoleManager)).Methods(http.MethodGet)
	api.HandleFunc("/users", s.authed(s.handleCreateUser, rbac.RoleAdmin)).Methods(http.MethodPost)
	api.HandleFunc("/users/{id}", s.authed(s.handleGetUser, rbac.RoleAdmin, rbac.RoleManager)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", s.authed(s.handleUpdateUser, rbac.RoleAdmin)).Methods(http.MethodPut)
	api.HandleFunc("/users/{id}", s.authed(s.handleDeleteUser, rbac.RoleAdmin)).Methods(http.MethodDelete)

	api.HandleFunc("/projects", s.authed(s.handleListProjects)).Methods(http.MethodGet)
	api.HandleFunc("/projects", s.authed(s.handleCreateProject, rbac.RoleAdmin, rbac.RoleManager)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}", s.authed(s.handleGetProject)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}", s.authed(s.handleUpdateProject)).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}", s.authed(s.handleDeleteProject)).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{id}/members", s.authed(s.handleListMembers)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/members", s.authed(s.handleAddMember)).Methods(http.MethodPost)
	api.HandleFunc("/projects/{id}/members/{userId}", s.authed(s.handleUpdateMemberRole)).Methods(http.MethodPut)
	api.HandleFunc("/projects/{id}/members/{userId}", s.authed(s.handleRemoveMember)).Methods(http.MethodDelete)
	api.HandleFunc("/projects/{id}/tasks", s.authed(s.handleListProjectTasks)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/activities", s.authed(s.handleListProjectActivities)).Methods(http.MethodGet)
	api.HandleFunc("/projects/{id}/report", s.authed(s.handleProjectReport)).Methods(http.MethodGet)

	api.HandleFunc("/tasks", s.authed(s.handleListTasks)).Methods(http.MethodGet)
	api.HandleFunc("/tasks", s.authed(s.handleCreateTask)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}", s.authed(s.handleGetTask)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}", s.authed(s.handleUpdateTask)).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{id}", s.authed(s.handleDeleteTask)).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{id}/comments", s.authed(s.handleListTaskComments)).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{id}/comments", s.authed(s.handleCreateComment)).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{id}/attachments", s.authed(s.handleUploadAttachment)).Methods(http.MethodPost)

	api.HandleFunc("/comments/{id}", s.authed(s.handleUpdateComment)).Methods(http.MethodPut)
	api.HandleFunc("/comments/{id}", s.authed(s.handleDeleteComment)).Methods(http.MethodDelete)

	api.HandleFunc("/attachments/{id}", s.authed(s.handleDownloadAttachment)).Methods(http.MethodGet)
	api.HandleFunc("/attachments/{id}", s.authed(s.handleDeleteAttachment)).Methods(http.MethodDelete)

	api.HandleFunc("/notifications/unread-count", s.authed(s.handleUnreadCount)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/read-all", s.authed(s.handleMarkAllRead)).Methods(http.MethodPut)
	api.HandleFunc("/notifications", s.authed(s.handleListNotifications)).Methods(http.MethodGet)
	api.HandleFunc("/notifications/{id}/read", s.authed(s.handleMarkRead)).Methods(http.MethodPut)
	api.HandleFunc("/notifications/{id}", s.authed(s.handleDeleteNotification)).Methods(http.MethodDelete)

	api.HandleFunc("/activities", s.authed(s.handleListActivities)).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", s.authed(s.handleDashboard)).Methods(http.MethodGet)
	api.HandleFunc("/search", s.authed(s.handleSearch)).Methods(http.MethodGet)
	api.HandleFunc("/assist/generate", s.authed(s.handleAssistGenerate)).Methods(http.MethodPost)

	if s.ws != nil {
		api.Handle("/ws", s.ws).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return s.withMiddleware(r)
}

// handlerFunc is a handler that already has the caller session resolved.
type handlerFunc func(w http.ResponseWriter, r *http.Request, session Session)

// authed builds the auth middleware for one route: bearer token, then
// role gate when a role set is declared. An empty set means any
// authenticated role.
func (s *HTTPServer) authed(next handlerFunc, roles ...rbac.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeFailure(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}
		session, err := s.service.SessionFromToken(token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) {
				writeFailure(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired", nil)
				return
			}
			writeFailure(w, http.StatusUnauthorized, "INVALID_TOKEN", "token invalid", nil)
			return
		}
		if len(roles) > 0 && !rbac.In(rbac.Role(session.Role), roles...) {
			writeFailure(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
			return
		}
		next(w, r, session)
	}
}

// throttledAuth applies the stricter credential-endpoint limiter.
func (s *HTTPServer) throttledAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authLimiter != nil && !s.authLimiter.Allow(clientIP(r)) {
			writeFailure(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later", nil)
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
			return
		}

		if s.general != nil && !s.general.Allow(clientIP(r)) {
			writeFailure(writer, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, retry later", nil)
			return
		}

		started := time.Now()
		next.ServeHTTP(writer, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      writer.status,
			"duration_ms": time.Since(started).Milliseconds(),
			"client_ip":   clientIP(r),
		}).Info("request")
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
}

// clientIP takes the first X-Forwarded-For hop when present, else the
// connection peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"success": true, "data": data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": true, "message": message})
}

func writeFailure(w http.ResponseWriter, status int, code, message string, fieldErrors []FieldError) {
	response := map[string]any{
		"success": false,
		"code":    code,
		"message": message,
	}
	if len(fieldErrors) > 0 {
		response["errors"] = fieldErrors
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// fail translates a service error into the envelope and logs server-side
// failures with the request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		writeFailure(w, domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Fields)
		return
	}
	if isNoRows(err) {
		writeFailure(w, http.StatusNotFound, "NOT_FOUND", "not found", nil)
		return
	}
	if errors.Is(err, auth.ErrExpiredToken) {
		writeFailure(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired", nil)
		return
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		writeFailure(w, http.StatusUnauthorized, "INVALID_TOKEN", "token invalid", nil)
		return
	}
	s.log.WithField("request_id", requestIDFrom(r.Context())).Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	writeFailure(w, http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil)
}

// parsePage reads page/limit query parameters into a validated Page.
func parsePage(r *http.Request) (Page, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return Page{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return Page{}, err
	}
	return NewPage(page, limit)
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrValidation("invalid query", FieldError{Field: name, Message: "must be an integer"})
	}
	return value, nil
}

// parseDateParam accepts RFC 3339 datetimes and plain dates.
func parseDateParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	return nil, ErrValidation("invalid query", FieldError{Field: name, Message: "must be an RFC 3339 date"})
}

func parseDateRange(r *http.Request) (*time.Time, *time.Time, error) {
	start, err := parseDateParam(r, "startDate")
	if err != nil {
		return nil, nil, err
	}
	end, err := parseDateParam(r, "endDate")
	if err != nil {
		return nil, nil, err
	}
	if err := validateDateRange(start, end); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.service.Ping(ctx); err != nil {
		writeFailure(w, http.StatusServiceUnavailable, "NOT_READY", "dependencies unavailable", nil)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ready"})
}
