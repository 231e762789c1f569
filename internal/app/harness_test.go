package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/session"
	"taskboard/api/internal/store"
	"taskboard/api/internal/util"
)

var testSecret = []byte("test-secret")

// fakeStore is an in-memory dataStore. Function fields override single
// methods when a test needs a failure or a probe.
type fakeStore struct {
	mu            sync.Mutex
	users         map[string]store.User
	projects      map[string]store.Project
	members       map[string][]store.ProjectMember
	tasks         map[string]store.Task
	comments      map[string]store.Comment
	notifications map[string]store.Notification
	activities    []store.Activity
	attachments   map[string]store.Attachment
	resetTokens   map[string]store.PasswordResetToken

	stats         store.DashboardStats
	statsMemberID string

	pingErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]store.User),
		projects:      make(map[string]store.Project),
		members:       make(map[string][]store.ProjectMember),
		tasks:         make(map[string]store.Task),
		comments:      make(map[string]store.Comment),
		notifications: make(map[string]store.Notification),
		attachments:   make(map[string]store.Attachment),
		resetTokens:   make(map[string]store.PasswordResetToken),
	}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) GetUser(_ context.Context, userID string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return user, nil
		}
	}
	return store.User{}, sql.ErrNoRows
}

func (f *fakeStore) EmailTaken(_ context.Context, email, excludeUserID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email && user.ID != excludeUserID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListUsers(_ context.Context, filter store.UserFilter) ([]store.User, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.User
	for _, user := range f.users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.Active != nil && user.Active != *filter.Active {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(user.Name+user.Email), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, user)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return window(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (f *fakeStore) UpdateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	f.users[user.ID] = user
	return nil
}

func (f *fakeStore) UpdateUserPassword(_ context.Context, userID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	user.PasswordHash = passwordHash
	f.users[userID] = user
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.users, userID)
	return nil
}

func (f *fakeStore) CountUsers(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), nil
}

func (f *fakeStore) SavePasswordResetToken(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetTokens[tokenHash] = store.PasswordResetToken{TokenHash: tokenHash, UserID: userID, ExpiresAt: expiresAt}
	return nil
}

func (f *fakeStore) ConsumePasswordResetToken(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.resetTokens[tokenHash]
	if !ok || time.Now().After(token.ExpiresAt) {
		return "", sql.ErrNoRows
	}
	delete(f.resetTokens, tokenHash)
	return token.UserID, nil
}

func (f *fakeStore) CreateProject(_ context.Context, item store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[item.ID] = item
	// Mirrors the real store: the owner becomes the first member.
	f.members[item.ID] = append(f.members[item.ID], store.ProjectMember{
		ProjectID: item.ID,
		UserID:    item.OwnerID,
		Role:      "manager",
	})
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID string) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	project, ok := f.projects[projectID]
	if !ok {
		return store.Project{}, sql.ErrNoRows
	}
	return project, nil
}

func (f *fakeStore) ListProjects(_ context.Context, filter store.ProjectFilter) ([]store.Project, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Project
	for _, project := range f.projects {
		if filter.Status != "" && project.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && project.Priority != filter.Priority {
			continue
		}
		if filter.OwnerID != "" && project.OwnerID != filter.OwnerID {
			continue
		}
		if filter.MemberID != "" && !f.isMemberLocked(project.ID, filter.MemberID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(project.Name+project.Description), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, project)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return window(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (f *fakeStore) UpdateProject(_ context.Context, item store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[item.ID]; !ok {
		return sql.ErrNoRows
	}
	f.projects[item.ID] = item
	return nil
}

func (f *fakeStore) DeleteProject(_ context.Context, projectID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.projects[projectID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.projects, projectID)
	delete(f.members, projectID)
	return nil
}

func (f *fakeStore) ListProjectMembers(_ context.Context, projectID string) ([]store.ProjectMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ProjectMember(nil), f.members[projectID]...), nil
}

func (f *fakeStore) AddProjectMember(_ context.Context, member store.ProjectMember) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.members[member.ProjectID] {
		if existing.UserID == member.UserID {
			f.members[member.ProjectID][i].Role = member.Role
			return nil
		}
	}
	f.members[member.ProjectID] = append(f.members[member.ProjectID], member)
	return nil
}

func (f *fakeStore) UpdateProjectMemberRole(_ context.Context, projectID, userID, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.members[projectID] {
		if existing.UserID == userID {
			f.members[projectID][i].Role = role
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) RemoveProjectMember(_ context.Context, projectID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.members[projectID]
	for i, existing := range members {
		if existing.UserID == userID {
			f.members[projectID] = append(members[:i], members[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f *fakeStore) isMemberLocked(projectID, userID string) bool {
	for _, member := range f.members[projectID] {
		if member.UserID == userID {
			return true
		}
	}
	return false
}

func (f *fakeStore) IsProjectMember(_ context.Context, projectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isMemberLocked(projectID, userID), nil
}

func (f *fakeStore) MemberProjectIDs(_ context.Context, userID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for projectID, members := range f.members {
		for _, member := range members {
			if member.UserID == userID {
				ids = append(ids, projectID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) CreateTask(_ context.Context, item store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[item.ID] = item
	return nil
}

func (f *fakeStore) GetTask(_ context.Context, taskID string) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[taskID]
	if !ok {
		return store.Task{}, sql.ErrNoRows
	}
	return task, nil
}

func (f *fakeStore) ListTasks(_ context.Context, filter store.TaskFilter) ([]store.Task, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Task
	for _, task := range f.tasks {
		if filter.ProjectID != "" && task.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Priority != "" && task.Priority != filter.Priority {
			continue
		}
		if filter.AssigneeID != "" && (task.AssigneeID == nil || *task.AssigneeID != filter.AssigneeID) {
			continue
		}
		if filter.DueBefore != nil && (task.DueDate == nil || !task.DueDate.Before(*filter.DueBefore)) {
			continue
		}
		if filter.MemberID != "" && !f.isMemberLocked(task.ProjectID, filter.MemberID) {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(task.Title+task.Description), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, task)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return window(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (f *fakeStore) UpdateTask(_ context.Context, item store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[item.ID]; !ok {
		return sql.ErrNoRows
	}
	f.tasks[item.ID] = item
	return nil
}

func (f *fakeStore) DeleteTask(_ context.Context, taskID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[taskID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.tasks, taskID)
	return nil
}

func (f *fakeStore) CreateComment(_ context.Context, item store.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	f.comments[item.ID] = item
	return nil
}

func (f *fakeStore) GetComment(_ context.Context, commentID string) (store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment, ok := f.comments[commentID]
	if !ok {
		return store.Comment{}, sql.ErrNoRows
	}
	return comment, nil
}

func (f *fakeStore) ListTaskComments(_ context.Context, taskID string, limit, offset int) ([]store.Comment, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Comment
	for _, comment := range f.comments {
		if comment.TaskID == taskID {
			matched = append(matched, comment)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	return window(matched, limit, offset), len(matched), nil
}

func (f *fakeStore) UpdateComment(_ context.Context, commentID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	comment, ok := f.comments[commentID]
	if !ok {
		return sql.ErrNoRows
	}
	comment.Content = content
	f.comments[commentID] = comment
	return nil
}

func (f *fakeStore) DeleteComment(_ context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[commentID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.comments, commentID)
	return nil
}

func (f *fakeStore) CreateNotification(_ context.Context, item store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications[item.ID] = item
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]store.Notification, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Notification
	for _, item := range f.notifications {
		if item.UserID != userID {
			continue
		}
		if unreadOnly && item.Read {
			continue
		}
		matched = append(matched, item)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	return window(matched, limit, offset), len(matched), nil
}

func (f *fakeStore) CountUnreadNotifications(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, item := range f.notifications {
		if item.UserID == userID && !item.Read {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, notificationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.notifications[notificationID]
	if !ok || item.UserID != userID {
		return sql.ErrNoRows
	}
	item.Read = true
	f.notifications[notificationID] = item
	return nil
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, item := range f.notifications {
		if item.UserID == userID {
			item.Read = true
			f.notifications[id] = item
		}
	}
	return nil
}

func (f *fakeStore) DeleteNotification(_ context.Context, notificationID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.notifications[notificationID]
	if !ok || item.UserID != userID {
		return sql.ErrNoRows
	}
	delete(f.notifications, notificationID)
	return nil
}

func (f *fakeStore) InsertActivity(_ context.Context, item store.Activity, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now()
	f.activities = append(f.activities, item)
	return nil
}

func (f *fakeStore) ListActivities(_ context.Context, filter store.ActivityFilter) ([]store.Activity, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Activity
	for _, item := range f.activities {
		if filter.ActorID != "" && item.ActorID != filter.ActorID {
			continue
		}
		if filter.StartDate != nil && item.CreatedAt.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && item.CreatedAt.After(*filter.EndDate) {
			continue
		}
		matched = append(matched, item)
	}
	return window(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (f *fakeStore) LoadDashboardStats(_ context.Context, memberID string) (store.DashboardStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statsMemberID = memberID
	return f.stats, nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, item store.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[item.ID] = item
	return nil
}

func (f *fakeStore) GetAttachment(_ context.Context, attachmentID string) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.attachments[attachmentID]
	if !ok {
		return store.Attachment{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListTaskAttachments(_ context.Context, taskID string) ([]store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []store.Attachment
	for _, item := range f.attachments {
		if item.TaskID == taskID {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

func (f *fakeStore) DeleteAttachment(_ context.Context, attachmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attachments[attachmentID]; !ok {
		return sql.ErrNoRows
	}
	delete(f.attachments, attachmentID)
	return nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// fakeSessions is an in-memory refresh token store.
type fakeSessions struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{tokens: make(map[string]string)}
}

func (f *fakeSessions) Save(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[tokenHash] = userID
	return nil
}

func (f *fakeSessions) Consume(_ context.Context, tokenHash string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.tokens[tokenHash]
	if !ok {
		return "", session.ErrNotFound
	}
	delete(f.tokens, tokenHash)
	return userID, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, tokenHash)
	return nil
}

func (f *fakeSessions) Ping(context.Context) error { return nil }

// testServer bundles everything a handler test needs.
type testServer struct {
	handler http.Handler
	service *Service
	store   *fakeStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := newFakeStore()
	service := NewService(fake, newFakeSessions(), testSecret, 15*time.Minute, 24*time.Hour)
	server := NewHTTPServer(service, "*")
	return &testServer{handler: server.Handler(), service: service, store: fake}
}

// seedUser inserts a user without password credentials; tests that need
// login seed the hash themselves.
func (ts *testServer) seedUser(t *testing.T, name, role string) store.User {
	t.Helper()
	user := store.User{
		ID:     util.NewID("usr"),
		Name:   name,
		Email:  strings.ToLower(name) + "@example.com",
		Role:   role,
		Active: true,
	}
	if err := ts.store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (ts *testServer) token(t *testing.T, user store.User) string {
	t.Helper()
	claims := auth.NewClaims(user.ID, user.Name, user.Role, util.NewID("jti"), 15*time.Minute)
	token, err := auth.IssueToken(testSecret, claims)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// do runs one request through the full handler chain and decodes the
// envelope.
func (ts *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	var envelope map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code, envelope
}

func dataOf(t *testing.T, envelope map[string]any) map[string]any {
	t.Helper()
	data, ok := envelope["data"].(map[string]any)
	if !ok {
		t.Fatalf("envelope has no data object: %v", envelope)
	}
	return data
}
