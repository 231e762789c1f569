package app

import (
	"net/http"
	"testing"

	"taskboard/api/internal/search"
	"taskboard/api/internal/store"
)

// fakeSearch records the last query and replays a canned response.
type fakeSearch struct {
	lastQuery search.Query
	response  search.Response
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.lastQuery = q
	f.response.Query = q.Text
	return f.response
}

func (f *fakeSearch) IndexProject(search.ProjectRecord) {}
func (f *fakeSearch) IndexTask(search.TaskRecord)       {}
func (f *fakeSearch) IndexComment(search.CommentRecord) {}
func (f *fakeSearch) DeleteProject(string)              {}
func (f *fakeSearch) DeleteTask(string)                 {}
func (f *fakeSearch) DeleteComment(string)              {}

func TestDashboardScoping(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedUser(t, "Ada", "admin")
	developer := ts.seedUser(t, "Devon", "developer")
	ts.store.stats = store.DashboardStats{TotalProjects: 3, TotalUsers: 9}

	_, envelope := ts.do(t, http.MethodGet, "/api/v1/dashboard", ts.token(t, admin), nil)
	data := dataOf(t, envelope)
	if int(data["totalUsers"].(float64)) != 9 {
		t.Fatalf("admin totalUsers = %v, want 9", data["totalUsers"])
	}
	if ts.store.statsMemberID != "" {
		t.Fatalf("admin stats were member scoped: %q", ts.store.statsMemberID)
	}

	_, envelope = ts.do(t, http.MethodGet, "/api/v1/dashboard", ts.token(t, developer), nil)
	data = dataOf(t, envelope)
	// The user headcount never leaks outside the admin view.
	if _, ok := data["totalUsers"]; ok {
		t.Fatalf("developer sees totalUsers: %v", data)
	}
	if ts.store.statsMemberID != developer.ID {
		t.Fatalf("developer stats not member scoped: %q", ts.store.statsMemberID)
	}
}

func TestNotificationFlow(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "Morgan", "manager")
	developer := ts.seedUser(t, "Devon", "developer")
	managerToken := ts.token(t, manager)
	developerToken := ts.token(t, developer)

	projectID := createProject(t, ts, managerToken, "Inbox")
	ts.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", managerToken, map[string]any{
		"userId": developer.ID,
		"role":   "developer",
	})
	ts.do(t, http.MethodPost, "/api/v1/tasks", managerToken, map[string]any{
		"projectId":  projectID,
		"title":      "Assigned",
		"assigneeId": developer.ID,
	})

	// Membership plus assignment leave the developer with two unread.
	_, envelope := ts.do(t, http.MethodGet, "/api/v1/notifications?unread=true", developerToken, nil)
	data := dataOf(t, envelope)
	if int(data["total"].(float64)) != 2 {
		t.Fatalf("unread total = %v, want 2", data["total"])
	}
	items := data["notifications"].([]any)
	firstID := items[0].(map[string]any)["id"].(string)

	// Notifications belong to their recipient only.
	status, _ := ts.do(t, http.MethodPut, "/api/v1/notifications/"+firstID+"/read", managerToken, nil)
	if status != http.StatusNotFound {
		t.Fatalf("foreign mark-read status = %d, want 404", status)
	}

	status, _ = ts.do(t, http.MethodPut, "/api/v1/notifications/"+firstID+"/read", developerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("mark-read status = %d", status)
	}
	_, envelope = ts.do(t, http.MethodGet, "/api/v1/notifications/unread-count", developerToken, nil)
	if int(dataOf(t, envelope)["count"].(float64)) != 1 {
		t.Fatalf("count after mark-read = %v", envelope)
	}

	status, _ = ts.do(t, http.MethodPut, "/api/v1/notifications/read-all", developerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("read-all status = %d", status)
	}
	_, envelope = ts.do(t, http.MethodGet, "/api/v1/notifications/unread-count", developerToken, nil)
	if int(dataOf(t, envelope)["count"].(float64)) != 0 {
		t.Fatalf("count after read-all = %v", envelope)
	}

	status, _ = ts.do(t, http.MethodDelete, "/api/v1/notifications/"+firstID, developerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("delete notification status = %d", status)
	}
}

func TestSearchScoping(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "Morgan", "manager")
	developer := ts.seedUser(t, "Devon", "developer")
	managerToken := ts.token(t, manager)
	developerToken := ts.token(t, developer)

	// Search is 503 until a backend is wired.
	status, _ := ts.do(t, http.MethodGet, "/api/v1/search?q=x", managerToken, nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("unwired search status = %d, want 503", status)
	}

	index := &fakeSearch{}
	ts.service.SetSearch(index)

	status, _ = ts.do(t, http.MethodGet, "/api/v1/search", managerToken, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("missing q status = %d, want 400", status)
	}
	status, _ = ts.do(t, http.MethodGet, "/api/v1/search?q=x&type=wiki", managerToken, nil)
	if status != http.StatusBadRequest {
		t.Fatalf("bad type status = %d, want 400", status)
	}

	status, _ = ts.do(t, http.MethodGet, "/api/v1/search?q=launch", managerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("manager search status = %d", status)
	}
	if index.lastQuery.ProjectIDs != nil {
		t.Fatalf("manager search was scoped: %v", index.lastQuery.ProjectIDs)
	}

	// A developer with no memberships searches an empty scope, not an
	// unrestricted one.
	status, _ = ts.do(t, http.MethodGet, "/api/v1/search?q=launch", developerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("developer search status = %d", status)
	}
	if index.lastQuery.ProjectIDs == nil || len(index.lastQuery.ProjectIDs) != 0 {
		t.Fatalf("empty membership scope = %v, want []", index.lastQuery.ProjectIDs)
	}

	projectID := createProject(t, ts, managerToken, "Findable")
	ts.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", managerToken, map[string]any{
		"userId": developer.ID,
		"role":   "developer",
	})
	ts.do(t, http.MethodGet, "/api/v1/search?q=launch", developerToken, nil)
	if len(index.lastQuery.ProjectIDs) != 1 || index.lastQuery.ProjectIDs[0] != projectID {
		t.Fatalf("member scope = %v, want [%s]", index.lastQuery.ProjectIDs, projectID)
	}
}

func TestAssistUnavailable(t *testing.T) {
	ts := newTestServer(t)
	developer := ts.seedUser(t, "Devon", "developer")

	status, envelope := ts.do(t, http.MethodPost, "/api/v1/assist/generate", ts.token(t, developer), map[string]any{
		"prompt": "summarize",
	})
	if status != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured assist status = %d, want 503 (%v)", status, envelope)
	}
}
