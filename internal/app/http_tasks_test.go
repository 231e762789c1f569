package app

import (
	"net/http"
	"testing"
)

func TestCreateTaskValidation(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "Morgan", "manager")
	outsider := ts.seedUser(t, "Oscar", "developer")
	token := ts.token(t, manager)

	projectID := createProject(t, ts, token, "Build")

	// Unknown project is a client error, not a 404 or 500.
	status, envelope := ts.do(t, http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"projectId": "prj_missing",
		"title":     "Orphan",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("unknown project status = %d, body %v", status, envelope)
	}

	// Assignees must already be project members.
	status, _ = ts.do(t, http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"projectId":  projectID,
		"title":      "Misassigned",
		"assigneeId": outsider.ID,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("non-member assignee status = %d, want 400", status)
	}

	status, _ = ts.do(t, http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"projectId":      projectID,
		"title":          "Negative",
		"estimatedHours": -4,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("negative hours status = %d, want 400", status)
	}

	status, envelope = ts.do(t, http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"projectId": projectID,
		"title":     "Legit",
	})
	if status != http.StatusCreated {
		t.Fatalf("create task status = %d, body %v", status, envelope)
	}
	data := dataOf(t, envelope)
	if data["status"] != "todo" || data["priority"] != "medium" {
		t.Fatalf("defaults not applied: %v", data)
	}
}

func TestTaskUpdateAndAssignment(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "Morgan", "manager")
	developer := ts.seedUser(t, "Devon", "developer")
	token := ts.token(t, manager)

	projectID := createProject(t, ts, token, "Sprint")
	ts.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", token, map[string]any{
		"userId": developer.ID,
		"role":   "developer",
	})

	// Clear the member_added notification so the count below isolates
	// the assignment.
	devToken := ts.token(t, developer)
	ts.do(t, http.MethodPut, "/api/v1/notifications/read-all", devToken, nil)

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/tasks", token, map[string]any{
		"projectId": projectID,
		"title":     "Implement",
	})
	taskID := dataOf(t, envelope)["id"].(string)

	status, envelope := ts.do(t, http.MethodPut, "/api/v1/tasks/"+taskID, token, map[string]any{
		"status":     "in_progress",
		"assigneeId": developer.ID,
	})
	if status != http.StatusOK {
		t.Fatalf("update status = %d, body %v", status, envelope)
	}
	data := dataOf(t, envelope)
	if data["status"] != "in_progress" || data["assigneeId"] != developer.ID {
		t.Fatalf("update not applied: %v", data)
	}

	// Assignment produced a notification for the developer.
	_, envelope = ts.do(t, http.MethodGet, "/api/v1/notifications/unread-count", devToken, nil)
	if int(dataOf(t, envelope)["count"].(float64)) != 1 {
		t.Fatalf("assignee has no notification: %v", envelope)
	}

	status, _ = ts.do(t, http.MethodPut, "/api/v1/tasks/"+taskID, token, map[string]any{
		"status": "sideways",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("invalid status update = %d, want 400", status)
	}
}

func TestTaskDeleteGate(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "Morgan", "manager")
	developer := ts.seedUser(t, "Devon", "developer")
	managerToken := ts.token(t, manager)
	developerToken := ts.token(t, developer)

	projectID := createProject(t, ts, managerToken, "Guarded")
	ts.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", managerToken, map[string]any{
		"userId": developer.ID,
		"role":   "developer",
	})

	_, envelope := ts.do(t, http.MethodPost, "/api/v1/tasks", managerToken, map[string]any{
		"projectId": projectID,
		"title":     "Managerial",
	})
	managerTaskID := dataOf(t, envelope)["id"].(string)

	// A developer cannot delete someone else's task.
	status, _ := ts.do(t, http.MethodDelete, "/api/v1/tasks/"+managerTaskID, developerToken, nil)
	if status != http.StatusForbidden {
		t.Fatalf("foreign delete status = %d, want 403", status)
	}

	// But can delete their own.
	_, envelope = ts.do(t, http.MethodPost, "/api/v1/tasks", developerToken, map[string]any{
		"projectId": projectID,
		"title":     "Mine",
	})
	ownTaskID := dataOf(t, envelope)["id"].(string)
	status, _ = ts.do(t, http.MethodDelete, "/api/v1/tasks/"+ownTaskID, developerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("own delete status = %d", status)
	}
}

func TestCommentFlow(t *testing.T) {
	ts := newTestServer(t)
	manager := ts.seedUser(t, "Morgan", "manager")
	developer := ts.seedUser(t, "Devon", "developer")
	managerToken := ts.token(t, manager)
	developerToken := ts.token(t, developer)

	projectID := createProject(t, ts, managerToken, "Talk")
	ts.do(t, http.MethodPost, "/api/v1/projects/"+projectID+"/members", managerToken, map[string]any{
		"userId": developer.ID,
		"role":   "developer",
	})
	_, envelope := ts.do(t, http.MethodPost, "/api/v1/tasks", managerToken, map[string]any{
		"projectId": projectID,
		"title":     "Discuss",
	})
	taskID := dataOf(t, envelope)["id"].(string)

	status, _ := ts.do(t, http.MethodPost, "/api/v1/tasks/tsk_missing/comments", developerToken, map[string]any{
		"content": "lost",
	})
	if status != http.StatusNotFound {
		t.Fatalf("comment on missing task status = %d, want 404", status)
	}

	status, envelope = ts.do(t, http.MethodPost, "/api/v1/tasks/"+taskID+"/comments", developerToken, map[string]any{
		"content": "looks good",
	})
	if status != http.StatusCreated {
		t.Fatalf("create comment status = %d, body %v", status, envelope)
	}
	commentID := dataOf(t, envelope)["id"].(string)

	// The task creator was notified about the comment.
	_, envelope = ts.do(t, http.MethodGet, "/api/v1/notifications/unread-count", managerToken, nil)
	if int(dataOf(t, envelope)["count"].(float64)) != 1 {
		t.Fatalf("task creator has no comment notification: %v", envelope)
	}

	// Another developer cannot edit a foreign comment; the manager can.
	status, _ = ts.do(t, http.MethodPut, "/api/v1/comments/"+commentID, managerToken, map[string]any{
		"content": "edited by manager",
	})
	if status != http.StatusOK {
		t.Fatalf("manager comment edit status = %d", status)
	}

	status, envelope = ts.do(t, http.MethodGet, "/api/v1/tasks/"+taskID+"/comments", developerToken, nil)
	if status != http.StatusOK {
		t.Fatalf("list comments status = %d", status)
	}
	if int(dataOf(t, envelope)["total"].(float64)) != 1 {
		t.Fatalf("unexpected comment count: %v", envelope)
	}
}
