package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleCreateTask(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateTaskInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	task, err := s.service.CreateTask(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, task)
}

func (s *HTTPServer) handleGetTask(w http.ResponseWriter, r *http.Request, session Session) {
	task, err := s.service.GetTask(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, task)
}

func (s *HTTPServer) listTasks(w http.ResponseWriter, r *http.Request, session Session, projectID string) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	dueBefore, err := parseDateParam(r, "dueBefore")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	query := r.URL.Query()
	if projectID == "" {
		projectID = query.Get("projectId")
	}
	payload, err := s.service.ListTasks(r.Context(), session, TaskListInput{
		ProjectID:  projectID,
		Status:     query.Get("status"),
		Priority:   query.Get("priority"),
		AssigneeID: query.Get("assigneeId"),
		DueBefore:  dueBefore,
		Search:     query.Get("search"),
		SortBy:     query.Get("sortBy"),
		SortOrder:  query.Get("sortOrder"),
		Page:       page,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleListTasks(w http.ResponseWriter, r *http.Request, session Session) {
	s.listTasks(w, r, session, "")
}

func (s *HTTPServer) handleListProjectTasks(w http.ResponseWriter, r *http.Request, session Session) {
	s.listTasks(w, r, session, mux.Vars(r)["id"])
}

func (s *HTTPServer) handleUpdateTask(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateTaskInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	task, err := s.service.UpdateTask(r.Context(), session, mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, task)
}

func (s *HTTPServer) handleDeleteTask(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteTask(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "task deleted")
}

func (s *HTTPServer) handleCreateComment(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateCommentInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.service.CreateComment(r.Context(), session, mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, comment)
}

func (s *HTTPServer) handleListTaskComments(w http.ResponseWriter, r *http.Request, session Session) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payload, err := s.service.ListTaskComments(r.Context(), session, mux.Vars(r)["id"], page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateComment(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	comment, err := s.service.UpdateComment(r.Context(), session, mux.Vars(r)["id"], body.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, comment)
}

func (s *HTTPServer) handleDeleteComment(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteComment(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "comment deleted")
}
