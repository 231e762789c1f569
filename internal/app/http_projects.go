package app

import (
	"net/http"

	"github.com/gorilla/mux"

	"taskboard/api/internal/report"
)

func (s *HTTPServer) handleCreateProject(w http.ResponseWriter, r *http.Request, session Session) {
	var body CreateProjectInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	project, err := s.service.CreateProject(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, project)
}

func (s *HTTPServer) handleGetProject(w http.ResponseWriter, r *http.Request, session Session) {
	project, err := s.service.GetProject(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, project)
}

func (s *HTTPServer) handleListProjects(w http.ResponseWriter, r *http.Request, session Session) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	query := r.URL.Query()
	payload, err := s.service.ListProjects(r.Context(), session, ProjectListInput{
		Status:    query.Get("status"),
		Priority:  query.Get("priority"),
		Search:    query.Get("search"),
		SortBy:    query.Get("sortBy"),
		SortOrder: query.Get("sortOrder"),
		Page:      page,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUpdateProject(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateProjectInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	project, err := s.service.UpdateProject(r.Context(), session, mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, project)
}

func (s *HTTPServer) handleDeleteProject(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteProject(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "project deleted")
}

func (s *HTTPServer) handleListMembers(w http.ResponseWriter, r *http.Request, session Session) {
	members, err := s.service.ListProjectMembers(r.Context(), session, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"members": members})
}

func (s *HTTPServer) handleAddMember(w http.ResponseWriter, r *http.Request, session Session) {
	var body AddMemberInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	member, err := s.service.AddProjectMember(r.Context(), session, mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, member)
}

func (s *HTTPServer) handleUpdateMemberRole(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		Role string `json:"role"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	vars := mux.Vars(r)
	if err := s.service.UpdateProjectMemberRole(r.Context(), session, vars["id"], vars["userId"], body.Role); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "member updated")
}

func (s *HTTPServer) handleRemoveMember(w http.ResponseWriter, r *http.Request, session Session) {
	vars := mux.Vars(r)
	if err := s.service.RemoveProjectMember(r.Context(), session, vars["id"], vars["userId"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "member removed")
}

func (s *HTTPServer) handleListProjectActivities(w http.ResponseWriter, r *http.Request, session Session) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	start, end, err := parseDateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payload, err := s.service.ListActivities(r.Context(), session, ActivityListInput{
		ProjectID: mux.Vars(r)["id"],
		StartDate: start,
		EndDate:   end,
		Page:      page,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleProjectReport(w http.ResponseWriter, r *http.Request, session Session) {
	format := report.Format(r.URL.Query().Get("format"))
	if format == "" {
		format = report.FormatHTML
	}
	result, err := s.service.ProjectReport(r.Context(), session, mux.Vars(r)["id"], format)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}
