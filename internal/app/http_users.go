package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleListUsers(w http.ResponseWriter, r *http.Request, _ Session) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	query := r.URL.Query()
	var active *bool
	switch query.Get("active") {
	case "":
	case "true":
		v := true
		active = &v
	case "false":
		v := false
		active = &v
	default:
		writeFailure(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid filter",
			[]FieldError{{Field: "active", Message: "must be true or false"}})
		return
	}

	payload, err := s.service.ListUsers(r.Context(), UserListInput{
		Role:      query.Get("role"),
		Active:    active,
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

func (s *HTTPServer) handleCreateUser(w http.ResponseWriter, r *http.Request, _ Session) {
	var body CreateUserInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.CreateUser(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, user)
}

func (s *HTTPServer) handleGetUser(w http.ResponseWriter, r *http.Request, _ Session) {
	user, err := s.service.GetUser(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateUser(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateUserInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.UpdateUser(r.Context(), session, mux.Vars(r)["id"], body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (s *HTTPServer) handleDeleteUser(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteUser(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "user deleted")
}

func (s *HTTPServer) handleGetProfile(w http.ResponseWriter, r *http.Request, session Session) {
	user, err := s.service.GetUser(r.Context(), session.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (s *HTTPServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request, session Session) {
	var body UpdateProfileInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	user, err := s.service.UpdateProfile(r.Context(), session, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, user)
}

func (s *HTTPServer) handleChangePassword(w http.ResponseWriter, r *http.Request, session Session) {
	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ChangePassword(r.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}
