package app

import "net/http"

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Register(r.Context(), body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	result, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request, _ Session) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}

func (s *HTTPServer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	devToken, err := s.service.ForgotPassword(r.Context(), body.Email)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	// The response shape is constant whether or not the email exists.
	if devToken != "" {
		writeSuccess(w, http.StatusOK, map[string]any{"resetToken": devToken})
		return
	}
	writeMessage(w, http.StatusOK, "if the account exists, a reset email was sent")
}

func (s *HTTPServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.ResetPassword(r.Context(), body.Token, body.NewPassword); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}
