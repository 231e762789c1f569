package app

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleListNotifications(w http.ResponseWriter, r *http.Request, session Session) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"
	payload, err := s.service.ListNotifications(r.Context(), session, unreadOnly, page)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, payload)
}

func (s *HTTPServer) handleUnreadCount(w http.ResponseWriter, r *http.Request, session Session) {
	count, err := s.service.UnreadNotificationCount(r.Context(), session)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"count": count})
}

func (s *HTTPServer) handleMarkRead(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.MarkNotificationRead(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "notification read")
}

func (s *HTTPServer) handleMarkAllRead(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.MarkAllNotificationsRead(r.Context(), session); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "all notifications read")
}

func (s *HTTPServer) handleDeleteNotification(w http.ResponseWriter, r *http.Request, session Session) {
	if err := s.service.DeleteNotification(r.Context(), session, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "notification deleted")
}
