package app

import "net/http"

func (s *HTTPServer) handleDashboard(w http.ResponseWriter, r *http.Request, session Session) {
	start, end, err := parseDateRange(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.service.Dashboard(r.Context(), session, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleListActivities(w http.ResponseWriter, r *http.Request, session Session) {
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
		ActorID:   r.URL.Query().Get("actorId"),
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

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	page, err := parsePage(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query := r.URL.Query()
	response, err := s.service.Search(r.Context(), session, SearchInput{
		Text: query.Get("q"),
		Type: query.Get("type"),
		Page: page,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAssistGenerate(w http.ResponseWriter, r *http.Request, _ Session) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	text, err := s.service.GenerateText(r.Context(), body.Prompt)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"text": text})
}
