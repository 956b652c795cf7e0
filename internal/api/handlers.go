package api

import (
	"context"
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"version": s.app.Version})
}

// handleHealth reports database reachability and whether the scheduler has
// been loaded. Only a database failure makes the service unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.PingContext(ctx); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
		return
	}

	_, initialized := s.schedulers.Peek()
	body := map[string]any{
		"status":    "ok",
		"scheduler": map[string]bool{"initialized": initialized},
	}
	if s.jobs != nil {
		body["check_job"] = s.jobs.Status()
	}
	RespondWithJSON(w, http.StatusOK, body)
}

// getListParams reads the pagination and filter query params shared by list endpoints.
func getListParams(r *http.Request) (page, limit int, source, search string) {
	q := r.URL.Query()
	page, _ = strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 0 // store default
	}
	return page, limit, q.Get("source"), q.Get("search")
}
