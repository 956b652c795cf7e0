// Handlers for the acquisition scheduler: status, toggle, runs and source CRUD.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/scheduler"
)

// kindError is implemented by errors that classify themselves, such as
// validation and store failures.
type kindError interface {
	ErrorKind() string
}

// respondSchedulerError maps scheduler errors onto HTTP statuses. Messages of
// 5xx responses are generic; the cause goes to the log.
func (s *Server) respondSchedulerError(w http.ResponseWriter, op string, err error) {
	var verr *scheduler.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondWithError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, scheduler.ErrSourceNotFound):
		RespondWithError(w, http.StatusNotFound, "Source not found")
	case errors.Is(err, scheduler.ErrRunInProgress):
		RespondWithError(w, http.StatusConflict, "A run is already in progress")
	default:
		s.logger.Error("Scheduler request failed", zap.String("op", op), zap.Error(err))
		var kerr kindError
		if errors.As(err, &kerr) && kerr.ErrorKind() == "store" {
			RespondWithError(w, http.StatusInternalServerError, "Scheduler state store unavailable")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Scheduler unavailable")
	}
}

// loadScheduler resolves the process scheduler, writing a 500 when it cannot be loaded.
func (s *Server) loadScheduler(w http.ResponseWriter, r *http.Request) (*scheduler.Scheduler, bool) {
	sched, err := s.schedulers.Get(r.Context())
	if err != nil {
		s.respondSchedulerError(w, "load", err)
		return nil, false
	}
	return sched, true
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	sched, err := s.schedulers.Get(r.Context())
	if err != nil {
		// Status is best effort so the rest of the storefront keeps working.
		s.logger.Warn("Serving default scheduler status", zap.Error(err))
		RespondWithJSON(w, http.StatusOK, s.schedulers.StatusOrDefault())
		return
	}
	RespondWithJSON(w, http.StatusOK, sched.Status())
}

func (s *Server) handleSchedulerToggle(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Active == nil {
		RespondWithError(w, http.StatusBadRequest, "active is required")
		return
	}

	sched, ok := s.loadScheduler(w, r)
	if !ok {
		return
	}
	state, err := sched.ToggleActive(r.Context(), *payload.Active)
	if err != nil {
		s.respondSchedulerError(w, "toggle", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"active":  state.Active,
		"nextRun": state.NextRun,
	})
}

func (s *Server) handleSchedulerRun(w http.ResponseWriter, r *http.Request) {
	sched, ok := s.loadScheduler(w, r)
	if !ok {
		return
	}
	if err := sched.StartRunNow(r.Context()); err != nil {
		s.respondSchedulerError(w, "run", err)
		return
	}
	RespondWithMessage(w, http.StatusAccepted, "Run started")
}

// handleSchedulerCheck is the cron ping. It never waits for the scheduler or
// the run, and always answers 202.
func (s *Server) handleSchedulerCheck(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	s.checks.Add(1)
	go func() {
		defer s.checks.Done()
		sched, err := s.schedulers.Get(ctx)
		if err != nil {
			s.logger.Error("Cron check could not load scheduler", zap.Error(err))
			return
		}
		summary, err := sched.CheckAndRun(ctx)
		switch {
		case errors.Is(err, scheduler.ErrRunInProgress):
			s.logger.Info("Cron check skipped, run in progress")
		case err != nil:
			s.logger.Error("Cron check failed", zap.Error(err))
		case summary == nil:
			s.logger.Debug("Cron check: schedule not due")
		default:
			s.logger.Info("Cron check finished a run",
				zap.Int("downloaded", summary.Downloaded),
				zap.Int("duplicates", summary.Duplicates),
				zap.Int("failed", summary.Failed),
				zap.Duration("took", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond)))
		}
	}()
	RespondWithMessage(w, http.StatusAccepted, "Check scheduled")
}

// SourcePayload is the body for adding or patching a source.
type SourcePayload struct {
	ID     string             `json:"id"`
	Source *string            `json:"source"`
	Type   *models.SourceType `json:"type"`
	Active *bool              `json:"active"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var payload SourcePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Source == nil || strings.TrimSpace(*payload.Source) == "" {
		RespondWithError(w, http.StatusBadRequest, "source is required")
		return
	}
	if payload.Type == nil {
		RespondWithError(w, http.StatusBadRequest, "type is required")
		return
	}

	sched, ok := s.loadScheduler(w, r)
	if !ok {
		return
	}
	src, err := sched.AddSource(r.Context(), *payload.Source, *payload.Type)
	if err != nil {
		s.respondSchedulerError(w, "add source", err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	var payload SourcePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if strings.TrimSpace(payload.ID) == "" {
		RespondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	sched, ok := s.loadScheduler(w, r)
	if !ok {
		return
	}
	src, err := sched.UpdateSource(r.Context(), payload.ID, scheduler.SourcePatch{
		Active: payload.Active,
		Source: payload.Source,
		Type:   payload.Type,
	})
	if err != nil {
		s.respondSchedulerError(w, "update source", err)
		return
	}
	RespondWithJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		RespondWithError(w, http.StatusBadRequest, "id is required")
		return
	}

	sched, ok := s.loadScheduler(w, r)
	if !ok {
		return
	}
	deleted, err := sched.DeleteSource(r.Context(), id)
	if err != nil {
		s.respondSchedulerError(w, "delete source", err)
		return
	}
	respondDeleted(w, deleted)
}
