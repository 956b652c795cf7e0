// Handlers for the download history ledger.

package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/store"
)

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	page, limit, source, search := getListParams(r)
	result, err := s.store.QueryHistory(r.Context(), store.HistoryQuery{
		Page:     page,
		PageSize: limit,
		SourceID: source,
		Search:   search,
	})
	if err != nil {
		s.logger.Error("Failed to query history", zap.Error(err))
		if limit == 0 {
			limit = store.DefaultHistoryPageSize
		}
		result = &store.HistoryPage{Items: []*models.HistoryRecord{}, Page: page, Limit: limit}
	}
	RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetHistorySources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListHistorySources(r.Context())
	if err != nil {
		s.logger.Error("Failed to list history sources", zap.Error(err))
		sources = []models.HistorySource{}
	}
	RespondWithJSON(w, http.StatusOK, sources)
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	// Buffer so a failure can still be reported with a proper status.
	var buf bytes.Buffer
	if err := s.store.ExportHistoryCSV(r.Context(), &buf); err != nil {
		s.logger.Error("Failed to export history", zap.Error(err))
		RespondWithError(w, http.StatusInternalServerError, "Failed to export history")
		return
	}

	filename := fmt.Sprintf("download-history-%s.csv", time.Now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
