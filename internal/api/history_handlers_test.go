package api_test

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/store"
	"github.com/vrsandeep/beatvault/internal/testutil"
)

func seedHistory(t *testing.T, app *core.App, n int) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		sourceID, ref := "src-a", "https://mocktube.test/channel/a"
		if i%2 == 1 {
			sourceID, ref = "src-b", "https://mocktube.test/playlist/b"
		}
		require.NoError(t, app.Store.RecordHistory(context.Background(), &models.HistoryRecord{
			ID:           fmt.Sprintf("h-%02d", i),
			SourceID:     sourceID,
			Source:       ref,
			ExternalID:   fmt.Sprintf("ext-%02d", i),
			Title:        fmt.Sprintf("Beat %02d", i),
			Artist:       "Producer",
			Status:       models.HistorySuccess,
			DownloadedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestGetHistory(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	seedHistory(t, app, 25)

	t.Run("second page", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodGet, "/api/scheduler/history?page=2&limit=10", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page := decode[store.HistoryPage](t, rr)
		assert.Equal(t, 25, page.Total)
		assert.Equal(t, 3, page.TotalPages)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 10, page.Limit)
		require.Len(t, page.Items, 10)
		assert.Equal(t, "h-14", page.Items[0].ID)
		for i := 1; i < len(page.Items); i++ {
			assert.False(t, page.Items[i].DownloadedAt.After(page.Items[i-1].DownloadedAt))
		}
	})

	t.Run("defaults", func(t *testing.T) {
		page := decode[store.HistoryPage](t, doJSON(t, router, http.MethodGet, "/api/scheduler/history?page=abc", nil))
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, store.DefaultHistoryPageSize, page.Limit)
	})

	t.Run("filters", func(t *testing.T) {
		page := decode[store.HistoryPage](t, doJSON(t, router, http.MethodGet, "/api/scheduler/history?source=src-b&limit=100", nil))
		assert.Equal(t, 12, page.Total)

		page = decode[store.HistoryPage](t, doJSON(t, router, http.MethodGet, "/api/scheduler/history?search=beat%2003", nil))
		require.Equal(t, 1, page.Total)
		assert.Equal(t, "h-03", page.Items[0].ID)
	})
}

func TestGetHistoryFallsBackToEmptyPage(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	require.NoError(t, app.DB.Close())

	rr := doJSON(t, router, http.MethodGet, "/api/scheduler/history", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"items":[],"total":0,"totalPages":0,"page":1,"limit":20}`, rr.Body.String())

	rr = doJSON(t, router, http.MethodGet, "/api/scheduler/history/sources", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = doJSON(t, router, http.MethodGet, "/api/scheduler/history/export", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetHistorySources(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	seedHistory(t, app, 4)

	rr := doJSON(t, router, http.MethodGet, "/api/scheduler/history/sources", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	sources := decode[[]models.HistorySource](t, rr)
	assert.ElementsMatch(t, []models.HistorySource{
		{SourceID: "src-a", Source: "https://mocktube.test/channel/a"},
		{SourceID: "src-b", Source: "https://mocktube.test/playlist/b"},
	}, sources)
}

func TestExportHistory(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	seedHistory(t, app, 3)

	rr := doJSON(t, router, http.MethodGet, "/api/scheduler/history/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv"))
	want := fmt.Sprintf(`attachment; filename="download-history-%s.csv"`, time.Now().UTC().Format("20060102"))
	assert.Equal(t, want, rr.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rr.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "h-02", rows[1][0])
}
