package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/scheduler"
	"github.com/vrsandeep/beatvault/internal/store"
	"github.com/vrsandeep/beatvault/internal/testutil"
)

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestSchedulerStatus(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	rr := doJSON(t, router, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	status := decode[scheduler.StatusView](t, rr)
	assert.False(t, status.Active)
	assert.Nil(t, status.NextRun)
	assert.Equal(t, 24, status.Interval)
	assert.Empty(t, status.Sources)
	assert.False(t, status.Running)
	assert.Nil(t, status.PersistError)
}

func TestSchedulerStatusFallsBackWhenStateIsUnreadable(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()
	require.NoError(t, app.Bucket.Put(context.Background(), app.Config.Scheduler.StateKey, []byte("{not json")))

	rr := doJSON(t, router, http.MethodGet, "/api/scheduler/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decode[scheduler.StatusView](t, rr)
	assert.False(t, status.Active)
	assert.Empty(t, status.Sources)

	// Mutations fail loudly instead.
	rr = doJSON(t, router, http.MethodPost, "/api/scheduler/toggle", map[string]bool{"active": true})
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "not json")
}

func TestSchedulerToggle(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	t.Run("missing active", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/scheduler/toggle", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/scheduler/toggle", bytes.NewBufferString("{"))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("on then off", func(t *testing.T) {
		before := time.Now()
		rr := doJSON(t, router, http.MethodPost, "/api/scheduler/toggle", map[string]bool{"active": true})
		require.Equal(t, http.StatusOK, rr.Code)
		body := decode[struct {
			Active  bool       `json:"active"`
			NextRun *time.Time `json:"nextRun"`
		}](t, rr)
		assert.True(t, body.Active)
		require.NotNil(t, body.NextRun)
		assert.WithinDuration(t, before.Add(24*time.Hour), *body.NextRun, time.Minute)

		rr = doJSON(t, router, http.MethodPost, "/api/scheduler/toggle", map[string]bool{"active": false})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"active":false,"nextRun":null}`, rr.Body.String())
	})
}

func TestSchedulerSources(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()

	var created models.Source
	t.Run("add", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPost, "/api/scheduler/sources", map[string]string{
			"source": "https://mocktube.test/channel/lofi",
			"type":   "channel",
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		created = decode[models.Source](t, rr)
		assert.NotEmpty(t, created.ID)
		assert.True(t, created.Active)
		assert.Nil(t, created.LastChecked)
	})

	t.Run("add rejects bad input", func(t *testing.T) {
		cases := []map[string]string{
			{"type": "channel"},
			{"source": "https://mocktube.test/channel/lofi"},
			{"source": "https://mocktube.test/channel/lofi", "type": "album"},
			{"source": "https://example.com/channel/lofi", "type": "channel"},
			{"source": "https://mocktube.test/playlist/mix", "type": "channel"},
		}
		for _, body := range cases {
			rr := doJSON(t, router, http.MethodPost, "/api/scheduler/sources", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, "body %v", body)
			assert.Contains(t, rr.Body.String(), "error")
		}
	})

	t.Run("patch", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodPatch, "/api/scheduler/sources", map[string]any{"id": created.ID, "active": false})
		require.Equal(t, http.StatusOK, rr.Code)
		updated := decode[models.Source](t, rr)
		assert.False(t, updated.Active)
		assert.Equal(t, created.Source, updated.Source)

		rr = doJSON(t, router, http.MethodPatch, "/api/scheduler/sources", map[string]any{"active": true})
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = doJSON(t, router, http.MethodPatch, "/api/scheduler/sources", map[string]any{"id": "nope", "active": true})
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr = doJSON(t, router, http.MethodPatch, "/api/scheduler/sources", map[string]any{"id": created.ID, "type": "album"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rr := doJSON(t, router, http.MethodDelete, "/api/scheduler/sources", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr = doJSON(t, router, http.MethodDelete, "/api/scheduler/sources?id=nope", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.JSONEq(t, `{"success":false,"error":"Source not found"}`, rr.Body.String())

		rr = doJSON(t, router, http.MethodDelete, "/api/scheduler/sources?id="+created.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"success":true}`, rr.Body.String())
	})

	sched, ok := app.Schedulers.Peek()
	require.True(t, ok)
	assert.Empty(t, sched.Sources())
}

func TestSchedulerRun(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()

	rr := doJSON(t, router, http.MethodPost, "/api/scheduler/sources", map[string]string{
		"source": "https://mocktube.test/channel/lofi?items=3",
		"type":   "channel",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/api/scheduler/run", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	app.Schedulers.Wait()

	status := decode[scheduler.StatusView](t, doJSON(t, router, http.MethodGet, "/api/scheduler/status", nil))
	assert.False(t, status.Running)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, scheduler.TriggerManual, status.LastRun.Trigger)
	assert.Equal(t, 3, status.LastRun.Downloaded)
	require.Len(t, status.Sources, 1)
	assert.NotNil(t, status.Sources[0].LastChecked)
	// A manual run leaves the schedule alone.
	assert.False(t, status.Active)
	assert.Nil(t, status.NextRun)

	page, err := app.Store.QueryHistory(context.Background(), store.HistoryQuery{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
}

func TestSchedulerRunConflictsWithOtherProcess(t *testing.T) {
	server, app := testutil.SetupTestServer(t)
	router := server.Router()

	lockPath := filepath.Join(t.TempDir(), "run.lock")
	app.Config.Scheduler.RunLockPath = lockPath
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	rr := doJSON(t, router, http.MethodPost, "/api/scheduler/run", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	require.NoError(t, other.Unlock())
	rr = doJSON(t, router, http.MethodPost, "/api/scheduler/run", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
	app.Schedulers.Wait()
}

// seedDueState writes a scheduler document whose next run is already past.
func seedDueState(t *testing.T, app *core.App) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Hour)
	state := models.SchedulerState{
		Active:        true,
		NextRun:       &past,
		IntervalHours: 24,
		Sources: []models.Source{
			{ID: "src-1", Source: "https://mocktube.test/playlist/mix?items=2", Type: models.SourceTypePlaylist, Active: true},
		},
		Logs: []models.LogEntry{},
	}
	require.NoError(t, app.States.Save(context.Background(), app.Config.Scheduler.StateKey, state))
}

func TestSchedulerCheck(t *testing.T) {
	t.Run("runs when due", func(t *testing.T) {
		server, app := testutil.SetupTestServer(t)
		router := server.Router()
		seedDueState(t, app)

		rr := doJSON(t, router, http.MethodPost, "/api/scheduler/check", nil)
		require.Equal(t, http.StatusAccepted, rr.Code)
		server.Wait()

		status := app.Schedulers.StatusOrDefault()
		require.NotNil(t, status.LastRun)
		assert.Equal(t, scheduler.TriggerSchedule, status.LastRun.Trigger)
		assert.Equal(t, 2, status.LastRun.Downloaded)
		require.NotNil(t, status.NextRun)
		assert.True(t, status.NextRun.After(time.Now().Add(23*time.Hour)))
	})

	t.Run("not due does nothing", func(t *testing.T) {
		server, app := testutil.SetupTestServer(t)
		router := server.Router()

		rr := doJSON(t, router, http.MethodGet, "/api/scheduler/check", nil)
		require.Equal(t, http.StatusAccepted, rr.Code)
		server.Wait()

		status := app.Schedulers.StatusOrDefault()
		assert.Nil(t, status.LastRun)
	})

	t.Run("cron secret", func(t *testing.T) {
		server, app := testutil.SetupTestServer(t)
		app.Config.Scheduler.CronSecret = "s3cret"
		router := server.Router()

		rr := doJSON(t, router, http.MethodPost, "/api/scheduler/check", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		req := httptest.NewRequest(http.MethodPost, "/api/scheduler/check", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)

		req = httptest.NewRequest(http.MethodGet, "/api/scheduler/check", nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusAccepted, rr.Code)
		server.Wait()
	})
}
