// Shared test app and server setup used by API and job tests.

package testutil

import (
	"testing"

	"github.com/vrsandeep/beatvault/internal/api"
	"github.com/vrsandeep/beatvault/internal/config"
	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/downloader/providers"
	"github.com/vrsandeep/beatvault/internal/downloader/providers/mocktube"
	"github.com/vrsandeep/beatvault/internal/objectstore"
)

// SetupTestApp builds an App over an in-memory database and bucket with the
// mocktube provider registered. The websocket hub is running.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()
	database := SetupTestDB(t)

	cfg := config.Default()
	cfg.Storage.Driver = "memory"
	cfg.Downloader.WorkDir = t.TempDir()
	cfg.Downloader.EnableMockProvider = true
	cfg.Scheduler.CheckIntervalSeconds = 0

	bucket, err := objectstore.Open(objectstore.Options{Driver: "memory"})
	if err != nil {
		t.Fatalf("Failed to open memory bucket: %v", err)
	}

	app := core.Assemble(cfg, database, bucket, nil)
	app.Version = "test"
	go app.WsHub.Run()

	// Register providers for the test environment
	providers.Register(mocktube.New())

	t.Cleanup(func() {
		app.Schedulers.Wait()
		app.WsHub.Stop()
		providers.UnregisterAll()
	})
	return app
}

// SetupTestServer initializes a full core.App and api.Server for integration testing.
func SetupTestServer(t *testing.T) (*api.Server, *core.App) {
	t.Helper()
	app := SetupTestApp(t)
	server := api.NewServer(app)
	t.Cleanup(server.Wait)
	return server, app
}
