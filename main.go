package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/api"
	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/jobs"
	"github.com/vrsandeep/beatvault/internal/ytdlp"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Initialize the core application components
	app, err := core.New()
	if err != nil {
		log.Fatalf("Fatal error during application setup: %v", err)
	}
	defer app.Close()
	app.Version = version
	logger := app.Logger

	// Register all available downloader providers here.
	core.RegisterProviders(app.Config)
	dl := app.Config.Downloader
	if v, err := ytdlp.New(dl.YtdlpPath, dl.CookiesPath, dl.AudioFormat).CheckAvailable(); err != nil {
		logger.Warn("yt-dlp is not available, YouTube sources will fail", zap.String("path", dl.YtdlpPath), zap.Error(err))
	} else {
		logger.Info("Found yt-dlp", zap.String("version", v))
	}

	go app.WsHub.Run()

	runner, err := jobs.StartJobs(app.Config.Scheduler.CheckIntervalSeconds, jobs.HolderCheck(app.Schedulers), logger.Named("jobs"))
	if err != nil {
		logger.Fatal("Could not start background jobs", zap.Error(err))
	}

	// Setup the API server
	server := api.NewServer(app)
	server.SetJobs(runner)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.Config.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start the server in a goroutine so it doesn't block.
	go func() {
		logger.Info("Starting web server", zap.String("addr", httpServer.Addr), zap.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Could not start server", zap.Error(err))
		}
	}()

	// Wait for an interrupt signal.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// In-flight runs are left to finish so their state is persisted.
	runner.Stop()
	server.Wait()
	logger.Info("Server exiting.")
}
