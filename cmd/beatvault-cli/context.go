package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vrsandeep/beatvault/internal/config"
	"github.com/vrsandeep/beatvault/internal/core"
	"github.com/vrsandeep/beatvault/internal/logging"
	"github.com/vrsandeep/beatvault/internal/scheduler"
)

type commandContext struct {
	configFlag *string
	open       func(path string) (*core.App, error)

	appOnce sync.Once
	app     *core.App
	appErr  error
	owned   bool
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag, open: openApp, owned: true}
}

// newCommandContextWithApp runs commands against an already open App,
// which the context will not close.
func newCommandContextWithApp(app *core.App) *commandContext {
	return &commandContext{open: func(string) (*core.App, error) { return app, nil }}
}

// openApp loads the config and opens the App with logs on stderr, keeping
// stdout for command output.
func openApp(path string) (*core.App, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log, "stderr")
	if err != nil {
		return nil, err
	}
	core.RegisterProviders(cfg)
	return core.Open(cfg, logger)
}

func (c *commandContext) ensureApp() (*core.App, error) {
	c.appOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		c.app, c.appErr = c.open(path)
	})
	return c.app, c.appErr
}

func (c *commandContext) withScheduler(ctx context.Context, fn func(*core.App, *scheduler.Scheduler) error) error {
	app, err := c.ensureApp()
	if err != nil {
		return err
	}
	sched, err := app.Schedulers.Get(ctx)
	if err != nil {
		return fmt.Errorf("load scheduler: %w", err)
	}
	return fn(app, sched)
}

func (c *commandContext) close() {
	if c.owned && c.app != nil {
		c.app.Close()
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
