package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/scheduler"
)

const ScheduleCheckJob = "schedule-check"

// CheckFunc performs one due-check. A nil summary means nothing was due.
type CheckFunc func(ctx context.Context) (*models.RunSummary, error)

// HolderCheck resolves the scheduler through the holder on every tick, so a
// failed initialization is retried on the next one.
func HolderCheck(h *scheduler.Holder) CheckFunc {
	return func(ctx context.Context) (*models.RunSummary, error) {
		s, err := h.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("load scheduler: %w", err)
		}
		return s.CheckAndRun(ctx)
	}
}

type JobStatus struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"` // "idle", "running", "success", "skipped", "failed"
	Message   string    `json:"message"`
	Ticks     int       `json:"ticks"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// Runner owns the in-process gocron scheduler driving the due-check.
type Runner struct {
	cron   *gocron.Scheduler
	check  CheckFunc
	logger *zap.Logger

	mu     sync.Mutex
	status JobStatus
}

// StartJobs schedules the due-check every intervalSeconds. An interval of 0
// disables the in-process tick and returns a Runner with no jobs.
func StartJobs(intervalSeconds int, check CheckFunc, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		cron:   gocron.NewScheduler(time.UTC),
		check:  check,
		logger: logger,
		status: JobStatus{Name: ScheduleCheckJob, Status: "idle"},
	}
	r.cron.SingletonModeAll()

	if intervalSeconds <= 0 {
		logger.Info("Schedule check interval is 0, in-process triggering is disabled")
		r.status.Status = "disabled"
		return r, nil
	}

	logger.Info("Scheduling job", zap.String("job", ScheduleCheckJob), zap.Int("every_seconds", intervalSeconds))
	if _, err := r.cron.Every(intervalSeconds).Seconds().Do(r.tick); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", ScheduleCheckJob, err)
	}

	logger.Info("Starting background job scheduler")
	r.cron.StartAsync()
	return r, nil
}

func (r *Runner) tick() {
	r.setStatus(func(st *JobStatus) {
		st.Status = "running"
		st.Message = ""
		st.StartTime = time.Now().UTC()
		st.Ticks++
	})

	summary, err := r.check(context.Background())

	r.setStatus(func(st *JobStatus) {
		st.EndTime = time.Now().UTC()
		switch {
		case errors.Is(err, scheduler.ErrRunInProgress):
			st.Status = "skipped"
			st.Message = err.Error()
		case err != nil:
			st.Status = "failed"
			st.Message = err.Error()
		case summary == nil:
			st.Status = "skipped"
			st.Message = "not due"
		default:
			st.Status = "success"
			st.Message = fmt.Sprintf("%d new, %d duplicate, %d failed", summary.Downloaded, summary.Duplicates, summary.Failed)
		}
	})

	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		r.logger.Debug("Scheduled check skipped", zap.Error(err))
	case err != nil:
		r.logger.Error("Scheduled check failed", zap.String("job", ScheduleCheckJob), zap.Error(err))
	case summary != nil:
		r.logger.Info("Scheduled run finished",
			zap.Int("downloaded", summary.Downloaded),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("failed", summary.Failed))
	}
}

func (r *Runner) setStatus(fn func(*JobStatus)) {
	r.mu.Lock()
	fn(&r.status)
	r.mu.Unlock()
}

// Status returns a snapshot of the due-check job.
func (r *Runner) Status() JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Stop halts the tick. A check already in progress is left to finish.
func (r *Runner) Stop() {
	r.cron.Stop()
}
