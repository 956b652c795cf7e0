package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vrsandeep/beatvault/internal/models"
)

const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// claim marks a run as started. With dueOnly set it does nothing unless the
// schedule is due, reporting false.
func (s *Scheduler) claim(dueOnly bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false, ErrRunInProgress
	}
	if dueOnly && !s.isDueLocked() {
		return false, nil
	}
	if s.opts.RunLock != nil {
		ok, err := s.opts.RunLock.TryLock()
		if err != nil {
			return false, fmt.Errorf("acquire run lock: %w", err)
		}
		if !ok {
			return false, fmt.Errorf("%w in another process", ErrRunInProgress)
		}
	}
	s.running = true
	return true, nil
}

func (s *Scheduler) release(summary *models.RunSummary) {
	s.mu.Lock()
	s.running = false
	if summary != nil {
		s.lastRun = summary
	}
	s.mu.Unlock()
	if s.opts.RunLock != nil {
		if err := s.opts.RunLock.Unlock(); err != nil {
			s.logger.Warn("Failed to release run lock", zap.Error(err))
		}
	}
}

// CheckAndRun runs if the schedule is due. It returns a nil summary when
// nothing was due.
func (s *Scheduler) CheckAndRun(ctx context.Context) (*models.RunSummary, error) {
	claimed, err := s.claim(true)
	if err != nil || !claimed {
		return nil, err
	}
	return s.run(ctx, TriggerSchedule)
}

// RunNow runs immediately without touching the schedule.
func (s *Scheduler) RunNow(ctx context.Context) (*models.RunSummary, error) {
	if _, err := s.claim(false); err != nil {
		return nil, err
	}
	return s.run(ctx, TriggerManual)
}

// StartRunNow claims the run synchronously and executes it in the background.
func (s *Scheduler) StartRunNow(ctx context.Context) error {
	if _, err := s.claim(false); err != nil {
		return err
	}
	s.background(ctx, TriggerManual)
	return nil
}

// StartCheck is the background form of CheckAndRun. It reports whether a run was started.
func (s *Scheduler) StartCheck(ctx context.Context) (bool, error) {
	claimed, err := s.claim(true)
	if err != nil || !claimed {
		return false, err
	}
	s.background(ctx, TriggerSchedule)
	return true, nil
}

func (s *Scheduler) background(ctx context.Context, trigger string) {
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.run(runCtx, trigger); err != nil {
			s.logger.Error("Background run finished with an error", zap.String("trigger", trigger), zap.Error(err))
		}
	}()
}

// run executes one pass over the active sources. The caller must have claimed the run.
func (s *Scheduler) run(ctx context.Context, trigger string) (summary *models.RunSummary, err error) {
	defer func() { s.release(summary) }()

	summary = &models.RunSummary{Trigger: trigger, StartedAt: s.now()}

	s.mu.Lock()
	var sources []models.Source
	for _, src := range s.state.Sources {
		if src.Active {
			sources = append(sources, src)
		}
	}
	start := s.appendLogLocked(models.LogInfo, fmt.Sprintf("Run started (%s) over %d active sources", trigger, len(sources)), "")
	s.mu.Unlock()
	s.publish(start)
	s.logger.Info("Run started", zap.String("trigger", trigger), zap.Int("sources", len(sources)))

	s.forEachSource(ctx, sources, func(src models.Source, outcomes []models.Outcome) {
		s.recordSource(ctx, src, outcomes, summary)
	})

	return summary, s.finish(ctx, trigger, sources, summary)
}

// forEachSource fetches sources with at most SourceConcurrency in flight and
// hands results to record in source order.
func (s *Scheduler) forEachSource(ctx context.Context, sources []models.Source, record func(models.Source, []models.Outcome)) {
	if s.opts.SourceConcurrency <= 1 || len(sources) <= 1 {
		for _, src := range sources {
			record(src, s.fetchSource(ctx, src))
		}
		return
	}

	results := make([][]models.Outcome, len(sources))
	done := make([]chan struct{}, len(sources))
	for i := range done {
		done[i] = make(chan struct{})
	}
	var g errgroup.Group
	g.SetLimit(s.opts.SourceConcurrency)
	go func() {
		for i, src := range sources {
			g.Go(func() error {
				defer close(done[i])
				results[i] = s.fetchSource(ctx, src)
				return nil
			})
		}
	}()
	for i, src := range sources {
		<-done[i]
		record(src, results[i])
	}
	_ = g.Wait()
}

// fetchSource calls the fetcher, turning a panic into a source failure.
func (s *Scheduler) fetchSource(ctx context.Context, src models.Source) (outcomes []models.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Fetcher panicked",
				zap.String("source_id", src.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			outcomes = []models.Outcome{models.SourceFailed(fmt.Sprintf("executor crashed: %v", r))}
		}
	}()
	return s.fetcher.Fetch(ctx, src.Source, models.FetchKind(src.Type))
}

func (s *Scheduler) recordSource(ctx context.Context, src models.Source, outcomes []models.Outcome, summary *models.RunSummary) {
	var downloaded, duplicates, failed int
	var entries []models.LogEntry

	for _, o := range outcomes {
		rec := &models.HistoryRecord{
			ID:           uuid.NewString(),
			SourceID:     src.ID,
			Source:       src.Source,
			ExternalID:   o.ExternalID,
			Title:        o.Title,
			Artist:       o.Artist,
			DownloadedAt: s.now(),
		}
		var entry *models.LogEntry
		switch o.Kind {
		case models.OutcomeDownloaded:
			downloaded++
			rec.Status = models.HistorySuccess
			e := s.logEntry(models.LogSuccess, fmt.Sprintf("Downloaded %s", describe(o)), src.ID)
			entry = &e
		case models.OutcomeDuplicate:
			duplicates++
			rec.Status = models.HistoryDuplicate
		default:
			failed++
			rec.Status = models.HistoryFailed
			reason := o.Reason
			if reason == "" {
				reason = "unknown error"
			}
			rec.ErrorDetail = &reason
			msg := fmt.Sprintf("Source %s failed: %s", src.Source, reason)
			if o.ExternalID != "" {
				msg = fmt.Sprintf("Failed to download %s: %s", describe(o), reason)
			}
			e := s.logEntry(models.LogError, msg, src.ID)
			entry = &e
		}
		if err := s.ledger.RecordHistory(ctx, rec); err != nil {
			s.logger.Error("Failed to record history",
				zap.String("source_id", src.ID),
				zap.String("external_id", o.ExternalID),
				zap.Error(err))
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}

	summaryLine := s.logEntry(models.LogInfo,
		fmt.Sprintf("Checked %s: %d new, %d duplicate, %d failed", src.Source, downloaded, duplicates, failed), src.ID)
	entries = append(entries, summaryLine)

	s.mu.Lock()
	for _, e := range entries {
		s.state.Logs = trimLogs(append(s.state.Logs, e), s.opts.MaxLogEntries)
	}
	summary.SourcesProcessed++
	summary.Downloaded += downloaded
	summary.Duplicates += duplicates
	summary.Failed += failed
	s.mu.Unlock()
	s.publish(entries...)

	s.logger.Info("Source checked",
		zap.String("source_id", src.ID),
		zap.String("source", src.Source),
		zap.Int("downloaded", downloaded),
		zap.Int("duplicates", duplicates),
		zap.Int("failed", failed))
}

func (s *Scheduler) logEntry(logType models.LogType, message, sourceID string) models.LogEntry {
	entry := models.LogEntry{Timestamp: s.now(), Message: message, Type: logType}
	if sourceID != "" {
		id := sourceID
		entry.SourceID = &id
	}
	return entry
}

func describe(o models.Outcome) string {
	name := o.Title
	if name == "" {
		name = o.ExternalID
	}
	if o.Artist != "" {
		return fmt.Sprintf("%q by %s", name, o.Artist)
	}
	return fmt.Sprintf("%q", name)
}

// finish stamps the processed sources, reschedules a scheduled run and
// persists the document once. A failed save keeps the in-memory result.
func (s *Scheduler) finish(ctx context.Context, trigger string, processed []models.Source, summary *models.RunSummary) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	finished := s.now()
	summary.FinishedAt = finished
	for _, src := range processed {
		if idx := s.indexOfLocked(src.ID); idx >= 0 {
			checked := finished
			s.state.Sources[idx].LastChecked = &checked
		}
	}
	if trigger == TriggerSchedule && s.state.Active {
		next := finished.Add(s.interval())
		s.state.NextRun = &next
	}
	done := s.appendLogLocked(models.LogInfo, fmt.Sprintf("Run finished in %s: %d new, %d duplicate, %d failed",
		finished.Sub(summary.StartedAt).Round(time.Second), summary.Downloaded, summary.Duplicates, summary.Failed), "")
	snapshot := s.state.Clone()
	s.mu.Unlock()

	err := s.persister.Save(context.WithoutCancel(ctx), s.opts.StateKey, snapshot)
	entries := []models.LogEntry{done}
	s.mu.Lock()
	if err != nil {
		s.persistErr = err.Error()
		entries = append(entries, s.appendLogLocked(models.LogError, fmt.Sprintf("Failed to save scheduler state: %v", err), ""))
	} else {
		s.persistErr = ""
	}
	s.mu.Unlock()
	s.publish(entries...)

	if err != nil {
		s.logger.Error("Failed to persist run result", zap.Error(err))
		return err
	}
	s.logger.Info("Run finished",
		zap.String("trigger", trigger),
		zap.Int("sources", summary.SourcesProcessed),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("duplicates", summary.Duplicates),
		zap.Int("failed", summary.Failed))
	return nil
}
