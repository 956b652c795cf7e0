// Package scheduler owns the acquisition schedule: the source list, the
// active toggle, the next-run time and the bounded log tail. It drives runs
// over the active sources and persists the whole document after every change.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/models"
)

// Fetcher downloads the new items of one source.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, kind models.FetchKind) []models.Outcome
}

// Ledger receives one record per download attempt.
type Ledger interface {
	RecordHistory(ctx context.Context, rec *models.HistoryRecord) error
}

// Persister writes the whole scheduler document.
type Persister interface {
	Save(ctx context.Context, key string, doc any) error
}

// Notifier is told about every log entry as it is appended.
type Notifier interface {
	Publish(entry models.LogEntry)
}

// RunLock guards runs across processes on one host.
type RunLock interface {
	TryLock() (bool, error)
	Unlock() error
}

type Options struct {
	MaxLogEntries     int
	StateKey          string
	SourceConcurrency int
	// Validator checks that a reference belongs to a supported platform.
	Validator func(ref string, sourceType models.SourceType) error
	Notifier  Notifier
	RunLock   RunLock
	Logger    *zap.Logger
	Now       func() time.Time
}

// StatusView is the status document returned to callers.
type StatusView struct {
	Active       bool               `json:"active"`
	NextRun      *time.Time         `json:"nextRun"`
	Interval     int                `json:"interval"`
	Sources      []models.Source    `json:"sources"`
	Logs         []models.LogEntry  `json:"logs"`
	Running      bool               `json:"running"`
	LastRun      *models.RunSummary `json:"lastRun"`
	PersistError *string            `json:"persistError"`
}

// DefaultStatus is reported while no scheduler has been loaded.
func DefaultStatus(intervalHours int) StatusView {
	return viewOf(DefaultState(intervalHours))
}

func viewOf(state models.SchedulerState) StatusView {
	return StatusView{
		Active:   state.Active,
		NextRun:  state.NextRun,
		Interval: state.IntervalHours,
		Sources:  state.Sources,
		Logs:     state.Logs,
	}
}

// SourcePatch lists the fields to change on a source. Nil fields are left alone.
type SourcePatch struct {
	Active *bool
	Source *string
	Type   *models.SourceType
}

type Scheduler struct {
	// saveMu orders document writes. It is taken before mu, never after.
	saveMu     sync.Mutex
	mu         sync.Mutex
	state      models.SchedulerState
	running    bool
	lastRun    *models.RunSummary
	persistErr string

	fetcher   Fetcher
	ledger    Ledger
	persister Persister
	opts      Options
	logger    *zap.Logger

	wg sync.WaitGroup
}

// New builds a scheduler around an already loaded document.
func New(state models.SchedulerState, fetcher Fetcher, ledger Ledger, persister Persister, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxLogEntries <= 0 {
		opts.MaxLogEntries = DefaultMaxLogEntries
	}
	if opts.StateKey == "" {
		opts.StateKey = DefaultStateKey
	}
	if opts.SourceConcurrency <= 0 {
		opts.SourceConcurrency = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		state:     Normalize(state, 0, opts.MaxLogEntries, opts.Now()),
		fetcher:   fetcher,
		ledger:    ledger,
		persister: persister,
		opts:      opts,
		logger:    logger.Named("scheduler"),
	}
}

func (s *Scheduler) now() time.Time {
	return s.opts.Now().UTC()
}

// Status returns a copy of the current state plus the transient run fields.
func (s *Scheduler) Status() StatusView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := viewOf(s.state.Clone())
	view.Running = s.running
	if s.lastRun != nil {
		summary := *s.lastRun
		view.LastRun = &summary
	}
	if s.persistErr != "" {
		msg := s.persistErr
		view.PersistError = &msg
	}
	return view
}

// State returns a deep copy of the persisted document.
func (s *Scheduler) State() models.SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Scheduler) Sources() []models.Source {
	return s.State().Sources
}

func (s *Scheduler) Logs() []models.LogEntry {
	return s.State().Logs
}

// Running reports whether a run is in flight in this process.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// IsDue reports whether an automatic run should fire now.
func (s *Scheduler) IsDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isDueLocked()
}

func (s *Scheduler) isDueLocked() bool {
	return s.state.Active && s.state.NextRun != nil && !s.now().Before(*s.state.NextRun)
}

// appendLogLocked adds an entry to the tail, evicting the oldest past the cap.
func (s *Scheduler) appendLogLocked(logType models.LogType, message string, sourceID string) models.LogEntry {
	entry := models.LogEntry{Timestamp: s.now(), Message: message, Type: logType}
	if sourceID != "" {
		id := sourceID
		entry.SourceID = &id
	}
	s.state.Logs = trimLogs(append(s.state.Logs, entry), s.opts.MaxLogEntries)
	return entry
}

func (s *Scheduler) publish(entries ...models.LogEntry) {
	if s.opts.Notifier == nil {
		return
	}
	for _, e := range entries {
		s.opts.Notifier.Publish(e)
	}
}

// mutate applies fn to the state and persists the result. The save runs on
// a snapshot so readers are not blocked by a slow bucket. When the save fails
// the change is undone and the error returned.
func (s *Scheduler) mutate(ctx context.Context, fn func() ([]models.LogEntry, error)) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	prev := s.state.Clone()
	entries, err := fn()
	if err != nil {
		s.state = prev
		s.mu.Unlock()
		return err
	}
	snapshot := s.state.Clone()
	s.mu.Unlock()

	if err := s.persister.Save(ctx, s.opts.StateKey, snapshot); err != nil {
		s.mu.Lock()
		// A run may have logged while the save was in flight; keep those lines.
		prev.Logs = withoutEntries(s.state.Logs, entries)
		s.state = prev
		s.mu.Unlock()
		s.logger.Error("Failed to persist scheduler state", zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.persistErr = ""
	s.mu.Unlock()
	s.publish(entries...)
	return nil
}

func withoutEntries(logs []models.LogEntry, drop []models.LogEntry) []models.LogEntry {
	out := make([]models.LogEntry, 0, len(logs))
	for _, entry := range logs {
		dropped := false
		for _, d := range drop {
			if sameEntry(entry, d) {
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, entry)
		}
	}
	return out
}

func sameEntry(a, b models.LogEntry) bool {
	if !a.Timestamp.Equal(b.Timestamp) || a.Message != b.Message || a.Type != b.Type {
		return false
	}
	if a.SourceID == nil || b.SourceID == nil {
		return a.SourceID == b.SourceID
	}
	return *a.SourceID == *b.SourceID
}

// ToggleActive turns automatic runs on or off. Turning on schedules the next
// run one interval from now. Toggling into the current state changes nothing.
func (s *Scheduler) ToggleActive(ctx context.Context, active bool) (models.SchedulerState, error) {
	s.mu.Lock()
	unchanged := s.state.Active == active
	s.mu.Unlock()
	if unchanged {
		return s.State(), nil
	}

	err := s.mutate(ctx, func() ([]models.LogEntry, error) {
		if s.state.Active == active {
			return nil, nil
		}
		s.state.Active = active
		if !active {
			s.state.NextRun = nil
			return []models.LogEntry{s.appendLogLocked(models.LogInfo, "Scheduler deactivated", "")}, nil
		}
		next := s.now().Add(s.interval())
		s.state.NextRun = &next
		msg := fmt.Sprintf("Scheduler activated, next run at %s", next.Format(time.RFC3339))
		return []models.LogEntry{s.appendLogLocked(models.LogInfo, msg, "")}, nil
	})
	if err != nil {
		return models.SchedulerState{}, err
	}
	return s.State(), nil
}

func (s *Scheduler) interval() time.Duration {
	return time.Duration(s.state.IntervalHours) * time.Hour
}

func (s *Scheduler) validateSource(ref string, sourceType models.SourceType) error {
	if !sourceType.Valid() {
		return invalid("type", "%q is not supported, use %q or %q", sourceType, models.SourceTypeChannel, models.SourceTypePlaylist)
	}
	if ref == "" {
		return invalid("source", "a source reference is required")
	}
	if s.opts.Validator != nil {
		if err := s.opts.Validator(ref, sourceType); err != nil {
			return invalid("source", "%s", err.Error())
		}
	}
	return nil
}

func (s *Scheduler) indexOfLocked(id string) int {
	for i, src := range s.state.Sources {
		if src.ID == id {
			return i
		}
	}
	return -1
}

func (s *Scheduler) newIDLocked() string {
	for {
		id := uuid.NewString()
		if s.indexOfLocked(id) < 0 {
			return id
		}
	}
}

// AddSource appends an active source with a fresh id.
func (s *Scheduler) AddSource(ctx context.Context, ref string, sourceType models.SourceType) (models.Source, error) {
	ref = strings.TrimSpace(ref)
	if err := s.validateSource(ref, sourceType); err != nil {
		return models.Source{}, err
	}
	var created models.Source
	err := s.mutate(ctx, func() ([]models.LogEntry, error) {
		created = models.Source{ID: s.newIDLocked(), Source: ref, Type: sourceType, Active: true}
		s.state.Sources = append(s.state.Sources, created)
		entry := s.appendLogLocked(models.LogInfo, fmt.Sprintf("Added %s source %s", sourceType, ref), created.ID)
		return []models.LogEntry{entry}, nil
	})
	if err != nil {
		return models.Source{}, err
	}
	return created, nil
}

// UpdateSource merges patch into the source with the given id. Only the
// fields set in patch are written, on top of the source as it is when the
// change commits.
func (s *Scheduler) UpdateSource(ctx context.Context, id string, patch SourcePatch) (models.Source, error) {
	if strings.TrimSpace(id) == "" {
		return models.Source{}, invalid("id", "a source id is required")
	}
	if patch.Source != nil {
		ref := strings.TrimSpace(*patch.Source)
		patch.Source = &ref
	}
	retargets := patch.Source != nil || patch.Type != nil

	// Validate against a snapshot without holding the lock.
	var checkedRef string
	var checkedType models.SourceType
	if retargets {
		s.mu.Lock()
		idx := s.indexOfLocked(id)
		var current models.Source
		if idx >= 0 {
			current = s.state.Sources[idx]
		}
		s.mu.Unlock()
		if idx < 0 {
			return models.Source{}, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		checkedRef, checkedType = patch.apply(current)
		if err := s.validateSource(checkedRef, checkedType); err != nil {
			return models.Source{}, err
		}
	}

	var updated models.Source
	err := s.mutate(ctx, func() ([]models.LogEntry, error) {
		idx := s.indexOfLocked(id)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		src := &s.state.Sources[idx]
		if retargets {
			ref, sourceType := patch.apply(*src)
			// Another update changed the untouched field meanwhile.
			if ref != checkedRef || sourceType != checkedType {
				if err := s.validateSource(ref, sourceType); err != nil {
					return nil, err
				}
			}
			src.Source = ref
			src.Type = sourceType
		}
		if patch.Active != nil {
			src.Active = *patch.Active
		}
		updated = *src
		updated.LastChecked = cloneTime(src.LastChecked)
		state := "enabled"
		if !src.Active {
			state = "disabled"
		}
		entry := s.appendLogLocked(models.LogInfo, fmt.Sprintf("Updated source %s (%s)", src.Source, state), id)
		return []models.LogEntry{entry}, nil
	})
	if err != nil {
		return models.Source{}, err
	}
	return updated, nil
}

// apply returns the reference and type src would have with the patch applied.
func (p SourcePatch) apply(src models.Source) (string, models.SourceType) {
	ref, sourceType := src.Source, src.Type
	if p.Source != nil {
		ref = *p.Source
	}
	if p.Type != nil {
		sourceType = *p.Type
	}
	return ref, sourceType
}

// DeleteSource removes the source with the given id. It reports false when
// no such source exists.
func (s *Scheduler) DeleteSource(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	found := s.indexOfLocked(id) >= 0
	s.mu.Unlock()
	if !found {
		return false, nil
	}

	deleted := false
	err := s.mutate(ctx, func() ([]models.LogEntry, error) {
		idx := s.indexOfLocked(id)
		if idx < 0 {
			return nil, nil
		}
		removed := s.state.Sources[idx]
		s.state.Sources = append(s.state.Sources[:idx:idx], s.state.Sources[idx+1:]...)
		deleted = true
		entry := s.appendLogLocked(models.LogInfo, fmt.Sprintf("Removed source %s", removed.Source), id)
		return []models.LogEntry{entry}, nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// Wait blocks until every background run started by this scheduler has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
