package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/vrsandeep/beatvault/internal/models"
)

const (
	DefaultIntervalHours = 24
	DefaultMaxLogEntries = 200
	DefaultStateKey      = "scheduler/state.json"
)

// DefaultState is the document used before anything has been saved.
func DefaultState(intervalHours int) models.SchedulerState {
	if intervalHours <= 0 {
		intervalHours = DefaultIntervalHours
	}
	return models.SchedulerState{
		Active:        false,
		NextRun:       nil,
		IntervalHours: intervalHours,
		Sources:       []models.Source{},
		Logs:          []models.LogEntry{},
	}
}

// Normalize repairs a loaded document so every invariant holds. A positive
// intervalHours overrides the stored interval.
func Normalize(state models.SchedulerState, intervalHours, maxLogEntries int, now time.Time) models.SchedulerState {
	out := state.Clone()
	if intervalHours > 0 {
		out.IntervalHours = intervalHours
	}
	if out.IntervalHours <= 0 {
		out.IntervalHours = DefaultIntervalHours
	}

	seen := make(map[string]bool, len(out.Sources))
	for i := range out.Sources {
		id := out.Sources[i].ID
		for id == "" || seen[id] {
			id = uuid.NewString()
		}
		out.Sources[i].ID = id
		seen[id] = true
	}

	switch {
	case out.Active && out.NextRun == nil:
		next := now.Add(time.Duration(out.IntervalHours) * time.Hour).UTC()
		out.NextRun = &next
	case !out.Active && out.NextRun != nil:
		out.NextRun = nil
	}

	out.Logs = trimLogs(out.Logs, maxLogEntries)
	return out
}

func trimLogs(logs []models.LogEntry, max int) []models.LogEntry {
	if max <= 0 {
		max = DefaultMaxLogEntries
	}
	if len(logs) <= max {
		return logs
	}
	trimmed := make([]models.LogEntry, max)
	copy(trimmed, logs[len(logs)-max:])
	return trimmed
}
