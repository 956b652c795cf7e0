// This file defines the scheduler's persisted document and its sub-objects.

package models

import "time"

// SourceType is the kind of external collection a Source points at.
type SourceType string

const (
	SourceTypeChannel  SourceType = "channel"
	SourceTypePlaylist SourceType = "playlist"
)

// Valid reports whether t is one of the supported source types.
func (t SourceType) Valid() bool {
	return t == SourceTypeChannel || t == SourceTypePlaylist
}

// Source is an external channel or playlist polled by the scheduler.
type Source struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Type        SourceType `json:"type"`
	Active      bool       `json:"active"`
	LastChecked *time.Time `json:"lastChecked"`
}

type LogType string

const (
	LogInfo    LogType = "info"
	LogError   LogType = "error"
	LogSuccess LogType = "success"
)

// LogEntry is one line of the scheduler's bounded log tail.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Type      LogType   `json:"type"`
	SourceID  *string   `json:"sourceId"`
}

// SchedulerState is the single document persisted for the scheduler.
// Active is false exactly when NextRun is nil.
type SchedulerState struct {
	Active        bool       `json:"active"`
	NextRun       *time.Time `json:"nextRun"`
	IntervalHours int        `json:"intervalHours"`
	Sources       []Source   `json:"sources"`
	Logs          []LogEntry `json:"logs"`
}

// Clone returns a deep copy so callers can't alias the scheduler's slices.
func (s SchedulerState) Clone() SchedulerState {
	out := s
	out.NextRun = cloneTime(s.NextRun)
	out.Sources = make([]Source, len(s.Sources))
	for i, src := range s.Sources {
		src.LastChecked = cloneTime(src.LastChecked)
		out.Sources[i] = src
	}
	out.Logs = make([]LogEntry, len(s.Logs))
	for i, entry := range s.Logs {
		if entry.SourceID != nil {
			id := *entry.SourceID
			entry.SourceID = &id
		}
		out.Logs[i] = entry
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RunSummary describes one finished run. It is kept in memory only.
type RunSummary struct {
	Trigger          string    `json:"trigger"` // "manual" or "schedule"
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	SourcesProcessed int       `json:"sourcesProcessed"`
	Downloaded       int       `json:"downloaded"`
	Duplicates       int       `json:"duplicates"`
	Failed           int       `json:"failed"`
}
