package models

import (
	"context"
	"time"
)

// FetchKind tells a provider how to interpret a source reference.
type FetchKind string

const (
	FetchSingle   FetchKind = "single"
	FetchChannel  FetchKind = "channel"
	FetchPlaylist FetchKind = "playlist"
)

// ProviderInfo contains static information about a provider.
type ProviderInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RemoteItem is a single downloadable item enumerated from a source.
type RemoteItem struct {
	ExternalID string `json:"externalId"` // stable platform id, never the title
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	URL        string `json:"url"`
}

// DownloadedFile is a finished download sitting in the executor's work dir.
type DownloadedFile struct {
	Path       string
	ExternalID string
	Title      string
	Artist     string
	Duration   time.Duration
}

// Provider defines the contract that every media platform connector must implement.
type Provider interface {
	GetInfo() ProviderInfo
	// Matches reports whether ref belongs to this platform.
	Matches(ref string) bool
	ValidateSource(ref string, kind FetchKind) error
	ListItems(ctx context.Context, ref string, kind FetchKind) ([]RemoteItem, error)
	DownloadItem(ctx context.Context, item RemoteItem, destDir string) (*DownloadedFile, error)
}
