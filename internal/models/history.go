package models

import "time"

type HistoryStatus string

const (
	HistorySuccess   HistoryStatus = "success"
	HistoryFailed    HistoryStatus = "failed"
	HistoryDuplicate HistoryStatus = "duplicate"
)

// HistoryRecord is one download attempt in the ledger. Records are never updated.
type HistoryRecord struct {
	ID           string        `json:"id"`
	SourceID     string        `json:"sourceId"`
	Source       string        `json:"source"`
	ExternalID   string        `json:"externalId"`
	Title        string        `json:"title"`
	Artist       string        `json:"artist"`
	DownloadedAt time.Time     `json:"downloadedAt"`
	Status       HistoryStatus `json:"status"`
	ErrorDetail  *string       `json:"errorDetail"`
}

// HistorySource is a distinct source seen in the ledger, for filter UIs.
type HistorySource struct {
	SourceID string `json:"sourceId"`
	Source   string `json:"source"`
}

// AcquiredItem is an entry in the downloader's dedup index.
type AcquiredItem struct {
	ProviderID  string    `json:"providerId"`
	ExternalID  string    `json:"externalId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	ObjectKey   string    `json:"objectKey"`
	ContentHash string    `json:"contentHash"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}
