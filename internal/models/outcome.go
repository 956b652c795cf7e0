package models

type OutcomeKind string

const (
	OutcomeDownloaded OutcomeKind = "downloaded"
	OutcomeDuplicate  OutcomeKind = "duplicate"
	OutcomeFailed     OutcomeKind = "failed"
)

// Outcome is the per-item result of a fetch. A failure with an empty
// ExternalID applies to the source as a whole.
type Outcome struct {
	Kind       OutcomeKind `json:"kind"`
	ExternalID string      `json:"externalId,omitempty"`
	Title      string      `json:"title,omitempty"`
	Artist     string      `json:"artist,omitempty"`
	ObjectKey  string      `json:"objectKey,omitempty"`
	ExistingID string      `json:"existingId,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

func Downloaded(item RemoteItem, objectKey string) Outcome {
	return Outcome{Kind: OutcomeDownloaded, ExternalID: item.ExternalID, Title: item.Title, Artist: item.Artist, ObjectKey: objectKey}
}

func Duplicate(item RemoteItem, existingID string) Outcome {
	return Outcome{Kind: OutcomeDuplicate, ExternalID: item.ExternalID, Title: item.Title, Artist: item.Artist, ExistingID: existingID}
}

func Failed(item RemoteItem, reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, ExternalID: item.ExternalID, Title: item.Title, Artist: item.Artist, Reason: reason}
}

// SourceFailed is a failure covering the whole source.
func SourceFailed(reason string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason}
}
