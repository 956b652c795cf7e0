package downloader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vrsandeep/beatvault/internal/downloader/providers"
	"github.com/vrsandeep/beatvault/internal/models"
	"github.com/vrsandeep/beatvault/internal/objectstore"
)

const (
	DefaultSourceTimeout = 30 * time.Minute
	DefaultMaxItems      = 25
	DefaultMediaPrefix   = "beats"
)

// ArchiveIndex remembers which items were already acquired.
type ArchiveIndex interface {
	GetAcquiredItem(ctx context.Context, providerID, externalID string) (*models.AcquiredItem, error)
	FindAcquiredByHash(ctx context.Context, contentHash string) (*models.AcquiredItem, error)
	MarkAcquired(ctx context.Context, item *models.AcquiredItem) (bool, error)
}

type Options struct {
	WorkDir       string
	SourceTimeout time.Duration
	// MaxItems caps how many not yet acquired items are downloaded per source
	// and how many already acquired ones are reported. 0 means no cap.
	MaxItems    int
	MediaPrefix string
	// Resolve finds the provider for a reference. Defaults to the global registry.
	Resolve func(ref string) (models.Provider, bool)
	Now     func() time.Time
}

// Executor downloads new items from a source into the bucket, exactly once each.
type Executor struct {
	index  ArchiveIndex
	bucket objectstore.Bucket
	logger *zap.Logger
	opts   Options
}

func NewExecutor(index ArchiveIndex, bucket objectstore.Bucket, logger *zap.Logger, opts Options) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = DefaultSourceTimeout
	}
	if opts.MaxItems < 0 {
		opts.MaxItems = 0
	}
	if strings.Trim(opts.MediaPrefix, "/") == "" {
		opts.MediaPrefix = DefaultMediaPrefix
	}
	if opts.Resolve == nil {
		opts.Resolve = providers.Match
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Executor{index: index, bucket: bucket, logger: logger, opts: opts}
}

// mediaMetadata is written next to every uploaded audio object.
type mediaMetadata struct {
	ProviderID  string    `json:"providerId"`
	ExternalID  string    `json:"externalId"`
	Title       string    `json:"title"`
	Artist      string    `json:"artist"`
	Source      string    `json:"source"`
	SourceURL   string    `json:"sourceUrl"`
	ObjectKey   string    `json:"objectKey"`
	ContentHash string    `json:"contentHash"`
	AcquiredAt  time.Time `json:"acquiredAt"`
}

// Fetch processes one source reference. It never returns an error: every
// failure becomes a Failed outcome, either per item or for the whole source.
func (e *Executor) Fetch(ctx context.Context, ref string, kind models.FetchKind) []models.Outcome {
	provider, ok := e.opts.Resolve(ref)
	if !ok {
		return []models.Outcome{models.SourceFailed(fmt.Sprintf("no provider supports %s", ref))}
	}
	providerID := provider.GetInfo().ID
	log := e.logger.With(zap.String("provider", providerID), zap.String("source", ref))

	ctx, cancel := context.WithTimeout(ctx, e.opts.SourceTimeout)
	defer cancel()

	items, err := provider.ListItems(ctx, ref, kind)
	if err != nil {
		log.Warn("Failed to enumerate source", zap.Error(err))
		return []models.Outcome{models.SourceFailed(fmt.Sprintf("could not list items: %v", err))}
	}
	items = e.capItems(ctx, log, providerID, items)
	if len(items) == 0 {
		return nil
	}

	if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
		return []models.Outcome{models.SourceFailed(fmt.Sprintf("could not create work dir: %v", err))}
	}
	workDir, err := os.MkdirTemp(e.opts.WorkDir, providerID+"-*")
	if err != nil {
		return []models.Outcome{models.SourceFailed(fmt.Sprintf("could not create work dir: %v", err))}
	}
	defer os.RemoveAll(workDir)

	outcomes := make([]models.Outcome, 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			remaining := len(items) - i
			reason := fmt.Sprintf("stopped with %d of %d items unprocessed: %v", remaining, len(items), err)
			if errors.Is(err, context.DeadlineExceeded) {
				reason = fmt.Sprintf("source timed out after %s with %d of %d items unprocessed", e.opts.SourceTimeout, remaining, len(items))
			}
			log.Warn("Source processing stopped early", zap.Int("remaining", remaining), zap.Error(err))
			outcomes = append(outcomes, models.SourceFailed(reason))
			break
		}
		outcome := e.processItem(ctx, provider, ref, item, workDir)
		if outcome.Kind == models.OutcomeFailed {
			log.Warn("Item failed", zap.String("external_id", item.ExternalID), zap.String("reason", outcome.Reason))
		} else {
			log.Debug("Item processed", zap.String("external_id", item.ExternalID), zap.String("kind", string(outcome.Kind)))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// capItems keeps at most MaxItems new items and MaxItems already acquired
// ones, in listing order. New items are counted separately so a listing that
// puts old items first still reaches the new ones.
func (e *Executor) capItems(ctx context.Context, log *zap.Logger, providerID string, items []models.RemoteItem) []models.RemoteItem {
	limit := e.opts.MaxItems
	if limit <= 0 || len(items) <= limit {
		return items
	}
	kept := make([]models.RemoteItem, 0, limit)
	var pending, acquired, skipped int
	for i, item := range items {
		known := false
		if item.ExternalID != "" {
			// A failed lookup counts as new; processItem reports the error.
			existing, err := e.index.GetAcquiredItem(ctx, providerID, item.ExternalID)
			known = err == nil && existing != nil
		}
		switch {
		case known && acquired < limit:
			acquired++
		case !known && pending < limit:
			pending++
		default:
			skipped++
			continue
		}
		kept = append(kept, item)
		if pending == limit && acquired == limit {
			skipped += len(items) - i - 1
			break
		}
	}
	log.Info("Capping source items",
		zap.Int("listed", len(items)),
		zap.Int("max", limit),
		zap.Int("new", pending),
		zap.Int("skipped", skipped))
	return kept
}

func (e *Executor) processItem(ctx context.Context, provider models.Provider, ref string, item models.RemoteItem, workDir string) models.Outcome {
	providerID := provider.GetInfo().ID
	if strings.TrimSpace(item.ExternalID) == "" {
		return models.Failed(item, "item has no platform id")
	}

	existing, err := e.index.GetAcquiredItem(ctx, providerID, item.ExternalID)
	if err != nil {
		return models.Failed(item, fmt.Sprintf("dedup lookup failed: %v", err))
	}
	if existing != nil {
		return models.Duplicate(item, existing.ObjectKey)
	}

	file, err := provider.DownloadItem(ctx, item, workDir)
	if err != nil {
		return models.Failed(item, err.Error())
	}
	defer os.Remove(file.Path)
	if file.Title != "" {
		item.Title = file.Title
	}
	if file.Artist != "" {
		item.Artist = file.Artist
	}

	data, err := os.ReadFile(file.Path)
	if err != nil {
		return models.Failed(item, fmt.Sprintf("could not read download: %v", err))
	}
	if len(data) == 0 {
		return models.Failed(item, "download produced an empty file")
	}
	sum := sha256.Sum256(data)
	contentHash := hex.EncodeToString(sum[:])
	now := e.opts.Now().UTC()

	sameContent, err := e.index.FindAcquiredByHash(ctx, contentHash)
	if err != nil {
		return models.Failed(item, fmt.Sprintf("dedup lookup failed: %v", err))
	}
	if sameContent != nil {
		// Index this id too so the next run skips the download.
		if _, err := e.index.MarkAcquired(ctx, &models.AcquiredItem{
			ProviderID:  providerID,
			ExternalID:  item.ExternalID,
			Title:       item.Title,
			Artist:      item.Artist,
			ObjectKey:   sameContent.ObjectKey,
			ContentHash: contentHash,
			AcquiredAt:  now,
		}); err != nil {
			e.logger.Warn("Failed to index duplicate content", zap.String("external_id", item.ExternalID), zap.Error(err))
		}
		return models.Duplicate(item, sameContent.ObjectKey)
	}

	objectKey := e.objectKey(providerID, item.ExternalID, filepath.Ext(file.Path))
	if err := e.bucket.Put(ctx, objectKey, data); err != nil {
		return models.Failed(item, fmt.Sprintf("upload failed: %v", err))
	}
	meta, err := json.MarshalIndent(mediaMetadata{
		ProviderID:  providerID,
		ExternalID:  item.ExternalID,
		Title:       item.Title,
		Artist:      item.Artist,
		Source:      ref,
		SourceURL:   item.URL,
		ObjectKey:   objectKey,
		ContentHash: contentHash,
		AcquiredAt:  now,
	}, "", "  ")
	if err == nil {
		err = e.bucket.Put(ctx, metadataKey(objectKey), meta)
	}
	if err != nil {
		return models.Failed(item, fmt.Sprintf("metadata upload failed: %v", err))
	}

	inserted, err := e.index.MarkAcquired(ctx, &models.AcquiredItem{
		ProviderID:  providerID,
		ExternalID:  item.ExternalID,
		Title:       item.Title,
		Artist:      item.Artist,
		ObjectKey:   objectKey,
		ContentHash: contentHash,
		AcquiredAt:  now,
	})
	if err != nil {
		return models.Failed(item, fmt.Sprintf("could not record acquisition: %v", err))
	}
	if !inserted {
		return models.Duplicate(item, objectKey)
	}
	return models.Downloaded(item, objectKey)
}

func (e *Executor) objectKey(providerID, externalID, ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" || ext == "." {
		ext = ".bin"
	}
	return path.Join(strings.Trim(e.opts.MediaPrefix, "/"), SanitizeFilename(providerID), SanitizeFilename(externalID)+ext)
}

func metadataKey(objectKey string) string {
	return strings.TrimSuffix(objectKey, path.Ext(objectKey)) + ".json"
}

var unsafeNameChars = regexp.MustCompile(`[\x00\\/:*?"<>|\s]`)

// SanitizeFilename makes s safe to use as a single path segment.
func SanitizeFilename(s string) string {
	safe := unsafeNameChars.ReplaceAllString(s, "-")
	for strings.HasPrefix(safe, ".") || strings.HasPrefix(safe, "-") {
		safe = safe[1:]
	}
	if safe == "" {
		safe = "untitled"
	}
	return safe
}
