// This file implements the downloader's dedup index of acquired items.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vrsandeep/beatvault/internal/models"
)

// GetAcquiredItem looks an item up by its stable platform id.
// It returns nil, nil when the item has never been acquired.
func (s *Store) GetAcquiredItem(ctx context.Context, providerID, externalID string) (*models.AcquiredItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT provider_id, external_id, title, artist, object_key, content_hash, acquired_at
		FROM acquired_items WHERE provider_id = ? AND external_id = ?`, providerID, externalID)
	item, err := scanAcquired(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// FindAcquiredByHash returns the first item with the given content hash, or nil.
func (s *Store) FindAcquiredByHash(ctx context.Context, contentHash string) (*models.AcquiredItem, error) {
	if contentHash == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT provider_id, external_id, title, artist, object_key, content_hash, acquired_at
		FROM acquired_items WHERE content_hash = ?
		ORDER BY acquired_at ASC LIMIT 1`, contentHash)
	item, err := scanAcquired(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return item, err
}

// MarkAcquired inserts item into the index. It reports false when the item
// was already present, which callers treat as a duplicate.
func (s *Store) MarkAcquired(ctx context.Context, item *models.AcquiredItem) (bool, error) {
	acquiredAt := item.AcquiredAt
	if acquiredAt.IsZero() {
		acquiredAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO acquired_items
		(provider_id, external_id, title, artist, object_key, content_hash, acquired_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ProviderID, item.ExternalID, item.Title, item.Artist, item.ObjectKey, item.ContentHash, acquiredAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark item acquired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// CountAcquired returns the number of indexed items.
func (s *Store) CountAcquired(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM acquired_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count acquired items: %w", err)
	}
	return count, nil
}

func scanAcquired(row rowScanner) (*models.AcquiredItem, error) {
	var item models.AcquiredItem
	err := row.Scan(&item.ProviderID, &item.ExternalID, &item.Title, &item.Artist, &item.ObjectKey, &item.ContentHash, &item.AcquiredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan acquired item: %w", err)
	}
	return &item, nil
}
