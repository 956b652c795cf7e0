// This file implements the download history ledger. Records are insert-only.

package store

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/vrsandeep/beatvault/internal/models"
)

const (
	DefaultHistoryPageSize = 20
	MaxHistoryPageSize     = 200
)

// HistoryQuery filters and paginates the ledger. Page is 1-based.
type HistoryQuery struct {
	Page     int
	PageSize int
	SourceID string
	Search   string
}

// HistoryPage is one page of ledger results, newest first.
type HistoryPage struct {
	Items      []*models.HistoryRecord `json:"items"`
	Total      int                     `json:"total"`
	TotalPages int                     `json:"totalPages"`
	Page       int                     `json:"page"`
	Limit      int                     `json:"limit"`
}

// RecordHistory appends a record to the ledger.
func (s *Store) RecordHistory(ctx context.Context, rec *models.HistoryRecord) error {
	if rec.ID == "" || rec.SourceID == "" {
		return fmt.Errorf("history record requires id and source id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO download_history
		(id, source_id, source_ref, external_id, title, artist, status, error_detail, downloaded_at, search_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SourceID, rec.Source, rec.ExternalID, rec.Title, rec.Artist,
		string(rec.Status), nullableString(rec.ErrorDetail), rec.DownloadedAt.UTC(),
		searchText(rec.Title, rec.Artist),
	)
	if err != nil {
		return fmt.Errorf("failed to record history: %w", err)
	}
	return nil
}

// normalize fills in defaults and clamps the page size.
func (q HistoryQuery) normalize() HistoryQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultHistoryPageSize
	}
	if q.PageSize > MaxHistoryPageSize {
		q.PageSize = MaxHistoryPageSize
	}
	q.SourceID = strings.TrimSpace(q.SourceID)
	q.Search = strings.TrimSpace(q.Search)
	return q
}

func (q HistoryQuery) where() (string, []any) {
	var clauses []string
	var args []any
	if q.SourceID != "" {
		clauses = append(clauses, "source_id = ?")
		args = append(args, q.SourceID)
	}
	if q.Search != "" {
		clauses = append(clauses, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(q.Search))+"%")
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// QueryHistory returns one page of the ledger ordered newest first.
func (s *Store) QueryHistory(ctx context.Context, q HistoryQuery) (*HistoryPage, error) {
	q = q.normalize()
	where, args := q.where()

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM download_history"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	query := `
		SELECT id, source_id, source_ref, external_id, title, artist, status, error_detail, downloaded_at
		FROM download_history` + where + `
		ORDER BY downloaded_at DESC, rowid DESC
		LIMIT ? OFFSET ?`
	pageArgs := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	// Initialize with an empty slice to ensure it's never nil
	items := make([]*models.HistoryRecord, 0, q.PageSize)
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + q.PageSize - 1) / q.PageSize
	}
	return &HistoryPage{Items: items, Total: total, TotalPages: totalPages, Page: q.Page, Limit: q.PageSize}, nil
}

// ListHistorySources returns every distinct source id seen in the ledger
// together with its most recently recorded reference.
func (s *Store) ListHistorySources(ctx context.Context) ([]models.HistorySource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT h.source_id, h.source_ref
		FROM download_history h
		WHERE h.rowid = (
			SELECT h2.rowid FROM download_history h2
			WHERE h2.source_id = h.source_id
			ORDER BY h2.downloaded_at DESC, h2.rowid DESC
			LIMIT 1
		)
		ORDER BY h.source_ref, h.source_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list history sources: %w", err)
	}
	defer rows.Close()

	sources := make([]models.HistorySource, 0)
	for rows.Next() {
		var hs models.HistorySource
		if err := rows.Scan(&hs.SourceID, &hs.Source); err != nil {
			return nil, fmt.Errorf("failed to scan history source: %w", err)
		}
		sources = append(sources, hs)
	}
	return sources, rows.Err()
}

var historyCSVHeader = []string{"id", "source_id", "source", "external_id", "title", "artist", "status", "error_detail", "downloaded_at"}

// ExportHistoryCSV streams the whole ledger, newest first, as CSV.
func (s *Store) ExportHistoryCSV(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, source_ref, external_id, title, artist, status, error_detail, downloaded_at
		FROM download_history
		ORDER BY downloaded_at DESC, rowid DESC`)
	if err != nil {
		return fmt.Errorf("failed to query history for export: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for rows.Next() {
		rec, err := scanHistory(rows)
		if err != nil {
			return err
		}
		detail := ""
		if rec.ErrorDetail != nil {
			detail = *rec.ErrorDetail
		}
		row := []string{
			rec.ID, rec.SourceID, rec.Source, rec.ExternalID, rec.Title, rec.Artist,
			string(rec.Status), detail, rec.DownloadedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate history for export: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistory(row rowScanner) (*models.HistoryRecord, error) {
	var rec models.HistoryRecord
	var status string
	var detail sql.NullString
	if err := row.Scan(&rec.ID, &rec.SourceID, &rec.Source, &rec.ExternalID, &rec.Title, &rec.Artist, &status, &detail, &rec.DownloadedAt); err != nil {
		return nil, fmt.Errorf("failed to scan history row: %w", err)
	}
	rec.Status = models.HistoryStatus(status)
	if detail.Valid {
		d := detail.String
		rec.ErrorDetail = &d
	}
	return &rec, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// searchText is the lowercased title and artist matched by QueryHistory.
// SQLite's LOWER only folds ASCII, so folding happens here.
func searchText(title, artist string) string {
	return strings.ToLower(title) + "\n" + strings.ToLower(artist)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
