package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// ListStale returns up to limit records of kind whose last refresh is older
// than olderThan, least recently refreshed first. Promoted submissions carry
// no snapshot and are never stale.
func (s *Store) ListStale(ctx context.Context, kind domain.RecordKind, olderThan time.Time, limit int) ([]*store.StaleRecord, error) {
	if limit <= 0 || limit > store.MaxStaleLimit {
		return nil, store.ErrInvalidInput.WithMessage(fmt.Sprintf("limit must be between 1 and %d", store.MaxStaleLimit))
	}

	var query string
	switch kind {
	case domain.KindCanonical:
		query = `
			SELECT id, identifier, source_url, metadata, last_refreshed_at
			FROM canonical_products
			WHERE last_refreshed_at < ?
			ORDER BY last_refreshed_at, id
			LIMIT ?`
	case domain.KindUnofficial:
		query = `
			SELECT id, identifier, COALESCE(source_url, ''), metadata, last_refreshed_at
			FROM unofficial_submissions
			WHERE canonical_id IS NULL AND last_refreshed_at < ?
			ORDER BY last_refreshed_at, id
			LIMIT ?`
	default:
		return nil, store.ErrInvalidInput.WithMessage("unknown record kind " + string(kind))
	}

	rows, err := s.db.QueryContext(ctx, query, formatTime(olderThan), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.StaleRecord
	for rows.Next() {
		var (
			rec         = store.StaleRecord{Kind: kind}
			identifier  string
			metadata    string
			refreshedAt string
		)
		if err := rows.Scan(&rec.ID, &identifier, &rec.SourceURL, &metadata, &refreshedAt); err != nil {
			return nil, err
		}
		rec.Identifier = domain.Identifier(identifier)
		if rec.Metadata, err = decodeMetadata(metadata); err != nil {
			return nil, err
		}
		if rec.LastRefreshedAt, err = parseTime(refreshedAt); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// UpdateMetadata replaces the metadata snapshot of one record.
func (s *Store) UpdateMetadata(ctx context.Context, kind domain.RecordKind, id string, md domain.ProductMetadata) error {
	encoded, err := encodeMetadata(md)
	if err != nil {
		return err
	}

	table, where, err := kindTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET metadata = ?, title = ?, updated_at = ? WHERE id = ?`+where,
		encoded, md.Title, formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

// TouchRefreshedAt stamps a successful refresh.
func (s *Store) TouchRefreshedAt(ctx context.Context, kind domain.RecordKind, id string, at time.Time) error {
	table, where, err := kindTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+table+` SET last_refreshed_at = ? WHERE id = ?`+where,
		formatTime(at), id)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func kindTable(kind domain.RecordKind) (table, where string, err error) {
	switch kind {
	case domain.KindCanonical:
		return "canonical_products", "", nil
	case domain.KindUnofficial:
		return "unofficial_submissions", " AND canonical_id IS NULL", nil
	default:
		return "", "", store.ErrInvalidInput.WithMessage("unknown record kind " + string(kind))
	}
}

func expectOne(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
