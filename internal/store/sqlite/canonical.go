package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// canonicalColumns must match the scan order in scanCanonical.
const canonicalColumns = `id, identifier, metadata, category, source_url, affiliate_url,
	created_at, updated_at, last_refreshed_at`

func scanCanonical(scanner interface{ Scan(dest ...any) error }) (*domain.CanonicalProduct, error) {
	var (
		p            domain.CanonicalProduct
		identifier   string
		metadata     string
		category     sql.NullString
		affiliateURL sql.NullString
		createdAt    string
		updatedAt    string
		refreshedAt  string
	)

	err := scanner.Scan(
		&p.ID,
		&identifier,
		&metadata,
		&category,
		&p.SourceURL,
		&affiliateURL,
		&createdAt,
		&updatedAt,
		&refreshedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Identifier = domain.Identifier(identifier)
	p.Category = category.String
	p.AffiliateURL = affiliateURL.String

	if p.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if p.LastRefreshedAt, err = parseTime(refreshedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCanonical(ctx context.Context, db execer, p *domain.CanonicalProduct) error {
	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO canonical_products (
			id, identifier, title, metadata, category, source_url, affiliate_url,
			created_at, updated_at, last_refreshed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		string(p.Identifier),
		p.Metadata.Title,
		metadata,
		nullString(p.Category),
		p.SourceURL,
		nullString(p.AffiliateURL),
		formatTime(p.CreatedAt),
		formatTime(p.UpdatedAt),
		formatTime(p.LastRefreshedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithCause(err)
	}
	return err
}

// CreateCanonical inserts a canonical product.
// Returns store.ErrAlreadyExists on a duplicate ID or identifier.
func (s *Store) CreateCanonical(ctx context.Context, p *domain.CanonicalProduct) error {
	return insertCanonical(ctx, s.db, p)
}

// GetCanonical retrieves a canonical product by ID.
func (s *Store) GetCanonical(ctx context.Context, id string) (*domain.CanonicalProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_products WHERE id = ?`, id)

	p, err := scanCanonical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

// GetCanonicalByIdentifier retrieves the canonical product for an identifier.
func (s *Store) GetCanonicalByIdentifier(ctx context.Context, ident domain.Identifier) (*domain.CanonicalProduct, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_products WHERE identifier = ?`, string(ident))

	p, err := scanCanonical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return p, err
}

// CountCanonicalByIdentifier returns 0 or 1.
func (s *Store) CountCanonicalByIdentifier(ctx context.Context, ident domain.Identifier) (int, error) {
	return countCanonical(ctx, s.db, ident)
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countCanonical(ctx context.Context, db queryer, ident domain.Identifier) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM canonical_products WHERE identifier = ?`, string(ident)).Scan(&n)
	return n, err
}

// ListCanonical returns canonical products ordered by creation time.
func (s *Store) ListCanonical(ctx context.Context, limit int) ([]*domain.CanonicalProduct, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_products ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CanonicalProduct
	for rows.Next() {
		p, err := scanCanonical(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
