package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// submissionColumns must match the scan order in scanSubmission.
const submissionColumns = `id, identifier, user_id, metadata, canonical_id, source_url,
	created_at, updated_at, last_refreshed_at`

func scanSubmission(scanner interface{ Scan(dest ...any) error }) (*domain.UnofficialSubmission, error) {
	var (
		sub         domain.UnofficialSubmission
		identifier  string
		metadata    sql.NullString
		canonicalID sql.NullString
		sourceURL   sql.NullString
		createdAt   string
		updatedAt   string
		refreshedAt string
	)

	err := scanner.Scan(
		&sub.ID,
		&identifier,
		&sub.UserID,
		&metadata,
		&canonicalID,
		&sourceURL,
		&createdAt,
		&updatedAt,
		&refreshedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Identifier = domain.Identifier(identifier)
	sub.CanonicalID = canonicalID.String
	sub.SourceURL = sourceURL.String

	if metadata.Valid {
		md, err := decodeMetadata(metadata.String)
		if err != nil {
			return nil, err
		}
		sub.Metadata = &md
	}
	if sub.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sub.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if sub.LastRefreshedAt, err = parseTime(refreshedAt); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSubmission inserts an unofficial submission.
// Returns store.ErrAlreadyExists on a duplicate ID and store.ErrInvalidInput
// when an unpromoted submission has no snapshot.
func (s *Store) CreateSubmission(ctx context.Context, sub *domain.UnofficialSubmission) error {
	var (
		title    sql.NullString
		metadata sql.NullString
	)
	if sub.Metadata != nil {
		encoded, err := encodeMetadata(*sub.Metadata)
		if err != nil {
			return err
		}
		metadata = sql.NullString{String: encoded, Valid: true}
		title = nullString(sub.Metadata.Title)
	} else if !sub.IsPromoted() {
		return store.ErrInvalidInput.WithMessage("unpromoted submission requires metadata")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unofficial_submissions (
			id, identifier, user_id, title, metadata, canonical_id, source_url,
			created_at, updated_at, last_refreshed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		string(sub.Identifier),
		sub.UserID,
		title,
		metadata,
		nullString(sub.CanonicalID),
		nullString(sub.SourceURL),
		formatTime(sub.CreatedAt),
		formatTime(sub.UpdatedAt),
		formatTime(sub.LastRefreshedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists.WithCause(err)
	}
	return err
}

// GetSubmission retrieves a submission by ID, promoted or not.
func (s *Store) GetSubmission(ctx context.Context, id string) (*domain.UnofficialSubmission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM unofficial_submissions WHERE id = ?`, id)

	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sub, err
}

// ListUnofficial returns every unpromoted submission, oldest first.
func (s *Store) ListUnofficial(ctx context.Context) ([]*domain.UnofficialSubmission, error) {
	return s.querySubmissions(ctx, `
		SELECT `+submissionColumns+` FROM unofficial_submissions
		WHERE canonical_id IS NULL
		ORDER BY created_at, id`)
}

// FindUnofficialByIdentifier returns the unpromoted submissions for ident, oldest first.
func (s *Store) FindUnofficialByIdentifier(ctx context.Context, ident domain.Identifier) ([]*domain.UnofficialSubmission, error) {
	return s.querySubmissions(ctx, `
		SELECT `+submissionColumns+` FROM unofficial_submissions
		WHERE identifier = ? AND canonical_id IS NULL
		ORDER BY created_at, id`, string(ident))
}

// ListByCanonical returns the submissions that reference canonicalID.
func (s *Store) ListByCanonical(ctx context.Context, canonicalID string) ([]*domain.UnofficialSubmission, error) {
	return s.querySubmissions(ctx, `
		SELECT `+submissionColumns+` FROM unofficial_submissions
		WHERE canonical_id = ?
		ORDER BY created_at, id`, canonicalID)
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]*domain.UnofficialSubmission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.UnofficialSubmission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}
