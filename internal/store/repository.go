// Package store defines the persistence interface of the catalog pipeline.
package store

import (
	"context"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// MaxStaleLimit bounds ListStale.
const MaxStaleLimit = 500

// StaleRecord is one refreshable record as selected by ListStale.
type StaleRecord struct {
	Kind            domain.RecordKind
	ID              string
	Identifier      domain.Identifier
	SourceURL       string
	Metadata        domain.ProductMetadata
	LastRefreshedAt time.Time
}

// Repository is the narrow set of persistence operations the pipeline needs.
type Repository interface {
	// Unofficial submissions
	CreateSubmission(ctx context.Context, sub *domain.UnofficialSubmission) error
	GetSubmission(ctx context.Context, id string) (*domain.UnofficialSubmission, error)
	// ListUnofficial returns every submission that has not been promoted,
	// oldest first.
	ListUnofficial(ctx context.Context) ([]*domain.UnofficialSubmission, error)
	// FindUnofficialByIdentifier returns the unpromoted submissions for one
	// identifier, oldest first.
	FindUnofficialByIdentifier(ctx context.Context, ident domain.Identifier) ([]*domain.UnofficialSubmission, error)

	// Canonical products
	CreateCanonical(ctx context.Context, p *domain.CanonicalProduct) error
	GetCanonical(ctx context.Context, id string) (*domain.CanonicalProduct, error)
	GetCanonicalByIdentifier(ctx context.Context, ident domain.Identifier) (*domain.CanonicalProduct, error)
	CountCanonicalByIdentifier(ctx context.Context, ident domain.Identifier) (int, error)

	// Reconciliation. PromoteGroup checks that no canonical exists for the
	// product's identifier, creates it and repoints memberIDs in one
	// transaction, returning the number of repointed submissions. It fails
	// with ErrAlreadyExists when the canonical appeared concurrently and
	// ErrConflict when a member was promoted or removed meanwhile.
	PromoteGroup(ctx context.Context, p *domain.CanonicalProduct, memberIDs []string) (int, error)
	// RepointSubmissions atomically points every unpromoted submission for
	// ident at canonicalID and clears their snapshots.
	RepointSubmissions(ctx context.Context, ident domain.Identifier, canonicalID string) (int, error)

	// Refresh
	ListStale(ctx context.Context, kind domain.RecordKind, olderThan time.Time, limit int) ([]*StaleRecord, error)
	UpdateMetadata(ctx context.Context, kind domain.RecordKind, id string, md domain.ProductMetadata) error
	TouchRefreshedAt(ctx context.Context, kind domain.RecordKind, id string, at time.Time) error

	Ping(ctx context.Context) error
}
