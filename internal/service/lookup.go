package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
	domainerrors "github.com/wishlistapp/catalog-server/internal/errors"
	"github.com/wishlistapp/catalog-server/internal/id"
	"github.com/wishlistapp/catalog-server/internal/identifier"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/metadata/catalog"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// IdentifierResolver turns a user-supplied URL or bare identifier into an Identifier.
type IdentifierResolver interface {
	Resolve(ctx context.Context, raw string) (domain.Identifier, error)
}

// ImageCacher stores an image and returns the URL to persist.
type ImageCacher interface {
	Cache(ctx context.Context, sourceURL string) (string, error)
}

// LookupResult is the outcome of a product lookup.
type LookupResult struct {
	Identifier domain.Identifier      `json:"identifier"`
	SourceURL  string                 `json:"source_url"`
	Metadata   domain.ProductMetadata `json:"metadata"`
	// Canonical is set when the identifier already has a catalog entry.
	Canonical *domain.CanonicalProduct `json:"canonical,omitempty"`
}

// LookupService resolves product references and fetches their metadata,
// caching the product image on the way.
type LookupService struct {
	resolver IdentifierResolver
	scrape   metadata.Fetcher
	catalog  metadata.Fetcher
	images   ImageCacher
	repo     store.Repository
	logger   *slog.Logger
}

// NewLookupService creates a new lookup service. catalog may be nil when no
// catalog credentials are configured.
func NewLookupService(
	resolver IdentifierResolver,
	scrape metadata.Fetcher,
	catalog metadata.Fetcher,
	images ImageCacher,
	repo store.Repository,
	logger *slog.Logger,
) *LookupService {
	return &LookupService{
		resolver: resolver,
		scrape:   scrape,
		catalog:  catalog,
		images:   images,
		repo:     repo,
		logger:   logger,
	}
}

// Resolve maps raw to an identifier. Unrecognized input is a validation error.
func (s *LookupService) Resolve(ctx context.Context, raw string) (domain.Identifier, error) {
	ident, err := s.resolver.Resolve(ctx, raw)
	if err != nil {
		switch {
		case errors.Is(err, identifier.ErrNotAProductURL):
			return "", domainerrors.Validation("not a recognized product link")
		case errors.Is(err, identifier.ErrTooManyRedirects):
			return "", domainerrors.Validation("product link redirects too many times")
		case ctx.Err() != nil:
			return "", ctx.Err()
		default:
			return "", domainerrors.Wrap(err, domainerrors.CodeUpstream, "could not expand product link")
		}
	}
	return ident, nil
}

// Lookup scrapes the public product page. It never fails on upstream
// problems: the metadata then carries placeholder quality.
func (s *LookupService) Lookup(ctx context.Context, raw string) (*LookupResult, error) {
	ident, err := s.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("looking up product", "identifier", ident)

	md, err := s.scrape.Fetch(ctx, ident)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, ident, md)
}

// AdminLookup fetches authoritative metadata from the catalog API.
func (s *LookupService) AdminLookup(ctx context.Context, raw string) (*LookupResult, error) {
	if s.catalog == nil {
		return nil, domainerrors.Wrap(catalog.ErrNoCredentials, domainerrors.CodeUpstream, "catalog access is not configured")
	}

	ident, err := s.Resolve(ctx, raw)
	if err != nil {
		return nil, err
	}

	md, err := s.catalog.Fetch(ctx, ident)
	if err != nil {
		s.logger.Warn("catalog lookup failed", "identifier", ident, "error", err)
		return nil, catalogError(ident, err)
	}
	return s.finish(ctx, ident, md)
}

// Submit records a user's unofficial submission for raw, with a scraped
// snapshot. Identifiers that already have a canonical entry are linked to it
// instead of storing a snapshot.
func (s *LookupService) Submit(ctx context.Context, userID, raw string) (*domain.UnofficialSubmission, error) {
	if userID == "" {
		return nil, domainerrors.Validation("user id is required")
	}
	res, err := s.Lookup(ctx, raw)
	if err != nil {
		return nil, err
	}

	subID, err := id.Submission()
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "generate submission id")
	}
	sub := &domain.UnofficialSubmission{
		Record:     domain.Record{ID: subID},
		Identifier: res.Identifier,
		UserID:     userID,
		SourceURL:  res.SourceURL,
	}
	if res.Canonical != nil {
		sub.CanonicalID = res.Canonical.ID
	} else {
		md := res.Metadata
		sub.Metadata = &md
	}
	sub.InitTimestamps()

	if err := s.repo.CreateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("submission created",
		"id", sub.ID,
		"identifier", sub.Identifier,
		"user_id", userID,
		"linked", sub.IsPromoted(),
	)
	return sub, nil
}

func (s *LookupService) finish(ctx context.Context, ident domain.Identifier, md domain.ProductMetadata) (*LookupResult, error) {
	if md.ImageURL != "" && s.images != nil {
		cached, err := s.images.Cache(ctx, md.ImageURL)
		if err != nil {
			s.logger.Warn("image cache rejected url", "identifier", ident, "error", err)
		} else {
			md = md.WithImage(cached)
		}
	}

	res := &LookupResult{
		Identifier: ident,
		SourceURL:  metadata.ProductURL(ident),
		Metadata:   md,
	}

	if s.repo != nil {
		existing, err := s.repo.GetCanonicalByIdentifier(ctx, ident)
		switch {
		case err == nil:
			res.Canonical = existing
		case errors.Is(err, store.ErrNotFound):
		default:
			// Lookups still succeed without the catalog match.
			s.logger.Warn("canonical lookup failed", "identifier", ident, "error", err)
		}
	}
	return res, nil
}

// catalogError maps catalog API failures onto domain errors.
func catalogError(ident domain.Identifier, err error) error {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return domainerrors.NotFoundf("product %s not found in catalog", ident)
	case errors.Is(err, catalog.ErrRateLimited):
		return domainerrors.Wrap(err, domainerrors.CodeUpstream, "catalog rate limit reached, retry later")
	case errors.Is(err, catalog.ErrNoCredentials):
		return domainerrors.Wrap(err, domainerrors.CodeUpstream, "catalog access is not configured")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return domainerrors.Wrap(err, domainerrors.CodeUpstream, "catalog request failed")
	}
}

// lookupTimeout bounds one interactive lookup including redirects and image caching.
const lookupTimeout = 30 * time.Second

// WithLookupTimeout returns ctx bounded by the interactive lookup timeout.
func WithLookupTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, lookupTimeout)
}
