// Package reconcile folds duplicate user submissions into canonical catalog
// records.
//
// Promotion is administrator-driven. The engine applies the corroboration
// policy, enriches the new record from the catalog API when it can, and
// leaves the all-or-nothing write to store.Repository.PromoteGroup.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/id"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// ImageCacher stores an image and returns the URL to persist.
type ImageCacher interface {
	Cache(ctx context.Context, sourceURL string) (string, error)
}

// Options configures an Engine.
type Options struct {
	// MinDistinctUsers is the eligibility threshold. Zero means
	// DefaultMinDistinctUsers.
	MinDistinctUsers int
}

// PromoteOptions controls one promotion.
type PromoteOptions struct {
	// Override promotes a group below the distinct-user threshold.
	Override bool
	// Category overrides the category taken from the metadata.
	Category string
}

// Result is the structured outcome of a promotion or relink.
type Result struct {
	Success       bool                  `json:"success"`
	Message       string                `json:"message"`
	State         domain.PromotionState `json:"state"`
	Reason        domain.RejectReason   `json:"reason,omitempty"`
	CanonicalID   string                `json:"canonical_id,omitempty"`
	MigratedCount int                   `json:"migrated_count,omitempty"`
	// LiveMetadata is false when the catalog fetch failed and the group's
	// snapshot was used instead.
	LiveMetadata bool `json:"live_metadata"`
}

// Engine runs promotions against a repository.
type Engine struct {
	repo     store.Repository
	catalog  metadata.Fetcher
	images   ImageCacher
	minUsers int
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine creates an Engine. catalog, images and m may be nil.
func NewEngine(repo store.Repository, catalog metadata.Fetcher, images ImageCacher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Engine {
	if opts.MinDistinctUsers < 1 {
		opts.MinDistinctUsers = DefaultMinDistinctUsers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		catalog:  catalog,
		images:   images,
		minUsers: opts.MinDistinctUsers,
		metrics:  m,
		logger:   logger,
	}
}

// MinDistinctUsers returns the eligibility threshold.
func (e *Engine) MinDistinctUsers() int {
	return e.minUsers
}

// ListCandidates groups every unpromoted submission whose identifier has no
// canonical product yet.
func (e *Engine) ListCandidates(ctx context.Context) ([]domain.PromotionGroup, error) {
	subs, err := e.repo.ListUnofficial(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unofficial: %w", err)
	}

	canonical := make(map[domain.Identifier]bool)
	filtered := subs[:0:0]
	for _, sub := range subs {
		has, seen := canonical[sub.Identifier]
		if !seen {
			n, err := e.repo.CountCanonicalByIdentifier(ctx, sub.Identifier)
			if err != nil {
				return nil, fmt.Errorf("count canonical %s: %w", sub.Identifier, err)
			}
			has = n > 0
			canonical[sub.Identifier] = has
		}
		if !has {
			filtered = append(filtered, sub)
		}
	}
	return Group(filtered, e.minUsers), nil
}

// Promote creates the canonical product for ident and repoints its group.
// Policy rejections return a Result with Success false together with one of
// ErrAlreadyPromoted, ErrGroupEmpty or ErrBelowThreshold.
func (e *Engine) Promote(ctx context.Context, ident domain.Identifier, opts PromoteOptions) (*Result, error) {
	n, err := e.repo.CountCanonicalByIdentifier(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("count canonical: %w", err)
	}
	if n > 0 {
		return e.reject(ident, domain.RejectAlreadyCanonical, ErrAlreadyPromoted)
	}

	members, err := e.repo.FindUnofficialByIdentifier(ctx, ident)
	if err != nil {
		return nil, fmt.Errorf("load group: %w", err)
	}
	groups := Group(members, e.minUsers)
	if len(groups) == 0 {
		// A concurrent promotion may have taken the group since the count.
		n, err := e.repo.CountCanonicalByIdentifier(ctx, ident)
		if err != nil {
			return nil, fmt.Errorf("count canonical: %w", err)
		}
		if n > 0 {
			return e.reject(ident, domain.RejectAlreadyCanonical, ErrAlreadyPromoted)
		}
		return e.reject(ident, domain.RejectGroupEmpty, ErrGroupEmpty)
	}
	group := groups[0]
	if !group.Eligible() && !opts.Override {
		return e.reject(ident, domain.RejectBelowThreshold,
			fmt.Errorf("%w: %d of %d", ErrBelowThreshold, group.DistinctUserCount, e.minUsers))
	}

	md, live := e.resolveMetadata(ctx, ident, group)
	if md.ImageURL != "" && e.images != nil {
		if cached, err := e.images.Cache(ctx, md.ImageURL); err == nil {
			md = md.WithImage(cached)
		}
	}

	canonicalID, err := id.Canonical()
	if err != nil {
		return nil, err
	}
	product := &domain.CanonicalProduct{
		Record:       domain.Record{ID: canonicalID},
		Identifier:   ident,
		Metadata:     md,
		Category:     opts.Category,
		SourceURL:    metadata.ProductURL(ident),
		AffiliateURL: md.Attribute(metadata.AttrDetailURL),
	}
	if product.Category == "" {
		product.Category = md.Attribute(metadata.AttrCategory)
	}
	product.InitTimestamps()

	migrated, err := e.repo.PromoteGroup(ctx, product, group.MemberIDs())
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		return e.reject(ident, domain.RejectAlreadyCanonical, ErrAlreadyPromoted)
	case errors.Is(err, store.ErrConflict):
		e.metrics.Promotion("conflict")
		return nil, fmt.Errorf("%w: %w", ErrConflict, err)
	case err != nil:
		e.metrics.Promotion("error")
		return nil, fmt.Errorf("promote group: %w", err)
	}

	e.metrics.Promotion("promoted")
	e.logger.Info("promoted identifier",
		"identifier", ident,
		"canonical_id", canonicalID,
		"migrated", migrated,
		"distinct_users", group.DistinctUserCount,
		"override", opts.Override && !group.Eligible(),
		"live_metadata", live,
	)
	return &Result{
		Success:       true,
		Message:       fmt.Sprintf("promoted %s with %d submissions", ident, migrated),
		State:         domain.StatePromoted,
		CanonicalID:   canonicalID,
		MigratedCount: migrated,
		LiveMetadata:  live,
	}, nil
}

// resolveMetadata prefers a live catalog fetch and falls back to the
// group's representative snapshot.
func (e *Engine) resolveMetadata(ctx context.Context, ident domain.Identifier, group domain.PromotionGroup) (domain.ProductMetadata, bool) {
	if e.catalog != nil {
		md, err := e.catalog.Fetch(ctx, ident)
		if err == nil {
			return md, true
		}
		e.logger.Warn("catalog fetch failed, using submission snapshot",
			"identifier", ident,
			"error", err,
		)
	}
	if group.RepresentativeMetadata != nil {
		return group.RepresentativeMetadata.Clone(), false
	}
	return metadata.Placeholder(ident, ""), false
}

// Relink repoints submissions created after ident was promoted.
func (e *Engine) Relink(ctx context.Context, ident domain.Identifier) (*Result, error) {
	product, err := e.repo.GetCanonicalByIdentifier(ctx, ident)
	if errors.Is(err, store.ErrNotFound) {
		return &Result{
			Success: false,
			Message: fmt.Sprintf("%s has not been promoted", ident),
			State:   domain.StateGrouped,
		}, ErrNotPromoted
	}
	if err != nil {
		return nil, fmt.Errorf("load canonical: %w", err)
	}

	n, err := e.repo.RepointSubmissions(ctx, ident, product.ID)
	if err != nil {
		return nil, fmt.Errorf("repoint submissions: %w", err)
	}
	if n > 0 {
		e.logger.Info("relinked submissions", "identifier", ident, "canonical_id", product.ID, "count", n)
	}
	return &Result{
		Success:       true,
		Message:       fmt.Sprintf("relinked %d submissions to %s", n, product.ID),
		State:         domain.StatePromoted,
		CanonicalID:   product.ID,
		MigratedCount: n,
	}, nil
}

func (e *Engine) reject(ident domain.Identifier, reason domain.RejectReason, err error) (*Result, error) {
	e.metrics.Promotion("rejected")
	e.logger.Info("promotion rejected", "identifier", ident, "reason", reason)
	return &Result{
		Success: false,
		Message: err.Error(),
		State:   domain.StateRejected,
		Reason:  reason,
	}, err
}
