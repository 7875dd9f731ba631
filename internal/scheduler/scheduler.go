// Package scheduler refreshes stale product metadata in sequential,
// rate-limited cycles.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/ratelimit"
	"github.com/wishlistapp/catalog-server/internal/store"
	"github.com/wishlistapp/catalog-server/internal/validation"
)

// DefaultItemDelay is the pause between two items of a cycle.
const DefaultItemDelay = 500 * time.Millisecond

// ErrNoFetcher is returned when no fetcher serves a record kind.
var ErrNoFetcher = errors.New("scheduler: no fetcher for record kind")

// ImageCacher stores an image and returns the URL to persist.
type ImageCacher interface {
	Cache(ctx context.Context, sourceURL string) (string, error)
}

// CycleParams selects the records of one cycle.
type CycleParams struct {
	Kind      domain.RecordKind `json:"kind" validate:"required,oneof=canonical unofficial"`
	Threshold time.Duration     `json:"threshold" validate:"gt=0"`
	Limit     int               `json:"limit" validate:"min=1,max=500"`
}

// Options configures a Scheduler.
type Options struct {
	ItemDelay time.Duration
}

// Scheduler runs refresh cycles. Cycles are sequential by construction; run
// at most one per kind at a time.
type Scheduler struct {
	repo      store.Repository
	fetchers  map[domain.RecordKind]metadata.Fetcher
	images    ImageCacher
	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    *slog.Logger
	itemDelay time.Duration
	now       func() time.Time
}

// New creates a Scheduler. Canonical records are refreshed through catalog
// and unofficial ones through scrape. images and m may be nil.
func New(repo store.Repository, catalog, scrape metadata.Fetcher, images ImageCacher, m *metrics.Metrics, logger *slog.Logger, opts Options) *Scheduler {
	if opts.ItemDelay < 0 {
		opts.ItemDelay = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	fetchers := make(map[domain.RecordKind]metadata.Fetcher, 2)
	if catalog != nil {
		fetchers[domain.KindCanonical] = catalog
	}
	if scrape != nil {
		fetchers[domain.KindUnofficial] = scrape
	}
	return &Scheduler{
		repo:      repo,
		fetchers:  fetchers,
		images:    images,
		validator: validation.New(),
		metrics:   m,
		logger:    logger,
		itemDelay: opts.ItemDelay,
		now:       time.Now,
	}
}

// RunCycle refreshes up to p.Limit records of p.Kind whose last refresh is
// older than p.Threshold, least recently refreshed first.
//
// A failing item is recorded and the cycle moves on. Cancellation is
// honored between items; an item that has started always finishes, and the
// result is then marked Partial.
func (s *Scheduler) RunCycle(ctx context.Context, p CycleParams) (*domain.BatchResult, error) {
	if err := s.validator.Validate(p); err != nil {
		return nil, err
	}

	started := s.now()
	result := &domain.BatchResult{
		RunID:     uuid.NewString(),
		Kind:      p.Kind,
		Errors:    []domain.ItemError{},
		StartedAt: started.UTC(),
	}
	log := s.logger.With("run_id", result.RunID, "kind", p.Kind)

	records, err := s.repo.ListStale(ctx, p.Kind, started.Add(-p.Threshold), p.Limit)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	result.Total = len(records)
	log.Info("refresh cycle started", "stale", result.Total, "threshold", p.Threshold)

	for i, rec := range records {
		if i > 0 && s.itemDelay > 0 {
			if err := ratelimit.Sleep(ctx, s.itemDelay); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		// Started items run to completion even if ctx is cancelled now.
		degraded, err := s.refresh(context.WithoutCancel(ctx), rec)
		if err != nil {
			result.RecordFailure(rec.ID, err)
			s.metrics.RefreshItem(string(p.Kind), metrics.ItemFailed)
			log.Warn("refresh failed", "id", rec.ID, "identifier", rec.Identifier, "error", err)
			continue
		}
		if degraded {
			result.RecordDegraded()
			s.metrics.RefreshItem(string(p.Kind), metrics.ItemDegraded)
			log.Debug("placeholder metadata, snapshot kept", "id", rec.ID, "identifier", rec.Identifier)
			continue
		}
		result.RecordSuccess()
		s.metrics.RefreshItem(string(p.Kind), metrics.ItemSucceeded)
	}

	result.Partial = result.Processed() < result.Total
	result.FinishedAt = s.now().UTC()
	s.metrics.RefreshCycle(string(p.Kind), result.Partial, result.FinishedAt.Sub(result.StartedAt))

	log.Info("refresh cycle finished",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"degraded", result.Degraded,
		"failed", result.Failed,
		"partial", result.Partial,
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result, nil
}

// refresh fetches, caches the image and persists one record. Placeholder
// metadata leaves the stored snapshot alone but still stamps the refresh
// time, and is reported as degraded.
func (s *Scheduler) refresh(ctx context.Context, rec *store.StaleRecord) (degraded bool, err error) {
	fetcher, ok := s.fetchers[rec.Kind]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNoFetcher, rec.Kind)
	}

	md, err := fetcher.Fetch(ctx, rec.Identifier)
	if err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}
	s.metrics.Fetch(sourceName(rec.Kind), string(md.Quality))

	degraded = md.Quality == domain.QualityPlaceholder
	if !degraded {
		if md.ImageURL != "" && s.images != nil {
			cached, err := s.images.Cache(ctx, md.ImageURL)
			if err == nil {
				md = md.WithImage(cached)
			}
		}
		if err := s.repo.UpdateMetadata(ctx, rec.Kind, rec.ID, md); err != nil {
			return false, fmt.Errorf("update metadata: %w", err)
		}
	}
	if err := s.repo.TouchRefreshedAt(ctx, rec.Kind, rec.ID, s.now()); err != nil {
		return false, fmt.Errorf("touch refreshed: %w", err)
	}
	return degraded, nil
}

func sourceName(kind domain.RecordKind) string {
	if kind == domain.KindCanonical {
		return "catalog"
	}
	return "scrape"
}
