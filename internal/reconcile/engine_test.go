package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/store/sqlite"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRepo(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, repo *sqlite.Store, id string, ident domain.Identifier, user string, at time.Time) {
	t.Helper()
	require.NoError(t, repo.CreateSubmission(context.Background(), &domain.UnofficialSubmission{
		Record:     domain.Record{ID: id, CreatedAt: at, UpdatedAt: at, LastRefreshedAt: at},
		Identifier: ident,
		UserID:     user,
		Metadata: &domain.ProductMetadata{
			Title:      "Snapshot " + id,
			ImageURL:   "https://images.example.com/" + id + ".jpg",
			Attributes: map[string]any{metadata.AttrCategory: "Kitchen"},
			Quality:    domain.QualityFull,
		},
	}))
}

// seedExample loads the two-user / one-user scenario.
func seedExample(t *testing.T, repo *sqlite.Store) {
	t.Helper()
	day := func(n int) time.Time { return time.Date(2026, 3, n, 9, 0, 0, 0, time.UTC) }
	seed(t, repo, "sub-1", "B08NWQ8JRF", "alice", day(1))
	seed(t, repo, "sub-2", "B08NWQ8JRF", "bob", day(4))
	seed(t, repo, "sub-3", "B0B7CQWVX6", "carol", day(2))
}

type fakeImages struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeImages) Cache(_ context.Context, src string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, src)
	return "/media/images/cached.jpg", nil
}

func failingCatalog() metadata.Fetcher {
	return metadata.FetcherFunc(func(context.Context, domain.Identifier) (domain.ProductMetadata, error) {
		return domain.ProductMetadata{}, errors.New("catalog unavailable")
	})
}

func TestEngine_ExampleScenario(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	ctx := context.Background()
	engine := NewEngine(repo, failingCatalog(), &fakeImages{}, nil, testLogger(), Options{})

	groups, err := engine.ListCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, domain.Identifier("B08NWQ8JRF"), groups[0].Identifier)
	assert.Equal(t, 2, groups[0].DistinctUserCount)
	assert.True(t, groups[0].Eligible())
	assert.Equal(t, domain.Identifier("B0B7CQWVX6"), groups[1].Identifier)
	assert.Equal(t, 1, groups[1].DistinctUserCount)
	assert.False(t, groups[1].Eligible())

	res, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, domain.StatePromoted, res.State)
	assert.Equal(t, 2, res.MigratedCount)
	assert.False(t, res.LiveMetadata)

	n, err := repo.CountCanonicalByIdentifier(ctx, "B08NWQ8JRF")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for _, id := range []string{"sub-1", "sub-2"} {
		s, err := repo.GetSubmission(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, res.CanonicalID, s.CanonicalID)
		assert.Nil(t, s.Metadata)
	}

	// Policy rejection for the single-user group.
	res, err = engine.Promote(ctx, "B0B7CQWVX6", PromoteOptions{})
	require.ErrorIs(t, err, ErrBelowThreshold)
	assert.False(t, res.Success)
	assert.Equal(t, domain.RejectBelowThreshold, res.Reason)
	assert.True(t, IsRejection(err))

	n, err = repo.CountCanonicalByIdentifier(ctx, "B0B7CQWVX6")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Override path.
	res, err = engine.Promote(ctx, "B0B7CQWVX6", PromoteOptions{Override: true, Category: "Drinkware"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MigratedCount)

	product, err := repo.GetCanonical(ctx, res.CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, "Drinkware", product.Category)

	groups, err = engine.ListCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestEngine_PromoteTwiceIsRejected(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	ctx := context.Background()
	engine := NewEngine(repo, nil, nil, nil, testLogger(), Options{})

	_, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
	require.NoError(t, err)

	res, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{Override: true})
	require.ErrorIs(t, err, ErrAlreadyPromoted)
	assert.Equal(t, domain.RejectAlreadyCanonical, res.Reason)
	assert.Equal(t, domain.StateRejected, res.State)

	n, err := repo.CountCanonicalByIdentifier(ctx, "B08NWQ8JRF")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_ConcurrentPromotions(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	engine := NewEngine(repo, nil, nil, nil, testLogger(), Options{})

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Promote(context.Background(), "B08NWQ8JRF", PromoteOptions{})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyPromoted):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, rejected)
}

// interleavingRepo runs before once, just ahead of the first group load.
type interleavingRepo struct {
	*sqlite.Store
	once   sync.Once
	before func()
}

func (r *interleavingRepo) FindUnofficialByIdentifier(ctx context.Context, ident domain.Identifier) ([]*domain.UnofficialSubmission, error) {
	r.once.Do(r.before)
	return r.Store.FindUnofficialByIdentifier(ctx, ident)
}

func TestEngine_PromotionCommittedBeforeGroupLoad(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	ctx := context.Background()

	rival := NewEngine(repo, nil, nil, nil, testLogger(), Options{})
	wrapped := &interleavingRepo{Store: repo}
	wrapped.before = func() {
		_, err := rival.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
		require.NoError(t, err)
	}
	engine := NewEngine(wrapped, nil, nil, nil, testLogger(), Options{})

	res, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
	require.ErrorIs(t, err, ErrAlreadyPromoted)
	assert.Equal(t, domain.RejectAlreadyCanonical, res.Reason)

	n, err := repo.CountCanonicalByIdentifier(ctx, "B08NWQ8JRF")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngine_GroupEmpty(t *testing.T) {
	repo := newTestRepo(t)
	engine := NewEngine(repo, nil, nil, nil, testLogger(), Options{})

	res, err := engine.Promote(context.Background(), "B000000000", PromoteOptions{Override: true})
	require.ErrorIs(t, err, ErrGroupEmpty)
	assert.Equal(t, domain.RejectGroupEmpty, res.Reason)
}

func TestEngine_UsesLiveCatalogMetadata(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	ctx := context.Background()

	catalog := metadata.FetcherFunc(func(_ context.Context, id domain.Identifier) (domain.ProductMetadata, error) {
		return domain.ProductMetadata{
			Title:    "Contigo Autoseal Travel Mug",
			ImageURL: "https://m.media-amazon.com/images/I/mug.jpg",
			Attributes: map[string]any{
				metadata.AttrCategory:  "Home",
				metadata.AttrDetailURL: "https://www.amazon.com/dp/" + string(id) + "?tag=wishlist-20",
			},
			Quality: domain.QualityFull,
		}, nil
	})
	images := &fakeImages{}
	engine := NewEngine(repo, catalog, images, nil, testLogger(), Options{})

	res, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
	require.NoError(t, err)
	assert.True(t, res.LiveMetadata)

	product, err := repo.GetCanonical(ctx, res.CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, "Contigo Autoseal Travel Mug", product.Metadata.Title)
	assert.Equal(t, "/media/images/cached.jpg", product.Metadata.ImageURL)
	assert.Equal(t, "Home", product.Category)
	assert.Equal(t, "https://www.amazon.com/dp/B08NWQ8JRF?tag=wishlist-20", product.AffiliateURL)
	assert.Equal(t, "https://www.amazon.com/dp/B08NWQ8JRF", product.SourceURL)
	assert.Equal(t, []string{"https://m.media-amazon.com/images/I/mug.jpg"}, images.calls)
}

func TestEngine_FallsBackToSnapshot(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	ctx := context.Background()
	engine := NewEngine(repo, failingCatalog(), nil, nil, testLogger(), Options{})

	res, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
	require.NoError(t, err)

	product, err := repo.GetCanonical(ctx, res.CanonicalID)
	require.NoError(t, err)
	// sub-2 is the most recent full snapshot.
	assert.Equal(t, "Snapshot sub-2", product.Metadata.Title)
	assert.Equal(t, "Kitchen", product.Category)
}

func TestEngine_Relink(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	ctx := context.Background()
	engine := NewEngine(repo, nil, nil, nil, testLogger(), Options{})

	res, err := engine.Relink(ctx, "B08NWQ8JRF")
	require.ErrorIs(t, err, ErrNotPromoted)
	assert.False(t, res.Success)

	promoted, err := engine.Promote(ctx, "B08NWQ8JRF", PromoteOptions{})
	require.NoError(t, err)

	// A straggler submitted after promotion.
	seed(t, repo, "sub-4", "B08NWQ8JRF", "dave", time.Now())

	groups, err := engine.ListCandidates(ctx)
	require.NoError(t, err)
	for _, g := range groups {
		assert.NotEqual(t, domain.Identifier("B08NWQ8JRF"), g.Identifier)
	}

	res, err = engine.Relink(ctx, "B08NWQ8JRF")
	require.NoError(t, err)
	assert.Equal(t, 1, res.MigratedCount)
	assert.Equal(t, promoted.CanonicalID, res.CanonicalID)

	s, err := repo.GetSubmission(ctx, "sub-4")
	require.NoError(t, err)
	assert.Equal(t, promoted.CanonicalID, s.CanonicalID)
}

func TestEngine_CustomThreshold(t *testing.T) {
	repo := newTestRepo(t)
	seedExample(t, repo)
	engine := NewEngine(repo, nil, nil, nil, testLogger(), Options{MinDistinctUsers: 3})
	assert.Equal(t, 3, engine.MinDistinctUsers())

	_, err := engine.Promote(context.Background(), "B08NWQ8JRF", PromoteOptions{})
	assert.ErrorIs(t, err, ErrBelowThreshold)
}
