package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/identifier"
	"github.com/wishlistapp/catalog-server/internal/imagecache"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/objectstore"
	"github.com/wishlistapp/catalog-server/internal/proxy"
	"github.com/wishlistapp/catalog-server/internal/reconcile"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
	"github.com/wishlistapp/catalog-server/internal/service"
	"github.com/wishlistapp/catalog-server/internal/store/sqlite"
)

// testEnvelope mirrors APIEnvelope with a typed payload.
type testEnvelope[T any] struct {
	Version int    `json:"v"`
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// testErrorEnvelope mirrors APIErrorEnvelope.
type testErrorEnvelope struct {
	Version int             `json:"v"`
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type testServer struct {
	*Server
	api  humatest.TestAPI
	repo *sqlite.Store
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// imageOrigin serves a PNG for every path.
func imageOrigin(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := range 300 {
		for x := range 400 {
			img.Set(x, y, color.RGBA{R: 220, G: 120, B: 20, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func setupTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	logger := testLogger()

	repo, err := sqlite.Open(filepath.Join(t.TempDir(), "catalog.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	objects, err := objectstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	index, err := imagecache.OpenIndex("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	rw, err := proxy.NewRewriter(proxy.Config{Prefix: "/media", Endpoint: "http://localhost:9000", Bucket: "catalog"})
	require.NoError(t, err)

	m := metrics.New()
	images := imagecache.New(objects, index, rw, m, logger, imagecache.Options{})

	origin := imageOrigin(t)
	scrape := metadata.FetcherFunc(func(_ context.Context, id domain.Identifier) (domain.ProductMetadata, error) {
		return domain.ProductMetadata{
			Title:    "Scraped " + string(id),
			ImageURL: origin.URL + "/" + string(id) + ".png",
			Quality:  domain.QualityFull,
		}, nil
	})

	lookup := service.NewLookupService(identifier.New(logger, identifier.Options{}), scrape, nil, images, repo, logger)
	engine := reconcile.NewEngine(repo, nil, images, m, logger, reconcile.Options{})
	sched := scheduler.New(repo, nil, scrape, images, m, logger, scheduler.Options{})

	if cfg.ProxyPrefix == "" {
		cfg.ProxyPrefix = "/media"
	}
	s := NewServer(&Services{
		Repo:       repo,
		Lookup:     lookup,
		Reconcile:  engine,
		Scheduler:  sched,
		Images:     images,
		ImageIndex: index,
		Metrics:    m,
		Proxy:      proxy.NewHandler(objects, logger),
	}, cfg, logger)
	t.Cleanup(s.Close)

	return &testServer{Server: s, api: humatest.Wrap(t, s.api), repo: repo}
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var env testEnvelope[T]
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.True(t, env.Success)
	return env.Data
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) testErrorEnvelope {
	t.Helper()
	var env testErrorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env), resp.Body.String())
	assert.False(t, env.Success)
	return env
}

func (ts *testServer) seedSubmission(t *testing.T, id string, ident domain.Identifier, user string, day int) {
	t.Helper()
	at := time.Date(2026, 3, day, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ts.repo.CreateSubmission(context.Background(), &domain.UnofficialSubmission{
		Record:     domain.Record{ID: id, CreatedAt: at, UpdatedAt: at, LastRefreshedAt: at},
		Identifier: ident,
		UserID:     user,
		Metadata: &domain.ProductMetadata{
			Title:   "Snapshot " + id,
			Quality: domain.QualityFull,
		},
	}))
}

func TestResolveProduct(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/products/resolve", map[string]any{
		"url": "https://www.amazon.de/-/en/dp/B08NWQ8JRF?psc=1",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	out := decode[ResolveResponse](t, resp)
	assert.Equal(t, domain.Identifier("B08NWQ8JRF"), out.Identifier)
	assert.Equal(t, "https://www.amazon.com/dp/B08NWQ8JRF", out.SourceURL)

	resp = ts.api.Post("/api/v1/products/resolve", map[string]any{"url": "https://www.example.com/shop"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, resp).Code)

	resp = ts.api.Post("/api/v1/products/resolve", map[string]any{"url": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestLookupProduct_CachesImageAndServesIt(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/products/lookup", map[string]any{"url": "B0B7CQWVX6"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	out := decode[ProductResponse](t, resp)
	assert.Equal(t, "Scraped B0B7CQWVX6", out.Metadata.Title)
	require.True(t, strings.HasPrefix(out.Metadata.ImageURL, "/media/images/"), out.Metadata.ImageURL)
	assert.Empty(t, out.CanonicalID)

	img := httptest.NewRecorder()
	ts.ServeHTTP(img, httptest.NewRequest(http.MethodGet, out.Metadata.ImageURL, nil))
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/jpeg", img.Header().Get("Content-Type"))
	assert.NotZero(t, img.Body.Len())
}

func TestSubmitProduct(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/products/submissions", map[string]any{
		"user_id": "alice",
		"url":     "https://www.amazon.co.uk/dp/B08NWQ8JRF/ref=sr_1_1",
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	sub := decode[domain.UnofficialSubmission](t, resp)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, domain.Identifier("B08NWQ8JRF"), sub.Identifier)
	assert.Equal(t, "alice", sub.UserID)
	require.NotNil(t, sub.Metadata)
	assert.Equal(t, "Scraped B08NWQ8JRF", sub.Metadata.Title)
	assert.False(t, sub.IsPromoted())

	stored, err := ts.repo.GetSubmission(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.UserID)

	resp = ts.api.Post("/api/v1/products/submissions", map[string]any{"user_id": "", "url": "B08NWQ8JRF"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestAdminLookup_CatalogNotConfigured(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/admin/products/lookup", map[string]any{"url": "B0B7CQWVX6"})
	require.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, "UPSTREAM", decodeError(t, resp).Code)
}

func TestPromotionFlow(t *testing.T) {
	ts := setupTestServer(t, Config{})
	ts.seedSubmission(t, "sub-1", "B08NWQ8JRF", "alice", 1)
	ts.seedSubmission(t, "sub-2", "B08NWQ8JRF", "bob", 4)
	ts.seedSubmission(t, "sub-3", "B0B7CQWVX6", "carol", 2)

	// Candidates, most corroborated first.
	resp := ts.api.Get("/api/v1/admin/promotions")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[struct {
		MinDistinctUsers int                  `json:"min_distinct_users"`
		Candidates       []PromotionCandidate `json:"candidates"`
	}](t, resp)
	assert.Equal(t, 2, list.MinDistinctUsers)
	require.Len(t, list.Candidates, 2)
	assert.Equal(t, domain.Identifier("B08NWQ8JRF"), list.Candidates[0].Identifier)
	assert.Equal(t, domain.StatePromotionEligible, list.Candidates[0].State)
	assert.Equal(t, "Snapshot sub-2", list.Candidates[0].Title)

	// Eligible group promotes.
	resp = ts.api.Post("/api/v1/admin/promotions/B08NWQ8JRF", map[string]any{})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[reconcile.Result](t, resp)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.MigratedCount)
	assert.NotEmpty(t, res.CanonicalID)

	// Second attempt is a conflict carrying the structured result.
	resp = ts.api.Post("/api/v1/admin/promotions/B08NWQ8JRF", map[string]any{})
	require.Equal(t, http.StatusConflict, resp.Code)
	errEnv := decodeError(t, resp)
	assert.Equal(t, "CONFLICT", errEnv.Code)
	var rejected reconcile.Result
	require.NoError(t, json.Unmarshal(errEnv.Details, &rejected))
	assert.False(t, rejected.Success)
	assert.Equal(t, domain.RejectAlreadyCanonical, rejected.Reason)

	// Single-user group needs an override.
	resp = ts.api.Post("/api/v1/admin/promotions/B0B7CQWVX6", map[string]any{})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Equal(t, "REJECTED", decodeError(t, resp).Code)

	resp = ts.api.Post("/api/v1/admin/promotions/B0B7CQWVX6", map[string]any{"override": true, "category": "Drinkware"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res = decode[reconcile.Result](t, resp)
	assert.Equal(t, 1, res.MigratedCount)

	product, err := ts.repo.GetCanonical(context.Background(), res.CanonicalID)
	require.NoError(t, err)
	assert.Equal(t, "Drinkware", product.Category)

	// Nothing left to promote.
	resp = ts.api.Get("/api/v1/admin/promotions")
	require.Equal(t, http.StatusOK, resp.Code)
	list = decode[struct {
		MinDistinctUsers int                  `json:"min_distinct_users"`
		Candidates       []PromotionCandidate `json:"candidates"`
	}](t, resp)
	assert.Empty(t, list.Candidates)
}

func TestRelink(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/admin/promotions/B08NWQ8JRF/relink")
	require.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Code)

	ts.seedSubmission(t, "sub-1", "B08NWQ8JRF", "alice", 1)
	resp = ts.api.Post("/api/v1/admin/promotions/B08NWQ8JRF", map[string]any{"override": true})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	ts.seedSubmission(t, "sub-late", "B08NWQ8JRF", "dave", 9)
	resp = ts.api.Post("/api/v1/admin/promotions/B08NWQ8JRF/relink")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, 1, decode[reconcile.Result](t, resp).MigratedCount)

	sub, err := ts.repo.GetSubmission(context.Background(), "sub-late")
	require.NoError(t, err)
	assert.True(t, sub.IsPromoted())
}

func TestPromote_InvalidIdentifier(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/admin/promotions/not-an-id", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION", decodeError(t, resp).Code)
}

func TestRefresh(t *testing.T) {
	ts := setupTestServer(t, Config{})
	ts.seedSubmission(t, "sub-1", "B08NWQ8JRF", "alice", 1)
	ts.seedSubmission(t, "sub-2", "B0B7CQWVX6", "bob", 2)

	resp := ts.api.Post("/api/v1/admin/refresh", map[string]any{
		"kind":      "unofficial",
		"threshold": "24h",
		"limit":     10,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	res := decode[domain.BatchResult](t, resp)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, domain.KindUnofficial, res.Kind)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.False(t, res.Partial)

	sub, err := ts.repo.GetSubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "Scraped B08NWQ8JRF", sub.Metadata.Title)
}

func TestRefresh_Validation(t *testing.T) {
	ts := setupTestServer(t, Config{})

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"unknown kind", map[string]any{"kind": "wishlist", "threshold": "1h", "limit": 1}, http.StatusUnprocessableEntity},
		{"limit too large", map[string]any{"kind": "canonical", "threshold": "1h", "limit": 501}, http.StatusUnprocessableEntity},
		{"zero threshold", map[string]any{"kind": "canonical", "threshold": "0s", "limit": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := ts.api.Post("/api/v1/admin/refresh", tt.body)
			assert.Equal(t, tt.status, resp.Code, resp.Body.String())
		})
	}
}

func TestImageGC(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/products/lookup", map[string]any{"url": "B0B7CQWVX6"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Post("/api/v1/admin/images/gc", map[string]any{"older_than": "1h"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[imagecache.GCResult](t, resp)
	assert.Equal(t, 0, res.Deleted)

	resp = ts.api.Post("/api/v1/admin/images/gc", map[string]any{"older_than": "0s"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t, Config{})

	resp := ts.api.Post("/api/v1/products/lookup", map[string]any{"url": "B0B7CQWVX6"})
	require.Equal(t, http.StatusOK, resp.Code)

	rec := httptest.NewRecorder()
	ts.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `catalog_image_cache_requests_total{outcome="stored"} 1`)
}

func TestRateLimit(t *testing.T) {
	ts := setupTestServer(t, Config{RateLimitRPS: 0.001, RateLimitBurst: 1})
	body := map[string]any{"url": "B08NWQ8JRF"}

	resp := ts.api.Post("/api/v1/products/resolve", "X-Forwarded-For: 203.0.113.7", body)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = ts.api.Post("/api/v1/products/resolve", "X-Forwarded-For: 203.0.113.7", body)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.Equal(t, "RATE_LIMITED", decodeError(t, resp).Code)

	// Other clients and admin routes are unaffected.
	resp = ts.api.Post("/api/v1/products/resolve", "X-Forwarded-For: 198.51.100.1", body)
	assert.Equal(t, http.StatusOK, resp.Code)
	resp = ts.api.Get("/api/v1/admin/promotions", "X-Forwarded-For: 203.0.113.7")
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		xff, xri, remote string
		want             string
	}{
		{"203.0.113.7, 10.0.0.1", "", "10.0.0.2:5555", "203.0.113.7"},
		{"", "198.51.100.9", "10.0.0.2:5555", "198.51.100.9"},
		{"", "", "10.0.0.2:5555", "10.0.0.2"},
		{"", "", "unix", "unix"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clientIP(tt.xff, tt.xri, tt.remote))
	}
}
