package scrape

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
)

const testPlaceholder = "https://cdn.example.com/placeholder.png"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixtureServer serves testdata/<name>.html for /dp/<id> using the routes map.
func fixtureServer(t *testing.T, routes map[string]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "en-US,en;q=0.9", r.Header.Get("Accept-Language"))

		id := strings.TrimPrefix(r.URL.Path, "/dp/")
		name, ok := routes[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		body, err := os.ReadFile(filepath.Join("testdata", name))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestFetcher(t *testing.T, baseURL string) *Fetcher {
	t.Helper()
	f := New(testLogger(), Options{
		BaseURL:          baseURL,
		PlaceholderImage: testPlaceholder,
		HostRPS:          1000,
		HostBurst:        100,
		Timeout:          5 * time.Second,
	})
	t.Cleanup(f.Close)
	return f
}

func TestFetch_FullPage(t *testing.T) {
	srv, hits := fixtureServer(t, map[string]string{"B08NWQ8JRF": "full.html"})
	f := newTestFetcher(t, srv.URL)

	md, err := f.Fetch(context.Background(), domain.Identifier("B08NWQ8JRF"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, domain.QualityFull, md.Quality)
	assert.Equal(t, "Lumen LED Desk Lamp", md.Title)
	assert.Equal(t, "https://m.media-amazon.com/images/I/71lumenLamp._AC_SL1500_.jpg", md.ImageURL)

	require.NotNil(t, md.Description)
	assert.Contains(t, *md.Description, "adjustable")
	assert.NotContains(t, *md.Description, "<b>")
	assert.NotContains(t, *md.Description, "trackView")

	require.NotNil(t, md.Price)
	assert.Equal(t, "24.99", md.Price.Amount.StringFixed(2))
	assert.Equal(t, "USD", md.Price.Currency)

	assert.Equal(t, "Lumen", md.Attribute(metadata.AttrBrand))
	assert.Equal(t, "Desk Lamps", md.Attribute(metadata.AttrCategory))
	assert.Equal(t, "B08NWQ8JRF", md.Attribute(metadata.AttrIdentifier))
	assert.Equal(t, "scrape", md.Attribute(metadata.AttrSource))
}

func TestFetch_PartialPageFallsBackToPlaceholderImage(t *testing.T) {
	srv, _ := fixtureServer(t, map[string]string{"B0B7CQWVX6": "partial.html"})
	f := newTestFetcher(t, srv.URL)

	md, err := f.Fetch(context.Background(), domain.Identifier("B0B7CQWVX6"))
	require.NoError(t, err)

	assert.Equal(t, domain.QualityPartial, md.Quality)
	assert.Equal(t, "Travel Mug, 16 oz", md.Title)
	assert.Equal(t, testPlaceholder, md.ImageURL)

	require.NotNil(t, md.Description)
	assert.Contains(t, *md.Description, "Keeps drinks hot for 6 hours")

	require.NotNil(t, md.Price)
	assert.Equal(t, "1299.5", md.Price.Amount.String())
	assert.Equal(t, "GBP", md.Price.Currency)
}

func TestFetch_DynamicImagePicksLargest(t *testing.T) {
	srv, _ := fixtureServer(t, map[string]string{"B000000001": "dynamic_image.html"})
	f := newTestFetcher(t, srv.URL)

	md, err := f.Fetch(context.Background(), domain.Identifier("B000000001"))
	require.NoError(t, err)

	assert.Equal(t, domain.QualityFull, md.Quality)
	assert.Equal(t, "Noise Cancelling Headphones", md.Title)
	assert.Equal(t, "https://m.media-amazon.com/images/I/large.jpg", md.ImageURL)
}

func TestFetch_DegradesToPlaceholder(t *testing.T) {
	tests := []struct {
		name   string
		routes map[string]string
	}{
		{name: "not found", routes: map[string]string{}},
		{name: "bot check page", routes: map[string]string{"B000000002": "captcha.html"}},
		{name: "nothing extractable", routes: map[string]string{"B000000002": "empty.html"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := fixtureServer(t, tt.routes)
			f := newTestFetcher(t, srv.URL)

			md, err := f.Fetch(context.Background(), domain.Identifier("B000000002"))
			require.NoError(t, err)

			assert.Equal(t, domain.QualityPlaceholder, md.Quality)
			assert.Equal(t, "Product B000000002", md.Title)
			assert.Equal(t, testPlaceholder, md.ImageURL)
			assert.Nil(t, md.Price)
			assert.Equal(t, "B000000002", md.Attribute(metadata.AttrIdentifier))
		})
	}
}

func TestFetch_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	f := newTestFetcher(t, baseURL)
	md, err := f.Fetch(context.Background(), domain.Identifier("B08NWQ8JRF"))

	require.NoError(t, err)
	assert.Equal(t, domain.QualityPlaceholder, md.Quality)
}

func TestFetch_CancelledContextIsAnError(t *testing.T) {
	srv, hits := fixtureServer(t, map[string]string{"B08NWQ8JRF": "full.html"})
	f := newTestFetcher(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, domain.Identifier("B08NWQ8JRF"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}

func TestFetch_SetTableAppliesToNextFetch(t *testing.T) {
	srv, _ := fixtureServer(t, map[string]string{"B08NWQ8JRF": "full.html"})
	f := newTestFetcher(t, srv.URL)

	table, err := TableSpec{
		Fields: map[Field][]RuleSpec{
			FieldTitle: {{Kind: KindElementText, Key: "bylineInfo"}},
			FieldImage: {{Kind: KindMetaProperty, Key: "og:image"}},
		},
	}.Compile()
	require.NoError(t, err)
	f.SetTable(table)

	md, err := f.Fetch(context.Background(), domain.Identifier("B08NWQ8JRF"))
	require.NoError(t, err)
	assert.Equal(t, "Visit the Lumen Store", md.Title)
	assert.Nil(t, md.Price)
	assert.Nil(t, md.Description)
}

func TestCleanBrand(t *testing.T) {
	tests := map[string]string{
		"Visit the Lumen Store": "Lumen",
		"Brand: Contigo":        "Contigo",
		"  Anker ":              "Anker",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanBrand(in), in)
	}
}

func TestAbsoluteURL(t *testing.T) {
	got, ok := absoluteURL("https://www.amazon.com", "/images/I/a.jpg")
	require.True(t, ok)
	assert.Equal(t, "https://www.amazon.com/images/I/a.jpg", got)

	_, ok = absoluteURL("https://www.amazon.com", "data:image/gif;base64,AAAA")
	assert.False(t, ok)

	_, ok = absoluteURL("https://www.amazon.com", "javascript:void(0)")
	assert.False(t, ok)
}
