package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testOptions(baseURL string) Options {
	return Options{
		AccessKey:  exampleCreds.AccessKey,
		SecretKey:  exampleCreds.SecretKey,
		PartnerTag: "wishlist-20",
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
	}
}

// verifySignature recomputes the signature the way the provider does and
// fails the request when it does not match.
func verifySignature(t *testing.T, r *http.Request, body []byte) bool {
	t.Helper()
	signTime, err := time.Parse(AmzDateFormat, r.Header.Get("X-Amz-Date"))
	if !assert.NoError(t, err) {
		return false
	}
	want := Sign(SigningInput{
		Method: r.Method,
		Path:   r.URL.EscapedPath(),
		Headers: map[string]string{
			"content-encoding": r.Header.Get("Content-Encoding"),
			"content-type":     r.Header.Get("Content-Type"),
			"host":             r.Host,
			"x-amz-date":       r.Header.Get("X-Amz-Date"),
			"x-amz-target":     r.Header.Get("X-Amz-Target"),
		},
		Payload: body,
		Region:  "us-east-1",
		Service: Service,
		Time:    signTime,
	}, exampleCreds)
	return assert.Equal(t, want.Authorization, r.Header.Get("Authorization"))
}

type recordedRequest struct {
	ItemIDs []string `json:"ItemIds"`
}

// catalogServer answers GetItems with the items from testdata/getitems.json
// that were asked for.
func catalogServer(t *testing.T) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	fixture, err := os.ReadFile(filepath.Join("testdata", "getitems.json"))
	require.NoError(t, err)

	var all getItemsResponse
	require.NoError(t, json.Unmarshal(fixture, &all))

	var mu sync.Mutex
	var requests []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/paapi5/getitems", r.URL.Path)
		assert.Equal(t, "amz-1.0", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, getItemsTarget, r.Header.Get("X-Amz-Target"))
		if !verifySignature(t, r, body) {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		var req recordedRequest
		if !assert.NoError(t, json.Unmarshal(body, &req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		requests = append(requests, req)
		mu.Unlock()

		var out getItemsResponse
		out.ItemsResult = &struct {
			Items []rawItem `json:"Items"`
		}{}
		for _, id := range req.ItemIDs {
			for _, item := range all.ItemsResult.Items {
				if item.ASIN == id {
					out.ItemsResult.Items = append(out.ItemsResult.Items, item)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func TestFetch_MapsItem(t *testing.T) {
	srv, _ := catalogServer(t)
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))

	md, err := c.Fetch(context.Background(), "B08NWQ8JRF")
	require.NoError(t, err)

	assert.Equal(t, domain.QualityFull, md.Quality)
	assert.Equal(t, "Lumen LED Desk Lamp", md.Title)
	assert.Equal(t, "https://m.media-amazon.com/images/I/41lamp._SL500_.jpg", md.ImageURL)
	require.NotNil(t, md.Description)
	assert.Equal(t, "- Five brightness levels\n- USB-C charging port", *md.Description)
	require.NotNil(t, md.Price)
	assert.Equal(t, "24.99", md.Price.Amount.String())
	assert.Equal(t, "USD", md.Price.Currency)
	assert.Equal(t, "Lumen", md.Attribute(metadata.AttrBrand))
	assert.Equal(t, "Home Improvement", md.Attribute(metadata.AttrProductGroup))
	assert.Equal(t, "Tools & Home Improvement", md.Attribute(metadata.AttrBinding))
	assert.Equal(t, "catalog", md.Attribute(metadata.AttrSource))
	assert.Contains(t, md.Attribute(metadata.AttrDetailURL), "tag=wishlist-20")
}

func TestFetch_ItemWithoutImageIsPartial(t *testing.T) {
	srv, _ := catalogServer(t)
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))

	md, err := c.Fetch(context.Background(), "B0B7CQWVX6")
	require.NoError(t, err)

	assert.Equal(t, domain.QualityPartial, md.Quality)
	assert.Equal(t, "Travel Mug, 16 oz", md.Title)
	assert.Empty(t, md.ImageURL)
	assert.Nil(t, md.Price)
	assert.Equal(t, "Contigo", md.Attribute(metadata.AttrBrand))
}

func TestFetch_MissingItem(t *testing.T) {
	srv, _ := catalogServer(t)
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))

	_, err := c.Fetch(context.Background(), "B000000000")
	require.ErrorIs(t, err, ErrNotFound)

	var catErr *Error
	require.ErrorAs(t, err, &catErr)
	assert.Equal(t, domain.Identifier("B000000000"), catErr.ASIN)
}

func TestGetItems_PerItemErrors(t *testing.T) {
	srv, requests := catalogServer(t)
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))

	res, err := c.GetItems(context.Background(), []domain.Identifier{"B08NWQ8JRF", "B000000000", "B0B7CQWVX6"})
	require.NoError(t, err)

	assert.Len(t, requests(), 1)
	assert.Len(t, res.Items, 2)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors["B000000000"], ErrNotFound)
}

func TestGetItems_BatchBounds(t *testing.T) {
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions("http://127.0.0.1:1"))

	ids := make([]domain.Identifier, MaxBatchSize+1)
	for i := range ids {
		ids[i] = domain.Identifier(fmt.Sprintf("B%09d", i))
	}
	_, err := c.GetItems(context.Background(), ids)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = c.GetItems(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

func TestGetItems_NotConfigured(t *testing.T) {
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), Options{BaseURL: "http://127.0.0.1:1"})

	assert.False(t, c.Configured())
	_, err := c.Fetch(context.Background(), "B08NWQ8JRF")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestGetItems_APIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "throttled", status: http.StatusTooManyRequests, want: ErrRateLimited},
		{name: "server error", status: http.StatusServiceUnavailable, want: ErrServer},
		{name: "bad request", status: http.StatusBadRequest, want: ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"Errors":[{"Code":"TooManyRequests","Message":"slow down"}]}`))
			}))
			defer srv.Close()

			c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))
			_, err := c.Fetch(context.Background(), "B08NWQ8JRF")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Contains(t, apiErr.Body, "slow down")
		})
	}
}

func TestGetItemsChunked_RespectsBatchSizeAndFloor(t *testing.T) {
	srv, requests := catalogServer(t)
	interval := 40 * time.Millisecond
	c := New(testLogger(), ratelimit.NewThrottle(interval), testOptions(srv.URL))

	ids := []domain.Identifier{"B08NWQ8JRF", "B0B7CQWVX6"}
	for i := 0; i < 21; i++ {
		ids = append(ids, domain.Identifier(fmt.Sprintf("C%09d", i)))
	}

	start := time.Now()
	res, err := c.GetItemsChunked(context.Background(), ids)
	elapsed := time.Since(start)
	require.NoError(t, err)

	require.Len(t, requests(), 3)
	for _, r := range requests() {
		assert.LessOrEqual(t, len(r.ItemIDs), MaxBatchSize)
	}
	assert.GreaterOrEqual(t, elapsed, 2*interval)
	assert.Len(t, res.Items, 2)
	assert.Len(t, res.Errors, 21)
}

func TestGetItemsChunked_FailedChunkDoesNotStopOthers(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"ItemsResult":{"Items":[{"ASIN":"C000000010","ItemInfo":{"Title":{"DisplayValue":"Kettle"}}}]}}`))
	}))
	defer srv.Close()

	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))
	ids := make([]domain.Identifier, 11)
	for i := range ids {
		ids[i] = domain.Identifier(fmt.Sprintf("C%09d", i))
	}

	res, err := c.GetItemsChunked(context.Background(), ids)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, res.Items, 1)
	assert.Len(t, res.Errors, 10)
	assert.ErrorIs(t, res.Errors["C000000000"], ErrServer)
}

func TestGetItemsChunked_Cancelled(t *testing.T) {
	srv, requests := catalogServer(t)
	c := New(testLogger(), ratelimit.NewThrottle(time.Millisecond), testOptions(srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := c.GetItemsChunked(ctx, []domain.Identifier{"B08NWQ8JRF"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Items)
	assert.Empty(t, requests())
}

func TestClients_ShareOneThrottle(t *testing.T) {
	srv, requests := catalogServer(t)
	interval := 20 * time.Millisecond
	throttle := ratelimit.NewThrottle(interval)

	a := New(testLogger(), throttle, testOptions(srv.URL))
	b := New(testLogger(), throttle, testOptions(srv.URL))

	const perClient = 4
	start := time.Now()
	var wg sync.WaitGroup
	for _, c := range []*Client{a, b} {
		for i := 0; i < perClient; i++ {
			wg.Add(1)
			go func(c *Client) {
				defer wg.Done()
				_, err := c.Fetch(context.Background(), "B08NWQ8JRF")
				assert.NoError(t, err)
			}(c)
		}
	}
	wg.Wait()

	assert.Len(t, requests(), 2*perClient)
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(2*perClient-1)*interval)
}

func TestChunk(t *testing.T) {
	ids := make([]domain.Identifier, 25)
	chunks := chunk(ids, 10)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 10)
	assert.Len(t, chunks[1], 10)
	assert.Len(t, chunks[2], 5)

	assert.Empty(t, chunk(nil, 10))
}
