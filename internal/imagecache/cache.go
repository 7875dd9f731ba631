// Package imagecache copies external product images into object storage and
// hands back stable proxy URLs.
//
// Storage keys are derived from the source URL, so the same URL always maps
// to the same object and repeated calls are idempotent. Failures never
// surface to callers: the original URL is returned instead.
package imagecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/media/images"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/objectstore"
	"github.com/wishlistapp/catalog-server/internal/proxy"
)

// KeyPrefix is the object key namespace for cached images.
const KeyPrefix = "images/"

var (
	// ErrEmptyURL is returned for an empty source URL.
	ErrEmptyURL = errors.New("imagecache: empty source url")
	// ErrUnknownProfile is returned for a profile name with no definition.
	ErrUnknownProfile = errors.New("imagecache: unknown profile")
)

// Options tunes downloads.
type Options struct {
	DownloadTimeout time.Duration
	MaxDownloadSize int64
	// HTTPClient overrides the download client. Its Timeout is left alone.
	HTTPClient *http.Client
}

// Cache is safe for concurrent use.
type Cache struct {
	store    objectstore.Store
	index    *Index
	rewriter *proxy.Rewriter
	dl       *downloader
	group    singleflight.Group
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Cache. index and m may be nil.
func New(store objectstore.Store, index *Index, rewriter *proxy.Rewriter, m *metrics.Metrics, logger *slog.Logger, opts Options) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		store:    store,
		index:    index,
		rewriter: rewriter,
		dl:       newDownloader(opts.HTTPClient, opts.DownloadTimeout, opts.MaxDownloadSize),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// StorageKey returns the object key for a source URL under a profile.
func StorageKey(sourceURL string, p images.Profile) string {
	sum := sha256.Sum256([]byte(sourceURL))
	name := hex.EncodeToString(sum[:])
	if p.Name != "" && p.Name != images.ProfileDefault.Name {
		name += "-" + p.Name
	}
	return KeyPrefix + name + ".jpg"
}

// Cache stores sourceURL with the default profile and returns its proxy URL.
func (c *Cache) Cache(ctx context.Context, sourceURL string) (string, error) {
	return c.CacheWithProfile(ctx, sourceURL, "")
}

// CacheWithProfile stores sourceURL transcoded with the named profile and
// returns its proxy URL. URLs already served by us (proxy form, relative
// paths, data: URIs) are returned as-is; native store URLs are rewritten to
// proxy form. On any download, transcode or storage failure the source URL is
// returned with a nil error.
func (c *Cache) CacheWithProfile(ctx context.Context, sourceURL, profileName string) (string, error) {
	sourceURL = strings.TrimSpace(sourceURL)
	if sourceURL == "" {
		return "", ErrEmptyURL
	}
	profile, ok := images.LookupProfile(profileName)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, profileName)
	}

	if out, ok := c.passthrough(sourceURL); ok {
		c.metrics.ImageCache(metrics.ImagePassthrough)
		return out, nil
	}

	key := StorageKey(sourceURL, profile)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Shared by every waiter; the first caller cancelling must not end it.
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*c.dl.timeout)
		defer cancel()
		return c.fill(fillCtx, sourceURL, key, profile)
	})
	if err != nil {
		c.metrics.ImageCache(metrics.ImageFailed)
		c.logger.Warn("image cache failed, using source url",
			"url", sourceURL,
			"key", key,
			"error", err,
		)
		return sourceURL, nil
	}
	c.metrics.ImageCache(v.(string))
	return c.rewriter.ObjectURL(key), nil
}

// passthrough decides whether sourceURL needs no caching.
func (c *Cache) passthrough(sourceURL string) (string, bool) {
	if c.rewriter.IsProxy(sourceURL) {
		return sourceURL, true
	}
	if strings.HasPrefix(strings.ToLower(sourceURL), "data:") {
		return sourceURL, true
	}
	if p, ok := c.rewriter.ToProxy(sourceURL); ok {
		return p, true
	}
	u, err := url.Parse(sourceURL)
	if err != nil || u.Host == "" {
		return sourceURL, true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return sourceURL, true
	}
	return "", false
}

// fill makes sure key exists in the store and returns the cache outcome.
func (c *Cache) fill(ctx context.Context, sourceURL, key string, profile images.Profile) (string, error) {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		return "", fmt.Errorf("check object: %w", err)
	}
	if exists {
		return metrics.ImageHit, nil
	}

	data, err := c.dl.fetch(ctx, sourceURL)
	if err != nil {
		return "", err
	}

	res, err := images.Transcode(data, profile)
	if err != nil {
		return "", fmt.Errorf("transcode: %w", err)
	}

	err = c.store.Put(ctx, key, res.Data, images.ContentType)
	switch {
	case err == nil:
	case errors.Is(err, objectstore.ErrAlreadyExists):
		// Another process stored the same bytes first.
		c.logger.Debug("image already stored", "key", key)
	default:
		return "", fmt.Errorf("store: %w", err)
	}

	c.record(ctx, &domain.CachedImage{
		StorageKey:  key,
		ContentType: images.ContentType,
		OriginalURL: sourceURL,
		Profile:     profile.Name,
		Width:       res.Width,
		Height:      res.Height,
		Size:        int64(len(res.Data)),
		BlurHash:    res.BlurHash,
		CreatedAt:   c.now().UTC(),
	})

	c.logger.Info("cached image",
		"key", key,
		"url", sourceURL,
		"profile", profile.Name,
		"source_format", res.SourceFormat,
		"width", res.Width,
		"height", res.Height,
		"size", len(res.Data),
	)
	return metrics.ImageStored, nil
}

// record writes the index entry. The object is already stored, so an index
// failure is only logged.
func (c *Cache) record(ctx context.Context, img *domain.CachedImage) {
	if c.index == nil {
		return
	}
	if _, err := c.index.PutIfAbsent(ctx, img); err != nil {
		c.logger.Warn("failed to index cached image", "key", img.StorageKey, "error", err)
	}
}

// Lookup returns the index entry for a storage key.
func (c *Cache) Lookup(ctx context.Context, key string) (*domain.CachedImage, error) {
	if c.index == nil {
		return nil, ErrNotFound
	}
	return c.index.Get(ctx, key)
}
