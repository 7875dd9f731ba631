package providers

import (
	"context"
	"fmt"

	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/imagecache"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/objectstore"
	"github.com/wishlistapp/catalog-server/internal/proxy"
)

// ObjectStore is the configured backing store for cached images.
type ObjectStore struct {
	objectstore.Store
	Backend string
}

// ProvideObjectStore provides the filesystem or S3 object store.
func ProvideObjectStore(i do.Injector) (*ObjectStore, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Storage.Backend != config.StorageS3 {
		fs, err := objectstore.NewFileStore(cfg.Storage.FSRoot)
		if err != nil {
			return nil, fmt.Errorf("file store: %w", err)
		}
		log.Info("Object store initialized", "backend", config.StorageFilesystem, "root", cfg.Storage.FSRoot)
		return &ObjectStore{Store: fs, Backend: config.StorageFilesystem}, nil
	}

	s3cfg := cfg.Storage.S3
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s3, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:     s3cfg.Endpoint,
		Region:       s3cfg.Region,
		Bucket:       s3cfg.Bucket,
		AccessKey:    s3cfg.AccessKey,
		SecretKey:    s3cfg.SecretKey,
		UseSSL:       s3cfg.UseSSL,
		UsePathStyle: s3cfg.UsePathStyle,
	}, log.Component("objectstore"))
	if err != nil {
		return nil, fmt.Errorf("s3 store: %w", err)
	}
	if err := s3.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", s3cfg.Bucket, err)
	}

	log.Info("Object store initialized",
		"backend", config.StorageS3,
		"endpoint", s3.Endpoint(),
		"bucket", s3.Bucket(),
	)
	return &ObjectStore{Store: s3, Backend: config.StorageS3}, nil
}

// ImageIndexHandle wraps the image index with shutdown capability.
type ImageIndexHandle struct {
	*imagecache.Index
}

// Shutdown implements do.Shutdownable.
func (h *ImageIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideImageIndex provides the badger-backed cached image index.
func ProvideImageIndex(i do.Injector) (*ImageIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := imagecache.OpenIndex(cfg.Images.IndexPath, log.Component("imagecache"))
	if err != nil {
		return nil, err
	}
	return &ImageIndexHandle{Index: index}, nil
}

// ProvideRewriter provides the native/proxy URL rewriter.
func ProvideRewriter(i do.Injector) (*proxy.Rewriter, error) {
	cfg := do.MustInvoke[*config.Config](i)

	return proxy.NewRewriter(proxy.Config{
		Prefix:      cfg.Proxy.Prefix,
		Endpoint:    cfg.Storage.S3.Endpoint,
		Bucket:      cfg.Storage.S3.Bucket,
		Region:      cfg.Storage.S3.Region,
		NativeHosts: cfg.Proxy.NativeHosts,
	})
}

// ProvideImageCache provides the image cache.
func ProvideImageCache(i do.Injector) (*imagecache.Cache, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	objects := do.MustInvoke[*ObjectStore](i)
	index := do.MustInvoke[*ImageIndexHandle](i)
	rewriter := do.MustInvoke[*proxy.Rewriter](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	cache := imagecache.New(objects.Store, index.Index, rewriter, m, log.Component("imagecache"), imagecache.Options{
		DownloadTimeout: cfg.Images.DownloadTimeout,
		MaxDownloadSize: cfg.Images.MaxDownloadSize,
	})

	log.Info("Image cache initialized", "proxy_prefix", cfg.Proxy.Prefix)
	return cache, nil
}
