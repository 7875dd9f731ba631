package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/identifier"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/metadata"
	"github.com/wishlistapp/catalog-server/internal/metadata/catalog"
	"github.com/wishlistapp/catalog-server/internal/metadata/scrape"
	"github.com/wishlistapp/catalog-server/internal/ratelimit"
)

// ProvideResolver provides the product URL resolver.
func ProvideResolver(i do.Injector) (*identifier.Resolver, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return identifier.New(log.Component("identifier"), identifier.Options{
		UserAgent: cfg.Scrape.UserAgent,
	}), nil
}

// CatalogClientHandle holds the catalog API client. Client is nil when no
// credentials are configured.
type CatalogClientHandle struct {
	Client *catalog.Client
}

// Fetcher returns the client as a metadata.Fetcher, or nil when unconfigured.
func (h *CatalogClientHandle) Fetcher() metadata.Fetcher {
	if h.Client == nil {
		return nil
	}
	return h.Client
}

// ProvideCatalogClient provides the authenticated catalog API client.
func ProvideCatalogClient(i do.Injector) (*CatalogClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Catalog.Configured() {
		log.Warn("Catalog API credentials not configured, admin lookups and canonical refresh disabled")
		return &CatalogClientHandle{}, nil
	}

	client := catalog.New(log.Component("catalog"), ratelimit.NewThrottle(cfg.Catalog.MinInterval), catalog.Options{
		AccessKey:   cfg.Catalog.AccessKey,
		SecretKey:   cfg.Catalog.SecretKey,
		PartnerTag:  cfg.Catalog.PartnerTag,
		Host:        cfg.Catalog.Host,
		Region:      cfg.Catalog.Region,
		Marketplace: cfg.Catalog.Marketplace,
		Timeout:     cfg.Catalog.Timeout,
	})

	log.Info("Catalog client initialized",
		"host", cfg.Catalog.Host,
		"marketplace", cfg.Catalog.Marketplace,
		"min_interval", cfg.Catalog.MinInterval,
	)
	return &CatalogClientHandle{Client: client}, nil
}

// ScrapeFetcherHandle wraps the page scraper with shutdown capability.
type ScrapeFetcherHandle struct {
	*scrape.Fetcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ScrapeFetcherHandle) Shutdown() error {
	h.cancel()
	h.Fetcher.Close()
	return nil
}

// ProvideScrapeFetcher provides the public page scraper, watching the rule
// file when one is configured.
func ProvideScrapeFetcher(i do.Injector) (*ScrapeFetcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	f := scrape.New(log.Component("scrape"), scrape.Options{
		BaseURL:          cfg.Scrape.BaseURL,
		UserAgent:        cfg.Scrape.UserAgent,
		Timeout:          cfg.Scrape.Timeout,
		PlaceholderImage: cfg.Scrape.PlaceholderImage,
		HostRPS:          cfg.Scrape.HostRPS,
	})

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Scrape.RulesPath != "" {
		if err := f.WatchRules(ctx, cfg.Scrape.RulesPath); err != nil {
			cancel()
			f.Close()
			return nil, err
		}
		log.Info("Watching scrape rules", "path", cfg.Scrape.RulesPath)
	}

	return &ScrapeFetcherHandle{Fetcher: f, cancel: cancel}, nil
}
