// Package di provides dependency injection configuration for the catalog server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/di/providers"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/reconcile"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
	"github.com/wishlistapp/catalog-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Storage layer
	do.Provide(injector, providers.ProvideObjectStore)
	do.Provide(injector, providers.ProvideImageIndex)
	do.Provide(injector, providers.ProvideRewriter)
	do.Provide(injector, providers.ProvideImageCache)

	// Metadata layer
	do.Provide(injector, providers.ProvideResolver)
	do.Provide(injector, providers.ProvideCatalogClient)
	do.Provide(injector, providers.ProvideScrapeFetcher)

	// Business services
	do.Provide(injector, providers.ProvideLookupService)
	do.Provide(injector, providers.ProvideReconcileEngine)
	do.Provide(injector, providers.ProvideScheduler)

	// Workers
	do.Provide(injector, providers.ProvideRefreshJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.ObjectStore](injector)
	_ = do.MustInvoke[*providers.ImageIndexHandle](injector)
	_ = do.MustInvoke[*providers.CatalogClientHandle](injector)
	_ = do.MustInvoke[*providers.ScrapeFetcherHandle](injector)

	// Business services
	_ = do.MustInvoke[*service.LookupService](injector)
	_ = do.MustInvoke[*reconcile.Engine](injector)
	_ = do.MustInvoke[*scheduler.Scheduler](injector)

	// Workers
	_ = do.MustInvoke[*providers.RefreshJobHandle](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
