package providers

import (
	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/identifier"
	"github.com/wishlistapp/catalog-server/internal/imagecache"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/reconcile"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
	"github.com/wishlistapp/catalog-server/internal/service"
)

// ProvideLookupService provides the product lookup and submission service.
func ProvideLookupService(i do.Injector) (*service.LookupService, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	resolver := do.MustInvoke[*identifier.Resolver](i)
	scrapeHandle := do.MustInvoke[*ScrapeFetcherHandle](i)
	catalogHandle := do.MustInvoke[*CatalogClientHandle](i)
	images := do.MustInvoke[*imagecache.Cache](i)

	return service.NewLookupService(
		resolver,
		scrapeHandle.Fetcher,
		catalogHandle.Fetcher(),
		images,
		storeHandle.Store,
		log.Component("lookup"),
	), nil
}

// ProvideReconcileEngine provides the promotion engine.
func ProvideReconcileEngine(i do.Injector) (*reconcile.Engine, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	catalogHandle := do.MustInvoke[*CatalogClientHandle](i)
	images := do.MustInvoke[*imagecache.Cache](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	engine := reconcile.NewEngine(storeHandle.Store, catalogHandle.Fetcher(), images, m, log.Component("reconcile"), reconcile.Options{
		MinDistinctUsers: cfg.Reconcile.MinDistinctUsers,
	})

	log.Info("Reconcile engine initialized", "min_distinct_users", engine.MinDistinctUsers())
	return engine, nil
}

// ProvideScheduler provides the staleness refresh scheduler.
func ProvideScheduler(i do.Injector) (*scheduler.Scheduler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	scrapeHandle := do.MustInvoke[*ScrapeFetcherHandle](i)
	catalogHandle := do.MustInvoke[*CatalogClientHandle](i)
	images := do.MustInvoke[*imagecache.Cache](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	return scheduler.New(
		storeHandle.Store,
		catalogHandle.Fetcher(),
		scrapeHandle.Fetcher,
		images,
		m,
		log.Component("scheduler"),
		scheduler.Options{ItemDelay: cfg.Scheduler.ItemDelay},
	), nil
}
