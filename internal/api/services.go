package api

import (
	"net/http"

	"github.com/wishlistapp/catalog-server/internal/imagecache"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/reconcile"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
	"github.com/wishlistapp/catalog-server/internal/service"
	"github.com/wishlistapp/catalog-server/internal/store"
)

// Services groups all business logic services used by the API server.
// Nil members disable the routes or health checks that need them.
type Services struct {
	Repo       store.Repository
	Lookup     *service.LookupService
	Reconcile  *reconcile.Engine
	Scheduler  *scheduler.Scheduler
	Images     *imagecache.Cache
	ImageIndex *imagecache.Index
	Metrics    *metrics.Metrics
	Proxy      http.Handler // Cached image bytes
	// CatalogConfigured reports whether admin lookups can reach the catalog.
	CatalogConfigured bool
}
