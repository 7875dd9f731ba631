package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/api"
	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/imagecache"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/metrics"
	"github.com/wishlistapp/catalog-server/internal/proxy"
	"github.com/wishlistapp/catalog-server/internal/reconcile"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
	"github.com/wishlistapp/catalog-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	objects := do.MustInvoke[*ObjectStore](i)
	index := do.MustInvoke[*ImageIndexHandle](i)

	services := &api.Services{
		Repo:              storeHandle.Store,
		Lookup:            do.MustInvoke[*service.LookupService](i),
		Reconcile:         do.MustInvoke[*reconcile.Engine](i),
		Scheduler:         do.MustInvoke[*scheduler.Scheduler](i),
		Images:            do.MustInvoke[*imagecache.Cache](i),
		ImageIndex:        index.Index,
		Metrics:           do.MustInvoke[*metrics.Metrics](i),
		Proxy:             proxy.NewHandler(objects.Store, log.Component("proxy")),
		CatalogConfigured: cfg.Catalog.Configured(),
	}

	handler := api.NewServer(services, api.Config{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		ProxyPrefix:    cfg.Proxy.Prefix,
	}, log.Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
