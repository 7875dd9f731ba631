// Package main runs a single staleness refresh cycle and prints the batch
// result as JSON. It shares configuration with the server.
//
// Usage:
//
//	go run ./cmd/refresh --kind unofficial --threshold 168h --limit 50
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/di"
	"github.com/wishlistapp/catalog-server/internal/domain"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
)

var (
	kind      = flag.String("kind", string(domain.KindUnofficial), "Record kind to refresh (canonical, unofficial)")
	threshold = flag.Duration("threshold", 0, "Refresh records older than this (default: REFRESH_THRESHOLD)")
	limit     = flag.Int("limit", 0, "Maximum records to process (default: REFRESH_LIMIT)")
)

func main() {
	injector := di.NewContainer()

	cfg, err := do.Invoke[*config.Config](injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := do.MustInvoke[*logger.Logger](injector)

	params := scheduler.CycleParams{
		Kind:      domain.RecordKind(*kind),
		Threshold: cfg.Scheduler.Threshold,
		Limit:     cfg.Scheduler.Limit,
	}
	if *threshold > 0 {
		params.Threshold = *threshold
	}
	if *limit > 0 {
		params.Limit = *limit
	}

	sched, err := do.Invoke[*scheduler.Scheduler](injector)
	if err != nil {
		log.Fatal("Failed to initialize scheduler", "error", err)
	}

	// Ctrl-C stops the cycle between items; the item in flight completes.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := sched.RunCycle(ctx, params)
	if err != nil {
		_ = injector.Shutdown()
		log.Fatal("Refresh cycle failed", "error", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Error("Failed to write result", "error", err)
	}

	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	if result.Failed > 0 || result.Partial {
		os.Exit(2)
	}
}
