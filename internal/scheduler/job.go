package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wishlistapp/catalog-server/internal/domain"
)

// JobConfig configures the background refresh job.
type JobConfig struct {
	Interval  time.Duration
	Threshold time.Duration
	Limit     int
	// Kinds lists the record kinds refreshed on every tick, in order.
	Kinds []domain.RecordKind
	// RunOnStart triggers a cycle immediately instead of after one interval.
	RunOnStart bool
}

// Job runs refresh cycles on a fixed interval until stopped.
type Job struct {
	scheduler *Scheduler
	cfg       JobConfig
	logger    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewJob creates a stopped job.
func NewJob(s *Scheduler, cfg JobConfig, logger *slog.Logger) *Job {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []domain.RecordKind{domain.KindCanonical, domain.KindUnofficial}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{scheduler: s, cfg: cfg, logger: logger, done: make(chan struct{})}
}

// Start launches the loop in a goroutine.
func (j *Job) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel

	go func() {
		defer close(j.done)

		ticker := time.NewTicker(j.cfg.Interval)
		defer ticker.Stop()

		if j.cfg.RunOnStart {
			j.tick(ctx)
		}
		for {
			select {
			case <-ticker.C:
				j.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	j.logger.Info("Refresh job started",
		"interval", j.cfg.Interval,
		"threshold", j.cfg.Threshold,
		"limit", j.cfg.Limit,
	)
}

// Stop cancels the running cycle between items and waits for the loop to exit.
func (j *Job) Stop() {
	j.once.Do(func() {
		if j.cancel == nil {
			close(j.done)
			return
		}
		j.cancel()
		<-j.done
	})
}

func (j *Job) tick(ctx context.Context) {
	for _, kind := range j.cfg.Kinds {
		if ctx.Err() != nil {
			return
		}
		_, err := j.scheduler.RunCycle(ctx, CycleParams{
			Kind:      kind,
			Threshold: j.cfg.Threshold,
			Limit:     j.cfg.Limit,
		})
		if err != nil {
			j.logger.Warn("Refresh cycle failed", "kind", kind, "error", err)
		}
	}
}
