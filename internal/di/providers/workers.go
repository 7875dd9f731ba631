package providers

import (
	"github.com/samber/do/v2"

	"github.com/wishlistapp/catalog-server/internal/config"
	"github.com/wishlistapp/catalog-server/internal/logger"
	"github.com/wishlistapp/catalog-server/internal/scheduler"
)

// RefreshJobHandle wraps the periodic refresh job. Job is nil when the
// job is disabled.
type RefreshJobHandle struct {
	Job *scheduler.Job
}

// Shutdown implements do.Shutdownable.
func (h *RefreshJobHandle) Shutdown() error {
	if h.Job != nil {
		h.Job.Stop()
	}
	return nil
}

// ProvideRefreshJob provides the periodic staleness refresh job.
func ProvideRefreshJob(i do.Injector) (*RefreshJobHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Scheduler.Enabled {
		log.Info("Refresh job disabled by configuration")
		return &RefreshJobHandle{}, nil
	}

	sched := do.MustInvoke[*scheduler.Scheduler](i)
	job := scheduler.NewJob(sched, scheduler.JobConfig{
		Interval:  cfg.Scheduler.Interval,
		Threshold: cfg.Scheduler.Threshold,
		Limit:     cfg.Scheduler.Limit,
	}, log.Component("refresh"))
	job.Start()
	return &RefreshJobHandle{Job: job}, nil
}
