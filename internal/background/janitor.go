package background

import (
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/vndeals/backend/internal/guard"
	"github.com/vndeals/backend/internal/respcache"
	"github.com/vndeals/backend/internal/session"
)

// Janitor owns the periodic sweeps that evict expired in-memory state:
// sessions, rate buckets, cache entries, and blocks.
type Janitor struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// JanitorDeps lists the stores the janitor sweeps. Limiters vary per route
// class, so they come as a slice.
type JanitorDeps struct {
	Sessions *session.Registry
	Limiters []*guard.Limiter
	Cache    *respcache.Cache
	Engine   *guard.Engine
}

func NewJanitor(deps JanitorDeps, logger *slog.Logger) (*Janitor, error) {
	c := cron.New()

	if _, err := c.AddFunc("@every 1h", func() {
		removed := deps.Sessions.Sweep()
		if removed > 0 {
			logger.Info("session sweep", slog.Int("removed", removed))
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every 5m", func() {
		for _, l := range deps.Limiters {
			l.Sweep()
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every 1m", func() {
		deps.Cache.Sweep()
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@every 5m", func() {
		deps.Engine.Sweep()
	}); err != nil {
		return nil, err
	}

	return &Janitor{cron: c, logger: logger}, nil
}

// Start launches the scheduler in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Info("janitor started")
}

// Stop halts the scheduler and waits for running sweeps to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}
