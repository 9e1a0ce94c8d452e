package store

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Janitor periodically sweeps expired keys out of backends that do not expire
// keys on their own. Redis handles its own expiry, so the janitor only runs
// when the configured backend implements Purger.
type Janitor struct {
	purger   Purger
	interval time.Duration
	logger   zerolog.Logger
	cron     *cron.Cron
}

// NewJanitor returns a janitor sweeping kv every interval, or nil when the
// backend expires keys itself. A zero interval defaults to one minute.
func NewJanitor(kv KeyValue, interval time.Duration, logger zerolog.Logger) *Janitor {
	purger, ok := kv.(Purger)
	if !ok {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Janitor{
		purger:   purger,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweep schedule. Safe to call on a nil janitor.
func (j *Janitor) Start() {
	if j == nil {
		return
	}
	j.cron = cron.New()
	j.cron.Schedule(cron.Every(j.interval), cron.FuncJob(j.sweep))
	j.cron.Start()
	j.logger.Debug().Dur("interval", j.interval).Msg("Store janitor started")
}

// Stop halts the schedule and waits for a running sweep to finish. Safe to
// call on a nil janitor.
func (j *Janitor) Stop() {
	if j == nil || j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	purged, err := j.purger.PurgeExpired(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("Store janitor sweep failed")
		return
	}
	if purged > 0 {
		j.logger.Debug().Int("purged", purged).Msg("Store janitor swept expired keys")
	}
}
