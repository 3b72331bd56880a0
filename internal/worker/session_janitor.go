package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SessionSweeper is the part of the session service the janitor drives.
type SessionSweeper interface {
	RetryExpiredSubmits(ctx context.Context) int
	EvictClosed(cutoff time.Time) int
	ActiveCount() int
}

// SessionJanitor periodically retries auto-submits that failed when a timer
// ran out and evicts sessions that closed long ago.
type SessionJanitor struct {
	sessions  SessionSweeper
	schedule  string
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewSessionJanitor(sessions SessionSweeper, schedule string, retention time.Duration, log zerolog.Logger) *SessionJanitor {
	if schedule == "" {
		schedule = "@every 1m"
	}
	return &SessionJanitor{
		sessions:  sessions,
		schedule:  schedule,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("component", "session_janitor").Logger(),
	}
}

// Start schedules the sweep and blocks until ctx is cancelled.
func (j *SessionJanitor) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule janitor %q: %w", j.schedule, err)
	}

	j.log.Info().Str("schedule", j.schedule).Dur("retention", j.retention).Msg("Janitor started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	j.log.Info().Msg("Janitor stopped")
	return nil
}

// Sweep runs one janitor pass.
func (j *SessionJanitor) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	retried := j.sessions.RetryExpiredSubmits(runCtx)
	evicted := j.sessions.EvictClosed(j.now().Add(-j.retention))

	if retried > 0 || evicted > 0 {
		j.log.Info().
			Int("retried_submits", retried).
			Int("evicted", evicted).
			Int("active", j.sessions.ActiveCount()).
			Msg("Janitor sweep")
	}
}
