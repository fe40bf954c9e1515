package quotes

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// RefreshJob runs the price refresh on a cron schedule
type RefreshJob struct {
	service *RefreshService
	hours   *MarketHours // nil means refresh regardless of session
	log     zerolog.Logger
}

// NewRefreshJob creates a new refresh job. When hours is non-nil,
// scheduled runs outside the US equity session are skipped; manual
// refreshes go through the service directly and are never gated.
func NewRefreshJob(service *RefreshService, hours *MarketHours, log zerolog.Logger) *RefreshJob {
	return &RefreshJob{
		service: service,
		hours:   hours,
		log:     log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *RefreshJob) Name() string {
	return "price_refresh"
}

// Run executes one refresh batch. An already-running refresh is not an
// error for the schedule, just skipped.
func (j *RefreshJob) Run() error {
	if j.hours != nil && !j.hours.IsOpen(time.Now()) {
		j.log.Debug().Msg("Market closed, skipping scheduled refresh")
		return nil
	}
	_, err := j.service.RefreshAll(context.Background())
	if errors.Is(err, ErrRefreshRunning) {
		j.log.Debug().Msg("Refresh already in flight, skipping scheduled run")
		return nil
	}
	return err
}
