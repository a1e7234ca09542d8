package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const sweepTimeout = 30 * time.Second

// NewSweeper schedules SweepNoShows on a cron schedule such as "*/15 * * * *".
// The caller starts and stops the returned scheduler.
func NewSweeper(svc *Service, schedule string, grace time.Duration, logger zerolog.Logger) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := svc.SweepNoShows(ctx, grace); err != nil {
			logger.Error().Err(err).Msg("no-show sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid no-show sweep schedule %q: %w", schedule, err)
	}
	return c, nil
}
