package memory

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// intervalScheduler runs a sync every N minutes.
type intervalScheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

func newIntervalScheduler(minutes int, logger zerolog.Logger, run func()) (*intervalScheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %dm", minutes)
	if _, err := c.AddFunc(spec, run); err != nil {
		return nil, fmt.Errorf("schedule interval sync %q: %w", spec, err)
	}
	c.Start()
	logger.Debug().Str("schedule", spec).Msg("Interval memory sync scheduled")
	return &intervalScheduler{cron: c, logger: logger}, nil
}

// Stop stops the schedule and waits for a running job to return.
func (s *intervalScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
