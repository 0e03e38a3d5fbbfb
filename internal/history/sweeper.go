package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SweeperConfig configures the idle-thread eviction sweeper.
type SweeperConfig struct {
	Schedule string        // Cron expression or descriptor, e.g. "@every 10m".
	IdleTTL  time.Duration // Threads idle longer than this are evicted.
}

// Sweeper periodically evicts idle threads from a Store.
// It runs as a background goroutine for the process lifetime.
type Sweeper struct {
	store    Store
	schedule cron.Schedule
	ttl      time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. Returns an error if the schedule does not parse.
func NewSweeper(store Store, cfg SweeperConfig, logger *slog.Logger) (*Sweeper, error) {
	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	schedule, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing eviction schedule %q: %w", cfg.Schedule, err)
	}
	return &Sweeper{
		store:    store,
		schedule: schedule,
		ttl:      cfg.IdleTTL,
		logger:   logger,
	}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (s *Sweeper) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		s.logger.Info("history sweeper started",
			slog.String("ttl", s.ttl.String()),
		)
		for {
			next := s.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				s.logger.Info("history sweeper stopped")
				return
			case <-timer.C:
				if n := s.store.EvictIdle(s.ttl); n > 0 {
					s.logger.Info("idle threads evicted", slog.Int("count", n))
				}
			}
		}
	}()

	return cancel
}
