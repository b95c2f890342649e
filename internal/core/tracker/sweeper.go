package tracker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Sweeper drives the periodic stale-entry sweep on a gocron schedule.
type Sweeper struct {
	tracker   *Tracker
	interval  time.Duration
	log       *slog.Logger
	scheduler *gocron.Scheduler
}

func NewSweeper(tr *Tracker, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultConfig().SweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		tracker:  tr,
		interval: interval,
		log:      logger.With("component", "sweeper"),
	}
}

func (s *Sweeper) Start() error {
	if s.scheduler != nil {
		return nil
	}
	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(s.interval).Do(func() {
		if evicted := s.tracker.SweepOnce(time.Now()); evicted > 0 {
			s.log.Info("sweep evicted stale entries", "count", evicted)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep job: %w", err)
	}
	scheduler.StartAsync()
	s.scheduler = scheduler
	return nil
}

func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
}
