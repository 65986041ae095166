package scheduler

import (
	"log"
	"time"

	"options_watchlist_backend/services"

	"github.com/go-co-op/gocron"
)

// Scheduler manages the periodic refresh job
type Scheduler struct {
	cron     *gocron.Scheduler
	refresh  *services.RefreshScheduler
	interval time.Duration
}

// NewScheduler creates a scheduler that ticks the refresh rotation at
// the given interval
func NewScheduler(refresh *services.RefreshScheduler, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		cron:     gocron.NewScheduler(time.UTC),
		refresh:  refresh,
		interval: interval,
	}
}

// Start starts the refresh job. SingletonMode keeps a slow tick from
// overlapping with the next one.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	s.cron.Every(s.interval).SingletonMode().Do(func() {
		if err := s.refresh.Tick(); err != nil {
			log.Printf("Refresh tick failed: %v", err)
		}
	})

	s.cron.StartAsync()
	log.Printf("Scheduler started, refresh every %s during market hours", s.interval)
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}
