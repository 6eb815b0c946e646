package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Ticker is the engine hook driven once per second.
type Ticker interface {
	Tick()
}

// Scheduler drives the reminder engine's evaluation loop. Cron runs its
// jobs sequentially in a single goroutine, which keeps tick callbacks
// in order without extra coordination.
type Scheduler struct {
	cron   *cron.Cron
	ticker Ticker
}

func New(tz *time.Location, ticker Ticker) *Scheduler {
	if tz == nil {
		tz = time.Local
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(tz))

	return &Scheduler{
		cron:   c,
		ticker: ticker,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	// One-second resolution drives both the dose evaluation and the
	// alert countdown display.
	if _, err := s.cron.AddFunc("* * * * * *", s.ticker.Tick); err != nil {
		return fmt.Errorf("add tick job: %w", err)
	}

	s.cron.Start()
	log.Println("Scheduler started (1s tick)")

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}
