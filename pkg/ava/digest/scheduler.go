package digest

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs collection every morning at 06:00 local time.
const DefaultSchedule = "0 6 * * *"

// Scheduler runs the daily collection job on a cron schedule and invokes an
// optional hook when a snapshot lands, so a channel can push the summary
// proactively.
type Scheduler struct {
	collector *Collector
	schedule  string
	cron      *cron.Cron
	logger    *slog.Logger

	// OnComplete, when set, is called with each freshly collected snapshot.
	OnComplete func(ctx context.Context, s *Summary)
}

// NewScheduler creates a scheduler over the collector. An empty schedule
// falls back to DefaultSchedule.
func NewScheduler(collector *Collector, schedule string, logger *slog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Scheduler{
		collector: collector,
		schedule:  schedule,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		logger: logger.With("component", "digest_scheduler"),
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.run)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("digest scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("digest scheduler stopped")
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	summary, err := s.collector.Collect(ctx)
	if err != nil {
		s.logger.Error("daily collection failed", "error", err)
		return
	}
	if s.OnComplete != nil {
		s.OnComplete(ctx, summary)
	}
}
