package application

import (
	"context"
	"log"
	"time"
)

// DueRunner runs due transfers once.
type DueRunner interface {
	RunDue(ctx context.Context) (RunSummary, error)
}

// Scheduler triggers the due-transfer executor once a day.
type Scheduler struct {
	runner  DueRunner
	dailyAt string
	loc     *time.Location
	logger  *log.Logger
	lastRun string
}

// NewScheduler constructs a Scheduler. dailyAt is HH:MM in loc.
func NewScheduler(runner DueRunner, dailyAt string, loc *time.Location, logger *log.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		runner:  runner,
		dailyAt: dailyAt,
		loc:     loc,
		logger:  logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.runner == nil {
		return
	}
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			local := now.In(s.loc)
			if !s.shouldRun(local) {
				continue
			}
			s.runOnce(ctx, local)
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	hour, minute, err := parseDailyAt(s.dailyAt)
	if err != nil {
		return false
	}
	if now.Hour() != hour || now.Minute() != minute {
		return false
	}
	return s.lastRun != now.Format("2006-01-02")
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	s.lastRun = now.Format("2006-01-02")
	summary, err := s.runner.RunDue(ctx)
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Printf("autotransfer schedule error: day=%s err=%v", s.lastRun, err)
		return
	}
	s.logger.Printf("autotransfer schedule run: day=%s total=%d succeeded=%d failed=%d skipped=%d",
		s.lastRun, summary.Total, summary.Succeeded, summary.Failed, summary.Skipped)
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
