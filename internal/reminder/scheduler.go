package reminder

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs a Job on a fixed interval aligned to the start of the
// minute, for deployments without an external cron. Runs never overlap.
type Scheduler struct {
	job      *Job
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(job *Job, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{job: job, interval: interval, logger: logger}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	wait := time.Until(nextBoundary(time.Now(), s.interval))
	s.logger.Info("reminder scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("first_run_in", wait),
	)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.job.Run(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// nextBoundary returns the first instant after now that is a multiple of
// interval, but never later than the next whole minute.
func nextBoundary(now time.Time, interval time.Duration) time.Time {
	step := interval
	if step <= 0 || step > time.Minute {
		step = time.Minute
	}
	return now.Truncate(step).Add(step)
}
