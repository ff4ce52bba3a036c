package lesson

import (
	"context"
	"time"

	"github.com/ashureev/lingua-lessons/internal/store"
	"github.com/go-co-op/gocron"
)

// Auditor periodically reports user messages that never got a reply.
// It only observes; orphans are left in place.
type Auditor struct {
	scheduler *gocron.Scheduler
	counter   store.OrphanCounter
	interval  time.Duration
}

// NewAuditor creates an Auditor running every interval.
func NewAuditor(counter store.OrphanCounter, interval time.Duration) *Auditor {
	return &Auditor{
		scheduler: gocron.NewScheduler(time.UTC),
		counter:   counter,
		interval:  interval,
	}
}

// Start schedules the audit without blocking. The first run happens
// immediately.
func (a *Auditor) Start(ctx context.Context) error {
	if _, err := a.scheduler.Every(a.interval).Do(func() { a.Run(ctx) }); err != nil {
		return err
	}
	a.scheduler.StartAsync()
	logger.InfoContext(ctx, "orphan audit started", "interval", a.interval)
	return nil
}

// Stop terminates the scheduler.
func (a *Auditor) Stop() {
	a.scheduler.Stop()
}

// Run performs one audit and returns the orphan count.
func (a *Auditor) Run(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}
	count, err := a.counter.CountOrphanMessages(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "orphan audit failed", "error", err)
		return 0
	}

	orphanGauge.Record(ctx, count)
	if count > 0 {
		logger.WarnContext(ctx, "user messages without a tutor reply", "count", count)
	} else {
		logger.DebugContext(ctx, "orphan audit clean")
	}
	return count
}
