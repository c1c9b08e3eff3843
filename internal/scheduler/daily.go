package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is the work a Daily scheduler triggers once per calendar day.
type Job func(ctx context.Context, today time.Time) error

// Daily fires a job at a fixed UTC wall-clock time, at most once per day.
// The clock is injected so tests can drive it; the last-run marker makes a
// same-day restart or re-trigger a no-op.
type Daily struct {
	checkHour   int
	checkMinute int
	job         Job
	now         func() time.Time
	logger      *zap.Logger

	mu      sync.Mutex
	lastRun time.Time // date of the last completed trigger
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDaily creates a scheduler firing at checkTime ("HH:MM", UTC).
func NewDaily(checkTime string, job Job, now func() time.Time, logger *zap.Logger) (*Daily, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(checkTime, "%d:%d", &hour, &minute); err != nil {
		return nil, fmt.Errorf("invalid check time %q: %w", checkTime, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return nil, fmt.Errorf("invalid check time %q", checkTime)
	}
	if now == nil {
		now = time.Now
	}
	return &Daily{
		checkHour:   hour,
		checkMinute: minute,
		job:         job,
		now:         now,
		logger:      logger,
	}, nil
}

// NextRun returns the first trigger instant strictly after from.
func (d *Daily) NextRun(from time.Time) time.Time {
	from = from.UTC()
	next := time.Date(from.Year(), from.Month(), from.Day(), d.checkHour, d.checkMinute, 0, 0, time.UTC)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start launches the scheduling loop. It returns immediately; Stop shuts the
// loop down and waits for an in-flight job to finish.
func (d *Daily) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	d.mu.Lock()
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	go func() {
		defer close(done)
		for {
			next := d.NextRun(d.now())
			d.logger.Info("Next reconciliation scheduled", zap.Time("at", next))

			timer := time.NewTimer(next.Sub(d.now()))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				d.Trigger(ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for it to exit.
func (d *Daily) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	done := d.done
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Trigger runs the job for today unless it already ran today. Safe to call
// manually (e.g. from an admin endpoint) alongside the loop.
func (d *Daily) Trigger(ctx context.Context) {
	today := d.today()

	d.mu.Lock()
	if d.lastRun.Equal(today) {
		d.mu.Unlock()
		d.logger.Debug("Reconciliation already ran today, skipping", zap.Time("date", today))
		return
	}
	d.lastRun = today
	d.mu.Unlock()

	if err := d.job(ctx, today); err != nil {
		d.logger.Error("Daily reconciliation reported errors",
			zap.Time("date", today),
			zap.Error(err))
	}
}

func (d *Daily) today() time.Time {
	now := d.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
