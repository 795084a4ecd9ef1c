package eviction

import (
	"log/slog"
	"time"

	"github.com/dibs-fs/dibs/internal/cas"
	"github.com/dibs-fs/dibs/lib/clock"
)

const (
	// defaultCheckInterval is how often the worker actually evicts.
	defaultCheckInterval = 60 * time.Second
	// defaultTickInterval is how often the worker wakes to check for
	// shutdown, independent of the check interval.
	defaultTickInterval = time.Second
)

// Recorder receives a notification whenever the worker prunes entries.
type Recorder interface {
	RecordEvictions(n int)
}

// Worker periodically prunes stale CAS entries. It never surfaces
// errors; at worst it skips a cycle.
type Worker struct {
	CAS    *cas.Table
	Clock  clock.Clock
	MaxAge time.Duration

	// CheckInterval is how often eviction actually runs. Defaults to
	// 60 seconds if zero.
	CheckInterval time.Duration
	// TickInterval is the shutdown-check cadence. Defaults to 1
	// second if zero. Must not exceed CheckInterval.
	TickInterval time.Duration

	Logger  *slog.Logger
	Metrics Recorder
}

func (w *Worker) checkInterval() time.Duration {
	if w.CheckInterval > 0 {
		return w.CheckInterval
	}
	return defaultCheckInterval
}

func (w *Worker) tickInterval() time.Duration {
	if w.TickInterval > 0 {
		return w.TickInterval
	}
	return defaultTickInterval
}

// Run ticks until stop is closed, evicting stale entries once per
// CheckInterval. The tick granularity is independent of the check
// interval: shutdown is noticed within one TickInterval, never delayed
// by the full check interval. Elapsed time is measured from the tick
// timestamps rather than by counting ticks, since a ticker drops ticks
// when its consumer falls behind.
func (w *Worker) Run(stop <-chan struct{}) {
	lastEviction := w.Clock.Now()
	ticker := w.Clock.NewTicker(w.tickInterval())
	defer ticker.Stop()

	checkInterval := w.checkInterval()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if now.Sub(lastEviction) < checkInterval {
				continue
			}
			lastEviction = now
			n := w.CAS.Evict(w.MaxAge)
			if w.Metrics != nil {
				w.Metrics.RecordEvictions(n)
			}
			if n > 0 && w.Logger != nil {
				w.Logger.Debug("evicted stale CAS entries", "count", n)
			}
		}
	}
}
