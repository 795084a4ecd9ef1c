package shutdown

import (
	"log/slog"
	"os"
	"time"

	"github.com/dibs-fs/dibs/lib/clock"
)

const defaultPollInterval = 200 * time.Millisecond

// Coordinator sequences termination: RUNNING -> DRAINING -> STOPPED.
type Coordinator struct {
	Clock        clock.Clock
	Logger       *slog.Logger
	PollInterval time.Duration
}

func (c *Coordinator) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// Run blocks until a terminal signal arrives on signals or the session
// exits on its own (sessionDone is closed), whichever comes first. It
// then calls joinEviction — which MUST block until the eviction
// worker has fully stopped — before calling unmountAndWait, preserving
// the invariant that the worker never touches CAS state after the
// session begins tearing down. Returns unmountAndWait's error.
func (c *Coordinator) Run(signals <-chan os.Signal, sessionDone <-chan struct{}, joinEviction func(), unmountAndWait func() error) error {
	triggeredBySignal := c.waitForTrigger(signals, sessionDone)
	if c.Logger != nil {
		if triggeredBySignal {
			c.Logger.Info("shutdown: signal received, draining")
		} else {
			c.Logger.Info("shutdown: session exited externally, draining")
		}
	}

	joinEviction()
	if c.Logger != nil {
		c.Logger.Debug("shutdown: eviction worker joined")
	}

	err := unmountAndWait()
	if c.Logger != nil {
		c.Logger.Info("shutdown: complete")
	}
	return err
}

// waitForTrigger blocks until signals delivers a value or sessionDone
// is closed, whichever comes first. Between those two events it wakes
// on a bounded interval purely to mirror the original poll cadence;
// Go's channel select already wakes immediately on either real event.
func (c *Coordinator) waitForTrigger(signals <-chan os.Signal, sessionDone <-chan struct{}) (triggeredBySignal bool) {
	interval := c.pollInterval()
	for {
		select {
		case <-signals:
			return true
		case <-sessionDone:
			return false
		case <-c.Clock.After(interval):
			continue
		}
	}
}
