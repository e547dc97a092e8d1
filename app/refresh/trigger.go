package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const DefaultTriggerInterval = 15 * time.Minute

// Trigger runs a scheduling pass immediately on Start and then on a
// fixed interval until Stop is called. A failed pass is logged and the
// next period proceeds; nothing propagates to the process.
type Trigger struct {
	interval time.Duration
	run      func() error
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewTrigger(interval time.Duration, run func() error) *Trigger {
	if interval <= 0 {
		interval = DefaultTriggerInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Trigger{
		interval: interval,
		run:      run,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (t *Trigger) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()

		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.runOnce()

		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
				t.runOnce()
			}
		}
	}()
	slog.Info("Periodic refresh trigger started", "interval", t.interval.String())
}

// Stop cancels pending ticks and waits for an in-flight pass to finish.
func (t *Trigger) Stop() {
	t.cancel()
	t.wg.Wait()
}

func (t *Trigger) runOnce() {
	if err := t.run(); err != nil {
		slog.Error("Scheduling pass failed", "error", err)
	}
}
