package mount

import (
	"context"
	"sync"
	"time"
)

// target resolves the horizontal position to hold at the current instant.
type target func() (az, alt float64, err error)

// tracker re-points the mount at a fixed cadence until stopped.
type tracker struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// start replaces any running track with a new one.
func (t *tracker) start(interval time.Duration, resolve target, point func(context.Context, float64, float64) error, onErr func(error)) {
	t.stop()

	if interval <= 0 {
		interval = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			az, alt, err := resolve()
			if err == nil {
				err = point(ctx, az, alt)
			}
			if err != nil && ctx.Err() == nil && onErr != nil {
				onErr(err)
			}
		}
	}()
}

// stop cancels the running track and waits for its goroutine. It reports
// whether a track was running.
func (t *tracker) stop() bool {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (t *tracker) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}
