package playback

import (
	"context"
	"sync"
	"time"
)

// WallClock schedules callbacks against wall-clock time.
// Elapsed time is measured with the monotonic reading stripped, so a host
// whose monotonic clock drifts from real time still fires on schedule.
type WallClock struct {
	// Resolution is the polling interval (defaults to 100ms).
	Resolution time.Duration
}

type wallTimer struct {
	cancel context.CancelFunc
	mu     sync.Mutex
	done   bool
}

// AfterFunc calls f in its own goroutine once d has elapsed.
func (c WallClock) AfterFunc(d time.Duration, f func()) Timer {
	resolution := c.Resolution
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &wallTimer{cancel: cancel}

	go func() {
		endTime := toWallTime(time.Now()).Add(d)
		ticker := time.NewTicker(resolution)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if toWallTime(time.Now()).Before(endTime) {
					continue
				}
				if t.finish() {
					f()
				}
				return
			}
		}
	}()

	return t
}

func (t *wallTimer) Stop() bool {
	pending := t.finish()
	t.cancel()
	return pending
}

// finish marks the timer done and reports whether it was still pending.
func (t *wallTimer) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

// toWallTime returns the time with the monotonic clock reading stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
