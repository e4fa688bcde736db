package daemon

import (
	"context"
	"time"
)

// Loop calls fn immediately and then every interval until ctx is done. The
// interval is measured from the end of one call to the start of the next, so
// calls never overlap. A non-positive interval runs fn once.
func Loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	for {
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
		if interval <= 0 {
			return
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
