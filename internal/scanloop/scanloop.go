// Package scanloop provides the shared cooperative loop shape for background
// workers.
package scanloop

import (
	"time"
)

// Run executes fn repeatedly until stopCh is closed. After each invocation
// the loop sleeps for the delay fn returned, so callers can vary cadence per
// pass (e.g. back off while there is no work). Non-positive delays are
// clamped to one second.
func Run(stopCh <-chan struct{}, fn func() time.Duration) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C // drain initial fire

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		delay := fn()
		if delay <= 0 {
			delay = time.Second
		}

		timer.Reset(delay)
		select {
		case <-stopCh:
			return
		case <-timer.C:
		}
	}
}
