package scanloop

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_StopsAfterClose(t *testing.T) {
	stopCh := make(chan struct{})
	var calls atomic.Int64
	done := make(chan struct{})

	go func() {
		Run(stopCh, func() time.Duration {
			calls.Add(1)
			return time.Millisecond
		})
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("loop did not run")
		case <-time.After(time.Millisecond):
		}
	}
	close(stopCh)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRun_DoesNotCallAfterStop(t *testing.T) {
	stopCh := make(chan struct{})
	close(stopCh)

	called := false
	done := make(chan struct{})
	go func() {
		Run(stopCh, func() time.Duration {
			called = true
			return time.Millisecond
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not observe closed stop channel")
	}
	if called {
		t.Fatal("fn must not run once stop is signaled")
	}
}
