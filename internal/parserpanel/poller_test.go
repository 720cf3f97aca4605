package parserpanel

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/backnews/admin/internal/logging"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPollerFastAfterManualRun(t *testing.T) {
	api := &fakeAPI{}
	intervals := Intervals{Status: time.Hour, Fast: 10 * time.Millisecond, FastFor: 300 * time.Millisecond, Settings: time.Hour}
	poller := NewPoller(New(nil, nil, logging.Discard()), api, admin, intervals, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	waitFor(t, time.Second, func() bool { return poller.Snapshot().Status != nil })
	if got := atomic.LoadInt32(&api.settingsCalls); got != 1 {
		t.Fatalf("settings should be fetched on start, got %d", got)
	}

	before := atomic.LoadInt32(&api.statusCalls)
	if _, err := poller.RunParser(ctx, 5); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !poller.Snapshot().Running {
		t.Fatalf("snapshot should report the manual run")
	}
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&api.statusCalls) >= before+5 })
}

func TestPollerPausesDuringMutation(t *testing.T) {
	api := &fakeAPI{}
	intervals := Intervals{Status: 10 * time.Millisecond, Fast: 10 * time.Millisecond, FastFor: time.Second, Settings: time.Hour}
	poller := NewPoller(New(nil, nil, logging.Discard()), api, admin, intervals, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&api.statusCalls) >= 2 })

	var during int32
	_ = poller.Mutate(func() error {
		if !poller.Snapshot().Paused {
			t.Errorf("snapshot should report the pause")
		}
		// let any in-flight poll finish before sampling
		time.Sleep(20 * time.Millisecond)
		start := atomic.LoadInt32(&api.statusCalls)
		time.Sleep(80 * time.Millisecond)
		during = atomic.LoadInt32(&api.statusCalls) - start
		return nil
	})
	if during != 0 {
		t.Fatalf("status must not be polled during a mutation, got %d calls", during)
	}
	after := atomic.LoadInt32(&api.statusCalls)
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&api.statusCalls) > after })
}

func TestPollersSweepIdle(t *testing.T) {
	api := &fakeAPI{}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Value
	clock.Store(now)

	pollers := NewPollers(New(nil, nil, logging.Discard()), Intervals{Status: time.Hour, Fast: time.Hour, Settings: time.Hour}, time.Minute, logging.Discard())
	pollers.now = func() time.Time { return clock.Load().(time.Time) }
	defer pollers.Close()

	first := pollers.Ensure("s1", api, admin)
	if again := pollers.Ensure("s1", api, admin); again != first {
		t.Fatalf("a session must reuse its poller")
	}
	pollers.Ensure("s2", api, admin)

	clock.Store(now.Add(2 * time.Minute))
	first.Snapshot()
	if n := pollers.Sweep(); n != 1 || pollers.Len() != 1 {
		t.Fatalf("expected only the idle poller swept, n=%d len=%d", n, pollers.Len())
	}
}
