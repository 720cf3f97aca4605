package listing

import (
	"context"
	"sync"
	"time"
)

// Debouncer delays calls per key and drops every call that a newer one with
// the same key replaces before the delay has passed.
type Debouncer struct {
	delay   time.Duration
	mu      sync.Mutex
	waiting map[string]chan struct{}
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay, waiting: make(map[string]chan struct{})}
}

// Do runs fn after the delay unless a newer Do with the same key arrives
// first, in which case it returns ErrSuperseded without calling fn.
func (d *Debouncer) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if d == nil || d.delay <= 0 {
		return fn(ctx)
	}

	mine := make(chan struct{})
	d.mu.Lock()
	if prev, ok := d.waiting[key]; ok {
		close(prev)
	}
	d.waiting[key] = mine
	d.mu.Unlock()

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		d.release(key, mine)
		return ctx.Err()
	case <-mine:
		return ErrSuperseded
	case <-timer.C:
	}

	if !d.release(key, mine) {
		return ErrSuperseded
	}
	return fn(ctx)
}

// release removes mine if it is still the latest call for key.
func (d *Debouncer) release(key string, mine chan struct{}) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.waiting[key] != mine {
		return false
	}
	delete(d.waiting, key)
	return true
}
