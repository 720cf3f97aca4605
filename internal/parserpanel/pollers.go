package parserpanel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/backnews/admin/internal/backnews"
)

type pollerEntry struct {
	poller *Poller
	cancel context.CancelFunc
	done   chan struct{}
}

// Pollers keeps one running Poller per session.
type Pollers struct {
	panel     *Panel
	intervals Intervals
	idleTTL   time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	base    context.Context
	stop    context.CancelFunc
	entries map[string]*pollerEntry
}

func NewPollers(panel *Panel, intervals Intervals, idleTTL time.Duration, logger *slog.Logger) *Pollers {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	return &Pollers{
		panel:     panel,
		intervals: intervals,
		idleTTL:   idleTTL,
		logger:    logger,
		now:       time.Now,
		base:      base,
		stop:      stop,
		entries:   make(map[string]*pollerEntry),
	}
}

// Ensure returns the session's poller, starting it on first use. api must be
// the session's own client so that a 401 ends the session it belongs to.
func (r *Pollers) Ensure(owner string, api API, user backnews.User) *Poller {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[owner]; ok {
		return entry.poller
	}

	poller := NewPoller(r.panel, api, user, r.intervals, r.logger.With("session", owner))
	poller.now = r.now
	poller.lastAccess = r.now()
	ctx, cancel := context.WithCancel(r.base)
	entry := &pollerEntry{poller: poller, cancel: cancel, done: make(chan struct{})}
	r.entries[owner] = entry
	go func() {
		defer close(entry.done)
		poller.Run(ctx)
	}()
	return poller
}

// Stop ends the poller of one session.
func (r *Pollers) Stop(owner string) {
	r.mu.Lock()
	entry, ok := r.entries[owner]
	delete(r.entries, owner)
	r.mu.Unlock()
	if ok {
		entry.cancel()
		<-entry.done
	}
}

// Sweep stops pollers whose snapshot has not been read within the idle TTL.
func (r *Pollers) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*pollerEntry
	for owner, entry := range r.entries {
		if entry.poller.idleSince().Before(cutoff) {
			idle = append(idle, entry)
			delete(r.entries, owner)
		}
	}
	r.mu.Unlock()

	for _, entry := range idle {
		entry.cancel()
		<-entry.done
	}
	return len(idle)
}

func (r *Pollers) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops every poller.
func (r *Pollers) Close() {
	r.stop()
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*pollerEntry)
	r.mu.Unlock()
	for _, entry := range entries {
		<-entry.done
	}
}
