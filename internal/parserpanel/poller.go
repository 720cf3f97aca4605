package parserpanel

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/backnews/admin/internal/backnews"
)

// Intervals is the polling policy of the parser screen.
type Intervals struct {
	Status   time.Duration
	Fast     time.Duration
	FastFor  time.Duration
	Settings time.Duration
}

// DefaultIntervals: status every 15s, every 3s for 10s after a manual run,
// settings and history every minute.
var DefaultIntervals = Intervals{
	Status:   15 * time.Second,
	Fast:     3 * time.Second,
	FastFor:  10 * time.Second,
	Settings: time.Minute,
}

// Snapshot is the latest polled state.
type Snapshot struct {
	Status        *StatusView                  `json:"status,omitempty"`
	Settings      *backnews.ParserSettingsView `json:"settings,omitempty"`
	History       *HistoryView                 `json:"history,omitempty"`
	StatusError   string                       `json:"statusError,omitempty"`
	SettingsError string                       `json:"settingsError,omitempty"`
	HistoryError  string                       `json:"historyError,omitempty"`
	Running       bool                         `json:"running"`
	Paused        bool                         `json:"paused"`
	UpdatedAt     time.Time                    `json:"updatedAt"`
}

// Poller refreshes the parser state in the background for one session.
type Poller struct {
	panel     *Panel
	api       API
	user      backnews.User
	intervals Intervals
	logger    *slog.Logger
	now       func() time.Time
	kick      chan struct{}

	mu            sync.Mutex
	snap          Snapshot
	fastUntil     time.Time
	mutating      int
	slowFetchedAt time.Time
	lastAccess    time.Time
}

func NewPoller(panel *Panel, api API, user backnews.User, intervals Intervals, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		panel:      panel,
		api:        api,
		user:       user,
		intervals:  intervals,
		logger:     logger,
		now:        time.Now,
		kick:       make(chan struct{}, 1),
		lastAccess: time.Now(),
	}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) {
	p.poll(ctx, true)
	timer := time.NewTimer(p.nextDelay())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
		case <-timer.C:
		}
		p.poll(ctx, false)
		timer.Reset(p.nextDelay())
	}
}

func (p *Poller) nextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.now().Before(p.fastUntil) {
		return p.intervals.Fast
	}
	return p.intervals.Status
}

// poll refreshes status unless a mutation is pending, and settings plus
// history when they are due.
func (p *Poller) poll(ctx context.Context, force bool) {
	p.mu.Lock()
	paused := p.mutating > 0
	slowDue := force || p.now().Sub(p.slowFetchedAt) >= p.intervals.Settings
	p.mu.Unlock()

	if !paused {
		status, err := p.panel.Status(ctx, p.api, p.user)
		p.mu.Lock()
		if err != nil {
			p.snap.StatusError = backnews.Message(err)
			p.logger.Debug("parser status poll failed", "error", err)
		} else {
			p.snap.Status = &status
			p.snap.StatusError = ""
		}
		p.snap.UpdatedAt = p.now()
		p.mu.Unlock()
	}

	if !slowDue {
		return
	}
	settings, settingsErr := p.panel.Settings(ctx, p.api, p.user)
	history, historyErr := p.panel.History(ctx, p.api, p.user, 1, 20)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.slowFetchedAt = p.now()
	if settingsErr != nil {
		p.snap.SettingsError = backnews.Message(settingsErr)
	} else {
		p.snap.Settings = &settings
		p.snap.SettingsError = ""
	}
	if historyErr != nil {
		p.snap.HistoryError = backnews.Message(historyErr)
	} else {
		p.snap.History = &history
		p.snap.HistoryError = ""
	}
}

// Snapshot returns the latest state and records the access for the idle sweep.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastAccess = p.now()
	snap := p.snap
	snap.Running = p.now().Before(p.fastUntil)
	snap.Paused = p.mutating > 0
	return snap
}

func (p *Poller) idleSince() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAccess
}

// Mutate runs fn with status polling paused.
func (p *Poller) Mutate(fn func() error) error {
	p.mu.Lock()
	p.mutating++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.mutating--
		p.mu.Unlock()
		p.refreshSoon(false)
	}()
	return fn()
}

// RunParser starts a manual run and switches to fast polling for a while.
func (p *Poller) RunParser(ctx context.Context, count int) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.Mutate(func() error {
		var err error
		out, err = p.panel.Run(ctx, p.api, p.user, count)
		return err
	})
	if err == nil {
		p.refreshSoon(true)
	}
	return out, err
}

// TestParser runs a dry run with polling paused.
func (p *Poller) TestParser(ctx context.Context, count int) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.Mutate(func() error {
		var err error
		out, err = p.panel.Test(ctx, p.api, p.user, count)
		return err
	})
	return out, err
}

// Toggle enables or disables the parser with polling paused.
func (p *Poller) Toggle(ctx context.Context, enabled bool) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.Mutate(func() error {
		var err error
		out, err = p.panel.Toggle(ctx, p.api, p.user, enabled)
		return err
	})
	return out, err
}

func (p *Poller) refreshSoon(fast bool) {
	p.mu.Lock()
	if fast {
		p.fastUntil = p.now().Add(p.intervals.FastFor)
	}
	p.slowFetchedAt = time.Time{}
	p.mu.Unlock()
	select {
	case p.kick <- struct{}{}:
	default:
	}
}
