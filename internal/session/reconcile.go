package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/backnews/admin/internal/backnews"
)

// Reconciler replaces optimistic stored users with the API's current view.
type Reconciler struct {
	store   *Store
	api     *backnews.Client
	delay   time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu           sync.Mutex
	pending      map[string]*time.Timer
	seen         map[string]struct{}
	onInvalidate func(id string)
	wg           sync.WaitGroup
	stopped      bool
}

func NewReconciler(store *Store, api *backnews.Client, delay time.Duration, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:   store,
		api:     api,
		delay:   delay,
		timeout: 15 * time.Second,
		logger:  logger,
		pending: make(map[string]*time.Timer),
		seen:    make(map[string]struct{}),
	}
}

// OnInvalidate registers fn to run after a refresh destroys session id.
func (r *Reconciler) OnInvalidate(fn func(id string)) {
	r.mu.Lock()
	r.onInvalidate = fn
	r.mu.Unlock()
}

// Schedule refreshes the session's user once after the configured delay.
// A refresh already pending for id is left alone.
func (r *Reconciler) Schedule(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduleLocked(id)
}

// ScheduleOnce schedules a refresh the first time this process sees id.
// Sessions restored from the store after a restart get reconciled this way.
func (r *Reconciler) ScheduleOnce(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[id]; ok {
		return
	}
	r.scheduleLocked(id)
}

func (r *Reconciler) scheduleLocked(id string) {
	if r.stopped {
		return
	}
	r.seen[id] = struct{}{}
	if _, exists := r.pending[id]; exists {
		return
	}
	r.wg.Add(1)
	r.pending[id] = time.AfterFunc(r.delay, func() {
		defer r.wg.Done()
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Refresh(ctx, id); err != nil && !errors.Is(err, ErrNoSession) {
			r.logger.Warn("delayed user refresh failed", "session", id, "error", err)
		}
	})
}

// Refresh fetches the current user for session id. Transport and server
// failures keep the stored user; a 401 destroys the session.
func (r *Reconciler) Refresh(ctx context.Context, id string) (Session, error) {
	sess, err := r.store.Load(ctx, id)
	if err != nil {
		return Session{}, err
	}

	client := r.api.As(sess.Token, func() {
		if err := r.store.Invalidate(context.WithoutCancel(ctx), id); err != nil {
			r.logger.Error("failed to invalidate session", "session", id, "error", err)
		}
		r.mu.Lock()
		delete(r.seen, id)
		hook := r.onInvalidate
		r.mu.Unlock()
		if hook != nil {
			hook(id)
		}
	})

	user, err := client.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, backnews.ErrUnauthorized) {
			return Session{}, ErrNoSession
		}
		r.logger.Warn("user refresh failed, keeping stored user", "session", id, "error", err)
		return sess, nil
	}

	if err := r.store.UpdateUser(ctx, id, user); err != nil {
		return sess, err
	}
	sess.User = user
	return sess, nil
}

// RefreshAll refreshes every active session, one at a time.
func (r *Reconciler) RefreshAll(ctx context.Context) error {
	sessions, err := r.store.Active(ctx)
	if err != nil {
		return err
	}
	for _, sess := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.Refresh(ctx, sess.ID); err != nil && !errors.Is(err, ErrNoSession) {
			r.logger.Warn("periodic user refresh failed", "session", sess.ID, "error", err)
		}
	}
	return nil
}

// Stop cancels pending refreshes and waits for running ones.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.stopped = true
	for id, timer := range r.pending {
		if timer.Stop() {
			r.wg.Done()
		}
		delete(r.pending, id)
	}
	r.mu.Unlock()
	r.wg.Wait()
}
