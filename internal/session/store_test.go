package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/db"
	"github.com/backnews/admin/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:session-store-%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewStore(conn, "test-secret", logging.Discard())
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("upstream-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestCreateAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	token := signedToken(t, time.Now().Add(time.Hour))

	user := backnews.User{ID: "u1", Username: "alice", Role: backnews.RoleSuperAdmin}
	created, err := store.Create(ctx, user, token)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ExpiresAt == nil {
		t.Fatalf("expected expiry from exp claim")
	}

	var row db.AdminSession
	if err := store.db.First(&row, "id = ?", created.ID).Error; err != nil {
		t.Fatalf("row missing: %v", err)
	}
	if string(row.SealedToken) == token {
		t.Fatalf("token must not be stored in clear text")
	}

	loaded, err := store.Load(ctx, created.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.Token != token || loaded.User.Username != "alice" || !loaded.User.IsSuperAdmin() {
		t.Fatalf("unexpected session %+v", loaded)
	}
}

func TestLoadRejectsExpiredToken(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, backnews.User{ID: "u1"}, signedToken(t, time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := store.Load(ctx, created.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	var count int64
	store.db.Model(&db.AdminSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("expired session should be removed, %d left", count)
	}
}

func TestLoadWithOtherSecretFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	created, err := store.Create(ctx, backnews.User{ID: "u1"}, "opaque-token")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	other := NewStore(store.db, "rotated-secret", logging.Discard())
	if _, err := other.Load(ctx, created.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession with a rotated secret, got %v", err)
	}
}

func TestDestroyAndPurge(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	store.now = func() time.Time { return now }

	live, _ := store.Create(ctx, backnews.User{ID: "u1"}, signedToken(t, now.Add(time.Hour)))
	stale, _ := store.Create(ctx, backnews.User{ID: "u2"}, signedToken(t, now.Add(2*time.Hour)))
	gone, _ := store.Create(ctx, backnews.User{ID: "u3"}, "opaque")

	if err := store.Destroy(ctx, gone.ID); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if _, err := store.Load(ctx, gone.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("destroyed session should not load, got %v", err)
	}

	now = now.Add(90 * time.Minute)
	store.Touch(ctx, stale.ID)
	purged, err := store.Purge(ctx, 0)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected one expired session purged, got %d", purged)
	}
	if _, err := store.Load(ctx, live.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expired session should be gone")
	}
	if _, err := store.Load(ctx, stale.ID); err != nil {
		t.Fatalf("unexpired session should survive: %v", err)
	}
}

func TestCreateRejectsEmptyToken(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Create(context.Background(), backnews.User{ID: "u1"}, ""); !errors.Is(err, ErrEmptyToken) {
		t.Fatalf("expected ErrEmptyToken, got %v", err)
	}
}

func newReconciler(t *testing.T, store *Store, handler http.HandlerFunc) *Reconciler {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	api := backnews.New(server.URL, backnews.WithHTTPClient(server.Client()), backnews.WithLogger(logging.Discard()))
	return NewReconciler(store, api, 10*time.Millisecond, logging.Discard())
}

func TestRefreshReplacesStoredUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, backnews.User{ID: "u1", Username: "old"}, "tok")

	r := newReconciler(t, store, func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer tok" {
			t.Fatalf("missing bearer token")
		}
		io.WriteString(w, `{"success":true,"data":{"user":{"_id":"u1","username":"fresh","role":"user_admin"}}}`)
	})

	got, err := r.Refresh(ctx, sess.ID)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if got.User.Username != "fresh" {
		t.Fatalf("expected refreshed user, got %+v", got.User)
	}
	loaded, _ := store.Load(ctx, sess.ID)
	if loaded.User.Username != "fresh" {
		t.Fatalf("refreshed user not persisted: %+v", loaded.User)
	}
}

func TestRefreshFailureKeepsStoredUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, backnews.User{ID: "u1", Username: "saved"}, "tok")

	r := newReconciler(t, store, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	got, err := r.Refresh(ctx, sess.ID)
	if err != nil {
		t.Fatalf("refresh should degrade gracefully, got %v", err)
	}
	if got.User.Username != "saved" {
		t.Fatalf("expected stored user, got %+v", got.User)
	}
}

func TestRefreshUnauthorizedDestroysSession(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, backnews.User{ID: "u1"}, "tok")

	r := newReconciler(t, store, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := r.Refresh(ctx, sess.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := store.Load(ctx, sess.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("session should be destroyed after 401")
	}
}

func TestScheduleRunsOnceAfterDelay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, backnews.User{ID: "u1", Username: "old"}, "tok")

	hits := make(chan struct{}, 4)
	r := newReconciler(t, store, func(w http.ResponseWriter, req *http.Request) {
		hits <- struct{}{}
		io.WriteString(w, `{"success":true,"data":{"user":{"_id":"u1","username":"fresh"}}}`)
	})

	r.Schedule(sess.ID)
	r.Schedule(sess.ID)

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduled refresh did not run")
	}
	r.Stop()

	if len(hits) != 0 {
		t.Fatalf("duplicate schedule should be coalesced")
	}
	loaded, _ := store.Load(ctx, sess.ID)
	if loaded.User.Username != "fresh" {
		t.Fatalf("expected refreshed user, got %+v", loaded.User)
	}
}

func TestScheduleOnceSkipsSeenSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, backnews.User{ID: "u1"}, "tok")

	hits := make(chan struct{}, 4)
	r := newReconciler(t, store, func(w http.ResponseWriter, req *http.Request) {
		hits <- struct{}{}
		io.WriteString(w, `{"success":true,"data":{"user":{"_id":"u1","username":"fresh"}}}`)
	})

	r.ScheduleOnce(sess.ID)
	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatalf("first sighting should schedule a refresh")
	}

	r.ScheduleOnce(sess.ID)
	time.Sleep(50 * time.Millisecond)
	r.Stop()
	if len(hits) != 0 {
		t.Fatalf("a seen session must not be refreshed again")
	}
}

func TestRefreshUnauthorizedRunsInvalidateHook(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	sess, _ := store.Create(ctx, backnews.User{ID: "u1"}, "tok")

	r := newReconciler(t, store, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	var released []string
	r.OnInvalidate(func(id string) { released = append(released, id) })

	if _, err := r.Refresh(ctx, sess.ID); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if len(released) != 1 || released[0] != sess.ID {
		t.Fatalf("expected the hook to run for %s, got %v", sess.ID, released)
	}
}
