package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/db"
	"github.com/backnews/admin/internal/logging"
	"github.com/backnews/admin/internal/session"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// fakeUpstream plays the BackNews API.
type fakeUpstream struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  []string
	server *httptest.Server
}

func newFakeUpstream(t *testing.T) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{routes: make(map[string]http.HandlerFunc)}
	f.server = httptest.NewServer(f)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) handle(method, path string, fn http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+path] = fn
}

func (f *fakeUpstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	f.mu.Lock()
	f.calls = append(f.calls, key)
	fn, ok := f.routes[key]
	f.mu.Unlock()
	if !ok {
		writeUpstreamError(w, http.StatusNotFound, "Not found")
		return
	}
	fn(w, r)
}

func (f *fakeUpstream) called(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if call == key {
			n++
		}
	}
	return n
}

func writeUpstreamData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

func writeUpstreamError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": message})
}

type testEnv struct {
	api        *API
	router     *gin.Engine
	upstream   *fakeUpstream
	sessions   *session.Store
	reconciler *session.Reconciler
}

func setupHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:admin-handler-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := session.NewStore(setupHandlerTestDB(t), "test-secret", logging.Discard())
	return startTestEnv(t, newFakeUpstream(t), store, 0)
}

// startTestEnv builds a server process over an existing upstream and session
// store. A positive reconcileDelay enables the user reconciler.
func startTestEnv(t *testing.T, upstream *fakeUpstream, store *session.Store, reconcileDelay time.Duration) *testEnv {
	t.Helper()
	client := backnews.New(upstream.server.URL, backnews.WithLogger(logging.Discard()), backnews.WithMaxRetryWait(0))

	var rec *session.Reconciler
	if reconcileDelay > 0 {
		rec = session.NewReconciler(store, client, reconcileDelay, logging.Discard())
		t.Cleanup(rec.Stop)
	}

	api := NewAPI(Deps{
		Client:        client,
		Sessions:      store,
		Reconciler:    rec,
		Cache:         cache.NewMemory(),
		Logger:        logging.Discard(),
		MediaBaseURL:  "https://media.example.com",
		EditorIdleTTL: time.Minute,
	})
	t.Cleanup(api.Close)

	r := gin.New()
	r.Use(sessions.Sessions("test_session", cookie.NewStore([]byte("test-secret"))))
	r.GET("/healthz", api.Health)
	r.POST("/admin/login", api.Login)
	r.POST("/admin/logout", api.Logout)

	auth := r.Group("/admin")
	auth.Use(api.AuthRequired())
	auth.GET("/me", api.Me)
	v := auth.Group("/api")
	v.GET("/articles", api.GetArticles)
	v.DELETE("/articles/:id", api.DeleteArticle)
	v.POST("/editors", api.OpenEditor)
	v.PATCH("/editors/:editorId", api.PatchEditor)
	v.POST("/editors/:editorId/submit", api.SubmitEditor)
	v.GET("/editors/:editorId", api.GetEditor)
	super := v.Group("")
	super.Use(api.RequireSuperAdmin())
	super.GET("/users", api.GetUsers)
	super.POST("/parser/run", api.RunParser)
	super.POST("/system/blocked-ips", api.BlockIP)
	super.PUT("/system/settings", api.UpdateSystemSettings)

	return &testEnv{api: api, router: r, upstream: upstream, sessions: store, reconciler: rec}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func testUser(role backnews.Role) backnews.User {
	user := backnews.User{ID: "u-" + string(role), Username: string(role), Role: role, IsActive: true}
	if role == backnews.RoleUserAdmin {
		user.Restrictions = backnews.Restrictions{CanEdit: true, CanDelete: true, MaxArticles: 10}
	}
	return user
}

// login signs user in through the handler and returns the session cookies.
func (e *testEnv) login(t *testing.T, user backnews.User) []*http.Cookie {
	t.Helper()
	e.upstream.handle(http.MethodPost, "/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeUpstreamData(w, map[string]any{"user": user, "token": "token-" + user.ID})
	})
	w := e.do(t, http.MethodPost, "/admin/login", map[string]string{"login": user.Username, "password": "secret123"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected login to succeed, got %d: %s", w.Code, w.Body.String())
	}
	cookies := w.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("expected a session cookie")
	}
	return cookies
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func TestLoginCreatesSession(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testUser(backnews.RoleSuperAdmin))

	w := env.do(t, http.MethodGet, "/admin/me", nil, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		User        backnews.User   `json:"user"`
		Permissions map[string]bool `json:"permissions"`
	}
	decodeBody(t, w, &resp)
	if resp.User.ID != "u-super_admin" {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
	if !resp.Permissions["superAdmin"] || !resp.Permissions["manageParser"] {
		t.Fatalf("expected super admin permissions, got %v", resp.Permissions)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.handle(http.MethodPost, "/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeUpstreamError(w, http.StatusUnauthorized, "Invalid credentials")
	})

	w := env.do(t, http.MethodPost, "/admin/login", map[string]string{"login": "alice", "password": "wrongpass"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid login or password") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestLoginValidatesForm(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/admin/login", map[string]string{"login": "", "password": ""}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
	if env.upstream.called("POST /auth/login") != 0 {
		t.Fatalf("expected no upstream call for an invalid form")
	}
}

func TestLoginRejectsNonAdminRole(t *testing.T) {
	env := newTestEnv(t)
	env.upstream.handle(http.MethodPost, "/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeUpstreamData(w, map[string]any{"user": backnews.User{ID: "u1", Username: "reader", Role: "user"}, "token": "tok"})
	})

	w := env.do(t, http.MethodPost, "/admin/login", map[string]string{"login": "reader", "password": "secret123"}, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	active, err := env.sessions.Active(t.Context())
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no session, found %d", len(active))
	}
}

func TestAuthRequiredWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/admin/me", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), loginPath) {
		t.Fatalf("expected redirect to the login page, got %s", w.Body.String())
	}
}

func TestUpstreamUnauthorizedEndsSession(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testUser(backnews.RoleSuperAdmin))
	env.upstream.handle(http.MethodGet, "/admin/articles", func(w http.ResponseWriter, r *http.Request) {
		writeUpstreamError(w, http.StatusUnauthorized, "Token expired")
	})

	w := env.do(t, http.MethodGet, "/admin/api/articles", nil, cookies)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["redirect"] != loginPath {
		t.Fatalf("expected redirect %q, got %v", loginPath, resp["redirect"])
	}

	w = env.do(t, http.MethodGet, "/admin/me", nil, cookies)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected the session to be gone, got %d", w.Code)
	}
}

func TestLogoutDestroysSession(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testUser(backnews.RoleUserAdmin))

	w := env.do(t, http.MethodPost, "/admin/logout", nil, cookies)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	w = env.do(t, http.MethodGet, "/admin/me", nil, cookies)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after logout, got %d", w.Code)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.login(t, testUser(backnews.RoleUserAdmin))

	w := env.do(t, http.MethodGet, "/admin/api/users", nil, cookies)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	if env.upstream.called("GET /admin/users") != 0 {
		t.Fatalf("expected no upstream call")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), env.upstream.server.URL) {
		t.Fatalf("expected the API base URL in %s", w.Body.String())
	}
}

func TestRestoredSessionIsReconciledOnce(t *testing.T) {
	before := newTestEnv(t)
	user := testUser(backnews.RoleUserAdmin)
	cookies := before.login(t, user)

	renamed := user
	renamed.Username = "renamed"
	before.upstream.handle(http.MethodGet, "/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeUpstreamData(w, map[string]any{"user": renamed})
	})

	// a restarted process sees the stored session for the first time
	after := startTestEnv(t, before.upstream, before.sessions, 10*time.Millisecond)
	for i := 0; i < 3; i++ {
		if w := after.do(t, http.MethodGet, "/admin/me", nil, cookies); w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for after.upstream.called("GET /auth/me") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("restored session was never reconciled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	after.reconciler.Stop()

	if n := after.upstream.called("GET /auth/me"); n != 1 {
		t.Fatalf("expected one reconcile per session, got %d", n)
	}
	w := after.do(t, http.MethodGet, "/admin/me", nil, cookies)
	var resp struct {
		User backnews.User `json:"user"`
	}
	decodeBody(t, w, &resp)
	if resp.User.Username != "renamed" {
		t.Fatalf("expected the reconciled user, got %+v", resp.User)
	}
}

func TestReconcileUnauthorizedReleasesSessionState(t *testing.T) {
	store := session.NewStore(setupHandlerTestDB(t), "test-secret", logging.Discard())
	env := startTestEnv(t, newFakeUpstream(t), store, time.Hour)
	cookies := env.login(t, testUser(backnews.RoleSuperAdmin))

	if w := env.do(t, http.MethodPost, "/admin/api/editors", nil, cookies); w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.api.editors.Len() != 1 {
		t.Fatalf("expected an open editor, got %d", env.api.editors.Len())
	}

	env.upstream.handle(http.MethodGet, "/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeUpstreamError(w, http.StatusUnauthorized, "Token revoked")
	})
	active, err := env.sessions.Active(t.Context())
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one session, got %d (%v)", len(active), err)
	}
	if _, err := env.reconciler.Refresh(t.Context(), active[0].ID); !errors.Is(err, session.ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if env.api.editors.Len() != 0 {
		t.Fatalf("expected editors released with the session, got %d", env.api.editors.Len())
	}
	if w := env.do(t, http.MethodGet, "/admin/me", nil, cookies); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}
