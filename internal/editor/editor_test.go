package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/logging"
	"github.com/backnews/admin/internal/validation"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testOptions(c cache.Cache) Options {
	now := func() time.Time { return testNow }
	return Options{
		Validator:    validation.New(now),
		Cache:        c,
		MediaBaseURL: "https://media.example.com",
		ConfirmDelay: 2 * time.Second,
		Logger:       logging.Discard(),
		Now:          now,
	}
}

func longBody() string {
	return "<p>" + strings.Repeat("word ", 25) + "</p>"
}

func strPtr(s string) *string { return &s }

func readyCreateEditor(t *testing.T, api *fakeAPI) *Editor {
	t.Helper()
	e := New("sess-1", api, backnews.User{ID: "u1", Role: backnews.RoleSuperAdmin}, "", testOptions(cache.NewMemory()))
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	return e
}

func fillValid(t *testing.T, e *Editor) {
	t.Helper()
	domains := []string{"d1"}
	if _, err := e.Apply(Patch{
		Title:   strPtr("Market update"),
		Content: strPtr(longBody()),
		Domain:  &domains,
	}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestFallbackFindsArticleInOwnList(t *testing.T) {
	api := &fakeAPI{
		adminFn: func(string) (backnews.Article, error) { return backnews.Article{}, serverError() },
		myListFn: func(p backnews.ListParams) (backnews.Page[backnews.Article], error) {
			if p.Limit != 1000 {
				t.Fatalf("expected limit 1000, got %d", p.Limit)
			}
			return backnews.Page[backnews.Article]{Items: []backnews.Article{
				{ID: "other"},
				{ID: "a1", Title: "Found me", Status: "published"},
			}}, nil
		},
	}
	e := New("sess-1", api, backnews.User{ID: "u1"}, "a1", testOptions(nil))
	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	want := []string{"edit", "generic", "admin", "own-list"}
	got := api.callNames()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected lookup order %v", got)
	}
	snap := e.Snapshot()
	if snap.State != StateReady || snap.Form.Title != "Found me" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestFallbackAbortsOnPrimaryServerError(t *testing.T) {
	api := &fakeAPI{
		editFn: func(string) (backnews.Article, error) { return backnews.Article{}, serverError() },
	}
	e := New("sess-1", api, backnews.User{ID: "u1"}, "a1", testOptions(nil))
	err := e.Load(context.Background())
	if !errors.Is(err, backnews.ErrServer) {
		t.Fatalf("expected server error, got %v", err)
	}
	if got := api.callNames(); len(got) != 1 {
		t.Fatalf("non-404 primary failure must not fall back, calls=%v", got)
	}
	if e.State() != StateFatal {
		t.Fatalf("expected fatal state, got %s", e.State())
	}
}

func TestFallbackExhaustedIsFatal(t *testing.T) {
	api := &fakeAPI{}
	e := New("sess-1", api, backnews.User{ID: "u1"}, "missing", testOptions(nil))
	err := e.Load(context.Background())
	if !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if len(api.callNames()) != 4 {
		t.Fatalf("expected every lookup once, got %v", api.callNames())
	}
	snap := e.Snapshot()
	if snap.State != StateFatal || !strings.Contains(snap.Error, "missing") {
		t.Fatalf("expected actionable fatal error, got %+v", snap)
	}
	if _, err := e.Apply(Patch{Title: strPtr("x")}); !errors.Is(err, ErrNotEditable) {
		t.Fatalf("fatal editor must refuse edits, got %v", err)
	}
}

func TestFallbackStopsOnUnauthorized(t *testing.T) {
	api := &fakeAPI{
		genericFn: func(string) (backnews.Article, error) {
			return backnews.Article{}, &backnews.APIError{Kind: backnews.KindUnauthorized, Status: 401}
		},
	}
	e := New("sess-1", api, backnews.User{ID: "u1"}, "a1", testOptions(nil))
	if err := e.Load(context.Background()); !errors.Is(err, backnews.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(api.callNames()) != 2 {
		t.Fatalf("401 must stop the plan, calls=%v", api.callNames())
	}
}

func TestHydrateDefaultsAndLegacyDomain(t *testing.T) {
	var article backnews.Article
	raw := `{"_id":"a1","title":"T","content":"c","domain":"d1","tags":["x"," x ","y"],"media":{"featuredImage":{"url":"https://cdn/x.png"}}}`
	if err := jsonUnmarshal(raw, &article); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	form := Hydrate(article)
	if form.Status != validation.StatusDraft || form.Category != "Other" {
		t.Fatalf("unexpected defaults %+v", form)
	}
	if len(form.Domain) != 1 || form.Domain[0] != "d1" {
		t.Fatalf("legacy domain not converted: %v", form.Domain)
	}
	if form.FeaturedImage != "https://cdn/x.png" {
		t.Fatalf("featured image not hydrated: %q", form.FeaturedImage)
	}
	if len(form.Tags) != 2 {
		t.Fatalf("tags should be trimmed and deduplicated: %v", form.Tags)
	}
}

func TestSubmitValidationFailureMakesNoCalls(t *testing.T) {
	api := &fakeAPI{}
	e := readyCreateEditor(t, api)
	if _, err := e.Apply(Patch{Title: strPtr("Only a title")}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	_, err := e.Submit(context.Background())
	var verr *validation.Errors
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	if !verr.Has("content") || !verr.Has("domain") {
		t.Fatalf("unexpected fields %v", verr.Fields)
	}
	if api.countCalls("create") != 0 || api.countCalls("upload") != 0 {
		t.Fatalf("validation failure must not reach the network: %v", api.callNames())
	}
	if e.State() != StateDirty {
		t.Fatalf("state must stay dirty, got %s", e.State())
	}
}

func TestSubmitRejectsBlankTitle(t *testing.T) {
	api := &fakeAPI{}
	e := readyCreateEditor(t, api)
	fillValid(t, e)
	if _, err := e.Apply(Patch{Title: strPtr("   \t ")}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	_, err := e.Submit(context.Background())
	var verr *validation.Errors
	if !errors.As(err, &verr) || !verr.Has("title") {
		t.Fatalf("expected a title error, got %v", err)
	}
	if api.countCalls("create") != 0 {
		t.Fatalf("blank title must not reach the network: %v", api.callNames())
	}
}

func TestSubmitCreateSwitchesToEditAndInvalidates(t *testing.T) {
	api := &fakeAPI{}
	mem := cache.NewMemory()
	ctx := context.Background()
	mem.Set(ctx, cache.ArticlesKey("sess-1", "page=1"), 1, 0)

	e := New("sess-1", api, backnews.User{ID: "u1", Role: backnews.RoleSuperAdmin}, "", testOptions(mem))
	if err := e.Open(ctx); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	fillValid(t, e)

	result, err := e.Submit(ctx)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !result.Created || result.Redirect != "/admin/articles" || result.RedirectAfter != 2*time.Second {
		t.Fatalf("unexpected result %+v", result)
	}
	snap := e.Snapshot()
	if snap.Mode != ModeEdit || snap.ArticleID != "new-id" || snap.State != StateReady {
		t.Fatalf("unexpected snapshot after create %+v", snap)
	}
	var n int
	if ok, _ := mem.Get(ctx, cache.ArticlesKey("sess-1", "page=1"), &n); ok {
		t.Fatalf("article lists must be invalidated after save")
	}

	payload := api.lastPayload()
	if payload.Status != "published" || !payload.Scheduling.PublishNow || payload.Scheduling.ScheduleDate != nil {
		t.Fatalf("unexpected scheduling %+v", payload.Scheduling)
	}
	if payload.Media != nil {
		t.Fatalf("media must be omitted without an image")
	}

	if _, err := e.Submit(ctx); err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	if api.countCalls("update") != 1 {
		t.Fatalf("after create the editor must update, calls=%v", api.callNames())
	}
}

func TestSubmitInFlightGuard(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &fakeAPI{
		createFn: func(p backnews.ArticlePayload) (backnews.Article, error) {
			close(entered)
			<-release
			return backnews.Article{ID: "a1", Title: p.Title}, nil
		},
	}
	e := readyCreateEditor(t, api)
	fillValid(t, e)

	done := make(chan error, 1)
	go func() {
		_, err := e.Submit(context.Background())
		done <- err
	}()
	<-entered

	if _, err := e.Submit(context.Background()); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("expected ErrSubmitInFlight, got %v", err)
	}
	if _, err := e.Apply(Patch{Title: strPtr("changed")}); !errors.Is(err, ErrSubmitInFlight) {
		t.Fatalf("edits during submit must be refused, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	if api.countCalls("create") != 1 {
		t.Fatalf("expected exactly one create, got %v", api.callNames())
	}
}

func TestSubmitFailureReturnsToDirty(t *testing.T) {
	api := &fakeAPI{
		createFn: func(backnews.ArticlePayload) (backnews.Article, error) {
			return backnews.Article{}, &backnews.APIError{Kind: backnews.KindValidation, Status: 400, Message: "Slug already taken"}
		},
	}
	e := readyCreateEditor(t, api)
	fillValid(t, e)

	_, err := e.Submit(context.Background())
	if !errors.Is(err, backnews.ErrValidation) {
		t.Fatalf("expected upstream validation error, got %v", err)
	}
	if Banner(err) != "Slug already taken" {
		t.Fatalf("unexpected banner %q", Banner(err))
	}
	if e.State() != StateDirty {
		t.Fatalf("expected dirty after failure, got %s", e.State())
	}
}

func TestSubmitUploadsImageAndPrefixesURL(t *testing.T) {
	api := &fakeAPI{}
	e := readyCreateEditor(t, api)
	fillValid(t, e)

	snap, err := e.AttachImage("cover.png", "image/png", pngBytes(t))
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	if !IsLocalRef(snap.Form.FeaturedImage) || snap.PendingImage == nil || snap.PendingImage.Width != 4 {
		t.Fatalf("expected local preview ref, got %+v", snap)
	}

	if _, err := e.Submit(context.Background()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	payload := api.lastPayload()
	if payload.Media == nil || payload.Media.FeaturedImage.URL != "https://media.example.com/uploads/cover.png" {
		t.Fatalf("unexpected media %+v", payload.Media)
	}
	if payload.Media.FeaturedImage.Alt != "Market update" {
		t.Fatalf("alt must mirror the title, got %q", payload.Media.FeaturedImage.Alt)
	}
}

func TestSubmitUploadFailureNeverSendsLocalRef(t *testing.T) {
	api := &fakeAPI{
		editFn: func(id string) (backnews.Article, error) {
			return backnews.Article{
				ID: id, Title: "Old", Content: longBody(), Category: "Crypto", Status: "draft",
				Domain: backnews.DomainRefs{{ID: "d1"}},
				Media:  &backnews.Media{FeaturedImage: &backnews.Image{URL: "https://cdn/old.png"}},
			}, nil
		},
		uploadFn: func(string, string, []byte) (backnews.FileUpload, error) {
			return backnews.FileUpload{}, serverError()
		},
	}
	e := New("sess-1", api, backnews.User{ID: "u1"}, "a1", testOptions(nil))
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if _, err := e.AttachImage("new.png", "", pngBytes(t)); err != nil {
		t.Fatalf("attach failed: %v", err)
	}

	result, err := e.Submit(context.Background())
	if err != nil {
		t.Fatalf("save should proceed without the image, got %v", err)
	}
	if len(result.Warnings) != 1 {
		t.Fatalf("expected an upload warning, got %v", result.Warnings)
	}
	payload := api.lastPayload()
	if payload.Media == nil || payload.Media.FeaturedImage.URL != "https://cdn/old.png" {
		t.Fatalf("expected the persisted image, got %+v", payload.Media)
	}

	snap := e.Snapshot()
	if snap.PendingImage == nil || !IsLocalRef(snap.Form.FeaturedImage) {
		t.Fatalf("expected the chosen image kept for a retry, got %+v", snap)
	}
	if e.State() != StateDirty {
		t.Fatalf("expected dirty state after a failed upload, got %v", e.State())
	}

	api.uploadFn = nil
	if _, err := e.Submit(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	payload = api.lastPayload()
	if payload.Media == nil || payload.Media.FeaturedImage.URL != "https://media.example.com/uploads/new.png" {
		t.Fatalf("expected the retried upload, got %+v", payload.Media)
	}
	if e.Snapshot().PendingImage != nil {
		t.Fatalf("pending image must clear once uploaded")
	}
}

func TestAttachImageRejectsBadFiles(t *testing.T) {
	e := readyCreateEditor(t, &fakeAPI{})

	if _, err := e.AttachImage("doc.pdf", "application/pdf", []byte("%PDF-1.4")); !errors.Is(err, ErrImageType) {
		t.Fatalf("expected ErrImageType, got %v", err)
	}
	if _, err := e.AttachImage("fake.png", "image/png", []byte("not really a png")); !errors.Is(err, ErrImageType) {
		t.Fatalf("expected ErrImageType for mismatched content, got %v", err)
	}
	big := make([]byte, MaxImageSize+1)
	if _, err := e.AttachImage("big.png", "image/png", big); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("expected ErrImageTooLarge, got %v", err)
	}
	if e.Snapshot().PendingImage != nil {
		t.Fatalf("rejected files must not become pending")
	}
}

func TestApplyParsesScheduleAndTags(t *testing.T) {
	e := readyCreateEditor(t, &fakeAPI{})
	snap, err := e.Apply(Patch{
		Status:      strPtr("scheduled"),
		ScheduledAt: strPtr("2025-07-01 09:30"),
		AddTags:     []string{" btc ", "eth", "btc", ""},
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if snap.Form.ScheduledAt == nil || snap.Form.ScheduledAt.Month() != time.July {
		t.Fatalf("schedule not parsed: %v", snap.Form.ScheduledAt)
	}
	if strings.Join(snap.Form.Tags, ",") != "btc,eth" {
		t.Fatalf("unexpected tags %v", snap.Form.Tags)
	}

	snap, _ = e.Apply(Patch{RemoveTags: []string{"btc"}, ScheduledAt: strPtr("")})
	if strings.Join(snap.Form.Tags, ",") != "eth" || snap.Form.ScheduledAt != nil {
		t.Fatalf("unexpected form %+v", snap.Form)
	}

	if _, err := e.Apply(Patch{ScheduledAt: strPtr("not a date at all")}); err == nil {
		t.Fatalf("expected invalid date error")
	}
}

func TestDomainOptionsByRole(t *testing.T) {
	api := &fakeAPI{
		domains:        []backnews.Domain{{ID: "d1"}, {ID: "d2"}},
		allowedDomains: []backnews.Domain{{ID: "d2"}},
	}
	ctx := context.Background()

	admin, err := DomainOptions(ctx, api, backnews.User{ID: "a", Role: backnews.RoleSuperAdmin}, nil)
	if err != nil || len(admin) != 2 {
		t.Fatalf("super_admin should see every domain, got %v %v", admin, err)
	}
	user, err := DomainOptions(ctx, api, backnews.User{ID: "b", Role: backnews.RoleUserAdmin}, nil)
	if err != nil || len(user) != 1 || user[0].ID != "d2" {
		t.Fatalf("user_admin should see allowed domains, got %v %v", user, err)
	}
	if api.countCalls("domains") != 1 || api.countCalls("allowed-domains") != 1 {
		t.Fatalf("unexpected calls %v", api.callNames())
	}
}

func TestRegistryReusesAndSweeps(t *testing.T) {
	reg := NewRegistry(time.Minute)
	now := testNow
	reg.now = func() time.Time { return now }
	api := &fakeAPI{}
	build := func() *Editor { return New("sess-1", api, backnews.User{}, "", testOptions(nil)) }

	first, created := reg.Acquire("sess-1", "", build)
	second, createdAgain := reg.Acquire("sess-1", "", build)
	if !created || createdAgain || first != second {
		t.Fatalf("same session and article must share an editor")
	}
	if _, err := reg.Get("sess-2", first.ID()); !errors.Is(err, ErrEditorNotFound) {
		t.Fatalf("foreign sessions must not see the editor")
	}

	now = now.Add(2 * time.Minute)
	if n := reg.Sweep(); n != 1 || reg.Len() != 0 {
		t.Fatalf("expected idle editor swept, n=%d len=%d", n, reg.Len())
	}
}

func TestStatsManagerRequiresSuperAdmin(t *testing.T) {
	m := NewStatsManager(nil, backnews.User{Role: backnews.RoleUserAdmin}, nil, nil)
	likes := 10
	if err := m.Update(context.Background(), "a1", validation.StatsForm{Likes: &likes}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestLegacyDraftRescheduled(t *testing.T) {
	api := &fakeAPI{
		editFn: func(id string) (backnews.Article, error) {
			var article backnews.Article
			raw := `{"_id":"a1","title":"Legacy draft","content":"` + longBody() + `","category":"Crypto","status":"draft","domain":"64f0abc"}`
			if err := jsonUnmarshal(raw, &article); err != nil {
				t.Fatalf("decode article: %v", err)
			}
			return article, nil
		},
	}
	e := New("sess-1", api, backnews.User{ID: "u1", Role: backnews.RoleSuperAdmin}, "a1", testOptions(cache.NewMemory()))
	if err := e.Open(context.Background()); err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if got := e.Snapshot().Form.Domain; len(got) != 1 || got[0] != "64f0abc" {
		t.Fatalf("expected one legacy domain chip, got %v", got)
	}

	if _, err := e.Apply(Patch{
		Status:      strPtr(validation.StatusScheduled),
		ScheduledAt: strPtr("2025-07-01T09:00:00Z"),
	}); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if _, err := e.Submit(context.Background()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if api.countCalls("update") != 1 {
		t.Fatalf("expected one update call, got %v", api.callNames())
	}
	payload := api.lastPayload()
	want := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	if payload.Status != validation.StatusScheduled || payload.Scheduling.PublishNow {
		t.Fatalf("unexpected status/scheduling %+v", payload)
	}
	if payload.Scheduling.ScheduleDate == nil || !payload.Scheduling.ScheduleDate.Equal(want) {
		t.Fatalf("unexpected schedule date %v", payload.Scheduling.ScheduleDate)
	}
	if len(payload.Domain) != 1 || payload.Domain[0] != "64f0abc" {
		t.Fatalf("expected the domain sent as a list, got %v", payload.Domain)
	}
}
