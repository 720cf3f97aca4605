package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/araddon/dateparse"
	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/validation"
	"github.com/google/uuid"
)

// State is the editor lifecycle state.
type State string

const (
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateDirty      State = "dirty"
	StateSubmitting State = "submitting"
	StateFatal      State = "fatal"
)

type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

const listPath = "/admin/articles"

var (
	// ErrSubmitInFlight rejects a second submission while one is running.
	ErrSubmitInFlight = errors.New("a save is already in progress")
	// ErrNotEditable is returned when the editor is loading or failed to load.
	ErrNotEditable = errors.New("editor is not ready for changes")
	// ErrForbidden is returned when the user's role does not allow the action.
	ErrForbidden = errors.New("not allowed for this role")
)

// API is the part of the BackNews client the editor uses.
type API interface {
	ArticleSource
	CreateArticle(ctx context.Context, payload backnews.ArticlePayload) (backnews.Article, error)
	UpdateArticle(ctx context.Context, id string, payload backnews.ArticlePayload) (backnews.Article, error)
	UploadImage(ctx context.Context, filename, contentType string, r io.Reader) (backnews.FileUpload, error)
	DomainLister
}

// Options carries the collaborators shared by every editor.
type Options struct {
	Validator    *validation.Validator
	Cache        cache.Cache
	MediaBaseURL string
	ConfirmDelay time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Editor owns one article edit session. All methods are safe for concurrent use.
type Editor struct {
	id        string
	owner     string
	api       API
	user      backnews.User
	opts      Options
	logger    *slog.Logger
	mu        sync.Mutex
	mode      Mode
	articleID string
	state     State
	form      validation.ArticleForm
	remote    *backnews.Article
	pending   *PendingImage
	persisted string
	loadErr   error
	attempts  []Attempt

	domains        []DomainOption
	domainsLoaded  bool
	domainsErr     error
	lastActivityAt time.Time
}

// New creates an editor for articleID, or for a new article when articleID is empty.
func New(owner string, api API, user backnews.User, articleID string, opts Options) *Editor {
	if opts.Validator == nil {
		opts.Validator = validation.New(opts.Now)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	e := &Editor{
		id:        uuid.NewString(),
		owner:     owner,
		api:       api,
		user:      user,
		opts:      opts,
		articleID: strings.TrimSpace(articleID),
		state:     StateLoading,
		form:      DefaultForm(),
	}
	e.mode = ModeCreate
	if e.articleID != "" {
		e.mode = ModeEdit
	}
	e.logger = opts.Logger.With("editor", e.id)
	e.lastActivityAt = opts.Now()
	return e
}

func (e *Editor) ID() string    { return e.id }
func (e *Editor) Owner() string { return e.owner }

// Open loads the article and the domain options concurrently. Only the article
// decides the outcome; a failed domain list leaves the picker empty.
func (e *Editor) Open(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.loadDomains(ctx)
	}()
	err := e.Load(ctx)
	wg.Wait()
	return err
}

// Load fills the form. Create mode is ready at once; edit mode walks the
// lookup plan and ends in StateFatal when it is exhausted or aborted.
func (e *Editor) Load(ctx context.Context) error {
	e.mu.Lock()
	mode, id := e.mode, e.articleID
	e.mu.Unlock()

	if mode == ModeCreate {
		e.mu.Lock()
		e.form = DefaultForm()
		e.state = StateReady
		e.mu.Unlock()
		return nil
	}

	article, attempts, err := RunPlan(ctx, EditPlan(e.api), id, e.logger)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = attempts
	if err != nil {
		e.state = StateFatal
		e.loadErr = err
		return err
	}
	e.applyRemote(article)
	e.state = StateReady
	e.loadErr = nil
	return nil
}

func (e *Editor) applyRemote(article backnews.Article) {
	a := article
	e.remote = &a
	e.form = Hydrate(article)
	e.persisted = e.form.FeaturedImage
	e.pending = nil
}

func (e *Editor) loadDomains(ctx context.Context) {
	options, err := DomainOptions(ctx, e.api, e.user, e.opts.Cache)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.domainsLoaded = true
	e.domainsErr = err
	if err != nil {
		e.logger.Warn("failed to load domain options", "error", err)
		e.domains = []DomainOption{}
		return
	}
	e.domains = options
}

// Patch is a partial form update. Nil fields are left as they are.
type Patch struct {
	Title         *string   `json:"title"`
	Excerpt       *string   `json:"excerpt"`
	Content       *string   `json:"content"`
	ContentFormat *string   `json:"contentFormat"`
	Category      *string   `json:"category"`
	Domain        *[]string `json:"domain"`
	Tags          *[]string `json:"tags"`
	AddTags       []string  `json:"addTags"`
	RemoveTags    []string  `json:"removeTags"`
	Status        *string   `json:"status"`
	FeaturedImage *string   `json:"featuredImage"`
	// ScheduledAt accepts RFC 3339 and the common human formats; "" clears it.
	ScheduledAt *string `json:"scheduledAt"`
}

// Apply merges p into the form and marks the editor dirty.
func (e *Editor) Apply(p Patch) (Snapshot, error) {
	var scheduledAt *time.Time
	clearSchedule := false
	if p.ScheduledAt != nil {
		raw := strings.TrimSpace(*p.ScheduledAt)
		if raw == "" {
			clearSchedule = true
		} else {
			parsed, err := dateparse.ParseAny(raw)
			if err != nil {
				return Snapshot{}, &validation.Errors{Fields: map[string]string{"scheduledAt": "Invalid date"}}
			}
			scheduledAt = &parsed
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return Snapshot{}, err
	}

	f := &e.form
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Excerpt != nil {
		f.Excerpt = *p.Excerpt
	}
	if p.Content != nil {
		f.Content = *p.Content
	}
	if p.ContentFormat != nil {
		f.ContentFormat = strings.TrimSpace(*p.ContentFormat)
	}
	if p.Category != nil {
		f.Category = strings.TrimSpace(*p.Category)
	}
	if p.Domain != nil {
		f.Domain = dedupe(*p.Domain)
	}
	if p.Tags != nil {
		f.Tags = dedupe(*p.Tags)
	}
	for _, tag := range p.AddTags {
		f.Tags = addTag(f.Tags, tag)
	}
	for _, tag := range p.RemoveTags {
		f.Tags = removeTag(f.Tags, tag)
	}
	if p.Status != nil {
		f.Status = strings.TrimSpace(*p.Status)
	}
	if p.FeaturedImage != nil {
		url := strings.TrimSpace(*p.FeaturedImage)
		if !IsLocalRef(url) {
			f.FeaturedImage = url
			e.pending = nil
		}
	}
	if clearSchedule {
		f.ScheduledAt = nil
	} else if scheduledAt != nil {
		f.ScheduledAt = scheduledAt
	}

	e.state = StateDirty
	e.touchLocked()
	return e.snapshotLocked(), nil
}

// AttachImage validates a local file and shows it as the featured image. The
// upload happens on submit.
func (e *Editor) AttachImage(filename, contentType string, data []byte) (Snapshot, error) {
	pending, err := checkImage(filename, contentType, data)
	if err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return Snapshot{}, err
	}
	e.pending = pending
	e.form.FeaturedImage = pending.Ref
	e.state = StateDirty
	e.touchLocked()
	return e.snapshotLocked(), nil
}

// RemoveImage clears the featured image and any pending upload.
func (e *Editor) RemoveImage() (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editableLocked(); err != nil {
		return Snapshot{}, err
	}
	e.pending = nil
	e.form.FeaturedImage = ""
	e.state = StateDirty
	e.touchLocked()
	return e.snapshotLocked(), nil
}

// Result describes a successful save.
type Result struct {
	Article       backnews.Article `json:"article"`
	Created       bool             `json:"created"`
	Message       string           `json:"message"`
	Redirect      string           `json:"redirect"`
	RedirectAfter time.Duration    `json:"-"`
	Warnings      []string         `json:"warnings,omitempty"`
}

// Submit validates, uploads a pending image, then creates or updates the
// article. A second call while one is running gets ErrSubmitInFlight.
// Validation failures return *validation.Errors and leave the state alone.
func (e *Editor) Submit(ctx context.Context) (Result, error) {
	e.mu.Lock()
	if e.state == StateSubmitting {
		e.mu.Unlock()
		return Result{}, ErrSubmitInFlight
	}
	if err := e.editableLocked(); err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	form := cloneForm(e.form)
	// validate what BuildPayload will send
	form.Title = strings.TrimSpace(form.Title)
	form.Excerpt = strings.TrimSpace(form.Excerpt)
	if err := e.opts.Validator.Validate(form); err != nil {
		e.mu.Unlock()
		return Result{}, err
	}
	e.state = StateSubmitting
	e.touchLocked()
	pending := e.pending
	persisted := e.persisted
	mode, id := e.mode, e.articleID
	e.mu.Unlock()

	var warnings []string
	uploaded := ""
	if pending != nil {
		upload, err := e.api.UploadImage(ctx, pending.Filename, pending.ContentType, bytes.NewReader(pending.data))
		if err != nil {
			e.logger.Warn("featured image upload failed", "error", err)
			warnings = append(warnings, fmt.Sprintf("Image upload failed (%s); the article was saved without the new image", backnews.Message(err)))
			form.FeaturedImage = persisted
		} else {
			uploaded = absoluteURL(e.opts.MediaBaseURL, upload.URL)
			form.FeaturedImage = uploaded
		}
	} else if IsLocalRef(form.FeaturedImage) {
		form.FeaturedImage = persisted
	}

	payload := BuildPayload(form)

	var (
		saved backnews.Article
		err   error
	)
	if mode == ModeCreate {
		saved, err = e.api.CreateArticle(ctx, payload)
	} else {
		saved, err = e.api.UpdateArticle(ctx, id, payload)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if uploaded != "" {
		// The file is on the server now; a retry must not upload it again.
		e.pending = nil
		e.form.FeaturedImage = uploaded
	}
	if err != nil {
		e.state = StateDirty
		e.logger.Warn("article save failed", "mode", mode, "article", id, "error", err)
		return Result{}, err
	}

	if saved.ID == "" {
		saved.ID = id
	}
	if saved.ID != "" && saved.Title != "" {
		e.applyRemote(saved)
	} else {
		e.persisted = form.FeaturedImage
		e.form.FeaturedImage = form.FeaturedImage
		e.pending = nil
	}
	created := mode == ModeCreate
	if created && saved.ID != "" {
		e.mode = ModeEdit
		e.articleID = saved.ID
	}
	e.state = StateReady
	if pending != nil && uploaded == "" {
		// keep the chosen file so the next save retries the upload
		e.pending = pending
		e.form.FeaturedImage = pending.Ref
		e.state = StateDirty
	}
	e.invalidate(ctx, e.articleID)

	message := "Article updated"
	if created {
		message = "Article created"
	}
	e.logger.Info("article saved", "mode", mode, "article", e.articleID, "status", payload.Status)

	return Result{
		Article:       saved,
		Created:       created,
		Message:       message,
		Redirect:      listPath,
		RedirectAfter: e.opts.ConfirmDelay,
		Warnings:      warnings,
	}, nil
}

func (e *Editor) invalidate(ctx context.Context, articleID string) {
	if e.opts.Cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.opts.Cache.InvalidatePrefix(ctx, cache.ArticlesPrefix); err != nil {
		e.logger.Warn("failed to invalidate article lists", "error", err)
	}
	if articleID != "" {
		if err := e.opts.Cache.Delete(ctx, cache.ArticleKey(articleID)); err != nil {
			e.logger.Warn("failed to invalidate article", "article", articleID, "error", err)
		}
	}
}

func (e *Editor) editableLocked() error {
	switch e.state {
	case StateReady, StateDirty:
		return nil
	case StateSubmitting:
		return ErrSubmitInFlight
	default:
		return ErrNotEditable
	}
}

func (e *Editor) touchLocked() {
	e.lastActivityAt = e.opts.Now()
}

// LastActivity is used by the registry sweep.
func (e *Editor) LastActivity() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastActivityAt
}

// State returns the current lifecycle state.
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot is a copy of the editor state for rendering.
type Snapshot struct {
	ID             string                 `json:"id"`
	Mode           Mode                   `json:"mode"`
	ArticleID      string                 `json:"articleId,omitempty"`
	State          State                  `json:"state"`
	Form           validation.ArticleForm `json:"form"`
	Remote         *RemoteInfo            `json:"remote,omitempty"`
	PendingImage   *PendingImageInfo      `json:"pendingImage,omitempty"`
	Domains        []DomainOption         `json:"domains"`
	DomainsLoading bool                   `json:"domainsLoading"`
	DomainsError   string                 `json:"domainsError,omitempty"`
	Categories     []string               `json:"categories"`
	Error          string                 `json:"error,omitempty"`
	Lookups        []string               `json:"lookups,omitempty"`
}

// RemoteInfo holds the read-only fields of a loaded article. They are shown
// but never sent back.
type RemoteInfo struct {
	Slug      string                `json:"slug"`
	URL       string                `json:"url,omitempty"`
	Author    string                `json:"author,omitempty"`
	Stats     backnews.ArticleStats `json:"stats"`
	CreatedAt backnews.Time         `json:"createdAt"`
	UpdatedAt backnews.Time         `json:"updatedAt"`
}

func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Editor) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:             e.id,
		Mode:           e.mode,
		ArticleID:      e.articleID,
		State:          e.state,
		Form:           cloneForm(e.form),
		PendingImage:   e.pending.info(),
		Domains:        append([]DomainOption(nil), e.domains...),
		DomainsLoading: !e.domainsLoaded,
		Categories:     validation.Categories,
	}
	if snap.Domains == nil {
		snap.Domains = []DomainOption{}
	}
	if e.domainsErr != nil {
		snap.DomainsError = backnews.Message(e.domainsErr)
	}
	if e.loadErr != nil {
		snap.Error = Banner(e.loadErr)
	}
	for _, a := range e.attempts {
		snap.Lookups = append(snap.Lookups, a.Name+":"+a.Outcome.String())
	}
	if e.remote != nil {
		info := &RemoteInfo{
			Slug:      e.remote.Slug,
			URL:       e.remote.URL,
			Stats:     e.remote.Stats,
			CreatedAt: e.remote.CreatedAt,
			UpdatedAt: e.remote.UpdatedAt,
		}
		if e.remote.Author != nil {
			info.Author = e.remote.Author.Username
		}
		snap.Remote = info
	}
	return snap
}

// Banner turns an error into the message shown above the form.
func Banner(err error) string {
	var verr *validation.Errors
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return "Please fix the highlighted fields"
	case errors.Is(err, ErrSubmitInFlight):
		return "Saving is already in progress"
	case errors.Is(err, ErrArticleNotFound):
		return err.Error()
	case errors.Is(err, backnews.ErrUnauthorized):
		return "Session expired, please sign in again"
	case backnews.KindOf(err) != "":
		return backnews.Message(err)
	case errors.Is(err, ErrImageTooLarge), errors.Is(err, ErrImageType):
		return err.Error()
	default:
		return "Failed to save the article"
	}
}

func cloneForm(f validation.ArticleForm) validation.ArticleForm {
	out := f
	out.Domain = append([]string{}, f.Domain...)
	out.Tags = append([]string{}, f.Tags...)
	if f.ScheduledAt != nil {
		at := *f.ScheduledAt
		out.ScheduledAt = &at
	}
	return out
}

func addTag(tags []string, tag string) []string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return tags
	}
	for _, existing := range tags {
		if existing == tag {
			return tags
		}
	}
	return append(tags, tag)
}

func removeTag(tags []string, tag string) []string {
	tag = strings.TrimSpace(tag)
	out := tags[:0:0]
	for _, existing := range tags {
		if existing != tag {
			out = append(out, existing)
		}
	}
	return out
}
