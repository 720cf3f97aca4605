package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/editor"
	"github.com/backnews/admin/internal/listing"
	"github.com/backnews/admin/internal/logging"
	"github.com/backnews/admin/internal/parserpanel"
	"github.com/backnews/admin/internal/session"
	"github.com/backnews/admin/internal/validation"
	"github.com/gin-gonic/gin"
)

// Deps are the collaborators the handlers are built from.
type Deps struct {
	Client         *backnews.Client
	Sessions       *session.Store
	Reconciler     *session.Reconciler
	Cache          cache.Cache
	Logger         *slog.Logger
	MediaBaseURL   string
	ConfirmDelay   time.Duration
	SearchDebounce time.Duration
	EditorIdleTTL  time.Duration
	Now            func() time.Time
}

// API bundles shared dependencies for HTTP handlers.
type API struct {
	client       *backnews.Client
	sessions     *session.Store
	reconciler   *session.Reconciler
	cache        cache.Cache
	logger       *slog.Logger
	validator    *validation.Validator
	editors      *editor.Registry
	articles     *listing.ArticleScreen
	users        *listing.UserScreen
	domains      *listing.DomainScreen
	parser       *parserpanel.Panel
	pollers      *parserpanel.Pollers
	mediaBaseURL string
	confirmDelay time.Duration
	now          func() time.Time
}

// NewAPI constructs a handler set with shared services.
func NewAPI(deps Deps) *API {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemory()
	}
	logger := logging.Component(deps.Logger, "http")
	v := validation.New(deps.Now)
	panel := parserpanel.New(v, deps.Cache, logging.Component(deps.Logger, "parser"))

	api := &API{
		client:       deps.Client,
		sessions:     deps.Sessions,
		reconciler:   deps.Reconciler,
		cache:        deps.Cache,
		logger:       logger,
		validator:    v,
		editors:      editor.NewRegistry(deps.EditorIdleTTL),
		articles:     listing.NewArticleScreen(deps.Cache, listing.NewDebouncer(deps.SearchDebounce), logger),
		users:        listing.NewUserScreen(v, deps.Cache, logger),
		domains:      listing.NewDomainScreen(v, deps.Cache, logger),
		parser:       panel,
		pollers:      parserpanel.NewPollers(panel, parserpanel.DefaultIntervals, deps.EditorIdleTTL, logging.Component(deps.Logger, "parser")),
		mediaBaseURL: deps.MediaBaseURL,
		confirmDelay: deps.ConfirmDelay,
		now:          deps.Now,
	}
	if deps.Reconciler != nil {
		deps.Reconciler.OnInvalidate(api.releaseSession)
	}
	return api
}

// Editors exposes the editor registry for the idle sweep job.
func (a *API) Editors() *editor.Registry {
	return a.editors
}

// Pollers exposes the parser pollers for the idle sweep job.
func (a *API) Pollers() *parserpanel.Pollers {
	return a.pollers
}

// Close stops background work owned by the handlers.
func (a *API) Close() {
	a.pollers.Close()
}

// Health 提供给监控系统使用的健康检查端点。
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "api": a.client.BaseURL()})
}
