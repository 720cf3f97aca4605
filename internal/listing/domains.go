package listing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/validation"
)

// DomainAPI is the part of the BackNews client the domain table uses.
type DomainAPI interface {
	ListDomains(ctx context.Context, p backnews.ListParams) (backnews.Page[backnews.Domain], error)
	AllowedDomains(ctx context.Context) ([]backnews.Domain, error)
	GetDomain(ctx context.Context, id string) (backnews.Domain, error)
	CreateDomain(ctx context.Context, in backnews.DomainInput) (backnews.Domain, error)
	UpdateDomain(ctx context.Context, id string, in backnews.DomainInput) (backnews.Domain, error)
	DeleteDomain(ctx context.Context, id string) error
	ToggleDomainActive(ctx context.Context, id string) (backnews.Domain, error)
	UpdateDomainSettings(ctx context.Context, id string, settings backnews.DomainSettings) (backnews.Domain, error)
}

type DomainQuery struct {
	Page   int    `form:"page" json:"page"`
	Limit  int    `form:"limit" json:"limit"`
	Search string `form:"search" json:"search"`
}

// SettingsPatch changes individual domain settings. Nil fields are kept.
type SettingsPatch struct {
	CommentsEnabled *bool    `json:"commentsEnabled"`
	AllowFakePosts  *bool    `json:"allowFakePosts"`
	IndexationKey   *string  `json:"indexationKey"`
	IndexationBoost *float64 `json:"indexationBoost"`
	Theme           *string  `json:"theme"`
}

// DomainScreen lists domains and, for super_admin, edits them.
type DomainScreen struct {
	validator *validation.Validator
	cache     cache.Cache
	logger    *slog.Logger
}

func NewDomainScreen(v *validation.Validator, c cache.Cache, logger *slog.Logger) *DomainScreen {
	if v == nil {
		v = validation.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DomainScreen{validator: v, cache: c, logger: logger}
}

// List pages through every domain for super_admin. Other users get their
// allowed domains as a single page.
func (s *DomainScreen) List(ctx context.Context, api DomainAPI, user backnews.User, q DomainQuery) (backnews.Page[backnews.Domain], error) {
	if user.IsSuperAdmin() {
		return api.ListDomains(ctx, backnews.ListParams{
			Page:   normalizePage(q.Page),
			Limit:  normalizeLimit(q.Limit),
			Search: strings.TrimSpace(q.Search),
		})
	}
	domains, err := api.AllowedDomains(ctx)
	if err != nil {
		return backnews.Page[backnews.Domain]{}, err
	}
	if domains == nil {
		domains = []backnews.Domain{}
	}
	return backnews.Page[backnews.Domain]{
		Items:      domains,
		Pagination: backnews.Pagination{Page: 1, Limit: len(domains), Total: len(domains), Pages: 1},
	}, nil
}

func (s *DomainScreen) Create(ctx context.Context, api DomainAPI, user backnews.User, form validation.DomainForm) (backnews.Domain, error) {
	if !user.IsSuperAdmin() {
		return backnews.Domain{}, ErrForbidden
	}
	if err := s.validator.Validate(form); err != nil {
		return backnews.Domain{}, err
	}
	d, err := api.CreateDomain(ctx, domainInput(form))
	if err == nil {
		s.invalidate(ctx)
	}
	return d, err
}

func (s *DomainScreen) Update(ctx context.Context, api DomainAPI, user backnews.User, id string, form validation.DomainForm) (backnews.Domain, error) {
	if !user.IsSuperAdmin() {
		return backnews.Domain{}, ErrForbidden
	}
	if err := s.validator.Validate(form); err != nil {
		return backnews.Domain{}, err
	}
	d, err := api.UpdateDomain(ctx, strings.TrimSpace(id), domainInput(form))
	if err == nil {
		s.invalidate(ctx)
	}
	return d, err
}

func (s *DomainScreen) Toggle(ctx context.Context, api DomainAPI, user backnews.User, id string) (backnews.Domain, error) {
	if !user.IsSuperAdmin() {
		return backnews.Domain{}, ErrForbidden
	}
	d, err := api.ToggleDomainActive(ctx, strings.TrimSpace(id))
	if err == nil {
		s.invalidate(ctx)
	}
	return d, err
}

// UpdateSettings loads the current settings, applies patch and writes the
// whole settings object back.
func (s *DomainScreen) UpdateSettings(ctx context.Context, api DomainAPI, user backnews.User, id string, patch SettingsPatch) (backnews.Domain, error) {
	if !user.IsSuperAdmin() {
		return backnews.Domain{}, ErrForbidden
	}
	id = strings.TrimSpace(id)
	current, err := api.GetDomain(ctx, id)
	if err != nil {
		return backnews.Domain{}, err
	}
	settings := current.Settings
	if patch.CommentsEnabled != nil {
		settings.CommentsEnabled = patch.CommentsEnabled
	}
	if patch.AllowFakePosts != nil {
		settings.AllowFakePosts = patch.AllowFakePosts
	}
	if patch.IndexationKey != nil {
		settings.IndexationKey = strings.TrimSpace(*patch.IndexationKey)
	}
	if patch.IndexationBoost != nil {
		settings.IndexationBoost = patch.IndexationBoost
	}
	if patch.Theme != nil {
		settings.Theme = strings.TrimSpace(*patch.Theme)
	}
	d, err := api.UpdateDomainSettings(ctx, id, settings)
	if err == nil {
		s.invalidate(ctx)
	}
	return d, err
}

func (s *DomainScreen) Delete(ctx context.Context, api DomainAPI, user backnews.User, id string, confirm bool) error {
	if !user.IsSuperAdmin() {
		return ErrForbidden
	}
	if !confirm {
		return ErrConfirmationRequired
	}
	if err := api.DeleteDomain(ctx, strings.TrimSpace(id)); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// invalidate drops cached domain pickers so editors see the change.
func (s *DomainScreen) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePrefix(context.WithoutCancel(ctx), cache.DomainsPrefix); err != nil {
		s.logger.Warn("failed to invalidate domain cache", "error", err)
	}
}

func domainInput(form validation.DomainForm) backnews.DomainInput {
	in := backnews.DomainInput{
		Name:        strings.TrimSpace(form.Name),
		URL:         strings.TrimSpace(form.URL),
		Description: strings.TrimSpace(form.Description),
		IsActive:    form.IsActive,
	}
	if form.CommentsEnabled != nil || form.AllowFakePosts != nil {
		in.Settings = &backnews.DomainSettings{
			CommentsEnabled: form.CommentsEnabled,
			AllowFakePosts:  form.AllowFakePosts,
		}
	}
	return in
}
