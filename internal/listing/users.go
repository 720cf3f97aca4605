package listing

import (
	"context"
	"log/slog"
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/validation"
)

// UserAPI is the part of the BackNews client the user table uses.
type UserAPI interface {
	ListUsers(ctx context.Context, p backnews.ListParams) (backnews.Page[backnews.User], error)
	CreateUser(ctx context.Context, in backnews.UserInput) (backnews.User, error)
	UpdateUser(ctx context.Context, id string, in backnews.UserInput) (backnews.User, error)
	DeleteUser(ctx context.Context, id string) error
	ToggleUserActive(ctx context.Context, id string) (backnews.User, error)
}

type UserQuery struct {
	Page     int    `form:"page" json:"page"`
	Limit    int    `form:"limit" json:"limit"`
	Search   string `form:"search" json:"search"`
	Role     string `form:"role" json:"role"`
	IsActive *bool  `form:"isActive" json:"isActive,omitempty"`
}

// UserScreen manages user_admin accounts. Every operation is super_admin only.
type UserScreen struct {
	validator *validation.Validator
	cache     cache.Cache
	logger    *slog.Logger
}

func NewUserScreen(v *validation.Validator, c cache.Cache, logger *slog.Logger) *UserScreen {
	if v == nil {
		v = validation.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserScreen{validator: v, cache: c, logger: logger}
}

func (s *UserScreen) List(ctx context.Context, api UserAPI, user backnews.User, q UserQuery) (backnews.Page[backnews.User], error) {
	if !user.IsSuperAdmin() {
		return backnews.Page[backnews.User]{}, ErrForbidden
	}
	return api.ListUsers(ctx, backnews.ListParams{
		Page:     normalizePage(q.Page),
		Limit:    normalizeLimit(q.Limit),
		Search:   strings.TrimSpace(q.Search),
		Role:     strings.TrimSpace(q.Role),
		IsActive: q.IsActive,
	})
}

// Create validates form and creates a user_admin account.
func (s *UserScreen) Create(ctx context.Context, api UserAPI, user backnews.User, form validation.UserForm) (backnews.User, error) {
	if !user.IsSuperAdmin() {
		return backnews.User{}, ErrForbidden
	}
	form.Creating = true
	if err := s.validator.Validate(form); err != nil {
		return backnews.User{}, err
	}
	in := userInput(form)
	in.Role = backnews.RoleUserAdmin
	return api.CreateUser(ctx, in)
}

// Update validates form and saves it. An empty password keeps the old one.
func (s *UserScreen) Update(ctx context.Context, api UserAPI, user backnews.User, id string, form validation.UserForm) (backnews.User, error) {
	if !user.IsSuperAdmin() {
		return backnews.User{}, ErrForbidden
	}
	form.Creating = false
	if err := s.validator.Validate(form); err != nil {
		return backnews.User{}, err
	}
	id = strings.TrimSpace(id)
	updated, err := api.UpdateUser(ctx, id, userInput(form))
	if err != nil {
		return backnews.User{}, err
	}
	s.forget(ctx, id)
	return updated, nil
}

func (s *UserScreen) Toggle(ctx context.Context, api UserAPI, user backnews.User, id string) (backnews.User, error) {
	if !user.IsSuperAdmin() {
		return backnews.User{}, ErrForbidden
	}
	id = strings.TrimSpace(id)
	toggled, err := api.ToggleUserActive(ctx, id)
	if err != nil {
		return backnews.User{}, err
	}
	s.forget(ctx, id)
	return toggled, nil
}

func (s *UserScreen) Delete(ctx context.Context, api UserAPI, user backnews.User, id string, confirm bool) error {
	if !user.IsSuperAdmin() {
		return ErrForbidden
	}
	if !confirm {
		return ErrConfirmationRequired
	}
	id = strings.TrimSpace(id)
	if err := api.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.forget(ctx, id)
	return nil
}

// forget drops the domain picker cached for user id; its allowed domains may have changed.
func (s *UserScreen) forget(ctx context.Context, id string) {
	if s.cache == nil || id == "" {
		return
	}
	if err := s.cache.Delete(context.WithoutCancel(ctx), cache.DomainsKey(id)); err != nil {
		s.logger.Warn("failed to invalidate user domains", "user", id, "error", err)
	}
}

func userInput(form validation.UserForm) backnews.UserInput {
	maxArticles := form.Restrictions.MaxArticles
	canDelete := form.Restrictions.CanDelete
	canEdit := form.Restrictions.CanEdit
	domains := make([]string, 0, len(form.Restrictions.AllowedDomains))
	for _, d := range form.Restrictions.AllowedDomains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	in := backnews.UserInput{
		Username: strings.TrimSpace(form.Username),
		Email:    strings.TrimSpace(form.Email),
		Password: form.Password,
		Restrictions: &backnews.RestrictionsInput{
			MaxArticles:    &maxArticles,
			CanDelete:      &canDelete,
			CanEdit:        &canEdit,
			AllowedDomains: domains,
		},
		AccessExpiresAt: form.AccessExpiresAt,
	}
	if desc := strings.TrimSpace(form.Description); desc != "" {
		in.Profile = &backnews.Profile{Description: desc}
	}
	return in
}
