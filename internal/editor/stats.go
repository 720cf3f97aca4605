package editor

import (
	"context"
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
	"github.com/backnews/admin/internal/validation"
)

// StatsAPI is the part of the client used to manage engagement figures.
type StatsAPI interface {
	UpdateArticleStats(ctx context.Context, id string, stats backnews.StatsUpdate) error
	ArticleComments(ctx context.Context, id string, page, limit int) (backnews.CommentPage, error)
	AddAdminComment(ctx context.Context, id, email, text string) (backnews.Comment, error)
	DeleteAdminComment(ctx context.Context, commentID string) error
}

// StatsManager overrides likes/comments/views totals and moderates comments.
// Only super_admin may use it.
type StatsManager struct {
	api       StatsAPI
	user      backnews.User
	validator *validation.Validator
	cache     cache.Cache
}

func NewStatsManager(api StatsAPI, user backnews.User, v *validation.Validator, c cache.Cache) *StatsManager {
	if v == nil {
		v = validation.New(nil)
	}
	return &StatsManager{api: api, user: user, validator: v, cache: c}
}

func (m *StatsManager) allowed() error {
	if !m.user.IsSuperAdmin() {
		return ErrForbidden
	}
	return nil
}

// Update sets the totals present in form.
func (m *StatsManager) Update(ctx context.Context, articleID string, form validation.StatsForm) error {
	if err := m.allowed(); err != nil {
		return err
	}
	if err := m.validator.Validate(form); err != nil {
		return err
	}

	update := backnews.StatsUpdate{}
	if form.Likes != nil {
		update.Likes = &backnews.CounterUpdate{Total: form.Likes}
	}
	if form.Comments != nil {
		update.Comments = &backnews.CounterUpdate{Total: form.Comments}
	}
	if form.Views != nil {
		update.Views = &backnews.CounterUpdate{Total: form.Views}
	}
	if update.Likes == nil && update.Comments == nil && update.Views == nil {
		return nil
	}
	if err := m.api.UpdateArticleStats(ctx, articleID, update); err != nil {
		return err
	}
	m.invalidate(ctx, articleID)
	return nil
}

func (m *StatsManager) Comments(ctx context.Context, articleID string, page, limit int) (backnews.CommentPage, error) {
	if err := m.allowed(); err != nil {
		return backnews.CommentPage{}, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return m.api.ArticleComments(ctx, articleID, page, limit)
}

func (m *StatsManager) AddComment(ctx context.Context, articleID string, form validation.CommentForm) (backnews.Comment, error) {
	if err := m.allowed(); err != nil {
		return backnews.Comment{}, err
	}
	form.UserEmail = strings.TrimSpace(form.UserEmail)
	form.Text = strings.TrimSpace(form.Text)
	if err := m.validator.Validate(form); err != nil {
		return backnews.Comment{}, err
	}
	comment, err := m.api.AddAdminComment(ctx, articleID, form.UserEmail, form.Text)
	if err != nil {
		return backnews.Comment{}, err
	}
	m.invalidate(ctx, articleID)
	return comment, nil
}

func (m *StatsManager) DeleteComment(ctx context.Context, articleID, commentID string) error {
	if err := m.allowed(); err != nil {
		return err
	}
	if err := m.api.DeleteAdminComment(ctx, commentID); err != nil {
		return err
	}
	m.invalidate(ctx, articleID)
	return nil
}

func (m *StatsManager) invalidate(ctx context.Context, articleID string) {
	if m.cache == nil {
		return
	}
	_ = m.cache.Delete(ctx, cache.ArticleKey(articleID))
	_ = m.cache.InvalidatePrefix(ctx, cache.ArticlesPrefix)
}
