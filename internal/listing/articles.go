package listing

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
)

// ArticleAPI is the part of the BackNews client the article list uses.
type ArticleAPI interface {
	ListAdminArticles(ctx context.Context, p backnews.ListParams) (backnews.Page[backnews.Article], error)
	ListMyArticles(ctx context.Context, p backnews.ListParams) (backnews.Page[backnews.Article], error)
	GetArticleForEdit(ctx context.Context, id string) (backnews.Article, error)
	DeleteArticle(ctx context.Context, id string) error
	DeleteAdminArticle(ctx context.Context, id string) error
}

// ArticleRow is one article with the actions the viewer may take on it.
type ArticleRow struct {
	backnews.Article
	Actions RowActions `json:"actions"`
}

// ArticlePage is exactly one page of rows. Nothing else is kept.
type ArticlePage struct {
	Rows       []ArticleRow        `json:"rows"`
	Pagination backnews.Pagination `json:"pagination"`
	Columns    []Column            `json:"columns"`
	Query      ArticleQuery        `json:"query"`
}

// ArticleScreen serves the paginated article table.
type ArticleScreen struct {
	cache     cache.Cache
	debouncer *Debouncer
	logger    *slog.Logger

	mu         sync.Mutex
	lastSearch map[string]string
}

func NewArticleScreen(c cache.Cache, debouncer *Debouncer, logger *slog.Logger) *ArticleScreen {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleScreen{
		cache:      c,
		debouncer:  debouncer,
		logger:     logger,
		lastSearch: make(map[string]string),
	}
}

// Fetch loads one page for user. scope identifies the viewer's session and
// keys both the cache and the remembered search. A changed search term
// always starts again from page 1.
func (s *ArticleScreen) Fetch(ctx context.Context, api ArticleAPI, scope string, user backnews.User, q ArticleQuery) (ArticlePage, error) {
	q = q.Normalize()

	s.mu.Lock()
	if last, seen := s.lastSearch[scope]; seen && last != q.Search {
		q.Page = DefaultPage
	}
	s.lastSearch[scope] = q.Search
	s.mu.Unlock()

	key := cache.ArticlesKey(scope, q.Key())
	var page backnews.Page[backnews.Article]
	hit := false
	if s.cache != nil {
		if ok, err := s.cache.Get(ctx, key, &page); err != nil {
			s.logger.Warn("article list cache read failed", "error", err)
		} else {
			hit = ok
		}
	}
	if !hit {
		var err error
		if user.IsSuperAdmin() {
			page, err = api.ListAdminArticles(ctx, q.params())
		} else {
			page, err = api.ListMyArticles(ctx, q.params())
		}
		if err != nil {
			return ArticlePage{}, err
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, key, page, listTTL); err != nil {
				s.logger.Warn("article list cache write failed", "error", err)
			}
		}
	}

	out := ArticlePage{
		Rows:       make([]ArticleRow, 0, len(page.Items)),
		Pagination: page.Pagination,
		Columns:    Columns(user),
		Query:      q,
	}
	for _, a := range page.Items {
		out.Rows = append(out.Rows, ArticleRow{Article: a, Actions: Actions(user, a)})
	}
	return out, nil
}

// Search is Fetch behind the debouncer, keyed by scope. Only the last of a
// burst of calls reaches the API; the others get ErrSuperseded.
func (s *ArticleScreen) Search(ctx context.Context, api ArticleAPI, scope string, user backnews.User, q ArticleQuery) (ArticlePage, error) {
	var page ArticlePage
	err := s.debouncer.Do(ctx, scope, func(ctx context.Context) error {
		var err error
		page, err = s.Fetch(ctx, api, scope, user, q)
		return err
	})
	return page, err
}

// Delete removes an article after explicit confirmation. Restricted users may
// only delete their own articles and only with the canDelete flag.
func (s *ArticleScreen) Delete(ctx context.Context, api ArticleAPI, user backnews.User, id string, confirm bool) error {
	id = strings.TrimSpace(id)
	if !confirm {
		return ErrConfirmationRequired
	}

	if user.IsSuperAdmin() {
		if err := api.DeleteAdminArticle(ctx, id); err != nil {
			return err
		}
	} else {
		if !user.Restrictions.CanDelete {
			return ErrForbidden
		}
		article, err := api.GetArticleForEdit(ctx, id)
		if err != nil {
			return err
		}
		if !CanDelete(user, article) {
			return ErrForbidden
		}
		if err := api.DeleteArticle(ctx, id); err != nil {
			return err
		}
	}

	s.invalidate(ctx, id)
	s.logger.Info("article deleted", "article", id, "user", user.ID)
	return nil
}

// Forget drops the remembered search of a closed session.
func (s *ArticleScreen) Forget(scope string) {
	s.mu.Lock()
	delete(s.lastSearch, scope)
	s.mu.Unlock()
}

func (s *ArticleScreen) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.cache.InvalidatePrefix(ctx, cache.ArticlesPrefix); err != nil {
		s.logger.Warn("failed to invalidate article lists", "error", err)
	}
	if err := s.cache.Delete(ctx, cache.ArticleKey(id)); err != nil {
		s.logger.Warn("failed to invalidate article", "article", id, "error", err)
	}
}
