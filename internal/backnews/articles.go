package backnews

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListMyArticles lists the caller's own articles (/articles/my/list).
func (c *Client) ListMyArticles(ctx context.Context, p ListParams) (Page[Article], error) {
	return c.listArticles(ctx, "/articles/my/list", p)
}

// ListAdminArticles lists every article across tenants (super_admin only).
func (c *Client) ListAdminArticles(ctx context.Context, p ListParams) (Page[Article], error) {
	return c.listArticles(ctx, "/admin/articles", p)
}

func (c *Client) ListArticles(ctx context.Context, p ListParams) (Page[Article], error) {
	return c.listArticles(ctx, "/articles", p)
}

func (c *Client) ListDomainArticles(ctx context.Context, domainID string, p ListParams) (Page[Article], error) {
	return c.listArticles(ctx, "/domains/"+escape(domainID)+"/articles", p)
}

func (c *Client) listArticles(ctx context.Context, path string, p ListParams) (Page[Article], error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: path, query: p.values()})
	if err != nil {
		return Page[Article]{}, err
	}
	return decodePage[Article](body, "articles")
}

// GetArticleForEdit calls the dedicated edit endpoint only. The fallback chain
// lives with the editor.
func (c *Client) GetArticleForEdit(ctx context.Context, id string) (Article, error) {
	return c.getArticle(ctx, "/articles/edit/"+escape(id))
}

// GetArticle fetches by id or slug from the generic endpoint.
func (c *Client) GetArticle(ctx context.Context, idOrSlug string) (Article, error) {
	return c.getArticle(ctx, "/articles/"+escape(idOrSlug))
}

func (c *Client) GetAdminArticle(ctx context.Context, id string) (Article, error) {
	return c.getArticle(ctx, "/admin/articles/"+escape(id))
}

func (c *Client) getArticle(ctx context.Context, path string) (Article, error) {
	var out Article
	if err := c.get(ctx, path, nil, &out); err != nil {
		return Article{}, err
	}
	if out.ID == "" {
		return Article{}, &APIError{Kind: KindNotFound, Status: http.StatusOK, Message: genericMessages[KindNotFound]}
	}
	return out, nil
}

func (c *Client) CreateArticle(ctx context.Context, payload ArticlePayload) (Article, error) {
	var out Article
	err := c.send(ctx, http.MethodPost, "/articles", payload, &out)
	return out, err
}

func (c *Client) UpdateArticle(ctx context.Context, id string, payload ArticlePayload) (Article, error) {
	var out Article
	err := c.send(ctx, http.MethodPut, "/articles/"+escape(id), payload, &out)
	return out, err
}

func (c *Client) DeleteArticle(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/articles/"+escape(id), nil, nil)
}

func (c *Client) DeleteAdminArticle(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/admin/articles/"+escape(id), nil, nil)
}

func (c *Client) ArticleCategories(ctx context.Context) ([]string, error) {
	var out []string
	err := c.get(ctx, "/articles/meta/categories", nil, &out)
	return out, err
}

func (c *Client) UpdateArticleStats(ctx context.Context, id string, stats StatsUpdate) error {
	return c.send(ctx, http.MethodPut, "/admin/articles/"+escape(id)+"/stats", stats, nil)
}

func (c *Client) UpdateArticleLikes(ctx context.Context, id string, likes LikesUpdate) error {
	return c.send(ctx, http.MethodPut, "/admin/articles/"+escape(id)+"/likes", likes, nil)
}

func (c *Client) ArticleComments(ctx context.Context, id string, page, limit int) (CommentPage, error) {
	var out CommentPage
	err := c.get(ctx, "/comments/article/"+escape(id), pageQuery(page, limit), &out)
	if out.Comments == nil {
		out.Comments = []Comment{}
	}
	return out, err
}

// AddAdminComment posts a comment on behalf of the administration.
func (c *Client) AddAdminComment(ctx context.Context, id, email, text string) (Comment, error) {
	var out Comment
	err := c.send(ctx, http.MethodPost, "/admin/articles/"+escape(id)+"/comments", map[string]string{
		"userId":    "admin",
		"userEmail": email,
		"text":      text,
	}, &out)
	return out, err
}

func (c *Client) DeleteAdminComment(ctx context.Context, commentID string) error {
	return c.send(ctx, http.MethodDelete, "/admin/comments/"+escape(commentID), nil, nil)
}

func (c *Client) PopularArticles(ctx context.Context, limit int) ([]Article, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}
	var out []Article
	err := c.get(ctx, "/articles/meta/popular", q, &out)
	return out, err
}
