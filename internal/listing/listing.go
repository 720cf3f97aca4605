package listing

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/backnews/admin/internal/backnews"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 200

	listTTL = 30 * time.Second
)

var (
	ErrForbidden            = errors.New("not allowed for this role")
	ErrConfirmationRequired = errors.New("deletion must be confirmed")
	ErrSuperseded           = errors.New("superseded by a newer request")
)

// ArticleQuery is the state of the article list controls.
type ArticleQuery struct {
	Page     int    `form:"page" json:"page"`
	Limit    int    `form:"limit" json:"limit"`
	Search   string `form:"search" json:"search"`
	Status   string `form:"status" json:"status"`
	Category string `form:"category" json:"category"`
}

// Normalize applies the list defaults and trims the filters.
func (q ArticleQuery) Normalize() ArticleQuery {
	q.Page = normalizePage(q.Page)
	q.Limit = normalizeLimit(q.Limit)
	q.Search = strings.TrimSpace(q.Search)
	q.Status = strings.TrimSpace(q.Status)
	q.Category = strings.TrimSpace(q.Category)
	return q
}

func (q ArticleQuery) params() backnews.ListParams {
	return backnews.ListParams{Page: q.Page, Limit: q.Limit, Search: q.Search, Status: q.Status, Category: q.Category}
}

// Key is a stable cache key fragment for the query.
func (q ArticleQuery) Key() string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(q.Page))
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	return v.Encode()
}

func normalizePage(page int) int {
	if page < 1 {
		return DefaultPage
	}
	return page
}

func normalizeLimit(limit int) int {
	switch {
	case limit < 1:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Column is one visible column of a table.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Columns returns the article table columns for user. Only super_admin sees
// the author column.
func Columns(user backnews.User) []Column {
	cols := []Column{
		{Key: "title", Label: "Title"},
		{Key: "status", Label: "Status"},
		{Key: "category", Label: "Category"},
		{Key: "domain", Label: "Domains"},
	}
	if user.IsSuperAdmin() {
		cols = append(cols, Column{Key: "author", Label: "Author"})
	}
	return append(cols,
		Column{Key: "stats", Label: "Views / Likes"},
		Column{Key: "createdAt", Label: "Created"},
		Column{Key: "actions", Label: "Actions"},
	)
}

// RowActions are the buttons shown on one article row.
type RowActions struct {
	View   bool `json:"view"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Actions gates the row buttons by role, ownership and restriction flags.
func Actions(user backnews.User, article backnews.Article) RowActions {
	if user.IsSuperAdmin() {
		return RowActions{View: true, Edit: true, Delete: true}
	}
	own := user.ID != "" && article.AuthorID() == user.ID
	return RowActions{
		View:   true,
		Edit:   own && user.Restrictions.CanEdit,
		Delete: own && user.Restrictions.CanDelete,
	}
}

func CanEdit(user backnews.User, article backnews.Article) bool {
	return Actions(user, article).Edit
}

func CanDelete(user backnews.User, article backnews.Article) bool {
	return Actions(user, article).Delete
}
