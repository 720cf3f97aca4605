package validation

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusScheduled = "scheduled"
	StatusArchived  = "archived"

	DefaultCategory = "Other"
)

// Categories is the fixed category list accepted by the API.
var Categories = []string{
	"Crypto", "Cryptocurrencies", "Bitcoin", "Ethereum", "Technology", "Politics",
	"Economy", "Sports", "Entertainment", "Science", "Health", "Business",
	"World", "Local", "Opinion", "Other",
}

var statuses = []string{StatusDraft, StatusPublished, StatusScheduled, StatusArchived}

func IsCategory(value string) bool {
	for _, c := range Categories {
		if c == value {
			return true
		}
	}
	return false
}

func IsStatus(value string) bool {
	for _, s := range statuses {
		if s == value {
			return true
		}
	}
	return false
}

// ArticleForm is the editable state of an article.
type ArticleForm struct {
	Title         string     `json:"title" validate:"required,max=200"`
	Excerpt       string     `json:"excerpt" validate:"max=300"`
	Content       string     `json:"content" validate:"required,richmin=100"`
	ContentFormat string     `json:"contentFormat,omitempty" validate:"omitempty,oneof=html markdown"`
	Category      string     `json:"category" validate:"required,category"`
	Domain        []string   `json:"domain" validate:"required,min=1,dive,required"`
	Tags          []string   `json:"tags"`
	Status        string     `json:"status" validate:"required,status"`
	FeaturedImage string     `json:"featuredImage"`
	ScheduledAt   *time.Time `json:"scheduledAt"`
}

// articleRules requires a future publication date for scheduled articles.
func (v *Validator) articleRules(sl validator.StructLevel) {
	form := sl.Current().Interface().(ArticleForm)
	if form.Status != StatusScheduled {
		return
	}
	if form.ScheduledAt == nil || form.ScheduledAt.IsZero() {
		sl.ReportError(form.ScheduledAt, "scheduledAt", "ScheduledAt", "required", "")
		return
	}
	if !form.ScheduledAt.After(v.now()) {
		sl.ReportError(form.ScheduledAt, "scheduledAt", "ScheduledAt", "future", "")
	}
}

type LoginForm struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type RestrictionsForm struct {
	MaxArticles    int      `json:"maxArticles" validate:"min=1"`
	CanDelete      bool     `json:"canDelete"`
	CanEdit        bool     `json:"canEdit"`
	AllowedDomains []string `json:"allowedDomains"`
}

// UserForm backs user creation and editing. Password is only mandatory when
// Creating is set.
type UserForm struct {
	Username        string           `json:"username" validate:"required,min=3"`
	Email           string           `json:"email" validate:"required,email"`
	Password        string           `json:"password" validate:"omitempty,min=6"`
	Restrictions    RestrictionsForm `json:"restrictions"`
	Description     string           `json:"description"`
	AccessExpiresAt *time.Time       `json:"accessExpiresAt"`
	Creating        bool             `json:"-"`
}

func userRules(sl validator.StructLevel) {
	form := sl.Current().Interface().(UserForm)
	if form.Creating && strings.TrimSpace(form.Password) == "" {
		sl.ReportError(form.Password, "password", "Password", "required", "")
	}
}

type DomainForm struct {
	Name            string `json:"name" validate:"required"`
	URL             string `json:"url" validate:"required,url"`
	Description     string `json:"description"`
	IsActive        *bool  `json:"isActive"`
	CommentsEnabled *bool  `json:"commentsEnabled"`
	AllowFakePosts  *bool  `json:"allowFakePosts"`
}

type ParserRunForm struct {
	Count int `json:"count" validate:"min=1,max=50"`
}

type CommentForm struct {
	UserEmail string `json:"userEmail" validate:"required,email"`
	Text      string `json:"text" validate:"required,max=2000"`
}

type StatsForm struct {
	Likes    *int `json:"likes" validate:"omitempty,min=0"`
	Comments *int `json:"comments" validate:"omitempty,min=0"`
	Views    *int `json:"views" validate:"omitempty,min=0"`
}
