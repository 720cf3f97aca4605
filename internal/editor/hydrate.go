package editor

import (
	"strings"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/validation"
)

// DefaultForm is the starting point of a new article.
func DefaultForm() validation.ArticleForm {
	return validation.ArticleForm{
		Category: validation.DefaultCategory,
		Status:   validation.StatusPublished,
		Domain:   []string{},
		Tags:     []string{},
	}
}

// Hydrate maps a remote article onto the editable form. Missing values fall
// back to defaults; legacy single domain values become a one element list.
func Hydrate(article backnews.Article) validation.ArticleForm {
	form := validation.ArticleForm{
		Title:         article.Title,
		Excerpt:       article.Excerpt,
		Content:       article.Content,
		Category:      strings.TrimSpace(article.Category),
		Domain:        article.Domain.IDs(),
		Tags:          dedupe(article.Tags),
		Status:        strings.TrimSpace(article.Status),
		FeaturedImage: article.Media.FeaturedImageURL(),
		ScheduledAt:   article.ScheduledAt.Ptr(),
	}
	if form.Category == "" {
		form.Category = validation.DefaultCategory
	}
	if form.Status == "" {
		form.Status = validation.StatusDraft
	}
	return form
}
