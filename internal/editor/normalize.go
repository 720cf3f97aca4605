package editor

import (
	"bytes"
	"strings"
	"sync"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/validation"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const (
	FormatHTML     = "html"
	FormatMarkdown = "markdown"

	localRefScheme = "local://"
)

var (
	bodyPolicy     *bluemonday.Policy
	bodyPolicyOnce sync.Once

	markdownEngine = goldmark.New(
		goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Table),
		goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
	)
)

func sanitizer() *bluemonday.Policy {
	bodyPolicyOnce.Do(func() {
		p := bluemonday.UGCPolicy()
		p.AllowStyles("text-align", "font-size", "font-family", "line-height", "color").Globally()
		p.AllowAttrs("target").Matching(bluemonday.SpaceSeparatedTokens).OnElements("a")
		bodyPolicy = p
	})
	return bodyPolicy
}

// RenderBody turns the editor body into the HTML that is stored remotely:
// markdown is rendered first, then scripts and event handlers are removed.
func RenderBody(body, format string) string {
	if strings.EqualFold(strings.TrimSpace(format), FormatMarkdown) {
		var buf bytes.Buffer
		if err := markdownEngine.Convert([]byte(body), &buf); err == nil {
			body = buf.String()
		}
	}
	return sanitizer().Sanitize(body)
}

// BuildPayload converts a form into the request body for create and update.
// It is a pure function of the form.
func BuildPayload(form validation.ArticleForm) backnews.ArticlePayload {
	status := strings.TrimSpace(form.Status)
	category := strings.TrimSpace(form.Category)
	if category == "" {
		category = validation.DefaultCategory
	}

	payload := backnews.ArticlePayload{
		Title:    strings.TrimSpace(form.Title),
		Excerpt:  strings.TrimSpace(form.Excerpt),
		Content:  RenderBody(form.Content, form.ContentFormat),
		Category: category,
		Domain:   dedupe(form.Domain),
		Tags:     dedupe(form.Tags),
		Status:   status,
		Scheduling: backnews.Scheduling{
			PublishNow: status == validation.StatusPublished,
		},
	}

	if status == validation.StatusScheduled && form.ScheduledAt != nil && !form.ScheduledAt.IsZero() {
		at := form.ScheduledAt.UTC()
		payload.Scheduling.ScheduleDate = &at
		payload.ScheduledAt = &at
	}

	if url := strings.TrimSpace(form.FeaturedImage); url != "" && !IsLocalRef(url) {
		payload.Media = &backnews.PayloadMedia{
			FeaturedImage: backnews.Image{URL: url, Alt: payload.Title},
		}
	}

	return payload
}

// IsLocalRef reports whether url points at a not yet uploaded local file.
func IsLocalRef(url string) bool {
	return strings.HasPrefix(strings.TrimSpace(url), localRefScheme)
}

// dedupe trims values, drops empties and keeps the first of exact duplicates.
// The result is never nil so it encodes as [].
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
