package backnews

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Time decodes the timestamp shapes the API produces: RFC 3339, null, "" and
// the occasional locale formatted string.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		var millis int64
		if numErr := json.Unmarshal(data, &millis); numErr != nil {
			return fmt.Errorf("backnews: invalid timestamp %s", data)
		}
		t.Time = time.UnixMilli(millis).UTC()
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := dateparse.ParseAny(raw)
	if err != nil {
		return fmt.Errorf("backnews: invalid timestamp %q: %w", raw, err)
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

// Ptr returns nil for the zero time.
func (t Time) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// Role is the account role. Only two roles exist.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleUserAdmin  Role = "user_admin"
)

type Restrictions struct {
	MaxArticles    int        `json:"maxArticles"`
	CanDelete      bool       `json:"canDelete"`
	CanEdit        bool       `json:"canEdit"`
	AllowedDomains DomainRefs `json:"allowedDomains"`
}

type UserStats struct {
	TotalArticles int  `json:"totalArticles"`
	LastLogin     Time `json:"lastLogin"`
	LoginCount    int  `json:"loginCount"`
}

type Profile struct {
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Description string `json:"description,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// User is an authenticated account as the API describes it.
type User struct {
	ID              string       `json:"_id"`
	Username        string       `json:"username"`
	Email           string       `json:"email"`
	Role            Role         `json:"role"`
	IsActive        bool         `json:"isActive"`
	Restrictions    Restrictions `json:"restrictions"`
	Stats           UserStats    `json:"stats"`
	AccessExpiresAt Time         `json:"accessExpiresAt"`
	Profile         Profile      `json:"profile"`
	CreatedBy       string       `json:"createdBy,omitempty"`
	CreatedAt       Time         `json:"createdAt"`
	UpdatedAt       Time         `json:"updatedAt"`
	ArticleCount    int          `json:"articleCount,omitempty"`
}

// IsSuperAdmin reports whether the user has unrestricted access.
func (u User) IsSuperAdmin() bool {
	return u.Role == RoleSuperAdmin
}

// AuthorRef is an article author, either populated or a bare id.
type AuthorRef struct {
	User
}

func (a *AuthorRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		a.User = User{}
		return nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		a.User = User{ID: id}
		return nil
	}
	return json.Unmarshal(data, &a.User)
}

// DomainRef points at a domain. Articles carry either ids or populated domains.
type DomainRef struct {
	ID   string `json:"_id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

func (d *DomainRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*d = DomainRef{ID: id}
		return nil
	}
	type plain DomainRef
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*d = DomainRef(aux.plain)
	if d.ID == "" {
		d.ID = aux.AltID
	}
	return nil
}

// DomainRefs accepts null, a single id, a single object or a list of either.
type DomainRefs []DomainRef

func (r *DomainRefs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*r = nil
		return nil
	case data[0] == '[':
		var list []DomainRef
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*r = list
		return nil
	default:
		var single DomainRef
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		if single.ID == "" {
			*r = nil
			return nil
		}
		*r = DomainRefs{single}
		return nil
	}
}

// IDs returns the non-empty ids in order.
func (r DomainRefs) IDs() []string {
	ids := make([]string, 0, len(r))
	for _, ref := range r {
		if id := strings.TrimSpace(ref.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Counter is a real/fake/total triple. Older records store a plain number.
type Counter struct {
	Real  int `json:"real"`
	Fake  int `json:"fake"`
	Total int `json:"total"`
}

func (c *Counter) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = Counter{}
		return nil
	}
	if data[0] != '{' {
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*c = Counter{Real: int(n), Total: int(n)}
		return nil
	}
	type plain Counter
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Counter(p)
	return nil
}

type ArticleStats struct {
	Views    Counter `json:"views"`
	Likes    Counter `json:"likes"`
	Shares   Counter `json:"shares"`
	Comments Counter `json:"comments"`
	Rating   float64 `json:"rating"`
}

type Image struct {
	URL string `json:"url,omitempty"`
	Alt string `json:"alt,omitempty"`
}

type Media struct {
	FeaturedImage *Image          `json:"featuredImage,omitempty"`
	Gallery       json.RawMessage `json:"gallery,omitempty"`
	Videos        json.RawMessage `json:"videos,omitempty"`
}

// FeaturedImageURL returns media.featuredImage.url or "".
func (m *Media) FeaturedImageURL() string {
	if m == nil || m.FeaturedImage == nil {
		return ""
	}
	return strings.TrimSpace(m.FeaturedImage.URL)
}

type SEO struct {
	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

// Article is the remote article record.
type Article struct {
	ID          string          `json:"_id"`
	Title       string          `json:"title"`
	Slug        string          `json:"slug"`
	Content     string          `json:"content,omitempty"`
	Excerpt     string          `json:"excerpt,omitempty"`
	Category    string          `json:"category"`
	Tags        []string        `json:"tags"`
	Hashtags    []string        `json:"hashtags,omitempty"`
	Status      string          `json:"status"`
	Author      *AuthorRef      `json:"author,omitempty"`
	Domain      DomainRefs      `json:"domain"`
	Media       *Media          `json:"media,omitempty"`
	SEO         *SEO            `json:"seo,omitempty"`
	Stats       ArticleStats    `json:"stats"`
	Settings    json.RawMessage `json:"settings,omitempty"`
	PublishedAt Time            `json:"publishedAt"`
	ScheduledAt Time            `json:"scheduledAt"`
	CreatedAt   Time            `json:"createdAt"`
	UpdatedAt   Time            `json:"updatedAt"`
	Version     int             `json:"version,omitempty"`
	URL         string          `json:"url,omitempty"`
	ReadingTime int             `json:"readingTime,omitempty"`
}

// AuthorID returns the author's id or "" for orphaned articles.
func (a Article) AuthorID() string {
	if a.Author == nil {
		return ""
	}
	return a.Author.ID
}

type DomainSettings struct {
	IndexationKey   string   `json:"indexationKey,omitempty"`
	IndexationBoost *float64 `json:"indexationBoost,omitempty"`
	Theme           string   `json:"theme,omitempty"`
	CommentsEnabled *bool    `json:"commentsEnabled,omitempty"`
	AllowFakePosts  *bool    `json:"allowFakePosts,omitempty"`
}

type DomainStats struct {
	TotalArticles int `json:"totalArticles"`
	TotalViews    int `json:"totalViews"`
	TotalLikes    int `json:"totalLikes"`
}

// Domain is a publishing site.
type Domain struct {
	ID          string         `json:"_id"`
	Name        string         `json:"name"`
	URL         string         `json:"url"`
	Description string         `json:"description,omitempty"`
	IsActive    bool           `json:"isActive"`
	Settings    DomainSettings `json:"settings"`
	Stats       DomainStats    `json:"stats"`
	CreatedAt   Time           `json:"createdAt"`
}

// Pagination mirrors the API pagination block.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Page is one page of a listing.
type Page[T any] struct {
	Items      []T        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// ListParams are the query parameters shared by list endpoints.
type ListParams struct {
	Page     int
	Limit    int
	Search   string
	Status   string
	Category string
	Author   string
	Domain   string
	Role     string
	IsActive *bool
}

type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// UserInput is the body for register, create and update user calls.
type UserInput struct {
	Username        string             `json:"username,omitempty"`
	Email           string             `json:"email,omitempty"`
	Password        string             `json:"password,omitempty"`
	Role            Role               `json:"role,omitempty"`
	IsActive        *bool              `json:"isActive,omitempty"`
	Restrictions    *RestrictionsInput `json:"restrictions,omitempty"`
	Profile         *Profile           `json:"profile,omitempty"`
	AccessExpiresAt *time.Time         `json:"accessExpiresAt,omitempty"`
}

type RestrictionsInput struct {
	MaxArticles    *int     `json:"maxArticles,omitempty"`
	CanDelete      *bool    `json:"canDelete,omitempty"`
	CanEdit        *bool    `json:"canEdit,omitempty"`
	AllowedDomains []string `json:"allowedDomains,omitempty"`
}

type UserLimits struct {
	MaxArticles       int      `json:"maxArticles"`
	UsedArticles      int      `json:"usedArticles"`
	RemainingArticles int      `json:"remainingArticles"`
	CanDelete         bool     `json:"canDelete"`
	CanEdit           bool     `json:"canEdit"`
	AllowedDomains    []Domain `json:"allowedDomains"`
}

// DomainInput is the body for create and update domain calls.
type DomainInput struct {
	Name        string          `json:"name,omitempty"`
	URL         string          `json:"url,omitempty"`
	Description string          `json:"description,omitempty"`
	IsActive    *bool           `json:"isActive,omitempty"`
	Settings    *DomainSettings `json:"settings,omitempty"`
}

// ArticlePayload is the exact body sent on article create and update.
type ArticlePayload struct {
	Title       string        `json:"title"`
	Excerpt     string        `json:"excerpt"`
	Content     string        `json:"content"`
	Category    string        `json:"category"`
	Domain      []string      `json:"domain"`
	Tags        []string      `json:"tags"`
	Status      string        `json:"status"`
	Scheduling  Scheduling    `json:"scheduling"`
	Media       *PayloadMedia `json:"media,omitempty"`
	ScheduledAt *time.Time    `json:"scheduledAt"`
}

type Scheduling struct {
	PublishNow   bool       `json:"publishNow"`
	ScheduleDate *time.Time `json:"scheduleDate"`
}

type PayloadMedia struct {
	FeaturedImage Image `json:"featuredImage"`
}

// StatsUpdate overrides engagement totals. Nil parts are left untouched.
type StatsUpdate struct {
	Likes    *CounterUpdate `json:"likes,omitempty"`
	Comments *CounterUpdate `json:"comments,omitempty"`
	Views    *CounterUpdate `json:"views,omitempty"`
}

type CounterUpdate struct {
	Total *int `json:"total,omitempty"`
	Real  *int `json:"real,omitempty"`
	Fake  *int `json:"fake,omitempty"`
}

type LikesUpdate struct {
	Real *int `json:"real,omitempty"`
	Fake *int `json:"fake,omitempty"`
}

type Comment struct {
	ID        string `json:"_id"`
	UserID    string `json:"userId,omitempty"`
	UserEmail string `json:"userEmail,omitempty"`
	Text      string `json:"text"`
	IsAdmin   bool   `json:"isAdmin,omitempty"`
	CreatedAt Time   `json:"createdAt"`
}

type CommentPage struct {
	Comments   []Comment `json:"comments"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"totalPages"`
}

type FileUpload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

type ParserStats struct {
	TotalParsed  int  `json:"totalParsed"`
	TotalSuccess int  `json:"totalSuccess"`
	TotalFailed  int  `json:"totalFailed"`
	LastRunAt    Time `json:"lastRunAt"`
	NextRunAt    Time `json:"nextRunAt"`
}

// ParserStatus is the live parser state. NextRunIn is in milliseconds.
type ParserStatus struct {
	Enabled        bool        `json:"enabled"`
	IsActive       bool        `json:"isActive"`
	NextRunAt      Time        `json:"nextRunAt"`
	NextRunIn      int64       `json:"nextRunIn"`
	LastRunAt      Time        `json:"lastRunAt"`
	Schedule       string      `json:"schedule"`
	ArticlesPerRun int         `json:"articlesPerRun"`
	Stats          ParserStats `json:"stats"`
}

type ParserOptions struct {
	Enabled        bool   `json:"enabled"`
	SourceURL      string `json:"sourceUrl,omitempty"`
	Schedule       string `json:"schedule,omitempty"`
	ArticlesPerRun int    `json:"articlesPerRun,omitempty"`
	RequestDelay   int    `json:"requestDelay,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
	RequestTimeout int    `json:"requestTimeout,omitempty"`
}

// ParserSettings keeps the sections the panel does not edit as raw JSON so they
// survive a round trip untouched.
type ParserSettings struct {
	ID         string          `json:"_id,omitempty"`
	Parser     ParserOptions   `json:"parser"`
	Domains    json.RawMessage `json:"domains,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Publishing json.RawMessage `json:"publishing,omitempty"`
	Stats      *ParserStats    `json:"stats,omitempty"`
}

type ParserSettingsView struct {
	Settings         ParserSettings `json:"settings"`
	AvailableDomains []Domain       `json:"availableDomains"`
	AvailableAuthors []User         `json:"availableAuthors"`
}

// ParserRun is one entry of the parser history.
type ParserRun struct {
	ID              string          `json:"_id"`
	StartTime       Time            `json:"startTime"`
	EndTime         Time            `json:"endTime"`
	Status          string          `json:"status"`
	ArticlesFound   int             `json:"articlesFound"`
	ArticlesSuccess int             `json:"articlesSuccess"`
	ArticlesFailed  int             `json:"articlesFailed"`
	Errors          json.RawMessage `json:"errors,omitempty"`
}

// Duration is zero until the run has finished.
func (r ParserRun) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime.Time)
}

type ParserHistory struct {
	History    []ParserRun `json:"history"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type BlockedIP struct {
	IP           string `json:"ip"`
	BlockedUntil Time   `json:"blockedUntil"`
	Reason       string `json:"reason"`
	BlockedAt    Time   `json:"blockedAt"`
}

type Backup struct {
	Path string `json:"path"`
	Date string `json:"date"`
}

type SitemapResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}
