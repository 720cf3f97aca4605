package editor

import (
	"context"
	"time"

	"github.com/backnews/admin/internal/backnews"
	"github.com/backnews/admin/internal/cache"
)

const (
	domainOptionsLimit = 1000
	domainOptionsTTL   = 5 * time.Minute
)

// DomainLister is what the domain picker needs from the API.
type DomainLister interface {
	ListDomains(ctx context.Context, p backnews.ListParams) (backnews.Page[backnews.Domain], error)
	AllowedDomains(ctx context.Context) ([]backnews.Domain, error)
}

// DomainOption is one entry of the domain picker.
type DomainOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	IsActive bool   `json:"isActive"`
}

// DomainOptions lists the domains user may publish to: every domain for
// super_admin, the allowed list otherwise. Results are cached per user.
func DomainOptions(ctx context.Context, api DomainLister, user backnews.User, c cache.Cache) ([]DomainOption, error) {
	key := cache.DomainsKey(user.ID)
	if c != nil {
		var cached []DomainOption
		if ok, err := c.Get(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}

	var (
		domains []backnews.Domain
		err     error
	)
	if user.IsSuperAdmin() {
		var page backnews.Page[backnews.Domain]
		page, err = api.ListDomains(ctx, backnews.ListParams{Limit: domainOptionsLimit})
		domains = page.Items
	} else {
		domains, err = api.AllowedDomains(ctx)
	}
	if err != nil {
		return nil, err
	}

	options := make([]DomainOption, 0, len(domains))
	for _, d := range domains {
		if d.ID == "" {
			continue
		}
		options = append(options, DomainOption{ID: d.ID, Name: d.Name, URL: d.URL, IsActive: d.IsActive})
	}
	if c != nil {
		_ = c.Set(ctx, key, options, domainOptionsTTL)
	}
	return options, nil
}
