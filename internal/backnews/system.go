package backnews

import (
	"context"
	"encoding/json"
	"net/http"
)

// Settings returns the system settings document (parser, ip, backup sections).
func (c *Client) Settings(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/admin/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateSettings(ctx context.Context, settings json.RawMessage) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.send(ctx, http.MethodPut, "/admin/settings", settings, &out)
	return out, err
}

func (c *Client) CreateBackup(ctx context.Context) (Backup, error) {
	var out Backup
	err := c.send(ctx, http.MethodPost, "/admin/backup/create", nil, &out)
	return out, err
}

func (c *Client) BackupHistory(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/admin/backup/history", nil, &out)
	return out, err
}

// BlockIP blocks ip for minutes, or permanently when minutes is nil.
func (c *Client) BlockIP(ctx context.Context, ip string, minutes *int, reason string) error {
	return c.send(ctx, http.MethodPost, "/admin/ip/block", map[string]any{
		"ip":       ip,
		"duration": minutes,
		"reason":   reason,
	}, nil)
}

func (c *Client) UnblockIP(ctx context.Context, ip string) error {
	return c.send(ctx, http.MethodPost, "/admin/ip/unblock", map[string]string{"ip": ip}, nil)
}

func (c *Client) BlockedIPs(ctx context.Context) ([]BlockedIP, error) {
	out := []BlockedIP{}
	err := c.get(ctx, "/admin/ip/blocked", nil, &out)
	return out, err
}

func (c *Client) RefreshSitemap(ctx context.Context) (SitemapResult, error) {
	var out SitemapResult
	err := c.send(ctx, http.MethodPost, "/sitemap/refresh", nil, &out)
	return out, err
}
