package backnews

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
)

func (c *Client) ParserSettings(ctx context.Context) (ParserSettingsView, error) {
	var out ParserSettingsView
	err := c.get(ctx, "/admin/parser/settings", nil, &out)
	return out, err
}

func (c *Client) UpdateParserSettings(ctx context.Context, settings ParserSettings) (ParserSettings, error) {
	var out ParserSettings
	err := c.send(ctx, http.MethodPut, "/admin/parser/settings", settings, &out)
	return out, err
}

func (c *Client) ParserStatus(ctx context.Context) (ParserStatus, error) {
	var out ParserStatus
	err := c.get(ctx, "/admin/parser/status", nil, &out)
	return out, err
}

// RunParser starts a manual run. The answer is returned as sent.
func (c *Client) RunParser(ctx context.Context, count int) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.send(ctx, http.MethodPost, "/admin/parser/run", map[string]int{"count": count}, &out)
	return out, err
}

// TestParser performs a dry run that fetches count candidate articles.
func (c *Client) TestParser(ctx context.Context, count int) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/admin/parser/test", url.Values{"count": []string{strconv.Itoa(count)}}, &out)
	return out, err
}

func (c *Client) ParserHistory(ctx context.Context, page, limit int) (ParserHistory, error) {
	var out ParserHistory
	err := c.get(ctx, "/admin/parser/history", pageQuery(page, limit), &out)
	if out.History == nil {
		out.History = []ParserRun{}
	}
	return out, err
}

func (c *Client) ToggleParser(ctx context.Context, enabled bool) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.send(ctx, http.MethodPost, "/admin/parser/toggle", map[string]bool{"enabled": enabled}, &out)
	return out, err
}

func (c *Client) BlockParserDomain(ctx context.Context, domain string) error {
	return c.send(ctx, http.MethodPost, "/admin/parser/block-domain", map[string]string{"domain": domain}, nil)
}

func (c *Client) UnblockParserDomain(ctx context.Context, domain string) error {
	return c.send(ctx, http.MethodPost, "/admin/parser/unblock-domain", map[string]string{"domain": domain}, nil)
}

func (c *Client) UpdateProxyList(ctx context.Context, proxies []string) error {
	if proxies == nil {
		proxies = []string{}
	}
	return c.send(ctx, http.MethodPut, "/admin/parser/proxies", map[string][]string{"proxies": proxies}, nil)
}
