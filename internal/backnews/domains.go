package backnews

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

func (c *Client) ListDomains(ctx context.Context, p ListParams) (Page[Domain], error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/domains", query: p.values()})
	if err != nil {
		return Page[Domain]{}, err
	}
	return decodePage[Domain](body, "domains")
}

func (c *Client) GetDomain(ctx context.Context, id string) (Domain, error) {
	var out Domain
	err := c.get(ctx, "/domains/"+escape(id), nil, &out)
	return out, err
}

func (c *Client) CreateDomain(ctx context.Context, in DomainInput) (Domain, error) {
	var out Domain
	err := c.send(ctx, http.MethodPost, "/domains", in, &out)
	return out, err
}

func (c *Client) UpdateDomain(ctx context.Context, id string, in DomainInput) (Domain, error) {
	var out Domain
	err := c.send(ctx, http.MethodPut, "/domains/"+escape(id), in, &out)
	return out, err
}

func (c *Client) DeleteDomain(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/domains/"+escape(id), nil, nil)
}

func (c *Client) ToggleDomainActive(ctx context.Context, id string) (Domain, error) {
	var out Domain
	err := c.send(ctx, http.MethodPatch, "/domains/"+escape(id)+"/toggle-active", nil, &out)
	return out, err
}

// UpdateDomainSettings replaces the settings block of a domain.
func (c *Client) UpdateDomainSettings(ctx context.Context, id string, settings DomainSettings) (Domain, error) {
	var out Domain
	err := c.send(ctx, http.MethodPut, "/domains/"+escape(id), map[string]any{"settings": settings}, &out)
	return out, err
}

// AllowedDomains returns the domains the caller may publish to. The API wraps
// them in {domains: [...]}; a bare list is accepted too.
func (c *Client) AllowedDomains(ctx context.Context) ([]Domain, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/user/allowed-domains", nil, &raw); err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	out := []Domain{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, newDecodeError(err)
		}
		return out, nil
	}
	var wrapped struct {
		Domains []Domain `json:"domains"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, newDecodeError(err)
	}
	if wrapped.Domains != nil {
		out = wrapped.Domains
	}
	return out, nil
}

func (c *Client) PublicDomains(ctx context.Context) ([]Domain, error) {
	var out []Domain
	err := c.get(ctx, "/domains/public/list", nil, &out)
	return out, err
}
