package backnews

import (
	"context"
	"encoding/json"
	"net/http"
)

func (c *Client) ListUsers(ctx context.Context, p ListParams) (Page[User], error) {
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/admin/users", query: p.values()})
	if err != nil {
		return Page[User]{}, err
	}
	return decodePage[User](body, "users")
}

func (c *Client) CreateUser(ctx context.Context, in UserInput) (User, error) {
	var out User
	err := c.send(ctx, http.MethodPost, "/admin/users", in, &out)
	return out, err
}

func (c *Client) UpdateUser(ctx context.Context, id string, in UserInput) (User, error) {
	var out User
	err := c.send(ctx, http.MethodPut, "/admin/users/"+escape(id), in, &out)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.send(ctx, http.MethodDelete, "/admin/users/"+escape(id), nil, nil)
}

func (c *Client) ToggleUserActive(ctx context.Context, id string) (User, error) {
	var out User
	err := c.send(ctx, http.MethodPatch, "/admin/users/"+escape(id)+"/toggle-active", nil, &out)
	return out, err
}

func (c *Client) UserLimits(ctx context.Context) (UserLimits, error) {
	var out UserLimits
	err := c.get(ctx, "/user/limits", nil, &out)
	return out, err
}

// Dashboard returns the super_admin dashboard document unchanged.
func (c *Client) Dashboard(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/admin/dashboard", nil, &out)
	return out, err
}

// UserDashboard returns the user_admin dashboard document unchanged.
func (c *Client) UserDashboard(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.get(ctx, "/user/dashboard", nil, &out)
	return out, err
}
