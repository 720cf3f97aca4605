package backnews

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a user and bearer token.
func (c *Client) Login(ctx context.Context, login, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.send(ctx, http.MethodPost, "/auth/login", map[string]string{
		"login":    login,
		"password": password,
	}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in UserInput) (AuthResponse, error) {
	var out AuthResponse
	err := c.send(ctx, http.MethodPost, "/auth/register", in, &out)
	return out, err
}

// CurrentUser fetches the authoritative user for the bound token.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var wrapped struct {
		User *User `json:"user"`
	}
	body, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/me"})
	if err != nil {
		return User{}, err
	}
	if err := decodeData(body, &wrapped); err != nil {
		return User{}, err
	}
	if wrapped.User != nil {
		return *wrapped.User, nil
	}
	var bare User
	if err := decodeData(body, &bare); err != nil {
		return User{}, err
	}
	return bare, nil
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.send(ctx, http.MethodPut, "/auth/change-password", map[string]string{
		"currentPassword": current,
		"newPassword":     next,
	}, nil)
}

func (c *Client) RefreshToken(ctx context.Context) (AuthResponse, error) {
	var out AuthResponse
	err := c.send(ctx, http.MethodPost, "/auth/refresh", nil, &out)
	return out, err
}
