package api

import (
	"context"
	"net/http"

	"aptitude-ace/internal/domain"
)

// Credentials are sent to login and signup.
type Credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by login, signup and refresh.
type AuthResponse struct {
	Token   string
	Profile domain.Profile
}

type authWire struct {
	Token       string       `json:"token"`
	AccessToken string       `json:"accessToken"`
	User        *profileWire `json:"user"`
}

func (w authWire) response() AuthResponse {
	token := w.Token
	if token == "" {
		token = w.AccessToken
	}
	resp := AuthResponse{Token: token}
	if w.User != nil {
		resp.Profile = w.User.domain()
	}
	return resp
}

func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var wire authWire
	if err := c.do(ctx, http.MethodPost, "/auth/login", creds, &wire); err != nil {
		return AuthResponse{}, err
	}
	return wire.response(), nil
}

func (c *Client) Signup(ctx context.Context, creds Credentials) (AuthResponse, error) {
	var wire authWire
	if err := c.do(ctx, http.MethodPost, "/auth/signup", creds, &wire); err != nil {
		return AuthResponse{}, err
	}
	return wire.response(), nil
}

// Profile returns the signed-in user's profile and topic progress.
func (c *Client) Profile(ctx context.Context) (domain.Profile, error) {
	var raw struct {
		profileWire
		User *profileWire `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &raw); err != nil {
		return domain.Profile{}, err
	}
	if raw.User != nil {
		return raw.User.domain(), nil
	}
	return raw.profileWire.domain(), nil
}

// RefreshToken exchanges the current token for a fresh one.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	var wire authWire
	if err := c.do(ctx, http.MethodPost, "/auth/refresh-token", struct{}{}, &wire); err != nil {
		return "", err
	}
	return wire.response().Token, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", struct{}{}, nil)
}
