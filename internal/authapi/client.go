// Package authapi is a client for the auth service mounted under /auth-api.
// The refresh credential is an HttpOnly cookie; it travels through the
// HTTP client's cookie jar and is never read here.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/vibemeet/internal/session"
	"golang.org/x/oauth2"
)

// BasePath is where the auth service is proxied on the application origin.
const BasePath = "/auth-api"

// Client talks to the auth service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the auth service on serverURL.
func New(serverURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(serverURL, "/") + BasePath,
		http:    httpClient,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates with email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*session.AuthResponse, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrMissingFields
	}

	var out session.AuthResponse
	if err := c.post(ctx, "/login", loginRequest{Email: email, Password: password}, nil, "invalid email or password", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. The request is validated first.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*session.AuthResponse, error) {
	if err := ValidateRegistration(req); err != nil {
		return nil, err
	}

	first, last := SplitName(req.Name)
	body := registerBody{
		Email:     strings.TrimSpace(req.Email),
		Password:  req.Password,
		FirstName: first,
		LastName:  last,
	}

	var out session.AuthResponse
	if err := c.post(ctx, "/register", body, nil, "registration failed", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges the refresh cookie for a new access token.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.post(ctx, "/refresh", nil, nil, "refresh failed", &out); err != nil {
		return "", err
	}

	if strings.TrimSpace(out.AccessToken) == "" {
		return "", ErrNoAccessToken
	}

	log.Debug().Msg("access token refreshed")

	return out.AccessToken, nil
}

// Logout asks the server to invalidate the refresh credential.
func (c *Client) Logout(ctx context.Context, token oauth2.TokenSource) error {
	var tok *oauth2.Token
	if token != nil {
		t, err := token.Token()
		if err == nil {
			tok = t
		}
	}
	return c.post(ctx, "/logout", nil, tok, "logout failed", nil)
}

func (c *Client) post(ctx context.Context, path string, in any, tok *oauth2.Token, fallback string, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != nil {
		tok.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp, fallback)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	return nil
}
