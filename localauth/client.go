// Package localauth is the HTTP client for the console's self-hosted
// authentication endpoints: login, refresh, logout, and registration.
package localauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 15 * time.Second

// Config holds the configuration for a local-auth client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// TokenResponse is the login endpoint's response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshResponse is the refresh endpoint's response. The refresh token
// itself is not rotated: only a new access token comes back.
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// RegisterRequest carries the self-service registration fields.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	OrgName   string `json:"org_name,omitempty"`
}

// RegisterResponse is the register endpoint's response.
type RegisterResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

type errorResponse struct {
	ErrorMsg string `json:"error"`
	Message  string `json:"message"`
}

// Client is the local-auth HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a local-auth client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Login exchanges email/password credentials for a token pair. Rejected
// credentials come back as an *AuthenticationError carrying the server's
// message verbatim.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	body := map[string]string{"email": email, "password": password}
	resp, err := c.post(ctx, "/api/auth/login", body, "")
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Login] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &AuthenticationError{
			Message:    serverMessage(resp, "invalid credentials"),
			StatusCode: resp.StatusCode,
		}
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, errors.Wrap(err, "[Client.Login] decode response")
	}
	return &tr, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.post(ctx, "/api/auth/refresh", body, "")
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &RefreshError{
			Message:    serverMessage(resp, "refresh token rejected"),
			StatusCode: resp.StatusCode,
		}
	}

	var rr RefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] decode response")
	}
	return &rr, nil
}

// Logout revokes the refresh token server-side. A 401 means the session is
// already gone as far as the server is concerned, so it is treated as
// success; any other non-2xx status is surfaced for the caller to log.
func (c *Client) Logout(ctx context.Context, refreshToken, bearer string) error {
	body := map[string]string{"refresh_token": refreshToken}
	resp, err := c.post(ctx, "/api/auth/logout", body, bearer)
	if err != nil {
		return errors.Wrap(err, "[Client.Logout] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		return fmt.Errorf("[Client.Logout] revoke failed: %s", serverMessage(resp, resp.Status))
	}
	return nil
}

// Register submits a self-service registration request.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.post(ctx, "/api/auth/register", req, "")
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Register] post")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &RegistrationError{
			Message:    serverMessage(resp, "registration rejected"),
			StatusCode: resp.StatusCode,
		}
	}

	var rr RegisterResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, errors.Wrap(err, "[Client.Register] decode response")
	}
	return &rr, nil
}

func (c *Client) post(ctx context.Context, path string, body any, bearer string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.http.Do(req)
}

// serverMessage pulls the error message out of a non-2xx response body,
// accepting either {"error": ...} or {"message": ...}, falling back to the
// given default.
func serverMessage(resp *http.Response, fallback string) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fallback
	}
	var er errorResponse
	if err := json.Unmarshal(data, &er); err == nil {
		if er.ErrorMsg != "" {
			return er.ErrorMsg
		}
		if er.Message != "" {
			return er.Message
		}
	}
	return fallback
}
