// Package identity is a thin client for the hosted identity service that
// owns sessions for the portal. The portal never implements auth itself:
// magic links, token exchange and sign-out are all delegated here.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	emailaddress "github.com/mcnijman/go-emailaddress"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidEmail = errors.New("invalid email address")
)

// User is the hosted identity of a signed-in person.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the token pair issued by the identity service.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// APIError carries the upstream status and message of a failed call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity service: %d %s", e.Status, e.Message)
}

// Client talks to the hosted identity HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetUser resolves an access token to its user. ErrUnauthorized means the
// token is missing, expired or revoked.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	var user User

	err := c.doRequest(ctx, http.MethodGet, "/user", accessToken, nil, &user)
	if err != nil {
		return User{}, err
	}

	return user, nil
}

// SendMagicLink asks the identity service to email a one-time sign-in link.
// The service appends the session tokens to redirectTo as fragment
// parameters when the link is followed.
func (c *Client) SendMagicLink(ctx context.Context, email, redirectTo string) error {
	if _, err := emailaddress.Parse(strings.TrimSpace(email)); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	body := map[string]string{
		"email": strings.TrimSpace(email),
	}
	if redirectTo != "" {
		body["redirect_to"] = redirectTo
	}

	return c.doRequest(ctx, http.MethodPost, "/magiclink", "", body, nil)
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (Session, error) {
	body := map[string]string{
		"refresh_token": refreshToken,
	}

	var session Session

	err := c.doRequest(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &session)
	if err != nil {
		return Session{}, err
	}

	return session, nil
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.doRequest(ctx, http.MethodPost, "/logout", accessToken, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint, token string, body, out any) error {
	var reqBody io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}

		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read identity response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(respBody)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode identity response: %w", err)
		}
	}

	return nil
}
