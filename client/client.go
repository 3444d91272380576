// Package client is the client-side companion to onecred: a small wrapper
// that posts credentials to the sign-in endpoint and translates failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DefaultSignInPath matches the server's default mount path.
const DefaultSignInPath = "/sign-in/credentials"

// SignInResult is the server's success body.
type SignInResult struct {
	OK     bool   `json:"ok"`
	UserID string `json:"userId"`
}

// Error is a failed sign-in attempt, carrying the server's reported code and
// message.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Option configures a Client.
type Option func(*Client)

// WithSignInPath sets a custom sign-in endpoint path.
func WithSignInPath(path string) Option {
	return func(c *Client) {
		c.signInPath = path
	}
}

// WithHTTPClient sets a custom HTTP client (for timeouts, TLS config, cookie
// jars).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// Client posts sign-in requests to a onecred server.
type Client struct {
	serverURL  string
	signInPath string
	httpClient *http.Client
}

// New creates a Client for the given server URL.
func New(serverURL string, opts ...Option) *Client {
	// Normalize server URL down to scheme://host
	if u, err := url.Parse(serverURL); err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &Client{
		serverURL:  serverURL,
		signInPath: DefaultSignInPath,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignIn posts body as JSON to the sign-in endpoint. Any non-2xx response is
// translated into an *Error carrying the server's message, defaulting to
// "Invalid credentials" when the server gave none.
func (c *Client) SignIn(ctx context.Context, body any) (*SignInResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding sign-in body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+c.signInPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, signInError(resp)
	}

	var result SignInResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding sign-in response: %w", err)
	}
	return &result, nil
}

func signInError(resp *http.Response) *Error {
	signInErr := &Error{
		Status:  resp.StatusCode,
		Message: "Invalid credentials",
	}

	var body struct {
		Message string `json:"error"`
		Code    string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		if body.Message != "" {
			signInErr.Message = body.Message
		}
		signInErr.Code = body.Code
	}
	return signInErr
}
