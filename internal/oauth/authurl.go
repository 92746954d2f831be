package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	perrors "github.com/rohankatakam/pipepilot/internal/errors"
)

// HTTPAuthURLClient requests provider authorization URLs from the backend
type HTTPAuthURLClient struct {
	baseURL string
	token   string
	client  *http.Client

	// RedirectURL, when set, is passed as redirect_uri so the provider's
	// completion lands on the local callback server. The attempt's state is
	// added to its query.
	RedirectURL string
}

// NewHTTPAuthURLClient creates a client against the backend API base
func NewHTTPAuthURLClient(baseURL, token string) *HTTPAuthURLClient {
	return &HTTPAuthURLClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type authURLResponse struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// RequestAuthURL calls GET {base}/oauth/{provider}/authorize?user_id=...&state=...
func (c *HTTPAuthURLClient) RequestAuthURL(ctx context.Context, provider, userID, state string) (string, error) {
	q := url.Values{"user_id": {userID}}
	if state != "" {
		q.Set("state", state)
	}
	if c.RedirectURL != "" {
		redirect, err := withState(c.RedirectURL, state)
		if err != nil {
			return "", perrors.ConfigError("invalid oauth redirect url").WithContext("url", c.RedirectURL)
		}
		q.Set("redirect_uri", redirect)
	}
	endpoint := fmt.Sprintf("%s/oauth/%s/authorize?%s",
		c.baseURL, url.PathEscape(NormalizeProvider(provider)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", perrors.NetworkError(err, "authorization url request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", perrors.NetworkError(err, "failed to read authorization url response")
	}

	var out authURLResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil && resp.StatusCode == http.StatusOK {
			return "", perrors.ParseError(err, "invalid authorization url response")
		}
	}

	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", perrors.ExternalErrorf(fmt.Errorf("status %d", resp.StatusCode),
			"backend refused authorization url: %s", msg)
	}
	if out.Error != "" {
		return "", perrors.ExternalErrorf(fmt.Errorf("%s", out.Error), "backend refused authorization url")
	}
	return out.URL, nil
}

func withState(raw, state string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if state != "" {
		q := u.Query()
		q.Set("state", state)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
