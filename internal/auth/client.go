package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	perrors "github.com/rohankatakam/pipepilot/internal/errors"
)

// User is the account a backend token belongs to
type User struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
}

// IdentityClient asks the backend who a token belongs to
type IdentityClient struct {
	baseURL string
	client  *http.Client
}

// NewIdentityClient creates a client against the backend API base
func NewIdentityClient(baseURL string) *IdentityClient {
	return &IdentityClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Me calls GET {base}/me with the token as bearer credentials
func (c *IdentityClient) Me(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, perrors.ConfigError("token is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, perrors.NetworkError(err, "identity request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, perrors.NetworkError(err, "failed to read identity response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, perrors.SecurityError("token was rejected by the backend").
			WithContext("status", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, perrors.ExternalErrorf(fmt.Errorf("status %d", resp.StatusCode),
			"identity request failed: %s", strings.TrimSpace(string(body)))
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, perrors.ParseError(err, "invalid identity response")
	}
	if user.ID == "" {
		return nil, perrors.ParseError(fmt.Errorf("missing id"), "invalid identity response")
	}
	return &user, nil
}
