package auth

import (
	"context"
	"fmt"

	"github.com/rohankatakam/pipepilot/internal/config"
)

// Identity verifies tokens against the backend
type Identity interface {
	Me(ctx context.Context, token string) (*User, error)
}

// Store keeps credentials between runs
type Store interface {
	ResolveToken(flag string) (string, error)
	Save(creds config.Credentials) error
	Stored() (config.Credentials, error)
	Clear() error
}

// Manager handles authentication and credential management
type Manager struct {
	identity Identity
	store    Store
}

// NewManager creates a new authentication manager
func NewManager(identity Identity, store Store) *Manager {
	return &Manager{identity: identity, store: store}
}

// Login resolves a token (flag, env, keychain, prompt), verifies it with the
// backend and remembers it together with the user id it belongs to
func (m *Manager) Login(ctx context.Context, tokenFlag string) (*User, error) {
	token, err := m.store.ResolveToken(tokenFlag)
	if err != nil {
		return nil, err
	}

	user, err := m.identity.Me(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := m.store.Save(config.Credentials{Token: token, UserID: user.ID}); err != nil {
		return nil, err
	}
	return user, nil
}

// Whoami verifies the stored token. It does not prompt.
func (m *Manager) Whoami(ctx context.Context) (*User, error) {
	creds, err := m.store.Stored()
	if err != nil {
		return nil, err
	}
	if creds.Token == "" {
		return nil, fmt.Errorf("not authenticated. Run: pilot login")
	}
	return m.identity.Me(ctx, creds.Token)
}

// Logout removes the stored token
func (m *Manager) Logout() error {
	return m.store.Clear()
}
