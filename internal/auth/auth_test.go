package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rohankatakam/pipepilot/internal/config"
	perrors "github.com/rohankatakam/pipepilot/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/me" {
			http.NotFound(w, r)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"user-7","email":"dev@example.com"}`))
		case "Bearer broken":
			_, _ = w.Write([]byte(`{"email":"no id"}`))
		case "Bearer boom":
			http.Error(w, "database down", http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestIdentityClient_Me(t *testing.T) {
	ts := identityServer(t)
	c := NewIdentityClient(ts.URL + "/api/")
	ctx := context.Background()

	user, err := c.Me(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "user-7", user.ID)
	assert.Equal(t, "dev@example.com", user.Email)

	_, err = c.Me(ctx, "bad")
	require.Error(t, err)
	assert.Equal(t, perrors.ErrorTypeSecurity, perrors.GetType(err))

	_, err = c.Me(ctx, "broken")
	assert.Equal(t, perrors.ErrorTypeParse, perrors.GetType(err))

	_, err = c.Me(ctx, "boom")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database down")

	_, err = c.Me(ctx, "")
	assert.Equal(t, perrors.ErrorTypeConfig, perrors.GetType(err))
}

type memStore struct {
	flagless string
	saved    config.Credentials
	cleared  bool
	saveErr  error
}

func (s *memStore) ResolveToken(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if s.flagless == "" {
		return "", errors.New("no token")
	}
	return s.flagless, nil
}

func (s *memStore) Save(c config.Credentials) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = c
	return nil
}

func (s *memStore) Stored() (config.Credentials, error) { return s.saved, nil }

func (s *memStore) Clear() error {
	s.cleared = true
	s.saved = config.Credentials{}
	return nil
}

func TestManager_LoginWhoamiLogout(t *testing.T) {
	ts := identityServer(t)
	store := &memStore{}
	m := NewManager(NewIdentityClient(ts.URL+"/api"), store)
	ctx := context.Background()

	_, err := m.Whoami(ctx)
	assert.Error(t, err, "nothing stored yet")

	user, err := m.Login(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "user-7", user.ID)
	assert.Equal(t, config.Credentials{Token: "good", UserID: "user-7"}, store.saved)

	user, err = m.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user.Email)

	require.NoError(t, m.Logout())
	assert.True(t, store.cleared)
}

func TestManager_LoginRejectedTokenIsNotSaved(t *testing.T) {
	ts := identityServer(t)
	store := &memStore{}
	m := NewManager(NewIdentityClient(ts.URL+"/api"), store)

	_, err := m.Login(context.Background(), "bad")

	require.Error(t, err)
	assert.Empty(t, store.saved.Token)
}

func TestManager_LoginWithoutToken(t *testing.T) {
	m := NewManager(NewIdentityClient("http://unused"), &memStore{})

	_, err := m.Login(context.Background(), "")

	assert.EqualError(t, err, "no token")
}
