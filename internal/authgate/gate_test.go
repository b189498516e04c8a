package authgate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/store"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.JWTEnabled = true
	cfg.JWTSecret = "a-secret-at-least-32-bytes-long!"
	cfg.APIKeyEnabled = true
	cfg.APIKey = "test-api-key"
	return cfg
}

func TestAuthenticateBearerValid(t *testing.T) {
	cfg := testConfig()
	g := New(cfg, store.NewMemorySessionStore())

	token, err := g.IssueToken(&coretypes.Principal{UserID: "user-1", Username: "alice", Roles: []string{"admin"}}, time.Hour)
	require.NoError(t, err)

	principal, kind, err := g.Authenticate(context.Background(), Credentials{Authorization: "Bearer " + token})
	require.NoError(t, err)
	assert.Equal(t, CredentialBearer, kind)
	assert.Equal(t, "user-1", principal.UserID)
	assert.Equal(t, []string{"admin"}, principal.Roles)
}

func TestAuthenticateBearerInvalidSignature(t *testing.T) {
	g := New(testConfig(), store.NewMemorySessionStore())

	other := New(&config.Config{}, nil)
	other.jwtEnabled = true
	other.jwtSecret = []byte("a-different-secret-32-bytes-long")
	token, err := other.IssueToken(&coretypes.Principal{UserID: "user-1"}, time.Hour)
	require.NoError(t, err)

	_, _, err = g.Authenticate(context.Background(), Credentials{Authorization: "Bearer " + token})
	assert.Error(t, err)
}

func TestAuthenticateAPIKeyValid(t *testing.T) {
	g := New(testConfig(), store.NewMemorySessionStore())

	principal, kind, err := g.Authenticate(context.Background(), Credentials{APIKey: "test-api-key"})
	require.NoError(t, err)
	assert.Equal(t, CredentialAPIKey, kind)
	assert.NotEmpty(t, principal.UserID)
}

func TestAuthenticateAPIKeyInvalid(t *testing.T) {
	g := New(testConfig(), store.NewMemorySessionStore())

	_, _, err := g.Authenticate(context.Background(), Credentials{APIKey: "wrong-key"})
	assert.Error(t, err)
}

func TestAuthenticateSessionID(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	ctx := context.Background()
	require.NoError(t, sessions.Create(ctx, &coretypes.Session{
		ID: "sess-user2-000001",
		Data: coretypes.SessionData{
			UserID:    "user-2",
			Username:  "bob",
			Roles:     []string{"user"},
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}))

	g := New(testConfig(), sessions)
	principal, kind, err := g.Authenticate(ctx, Credentials{SessionID: "sess-user2-000001"})
	require.NoError(t, err)
	assert.Equal(t, CredentialSessionID, kind)
	assert.Equal(t, "user-2", principal.UserID)
	assert.Equal(t, "sess-user2-000001", principal.SessionID)
}

func TestAuthenticateSessionIDExpired(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	ctx := context.Background()
	require.NoError(t, sessions.Create(ctx, &coretypes.Session{
		ID:   "sess-old-0000001",
		Data: coretypes.SessionData{UserID: "user-3", ExpiresAt: time.Now().Add(-time.Minute)},
	}))

	g := New(testConfig(), sessions)
	_, _, err := g.Authenticate(ctx, Credentials{SessionID: "sess-old-0000001"})
	assert.Error(t, err)
}

func TestAuthenticateNoCredentials(t *testing.T) {
	g := New(testConfig(), store.NewMemorySessionStore())
	_, _, err := g.Authenticate(context.Background(), Credentials{})
	assert.ErrorIs(t, err, coretypes.ErrUnauthenticated)
}

func TestAuthenticateDisabledCredentialKind(t *testing.T) {
	cfg := testConfig()
	cfg.JWTEnabled = false
	g := New(cfg, store.NewMemorySessionStore())

	_, _, err := g.Authenticate(context.Background(), Credentials{Authorization: "Bearer whatever"})
	assert.Error(t, err)
}
