// Package authgate implements the single auth checkpoint shared by all
// four front-ends: bearer JWT, static API key, or session-id
// credentials are normalized into one coretypes.Principal.
package authgate

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/security"
	"github.com/Rorqualx/browserctl/internal/store"
)

// Claims are the JWT claims this control plane issues and accepts.
type Claims struct {
	jwt.RegisteredClaims
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// CredentialKind identifies which of the three accepted credential
// forms authenticated a request.
type CredentialKind string

const (
	CredentialBearer    CredentialKind = "bearer"
	CredentialAPIKey    CredentialKind = "api_key"
	CredentialSessionID CredentialKind = "session_id"
)

// Gate validates exactly one of the three credential kinds per
// request and produces a Principal. It fails closed: if no credential
// kind is configured or presented, Authenticate returns
// coretypes.ErrUnauthenticated.
type Gate struct {
	jwtEnabled    bool
	jwtSecret     []byte
	apiKeyEnabled bool
	apiKeyHash    [32]byte
	sessions      store.SessionStore
}

// New builds a Gate from the loaded configuration and the session
// store used to resolve session-id credentials.
func New(cfg *config.Config, sessions store.SessionStore) *Gate {
	g := &Gate{
		jwtEnabled:    cfg.JWTEnabled && cfg.JWTSecret != "",
		jwtSecret:     []byte(cfg.JWTSecret),
		apiKeyEnabled: cfg.APIKeyEnabled && cfg.APIKey != "",
		sessions:      sessions,
	}
	if g.apiKeyEnabled {
		g.apiKeyHash = sha256.Sum256([]byte(cfg.APIKey))
	}
	return g
}

// Credentials carries the header/query values a front-end extracted
// for the gate to evaluate, so REST/gRPC/WS/MCP adapters don't each
// reimplement header parsing.
type Credentials struct {
	Authorization string // "Bearer <token>"
	APIKey        string // X-API-Key
	SessionID     string // X-Session-Id
}

// Authenticate validates whichever credential is present, in the
// order bearer -> api key -> session id, and returns the resulting
// Principal along with which credential kind succeeded.
func (g *Gate) Authenticate(ctx context.Context, creds Credentials) (*coretypes.Principal, CredentialKind, error) {
	if token, ok := bearerToken(creds.Authorization); ok {
		if !g.jwtEnabled {
			return nil, "", coretypes.NewAuthError(string(CredentialBearer), "bearer auth is not enabled", nil)
		}
		principal, err := g.validateBearer(token)
		if err != nil {
			return nil, "", coretypes.NewAuthError(string(CredentialBearer), err.Error(), err)
		}
		return principal, CredentialBearer, nil
	}

	if creds.APIKey != "" {
		if !g.apiKeyEnabled {
			return nil, "", coretypes.NewAuthError(string(CredentialAPIKey), "api key auth is not enabled", nil)
		}
		if !g.validateAPIKey(creds.APIKey) {
			return nil, "", coretypes.NewAuthError(string(CredentialAPIKey), "invalid api key", nil)
		}
		return &coretypes.Principal{UserID: "api-key-client", Roles: []string{"user"}}, CredentialAPIKey, nil
	}

	if creds.SessionID != "" {
		if g.sessions == nil {
			return nil, "", coretypes.NewAuthError(string(CredentialSessionID), "session auth is not enabled", nil)
		}
		principal, err := g.validateSession(ctx, creds.SessionID)
		if err != nil {
			return nil, "", coretypes.NewAuthError(string(CredentialSessionID), err.Error(), err)
		}
		return principal, CredentialSessionID, nil
	}

	return nil, "", coretypes.ErrUnauthenticated
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func (g *Gate) validateBearer(tokenStr string) (*coretypes.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return g.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &coretypes.Principal{
		UserID:   claims.Subject,
		Username: claims.Username,
		Roles:    claims.Roles,
	}, nil
}

// validateAPIKey compares the provided key against the configured key
// using fixed-size SHA-256 digests and constant-time comparison so
// timing reveals neither key length nor content.
func (g *Gate) validateAPIKey(provided string) bool {
	providedHash := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(providedHash[:], g.apiKeyHash[:]) == 1
}

func (g *Gate) validateSession(ctx context.Context, sessionID string) (*coretypes.Principal, error) {
	if reason := security.ValidateSessionID(sessionID); reason != "" {
		return nil, coretypes.ErrSessionNotFound
	}

	session, err := g.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, coretypes.ErrSessionExpired
	}
	_ = g.sessions.Touch(ctx, sessionID, time.Now())
	return &coretypes.Principal{
		UserID:    session.Data.UserID,
		Username:  session.Data.Username,
		Roles:     session.Data.Roles,
		SessionID: session.ID,
	}, nil
}

// IssueToken mints a bearer token for a principal, used by the session
// creation endpoints to hand clients something to present on
// subsequent requests. Returns an error if bearer auth isn't enabled.
func (g *Gate) IssueToken(principal *coretypes.Principal, ttl time.Duration) (string, error) {
	if !g.jwtEnabled {
		return "", coretypes.NewAuthError(string(CredentialBearer), "bearer auth is not enabled", nil)
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: principal.Username,
		Roles:    principal.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.jwtSecret)
}
