package coretypes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalHasRole(t *testing.T) {
	p := &Principal{Roles: []string{"user", "admin"}}
	assert.True(t, p.HasRole("admin"))
	assert.False(t, p.HasRole("guest"))
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{Data: SessionData{ExpiresAt: now.Add(-time.Second)}}
	assert.True(t, s.Expired(now))

	s2 := &Session{Data: SessionData{ExpiresAt: now.Add(time.Second)}}
	assert.False(t, s2.Expired(now))
}

func TestValidationErrorUnwraps(t *testing.T) {
	err := NewValidationError("url", "scheme not allowed")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Contains(t, err.Error(), "url")
}

func TestPoolErrorUnwraps(t *testing.T) {
	err := NewPoolError("acquire", "no browsers available", ErrBrowserPoolExhausted)
	assert.True(t, errors.Is(err, ErrBrowserPoolExhausted))
}

func TestActionErrorUnwraps(t *testing.T) {
	err := NewActionError(ActionClick, "page-1", "element not found", ErrActionTimeout)
	assert.True(t, errors.Is(err, ErrActionTimeout))
	assert.Contains(t, err.Error(), "click")
}

func TestAuthErrorDefaultsToUnauthenticated(t *testing.T) {
	err := NewAuthError("bearer", "token expired", nil)
	assert.True(t, errors.Is(err, ErrUnauthenticated))
}
