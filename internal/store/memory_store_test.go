package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

func TestMemorySessionStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	session := &coretypes.Session{
		ID:   "sess-1",
		Data: coretypes.SessionData{UserID: "user-1", CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour)},
	}

	require.NoError(t, s.Create(ctx, session))
	assert.ErrorIs(t, s.Create(ctx, session), coretypes.ErrSessionAlreadyExists)

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Data.UserID)

	byUser, err := s.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 1)

	require.NoError(t, s.Touch(ctx, "sess-1", time.Now()))

	require.NoError(t, s.Delete(ctx, "sess-1"))
	_, err = s.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, coretypes.ErrSessionNotFound)
}

func TestMemorySessionStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessionStore()

	expired := &coretypes.Session{ID: "old", Data: coretypes.SessionData{ExpiresAt: time.Now().Add(-time.Minute)}}
	fresh := &coretypes.Session{ID: "new", Data: coretypes.SessionData{ExpiresAt: time.Now().Add(time.Hour)}}
	require.NoError(t, s.Create(ctx, expired))
	require.NoError(t, s.Create(ctx, fresh))

	count, err := s.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, _ := s.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestMemoryContextStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContextStore()

	c := &coretypes.Context{ID: "ctx-1", SessionID: "sess-1", UserID: "user-1", Status: coretypes.ContextStatusActive, UpdatedAt: time.Now()}
	require.NoError(t, s.Create(ctx, c))

	got, err := s.Get(ctx, "ctx-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.SessionID)

	bySession, err := s.GetBySessionID(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, bySession, 1)

	require.NoError(t, s.Delete(ctx, "ctx-1"))
	_, err = s.Get(ctx, "ctx-1")
	assert.ErrorIs(t, err, coretypes.ErrContextNotFound)
}

func TestMemoryContextStoreDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryContextStore()

	idle := &coretypes.Context{ID: "idle", Status: coretypes.ContextStatusActive, UpdatedAt: time.Now().Add(-time.Hour)}
	active := &coretypes.Context{ID: "active", Status: coretypes.ContextStatusActive, UpdatedAt: time.Now()}
	require.NoError(t, s.Create(ctx, idle))
	require.NoError(t, s.Create(ctx, active))

	count, err := s.DeleteExpired(ctx, time.Now(), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
