package pagemanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/engine"
	"github.com/Rorqualx/browserctl/internal/store"
)

type fakePage struct {
	closed bool
}

func (f *fakePage) ID() string { return "page" }
func (f *fakePage) Navigate(ctx context.Context, url string) (*engine.NavigationResult, error) {
	return &engine.NavigationResult{URL: url, StatusCode: 200}, nil
}
func (f *fakePage) Click(ctx context.Context, selector string) error                { return nil }
func (f *fakePage) Type(ctx context.Context, selector, text string) error           { return nil }
func (f *fakePage) Select(ctx context.Context, selector string, v []string) error   { return nil }
func (f *fakePage) PressKey(ctx context.Context, key string) error                  { return nil }
func (f *fakePage) MoveMouse(ctx context.Context, x, y float64) error               { return nil }
func (f *fakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error)   { return nil, nil }
func (f *fakePage) PDF(ctx context.Context) ([]byte, error)                         { return nil, nil }
func (f *fakePage) WaitForSelector(ctx context.Context, s string, t time.Duration) error {
	return nil
}
func (f *fakePage) Scroll(ctx context.Context, dx, dy float64) error                  { return nil }
func (f *fakePage) Evaluate(ctx context.Context, script string) (interface{}, error)  { return nil, nil }
func (f *fakePage) Upload(ctx context.Context, selector string, paths []string) error { return nil }
func (f *fakePage) SetCookies(ctx context.Context, cookies []engine.Cookie) error     { return nil }
func (f *fakePage) GetCookies(ctx context.Context) ([]engine.Cookie, error)           { return nil, nil }
func (f *fakePage) DeleteCookie(ctx context.Context, name, domain string) error       { return nil }
func (f *fakePage) GetAttribute(ctx context.Context, s, a string) (string, error)     { return "", nil }
func (f *fakePage) Content(ctx context.Context) (string, error)                       { return "", nil }
func (f *fakePage) Close() error {
	f.closed = true
	return nil
}

type fakeEngine struct{}

func (e *fakeEngine) ID() string { return "engine-1" }
func (e *fakeEngine) NewPage(ctx context.Context) (engine.Page, error) {
	return &fakePage{}, nil
}
func (e *fakeEngine) Pages() ([]engine.Page, error)       { return nil, nil }
func (e *fakeEngine) PageCount() int                      { return 0 }
func (e *fakeEngine) Healthy(ctx context.Context) bool    { return true }
func (e *fakeEngine) Close() error                        { return nil }

func seedOwnership(t *testing.T, sessions store.SessionStore, contexts store.ContextStore) (*coretypes.Principal, string, string) {
	t.Helper()
	session := &coretypes.Session{
		ID: "sess-1",
		Data: coretypes.SessionData{
			UserID: "user-1", Username: "alice",
			CreatedAt: time.Now(), ExpiresAt: time.Now().Add(time.Hour),
		},
		LastAccessedAt: time.Now(),
	}
	require.NoError(t, sessions.Create(context.Background(), session))

	autoCtx := &coretypes.Context{
		ID: "ctx-1", SessionID: "sess-1", UserID: "user-1",
		Type: coretypes.ContextTypeBrowser, Status: coretypes.ContextStatusActive,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, contexts.Create(context.Background(), autoCtx))

	principal := &coretypes.Principal{UserID: "user-1", Username: "alice", SessionID: "sess-1"}
	return principal, "ctx-1", "sess-1"
}

func TestCreatePageSucceedsWithValidOwnership(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	contexts := store.NewMemoryContextStore()
	m := New(sessions, contexts, time.Hour)
	defer m.Shutdown()

	principal, ctxID, sessID := seedOwnership(t, sessions, contexts)

	info, err := m.CreatePage(context.Background(), principal, ctxID, sessID, "browser-1", &fakeEngine{}, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, coretypes.PageStateActive, info.State)
	assert.Equal(t, ctxID, info.ContextID)
}

func TestCreatePageFailsWhenSessionBelongsToAnotherUser(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	contexts := store.NewMemoryContextStore()
	m := New(sessions, contexts, time.Hour)
	defer m.Shutdown()

	_, ctxID, sessID := seedOwnership(t, sessions, contexts)
	impostor := &coretypes.Principal{UserID: "user-2", SessionID: sessID}

	_, err := m.CreatePage(context.Background(), impostor, ctxID, sessID, "browser-1", &fakeEngine{}, CreateOptions{})
	assert.ErrorIs(t, err, coretypes.ErrForbidden)
}

func TestGetFailsForWrongSession(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	contexts := store.NewMemoryContextStore()
	m := New(sessions, contexts, time.Hour)
	defer m.Shutdown()

	principal, ctxID, sessID := seedOwnership(t, sessions, contexts)
	info, err := m.CreatePage(context.Background(), principal, ctxID, sessID, "browser-1", &fakeEngine{}, CreateOptions{})
	require.NoError(t, err)

	_, _, err = m.Get(info.ID, "some-other-session")
	assert.ErrorIs(t, err, coretypes.ErrForbidden)
}

func TestCloseMarksPageClosedAndRejectsDoubleClose(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	contexts := store.NewMemoryContextStore()
	m := New(sessions, contexts, time.Hour)
	defer m.Shutdown()

	principal, ctxID, sessID := seedOwnership(t, sessions, contexts)
	info, err := m.CreatePage(context.Background(), principal, ctxID, sessID, "browser-1", &fakeEngine{}, CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, m.Close(info.ID, sessID))
	err = m.Close(info.ID, sessID)
	assert.ErrorIs(t, err, coretypes.ErrPageNotFound)
}

func TestRecordNavigationCapsHistory(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	contexts := store.NewMemoryContextStore()
	m := New(sessions, contexts, time.Hour)
	defer m.Shutdown()

	principal, ctxID, sessID := seedOwnership(t, sessions, contexts)
	info, err := m.CreatePage(context.Background(), principal, ctxID, sessID, "browser-1", &fakeEngine{}, CreateOptions{})
	require.NoError(t, err)

	for i := 0; i < maxNavigationHistory+10; i++ {
		m.RecordNavigation(info.ID, "https://example.com", "Example", 200)
	}

	_, got, err := m.Get(info.ID, sessID)
	require.NoError(t, err)
	assert.Len(t, got.NavigationHistory, maxNavigationHistory)
}

func TestListBySessionAndContext(t *testing.T) {
	sessions := store.NewMemorySessionStore()
	contexts := store.NewMemoryContextStore()
	m := New(sessions, contexts, time.Hour)
	defer m.Shutdown()

	principal, ctxID, sessID := seedOwnership(t, sessions, contexts)
	_, err := m.CreatePage(context.Background(), principal, ctxID, sessID, "browser-1", &fakeEngine{}, CreateOptions{})
	require.NoError(t, err)

	assert.Len(t, m.ListBySession(sessID), 1)
	assert.Len(t, m.ListByContext(ctxID), 1)
	assert.Len(t, m.ListBySession("nonexistent"), 0)
}
