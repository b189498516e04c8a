package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorqualx/browserctl/internal/actionexec"
	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/browserpool"
	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/engine"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
	"github.com/Rorqualx/browserctl/internal/store"
	"github.com/Rorqualx/browserctl/internal/validators"
)

type fakePage struct{ id string }

func (f *fakePage) ID() string { return f.id }
func (f *fakePage) Navigate(ctx context.Context, url string) (*engine.NavigationResult, error) {
	return &engine.NavigationResult{URL: url, StatusCode: 200}, nil
}
func (f *fakePage) Click(ctx context.Context, selector string) error                { return nil }
func (f *fakePage) Type(ctx context.Context, selector, text string) error           { return nil }
func (f *fakePage) Select(ctx context.Context, selector string, v []string) error   { return nil }
func (f *fakePage) PressKey(ctx context.Context, key string) error                  { return nil }
func (f *fakePage) MoveMouse(ctx context.Context, x, y float64) error               { return nil }
func (f *fakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error)   { return []byte("x"), nil }
func (f *fakePage) PDF(ctx context.Context) ([]byte, error)                         { return nil, nil }
func (f *fakePage) WaitForSelector(ctx context.Context, s string, t time.Duration) error {
	return nil
}
func (f *fakePage) Scroll(ctx context.Context, dx, dy float64) error                  { return nil }
func (f *fakePage) Evaluate(ctx context.Context, script string) (interface{}, error)  { return "ok", nil }
func (f *fakePage) Upload(ctx context.Context, selector string, paths []string) error { return nil }
func (f *fakePage) SetCookies(ctx context.Context, cookies []engine.Cookie) error     { return nil }
func (f *fakePage) GetCookies(ctx context.Context) ([]engine.Cookie, error)           { return nil, nil }
func (f *fakePage) DeleteCookie(ctx context.Context, name, domain string) error       { return nil }
func (f *fakePage) GetAttribute(ctx context.Context, s, a string) (string, error)     { return "", nil }
func (f *fakePage) Content(ctx context.Context) (string, error)                       { return "", nil }
func (f *fakePage) Close() error                                                      { return nil }

type fakeEngine struct{ id string }

func (e *fakeEngine) ID() string                                       { return e.id }
func (e *fakeEngine) NewPage(ctx context.Context) (engine.Page, error) { return &fakePage{id: "page"}, nil }
func (e *fakeEngine) Pages() ([]engine.Page, error)                    { return nil, nil }
func (e *fakeEngine) PageCount() int                                   { return 0 }
func (e *fakeEngine) Healthy(ctx context.Context) bool                 { return true }
func (e *fakeEngine) Close() error                                     { return nil }

func fakeFactory() engine.Factory {
	var count atomic.Int32
	return func(ctx context.Context, proxyURL string) (engine.Engine, error) {
		n := count.Add(1)
		return &fakeEngine{id: string(rune('a' - 1 + int(n)))}, nil
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{
		MinBrowsers: 1, MaxBrowsers: 3, MaxPagesPerBrowser: 5,
		AcquisitionTimeout: 2 * time.Second, HealthCheckInterval: time.Hour,
		BrowserMaxAge: time.Hour, PoolScalingStrategy: "balanced",
		SessionTTL: time.Hour, JWTEnabled: true, JWTSecret: "test-secret",
	}
	backends := &store.Backends{Sessions: store.NewMemorySessionStore(), Contexts: store.NewMemoryContextStore(), Kind: config.StoreStrategyMemory}
	pool, err := browserpool.New(context.Background(), cfg, fakeFactory())
	require.NoError(t, err)
	t.Cleanup(func() { pool.Shutdown(time.Second) })

	pages := pagemanager.New(backends.Sessions, backends.Contexts, time.Hour)
	t.Cleanup(pages.Shutdown)

	registry, err := validators.NewRegistry()
	require.NoError(t, err)

	tracker := errenvelope.NewTracker()
	t.Cleanup(tracker.Close)

	exec := actionexec.New(registry, pages, tracker, nil)
	gate := authgate.New(cfg, backends.Sessions)

	return New(cfg, backends, pool, pages, exec, gate, tracker)
}

func TestSessionLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, token, envErr := svc.CreateSession(ctx, "user-1", "alice", []string{"user"}, 0)
	require.Nil(t, envErr)
	assert.NotEmpty(t, token)

	principal := &coretypes.Principal{UserID: "user-1", SessionID: session.ID}

	got, envErr := svc.GetSession(ctx, principal, session.ID)
	require.Nil(t, envErr)
	assert.Equal(t, session.ID, got.ID)

	_, envErr = svc.RefreshSession(ctx, principal, session.ID, time.Hour)
	require.Nil(t, envErr)

	impostor := &coretypes.Principal{UserID: "user-2"}
	_, envErr = svc.GetSession(ctx, impostor, session.ID)
	require.NotNil(t, envErr)
	assert.Equal(t, "FORBIDDEN", envErr.Code)

	require.Nil(t, svc.RevokeSession(ctx, principal, session.ID))
	_, envErr = svc.GetSession(ctx, principal, session.ID)
	require.NotNil(t, envErr)
	assert.Equal(t, "SESSION_NOT_FOUND", envErr.Code)
}

func TestContextAndPageLifecycle(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	session, _, envErr := svc.CreateSession(ctx, "user-1", "alice", nil, 0)
	require.Nil(t, envErr)
	principal := &coretypes.Principal{UserID: "user-1", SessionID: session.ID}

	autoCtx, envErr := svc.CreateContext(ctx, principal, session.ID, "default", coretypes.ContextConfig{})
	require.Nil(t, envErr)

	page, envErr := svc.CreatePage(ctx, principal, autoCtx.ID, pagemanager.CreateOptions{})
	require.Nil(t, envErr)
	assert.Equal(t, coretypes.PageStateActive, page.State)

	pages, envErr := svc.ListPages(ctx, principal, autoCtx.ID)
	require.Nil(t, envErr)
	assert.Len(t, pages, 1)

	result := svc.Navigate(ctx, principal, page.ID, "https://example.com/")
	require.True(t, result.Success)

	require.Nil(t, svc.ClosePage(principal, page.ID))
	_, envErr = svc.GetPage(principal, page.ID)
	require.NotNil(t, envErr)
	assert.Equal(t, "PAGE_NOT_FOUND", envErr.Code)

	require.Nil(t, svc.DeleteContext(ctx, principal, autoCtx.ID))
}

func TestHealthAndReady(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	health := svc.Health(ctx)
	assert.Equal(t, "ok", health.Status)

	ready, reason := svc.Ready(ctx)
	assert.True(t, ready)
	assert.Empty(t, reason)
}
