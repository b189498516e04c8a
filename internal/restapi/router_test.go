package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rorqualx/browserctl/internal/actionexec"
	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/browserpool"
	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/dispatch"
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
func (f *fakePage) Click(ctx context.Context, selector string) error              { return nil }
func (f *fakePage) Type(ctx context.Context, selector, text string) error         { return nil }
func (f *fakePage) Select(ctx context.Context, selector string, v []string) error { return nil }
func (f *fakePage) PressKey(ctx context.Context, key string) error                { return nil }
func (f *fakePage) MoveMouse(ctx context.Context, x, y float64) error             { return nil }
func (f *fakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	return []byte("x"), nil
}
func (f *fakePage) PDF(ctx context.Context) ([]byte, error) { return nil, nil }
func (f *fakePage) WaitForSelector(ctx context.Context, s string, t time.Duration) error {
	return nil
}
func (f *fakePage) Scroll(ctx context.Context, dx, dy float64) error                 { return nil }
func (f *fakePage) Evaluate(ctx context.Context, script string) (interface{}, error) { return "ok", nil }
func (f *fakePage) Upload(ctx context.Context, selector string, paths []string) error {
	return nil
}
func (f *fakePage) SetCookies(ctx context.Context, cookies []engine.Cookie) error { return nil }
func (f *fakePage) GetCookies(ctx context.Context) ([]engine.Cookie, error)       { return nil, nil }
func (f *fakePage) DeleteCookie(ctx context.Context, name, domain string) error   { return nil }
func (f *fakePage) GetAttribute(ctx context.Context, s, a string) (string, error) { return "", nil }
func (f *fakePage) Content(ctx context.Context) (string, error)                   { return "", nil }
func (f *fakePage) Close() error                                                  { return nil }

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

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		MinBrowsers: 1, MaxBrowsers: 3, MaxPagesPerBrowser: 5,
		AcquisitionTimeout: 2 * time.Second, HealthCheckInterval: time.Hour,
		BrowserMaxAge: time.Hour, PoolScalingStrategy: "balanced",
		SessionTTL: time.Hour, JWTEnabled: true, JWTSecret: "test-secret-that-is-long-enough",
		APIKeyEnabled: true, APIKey: "test-api-key",
		CORSAllowedOrigins: []string{"https://example.com"},
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

	svc := dispatch.New(cfg, backends, pool, pages, exec, gate, tracker)
	router, closer := NewRouter(svc, cfg)
	t.Cleanup(closer)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = httptest.NewRequest(method, path, bytes.NewReader(b))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if apiKey != "" {
		r.Header.Set("X-API-Key", apiKey)
		r.Header.Set("X-Requested-With", "XMLHttpRequest")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	return w
}

func TestHealthAndReadyAreUnauthenticated(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresCredential(t *testing.T) {
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]any{}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSessionContextPageFlowOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]any{"userId": "user-1", "username": "alice"}, "test-api-key")
	require.Equal(t, http.StatusCreated, w.Code)
	var session sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &session))
	require.NotEmpty(t, session.ID)

	w = doJSON(t, router, http.MethodPost, "/api/v1/contexts", map[string]any{"sessionId": session.ID, "name": "default"}, "test-api-key")
	require.Equal(t, http.StatusCreated, w.Code)
	var ctxResp contextResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ctxResp))

	w = doJSON(t, router, http.MethodPost, "/api/v1/pages", map[string]any{"contextId": ctxResp.ID}, "test-api-key")
	require.Equal(t, http.StatusCreated, w.Code)
	var page pageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))

	w = doJSON(t, router, http.MethodPost, "/api/v1/pages/"+page.ID+"/navigate", map[string]any{"url": "https://example.com/"}, "test-api-key")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/pages/"+page.ID, nil, "test-api-key")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/contexts/"+ctxResp.ID, nil, "test-api-key")
	require.Equal(t, http.StatusNoContent, w.Code)
}
