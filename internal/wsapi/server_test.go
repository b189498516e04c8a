package wsapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
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

func newTestServer(t *testing.T) (*httptest.Server, func()) {
	t.Helper()
	cfg := &config.Config{
		MinBrowsers: 1, MaxBrowsers: 3, MaxPagesPerBrowser: 5,
		AcquisitionTimeout: 2 * time.Second, HealthCheckInterval: time.Hour,
		BrowserMaxAge: time.Hour, PoolScalingStrategy: "balanced",
		SessionTTL: time.Hour, JWTEnabled: true, JWTSecret: "test-secret-that-is-long-enough",
		APIKeyEnabled: true, APIKey: "test-api-key",
	}
	backends := &store.Backends{Sessions: store.NewMemorySessionStore(), Contexts: store.NewMemoryContextStore(), Kind: config.StoreStrategyMemory}
	pool, err := browserpool.New(context.Background(), cfg, fakeFactory())
	require.NoError(t, err)

	pages := pagemanager.New(backends.Sessions, backends.Contexts, time.Hour)
	registry, err := validators.NewRegistry()
	require.NoError(t, err)
	tracker := errenvelope.NewTracker()
	exec := actionexec.New(registry, pages, tracker, nil)
	gate := authgate.New(cfg, backends.Sessions)
	svc := dispatch.New(cfg, backends, pool, pages, exec, gate, tracker)

	wsServer := NewServer(svc, cfg)
	httpServer := httptest.NewServer(wsServer)

	cleanup := func() {
		httpServer.Close()
		pool.Shutdown(time.Second)
		pages.Shutdown()
		tracker.Close()
	}
	return httpServer, cleanup
}

func dial(t *testing.T, httpServer *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return wsConn
}

func TestAuthHandshakeThenSessionFlow(t *testing.T) {
	httpServer, cleanup := newTestServer(t)
	defer cleanup()

	wsConn := dial(t, httpServer)
	defer wsConn.Close()

	require.NoError(t, wsConn.WriteJSON(Envelope{Type: MessageAuth, ID: "1", Data: mustJSON(map[string]any{"apiKey": "test-api-key"})}))

	var ack Envelope
	require.NoError(t, wsConn.ReadJSON(&ack))
	require.Equal(t, MessageResult, ack.Type)
	require.Equal(t, "1", ack.ID)

	require.NoError(t, wsConn.WriteJSON(Envelope{
		Type: MessageSession, ID: "2", Method: "create",
		Data: mustJSON(map[string]any{"userId": "user-1", "username": "alice"}),
	}))
	var sessResp Envelope
	require.NoError(t, wsConn.ReadJSON(&sessResp))
	require.Equal(t, MessageResult, sessResp.Type)
	require.Equal(t, "2", sessResp.ID)
}

func TestFirstMessageMustBeAuth(t *testing.T) {
	httpServer, cleanup := newTestServer(t)
	defer cleanup()

	wsConn := dial(t, httpServer)
	defer wsConn.Close()

	require.NoError(t, wsConn.WriteJSON(Envelope{Type: MessagePing, ID: "1"}))

	var env Envelope
	err := wsConn.ReadJSON(&env)
	if err == nil {
		require.Equal(t, MessageError, env.Type)
	}
}
