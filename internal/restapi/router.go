// Package restapi implements the control plane's REST front-end:
// stdlib net/http with Go 1.22+ method+path routing patterns (no
// third-party router appears anywhere in the dependency pack this
// control plane was built from) over internal/dispatch.Service.
package restapi

import (
	"net/http"
	"time"

	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/dispatch"
	"github.com/Rorqualx/browserctl/internal/middleware"
)

// Handler bundles the dispatch service every route calls into.
type Handler struct {
	svc *dispatch.Service
	cfg *config.Config
}

// NewRouter builds the full REST surface: /health and /ready are
// unauthenticated; everything under /api/v1 requires a credential. The
// returned closer stops the rate limiter's background cleanup
// goroutine (a no-op if RATE_LIMIT_ENABLED is false) and must be
// called on shutdown.
func NewRouter(svc *dispatch.Service, cfg *config.Config) (http.Handler, func()) {
	h := &Handler{svc: svc, cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /ready", h.handleReady)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/sessions", h.createSession)
	api.HandleFunc("GET /api/v1/sessions/{id}", h.getSession)
	api.HandleFunc("POST /api/v1/sessions/{id}/refresh", h.refreshSession)
	api.HandleFunc("POST /api/v1/sessions/{id}/revoke", h.revokeSession)
	api.HandleFunc("DELETE /api/v1/sessions/{id}", h.revokeSession)

	api.HandleFunc("POST /api/v1/contexts", h.createContext)
	api.HandleFunc("GET /api/v1/contexts", h.listContexts)
	api.HandleFunc("GET /api/v1/contexts/{id}", h.getContext)
	api.HandleFunc("DELETE /api/v1/contexts/{id}", h.deleteContext)
	api.HandleFunc("POST /api/v1/contexts/{id}/execute", h.executeInContext)

	api.HandleFunc("POST /api/v1/pages", h.createPage)
	api.HandleFunc("GET /api/v1/pages", h.listPages)
	api.HandleFunc("GET /api/v1/pages/{id}", h.getPage)
	api.HandleFunc("DELETE /api/v1/pages/{id}", h.closePage)
	api.HandleFunc("POST /api/v1/pages/{id}/navigate", h.navigatePage)
	api.HandleFunc("POST /api/v1/pages/{id}/screenshot", h.screenshotPage)
	api.HandleFunc("POST /api/v1/pages/{id}/evaluate", h.evaluatePage)

	mux.Handle("/api/v1/", authenticate(svc)(api))

	steps := []func(http.Handler) http.Handler{
		middleware.Recovery,
		requestID,
		middleware.Logging,
		middleware.Metrics("rest"),
	}

	closer := func() {}
	if cfg.RateLimitEnabled {
		rl := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		steps = append(steps, rl.Handler())
		closer = rl.Close
	}

	steps = append(steps,
		middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins}),
		middleware.SecurityHeaders,
		csrfProtect,
		middleware.Timeout(30*time.Second),
	)

	return middleware.Chain(steps...)(mux), closer
}
