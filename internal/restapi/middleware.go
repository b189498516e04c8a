package restapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/dispatch"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
)

type ctxKey int

const (
	ctxKeyPrincipal ctxKey = iota
	ctxKeyRequestID
)

func principalFrom(r *http.Request) *coretypes.Principal {
	p, _ := r.Context().Value(ctxKeyPrincipal).(*coretypes.Principal)
	return p
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyRequestID).(string)
	return id
}

// requestID assigns or propagates X-Request-Id for correlation across
// logs, the error tracker, and the client's own retries.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// csrfProtect rejects state-changing requests that don't carry a
// custom header, which a cross-site form post cannot set. Exempt
// paths are the liveness/readiness probes, which carry no credentials
// a CSRF attack could ride on.
func csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if r.URL.Path == "/health" || r.URL.Path == "/ready" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-Requested-With") == "" && r.Header.Get("Authorization") == "" && r.Header.Get("X-API-Key") == "" {
			start := time.Now()
			env := errenvelope.New(errenvelope.CodeCSRFRejected, coretypes.CategorySecurity, 403).
				WithUserMessage("missing X-Requested-With or credential header on a state-changing request").
				WithSeverity(coretypes.SeverityMedium).Build()
			writeError(w, r, start, env)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate runs the auth gate against whichever credential the
// request presents and stores the resulting Principal in context.
// Routes that need a principal are registered behind this middleware;
// routes that don't (health/ready) skip it entirely.
func authenticate(svc *dispatch.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			creds := authgate.Credentials{
				Authorization: r.Header.Get("Authorization"),
				APIKey:        r.Header.Get("X-API-Key"),
				SessionID:     r.Header.Get("X-Session-Id"),
			}
			principal, _, err := svc.Authenticate(r.Context(), creds)
			if err != nil {
				writeError(w, r, start, authError(err))
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authError(err error) *coretypes.ErrorEnvelope {
	if ae, ok := err.(*coretypes.AuthError); ok {
		return errenvelope.New(errenvelope.CodeUnauthenticated, coretypes.CategoryAuthentication, 401).
			WithUserMessage(ae.Error()).Build()
	}
	return errenvelope.New(errenvelope.CodeUnauthenticated, coretypes.CategoryAuthentication, 401).
		WithUserMessage("authentication required").Build()
}
