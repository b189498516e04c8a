// Package dispatch is the single service layer every front-end calls
// into after authenticating and normalizing its own transport's
// request. It owns no transport concerns itself: REST status codes,
// gRPC codes, WS envelopes, and MCP tool results are all projected
// from the same coretypes.ErrorEnvelope / typed return values by the
// front-end packages.
package dispatch

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/browserctl/internal/actionexec"
	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/browserpool"
	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/metrics"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
	"github.com/Rorqualx/browserctl/internal/store"
)

// Service wires every core component into the operations a front-end
// invokes: session, context, and page lifecycle, action execution,
// and health reporting.
type Service struct {
	cfg      *config.Config
	backends *store.Backends
	pool     *browserpool.Pool
	pages    *pagemanager.Manager
	exec     *actionexec.Executor
	gate     *authgate.Gate
	tracker  *errenvelope.Tracker
}

// New assembles a Service from its already-constructed dependencies.
// cmd/controlplane owns construction order (store, pagemanager, pool,
// validators, tracker, executor, gate) and passes the finished pieces
// in here.
func New(cfg *config.Config, backends *store.Backends, pool *browserpool.Pool, pages *pagemanager.Manager, exec *actionexec.Executor, gate *authgate.Gate, tracker *errenvelope.Tracker) *Service {
	return &Service{cfg: cfg, backends: backends, pool: pool, pages: pages, exec: exec, gate: gate, tracker: tracker}
}

// Authenticate delegates to the auth gate. Front-ends call this first
// with whatever credential they extracted from their own transport.
func (s *Service) Authenticate(ctx context.Context, creds authgate.Credentials) (*coretypes.Principal, authgate.CredentialKind, error) {
	return s.gate.Authenticate(ctx, creds)
}

// track takes an error already shaped as a failure for one
// operation, records it with the tracker and metrics, and returns it.
func (s *Service) track(err *coretypes.ErrorEnvelope, operation, resource string) *coretypes.ErrorEnvelope {
	if err == nil {
		return nil
	}
	if s.tracker != nil {
		s.tracker.Record(err, operation, resource)
	}
	metrics.RecordError(string(err.Category), err.Code)
	return err
}

// HealthReport is the payload for GET /health.
type HealthReport struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	PoolSize    int       `json:"poolSize"`
	QueueLength int       `json:"queueLength"`
	StoreKind   string    `json:"storeKind"`
}

// Health reports liveness: answering at all means the process is up.
// It checks no dependency and never fails.
func (s *Service) Health(ctx context.Context) HealthReport {
	return HealthReport{
		Status:      "ok",
		Timestamp:   time.Now().UTC(),
		PoolSize:    s.pool.Size(),
		QueueLength: s.pool.QueueLength(),
		StoreKind:   string(s.backends.Kind),
	}
}

// Ready reports readiness: the session store must answer a trivial
// call, and the pool must not be left with zero instances while
// callers are queued for one. A control plane with a dead store or a fully-wedged
// pool should fail readiness so a load balancer stops sending it
// traffic while staying alive for diagnostics.
func (s *Service) Ready(ctx context.Context) (bool, string) {
	if _, err := s.backends.Sessions.Count(ctx); err != nil {
		log.Warn().Err(err).Msg("readiness check: session store unreachable")
		return false, "session store unreachable"
	}
	if s.pool.Size() == 0 && s.pool.QueueLength() > 0 {
		return false, "browser pool exhausted and not recovering"
	}
	return true, ""
}

// StartMetricsCollector polls the pool, session store, context store,
// and page manager on interval and publishes their current sizes as
// gauges, the way StartMemoryCollector publishes runtime.MemStats.
func (s *Service) StartMetricsCollector(ctx context.Context, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.collectMetrics(ctx)
		case <-stopCh:
			return
		}
	}
}

func (s *Service) collectMetrics(ctx context.Context) {
	metrics.UpdatePoolMetrics(s.pool.Size(), s.pool.QueueLength())
	metrics.UpdatePageMetrics(s.pages.Count())
	if n, err := s.backends.Sessions.Count(ctx); err == nil {
		metrics.UpdateSessionMetrics(n)
	}
	if n, err := s.backends.Contexts.Count(ctx); err == nil {
		metrics.UpdateContextMetrics(n)
	}
}

// StartExpiryLoop sweeps expired sessions and contexts out of the
// store backends on interval, the store-level counterpart to
// pagemanager's own idle/tombstone sweep. The two backends are swept
// concurrently each tick, the way the teacher's session manager closed
// out its sessions in parallel via errgroup on shutdown.
func (s *Service) StartExpiryLoop(ctx context.Context, interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepExpired(ctx)
		case <-stopCh:
			return
		}
	}
}

func (s *Service) sweepExpired(ctx context.Context) {
	now := time.Now()
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		n, err := s.backends.Sessions.DeleteExpired(egCtx, now)
		if err != nil {
			log.Warn().Err(err).Msg("dispatch: session expiry sweep failed")
			return nil
		}
		if n > 0 {
			log.Debug().Int("count", n).Msg("dispatch: expired sessions removed")
		}
		return nil
	})

	eg.Go(func() error {
		n, err := s.backends.Contexts.DeleteExpired(egCtx, now, s.cfg.SessionTTL)
		if err != nil {
			log.Warn().Err(err).Msg("dispatch: context expiry sweep failed")
			return nil
		}
		if n > 0 {
			log.Debug().Int("count", n).Msg("dispatch: expired contexts removed")
		}
		return nil
	})

	_ = eg.Wait()
}
