// Package browserpool owns the fleet of browser engine processes: it
// launches, leases, recycles, and scales them, and queues callers when
// none is immediately available.
package browserpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/engine"
	"github.com/Rorqualx/browserctl/internal/metrics"
	"github.com/Rorqualx/browserctl/internal/resiliency"
)

// Pool manages a dynamically-sized fleet of engine.Engine instances.
// Lock ordering: Pool.mu is always taken before any individual
// instance's mu; code must never acquire them in the reverse order.
type Pool struct {
	cfg     *config.Config
	factory engine.Factory
	exec    *resiliency.Executor

	mu        sync.Mutex
	instances map[string]*instance
	closed    atomic.Bool

	waiters *waitQueue
	notify  chan struct{} // buffered(1), signals "an idle instance may exist"

	stopCh  chan struct{}
	loopsWG sync.WaitGroup

	scaleMu        sync.Mutex
	lastScaleAt    time.Time
	lastRecycleAt  time.Time
	scalingWindow  []float64 // recent utilization samples, for trend
}

// New builds a pool and pre-warms it to cfg.MinBrowsers, mirroring the
// teacher's NewPool pre-warm behavior. factory is the engine launcher;
// production wiring passes engine.NewRodEngine (adapted to the
// engine.Factory signature), tests pass a fake.
func New(ctx context.Context, cfg *config.Config, factory engine.Factory) (*Pool, error) {
	p := &Pool{
		cfg:       cfg,
		factory:   factory,
		instances: make(map[string]*instance),
		waiters:   newWaitQueue(),
		notify:    make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		exec: resiliency.NewExecutor("browser-engine", 5, 30*time.Second, resiliency.RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxJitter:   100 * time.Millisecond,
		}),
	}

	for i := 0; i < cfg.MinBrowsers; i++ {
		if _, err := p.spawn(ctx); err != nil {
			log.Error().Err(err).Int("index", i).Msg("failed to pre-warm browser instance")
			continue
		}
	}

	p.loopsWG.Add(3)
	go p.scalingLoop()
	go p.recyclingLoop()
	go p.healthCheckLoop()

	return p, nil
}

func (p *Pool) spawn(ctx context.Context) (*instance, error) {
	launchCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var eng engine.Engine
	err := p.exec.Execute(launchCtx, func(ctx context.Context) error {
		e, err := p.factory(ctx, p.cfg.ProxyURL)
		if err != nil {
			return err
		}
		eng = e
		return nil
	})
	if err != nil {
		return nil, coretypes.NewPoolError("spawn", "engine launch failed", err)
	}

	inst := newInstance(eng)
	inst.setState(coretypes.BrowserStateIdle)

	p.mu.Lock()
	p.instances[inst.id] = inst
	p.mu.Unlock()

	p.signalAvailable()
	return inst, nil
}

func (p *Pool) signalAvailable() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Acquire leases an idle instance to sessionID, blocking until one is
// free, the pool can grow to serve the request, ctx is canceled, or
// deadline elapses — whichever comes first. Queued callers are served
// in FIFO order once an instance frees up, matching the teacher
// pool's "oldest blocked caller wins" semantics.
func (p *Pool) Acquire(ctx context.Context, sessionID string, deadline time.Duration) (*LeasedBrowser, error) {
	if p.closed.Load() {
		return nil, coretypes.ErrBrowserPoolClosed
	}

	if inst := p.tryLeaseIdle(sessionID); inst != nil {
		return p.toLeased(inst), nil
	}

	if p.canGrow() {
		inst, err := p.spawn(ctx)
		if err == nil {
			p.leaseInstance(inst, sessionID)
			return p.toLeased(inst), nil
		}
		log.Warn().Err(err).Msg("on-demand scale-up during Acquire failed, falling back to queue")
	}

	w := &waiter{sessionID: sessionID, deadline: time.Now().Add(deadline), result: make(chan waitResult, 1)}
	elem := p.waiters.push(w)

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-w.result:
		if res.err != nil {
			return nil, res.err
		}
		return p.toLeased(res.inst), nil
	case <-timer.C:
		p.waiters.remove(elem)
		return nil, coretypes.ErrAcquisitionTimeout
	case <-ctx.Done():
		p.waiters.remove(elem)
		return nil, ctx.Err()
	case <-p.stopCh:
		p.waiters.remove(elem)
		return nil, coretypes.ErrBrowserPoolClosed
	}
}

func (p *Pool) tryLeaseIdle(sessionID string) *instance {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, inst := range p.instances {
		if inst.getState() == coretypes.BrowserStateIdle {
			inst.markLeased(sessionID)
			return inst
		}
	}
	return nil
}

func (p *Pool) leaseInstance(inst *instance, sessionID string) {
	inst.markLeased(sessionID)
}

func (p *Pool) canGrow() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances) < p.cfg.MaxBrowsers
}

// LeasedBrowser is the handle an actionexec caller holds while it owns
// an engine; Release returns it to the pool (or to the next waiter).
type LeasedBrowser struct {
	ID  string
	Eng engine.Engine
}

func (p *Pool) toLeased(inst *instance) *LeasedBrowser {
	return &LeasedBrowser{ID: inst.id, Eng: inst.eng}
}

// Release returns a leased instance to the pool. If a waiter is
// queued, the instance is handed straight to it instead of going
// through the idle state, avoiding a lost-wakeup race against a
// concurrent Acquire.
func (p *Pool) Release(browserID string) {
	p.mu.Lock()
	inst, ok := p.instances[browserID]
	p.mu.Unlock()
	if !ok {
		return
	}

	if inst.getState() == coretypes.BrowserStateUnhealthy {
		go p.recycle(context.Background(), inst.id)
		return
	}

	if w := p.waiters.pop(); w != nil {
		inst.markLeased(w.sessionID)
		select {
		case w.result <- waitResult{inst: inst}:
			return
		default:
		}
		// nobody was listening after all (context canceled between
		// pop and send); put it back to idle.
	}

	inst.markReleased()
	p.signalAvailable()
}

// RecordError increments an instance's error counter; the recycling
// loop's health component reads it back.
func (p *Pool) RecordError(browserID string) {
	p.mu.Lock()
	inst, ok := p.instances[browserID]
	p.mu.Unlock()
	if ok {
		inst.errorCount.Add(1)
	}
}

func (p *Pool) recycle(ctx context.Context, browserID string) {
	p.mu.Lock()
	inst, ok := p.instances[browserID]
	p.mu.Unlock()
	if !ok {
		return
	}

	inst.setState(coretypes.BrowserStateRecycling)
	metrics.RecordRecycled()

	if err := inst.eng.Close(); err != nil {
		log.Warn().Err(err).Str("browser_id", browserID).Msg("error closing recycled engine")
	}

	p.mu.Lock()
	delete(p.instances, browserID)
	belowMin := len(p.instances) < p.cfg.MinBrowsers
	p.mu.Unlock()

	if belowMin && !p.closed.Load() {
		if _, err := p.spawn(ctx); err != nil {
			log.Error().Err(err).Msg("failed to replace recycled browser instance")
		}
	}
}

// Snapshot returns the current pool-diagnostics projection of every
// tracked instance.
func (p *Pool) Snapshot() []coretypes.BrowserInstanceInfo {
	p.mu.Lock()
	insts := make([]*instance, 0, len(p.instances))
	for _, inst := range p.instances {
		insts = append(insts, inst)
	}
	p.mu.Unlock()

	out := make([]coretypes.BrowserInstanceInfo, 0, len(insts))
	for _, inst := range insts {
		out = append(out, inst.snapshot())
	}
	return out
}

// Guard runs fn under the same breaker/retry executor that protects
// engine launch, for callers that issue other engine-crossing calls
// (new-page) and want the same failure isolation plus retry.
func (p *Pool) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.exec.Execute(ctx, fn)
}

// Breaker exposes the pool's launch breaker for callers that want to
// gate their own calls (action dispatch) on the same circuit without
// going through Execute's own retry loop, which would compound with a
// caller's own retry policy.
func (p *Pool) Breaker() *resiliency.CircuitBreaker {
	return p.exec.Breaker()
}

func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

func (p *Pool) QueueLength() int {
	return p.waiters.len()
}

// Shutdown stops the background loops and closes every engine
// instance in parallel, bounded by timeout.
func (p *Pool) Shutdown(timeout time.Duration) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopCh)
	p.waiters.drain(coretypes.ErrBrowserPoolClosed)

	done := make(chan struct{})
	go func() {
		p.loopsWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn().Msg("browser pool background loops did not stop within timeout")
	}

	p.mu.Lock()
	insts := make([]*instance, 0, len(p.instances))
	for _, inst := range p.instances {
		insts = append(insts, inst)
	}
	p.instances = make(map[string]*instance)
	p.mu.Unlock()

	eg := new(errgroup.Group)
	for _, inst := range insts {
		inst := inst
		eg.Go(func() error {
			if err := inst.eng.Close(); err != nil {
				log.Warn().Err(err).Str("browser_id", inst.id).Msg("error closing engine during shutdown")
			}
			return nil
		})
	}

	closeDone := make(chan struct{})
	go func() {
		eg.Wait()
		close(closeDone)
	}()
	select {
	case <-closeDone:
	case <-time.After(timeout):
		log.Warn().Msg("not all browser engines closed within shutdown timeout")
	}

	return nil
}
