// Package actionexec runs the per-invocation pipeline: validate,
// resolve page, dispatch to the handler registered for the action
// type, apply a timeout, retry transient failures, and record the
// outcome.
package actionexec

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
	"github.com/Rorqualx/browserctl/internal/resiliency"
	"github.com/Rorqualx/browserctl/internal/validators"
)

// defaultTimeouts holds the per-category fallback when an invocation
// doesn't override Timeout.
var defaultTimeouts = map[coretypes.ActionType]time.Duration{
	coretypes.ActionNavigate:     30 * time.Second,
	coretypes.ActionClick:        10 * time.Second,
	coretypes.ActionTypeText:     10 * time.Second,
	coretypes.ActionSelect:       10 * time.Second,
	coretypes.ActionKeyboard:     10 * time.Second,
	coretypes.ActionMouse:        10 * time.Second,
	coretypes.ActionScreenshot:   30 * time.Second,
	coretypes.ActionPDF:          30 * time.Second,
	coretypes.ActionWait:         30 * time.Second,
	coretypes.ActionScroll:       10 * time.Second,
	coretypes.ActionEvaluate:     10 * time.Second,
	coretypes.ActionUpload:       30 * time.Second,
	coretypes.ActionCookie:       10 * time.Second,
	coretypes.ActionGetAttribute: 30 * time.Second,
	coretypes.ActionContent:      30 * time.Second,
}

const maxInvocationTimeout = 300 * time.Second

// RetryPolicy governs how transient failures are retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	BackoffMultiplier float64
	MaxDelay          time.Duration
}

// DefaultRetryPolicy mirrors the backoff shape described for action
// retries: initialDelay * backoffMultiplier^attempt, capped, with jitter.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: 250 * time.Millisecond, BackoffMultiplier: 2, MaxDelay: 5 * time.Second}
}

// transientErrors are retried; anything else fails on the first attempt.
var transientErrors = []string{"timeout", "network", "protocol", "connection reset", "EOF"}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, marker := range transientErrors {
		if containsFold(msg, marker) {
			return true
		}
	}
	return false
}

func containsFold(haystack, needle string) bool {
	h, n := []rune(haystack), []rune(needle)
	if len(n) == 0 || len(n) > len(h) {
		return len(n) == 0
	}
	lower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	for i := 0; i+len(n) <= len(h); i++ {
		match := true
		for j := range n {
			if lower(h[i+j]) != lower(n[j]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// EngineGuard is the breaker gate a command dispatch checks before
// crossing into a browser engine process, recording the outcome
// afterward. *resiliency.CircuitBreaker satisfies this directly;
// browserpool.Pool exposes its launch breaker via Breaker() so command
// dispatch shares the same failure isolation as engine launch.
type EngineGuard interface {
	Allow() bool
	Success()
	Failure()
}

// Executor wires the validators, the page manager, and the error
// tracker into one execute(invocation) -> ActionResult pipeline.
type Executor struct {
	validators *validators.Registry
	pages      *pagemanager.Manager
	tracker    *errenvelope.Tracker
	guard      EngineGuard
	retry      RetryPolicy
}

func New(v *validators.Registry, pages *pagemanager.Manager, tracker *errenvelope.Tracker, guard EngineGuard) *Executor {
	return &Executor{validators: v, pages: pages, tracker: tracker, guard: guard, retry: DefaultRetryPolicy()}
}

// Execute runs the full pipeline for one invocation. It has no Go
// error return: every failure is carried in ActionResult.Error.
func (e *Executor) Execute(ctx context.Context, inv *coretypes.ActionInvocation) *coretypes.ActionResult {
	start := time.Now()

	result := func() *coretypes.ActionResult {
		if err := e.validators.Validate(ctx, inv); err != nil {
			return e.failure(inv, start, errenvelope.CodeValidationFailed, coretypes.CategoryValidation, 400, err)
		}

		h, ok := registry[inv.ActionType]
		if !ok {
			return e.failure(inv, start, errenvelope.CodeUnknownAction, coretypes.CategoryValidation, 400, coretypes.ErrUnknownAction)
		}

		page, info, err := e.pages.Get(inv.PageID, inv.Principal.SessionID)
		if err != nil {
			return e.failure(inv, start, errenvelope.CodePageNotFound, coretypes.CategoryAuthorization, mapLookupStatus(err), err)
		}

		if e.guard != nil && !e.guard.Allow() {
			return e.failure(inv, start, errenvelope.CodeCircuitOpen, coretypes.CategoryBrowser, 503, resiliency.ErrCircuitOpen)
		}

		timeout := e.resolveTimeout(inv)
		retryable := validators.IsRetryable(inv.ActionType)

		e.pages.SetNavigating(info.ID, inv.ActionType == coretypes.ActionNavigate)
		defer e.pages.SetNavigating(info.ID, false)

		data, err := e.runWithRetry(ctx, func(callCtx context.Context) (map[string]any, error) {
			return h(callCtx, page, inv.Parameters)
		}, timeout, retryable)
		if e.guard != nil {
			if err != nil {
				e.guard.Failure()
			} else {
				e.guard.Success()
			}
		}
		if err != nil {
			e.pages.RecordError(info.ID)
			return e.failure(inv, start, errenvelope.CodeInternal, coretypes.CategoryBrowser, 502, err)
		}

		if inv.ActionType == coretypes.ActionNavigate {
			status, _ := data["status"].(int)
			e.pages.RecordNavigation(info.ID, stringParam(data, "url"), stringParam(data, "title"), status)
		} else {
			e.pages.Touch(info.ID)
		}

		return &coretypes.ActionResult{
			Success:    true,
			ActionType: inv.ActionType,
			Data:       data,
			Duration:   time.Since(start),
			Timestamp:  time.Now(),
		}
	}()

	if !result.Success && e.tracker != nil && result.Error != nil {
		e.tracker.Record(result.Error, string(inv.ActionType), inv.PageID)
	}
	return result
}

func mapLookupStatus(err error) int {
	switch {
	case errors.Is(err, coretypes.ErrPageNotFound), errors.Is(err, coretypes.ErrPageClosed):
		return 404
	case errors.Is(err, coretypes.ErrForbidden):
		return 403
	default:
		return 500
	}
}

func (e *Executor) resolveTimeout(inv *coretypes.ActionInvocation) time.Duration {
	if inv.Timeout > 0 && inv.Timeout <= maxInvocationTimeout {
		return inv.Timeout
	}
	if t, ok := defaultTimeouts[inv.ActionType]; ok {
		return t
	}
	return 30 * time.Second
}

func (e *Executor) failure(inv *coretypes.ActionInvocation, start time.Time, code string, category coretypes.ErrorCategory, status int, err error) *coretypes.ActionResult {
	env := errenvelope.New(code, category, status).
		WithUserMessage(err.Error()).
		WithCorrelationID(inv.CorrelationID).
		WithDetail("actionType", string(inv.ActionType)).
		WithDetail("pageId", inv.PageID).
		Build()

	log.Warn().Str("action_type", string(inv.ActionType)).Str("page_id", inv.PageID).Err(err).Msg("action failed")

	return &coretypes.ActionResult{
		Success:    false,
		ActionType: inv.ActionType,
		Error:      env,
		Duration:   time.Since(start),
		Timestamp:  time.Now(),
	}
}

func (e *Executor) runWithRetry(ctx context.Context, fn func(ctx context.Context) (map[string]any, error), timeout time.Duration, retryable bool) (map[string]any, error) {
	attempts := 1
	if retryable {
		attempts = e.retry.MaxAttempts
	}
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		data, err := fn(callCtx)
		cancel()
		if err == nil {
			return data, nil
		}
		lastErr = err

		if !retryable || !isTransient(err) || i == attempts-1 {
			return nil, lastErr
		}

		delay := backoffDelay(e.retry, i)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	mult := policy.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}
	base := policy.InitialDelay
	if base <= 0 {
		base = 250 * time.Millisecond
	}
	delay := time.Duration(float64(base) * math.Pow(mult, float64(attempt)))
	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) + 1))
	return (delay + jitter) / 2
}
