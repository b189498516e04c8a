package errenvelope

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// Fingerprint returns a deterministic digest of an error's
// identity-bearing fields, stable across processes.
func Fingerprint(code string, category coretypes.ErrorCategory, message, operation, resource string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s", code, category, message, operation, resource)
	return hex.EncodeToString(h.Sum(nil))
}

// entry is one tracked occurrence of an envelope.
type entry struct {
	fingerprint     string
	envelope        *coretypes.ErrorEnvelope
	operation       string
	resource        string
	occurredAt      time.Time
	correlationGroup string
}

// ThresholdConfig sets the per-category ceiling used by threshold
// watching.
type ThresholdConfig struct {
	Category coretypes.ErrorCategory
	Ceiling  int
	Window   time.Duration
}

// DefaultThresholds mirrors a conservative default: no category should
// produce more than 20 errors in a minute before paging.
func DefaultThresholds() []ThresholdConfig {
	categories := []coretypes.ErrorCategory{
		coretypes.CategoryAuthentication, coretypes.CategoryAuthorization,
		coretypes.CategoryValidation, coretypes.CategoryNetwork,
		coretypes.CategoryBrowser, coretypes.CategorySession,
		coretypes.CategoryConfiguration, coretypes.CategoryBusinessLogic,
		coretypes.CategorySystem, coretypes.CategorySecurity,
		coretypes.CategoryPerformance, coretypes.CategoryRateLimit,
		coretypes.CategoryResource,
	}
	out := make([]ThresholdConfig, 0, len(categories))
	for _, c := range categories {
		out = append(out, ThresholdConfig{Category: c, Ceiling: 20, Window: time.Minute})
	}
	return out
}

// correlationRule links errors whose message matches a regex within a
// window into a correlation group.
type correlationRule struct {
	pattern    *regexp.Regexp
	minMatches int
	window     time.Duration
}

func defaultCorrelationRules() []correlationRule {
	return []correlationRule{
		{pattern: regexp.MustCompile(`(?i)TIMEOUT|UNAVAILABLE|EXHAUSTED`), minMatches: 3, window: 2 * time.Minute},
	}
}

// SignalType enumerates the events the tracker emits.
type SignalType string

const (
	SignalThresholdExceeded SignalType = "ERROR_THRESHOLD_EXCEEDED"
	SignalCorrelationFound  SignalType = "ERROR_CORRELATION_FOUND"
)

// Signal is emitted on the Signals channel when the analyses Record
// runs detect a threshold breach or a correlation.
type Signal struct {
	Type             SignalType
	Category         coretypes.ErrorCategory
	Count            int
	CorrelationGroup string
	FingerprintSet   []string
	Timestamp        time.Time
}

const retention = 7 * 24 * time.Hour

// Tracker retains recent error envelopes, indexes them, and runs
// threshold-watching and correlation-detection inside each Record call,
// one after the other on the caller's goroutine; the two analyses do
// not run concurrently.
type Tracker struct {
	mu         sync.Mutex
	entries    []entry
	thresholds []ThresholdConfig
	rules      []correlationRule
	signals    chan Signal

	cleanupInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
	closed          bool
}

// NewTracker starts a tracker with the default thresholds and
// correlation rules, plus a background cleanup loop.
func NewTracker() *Tracker {
	t := &Tracker{
		thresholds:      DefaultThresholds(),
		rules:           defaultCorrelationRules(),
		signals:         make(chan Signal, 64),
		cleanupInterval: 1 * time.Hour,
		stopCh:          make(chan struct{}),
	}
	t.wg.Add(1)
	go t.cleanupLoop()
	return t
}

// Signals exposes the channel threshold/correlation events are
// published on. Callers should drain it; it is buffered but not
// unbounded.
func (t *Tracker) Signals() <-chan Signal {
	return t.signals
}

// Record fingerprints and stores an envelope, then runs threshold and
// correlation analysis against the updated window. SECURITY category
// errors are additionally audit-logged at Warn level.
func (t *Tracker) Record(env *coretypes.ErrorEnvelope, operation, resource string) {
	fp := Fingerprint(env.Code, env.Category, env.UserMessage, operation, resource)
	e := entry{fingerprint: fp, envelope: env, operation: operation, resource: resource, occurredAt: time.Now()}

	t.mu.Lock()
	t.entries = append(t.entries, e)
	snapshot := append([]entry(nil), t.entries...)
	t.mu.Unlock()

	if env.Category == coretypes.CategorySecurity {
		log.Warn().
			Str("code", env.Code).
			Str("fingerprint", fp).
			Str("operation", operation).
			Str("resource", resource).
			Msg("security category error recorded")
	}

	t.checkThresholds(snapshot, env.Category)
	t.checkCorrelation(snapshot)
}

func (t *Tracker) checkThresholds(snapshot []entry, category coretypes.ErrorCategory) {
	var cfg *ThresholdConfig
	for i := range t.thresholds {
		if t.thresholds[i].Category == category {
			cfg = &t.thresholds[i]
			break
		}
	}
	if cfg == nil {
		return
	}
	cutoff := time.Now().Add(-cfg.Window)
	count := 0
	for _, e := range snapshot {
		if e.envelope.Category == category && e.occurredAt.After(cutoff) {
			count++
		}
	}
	if count > cfg.Ceiling {
		t.emit(Signal{Type: SignalThresholdExceeded, Category: category, Count: count, Timestamp: time.Now()})
	}
}

func (t *Tracker) checkCorrelation(snapshot []entry) {
	for _, rule := range t.rules {
		cutoff := time.Now().Add(-rule.window)
		var matched []string
		for _, e := range snapshot {
			if !e.occurredAt.After(cutoff) {
				continue
			}
			if rule.pattern.MatchString(e.envelope.UserMessage) || rule.pattern.MatchString(e.envelope.Code) {
				matched = append(matched, e.fingerprint)
			}
		}
		if len(matched) >= rule.minMatches {
			group := uuid.NewString()
			t.mu.Lock()
			for i := range t.entries {
				for _, fp := range matched {
					if t.entries[i].fingerprint == fp && t.entries[i].correlationGroup == "" {
						t.entries[i].correlationGroup = group
					}
				}
			}
			t.mu.Unlock()
			t.emit(Signal{Type: SignalCorrelationFound, CorrelationGroup: group, FingerprintSet: matched, Timestamp: time.Now()})
		}
	}
}

func (t *Tracker) emit(s Signal) {
	select {
	case t.signals <- s:
	default:
		log.Warn().Str("signal_type", string(s.Type)).Msg("tracker signal channel full, dropping")
	}
}

func (t *Tracker) cleanupLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.cleanupExpired()
		case <-t.stopCh:
			return
		}
	}
}

func (t *Tracker) cleanupExpired() {
	cutoff := time.Now().Add(-retention)
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.occurredAt.After(cutoff) {
			kept = append(kept, e)
		}
	}
	t.entries = kept
}

// Count returns the number of retained entries, for diagnostics/tests.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close stops the cleanup loop.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	close(t.stopCh)
	t.wg.Wait()
	close(t.signals)
}
