// Package errenvelope builds the canonical ErrorEnvelope and projects
// it onto each of the four front-end wire formats.
package errenvelope

import (
	"time"

	"github.com/google/uuid"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// Builder accumulates envelope fields with a fluent API so handlers
// construct envelopes without repeating struct-literal boilerplate.
type Builder struct {
	env coretypes.ErrorEnvelope
}

// New starts a builder for the given stable error code and status
// code, stamping the timestamp and a fresh request id if none is set
// later via WithRequestID.
func New(code string, category coretypes.ErrorCategory, statusCode int) *Builder {
	return &Builder{env: coretypes.ErrorEnvelope{
		Code:       code,
		Category:   category,
		Severity:   coretypes.SeverityMedium,
		StatusCode: statusCode,
		Timestamp:  time.Now().UTC(),
		Details:    map[string]any{},
		Tags:       map[string]string{},
	}}
}

func (b *Builder) WithSeverity(s coretypes.ErrorSeverity) *Builder {
	b.env.Severity = s
	return b
}

func (b *Builder) WithUserMessage(msg string) *Builder {
	b.env.UserMessage = msg
	return b
}

func (b *Builder) WithDetail(key string, value any) *Builder {
	if b.env.Details == nil {
		b.env.Details = map[string]any{}
	}
	b.env.Details[key] = value
	return b
}

func (b *Builder) WithRecoverySuggestion(s string) *Builder {
	b.env.RecoverySuggestions = append(b.env.RecoverySuggestions, s)
	return b
}

func (b *Builder) WithRetry(retryable bool, maxAttempts int, retryAfter time.Duration) *Builder {
	b.env.RetryConfig = &coretypes.RetryConfig{Retryable: retryable, MaxAttempts: maxAttempts, RetryAfter: retryAfter}
	return b
}

func (b *Builder) WithHelpLink(link string) *Builder {
	b.env.HelpLinks = append(b.env.HelpLinks, link)
	return b
}

func (b *Builder) WithRequestID(id string) *Builder {
	b.env.RequestID = id
	return b
}

func (b *Builder) WithCorrelationID(id string) *Builder {
	b.env.CorrelationIDs = append(b.env.CorrelationIDs, id)
	return b
}

func (b *Builder) WithTag(key, value string) *Builder {
	if b.env.Tags == nil {
		b.env.Tags = map[string]string{}
	}
	b.env.Tags[key] = value
	return b
}

func (b *Builder) WithSensitiveData() *Builder {
	b.env.ContainsSensitiveData = true
	return b
}

func (b *Builder) ShouldReport() *Builder {
	b.env.ShouldReport = true
	return b
}

// Build finalizes the envelope, assigning a request id if none was set.
func (b *Builder) Build() *coretypes.ErrorEnvelope {
	if b.env.RequestID == "" {
		b.env.RequestID = uuid.NewString()
	}
	env := b.env
	return &env
}

// Common error codes used across components. Keeping them here (rather
// than duplicated per package) keeps the fingerprinting in the tracker
// consistent.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodeSessionExpired      = "SESSION_EXPIRED"
	CodeContextNotFound     = "CONTEXT_NOT_FOUND"
	CodeContextForbidden    = "CONTEXT_FORBIDDEN"
	CodePageNotFound        = "PAGE_NOT_FOUND"
	CodePoolExhausted       = "POOL_EXHAUSTED"
	CodeResourceExhausted   = "RESOURCE_EXHAUSTED"
	CodeBrowserUnhealthy    = "BROWSER_UNHEALTHY"
	CodeCircuitOpen         = "CIRCUIT_OPEN"
	CodeActionTimeout       = "ACTION_TIMEOUT"
	CodeUnknownAction       = "UNKNOWN_ACTION"
	CodeRateLimited         = "RATE_LIMITED"
	CodeCSRFRejected        = "CSRF_REJECTED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeStoreUnavailable    = "STORE_UNAVAILABLE"
	CodeSecurityViolation   = "SECURITY_VIOLATION"
)

// FromError builds a best-effort envelope from an arbitrary error when
// no component-specific envelope was already produced. Used as the
// final catch-all in the dispatcher so no panic/unexpected error ever
// reaches a wire format unwrapped.
func FromError(err error) *coretypes.ErrorEnvelope {
	b := New(CodeInternal, coretypes.CategorySystem, 500).
		WithSeverity(coretypes.SeverityHigh).
		WithUserMessage("an internal error occurred").
		ShouldReport()
	if err != nil {
		b.WithDetail("cause", err.Error())
	}
	return b.Build()
}
