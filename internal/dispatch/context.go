package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// CreateContext opens a new automation context under sessionID, after
// verifying the session belongs to principal.
func (s *Service) CreateContext(ctx context.Context, principal *coretypes.Principal, sessionID, name string, cfg coretypes.ContextConfig) (*coretypes.Context, *coretypes.ErrorEnvelope) {
	if _, envErr := s.GetSession(ctx, principal, sessionID); envErr != nil {
		return nil, envErr
	}

	now := time.Now()
	autoCtx := &coretypes.Context{
		ID: uuid.NewString(), SessionID: sessionID, Name: name,
		Type: coretypes.ContextTypeBrowser, Config: cfg,
		Status: coretypes.ContextStatusActive, UserID: principal.UserID,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.backends.Contexts.Create(ctx, autoCtx); err != nil {
		return nil, s.track(envFromStore(err, "create context"), "context.create", sessionID)
	}
	return autoCtx, nil
}

// getOwnedContext is the shared ownership check every context/page
// operation re-runs: the context must exist and its UserID must match
// the caller's.
func (s *Service) getOwnedContext(ctx context.Context, principal *coretypes.Principal, contextID string) (*coretypes.Context, *coretypes.ErrorEnvelope) {
	autoCtx, err := s.backends.Contexts.Get(ctx, contextID)
	if err != nil {
		return nil, s.track(envFromStore(err, "get context"), "context.get", contextID)
	}
	if autoCtx.UserID != principal.UserID {
		return nil, s.track(forbidden("context", contextID), "context.get", contextID)
	}
	return autoCtx, nil
}

// GetContext returns one context owned by principal.
func (s *Service) GetContext(ctx context.Context, principal *coretypes.Principal, contextID string) (*coretypes.Context, *coretypes.ErrorEnvelope) {
	return s.getOwnedContext(ctx, principal, contextID)
}

// ListContexts returns every context under sessionID owned by principal.
func (s *Service) ListContexts(ctx context.Context, principal *coretypes.Principal, sessionID string) ([]*coretypes.Context, *coretypes.ErrorEnvelope) {
	if _, envErr := s.GetSession(ctx, principal, sessionID); envErr != nil {
		return nil, envErr
	}
	contexts, err := s.backends.Contexts.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, s.track(envFromStore(err, "list contexts"), "context.list", sessionID)
	}
	return contexts, nil
}

// DeleteContext closes every page the context owns, releasing their
// leased browsers back to the pool, then deletes the context record.
func (s *Service) DeleteContext(ctx context.Context, principal *coretypes.Principal, contextID string) *coretypes.ErrorEnvelope {
	autoCtx, envErr := s.getOwnedContext(ctx, principal, contextID)
	if envErr != nil {
		return envErr
	}

	s.closeContextPages(contextID, autoCtx.SessionID)

	if err := s.backends.Contexts.Delete(ctx, contextID); err != nil {
		return s.track(envFromStore(err, "delete context"), "context.delete", contextID)
	}
	return nil
}
