package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
)

// CreateSession mints a session for userID and, if bearer auth is
// enabled, a token the caller presents on subsequent requests. A
// session created without bearer auth enabled is still usable via the
// X-Session-Id credential kind.
func (s *Service) CreateSession(ctx context.Context, userID, username string, roles []string, ttl time.Duration) (*coretypes.Session, string, *coretypes.ErrorEnvelope) {
	if ttl <= 0 {
		ttl = s.cfg.SessionTTL
	}
	now := time.Now()
	session := &coretypes.Session{
		ID: uuid.NewString(),
		Data: coretypes.SessionData{
			UserID: userID, Username: username, Roles: roles,
			CreatedAt: now, ExpiresAt: now.Add(ttl),
		},
		LastAccessedAt: now,
	}
	if err := s.backends.Sessions.Create(ctx, session); err != nil {
		return nil, "", s.track(envFromStore(err, "create session"), "session.create", userID)
	}

	token, tokenErr := s.gate.IssueToken(&coretypes.Principal{UserID: userID, Username: username, Roles: roles}, ttl)
	if tokenErr != nil {
		// Bearer auth not enabled is expected when the gate is configured
		// for session-id or api-key auth only; the session is still usable.
		token = ""
	}
	return session, token, nil
}

// GetSession returns a session, enforcing that the caller owns it.
func (s *Service) GetSession(ctx context.Context, principal *coretypes.Principal, sessionID string) (*coretypes.Session, *coretypes.ErrorEnvelope) {
	session, err := s.backends.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, s.track(envFromStore(err, "get session"), "session.get", sessionID)
	}
	if session.Data.UserID != principal.UserID {
		return nil, s.track(forbidden("session", sessionID), "session.get", sessionID)
	}
	return session, nil
}

// RefreshSession extends a session's TTL from now.
func (s *Service) RefreshSession(ctx context.Context, principal *coretypes.Principal, sessionID string, ttl time.Duration) (*coretypes.Session, *coretypes.ErrorEnvelope) {
	session, envErr := s.GetSession(ctx, principal, sessionID)
	if envErr != nil {
		return nil, envErr
	}
	if ttl <= 0 {
		ttl = s.cfg.SessionTTL
	}
	session.Data.ExpiresAt = time.Now().Add(ttl)
	if err := s.backends.Sessions.Update(ctx, session); err != nil {
		return nil, s.track(envFromStore(err, "refresh session"), "session.refresh", sessionID)
	}
	return session, nil
}

// RevokeSession deletes a session and every context/page it owns. Best
// effort on the cascade: a page or context that fails to close doesn't
// stop the session record itself from being revoked.
func (s *Service) RevokeSession(ctx context.Context, principal *coretypes.Principal, sessionID string) *coretypes.ErrorEnvelope {
	if _, envErr := s.GetSession(ctx, principal, sessionID); envErr != nil {
		return envErr
	}

	contexts, err := s.backends.Contexts.GetBySessionID(ctx, sessionID)
	if err == nil {
		for _, c := range contexts {
			s.closeContextPages(c.ID, sessionID)
			_ = s.backends.Contexts.Delete(ctx, c.ID)
		}
	}

	if err := s.backends.Sessions.Delete(ctx, sessionID); err != nil {
		return s.track(envFromStore(err, "revoke session"), "session.revoke", sessionID)
	}
	return nil
}

func (s *Service) closeContextPages(contextID, sessionID string) {
	for _, p := range s.pages.ListByContext(contextID) {
		if err := s.pages.Close(p.ID, sessionID); err == nil {
			s.pool.Release(p.BrowserID)
		}
	}
}

func forbidden(resourceType, resourceID string) *coretypes.ErrorEnvelope {
	return errenvelope.New(errenvelope.CodeForbidden, coretypes.CategoryAuthorization, 403).
		WithUserMessage("you do not have access to this resource").
		WithDetail("resourceType", resourceType).
		WithDetail("resourceId", resourceID).
		Build()
}

// envFromStore maps a store-layer sentinel error to an envelope. It is
// shared by every operation that reads through SessionStore/ContextStore.
func envFromStore(err error, op string) *coretypes.ErrorEnvelope {
	switch {
	case err == coretypes.ErrSessionNotFound:
		return errenvelope.New(errenvelope.CodeSessionNotFound, coretypes.CategorySession, 404).WithUserMessage("session not found").Build()
	case err == coretypes.ErrSessionExpired:
		return errenvelope.New(errenvelope.CodeSessionExpired, coretypes.CategorySession, 401).WithUserMessage("session expired").Build()
	case err == coretypes.ErrSessionAlreadyExists:
		return errenvelope.New("SESSION_ALREADY_EXISTS", coretypes.CategoryBusinessLogic, 409).WithUserMessage("session already exists").Build()
	case err == coretypes.ErrContextNotFound:
		return errenvelope.New(errenvelope.CodeContextNotFound, coretypes.CategoryBusinessLogic, 404).WithUserMessage("context not found").Build()
	case err == coretypes.ErrContextForbidden:
		return errenvelope.New(errenvelope.CodeContextForbidden, coretypes.CategoryAuthorization, 403).WithUserMessage("context forbidden").Build()
	case err == coretypes.ErrContextClosed:
		return errenvelope.New("CONTEXT_CLOSED", coretypes.CategoryBusinessLogic, 409).WithUserMessage("context is closed").Build()
	case err == coretypes.ErrStoreUnavailable:
		return errenvelope.New(errenvelope.CodeStoreUnavailable, coretypes.CategorySystem, 503).WithUserMessage("store unavailable").WithSeverity(coretypes.SeverityHigh).ShouldReport().Build()
	default:
		return errenvelope.New(errenvelope.CodeInternal, coretypes.CategorySystem, 500).WithUserMessage("internal error: "+op).WithDetail("cause", err.Error()).Build()
	}
}
