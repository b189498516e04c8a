package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/metrics"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
)

// CreatePage leases a browser instance for the context's session and
// opens a new page on it. The lease is released automatically if page
// creation fails after acquisition.
func (s *Service) CreatePage(ctx context.Context, principal *coretypes.Principal, contextID string, opts pagemanager.CreateOptions) (*coretypes.PageInfo, *coretypes.ErrorEnvelope) {
	autoCtx, envErr := s.getOwnedContext(ctx, principal, contextID)
	if envErr != nil {
		return nil, envErr
	}
	if autoCtx.Status != coretypes.ContextStatusActive {
		return nil, s.track(envFromStore(coretypes.ErrContextClosed, "create page"), "page.create", contextID)
	}

	leased, err := s.pool.Acquire(ctx, autoCtx.SessionID, s.cfg.AcquisitionTimeout)
	if err != nil {
		return nil, s.track(poolErrEnvelope(err), "page.create", contextID)
	}
	metrics.RecordAcquired()

	var info *coretypes.PageInfo
	guardErr := s.pool.Guard(ctx, func(gctx context.Context) error {
		var pageErr error
		info, pageErr = s.pages.CreatePage(gctx, principal, contextID, autoCtx.SessionID, leased.ID, leased.Eng, opts)
		return pageErr
	})
	if guardErr != nil {
		s.pool.Release(leased.ID)
		return nil, s.track(pageErrEnvelope(guardErr), "page.create", contextID)
	}
	return info, nil
}

// GetPage returns a page owned by principal's session.
func (s *Service) GetPage(principal *coretypes.Principal, pageID string) (*coretypes.PageInfo, *coretypes.ErrorEnvelope) {
	_, info, err := s.pages.Get(pageID, principal.SessionID)
	if err != nil {
		return nil, s.track(pageErrEnvelope(err), "page.get", pageID)
	}
	return info, nil
}

// ListPages returns every page under a context.
func (s *Service) ListPages(ctx context.Context, principal *coretypes.Principal, contextID string) ([]coretypes.PageInfo, *coretypes.ErrorEnvelope) {
	if _, envErr := s.getOwnedContext(ctx, principal, contextID); envErr != nil {
		return nil, envErr
	}
	return s.pages.ListByContext(contextID), nil
}

// ClosePage closes a page and releases its leased browser back to the pool.
func (s *Service) ClosePage(principal *coretypes.Principal, pageID string) *coretypes.ErrorEnvelope {
	_, info, err := s.pages.Get(pageID, principal.SessionID)
	if err != nil {
		return s.track(pageErrEnvelope(err), "page.close", pageID)
	}
	if err := s.pages.Close(pageID, principal.SessionID); err != nil {
		return s.track(pageErrEnvelope(err), "page.close", pageID)
	}
	s.pool.Release(info.BrowserID)
	return nil
}

// ExecuteAction runs one action against an already-open page. This is
// the generic entry point every typed convenience below (Navigate,
// Screenshot, Evaluate) and the gRPC/WS/MCP "execute" operations fold
// into.
func (s *Service) ExecuteAction(ctx context.Context, principal *coretypes.Principal, inv *coretypes.ActionInvocation) *coretypes.ActionResult {
	inv.Principal = *principal
	start := time.Now()
	result := s.exec.Execute(ctx, inv)

	status := "ok"
	if !result.Success {
		status = "error"
		if result.Error != nil {
			metrics.RecordError(string(result.Error.Category), result.Error.Code)
		}
	}
	metrics.RecordAction(string(inv.ActionType), status, time.Since(start))
	return result
}

// Navigate, Screenshot, and Evaluate are thin wrappers over
// ExecuteAction for the REST convenience endpoints that don't want
// callers to know the generic action-invocation shape.
func (s *Service) Navigate(ctx context.Context, principal *coretypes.Principal, pageID, url string) *coretypes.ActionResult {
	return s.ExecuteAction(ctx, principal, &coretypes.ActionInvocation{
		ActionType: coretypes.ActionNavigate, PageID: pageID, Parameters: map[string]any{"url": url},
	})
}

func (s *Service) Screenshot(ctx context.Context, principal *coretypes.Principal, pageID string, fullPage bool) *coretypes.ActionResult {
	return s.ExecuteAction(ctx, principal, &coretypes.ActionInvocation{
		ActionType: coretypes.ActionScreenshot, PageID: pageID, Parameters: map[string]any{"fullPage": fullPage},
	})
}

func (s *Service) Evaluate(ctx context.Context, principal *coretypes.Principal, pageID, script string) *coretypes.ActionResult {
	return s.ExecuteAction(ctx, principal, &coretypes.ActionInvocation{
		ActionType: coretypes.ActionEvaluate, PageID: pageID, Parameters: map[string]any{"script": script},
	})
}

func pageErrEnvelope(err error) *coretypes.ErrorEnvelope {
	switch {
	case errors.Is(err, coretypes.ErrPageNotFound):
		return errenvelope.New(errenvelope.CodePageNotFound, coretypes.CategoryBusinessLogic, 404).WithUserMessage("page not found").Build()
	case errors.Is(err, coretypes.ErrPageClosed):
		return errenvelope.New("PAGE_CLOSED", coretypes.CategoryBusinessLogic, 409).WithUserMessage("page is closed").Build()
	case errors.Is(err, coretypes.ErrForbidden):
		return forbidden("page", "")
	case errors.Is(err, coretypes.ErrContextNotFound):
		return errenvelope.New(errenvelope.CodeContextNotFound, coretypes.CategoryBusinessLogic, 404).WithUserMessage("context not found").Build()
	default:
		return errenvelope.New(errenvelope.CodeInternal, coretypes.CategorySystem, 500).WithUserMessage("internal error").WithDetail("cause", err.Error()).Build()
	}
}

func poolErrEnvelope(err error) *coretypes.ErrorEnvelope {
	switch {
	case errors.Is(err, coretypes.ErrAcquisitionTimeout):
		return errenvelope.New(errenvelope.CodeResourceExhausted, coretypes.CategoryResource, 429).
			WithUserMessage("timed out waiting for an available browser").
			WithRetry(true, 3, 0).Build()
	case errors.Is(err, coretypes.ErrBrowserPoolExhausted):
		return errenvelope.New(errenvelope.CodePoolExhausted, coretypes.CategoryResource, 503).
			WithUserMessage("browser pool exhausted").WithRetry(true, 3, 0).Build()
	case errors.Is(err, coretypes.ErrBrowserPoolClosed):
		return errenvelope.New(errenvelope.CodeStoreUnavailable, coretypes.CategorySystem, 503).
			WithUserMessage("browser pool is shutting down").Build()
	default:
		return errenvelope.New(errenvelope.CodeInternal, coretypes.CategorySystem, 500).WithUserMessage("internal error").WithDetail("cause", err.Error()).Build()
	}
}
