package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

type createContextRequest struct {
	SessionID string                  `json:"sessionId"`
	Name      string                  `json:"name"`
	Config    coretypes.ContextConfig `json:"config"`
}

type contextResponse struct {
	ID        string                  `json:"id"`
	SessionID string                  `json:"sessionId"`
	Name      string                  `json:"name"`
	Status    coretypes.ContextStatus `json:"status"`
	CreatedAt time.Time               `json:"createdAt"`
}

func toContextResponse(c *coretypes.Context) contextResponse {
	return contextResponse{ID: c.ID, SessionID: c.SessionID, Name: c.Name, Status: c.Status, CreatedAt: c.CreatedAt}
}

func (h *Handler) createContext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req createContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, start, badRequest("invalid JSON body"))
		return
	}
	if req.SessionID == "" {
		writeError(w, r, start, badRequest("sessionId is required"))
		return
	}

	autoCtx, envErr := h.svc.CreateContext(r.Context(), principalFrom(r), req.SessionID, req.Name, req.Config)
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusCreated, toContextResponse(autoCtx))
}

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	autoCtx, envErr := h.svc.GetContext(r.Context(), principalFrom(r), r.PathValue("id"))
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusOK, toContextResponse(autoCtx))
}

func (h *Handler) listContexts(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, r, start, badRequest("sessionId query parameter is required"))
		return
	}
	contexts, envErr := h.svc.ListContexts(r.Context(), principalFrom(r), sessionID)
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	out := make([]contextResponse, 0, len(contexts))
	for _, c := range contexts {
		out = append(out, toContextResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"contexts": out})
}

func (h *Handler) deleteContext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if envErr := h.svc.DeleteContext(r.Context(), principalFrom(r), r.PathValue("id")); envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// executeInContext runs one action against a page the request names
// explicitly, scoped under the context for authorization purposes
// (the underlying page lookup still re-verifies ownership itself).
type executeRequest struct {
	PageID     string         `json:"pageId"`
	ActionType string         `json:"actionType"`
	Parameters map[string]any `json:"parameters"`
	TimeoutMs  int            `json:"timeoutMs"`
}

func (h *Handler) executeInContext(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if _, envErr := h.svc.GetContext(r.Context(), principalFrom(r), r.PathValue("id")); envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, start, badRequest("invalid JSON body"))
		return
	}
	if req.PageID == "" || req.ActionType == "" {
		writeError(w, r, start, badRequest("pageId and actionType are required"))
		return
	}

	inv := &coretypes.ActionInvocation{
		ActionType:    coretypes.ActionType(req.ActionType),
		PageID:        req.PageID,
		Parameters:    req.Parameters,
		CorrelationID: requestIDFrom(r),
	}
	if req.TimeoutMs > 0 {
		inv.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}

	result := h.svc.ExecuteAction(r.Context(), principalFrom(r), inv)
	writeActionResult(w, r, start, result)
}

func writeActionResult(w http.ResponseWriter, r *http.Request, start time.Time, result *coretypes.ActionResult) {
	if !result.Success {
		writeError(w, r, start, withRequestID(result.Error, r))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"actionType": result.ActionType,
		"data":       result.Data,
		"duration":   result.Duration.String(),
		"timestamp":  result.Timestamp,
	})
}
