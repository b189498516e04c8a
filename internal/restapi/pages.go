package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
)

type createPageRequest struct {
	ContextID        string             `json:"contextId"`
	Viewport         *coretypes.Viewport `json:"viewport"`
	UserAgent        string             `json:"userAgent"`
	Locale           string             `json:"locale"`
	ExtraHTTPHeaders map[string]string  `json:"extraHttpHeaders"`
}

type pageResponse struct {
	ID             string             `json:"id"`
	ContextID      string             `json:"contextId"`
	BrowserID      string             `json:"browserId"`
	URL            string             `json:"url"`
	Title          string             `json:"title"`
	State          coretypes.PageState `json:"state"`
	CreatedAt      time.Time          `json:"createdAt"`
	LastActivityAt time.Time          `json:"lastActivityAt"`
}

func toPageResponse(p *coretypes.PageInfo) pageResponse {
	return pageResponse{
		ID: p.ID, ContextID: p.ContextID, BrowserID: p.BrowserID,
		URL: p.URL, Title: p.Title, State: p.State,
		CreatedAt: p.CreatedAt, LastActivityAt: p.LastActivityAt,
	}
}

func (h *Handler) createPage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req createPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, start, badRequest("invalid JSON body"))
		return
	}
	if req.ContextID == "" {
		writeError(w, r, start, badRequest("contextId is required"))
		return
	}

	opts := pagemanager.CreateOptions{
		Viewport: req.Viewport, UserAgent: req.UserAgent,
		Locale: req.Locale, ExtraHTTPHeaders: req.ExtraHTTPHeaders,
	}
	info, envErr := h.svc.CreatePage(r.Context(), principalFrom(r), req.ContextID, opts)
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusCreated, toPageResponse(info))
}

func (h *Handler) getPage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	info, envErr := h.svc.GetPage(principalFrom(r), r.PathValue("id"))
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(info))
}

func (h *Handler) listPages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	contextID := r.URL.Query().Get("contextId")
	if contextID == "" {
		writeError(w, r, start, badRequest("contextId query parameter is required"))
		return
	}
	pages, envErr := h.svc.ListPages(r.Context(), principalFrom(r), contextID)
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	out := make([]pageResponse, 0, len(pages))
	for i := range pages {
		out = append(out, toPageResponse(&pages[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": out})
}

func (h *Handler) closePage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if envErr := h.svc.ClosePage(principalFrom(r), r.PathValue("id")); envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type navigateRequest struct {
	URL string `json:"url"`
}

func (h *Handler) navigatePage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, start, badRequest("invalid JSON body"))
		return
	}
	if req.URL == "" {
		writeError(w, r, start, badRequest("url is required"))
		return
	}
	result := h.svc.Navigate(r.Context(), principalFrom(r), r.PathValue("id"), req.URL)
	writeActionResult(w, r, start, result)
}

type screenshotRequest struct {
	FullPage bool `json:"fullPage"`
}

func (h *Handler) screenshotPage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req screenshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, start, badRequest("invalid JSON body"))
			return
		}
	}
	result := h.svc.Screenshot(r.Context(), principalFrom(r), r.PathValue("id"), req.FullPage)
	writeActionResult(w, r, start, result)
}

type evaluateRequest struct {
	Script string `json:"script"`
}

func (h *Handler) evaluatePage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, start, badRequest("invalid JSON body"))
		return
	}
	if req.Script == "" {
		writeError(w, r, start, badRequest("script is required"))
		return
	}
	result := h.svc.Evaluate(r.Context(), principalFrom(r), r.PathValue("id"), req.Script)
	writeActionResult(w, r, start, result)
}
