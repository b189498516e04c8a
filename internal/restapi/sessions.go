package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

type createSessionRequest struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	TTLSecs  int       `json:"ttlSeconds"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Token     string    `json:"token,omitempty"`
}

func toSessionResponse(s *coretypes.Session, token string) sessionResponse {
	return sessionResponse{
		ID: s.ID, UserID: s.Data.UserID, Username: s.Data.Username,
		CreatedAt: s.Data.CreatedAt, ExpiresAt: s.Data.ExpiresAt, Token: token,
	}
}

// createSession mints a session for the caller. A credential (bearer,
// api key, or session id) must already be presented; a service
// calling with an api key may mint sessions on behalf of any userId,
// a bearer/session caller always gets a session for their own.
func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	principal := principalFrom(r)

	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, start, badRequest("invalid JSON body"))
			return
		}
	}

	userID := principal.UserID
	username := principal.Username
	roles := principal.Roles
	if req.UserID != "" {
		userID = req.UserID
		username = req.Username
		roles = req.Roles
	}

	ttl := time.Duration(req.TTLSecs) * time.Second
	session, token, envErr := h.svc.CreateSession(r.Context(), userID, username, roles, ttl)
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session, token))
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	session, envErr := h.svc.GetSession(r.Context(), principalFrom(r), r.PathValue("id"))
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, ""))
}

func (h *Handler) refreshSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	session, envErr := h.svc.RefreshSession(r.Context(), principalFrom(r), r.PathValue("id"), 0)
	if envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session, ""))
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if envErr := h.svc.RevokeSession(r.Context(), principalFrom(r), r.PathValue("id")); envErr != nil {
		writeError(w, r, start, withRequestID(envErr, r))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
