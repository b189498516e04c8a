package wsapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/authgate"
	"github.com/Rorqualx/browserctl/internal/config"
	"github.com/Rorqualx/browserctl/internal/dispatch"
)

// Server upgrades HTTP connections to WebSocket and owns the registry
// of live connections used for event broadcast (subscribe/event).
type Server struct {
	svc            *dispatch.Service
	allowedOrigins []string
	upgrader       websocket.Upgrader

	wsRateLimitMPS   float64
	wsRateLimitBurst int

	mu    sync.RWMutex
	conns map[string]*conn
}

func NewServer(svc *dispatch.Service, cfg *config.Config) *Server {
	s := &Server{
		svc:              svc,
		allowedOrigins:   cfg.CORSAllowedOrigins,
		conns:            make(map[string]*conn),
		wsRateLimitMPS:   cfg.WSRateLimitMPS,
		wsRateLimitBurst: cfg.WSRateLimitBurst,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin allows same-host requests and anything in the
// configured CORS allow-list; requests with no Origin header are
// native clients rather than browsers and are allowed through, the
// same distinction the control plane's REST CORS middleware draws.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	log.Warn().Str("origin", origin).Msg("websocket origin rejected")
	return false
}

// ServeHTTP upgrades the request, then requires an auth message as
// the very first frame before accepting anything else.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	ws.SetReadLimit(maxMessageSize)
	ws.SetReadDeadline(time.Now().Add(authTimeout))

	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != MessageAuth {
		s.writeHandshakeError(ws, env.ID, "first message must be of type \"auth\"")
		ws.Close()
		return
	}

	creds, err := decode[authPayload](env.Data)
	if err != nil {
		s.writeHandshakeError(ws, env.ID, "invalid auth payload")
		ws.Close()
		return
	}

	principal, _, authErr := s.svc.Authenticate(r.Context(), authgate.Credentials{
		Authorization: creds.Authorization, APIKey: creds.APIKey, SessionID: creds.SessionID,
	})
	if authErr != nil {
		s.writeHandshakeError(ws, env.ID, "authentication failed")
		ws.Close()
		return
	}

	c := newConn(uuid.NewString(), principal, ws, s)
	s.register(c)
	c.start()
	c.trySend(&Envelope{Type: MessageResult, ID: env.ID, Method: "auth", Data: mustJSON(map[string]any{"connectionId": c.id})})
}

func (s *Server) writeHandshakeError(ws *websocket.Conn, id, msg string) {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	ws.WriteJSON(Envelope{Type: MessageError, ID: id, Data: mustJSON(map[string]any{"message": msg})})
}

func (s *Server) register(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) unregister(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
}

// Broadcast fans an event out to every connection subscribed to key
// (a contextID or pageID), used to push page/action state changes to
// clients that asked for them via a "subscribe" message.
func (s *Server) Broadcast(key string, env *Envelope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.conns {
		if c.subscribedTo(key) {
			c.trySend(env)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("{}")
	}
	return b
}
