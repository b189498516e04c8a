package wsapi

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	authTimeout    = 10 * time.Second
	sendBufferSize = 256
)

// conn is one authenticated WebSocket session. It owns a read pump and
// a write pump running on their own goroutines, coordinated only
// through the send channel and closeOnce, following the standard
// gorilla/websocket two-pump shape.
type conn struct {
	id        string
	principal *coretypes.Principal
	ws        *websocket.Conn
	send      chan *Envelope
	server    *Server
	limiter   *rate.Limiter

	closeOnce sync.Once
	closeCh   chan struct{}

	mu            sync.Mutex
	subscriptions map[string]bool // contextID/pageID keys this conn wants events for
}

func newConn(id string, principal *coretypes.Principal, ws *websocket.Conn, server *Server) *conn {
	return &conn{
		id: id, principal: principal, ws: ws, server: server,
		send: make(chan *Envelope, sendBufferSize), closeCh: make(chan struct{}),
		subscriptions: make(map[string]bool),
		limiter:       rate.NewLimiter(rate.Limit(server.wsRateLimitMPS), server.wsRateLimitBurst),
	}
}

func (c *conn) start() {
	go c.writePump()
	go c.readPump()
}

func (c *conn) close() {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.ws.Close()
		c.server.unregister(c)
	})
}

// trySend queues env for delivery, dropping it if the buffer is full
// rather than blocking the caller (used for broadcast events, where a
// slow reader must never stall the rest of the pool).
func (c *conn) trySend(env *Envelope) bool {
	select {
	case c.send <- env:
		return true
	case <-c.closeCh:
		return false
	default:
		log.Warn().Str("connectionId", c.id).Str("type", string(env.Type)).Msg("websocket send buffer full, dropping message")
		return false
	}
}

func (c *conn) subscribe(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[key] = true
}

func (c *conn) subscribedTo(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[key]
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeCh:
			return
		}
	}
}

func (c *conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connectionId", c.id).Msg("websocket read error")
			}
			return
		}
		if !c.limiter.Allow() {
			c.trySend(&Envelope{Type: MessageError, ID: env.ID, Data: mustJSON(map[string]any{"message": "rate limit exceeded"})})
			continue
		}
		c.server.dispatch(c, &env)
	}
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}
