package wsapi

import (
	"context"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/metrics"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
)

// dispatch routes one authenticated frame to its handler, which queues
// exactly one reply carrying the same ID (pong for ping, otherwise a
// result or error envelope), so a client can correlate requests with
// responses over the single shared connection. The reply is dropped if
// the connection's send buffer is full.
func (s *Server) dispatch(c *conn, env *Envelope) {
	ctx := context.Background()
	start := time.Now()
	operation := string(env.Type)
	if env.Method != "" {
		operation += "." + env.Method
	}
	defer func() { metrics.RecordRequest("ws", operation, "handled", time.Since(start)) }()

	switch env.Type {
	case MessagePing:
		c.trySend(&Envelope{Type: MessagePong, ID: env.ID})
		return
	case MessageSubscribe:
		s.handleSubscribe(c, env)
		return
	case MessageSession:
		s.handleSession(ctx, c, env)
		return
	case MessageContext:
		s.handleContext(ctx, c, env)
		return
	case MessageAction:
		s.handleAction(ctx, c, env)
		return
	default:
		c.trySend(errEnvelope(env.ID, c.id, errenvelope.New(errenvelope.CodeValidationFailed, coretypes.CategoryValidation, 400).
			WithUserMessage("unknown message type").Build()))
	}
}

func (s *Server) handleSubscribe(c *conn, env *Envelope) {
	sub, err := decode[subscribePayload](env.Data)
	if err != nil {
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("invalid subscribe payload")))
		return
	}
	if sub.ContextID != "" {
		c.subscribe(sub.ContextID)
	}
	if sub.PageID != "" {
		c.subscribe(sub.PageID)
	}
	c.trySend(&Envelope{Type: MessageResult, ID: env.ID, Method: "subscribe"})
}

type sessionRequest struct {
	Method    string   `json:"method"`
	UserID    string   `json:"userId"`
	Username  string   `json:"username"`
	Roles     []string `json:"roles"`
	SessionID string   `json:"sessionId"`
	TTLSecs   int      `json:"ttlSeconds"`
}

func (s *Server) handleSession(ctx context.Context, c *conn, env *Envelope) {
	req, err := decode[sessionRequest](env.Data)
	if err != nil {
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("invalid session payload")))
		return
	}

	switch env.Method {
	case "create":
		userID := req.UserID
		if userID == "" {
			userID = c.principal.UserID
		}
		session, token, envErr := s.svc.CreateSession(ctx, userID, req.Username, req.Roles, time.Duration(req.TTLSecs)*time.Second)
		if envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "session.create", map[string]any{
			"id": session.ID, "userId": session.Data.UserID, "token": token,
		}))
	case "get":
		session, envErr := s.svc.GetSession(ctx, c.principal, req.SessionID)
		if envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "session.get", map[string]any{"id": session.ID, "userId": session.Data.UserID}))
	case "revoke":
		if envErr := s.svc.RevokeSession(ctx, c.principal, req.SessionID); envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "session.revoke", nil))
	default:
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("unknown session method")))
	}
}

type contextRequest struct {
	Method    string                  `json:"method"`
	SessionID string                  `json:"sessionId"`
	ContextID string                  `json:"contextId"`
	Name      string                  `json:"name"`
	Config    coretypes.ContextConfig `json:"config"`
}

func (s *Server) handleContext(ctx context.Context, c *conn, env *Envelope) {
	req, err := decode[contextRequest](env.Data)
	if err != nil {
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("invalid context payload")))
		return
	}

	switch env.Method {
	case "create":
		autoCtx, envErr := s.svc.CreateContext(ctx, c.principal, req.SessionID, req.Name, req.Config)
		if envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "context.create", map[string]any{"id": autoCtx.ID, "status": string(autoCtx.Status)}))
	case "delete":
		if envErr := s.svc.DeleteContext(ctx, c.principal, req.ContextID); envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "context.delete", nil))
	default:
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("unknown context method")))
	}
}

type actionRequest struct {
	PageID     string         `json:"pageId"`
	ContextID  string         `json:"contextId"`
	ActionType string         `json:"actionType"`
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) handleAction(ctx context.Context, c *conn, env *Envelope) {
	req, err := decode[actionRequest](env.Data)
	if err != nil {
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("invalid action payload")))
		return
	}

	switch env.Method {
	case "createPage":
		info, envErr := s.svc.CreatePage(ctx, c.principal, req.ContextID, pagemanager.CreateOptions{})
		if envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "action.createPage", map[string]any{"id": info.ID, "contextId": info.ContextID}))
		return
	case "closePage":
		if envErr := s.svc.ClosePage(c.principal, req.PageID); envErr != nil {
			c.trySend(errEnvelope(env.ID, c.id, envErr))
			return
		}
		c.trySend(resultEnvelope(env.ID, "action.closePage", nil))
		return
	}

	if req.PageID == "" || req.ActionType == "" {
		c.trySend(errEnvelope(env.ID, c.id, badRequestEnv("pageId and actionType are required")))
		return
	}
	result := s.svc.ExecuteAction(ctx, c.principal, &coretypes.ActionInvocation{
		ActionType: coretypes.ActionType(req.ActionType), PageID: req.PageID, Parameters: req.Parameters,
	})
	if !result.Success {
		c.trySend(errEnvelope(env.ID, c.id, result.Error))
		return
	}
	c.trySend(resultEnvelope(env.ID, "action.execute", map[string]any{
		"actionType": string(result.ActionType), "data": result.Data, "duration": result.Duration.String(),
	}))

	s.Broadcast(req.PageID, &Envelope{Type: MessageEvent, Method: "action.completed", Data: mustJSON(map[string]any{
		"pageId": req.PageID, "actionType": string(result.ActionType),
	})})
}

func resultEnvelope(id, method string, data map[string]any) *Envelope {
	return &Envelope{Type: MessageResult, ID: id, Method: method, Data: mustJSON(data)}
}

func errEnvelope(id, connectionID string, env *coretypes.ErrorEnvelope) *Envelope {
	wsErr := errenvelope.ToWebSocket(env, id, connectionID)
	return &Envelope{Type: MessageError, ID: id, Data: mustJSON(map[string]any{"error": wsErr.Error, "meta": wsErr.Meta})}
}

func badRequestEnv(msg string) *coretypes.ErrorEnvelope {
	return errenvelope.New(errenvelope.CodeValidationFailed, coretypes.CategoryValidation, 400).WithUserMessage(msg).Build()
}
