package mcpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/internal/pagemanager"
)

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolCall(ctx context.Context, req Request) *Response {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, codeInvalidParams, "invalid tools/call params", nil)
	}

	result, toolErr := s.callTool(ctx, params.Name, params.Arguments)
	if toolErr != nil {
		mcpErr := errenvelope.ToMCP(toolErr)
		return toolErrorResponse(req.ID, mcpErr)
	}
	return resultResponse(req.ID, map[string]any{
		"content": []map[string]any{{"type": "text", "text": mustJSONText(result)}},
		"isError": false,
	})
}

func toolErrorResponse(id json.RawMessage, mcpErr errenvelope.MCPError) *Response {
	return &Response{
		JSONRPC: jsonRPCVersion, ID: id,
		Result: map[string]any{
			"content": []map[string]any{{"type": "text", "text": mcpErr.Message}},
			"isError": true,
		},
	}
}

func mustJSONText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	switch name {
	case "create_session":
		return s.toolCreateSession(ctx, args)
	case "create_context":
		return s.toolCreateContext(ctx, args)
	case "create_page":
		return s.toolCreatePage(ctx, args)
	case "navigate":
		return s.toolNavigate(ctx, args)
	case "screenshot":
		return s.toolScreenshot(ctx, args)
	case "evaluate":
		return s.toolEvaluate(ctx, args)
	case "close_page":
		return s.toolClosePage(args)
	case "get_health":
		return s.toolGetHealth(ctx)
	default:
		return nil, errenvelope.New(errenvelope.CodeUnknownAction, coretypes.CategoryValidation, 404).
			WithUserMessage("unknown tool: " + name).Build()
	}
}

func decodeArgs[T any](args json.RawMessage) (T, *coretypes.ErrorEnvelope) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, errenvelope.New(errenvelope.CodeValidationFailed, coretypes.CategoryValidation, 400).
			WithUserMessage("invalid tool arguments: " + err.Error()).Build()
	}
	return v, nil
}

type createSessionArgs struct {
	UserID     string   `json:"userId"`
	Username   string   `json:"username"`
	Roles      []string `json:"roles"`
	TTLSeconds int      `json:"ttlSeconds"`
}

func (s *Server) toolCreateSession(ctx context.Context, raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[createSessionArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	userID := args.UserID
	if userID == "" {
		userID = s.principal.UserID
	}
	session, token, envErr := s.svc.CreateSession(ctx, userID, args.Username, args.Roles, time.Duration(args.TTLSeconds)*time.Second)
	if envErr != nil {
		return nil, envErr
	}
	return map[string]any{"id": session.ID, "userId": session.Data.UserID, "token": token}, nil
}

type createContextArgs struct {
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
}

func (s *Server) toolCreateContext(ctx context.Context, raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[createContextArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	autoCtx, envErr := s.svc.CreateContext(ctx, s.principal, args.SessionID, args.Name, coretypes.ContextConfig{})
	if envErr != nil {
		return nil, envErr
	}
	return map[string]any{"id": autoCtx.ID, "sessionId": autoCtx.SessionID, "status": string(autoCtx.Status)}, nil
}

type createPageArgs struct {
	ContextID string `json:"contextId"`
}

func (s *Server) toolCreatePage(ctx context.Context, raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[createPageArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	info, envErr := s.svc.CreatePage(ctx, s.principal, args.ContextID, pagemanager.CreateOptions{})
	if envErr != nil {
		return nil, envErr
	}
	return map[string]any{"id": info.ID, "contextId": info.ContextID, "state": string(info.State)}, nil
}

type navigateArgs struct {
	PageID string `json:"pageId"`
	URL    string `json:"url"`
}

func (s *Server) toolNavigate(ctx context.Context, raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[navigateArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	return actionResultToTool(s.svc.Navigate(ctx, s.principal, args.PageID, args.URL))
}

type screenshotArgs struct {
	PageID   string `json:"pageId"`
	FullPage bool   `json:"fullPage"`
}

func (s *Server) toolScreenshot(ctx context.Context, raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[screenshotArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	return actionResultToTool(s.svc.Screenshot(ctx, s.principal, args.PageID, args.FullPage))
}

type evaluateArgs struct {
	PageID string `json:"pageId"`
	Script string `json:"script"`
}

func (s *Server) toolEvaluate(ctx context.Context, raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[evaluateArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	return actionResultToTool(s.svc.Evaluate(ctx, s.principal, args.PageID, args.Script))
}

type closePageArgs struct {
	PageID string `json:"pageId"`
}

func (s *Server) toolClosePage(raw json.RawMessage) (any, *coretypes.ErrorEnvelope) {
	args, envErr := decodeArgs[closePageArgs](raw)
	if envErr != nil {
		return nil, envErr
	}
	if envErr := s.svc.ClosePage(s.principal, args.PageID); envErr != nil {
		return nil, envErr
	}
	return map[string]any{"closed": true}, nil
}

func (s *Server) toolGetHealth(ctx context.Context) (any, *coretypes.ErrorEnvelope) {
	return s.svc.Health(ctx), nil
}

func actionResultToTool(result *coretypes.ActionResult) (any, *coretypes.ErrorEnvelope) {
	if !result.Success {
		return nil, result.Error
	}
	return map[string]any{
		"success": true, "actionType": string(result.ActionType),
		"data": result.Data, "duration": result.Duration.String(),
	}, nil
}
