package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/dispatch"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
)

// Server implements the hand-registered gRPC service described in
// desc.go. Every method takes and returns *structpb.Struct: there is
// no generated stub, so the wire shape is documented here rather than
// in a .proto file.
type Server struct {
	svc *dispatch.Service
}

func NewServer(svc *dispatch.Service) *Server {
	return &Server{svc: svc}
}

func envErrStatus(env *coretypes.ErrorEnvelope) error {
	return status.New(codes.Code(errenvelope.GRPCCode(env.StatusCode)), env.UserMessage).Err()
}

// CreateSession: {userId, username, roles[], ttlSeconds} -> {id, userId, username, createdAt, expiresAt, token}.
func (s *Server) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal := principalFrom(ctx)
	userID := getString(req, "userId")
	if userID == "" {
		userID = principal.UserID
	}
	username := getString(req, "username")
	if username == "" {
		username = principal.Username
	}
	roles := getStringSlice(req, "roles")
	if roles == nil {
		roles = principal.Roles
	}
	ttl := time.Duration(int64(getFloat(req, "ttlSeconds"))) * time.Second

	session, token, envErr := s.svc.CreateSession(ctx, userID, username, roles, ttl)
	if envErr != nil {
		return nil, envErrStatus(envErr)
	}
	return structOf(map[string]any{
		"id": session.ID, "userId": session.Data.UserID, "username": session.Data.Username,
		"createdAt": session.Data.CreatedAt.Format(time.RFC3339), "expiresAt": session.Data.ExpiresAt.Format(time.RFC3339),
		"token": token,
	})
}

// CreateContext: {sessionId, name, config{viewport{width,height}}} -> {id, sessionId, name, status, createdAt}.
func (s *Server) CreateContext(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal := principalFrom(ctx)
	sessionID := getString(req, "sessionId")
	name := getString(req, "name")

	cfg := coretypes.ContextConfig{}
	if sub := getSubMap(req, "config"); sub != nil {
		if vp, ok := sub["viewport"].(map[string]any); ok {
			cfg.Viewport = &coretypes.Viewport{
				Width:  int(toFloat(vp["width"])),
				Height: int(toFloat(vp["height"])),
			}
		}
	}

	autoCtx, envErr := s.svc.CreateContext(ctx, principal, sessionID, name, cfg)
	if envErr != nil {
		return nil, envErrStatus(envErr)
	}
	return structOf(map[string]any{
		"id": autoCtx.ID, "sessionId": autoCtx.SessionID, "name": autoCtx.Name,
		"status": string(autoCtx.Status), "createdAt": autoCtx.CreatedAt.Format(time.RFC3339),
	})
}

// ExecuteCommand: {pageId, actionType, parameters{}} -> {success, actionType, data{}, duration}.
func (s *Server) ExecuteCommand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	principal := principalFrom(ctx)
	pageID := getString(req, "pageId")
	actionType := getString(req, "actionType")
	if pageID == "" || actionType == "" {
		return nil, status.New(codes.InvalidArgument, "pageId and actionType are required").Err()
	}

	inv := &coretypes.ActionInvocation{
		ActionType: coretypes.ActionType(actionType),
		PageID:     pageID,
		Parameters: getSubMap(req, "parameters"),
	}
	result := s.svc.ExecuteAction(ctx, principal, inv)
	return actionResultToStruct(result)
}

// GetHealth: {} -> {status, timestamp, poolSize, queueLength, storeKind}.
func (s *Server) GetHealth(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h := s.svc.Health(ctx)
	return structOf(map[string]any{
		"status": h.Status, "timestamp": h.Timestamp.Format(time.RFC3339),
		"poolSize": h.PoolSize, "queueLength": h.QueueLength, "storeKind": h.StoreKind,
	})
}

// StreamCommand runs a batch of actions against one page in order,
// streaming one response message per action as it completes rather
// than waiting for the whole batch.
func (s *Server) StreamCommand(req *structpb.Struct, stream CommandStream) error {
	ctx := stream.Context()
	principal := principalFrom(ctx)
	pageID := getString(req, "pageId")
	if pageID == "" {
		return status.New(codes.InvalidArgument, "pageId is required").Err()
	}

	actions := req.Fields["actions"].GetListValue()
	if actions == nil {
		return status.New(codes.InvalidArgument, "actions is required").Err()
	}

	for _, item := range actions.Values {
		actionStruct := item.GetStructValue()
		if actionStruct == nil {
			continue
		}
		inv := &coretypes.ActionInvocation{
			ActionType: coretypes.ActionType(getString(actionStruct, "actionType")),
			PageID:     pageID,
			Parameters: getSubMap(actionStruct, "parameters"),
		}
		result := s.svc.ExecuteAction(ctx, principal, inv)
		out, err := actionResultToStruct(result)
		if err != nil {
			return err
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
	return nil
}

func actionResultToStruct(result *coretypes.ActionResult) (*structpb.Struct, error) {
	if !result.Success {
		return nil, envErrStatus(result.Error)
	}
	return structOf(map[string]any{
		"success": true, "actionType": string(result.ActionType),
		"data": result.Data, "duration": result.Duration.String(),
	})
}

func toFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

func getFloat(s *structpb.Struct, key string) float64 {
	if s == nil {
		return 0
	}
	if v, ok := s.Fields[key]; ok {
		return v.GetNumberValue()
	}
	return 0
}
