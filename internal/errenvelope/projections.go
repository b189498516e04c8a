package errenvelope

import (
	"time"

	"github.com/Rorqualx/browserctl/internal/coretypes"
)

// RESTError is the body shape for the REST projection.
type RESTError struct {
	Error RESTErrorDetail `json:"error"`
	Meta  RESTErrorMeta   `json:"meta"`
}

type RESTErrorDetail struct {
	Code                string                       `json:"code"`
	Message             string                       `json:"message"`
	UserMessage         string                       `json:"userMessage"`
	Category            coretypes.ErrorCategory      `json:"category"`
	Severity            coretypes.ErrorSeverity      `json:"severity"`
	Details             map[string]any               `json:"details,omitempty"`
	RecoverySuggestions []string                     `json:"recoverySuggestions,omitempty"`
	RetryConfig         *coretypes.RetryConfig       `json:"retryConfig,omitempty"`
	HelpLinks           []string                     `json:"helpLinks,omitempty"`
	Timestamp           time.Time                    `json:"timestamp"`
	RequestID           string                       `json:"requestId"`
	CorrelationIDs      []string                     `json:"correlationIds,omitempty"`
	Tags                map[string]string            `json:"tags,omitempty"`
}

type RESTErrorMeta struct {
	Version         string `json:"version"`
	Endpoint        string `json:"endpoint,omitempty"`
	Method          string `json:"method,omitempty"`
	RequestDuration string `json:"requestDuration,omitempty"`
}

// RESTSecurityHeaders are the headers the REST projection always sets
// on an error response.
var RESTSecurityHeaders = map[string]string{
	"X-Content-Type-Options": "nosniff",
	"X-Frame-Options":        "DENY",
	"X-XSS-Protection":       "1; mode=block",
	"Cache-Control":          "no-store",
}

// ToREST projects an envelope to the REST wire shape and the HTTP
// status it should be served with.
func ToREST(env *coretypes.ErrorEnvelope, version, endpoint, method string, duration time.Duration) (int, RESTError) {
	details := env.Details
	if env.ContainsSensitiveData {
		details = nil
	}
	body := RESTError{
		Error: RESTErrorDetail{
			Code:                env.Code,
			Message:             env.Code,
			UserMessage:         env.UserMessage,
			Category:            env.Category,
			Severity:            env.Severity,
			Details:             details,
			RecoverySuggestions: env.RecoverySuggestions,
			RetryConfig:         env.RetryConfig,
			HelpLinks:           env.HelpLinks,
			Timestamp:           env.Timestamp,
			RequestID:           env.RequestID,
			CorrelationIDs:      env.CorrelationIDs,
			Tags:                env.Tags,
		},
		Meta: RESTErrorMeta{
			Version:  version,
			Endpoint: endpoint,
			Method:   method,
		},
	}
	if duration > 0 {
		body.Meta.RequestDuration = duration.String()
	}
	status := env.StatusCode
	if status == 0 {
		status = 500
	}
	return status, body
}

// GRPCCode maps an HTTP status to the google.golang.org/grpc/codes
// numeric value (avoiding the import so this package stays usable
// without pulling gRPC into non-gRPC front-ends; internal/grpcapi
// converts this number to codes.Code at its boundary).
func GRPCCode(statusCode int) uint32 {
	switch statusCode {
	case 400:
		return 3 // INVALID_ARGUMENT
	case 401:
		return 16 // UNAUTHENTICATED
	case 403:
		return 7 // PERMISSION_DENIED
	case 404:
		return 5 // NOT_FOUND
	case 409:
		return 10 // ABORTED
	case 412:
		return 9 // FAILED_PRECONDITION
	case 429:
		return 8 // RESOURCE_EXHAUSTED
	case 499:
		return 1 // CANCELLED
	case 501:
		return 12 // UNIMPLEMENTED
	case 503:
		return 14 // UNAVAILABLE
	default:
		return 13 // INTERNAL
	}
}

// WSError is the envelope shape sent over a WebSocket connection.
type WSError struct {
	Type  string        `json:"type"`
	ID    string        `json:"id,omitempty"`
	Error RESTErrorDetail `json:"error"`
	Meta  WSErrorMeta   `json:"meta"`
}

type WSErrorMeta struct {
	ConnectionID string `json:"connectionId"`
	Protocol     string `json:"protocol"`
}

// ToWebSocket projects an envelope to the WebSocket wire shape.
func ToWebSocket(env *coretypes.ErrorEnvelope, msgID, connectionID string) WSError {
	details := env.Details
	if env.ContainsSensitiveData {
		details = nil
	}
	return WSError{
		Type: "error",
		ID:   msgID,
		Error: RESTErrorDetail{
			Code:                env.Code,
			Message:             env.Code,
			UserMessage:         env.UserMessage,
			Category:            env.Category,
			Severity:            env.Severity,
			Details:             details,
			RecoverySuggestions: env.RecoverySuggestions,
			RetryConfig:         env.RetryConfig,
			HelpLinks:           env.HelpLinks,
			Timestamp:           env.Timestamp,
			RequestID:           env.RequestID,
			CorrelationIDs:      env.CorrelationIDs,
			Tags:                env.Tags,
		},
		Meta: WSErrorMeta{ConnectionID: connectionID, Protocol: "websocket"},
	}
}

// MCPError is a JSON-RPC 2.0 error object.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// MCPCode maps an HTTP status to the JSON-RPC error code space used
// by the MCP front-end.
func MCPCode(statusCode int) int {
	switch statusCode {
	case 400:
		return -32602 // Invalid params
	case 401, 403:
		return -32000 // Server error (application-defined)
	case 404:
		return -32601 // Method not found
	default:
		return -32603 // Internal error
	}
}

// ToMCP projects an envelope to a JSON-RPC 2.0 error object.
func ToMCP(env *coretypes.ErrorEnvelope) MCPError {
	details := env.Details
	if env.ContainsSensitiveData {
		details = nil
	}
	return MCPError{
		Code:    MCPCode(env.StatusCode),
		Message: env.UserMessage,
		Data: map[string]any{
			"code":           env.Code,
			"category":       env.Category,
			"severity":       env.Severity,
			"details":        details,
			"requestId":      env.RequestID,
			"correlationIds": env.CorrelationIDs,
			"timestamp":      env.Timestamp,
		},
	}
}
