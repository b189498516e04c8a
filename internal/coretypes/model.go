// Package coretypes holds the shared data model for the control plane:
// principals, sessions, contexts, pages, browser instances and the
// protocol-agnostic invocation/result/error shapes that flow between them.
package coretypes

import "time"

// Principal is produced by the auth gate and is immutable for the
// duration of one invocation.
type Principal struct {
	UserID    string
	Username  string
	Roles     []string
	SessionID string
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SessionData is the payload stored for one authenticated session.
type SessionData struct {
	UserID    string
	Username  string
	Roles     []string
	CreatedAt time.Time
	ExpiresAt time.Time
	Metadata  map[string]string
}

// Session binds a principal to a TTL.
// Invariant: ExpiresAt > CreatedAt; LastAccessedAt >= CreatedAt.
type Session struct {
	ID             string
	Data           SessionData
	LastAccessedAt time.Time
}

// Expired reports whether the session has passed its TTL as of now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.Data.ExpiresAt)
}

// ContextType distinguishes context flavors (currently only "browser").
type ContextType string

const (
	ContextTypeBrowser ContextType = "browser"
)

// ContextStatus tracks a context's lifecycle.
type ContextStatus string

const (
	ContextStatusActive  ContextStatus = "active"
	ContextStatusClosing ContextStatus = "closing"
	ContextStatusClosed  ContextStatus = "closed"
)

// ContextConfig carries per-context browser configuration.
type ContextConfig struct {
	Viewport        *Viewport
	UserAgent       string
	Locale          string
	ExtraHTTPHeaders map[string]string
	ProxyURL        string
	IgnoreCertErrors bool
}

// Viewport describes a page's rendering surface.
type Viewport struct {
	Width  int
	Height int
}

// Context is a per-session container for pages.
// Invariant: Context.SessionID must reference an existing session whose
// Data.UserID == Context.UserID.
type Context struct {
	ID        string
	SessionID string
	Name      string
	Type      ContextType
	Config    ContextConfig
	Status    ContextStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    string
}

// PageState tracks one page's lifecycle. Closed is absorbing.
type PageState string

const (
	PageStateActive     PageState = "active"
	PageStateNavigating PageState = "navigating"
	PageStateClosed     PageState = "closed"
)

// NavigationEntry records one navigation in a page's history.
type NavigationEntry struct {
	URL       string
	Title     string
	Timestamp time.Time
	Status    int
}

// PageInfo mirrors the externally visible state of one browsing surface.
// Invariant: ContextID and SessionID must match their owning records;
// BrowserID must reference a currently-leased browser instance.
type PageInfo struct {
	ID                string
	ContextID         string
	SessionID         string
	BrowserID         string
	URL               string
	Title             string
	State             PageState
	CreatedAt         time.Time
	LastActivityAt    time.Time
	NavigationHistory []NavigationEntry
	ErrorCount        int
}

// BrowserState is the internal state machine of one pooled engine process.
type BrowserState string

const (
	BrowserStateLaunching BrowserState = "launching"
	BrowserStateIdle      BrowserState = "idle"
	BrowserStateActive    BrowserState = "active"
	BrowserStateUnhealthy BrowserState = "unhealthy"
	BrowserStateRecycling BrowserState = "recycling"
	BrowserStateClosed    BrowserState = "closed"
)

// BrowserInstanceInfo is a point-in-time snapshot of pool-internal browser
// bookkeeping, exposed for metrics/diagnostics. The live instance itself
// lives in the browserpool package; this is the read-only projection.
type BrowserInstanceInfo struct {
	ID         string
	State      BrowserState
	SessionID  string // empty when not leased
	PageCount  int
	CreatedAt  time.Time
	LastUsedAt time.Time
	UseCount   int64
	ErrorCount int64
}

// ActionType enumerates the fixed set of automation actions the executor
// dispatches. Kept as a string type (rather than an int) so per-type
// config maps (timeouts, retry policy) read naturally from JSON/YAML.
type ActionType string

const (
	ActionNavigate     ActionType = "navigate"
	ActionClick        ActionType = "click"
	ActionTypeText     ActionType = "type"
	ActionSelect       ActionType = "select"
	ActionKeyboard     ActionType = "keyboard"
	ActionMouse        ActionType = "mouse"
	ActionScreenshot   ActionType = "screenshot"
	ActionPDF          ActionType = "pdf"
	ActionWait         ActionType = "wait"
	ActionScroll       ActionType = "scroll"
	ActionEvaluate     ActionType = "evaluate"
	ActionUpload       ActionType = "upload"
	ActionCookie       ActionType = "cookie"
	ActionGetAttribute ActionType = "getAttribute"
	ActionContent      ActionType = "content"
)

// ActionInvocation is ephemeral: it never outlives one request.
type ActionInvocation struct {
	ActionType    ActionType
	PageID        string
	Parameters    map[string]any
	Timeout       time.Duration // zero means "use per-type default"
	Principal     Principal
	CorrelationID string
}

// ActionResult is the single response object returned per action.
type ActionResult struct {
	Success   bool
	ActionType ActionType
	Data      map[string]any
	Error     *ErrorEnvelope
	Duration  time.Duration
	Timestamp time.Time
	Metadata  map[string]string
}

// ErrorCategory classifies failures for the taxonomy in spec §7.
type ErrorCategory string

const (
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryValidation     ErrorCategory = "validation"
	CategoryNetwork        ErrorCategory = "network"
	CategoryBrowser        ErrorCategory = "browser"
	CategorySession        ErrorCategory = "session"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryBusinessLogic  ErrorCategory = "business_logic"
	CategorySystem         ErrorCategory = "system"
	CategorySecurity       ErrorCategory = "security"
	CategoryPerformance    ErrorCategory = "performance"
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryResource       ErrorCategory = "resource"
)

// ErrorSeverity ranks how urgently an error needs attention.
type ErrorSeverity string

const (
	SeverityLow      ErrorSeverity = "low"
	SeverityMedium   ErrorSeverity = "medium"
	SeverityHigh     ErrorSeverity = "high"
	SeverityCritical ErrorSeverity = "critical"
)

// RetryConfig tells a caller whether and how to retry.
type RetryConfig struct {
	Retryable   bool
	MaxAttempts int
	RetryAfter  time.Duration
}

// ErrorEnvelope is the canonical, protocol-agnostic error shape. Every
// failure path in the core produces one; the dispatcher projects it onto
// the wire format of the originating protocol.
type ErrorEnvelope struct {
	Code                string
	Category            ErrorCategory
	Severity            ErrorSeverity
	UserMessage         string
	Details             map[string]any
	RecoverySuggestions []string
	RetryConfig         *RetryConfig
	HelpLinks           []string
	Timestamp           time.Time
	RequestID           string
	CorrelationIDs      []string
	Tags                map[string]string
	ContainsSensitiveData bool
	StatusCode          int // HTTP status this envelope corresponds to; drives all four projections
	ShouldReport        bool
}

// Protocol enumerates the four front-ends the dispatcher normalizes.
type Protocol string

const (
	ProtocolREST      Protocol = "rest"
	ProtocolGRPC      Protocol = "grpc"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolMCP       Protocol = "mcp"
)

// Operation holds protocol-specific call identity (gRPC service/method,
// MCP tool name, WS action) alongside its arguments.
type Operation struct {
	Service   string
	Method    string
	Arguments map[string]any
}

// InvocationRecord is the uniform shape every front-end normalizes into
// before anything in the core sees a request.
type InvocationRecord struct {
	Protocol       Protocol
	Method         string // HTTP method for REST, empty otherwise
	ResourcePath   string // REST path
	Operation      *Operation
	Body           map[string]any
	Headers        map[string]string
	Query          map[string]string
	Principal      *Principal // nil until the auth gate runs
	RequestID      string
	CorrelationIDs []string
	SessionID      string // WS/MCP convenience field
}
