// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxBrowserPoolSize = 50
	maxMaxSessions     = 10000
	maxMaxContexts     = 10000
	maxTimeout         = 10 * time.Minute
	maxRateLimitRPM    = 10000
	minJWTSecretLength = 32
)

// StoreStrategy selects the backend for sessions/contexts.
type StoreStrategy string

const (
	StoreStrategyAuto   StoreStrategy = "auto"
	StoreStrategyRedis  StoreStrategy = "redis"
	StoreStrategyMemory StoreStrategy = "memory"
)

// MCPTransport selects how the MCP front-end is exposed.
type MCPTransport string

const (
	MCPTransportStdio MCPTransport = "stdio"
	MCPTransportHTTP  MCPTransport = "http"
	MCPTransportNone  MCPTransport = "disabled"
)

// Config holds all application configuration, loaded from environment
// variables at startup.
type Config struct {
	// Server
	Host     string
	Port     int
	GRPCPort int
	NodeEnv  string

	// Browser engine
	Headless    bool
	BrowserPath string

	// Pool settings - critical for memory efficiency
	MinBrowsers         int
	MaxBrowsers         int
	MaxPagesPerBrowser  int
	AcquisitionTimeout  time.Duration
	IdleTimeout         time.Duration
	HealthCheckInterval time.Duration
	BrowserMaxAge       time.Duration
	PoolScalingStrategy string

	// Session / context settings
	SessionTTL             time.Duration
	SessionCleanupInterval time.Duration
	MaxSessions            int
	MaxContexts            int

	// Timeouts
	DefaultActionTimeout time.Duration
	MaxActionTimeout     time.Duration

	// Proxy defaults
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string

	// Logging
	LogLevel string
	LogJSON  bool

	// Profiling
	PProfEnabled  bool
	PProfPort     int
	PProfBindAddr string

	// Security
	RateLimitEnabled   bool
	RateLimitRPM       int
	TrustProxy         bool
	IgnoreCertErrors   bool
	CORSAllowedOrigins []string
	AllowLocalProxies  bool

	// Per-connection WebSocket message throttling
	WSRateLimitMPS   float64
	WSRateLimitBurst int

	// Authentication
	JWTEnabled    bool
	JWTSecret     string
	APIKeyEnabled bool
	APIKey        string

	// Session/context store backend
	SessionStore StoreStrategy
	RedisURL     string
	RedisTimeout time.Duration

	// Database (auxiliary persistence, e.g. audit/invocation history)
	DatabaseType     string
	DatabasePath     string
	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseSSL      bool
	DatabasePoolMin  int
	DatabasePoolMax  int

	// MCP front-end
	MCPTransport MCPTransport

	// Validator hot-reload
	ActionSchemasPath string
	SchemaHotReload   bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		Host:     getEnvString("HOST", "127.0.0.1"),
		Port:     getEnvInt("PORT", 8080),
		GRPCPort: getEnvInt("GRPC_PORT", 9090),
		NodeEnv:  getEnvString("NODE_ENV", "development"),

		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),

		MinBrowsers:         getEnvInt("MIN_BROWSERS", 1),
		MaxBrowsers:         getEnvInt("MAX_BROWSERS", 5),
		MaxPagesPerBrowser:  getEnvInt("MAX_PAGES_PER_BROWSER", 10),
		AcquisitionTimeout:  getEnvDuration("ACQUISITION_TIMEOUT", 30*time.Second),
		IdleTimeout:         getEnvDuration("IDLE_TIMEOUT", 5*time.Minute),
		HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 1*time.Minute),
		BrowserMaxAge:       getEnvDuration("BROWSER_MAX_AGE", 30*time.Minute),
		PoolScalingStrategy: getEnvString("POOL_SCALING_STRATEGY", "balanced"),

		SessionTTL:             getEnvDuration("SESSION_TTL", 1*time.Hour),
		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Minute),
		MaxSessions:            getEnvInt("MAX_SESSIONS", 1000),
		MaxContexts:            getEnvInt("MAX_CONTEXTS", 5000),

		DefaultActionTimeout: getEnvDuration("DEFAULT_ACTION_TIMEOUT", 30*time.Second),
		MaxActionTimeout:     getEnvDuration("MAX_ACTION_TIMEOUT", 120*time.Second),

		ProxyURL:      getEnvString("PROXY_URL", ""),
		ProxyUsername: getEnvString("PROXY_USERNAME", ""),
		ProxyPassword: getEnvString("PROXY_PASSWORD", ""),

		LogLevel: getEnvString("LOG_LEVEL", "info"),
		LogJSON:  getEnvBool("LOG_JSON", false),

		PProfEnabled:  getEnvBool("PPROF_ENABLED", false),
		PProfPort:     getEnvInt("PPROF_PORT", 6060),
		PProfBindAddr: getEnvString("PPROF_BIND_ADDR", "127.0.0.1"),

		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 120),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		IgnoreCertErrors:   getEnvBool("IGNORE_CERT_ERRORS", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),
		AllowLocalProxies:  getEnvBool("ALLOW_LOCAL_PROXIES", false),

		WSRateLimitMPS:   getEnvFloat("WS_RATE_LIMIT_MPS", 20),
		WSRateLimitBurst: getEnvInt("WS_RATE_LIMIT_BURST", 40),

		JWTEnabled:    getEnvBool("JWT_ENABLED", true),
		JWTSecret:     getEnvString("JWT_SECRET", ""),
		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		SessionStore: StoreStrategy(getEnvString("SESSION_STORE", string(StoreStrategyAuto))),
		RedisURL:     getEnvString("REDIS_URL", "redis://127.0.0.1:6379/0"),
		RedisTimeout: getEnvDuration("REDIS_TIMEOUT", 5*time.Second),

		DatabaseType:     getEnvString("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnvString("DATABASE_PATH", "./data/controlplane.db"),
		DatabaseHost:     getEnvString("DATABASE_HOST", "127.0.0.1"),
		DatabasePort:     getEnvInt("DATABASE_PORT", 5432),
		DatabaseName:     getEnvString("DATABASE_NAME", "controlplane"),
		DatabaseUser:     getEnvString("DATABASE_USER", ""),
		DatabasePassword: getEnvString("DATABASE_PASSWORD", ""),
		DatabaseSSL:      getEnvBool("DATABASE_SSL", true),
		DatabasePoolMin:  getEnvInt("DATABASE_POOL_MIN", 1),
		DatabasePoolMax:  getEnvInt("DATABASE_POOL_MAX", 10),

		MCPTransport: MCPTransport(getEnvString("MCP_TRANSPORT", string(MCPTransportStdio))),

		ActionSchemasPath: getEnvString("ACTION_SCHEMAS_PATH", ""),
		SchemaHotReload:   getEnvBool("ACTION_SCHEMAS_HOT_RELOAD", false),
	}
}

// HasDefaultProxy returns true if a default proxy is configured.
func (c *Config) HasDefaultProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and corrects invalid ones to
// sensible defaults, logging a warning for every correction.
func (c *Config) Validate() {
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("invalid PORT, using default 8080")
		c.Port = 8080
	}
	if c.GRPCPort < 0 || c.GRPCPort > 65535 {
		log.Warn().Int("port", c.GRPCPort).Msg("invalid GRPC_PORT, using default 9090")
		c.GRPCPort = 9090
	}
	if c.Port == c.GRPCPort {
		log.Warn().Int("port", c.Port).Msg("PORT and GRPC_PORT collide, bumping GRPC_PORT by 1")
		c.GRPCPort++
	}

	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().Str("path", c.BrowserPath).Msg("BROWSER_PATH contains path traversal sequence, ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().Str("path", c.BrowserPath).Msg("BROWSER_PATH should be an absolute path")
		}
	}

	if c.MaxBrowsers < 1 {
		log.Warn().Int("max", c.MaxBrowsers).Msg("invalid MAX_BROWSERS, using default 5")
		c.MaxBrowsers = 5
	} else if c.MaxBrowsers > maxBrowserPoolSize {
		log.Warn().Int("max", c.MaxBrowsers).Int("cap", maxBrowserPoolSize).Msg("MAX_BROWSERS too large, capping")
		c.MaxBrowsers = maxBrowserPoolSize
	}

	if c.MaxPagesPerBrowser < 1 {
		log.Warn().Int("max", c.MaxPagesPerBrowser).Msg("invalid MAX_PAGES_PER_BROWSER, using default 10")
		c.MaxPagesPerBrowser = 10
	}

	if c.MinBrowsers < 1 {
		log.Warn().Int("min", c.MinBrowsers).Msg("invalid MIN_BROWSERS, using 1")
		c.MinBrowsers = 1
	}
	if c.MinBrowsers > c.MaxBrowsers {
		log.Warn().Int("min", c.MinBrowsers).Int("max", c.MaxBrowsers).Msg("MIN_BROWSERS exceeds MAX_BROWSERS, clamping")
		c.MinBrowsers = c.MaxBrowsers
	}

	switch c.PoolScalingStrategy {
	case "conservative", "balanced", "aggressive":
	default:
		log.Warn().Str("strategy", c.PoolScalingStrategy).Msg("unknown POOL_SCALING_STRATEGY, using balanced")
		c.PoolScalingStrategy = "balanced"
	}

	if c.MaxActionTimeout < time.Second {
		log.Warn().Dur("timeout", c.MaxActionTimeout).Msg("MAX_ACTION_TIMEOUT too short, using 120s")
		c.MaxActionTimeout = 120 * time.Second
	}
	if c.MaxActionTimeout > maxTimeout {
		log.Warn().Dur("timeout", c.MaxActionTimeout).Dur("cap", maxTimeout).Msg("MAX_ACTION_TIMEOUT too high, capping")
		c.MaxActionTimeout = maxTimeout
	}
	if c.DefaultActionTimeout < time.Second {
		log.Warn().Dur("timeout", c.DefaultActionTimeout).Msg("DEFAULT_ACTION_TIMEOUT too short, using 30s")
		c.DefaultActionTimeout = 30 * time.Second
	}
	if c.DefaultActionTimeout > c.MaxActionTimeout {
		log.Warn().Dur("default", c.DefaultActionTimeout).Dur("max", c.MaxActionTimeout).Msg("DEFAULT_ACTION_TIMEOUT exceeds max, clamping")
		c.DefaultActionTimeout = c.MaxActionTimeout
	}

	if c.MaxSessions < 1 {
		log.Warn().Int("max", c.MaxSessions).Msg("invalid MAX_SESSIONS, using 1000")
		c.MaxSessions = 1000
	} else if c.MaxSessions > maxMaxSessions {
		log.Warn().Int("max", c.MaxSessions).Int("cap", maxMaxSessions).Msg("MAX_SESSIONS too high, capping")
		c.MaxSessions = maxMaxSessions
	}
	if c.MaxContexts < 1 {
		log.Warn().Int("max", c.MaxContexts).Msg("invalid MAX_CONTEXTS, using 5000")
		c.MaxContexts = 5000
	} else if c.MaxContexts > maxMaxContexts {
		log.Warn().Int("max", c.MaxContexts).Int("cap", maxMaxContexts).Msg("MAX_CONTEXTS too high, capping")
		c.MaxContexts = maxMaxContexts
	}

	const minSessionTTL = 1 * time.Minute
	const maxSessionTTL = 24 * time.Hour
	if c.SessionTTL < minSessionTTL {
		log.Warn().Dur("ttl", c.SessionTTL).Msg("SESSION_TTL too short, using minimum")
		c.SessionTTL = minSessionTTL
	} else if c.SessionTTL > maxSessionTTL {
		log.Warn().Dur("ttl", c.SessionTTL).Msg("SESSION_TTL too long, using maximum")
		c.SessionTTL = maxSessionTTL
	}

	const minCleanupInterval = 10 * time.Second
	const maxCleanupInterval = 1 * time.Hour
	if c.SessionCleanupInterval < minCleanupInterval {
		log.Warn().Dur("interval", c.SessionCleanupInterval).Msg("SESSION_CLEANUP_INTERVAL too short, using minimum")
		c.SessionCleanupInterval = minCleanupInterval
	} else if c.SessionCleanupInterval > maxCleanupInterval {
		log.Warn().Dur("interval", c.SessionCleanupInterval).Msg("SESSION_CLEANUP_INTERVAL too long, using maximum")
		c.SessionCleanupInterval = maxCleanupInterval
	}
	if c.SessionCleanupInterval >= c.SessionTTL {
		log.Warn().Dur("cleanup_interval", c.SessionCleanupInterval).Dur("ttl", c.SessionTTL).
			Msg("SESSION_CLEANUP_INTERVAL should be less than SESSION_TTL for timely cleanup")
	}

	const minAcqTimeout = 1 * time.Second
	const maxAcqTimeout = 5 * time.Minute
	if c.AcquisitionTimeout < minAcqTimeout {
		log.Warn().Dur("timeout", c.AcquisitionTimeout).Msg("ACQUISITION_TIMEOUT too short, using minimum")
		c.AcquisitionTimeout = minAcqTimeout
	} else if c.AcquisitionTimeout > maxAcqTimeout {
		log.Warn().Dur("timeout", c.AcquisitionTimeout).Msg("ACQUISITION_TIMEOUT too long, using maximum")
		c.AcquisitionTimeout = maxAcqTimeout
	}

	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("invalid RATE_LIMIT_RPM, using 120")
			c.RateLimitRPM = 120
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().Int("rpm", c.RateLimitRPM).Int("cap", maxRateLimitRPM).Msg("RATE_LIMIT_RPM too high, capping")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	if c.WSRateLimitMPS <= 0 {
		log.Warn().Float64("mps", c.WSRateLimitMPS).Msg("invalid WS_RATE_LIMIT_MPS, using 20")
		c.WSRateLimitMPS = 20
	}
	if c.WSRateLimitBurst < 1 {
		log.Warn().Int("burst", c.WSRateLimitBurst).Msg("invalid WS_RATE_LIMIT_BURST, using 40")
		c.WSRateLimitBurst = 40
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("invalid LOG_LEVEL, using 'info'")
		c.LogLevel = "info"
	}

	if c.PProfEnabled && c.PProfBindAddr != "127.0.0.1" && c.PProfBindAddr != "localhost" {
		log.Warn().Str("addr", c.PProfBindAddr).Msg("pprof exposed on non-localhost address - security risk")
	}

	if len(c.CORSAllowedOrigins) == 0 {
		log.Warn().Msg("CORS_ALLOWED_ORIGINS not set - allowing all origins")
	}

	if c.IgnoreCertErrors {
		if c.ProxyURL == "" {
			log.Warn().Msg("IGNORE_CERT_ERRORS enabled without a proxy - exposes to MITM attacks")
		} else {
			log.Info().Msg("IGNORE_CERT_ERRORS enabled for proxy compatibility")
		}
	}

	if c.ProxyURL != "" {
		if !strings.Contains(c.ProxyURL, "://") {
			log.Error().Str("proxy_url", c.ProxyURL).Msg("PROXY_URL missing scheme")
		} else {
			scheme := strings.ToLower(strings.Split(c.ProxyURL, "://")[0])
			validSchemes := map[string]bool{"http": true, "https": true, "socks4": true, "socks5": true}
			if !validSchemes[scheme] {
				log.Error().Str("proxy_url", c.ProxyURL).Str("scheme", scheme).Msg("PROXY_URL has invalid scheme")
			}
			if strings.Contains(c.ProxyURL, "@") {
				log.Warn().Msg("PROXY_URL contains embedded credentials, use PROXY_USERNAME/PROXY_PASSWORD instead")
			}
		}
	}
	if c.ProxyUsername != "" && c.ProxyPassword == "" {
		log.Warn().Msg("PROXY_USERNAME set but PROXY_PASSWORD is empty")
	}
	if c.ProxyPassword != "" && c.ProxyUsername == "" {
		log.Warn().Msg("PROXY_PASSWORD set but PROXY_USERNAME is empty")
	}

	c.validateAuthConfig()
	c.validateStoreConfig()
	c.validateMCPConfig()

	if c.ActionSchemasPath != "" && strings.Contains(c.ActionSchemasPath, "..") {
		log.Error().Str("path", c.ActionSchemasPath).Msg("ACTION_SCHEMAS_PATH contains path traversal sequence, ignoring")
		c.ActionSchemasPath = ""
	}
	if c.SchemaHotReload && c.ActionSchemasPath == "" {
		log.Warn().Msg("ACTION_SCHEMAS_HOT_RELOAD enabled but ACTION_SCHEMAS_PATH not set, disabling")
		c.SchemaHotReload = false
	}
	if c.SchemaHotReload && c.ActionSchemasPath != "" {
		if _, err := os.Stat(c.ActionSchemasPath); os.IsNotExist(err) {
			log.Warn().Str("path", c.ActionSchemasPath).Msg("ACTION_SCHEMAS_PATH does not exist - hot-reload will watch for creation")
		}
	}
}

func (c *Config) validateAuthConfig() {
	if c.JWTEnabled {
		switch {
		case c.JWTSecret == "":
			log.Error().Msg("JWT_ENABLED is true but JWT_SECRET is empty - bearer auth will always fail")
		case len(c.JWTSecret) < minJWTSecretLength:
			log.Error().Int("length", len(c.JWTSecret)).Int("min", minJWTSecretLength).
				Msg("JWT_SECRET is too short for secure signing")
		}
	}
	if c.APIKeyEnabled {
		const minAPIKeyLength = 16
		const maxAPIKeyLength = 256
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().Int("length", len(c.APIKey)).Msg("API_KEY too short")
		case len(c.APIKey) > maxAPIKeyLength:
			log.Error().Int("length", len(c.APIKey)).Msg("API_KEY too long")
		}
	}
	if !c.JWTEnabled && !c.APIKeyEnabled {
		log.Warn().Msg("neither JWT_ENABLED nor API_KEY_ENABLED is set - only session-id credentials will be accepted")
	}
}

func (c *Config) validateStoreConfig() {
	switch c.SessionStore {
	case StoreStrategyAuto, StoreStrategyRedis, StoreStrategyMemory:
	default:
		log.Warn().Str("strategy", string(c.SessionStore)).Msg("invalid SESSION_STORE, using 'auto'")
		c.SessionStore = StoreStrategyAuto
	}
	if c.RedisTimeout < 100*time.Millisecond {
		log.Warn().Dur("timeout", c.RedisTimeout).Msg("REDIS_TIMEOUT too short, using 5s")
		c.RedisTimeout = 5 * time.Second
	}
}

func (c *Config) validateMCPConfig() {
	switch c.MCPTransport {
	case MCPTransportStdio, MCPTransportHTTP, MCPTransportNone:
	default:
		log.Warn().Str("transport", string(c.MCPTransport)).Msg("invalid MCP_TRANSPORT, disabling MCP front-end")
		c.MCPTransport = MCPTransportNone
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Int("default", defaultValue).
			Msg("invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Float64("default", defaultValue).
			Msg("invalid float in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Bool("default", defaultValue).
			Msg("invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration > 0 {
				return duration
			}
			log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).
				Msg("duration must be positive, using default")
			return defaultValue
		}
		log.Warn().Str("key", key).Str("value", value).Err(err).Dur("default", defaultValue).
			Msg("invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
