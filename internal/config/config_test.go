package config

import (
	"os"
	"testing"
	"time"
)

func clearConfigEnv() {
	envVars := []string{
		"HOST", "PORT", "GRPC_PORT", "NODE_ENV", "HEADLESS", "BROWSER_PATH",
		"MAX_BROWSERS", "MAX_PAGES_PER_BROWSER", "ACQUISITION_TIMEOUT",
		"IDLE_TIMEOUT", "HEALTH_CHECK_INTERVAL", "BROWSER_MAX_AGE",
		"SESSION_TTL", "SESSION_CLEANUP_INTERVAL", "MAX_SESSIONS", "MAX_CONTEXTS",
		"DEFAULT_ACTION_TIMEOUT", "MAX_ACTION_TIMEOUT",
		"PROXY_URL", "PROXY_USERNAME", "PROXY_PASSWORD",
		"LOG_LEVEL", "LOG_JSON",
		"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "TRUST_PROXY",
		"JWT_ENABLED", "JWT_SECRET", "API_KEY_ENABLED", "API_KEY",
		"SESSION_STORE", "REDIS_URL", "REDIS_TIMEOUT",
		"MCP_TRANSPORT", "ACTION_SCHEMAS_PATH", "ACTION_SCHEMAS_HOT_RELOAD",
	}
	for _, env := range envVars {
		os.Unsetenv(env)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv()

	cfg := Load()

	if cfg.Host != "127.0.0.1" {
		t.Errorf("expected default host '127.0.0.1', got %q", cfg.Host)
	}
	if cfg.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Port)
	}
	if cfg.GRPCPort != 9090 {
		t.Errorf("expected default grpc port 9090, got %d", cfg.GRPCPort)
	}
	if !cfg.Headless {
		t.Error("expected Headless to be true by default")
	}
	if cfg.MaxBrowsers != 5 {
		t.Errorf("expected default MaxBrowsers 5, got %d", cfg.MaxBrowsers)
	}
	if cfg.SessionTTL != time.Hour {
		t.Errorf("expected default session TTL 1h, got %v", cfg.SessionTTL)
	}
	if cfg.DefaultActionTimeout != 30*time.Second {
		t.Errorf("expected default action timeout 30s, got %v", cfg.DefaultActionTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.LogLevel)
	}
	if cfg.SessionStore != StoreStrategyAuto {
		t.Errorf("expected default session store 'auto', got %q", cfg.SessionStore)
	}
	if cfg.MCPTransport != MCPTransportStdio {
		t.Errorf("expected default mcp transport 'stdio', got %q", cfg.MCPTransport)
	}
	if !cfg.JWTEnabled {
		t.Error("expected JWTEnabled to be true by default")
	}
}

func TestValidateClampsOutOfRangeValues(t *testing.T) {
	clearConfigEnv()
	cfg := Load()

	cfg.Port = 99999
	cfg.MaxBrowsers = 0
	cfg.MinBrowsers = 50
	cfg.PoolScalingStrategy = "turbo"
	cfg.MaxActionTimeout = 0
	cfg.DefaultActionTimeout = 10 * time.Hour
	cfg.MaxSessions = -1
	cfg.SessionTTL = time.Second
	cfg.RateLimitRPM = 0
	cfg.LogLevel = "verbose"
	cfg.SessionStore = StoreStrategy("bogus")
	cfg.MCPTransport = MCPTransport("carrier-pigeon")

	cfg.Validate()

	if cfg.Port != 8080 {
		t.Errorf("expected port reset to 8080, got %d", cfg.Port)
	}
	if cfg.MaxBrowsers != 5 {
		t.Errorf("expected MaxBrowsers reset to 5, got %d", cfg.MaxBrowsers)
	}
	if cfg.MinBrowsers != cfg.MaxBrowsers {
		t.Errorf("expected MinBrowsers clamped down to MaxBrowsers %d, got %d", cfg.MaxBrowsers, cfg.MinBrowsers)
	}
	if cfg.PoolScalingStrategy != "balanced" {
		t.Errorf("expected unknown PoolScalingStrategy reset to balanced, got %q", cfg.PoolScalingStrategy)
	}
	if cfg.MaxActionTimeout != 120*time.Second {
		t.Errorf("expected MaxActionTimeout reset to 120s, got %v", cfg.MaxActionTimeout)
	}
	if cfg.DefaultActionTimeout != cfg.MaxActionTimeout {
		t.Errorf("expected DefaultActionTimeout clamped to MaxActionTimeout, got %v", cfg.DefaultActionTimeout)
	}
	if cfg.MaxSessions != 1000 {
		t.Errorf("expected MaxSessions reset to 1000, got %d", cfg.MaxSessions)
	}
	if cfg.SessionTTL != time.Minute {
		t.Errorf("expected SessionTTL clamped to minimum 1m, got %v", cfg.SessionTTL)
	}
	if cfg.RateLimitRPM != 120 {
		t.Errorf("expected RateLimitRPM reset to 120, got %d", cfg.RateLimitRPM)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected LogLevel reset to 'info', got %q", cfg.LogLevel)
	}
	if cfg.SessionStore != StoreStrategyAuto {
		t.Errorf("expected SessionStore reset to 'auto', got %q", cfg.SessionStore)
	}
	if cfg.MCPTransport != MCPTransportNone {
		t.Errorf("expected MCPTransport reset to disabled, got %q", cfg.MCPTransport)
	}
}

func TestValidateClampsPortCollision(t *testing.T) {
	clearConfigEnv()
	cfg := Load()
	cfg.GRPCPort = cfg.Port

	cfg.Validate()

	if cfg.GRPCPort == cfg.Port {
		t.Error("expected GRPCPort to be bumped away from Port on collision")
	}
}

func TestHasDefaultProxy(t *testing.T) {
	clearConfigEnv()
	cfg := Load()
	if cfg.HasDefaultProxy() {
		t.Error("expected no default proxy when PROXY_URL unset")
	}
	cfg.ProxyURL = "http://proxy.example.com:8080"
	if !cfg.HasDefaultProxy() {
		t.Error("expected default proxy when PROXY_URL set")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearConfigEnv()
	os.Setenv("MAX_BROWSERS", "12")
	os.Setenv("SESSION_STORE", "redis")
	defer clearConfigEnv()

	cfg := Load()
	if cfg.MaxBrowsers != 12 {
		t.Errorf("expected MaxBrowsers 12 from env, got %d", cfg.MaxBrowsers)
	}
	if cfg.SessionStore != StoreStrategyRedis {
		t.Errorf("expected SessionStore redis from env, got %q", cfg.SessionStore)
	}
}
