package config

import (
	"context"
	"os"
	"strings"
	"time"
)

// ListenerConfig holds the network/TLS settings for a single listener (main or management).
type ListenerConfig struct {
	Port              int
	EnablePlainText   bool
	EnableTLS         bool
	TLSCertFile       string
	TLSKeyFile        string
	ReadHeaderTimeout time.Duration
}

type contextKey struct{}

// WithContext returns a new context carrying the given Config.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext retrieves the Config from the context.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(contextKey{}).(*Config)
	return cfg
}

const (
	ModeProd    = "prod"
	ModeTesting = "testing"
)

// Config holds all configuration for the conversation service.
type Config struct {
	// Mode controls security behavior: "prod" (default) or "testing".
	// In testing mode, the X-User-ID header is accepted without an API key.
	Mode string

	// Database
	DBURL string

	// Run datastore migrations on startup.
	DatastoreMigrateAtStart bool

	// Datastore backend type
	DatastoreType string // "postgres" or "sqlite"

	// Redis
	RedisURL string

	// Cache backend type
	CacheType string // "redis" or "none"

	// Branch history cache TTL.
	CacheHistoryTTL time.Duration

	// Responder backend type
	GenerateType string // "openai" or "static"

	// OpenAI-compatible responder settings.
	OpenAIAPIKey    string
	OpenAIModelName string
	OpenAIBaseURL   string

	// StaticResponderText is the canned reply of the "static" responder.
	StaticResponderText string

	// Prometheus
	// MetricsLabels is a comma-separated list of key=value pairs added as
	// constant labels to all Prometheus metrics. Values support ${VAR} expansion.
	// Defaults to "service=conversation-service".
	MetricsLabels string

	// Server
	Listener           ListenerConfig
	ManagementListener ListenerConfig
	// ManagementListenerEnabled is true when --management-port (or
	// CONVERSATION_SERVICE_MANAGEMENT_PORT) was explicitly provided. When
	// false, management endpoints are served on the main port.
	ManagementListenerEnabled bool
	// ManagementAccessLog enables HTTP access logging for management endpoints
	// (/health, /ready, /metrics). Disabled by default to suppress
	// high-frequency probe noise from the access log.
	ManagementAccessLog bool
	CORSEnabled         bool
	CORSOrigins         string

	// Security
	// APIKeys maps API key values to user IDs
	// (CONVERSATION_SERVICE_API_KEYS_<USER_ID>=<key>).
	APIKeys map[string]string // key value → userID

	// Body size limit (bytes)
	MaxBodySize int64

	// Graceful shutdown drain timeout (seconds)
	DrainTimeout int

	// DB pool
	DBMaxOpenConns int
	DBMaxIdleConns int
}

const apiKeyEnvPrefix = "CONVERSATION_SERVICE_API_KEYS_"

// APIKeysFromEnv collects API keys declared as
// CONVERSATION_SERVICE_API_KEYS_<USER_ID>=<key> environment variables,
// returning a key-value → user-id map.
func APIKeysFromEnv() map[string]string {
	keys := map[string]string{}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, apiKeyEnvPrefix) {
			continue
		}
		userID := strings.TrimPrefix(name, apiKeyEnvPrefix)
		if userID == "" || value == "" {
			continue
		}
		keys[value] = userID
	}
	return keys
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:                    ModeProd,
		DatastoreType:           "postgres",
		DatastoreMigrateAtStart: true,
		CacheType:               "none",
		CacheHistoryTTL:         time.Hour,
		GenerateType:            "openai",
		OpenAIModelName:         "gpt-4o-mini",
		OpenAIBaseURL:           "https://api.openai.com/v1",
		StaticResponderText:     "This is a canned reply.",
		Listener: ListenerConfig{
			Port:              8080,
			EnablePlainText:   true,
			EnableTLS:         true,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ManagementListener: ListenerConfig{
			EnablePlainText: true,
			EnableTLS:       true,
		},
		MaxBodySize:    1 * 1024 * 1024,
		DrainTimeout:   30,
		DBMaxOpenConns: 25,
		DBMaxIdleConns: 5,
	}
}
