package config

import (
	"os"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Upstream menu API
	APIBaseURL   string
	PushURL      string
	DefaultLang  string
	HTTPTimeout  time.Duration
	PollInterval time.Duration
	// Cache settings
	CacheTTL        time.Duration
	CacheBackend    string // memory or ristretto
	CacheMaxEntries int64
	// Client pacing and protection against a failing API
	FetchRPS         float64 // requests per second to the menu API (0 = unlimited)
	FetchBurst       int
	BreakerFailures  int
	BreakerCooldown  time.Duration
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
	// Display server
	ListenAddr          string
	RateLimitPerIP      float64
	RateLimitPerIPBurst int
	CORSAllowedOrigins  []string
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string
	SentryEnvironment string
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	cached = &Config{
		APIBaseURL:      strings.TrimRight(strings.TrimSpace(os.Getenv("MENU_API_BASE_URL")), "/"),
		PushURL:         strings.TrimSpace(os.Getenv("MENU_PUSH_URL")),
		DefaultLang:     strings.ToLower(strings.TrimSpace(os.Getenv("MENU_DEFAULT_LANG"))),
		HTTPTimeout:     GetEnvAsMillis("HTTP_TIMEOUT_MS", 10000),
		PollInterval:    GetEnvAsMillis("MENU_POLL_INTERVAL_MS", 30000),
		CacheTTL:        GetEnvAsMillis("MENU_CACHE_TTL_MS", 30000),
		CacheBackend:    strings.ToLower(strings.TrimSpace(os.Getenv("MENU_CACHE_BACKEND"))),
		CacheMaxEntries: int64(GetEnvAsInt("MENU_CACHE_MAX_ENTRIES", 1000)),
		FetchRPS:        GetEnvAsFloat("MENU_FETCH_RPS", 20.0),
		FetchBurst:      GetEnvAsInt("MENU_FETCH_BURST", 40),
		BreakerFailures: GetEnvAsInt("MENU_BREAKER_FAILURES", 5),
		BreakerCooldown: GetEnvAsMillis("MENU_BREAKER_COOLDOWN_MS", 30000),
		ReconnectBase:   GetEnvAsMillis("PUSH_RECONNECT_BASE_MS", 500),
		ReconnectMax:    GetEnvAsMillis("PUSH_RECONNECT_MAX_MS", 30000),
		ListenAddr:      strings.TrimSpace(os.Getenv("LISTEN_ADDR")),
		// The refresh endpoint forces upstream fetches, keep it tight
		RateLimitPerIP:      GetEnvAsFloat("RATE_LIMIT_PER_IP", 5.0),
		RateLimitPerIPBurst: GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 10),
		// Observability settings
		LogLevel:          strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		OTELEnabled:       GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTELSampleRate:    GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		SentryEnvironment: strings.TrimSpace(os.Getenv("SENTRY_ENVIRONMENT")),
	}
	if cached.APIBaseURL == "" {
		cached.APIBaseURL = "http://localhost:5000"
	}
	if cached.DefaultLang == "" {
		cached.DefaultLang = "it"
	}
	if cached.CacheBackend == "" {
		cached.CacheBackend = "memory"
	}
	if cached.ListenAddr == "" {
		cached.ListenAddr = ":8080"
	}
	if cached.LogLevel == "" {
		cached.LogLevel = "info"
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}

	corsOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if corsOrigins == "" {
		cached.CORSAllowedOrigins = []string{"http://localhost:5000", "http://localhost:3000"}
	} else {
		cached.CORSAllowedOrigins = GetEnvAsSlice("CORS_ALLOWED_ORIGINS", nil, ",")
		for i := range cached.CORSAllowedOrigins {
			cached.CORSAllowedOrigins[i] = strings.TrimSpace(cached.CORSAllowedOrigins[i])
		}
	}

	return cached
}

// PushEnabled reports whether a push channel URL is configured.
func (c *Config) PushEnabled() bool {
	return c.PushURL != ""
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }
