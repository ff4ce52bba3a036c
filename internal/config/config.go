// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StoreSupabase = "supabase"
)

// Auth modes.
const (
	AuthHeader   = "header"
	AuthSupabase = "supabase"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	StoreDriver string
	AuthMode    string
	Supabase    SupabaseConfig
	RedisURL    string
	LLM         LLMConfig
	Lesson      LessonConfig
	RateLimit   RateLimitConfig

	OTLPEndpoint       string
	MaxRequestBodySize int64
}

// SupabaseConfig locates the hosted Postgres REST API and auth service.
type SupabaseConfig struct {
	URL string
	Key string
}

// LLMConfig controls the chat-completion and speech backends.
type LLMConfig struct {
	Mode        string // "MOCK" selects the offline client
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	TTSModel    string
	TTSVoice    string
}

// LessonConfig holds lesson lifecycle limits.
type LessonConfig struct {
	// MaxMessages completes a session once it holds this many messages.
	// Zero leaves completion entirely to the model.
	MaxMessages     int
	MaxMessageChars int
	TurnLockTTL     time.Duration
	AuditInterval   time.Duration
}

// RateLimitConfig bounds turn submissions per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/lessons.db"),
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		AuthMode:    strings.ToLower(getEnv("AUTH_MODE", AuthHeader)),
		Supabase: SupabaseConfig{
			URL: getEnv("SUPABASE_URL", ""),
			Key: getEnv("SUPABASE_KEY", ""),
		},
		RedisURL: getEnv("REDIS_URL", ""),
		LLM: LLMConfig{
			Mode:        strings.ToUpper(getEnv("LLM_MODE", "")),
			BaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com"),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Model:       getEnv("LLM_MODEL", "gpt-4"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 500),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			TTSModel:    getEnv("TTS_MODEL", "tts-1"),
			TTSVoice:    getEnv("TTS_VOICE", "alloy"),
		},
		Lesson: LessonConfig{
			MaxMessages:     getEnvInt("LESSON_MAX_MESSAGES", 20),
			MaxMessageChars: getEnvInt("MAX_MESSAGE_CHARS", 4000),
			TurnLockTTL:     getEnvDuration("TURN_LOCK_TTL", 2*time.Minute),
			AuditInterval:   getEnvDuration("AUDIT_INTERVAL", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case StoreSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for STORE_DRIVER=supabase")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.AuthMode {
	case AuthHeader:
	case AuthSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_KEY are required for AUTH_MODE=supabase")
		}
	default:
		return fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode)
	}
	if !c.LLM.IsMock() && c.LLM.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty unless LLM_MODE=MOCK")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be > 0")
	}
	if c.Lesson.MaxMessages < 0 {
		return fmt.Errorf("LESSON_MAX_MESSAGES must be >= 0")
	}
	if c.Lesson.MaxMessageChars <= 0 {
		return fmt.Errorf("MAX_MESSAGE_CHARS must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// IsMock returns true when the offline model client should be used.
func (c LLMConfig) IsMock() bool {
	return c.Mode == "MOCK"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
