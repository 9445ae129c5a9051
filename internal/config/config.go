package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the room agent worker.
//
// Secrets (room signing credentials, provider keys, backend bearer token)
// are only ever read from the environment; there are no literal fallbacks.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	// Room transport.
	RoomServiceURL string
	RoomAPIKey     string
	RoomAPISecret  string
	RoomName       string
	AgentIdentity  string
	AgentName      string
	TokenTTL       time.Duration

	ConnectionMode     string // remote|mock
	ConnectMaxAttempts int
	ConnectBackoffBase time.Duration
	ConnectBackoffCap  time.Duration

	// Reasoning stage.
	BrainMode    string // auto|http|mock
	BrainHTTPURL string
	BrainAPIKey  string
	BrainModel   string
	MaxToolDepth int

	// Knowledge backend.
	BackendBaseURL     string
	BackendBearerToken string
	BackendAuthToken   string // per-call token for the client-data tool
	BackendTimeout     time.Duration

	// Voice pipeline.
	VoiceProvider       string // auto|mock
	VoicePreset         string
	GreetingInstruction string

	SessionInactivityTimeout time.Duration

	// Optional tool-invocation audit store.
	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
// A missing required credential is a startup error, never a runtime failure.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "roomagent"),
		RoomServiceURL:      trimmedEnv("ROOM_SERVICE_URL"),
		RoomAPIKey:          trimmedEnv("ROOM_API_KEY"),
		RoomAPISecret:       trimmedEnv("ROOM_API_SECRET"),
		RoomName:            envOrDefault("ROOM_NAME", "lobby"),
		AgentIdentity:       envOrDefault("AGENT_IDENTITY", "room-agent"),
		AgentName:           envOrDefault("AGENT_NAME", "Assistant"),
		ConnectionMode:      envOrDefault("CONNECTION_MODE", "remote"),
		ConnectMaxAttempts:  3,
		ConnectBackoffBase:  500 * time.Millisecond,
		ConnectBackoffCap:   8 * time.Second,
		BrainMode:           envOrDefault("BRAIN_MODE", "auto"),
		BrainHTTPURL:        trimmedEnv("BRAIN_HTTP_URL"),
		BrainAPIKey:         trimmedEnv("BRAIN_API_KEY"),
		BrainModel:          envOrDefault("BRAIN_MODEL", "gpt-4o-mini"),
		MaxToolDepth:        4,
		BackendBaseURL:      trimmedEnv("BACKEND_BASE_URL"),
		BackendBearerToken:  trimmedEnv("BACKEND_BEARER_TOKEN"),
		BackendAuthToken:    trimmedEnv("BACKEND_AUTH_TOKEN"),
		BackendTimeout:      10 * time.Second,
		VoiceProvider:       envOrDefault("VOICE_PROVIDER", "auto"),
		VoicePreset:         envOrDefault("VOICE_PRESET", "warm"),
		GreetingInstruction: envOrDefault("GREETING_INSTRUCTION", "Greet the user and ask how you can help today."),
		DatabaseURL:         trimmedEnv("DATABASE_URL"),

		TokenTTL:                 6 * time.Hour,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.BackendTimeout, err = durationFromEnv("BACKEND_TIMEOUT", cfg.BackendTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectBackoffBase, err = durationFromEnv("CONNECT_BACKOFF_BASE", cfg.ConnectBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectBackoffCap, err = durationFromEnv("CONNECT_BACKOFF_CAP", cfg.ConnectBackoffCap)
	if err != nil {
		return Config{}, err
	}
	cfg.ConnectMaxAttempts, err = intFromEnv("CONNECT_MAX_ATTEMPTS", cfg.ConnectMaxAttempts)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxToolDepth, err = intFromEnv("MAX_TOOL_DEPTH", cfg.MaxToolDepth)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	mode := strings.ToLower(strings.TrimSpace(c.ConnectionMode))
	if mode != "remote" && mode != "mock" {
		return fmt.Errorf("CONNECTION_MODE must be remote or mock, got %q", c.ConnectionMode)
	}
	if mode == "remote" {
		if c.RoomServiceURL == "" {
			return fmt.Errorf("ROOM_SERVICE_URL is required")
		}
		if c.RoomAPIKey == "" {
			return fmt.Errorf("ROOM_API_KEY is required")
		}
		if c.RoomAPISecret == "" {
			return fmt.Errorf("ROOM_API_SECRET is required")
		}
	}
	if c.RoomName == "" {
		return fmt.Errorf("ROOM_NAME must not be empty")
	}
	if strings.ToLower(strings.TrimSpace(c.BrainMode)) == "http" && c.BrainHTTPURL == "" {
		return fmt.Errorf("BRAIN_HTTP_URL is required for BRAIN_MODE=http")
	}
	if c.BackendBaseURL != "" && c.BackendBearerToken == "" {
		return fmt.Errorf("BACKEND_BEARER_TOKEN is required when BACKEND_BASE_URL is set")
	}
	if c.ConnectMaxAttempts <= 0 {
		return fmt.Errorf("CONNECT_MAX_ATTEMPTS must be positive")
	}
	if c.MaxToolDepth <= 0 {
		return fmt.Errorf("MAX_TOOL_DEPTH must be positive")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
