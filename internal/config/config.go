// Package config provides environment configuration for the chat daemon.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Session user
	ChatUserID      string
	ChatDisplayName string

	// JWT settings
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// History refresh
	RefreshSchedule string
	RefreshEnabled  bool

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Session user
		ChatUserID:      getEnv("CHAT_USER_ID", ""),
		ChatDisplayName: getEnv("CHAT_DISPLAY_NAME", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Refresh
		RefreshSchedule: getEnv("REFRESH_SCHEDULE", "*/5 * * * *"),
		RefreshEnabled:  getBoolEnv("REFRESH_ENABLED", true),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate checks the settings the daemon cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.ChatUserID == "" {
		errs = append(errs, errors.New("CHAT_USER_ID is required"))
	}
	if c.NATSURL == "" {
		errs = append(errs, errors.New("NATS_URL is required"))
	}
	if c.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.RateLimitRequests))
	}
	if c.RefreshEnabled && !gronx.IsValid(c.RefreshSchedule) {
		errs = append(errs, fmt.Errorf("REFRESH_SCHEDULE is not a valid cron expression: %q", c.RefreshSchedule))
	}
	return errors.Join(errs...)
}

// DisplayName returns the display name, falling back to the user ID.
func (c *Config) DisplayName() string {
	if c.ChatDisplayName != "" {
		return c.ChatDisplayName
	}
	return c.ChatUserID
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
