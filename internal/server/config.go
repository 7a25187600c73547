// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the chat server.
package server

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/tcpchat/internal/store"
)

// Default values applied by sanitizeConfig.
const (
	DefaultAddress          = "127.0.0.1"
	DefaultPort             = 5000
	DefaultMaxMessageLength = 200
	DefaultSendBuffer       = 256
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
// A zero Burst turns limiting off.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the server configuration settings.
type Config struct {
	// Address and Port are where the TCP listener binds. They also name the backing files.
	Address string
	Port    int

	// DataDir holds the credential and message files.
	DataDir string

	HistoryLimit     int
	MaxMessageLength int

	// MaxSessions bounds concurrent connections; zero means unbounded.
	MaxSessions int

	// SendBuffer is the per-session outbound queue length.
	SendBuffer int

	// WebSocketAddr enables the WebSocket gateway when non-empty.
	WebSocketAddr  string
	AllowedOrigins []string

	RateLimit RateLimitConfig
	LogLevel  string
}

func defaultConfig() Config {
	return Config{
		Address:          DefaultAddress,
		Port:             DefaultPort,
		DataDir:          ".",
		HistoryLimit:     store.DefaultHistoryLimit,
		MaxMessageLength: DefaultMaxMessageLength,
		SendBuffer:       DefaultSendBuffer,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
		LogLevel: "info",
	}
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		cfg.Port = DefaultPort
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}

	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = store.DefaultHistoryLimit
	}

	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = DefaultMaxMessageLength
	}

	if cfg.MaxSessions < 0 {
		cfg.MaxSessions = 0
	}

	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}

	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// ListenAddr joins Address and Port.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from CHAT_* environment variables.
// Falls back to default values if environment variables are not set or invalid.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if address := os.Getenv("CHAT_ADDRESS"); address != "" {
		cfg.Address = address
	}

	if port := os.Getenv("CHAT_PORT"); port != "" {
		cfg.Port = parseIntValue(port, cfg.Port)
	}

	if dir := os.Getenv("CHAT_DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	if limit := os.Getenv("CHAT_HISTORY_LIMIT"); limit != "" {
		cfg.HistoryLimit = parseIntValue(limit, cfg.HistoryLimit)
	}

	if length := os.Getenv("CHAT_MAX_MESSAGE_LENGTH"); length != "" {
		cfg.MaxMessageLength = parseIntValue(length, cfg.MaxMessageLength)
	}

	if sessions := os.Getenv("CHAT_MAX_SESSIONS"); sessions != "" {
		cfg.MaxSessions = parseIntValue(sessions, cfg.MaxSessions)
	}

	if buffer := os.Getenv("CHAT_SEND_BUFFER"); buffer != "" {
		cfg.SendBuffer = parseIntValue(buffer, cfg.SendBuffer)
	}

	if wsAddr := os.Getenv("CHAT_WS_ADDR"); wsAddr != "" {
		cfg.WebSocketAddr = wsAddr
	}

	if origins := os.Getenv("CHAT_ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if burst := os.Getenv("CHAT_RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("CHAT_RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if level := os.Getenv("CHAT_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	return &cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && parsed >= 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
