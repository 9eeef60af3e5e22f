package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            string
	GinMode         string
	LogLevel        string
	RedisURL        string
	RedisPassword   string
	RabbitMQURL     string
	NotifyQueue     string
	DefaultAPIURL   string
	APITimeout      time.Duration
	WorkspaceTTL    time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
	// TrustedProxies may set X-Forwarded-For; empty trusts none and the
	// client IP is the peer address.
	TrustedProxies []string
}

// NotificationsEnabled reports whether a broker is configured.
func (c *Config) NotificationsEnabled() bool { return c.RabbitMQURL != "" }

func Load() (*Config, error) {
	// Load .env
	_ = godotenv.Load()

	timeout, err := positiveInt("API_TIMEOUT_SECS", "60")
	if err != nil {
		return nil, err
	}
	ttl, err := positiveInt("WORKSPACE_TTL_HOURS", "168")
	if err != nil {
		return nil, err
	}
	limit, err := positiveInt("RATE_LIMIT_REQUESTS", "120")
	if err != nil {
		return nil, err
	}
	window, err := positiveInt("RATE_LIMIT_WINDOW_SECS", "60")
	if err != nil {
		return nil, err
	}

	apiURL := strings.TrimRight(strings.TrimSpace(getEnv("DEFAULT_API_URL", "http://localhost:8000")), "/")
	if !strings.HasPrefix(apiURL, "http://") && !strings.HasPrefix(apiURL, "https://") {
		return nil, fmt.Errorf("DEFAULT_API_URL must be an http(s) URL, got %q", apiURL)
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		GinMode:         getEnv("GIN_MODE", "release"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RabbitMQURL:     os.Getenv("RABBITMQ_URL"),
		NotifyQueue:     getEnv("NOTIFY_QUEUE", "analytics_notifications"),
		DefaultAPIURL:   apiURL,
		APITimeout:      time.Duration(timeout) * time.Second,
		WorkspaceTTL:    time.Duration(ttl) * time.Hour,
		RateLimitMax:    limit,
		RateLimitWindow: time.Duration(window) * time.Second,
		TrustedProxies:  splitList(os.Getenv("TRUSTED_PROXIES")),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func positiveInt(key, fallback string) (int, error) {
	raw := getEnv(key, fallback)
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
