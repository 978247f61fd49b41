// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig holds everything the client needs to talk to the API
type ClientConfig struct {
	APIBaseURL     string // Versioned API root, always ending in "/"
	StateDir       string // Where the local store lives
	RequestTimeout time.Duration
	PollInterval   time.Duration
}

// ServerConfig holds the development stub server settings
type ServerConfig struct {
	Port           int
	Host           string
	JWTSecret      string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	AllowedOrigins []string // CORS origins; empty allows any
	MetricsEnabled bool
}

// Config holds the complete application configuration
type Config struct {
	Client   *ClientConfig
	Server   *ServerConfig
	Env      string
	LogLevel string
	Debug    bool
}

// DefaultClientConfig provides default client settings
func DefaultClientConfig() *ClientConfig {
	stateDir := ".katha"
	if home, err := os.UserHomeDir(); err == nil {
		stateDir = filepath.Join(home, ".katha")
	}

	return &ClientConfig{
		APIBaseURL:     "http://127.0.0.1:8000/api/v1/",
		StateDir:       stateDir,
		RequestTimeout: 15 * time.Second,
		PollInterval:   30 * time.Second,
	}
}

// DefaultServerConfig provides default stub server settings
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8000,
		Host:           "127.0.0.1",
		JWTSecret:      "katha-devserver-secret",
		AccessTTL:      5 * time.Minute,
		RefreshTTL:     24 * time.Hour,
		MetricsEnabled: true,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/<binary>
	}
	if home, err := os.UserHomeDir(); err == nil {
		envLocations = append(envLocations, filepath.Join(home, ".katha", ".env"))
	}

	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	clientConfig := DefaultClientConfig()

	if apiURL := os.Getenv("KATHA_API_URL"); apiURL != "" {
		clientConfig.APIBaseURL = apiURL
	}
	normalized, err := NormalizeBaseURL(clientConfig.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("KATHA_API_URL: %w", err)
	}
	clientConfig.APIBaseURL = normalized

	if dir := os.Getenv("KATHA_STATE_DIR"); dir != "" {
		clientConfig.StateDir = dir
	}

	if clientConfig.RequestTimeout, err = durationFromEnv("KATHA_REQUEST_TIMEOUT", clientConfig.RequestTimeout); err != nil {
		return nil, err
	}
	if clientConfig.PollInterval, err = durationFromEnv("KATHA_POLL_INTERVAL", clientConfig.PollInterval); err != nil {
		return nil, err
	}

	serverConfig := DefaultServerConfig()

	// Override server settings from environment if provided
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			serverConfig.Port = port
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}

	if secret := os.Getenv("KATHA_JWT_SECRET"); secret != "" {
		serverConfig.JWTSecret = secret
	}

	if serverConfig.AccessTTL, err = durationFromEnv("KATHA_ACCESS_TTL", serverConfig.AccessTTL); err != nil {
		return nil, err
	}
	if serverConfig.RefreshTTL, err = durationFromEnv("KATHA_REFRESH_TTL", serverConfig.RefreshTTL); err != nil {
		return nil, err
	}

	if origins := os.Getenv("KATHA_CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				serverConfig.AllowedOrigins = append(serverConfig.AllowedOrigins, o)
			}
		}
	}

	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}

	config := &Config{
		Client:   clientConfig,
		Server:   serverConfig,
		Env:      getEnvOrDefault("KATHA_ENV", "local"),
		LogLevel: getEnvOrDefault("KATHA_LOG_LEVEL", "info"),
		Debug:    false,
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
		config.LogLevel = "debug"
	}

	return config, nil
}

// NormalizeBaseURL validates an API root and guarantees a trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host in %q", raw)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u.String(), nil
}

// AuthBaseURL derives the auth root from the versioned API root: auth
// endpoints live one path segment up, so ".../api/v1/" becomes ".../api/".
func AuthBaseURL(apiBaseURL string) string {
	trimmed := strings.TrimSuffix(apiBaseURL, "/")
	if strings.HasSuffix(trimmed, "v1") {
		return strings.TrimSuffix(trimmed, "v1")
	}
	return apiBaseURL
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return d, nil
}
