// Package config loads process configuration from the environment, the
// same pattern cmd/main.go used before this service's env helpers were
// generalized into a dedicated package.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the fully-resolved process configuration.
type Config struct {
	// HTTP
	ListenAddr      string
	ShutdownTimeout time.Duration

	// Database
	DBHost          string
	DBPort          string
	DBUser          string
	DBPassword      string
	DBName          string
	DBSSLMode       string
	DBMaxOpenConns  int
	DBMaxIdleConns  int
	DBConnMaxLife   time.Duration

	// Redis (optional read-through cache)
	RedisHost    string
	RedisPort    string
	RedisPassword string
	RedisDB      int
	RedisEnabled bool

	// Sessions
	SessionCookieDomain string
	SessionMaxAge       time.Duration

	// WebSocket
	HeartbeatInterval time.Duration

	// A2S polling
	A2SPollInterval time.Duration
	A2SQueryTimeout time.Duration

	// External statistics host
	ScriptHostPath        string
	ScriptHostRestartBackoff time.Duration

	// Steam OpenID
	SteamRealm      string
	SteamReturnURL  string
	SteamWebAPIKey  string

	// Internal API (CI publisher)
	InternalJWTSecret string

	// Logging
	LogLevel  string
	LogPretty bool
}

// Load resolves Config from the environment, applying the same defaults
// cmd/main.go historically hard-coded.
func Load() *Config {
	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", ":8080"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "cs2kz"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "cs2kz"),
		DBSSLMode:      getEnv("DB_SSLMODE", "disable"),
		DBMaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLife:  getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),

		SessionCookieDomain: getEnv("SESSION_COOKIE_DOMAIN", ""),
		SessionMaxAge:       getEnvDuration("SESSION_MAX_AGE", 30*24*time.Hour),

		HeartbeatInterval: getEnvDuration("WS_HEARTBEAT_INTERVAL", 15*time.Second),

		A2SPollInterval: getEnvDuration("A2S_POLL_INTERVAL", 10*time.Second),
		A2SQueryTimeout: getEnvDuration("A2S_QUERY_TIMEOUT", 2*time.Second),

		ScriptHostPath:           getEnv("SCRIPT_HOST_PATH", "cs2kz-points-host"),
		ScriptHostRestartBackoff: getEnvDuration("SCRIPT_HOST_RESTART_BACKOFF", 2*time.Second),

		SteamRealm:     getEnv("STEAM_REALM", "https://kz.example.com"),
		SteamReturnURL: getEnv("STEAM_RETURN_URL", "https://kz.example.com/auth/web/steam-callback"),
		SteamWebAPIKey: getEnv("STEAM_WEB_API_KEY", ""),

		InternalJWTSecret: getEnv("INTERNAL_JWT_SECRET", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
