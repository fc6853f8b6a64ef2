package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Persistence for phone bindings and tenant credentials.
	// Backend is one of "file", "redis", "postgres".
	StoreBackend  string
	DataDir       string
	BindingsFile  string
	CredsFile     string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	DatabaseURL   string

	// Bitrix24 OAuth application profile.
	CRMClientID     string
	CRMClientSecret string
	CRMOAuthBaseURL string

	// Webhook pipeline behavior.
	DefaultAssignedUserID int
	RelatedEntityMode     string
	BindToken             string

	CORSAllowedOrigins []string
	CallbackRateLimit  float64
	CallbackRateBurst  int

	// Background token refresh.
	TokenRefreshEnabled  bool
	TokenRefreshInterval time.Duration
	TokenRefreshBefore   time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	dataDir := getEnv("DATA_DIR", "data")
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		StoreBackend:  strings.ToLower(strings.TrimSpace(getEnv("STORE_BACKEND", "file"))),
		DataDir:       dataDir,
		BindingsFile:  getEnv("BINDINGS_FILE", dataDir+"/bindings.json"),
		CredsFile:     getEnv("CREDENTIALS_FILE", dataDir+"/auth.json"),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		CRMClientID:     getEnv("CRM_CLIENT_ID", ""),
		CRMClientSecret: getEnv("CRM_CLIENT_SECRET", ""),
		CRMOAuthBaseURL: getEnv("CRM_OAUTH_BASE_URL", "https://oauth.bitrix.info"),

		DefaultAssignedUserID: getEnvAsInt("DEFAULT_ASSIGNED_USER_ID", 1),
		RelatedEntityMode:     strings.ToLower(strings.TrimSpace(getEnv("RELATED_ENTITY_MODE", "latest-active"))),
		BindToken:             getEnv("BIND_TOKEN", ""),

		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		CallbackRateLimit:  getEnvAsFloat("CALLBACK_RATE_LIMIT", 0),
		CallbackRateBurst:  getEnvAsInt("CALLBACK_RATE_BURST", 10),

		TokenRefreshEnabled:  getEnvAsBool("TOKEN_REFRESH_ENABLED", true),
		TokenRefreshInterval: getEnvAsDuration("TOKEN_REFRESH_INTERVAL", 1*time.Hour),
		TokenRefreshBefore:   getEnvAsDuration("TOKEN_REFRESH_BEFORE", 10*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
