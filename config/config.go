package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	ServerPort string
	JWTSecret  string

	// EncryptionKey is the master key OAuth tokens are encrypted under
	// before they hit the database.
	EncryptionKey string

	GitHubClientID     string
	GitHubClientSecret string
	GitHubScopes       []string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleScopes       []string

	// SyncInterval is how often the background worker wakes up.
	SyncInterval time.Duration
	// SyncDebounce is the minimum gap between two syncs of the same
	// integration when triggered through the sync-all endpoint.
	SyncDebounce time.Duration
	// SyncMaxItems caps how many items a single sync pass may import.
	SyncMaxItems int
	// RateLimitThreshold stops pagination when the provider reports fewer
	// remaining requests than this.
	RateLimitThreshold int

	RedisAddr     string
	RedisPassword string
}

func LoadConfig() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "tymblok"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		JWTSecret:  os.Getenv("JWT_SECRET"),

		EncryptionKey: os.Getenv("TOKEN_ENCRYPTION_KEY"),

		GitHubClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubScopes:       []string{"notifications", "read:user"},

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleScopes: []string{
			"https://www.googleapis.com/auth/calendar.readonly",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},

		SyncInterval:       time.Duration(getEnvInt("SYNC_INTERVAL_MINUTES", 15)) * time.Minute,
		SyncDebounce:       time.Duration(getEnvInt("SYNC_DEBOUNCE_SECONDS", 300)) * time.Second,
		SyncMaxItems:       getEnvInt("SYNC_MAX_ITEMS", 50),
		RateLimitThreshold: getEnvInt("SYNC_RATE_LIMIT_THRESHOLD", 10),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
	}
}

// getEnv retrieves an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
