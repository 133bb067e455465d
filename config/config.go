// Package config handles loading and managing application configuration.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Pesapal v3 API configuration
	Pesapal PesapalConfig

	// Paystack API configuration
	Paystack PaystackConfig

	// Booking core API configuration
	BookingCore BookingCoreConfig

	// Storage settings
	Storage StorageConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    string
	GinMode string // "debug", "release", or "test"

	// ServiceAPIKey guards the internal /api/v1 endpoints. Empty disables
	// the check (development only).
	ServiceAPIKey string

	// PublicBaseURL is this service's externally reachable URL, used to
	// build callback and IPN URLs.
	PublicBaseURL string
}

// PesapalConfig holds Pesapal v3 credentials and endpoints.
type PesapalConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string

	// NotificationID is the ipn_id returned by IPN registration. Register
	// once with cmd/registeripn and set it here.
	NotificationID string
}

// PaystackConfig holds Paystack credentials.
type PaystackConfig struct {
	BaseURL   string
	SecretKey string
}

// BookingCoreConfig holds the booking backend API configuration.
type BookingCoreConfig struct {
	BaseURL string
	APIKey  string
}

// StorageConfig holds database and cache settings.
type StorageConfig struct {
	// SQLitePath is the payments database file.
	SQLitePath string

	// RedisAddr enables the Redis-backed token cache when set; empty keeps
	// tokens in process memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HTTPTimeout time.Duration
}

// Load reads configuration from a .env file (if present) and environment
// variables. Returns a Config struct with all settings populated.
func Load() *Config {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			GinMode:       getEnv("GIN_MODE", "debug"),
			ServiceAPIKey: getEnv("SERVICE_API_KEY", ""),
			PublicBaseURL: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		Pesapal: PesapalConfig{
			BaseURL:        getEnv("PESAPAL_BASE_URL", "https://pay.pesapal.com/v3"),
			ConsumerKey:    getEnv("PESAPAL_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("PESAPAL_CONSUMER_SECRET", ""),
			NotificationID: getEnv("PESAPAL_NOTIFICATION_ID", ""),
		},
		Paystack: PaystackConfig{
			BaseURL:   getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			SecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
		},
		BookingCore: BookingCoreConfig{
			BaseURL: getEnv("BOOKING_CORE_URL", "http://localhost:8000"),
			APIKey:  getEnv("BOOKING_CORE_API_KEY", ""),
		},
		Storage: StorageConfig{
			SQLitePath:    getEnv("SQLITE_PATH", "payments.db"),
			RedisAddr:     getEnv("REDIS_ADDR", ""),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			HTTPTimeout:   time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		},
	}
}

// CallbackURL is where the provider redirects the payer's browser.
func (c *Config) CallbackURL() string {
	return c.Server.PublicBaseURL + "/payments/callback"
}

// IPNURL is where Pesapal delivers server-to-server notifications.
func (c *Config) IPNURL() string {
	return c.Server.PublicBaseURL + "/payments/ipn"
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
