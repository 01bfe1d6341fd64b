package config

import (
	"os"
	"strconv"
	"time"

	"github.com/brandao/cobranca-gateway-go/internal/domain"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	StatusCacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Gateway surface auth. Bcrypt hash of the expected API key; when
	// empty the key check is disabled (local development).
	APIKeyHash string

	// Beneficiary company, shared by every bank.
	Environment     domain.Environment
	CompanyName     string
	CompanyDocument string

	// Per-bank credentials, keyed by COMPE code. Only banks whose client
	// id is configured are present.
	Banks map[string]domain.Credentials
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	env := domain.EnvSandbox
	if getEnv("ENVIRONMENT", "sandbox") == "production" {
		env = domain.EnvProduction
	}

	cfg := &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		StatusCacheTTL: getEnvDuration("STATUS_CACHE_TTL", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		APIKeyHash: getEnv("API_KEY_HASH", ""),

		Environment:     env,
		CompanyName:     getEnv("COMPANY_NAME", ""),
		CompanyDocument: getEnv("COMPANY_DOCUMENT", ""),

		Banks: make(map[string]domain.Credentials),
	}

	if getEnv("BB_CLIENT_ID", "") != "" {
		cfg.Banks["001"] = domain.Credentials{
			BankCode:        "001",
			Environment:     env,
			ClientID:        getEnv("BB_CLIENT_ID", ""),
			ClientSecret:    getEnv("BB_CLIENT_SECRET", ""),
			DevAppKey:       getEnv("BB_DEV_APP_KEY", ""),
			Agreement:       getEnv("BB_AGREEMENT", ""),
			Wallet:          getEnv("BB_WALLET", "17"),
			Variation:       getEnv("BB_VARIATION", "35"),
			Agency:          getEnv("BB_AGENCY", ""),
			Account:         getEnv("BB_ACCOUNT", ""),
			CompanyName:     cfg.CompanyName,
			CompanyDocument: cfg.CompanyDocument,
			TokenURL:        getEnv("BB_TOKEN_URL", ""),
			APIURL:          getEnv("BB_API_URL", ""),
		}
	}

	if getEnv("ITAU_CLIENT_ID", "") != "" {
		cfg.Banks["341"] = domain.Credentials{
			BankCode:        "341",
			Environment:     env,
			ClientID:        getEnv("ITAU_CLIENT_ID", ""),
			ClientSecret:    getEnv("ITAU_CLIENT_SECRET", ""),
			CertPEM:         getEnv("ITAU_CERT_PEM", ""),
			KeyPEM:          getEnv("ITAU_KEY_PEM", ""),
			Agreement:       getEnv("ITAU_AGREEMENT", ""),
			Wallet:          getEnv("ITAU_WALLET", "109"),
			Agency:          getEnv("ITAU_AGENCY", ""),
			Account:         getEnv("ITAU_ACCOUNT", ""),
			CompanyName:     cfg.CompanyName,
			CompanyDocument: cfg.CompanyDocument,
			TokenURL:        getEnv("ITAU_TOKEN_URL", ""),
			APIURL:          getEnv("ITAU_API_URL", ""),
		}
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
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
