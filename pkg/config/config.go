package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration
type Config struct {
	Environment string
	ServerPort  int
	LogLevel    string

	// SecurityKey keys the credential cipher. Required.
	SecurityKey string
	// ScryptCost is the CPU/memory cost parameter (N) of the cipher.
	ScryptCost int

	// Token signing parameters. All required.
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTExpiry   time.Duration

	DatabaseHost     string
	DatabasePort     int
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string

	RedisURL string

	// Signin throttle: at most SigninMaxAttempts failed attempts per
	// username within SigninWindow before further attempts are rejected.
	SigninMaxAttempts int
	SigninWindow      time.Duration

	// Per-client request rate limit on the credential endpoints.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	port, err := strconv.Atoi(getEnv("SERVER_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	securityKey, err := requireEnv("SECURITY_KEY")
	if err != nil {
		return nil, err
	}

	jwtSecret, err := requireEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	jwtIssuer, err := requireEnv("JWT_ISSUER")
	if err != nil {
		return nil, err
	}

	jwtAudience, err := requireEnv("JWT_AUDIENCE")
	if err != nil {
		return nil, err
	}

	jwtExpiry, err := time.ParseDuration(getEnv("JWT_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRY: %w", err)
	}

	scryptCost, err := strconv.Atoi(getEnv("SCRYPT_COST", "16384"))
	if err != nil {
		return nil, fmt.Errorf("invalid SCRYPT_COST: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DATABASE_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_PORT: %w", err)
	}

	signinMaxAttempts, err := strconv.Atoi(getEnv("SIGNIN_MAX_ATTEMPTS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNIN_MAX_ATTEMPTS: %w", err)
	}

	signinWindow, err := time.ParseDuration(getEnv("SIGNIN_WINDOW", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNIN_WINDOW: %w", err)
	}

	rateLimitRequests, err := strconv.Atoi(getEnv("RATE_LIMIT_REQUESTS", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REQUESTS: %w", err)
	}

	rateLimitWindow, err := time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	return &Config{
		Environment:       getEnv("ENVIRONMENT", "development"),
		ServerPort:        port,
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		SecurityKey:       securityKey,
		ScryptCost:        scryptCost,
		JWTSecret:         jwtSecret,
		JWTIssuer:         jwtIssuer,
		JWTAudience:       jwtAudience,
		JWTExpiry:         jwtExpiry,
		DatabaseHost:      getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:      dbPort,
		DatabaseUser:      getEnv("DATABASE_USER", "identityhub"),
		DatabasePassword:  getEnv("DATABASE_PASSWORD", "dev"),
		DatabaseName:      getEnv("DATABASE_NAME", "identityhub"),
		DatabaseSSLMode:   getEnv("DATABASE_SSLMODE", "disable"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379"),
		SigninMaxAttempts: signinMaxAttempts,
		SigninWindow:      signinWindow,
		RateLimitRequests: rateLimitRequests,
		RateLimitWindow:   rateLimitWindow,
		CORSAllowedOrigins: parseCSVEnv("CORS_ALLOWED_ORIGINS", []string{
			"http://localhost:3000",
		}),
	}, nil
}

func parseCSVEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// requireEnv returns an error when a secret has no value. The caller is
// expected to treat this as fatal at startup.
func requireEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}
