package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the server needs at startup so main stays lean.
type Config struct {
	Addr          string
	JWTSigningKey string

	OAuth      OAuthConfig
	DM         DMConfig
	Enrollment EnrollmentConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
}

// OAuthConfig points at the identity provider endpoints used during
// enrollment.
type OAuthConfig struct {
	TokenURL       string
	UserInfoURL    string
	ClientID       string
	ClientSecret   string
	RequestTimeout time.Duration
}

// DMConfig points at the device-management service.
type DMConfig struct {
	ServiceURL     string
	RequestTimeout time.Duration
}

// EnrollmentConfig controls registration policy.
type EnrollmentConfig struct {
	RegistrationType string
	// ForceLoadPolicy bypasses the hosted-domain eligibility gate.
	ForceLoadPolicy bool
	AttemptTimeout  time.Duration
}

// RedisConfig configures the optional token cache backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the audit store. Empty URL keeps audit in memory.
type PostgresConfig struct {
	URL string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:          envOr("ENROLLD_ADDR", ":8080"),
		JWTSigningKey: envOr("ENROLLD_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		OAuth: OAuthConfig{
			TokenURL:       envOr("ENROLLD_OAUTH_TOKEN_URL", "https://accounts.example.com/oauth2/token"),
			UserInfoURL:    envOr("ENROLLD_OAUTH_USERINFO_URL", "https://accounts.example.com/oauth2/userinfo"),
			ClientID:       os.Getenv("ENROLLD_OAUTH_CLIENT_ID"),
			ClientSecret:   os.Getenv("ENROLLD_OAUTH_CLIENT_SECRET"),
			RequestTimeout: envDuration("ENROLLD_OAUTH_TIMEOUT", 10*time.Second),
		},
		DM: DMConfig{
			ServiceURL:     envOr("ENROLLD_DM_SERVICE_URL", "https://dm.example.com"),
			RequestTimeout: envDuration("ENROLLD_DM_TIMEOUT", 15*time.Second),
		},
		Enrollment: EnrollmentConfig{
			RegistrationType: envOr("ENROLLD_REGISTRATION_TYPE", "user"),
			ForceLoadPolicy:  os.Getenv("ENROLLD_FORCE_LOAD_POLICY") == "true",
			AttemptTimeout:   envDuration("ENROLLD_ATTEMPT_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("ENROLLD_REDIS_URL"),
			PoolSize:     envInt("ENROLLD_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("ENROLLD_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDuration("ENROLLD_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("ENROLLD_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("ENROLLD_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("ENROLLD_POSTGRES_URL"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
