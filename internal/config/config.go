package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Logging     LoggingConfig
	Environment string
}

type ServerConfig struct {
	Host    string
	Port    int
	BaseURL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type AuthConfig struct {
	JWTSecret  string
	JWTExpiry  time.Duration
	JWTIssuer  string
	BcryptCost int
}

type RateLimitConfig struct {
	PerMinute      int
	LoginPerMinute int
}

type CORSConfig struct {
	AllowedOrigins  []string
	AllowAllOrigins bool
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host:    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:    getEnvInt("SERVER_PORT", 8080),
			BaseURL: getEnv("SERVER_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			JWTExpiry:  time.Duration(getEnvInt("JWT_EXPIRY_MINUTES", 30)) * time.Minute,
			JWTIssuer:  getEnv("JWT_ISSUER", "neofi-events"),
			BcryptCost: getEnvInt("BCRYPT_COST", 12),
		},
		RateLimit: RateLimitConfig{
			PerMinute:      getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
			LoginPerMinute: getEnvInt("RATE_LIMIT_LOGIN_PER_MINUTE", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	cfg.CORS.AllowAllOrigins = cfg.Environment == "development" && len(cfg.CORS.AllowedOrigins) == 0

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	return cfg, nil
}

// fileConfig mirrors Config for the optional YAML config file. Unset fields
// keep their environment-derived values.
type fileConfig struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"server"`
	Database struct {
		URL            string `yaml:"url"`
		MaxConnections int    `yaml:"max_connections"`
		MaxIdle        int    `yaml:"max_idle"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret        string `yaml:"jwt_secret"`
		JWTExpiryMinutes int    `yaml:"jwt_expiry_minutes"`
		JWTIssuer        string `yaml:"jwt_issuer"`
		BcryptCost       int    `yaml:"bcrypt_cost"`
	} `yaml:"auth"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Environment string `yaml:"environment"`
}

// ApplyFile overlays values from a YAML config file onto cfg.
func ApplyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if fc.Server.Host != "" {
		cfg.Server.Host = fc.Server.Host
	}
	if fc.Server.Port != 0 {
		cfg.Server.Port = fc.Server.Port
	}
	if fc.Server.BaseURL != "" {
		cfg.Server.BaseURL = fc.Server.BaseURL
	}
	if fc.Database.URL != "" {
		cfg.Database.URL = fc.Database.URL
	}
	if fc.Database.MaxConnections != 0 {
		cfg.Database.MaxConnections = fc.Database.MaxConnections
	}
	if fc.Database.MaxIdle != 0 {
		cfg.Database.MaxIdle = fc.Database.MaxIdle
	}
	if fc.Auth.JWTSecret != "" {
		cfg.Auth.JWTSecret = fc.Auth.JWTSecret
	}
	if fc.Auth.JWTExpiryMinutes != 0 {
		cfg.Auth.JWTExpiry = time.Duration(fc.Auth.JWTExpiryMinutes) * time.Minute
	}
	if fc.Auth.JWTIssuer != "" {
		cfg.Auth.JWTIssuer = fc.Auth.JWTIssuer
	}
	if fc.Auth.BcryptCost != 0 {
		cfg.Auth.BcryptCost = fc.Auth.BcryptCost
	}
	if fc.Logging.Level != "" {
		cfg.Logging.Level = fc.Logging.Level
	}
	if fc.Logging.Format != "" {
		cfg.Logging.Format = fc.Logging.Format
	}
	if fc.Environment != "" {
		cfg.Environment = fc.Environment
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitAndTrim(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
