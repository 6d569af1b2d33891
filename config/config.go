// Package config loads server configuration from file, environment and
// defaults via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage driver names accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Secret hasher names accepted by SECRET_HASHER.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for viper unmarshalling.
type ServerConfig struct {
	HTTPPort      string `mapstructure:"HTTP_PORT"`
	StorageDriver string `mapstructure:"STORAGE_DRIVER"`

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	PostgresDSN string `mapstructure:"POSTGRES_DSN"`

	// RedisAddr enables the access-token lookup cache when non-empty.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	AuthCodeTTLSec     int `mapstructure:"AUTH_CODE_TTL_SEC"`
	AccessTokenTTLSec  int `mapstructure:"ACCESS_TOKEN_TTL_SEC"`
	RefreshTokenTTLSec int `mapstructure:"REFRESH_TOKEN_TTL_SEC"`

	// SecretHasher selects the client-secret digest algorithm.
	SecretHasher string `mapstructure:"SECRET_HASHER"`

	// AdminAPIKey protects the client management endpoints. The admin
	// surface refuses to start without one.
	AdminAPIKey string `mapstructure:"ADMIN_API_KEY"`

	// TokenRateLimitRPS bounds requests per second on the token endpoint.
	TokenRateLimitRPS float64 `mapstructure:"TOKEN_RATE_LIMIT_RPS"`

	// CleanupIntervalMin drives the expired-row janitor. Zero disables it.
	CleanupIntervalMin int `mapstructure:"CLEANUP_INTERVAL_MIN"`
}

// AuthCodeTTL returns the authorization code lifetime as a duration.
func (c *ServerConfig) AuthCodeTTL() time.Duration {
	return time.Duration(c.AuthCodeTTLSec) * time.Second
}

// AccessTokenTTL returns the access token lifetime as a duration.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLSec) * time.Second
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLSec) * time.Second
}

// Validate rejects configurations the server cannot run with.
func (c *ServerConfig) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.SecretHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("unknown SECRET_HASHER %q", c.SecretHasher)
	}
	if c.StorageDriver == DriverPostgres && c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required with the postgres driver")
	}
	if c.AuthCodeTTLSec <= 0 || c.AccessTokenTTLSec <= 0 || c.RefreshTokenTTLSec <= 0 {
		return errors.New("token TTLs must be positive")
	}
	return nil
}

// LoadConfig reads configuration from file, environment variables, and
// defaults. A missing config file is fine; everything has a default or an
// environment override.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/strand/")
	v.AddConfigPath("$HOME/.strand")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("STORAGE_DRIVER", DriverMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/strand_dev")
	v.SetDefault("MONGO_DB_NAME", "strand_dev")
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "strand")
	v.SetDefault("AUTH_CODE_TTL_SEC", 600)
	v.SetDefault("ACCESS_TOKEN_TTL_SEC", 900)
	v.SetDefault("REFRESH_TOKEN_TTL_SEC", 604800) // 7 days
	v.SetDefault("SECRET_HASHER", HasherBcrypt)
	v.SetDefault("ADMIN_API_KEY", "")
	v.SetDefault("TOKEN_RATE_LIMIT_RPS", 10.0)
	v.SetDefault("CLEANUP_INTERVAL_MIN", 0)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and environment carry the day.
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
