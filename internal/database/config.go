// Package database provides the PostgreSQL connection pool, embedded schema
// migrations, and a connectivity health check.
package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds database connection and pool settings.
type Config struct {
	DSN string

	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv loads database configuration from environment variables.
// VULNSENTINEL_DATABASE_URL, if set, is used verbatim as the pgx DSN.
// Otherwise the discrete VULNSENTINEL_DB_* variables are assembled into
// one.
func LoadConfigFromEnv() (Config, error) {
	if dsn := os.Getenv("VULNSENTINEL_DATABASE_URL"); dsn != "" {
		cfg := Config{DSN: dsn}
		if err := loadPoolSettings(&cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}

	port, err := strconv.Atoi(getEnvOrDefault("VULNSENTINEL_DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid VULNSENTINEL_DB_PORT: %w", err)
	}

	cfg := Config{
		Host:     getEnvOrDefault("VULNSENTINEL_DB_HOST", "localhost"),
		Port:     port,
		User:     getEnvOrDefault("VULNSENTINEL_DB_USER", "vulnsentinel"),
		Password: os.Getenv("VULNSENTINEL_DB_PASSWORD"),
		Database: getEnvOrDefault("VULNSENTINEL_DB_NAME", "vulnsentinel"),
		SSLMode:  getEnvOrDefault("VULNSENTINEL_DB_SSLMODE", "disable"),
	}
	if err := loadPoolSettings(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadPoolSettings(cfg *Config) error {
	maxOpen, _ := strconv.Atoi(getEnvOrDefault("VULNSENTINEL_DB_MAX_OPEN_CONNS", "25"))
	maxIdle, _ := strconv.Atoi(getEnvOrDefault("VULNSENTINEL_DB_MAX_IDLE_CONNS", "10"))

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("VULNSENTINEL_DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return fmt.Errorf("invalid VULNSENTINEL_DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("VULNSENTINEL_DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return fmt.Errorf("invalid VULNSENTINEL_DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg.MaxOpenConns = maxOpen
	cfg.MaxIdleConns = maxIdle
	cfg.ConnMaxLifetime = maxLifetime
	cfg.ConnMaxIdleTime = maxIdleTime
	return nil
}

// Validate checks that discrete-field configuration is self-consistent. It
// is a no-op validity check when DSN is set directly.
func (c Config) Validate() error {
	if c.DSN != "" {
		return nil
	}
	if c.Password == "" {
		return fmt.Errorf("VULNSENTINEL_DB_PASSWORD is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("VULNSENTINEL_DB_MAX_IDLE_CONNS (%d) cannot exceed VULNSENTINEL_DB_MAX_OPEN_CONNS (%d)",
			c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.MaxOpenConns < 1 {
		return fmt.Errorf("VULNSENTINEL_DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.MaxIdleConns < 0 {
		return fmt.Errorf("VULNSENTINEL_DB_MAX_IDLE_CONNS cannot be negative")
	}
	return nil
}

func (c Config) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
