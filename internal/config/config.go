package config

import (
	"fmt"
	"time"

	"github.com/harborline/storefront/pkg/database"

	pkgconfig "github.com/harborline/storefront/pkg/config"
)

// Defaults that must never survive into a deployed environment.
const (
	devAccessSecret  = "change-this-access-secret-in-production"
	devRefreshSecret = "change-this-refresh-secret-in-production"

	minSecretLength = 32
)

// Config holds all configuration for the storefront auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"POSTGRES_DB_NAME" envDefault:"storefront_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`

	// Redis session store
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT signing. Access and refresh tokens use separate secrets so a leaked
	// access secret cannot be used to forge refresh tokens.
	JWTAccessSecret  string        `env:"JWT_ACCESS_SECRET" envDefault:"change-this-access-secret-in-production"`
	JWTRefreshSecret string        `env:"JWT_REFRESH_SECRET" envDefault:"change-this-refresh-secret-in-production"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	// Seeded default administrator credentials.
	DefaultAdminEmail    string `env:"DEFAULT_ADMIN_EMAIL" envDefault:"admin@example.com"`
	DefaultAdminPassword string `env:"DEFAULT_ADMIN_PASSWORD" envDefault:"Admin1234"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Per-IP budget on the credential endpoints (login, register, OTP).
	AuthRateLimitRPS   int `env:"AUTH_RATE_LIMIT_RPS" envDefault:"5"`
	AuthRateLimitBurst int `env:"AUTH_RATE_LIMIT_BURST" envDefault:"10"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cfg.HTTPPort < 1 || cfg.HTTPPort > 65535 {
		return nil, fmt.Errorf("invalid HTTP port: %d", cfg.HTTPPort)
	}
	if cfg.JWTAccessExpiry <= 0 || cfg.JWTRefreshExpiry <= 0 {
		return nil, fmt.Errorf("token expiries must be positive")
	}
	if cfg.JWTAccessExpiry >= cfg.JWTRefreshExpiry {
		return nil, fmt.Errorf("access token expiry must be shorter than refresh token expiry")
	}

	// In non-development environments, require explicitly set, strong secrets.
	if cfg.Environment != "development" {
		if cfg.JWTAccessSecret == devAccessSecret {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if cfg.JWTRefreshSecret == devRefreshSecret {
			return nil, fmt.Errorf("JWT_REFRESH_SECRET must be explicitly set via environment variable in %q mode", cfg.Environment)
		}
		if len(cfg.JWTAccessSecret) < minSecretLength {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d characters long, got %d", minSecretLength, len(cfg.JWTAccessSecret))
		}
		if len(cfg.JWTRefreshSecret) < minSecretLength {
			return nil, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d characters long, got %d", minSecretLength, len(cfg.JWTRefreshSecret))
		}
		if cfg.JWTAccessSecret == cfg.JWTRefreshSecret {
			return nil, fmt.Errorf("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
		}
	}

	return cfg, nil
}

// IsProduction reports whether the service runs outside development.
func (c *Config) IsProduction() bool {
	return c.Environment != "development"
}

// Postgres returns the pool configuration for the persistent store.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the connection configuration for the session store.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}
