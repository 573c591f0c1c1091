package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`
	DBSchema      string `mapstructure:"DB_SCHEMA"`
	AutoMigrate   bool   `mapstructure:"AUTO_MIGRATE"`

	HealthieAPIURL       string        `mapstructure:"HEALTHIE_API_URL"`
	HealthieAPIKey       string        `mapstructure:"HEALTHIE_API_KEY"`
	HealthieRetries      int           `mapstructure:"HEALTHIE_RETRIES"`
	HealthieTimeout      time.Duration `mapstructure:"HEALTHIE_TIMEOUT"`
	HealthieRetryWaitMin time.Duration `mapstructure:"HEALTHIE_RETRY_WAIT_MIN"`
	HealthieRetryWaitMax time.Duration `mapstructure:"HEALTHIE_RETRY_WAIT_MAX"`

	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
}

var defaultCORSOrigins = []string{
	"http://localhost:5000",
	"https://localhost:5001",
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:5046",
	"https://localhost:5046",
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORAGE_DRIVER", "DATABASE_URL", "SQLITE_PATH", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"MIGRATIONS_DIR", "DB_SCHEMA", "AUTO_MIGRATE",
	"HEALTHIE_API_URL", "HEALTHIE_API_KEY", "HEALTHIE_RETRIES", "HEALTHIE_TIMEOUT",
	"HEALTHIE_RETRY_WAIT_MIN", "HEALTHIE_RETRY_WAIT_MAX",
	"CORS_ORIGINS", "REQUEST_TIMEOUT", "BODY_LIMIT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
}

// Load reads configuration from the environment and an optional .env file
// in the working directory. Environment variables win over the file.
func Load() (*Config, error) {
	return load(".env")
}

func load(envFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "5096")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORAGE_DRIVER", DriverPostgres)
	v.SetDefault("SQLITE_PATH", "intake.db")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("DB_SCHEMA", "public")
	v.SetDefault("HEALTHIE_API_URL", "https://staging-api.gethealthie.com/graphql")
	v.SetDefault("HEALTHIE_RETRIES", 3)
	v.SetDefault("HEALTHIE_TIMEOUT", "30s")
	v.SetDefault("HEALTHIE_RETRY_WAIT_MIN", "500ms")
	v.SetDefault("HEALTHIE_RETRY_WAIT_MAX", "5s")
	v.SetDefault("CORS_ORIGINS", strings.Join(defaultCORSOrigins, ","))
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	// Migrations run on start in development unless told otherwise.
	if !v.IsSet("AUTO_MIGRATE") {
		v.Set("AUTO_MIGRATE", v.GetString("ENV") == "development")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.CORSOrigins = splitOrigins(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	return cfg, nil
}

func splitOrigins(parsed []string, raw string) []string {
	if len(parsed) == 1 {
		raw = parsed[0]
	} else if len(parsed) > 1 {
		raw = strings.Join(parsed, ",")
	}
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HealthieConfigured reports whether Healthie calls can be authenticated.
func (c *Config) HealthieConfigured() bool {
	return c.HealthieAPIKey != ""
}

// Validate checks that the configuration is usable before anything connects.
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", DriverPostgres)
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS (%d) and DB_MAX_CONNS (%d) must satisfy 0 <= min <= max, max > 0",
				c.DBMinConns, c.DBMaxConns)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORAGE_DRIVER is %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.StorageDriver)
	}

	u, err := url.Parse(c.HealthieAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("HEALTHIE_API_URL must be an absolute URL, got %q", c.HealthieAPIURL)
	}
	if c.HealthieRetries < 0 {
		return fmt.Errorf("HEALTHIE_RETRIES must not be negative, got %d", c.HealthieRetries)
	}
	if c.HealthieTimeout <= 0 {
		return fmt.Errorf("HEALTHIE_TIMEOUT must be positive, got %s", c.HealthieTimeout)
	}
	if c.HealthieRetryWaitMin <= 0 || c.HealthieRetryWaitMax < c.HealthieRetryWaitMin {
		return fmt.Errorf("HEALTHIE_RETRY_WAIT_MIN (%s) and HEALTHIE_RETRY_WAIT_MAX (%s) must satisfy 0 < min <= max",
			c.HealthieRetryWaitMin, c.HealthieRetryWaitMax)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	return nil
}
