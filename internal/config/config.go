// Package config loads service configuration from the environment (with an
// optional .env file) and from config/services.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
)

// Config is the full runtime configuration.
type Config struct {
	Environment        string `env:"APP_ENV,default=development"`
	Port               int    `env:"PORT"`
	ServicesConfigPath string `env:"SERVICES_CONFIG,default=config/services.yaml"`
	LogLevel           string `env:"LOG_LEVEL,default=info"`
	LogFormat          string `env:"LOG_FORMAT,default=json"`

	Store      StoreConfig
	GasChecker GasCheckerConfig
	Redis      RedisConfig
	HTTP       HTTPConfig
}

// StoreConfig selects and configures the certificate/audit storage.
type StoreConfig struct {
	Backend           string `env:"STORE_BACKEND,default=memory"`
	SupabaseURL       string `env:"SUPABASE_URL"`
	SupabaseKey       string `env:"SUPABASE_SERVICE_KEY"`
	PostgresDSN       string `env:"DATABASE_URL"`
	CertificatesTable string `env:"GAS_CERTIFICATES_TABLE,default=gas_certificates"`
	LogsTable         string `env:"GAS_CHECKER_LOGS_TABLE,default=gas_checker_logs"`
	SeedDemoData      bool   `env:"SEED_DEMO_DATA,default=true"`
}

// GasCheckerConfig configures evaluation and scheduling.
type GasCheckerConfig struct {
	Cron           string        `env:"GAS_CHECKER_CRON,default=0 * * * *"`
	Timezone       string        `env:"GAS_CHECKER_TZ,default=Europe/London"`
	LookaheadDays  int           `env:"GAS_CHECKER_LOOKAHEAD_DAYS,default=30"`
	RunOnStart     bool          `env:"GAS_CHECKER_RUN_ON_START,default=false"`
	CertificateSet string        `env:"GAS_CHECKER_CERTIFICATE_SET,default=default"`
	FetchTimeout   time.Duration `env:"GAS_CHECKER_FETCH_TIMEOUT,default=10s"`
	FetchRetries   int           `env:"GAS_CHECKER_FETCH_RETRIES,default=2"`
	AuditTimeout   time.Duration `env:"GAS_CHECKER_AUDIT_TIMEOUT,default=10s"`
	LockTimeout    time.Duration `env:"GAS_CHECKER_LOCK_TIMEOUT,default=30s"`
	WebhookURL     string        `env:"ALERT_WEBHOOK_URL"`
	WebhookToken   string        `env:"ALERT_WEBHOOK_TOKEN"`
}

// RedisConfig enables the distributed run lock when URL is set.
type RedisConfig struct {
	URL     string        `env:"REDIS_URL"`
	LockTTL time.Duration `env:"REDIS_LOCK_TTL,default=2m"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	CORSOrigins    string  `env:"CORS_ALLOWED_ORIGINS,default=*"`
	RateLimitRPS   float64 `env:"RUN_RATE_LIMIT_RPS,default=1"`
	RateLimitBurst int     `env:"RUN_RATE_LIMIT_BURST,default=5"`
}

// Load reads an optional .env file and decodes the environment.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv decodes the process environment without touching .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case BackendMemory:
	case BackendSupabase:
		if c.Store.SupabaseURL == "" || c.Store.SupabaseKey == "" {
			return fmt.Errorf("STORE_BACKEND=supabase requires SUPABASE_URL and SUPABASE_SERVICE_KEY")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if c.GasChecker.LookaheadDays <= 0 {
		return fmt.Errorf("GAS_CHECKER_LOOKAHEAD_DAYS must be positive")
	}
	if c.GasChecker.FetchTimeout <= 0 || c.GasChecker.AuditTimeout <= 0 || c.GasChecker.LockTimeout <= 0 {
		return fmt.Errorf("gas checker timeouts must be positive")
	}
	if c.GasChecker.FetchRetries < 0 {
		return fmt.Errorf("GAS_CHECKER_FETCH_RETRIES must not be negative")
	}
	if strings.TrimSpace(c.GasChecker.CertificateSet) == "" {
		return fmt.Errorf("GAS_CHECKER_CERTIFICATE_SET must not be empty")
	}
	if _, err := c.GasChecker.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the scheduler timezone.
func (g GasCheckerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid GAS_CHECKER_TZ %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// Lookahead returns the expiring-soon window.
func (g GasCheckerConfig) Lookahead() time.Duration {
	return time.Duration(g.LookaheadDays) * 24 * time.Hour
}

// IsDevelopment reports whether the service runs outside production.
func (c *Config) IsDevelopment() bool {
	switch strings.ToLower(c.Environment) {
	case "development", "dev", "test", "testing", "local":
		return true
	}
	return false
}

// AllowedOrigins splits CORSOrigins on commas.
func (h HTTPConfig) AllowedOrigins() []string {
	return SplitAndTrimCSV(h.CORSOrigins)
}

// SplitAndTrimCSV splits raw on commas, dropping empty entries.
func SplitAndTrimCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
