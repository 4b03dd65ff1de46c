/*
config.go - Service configuration

PURPOSE:
  One typed Config for the server and CLI, loaded with viper from an
  optional YAML file plus LEAVE_* environment overrides.

PRECEDENCE (highest first):
  1. Environment: LEAVE_HTTP_ADDR, LEAVE_DATABASE_DSN, LEAVE_SMTP_HOST, ...
     (key path with "." replaced by "_")
  2. Config file passed with --config
  3. Defaults below

USAGE:
    cfg, err := config.Load(path)   // path may be ""
    if err != nil { ... }
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override.
const EnvPrefix = "LEAVE"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	Leave    LeaveConfig    `mapstructure:"leave"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
	// BaseURL prefixes the decision links emailed to supervisors.
	BaseURL         string        `mapstructure:"base_url"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LeaveConfig struct {
	AutoApproveAfter time.Duration `mapstructure:"auto_approve_after"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

type ChatConfig struct {
	APIURL string `mapstructure:"api_url"`
	Token  string `mapstructure:"token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":3001")
	v.SetDefault("http.base_url", "http://127.0.0.1:3001")
	v.SetDefault("http.allowed_origins", []string{})
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.dsn", "leave.db")

	v.SetDefault("leave.auto_approve_after", 72*time.Hour)
	v.SetDefault("leave.notify_timeout", 10*time.Second)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.user", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.use_tls", true)

	v.SetDefault("chat.api_url", "https://api.telegram.org")
	v.SetDefault("chat.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("metrics.enabled", true)
}

// Load reads path (if non-empty), applies env overrides and validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	return &cfg, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func (c *Config) Validate() error {
	var errs []string

	if c.HTTP.Addr == "" {
		errs = append(errs, "http.addr is required")
	}
	if c.HTTP.BaseURL == "" {
		errs = append(errs, "http.base_url is required")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, fmt.Sprintf("database.dsn is required for driver %s", c.Database.Driver))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Sprintf("unknown database.driver %q", c.Database.Driver))
	}

	if c.Leave.AutoApproveAfter <= 0 {
		errs = append(errs, "leave.auto_approve_after must be positive")
	}
	if c.Leave.NotifyTimeout <= 0 {
		errs = append(errs, "leave.notify_timeout must be positive")
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, "smtp.from is required when smtp.host is set")
	}

	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
