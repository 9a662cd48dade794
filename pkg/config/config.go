// Package config loads settings from a .env file and the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/atomicdeploy/pql-testkit/pkg/dbcheck"
)

const DefaultEnvFile = ".env"

type Config struct {
	Endpoint        string        `mapstructure:"PQL_ENDPOINT"`
	RequestKey      string        `mapstructure:"PQL_REQUEST_KEY"`
	Timeout         time.Duration `mapstructure:"PQL_TIMEOUT"`
	SchemaFile      string        `mapstructure:"SCHEMA_FILE"`
	DBDriver        string        `mapstructure:"DB_DRIVER"`
	DBDSN           string        `mapstructure:"DB_DSN"`
	RegistrationURL string        `mapstructure:"REGISTRATION_URL"`
	TestDataFile    string        `mapstructure:"TEST_DATA_FILE"`
	Env             string        `mapstructure:"ENV"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
}

var keys = []string{
	"PQL_ENDPOINT",
	"PQL_REQUEST_KEY",
	"PQL_TIMEOUT",
	"SCHEMA_FILE",
	"DB_DRIVER",
	"DB_DSN",
	"REGISTRATION_URL",
	"TEST_DATA_FILE",
	"ENV",
	"LOG_LEVEL",
}

// Load reads envFile (when it exists) and the process environment.
// Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PQL_ENDPOINT", "https://api.sikkasoft.com/v4/practice_query")
	v.SetDefault("PQL_TIMEOUT", "30s")
	v.SetDefault("DB_DRIVER", "sqlserver")
	v.SetDefault("REGISTRATION_URL", "https://qaapiv4.sikkasoft.com/v4/portal/authentication/sai-register")
	v.SetDefault("TEST_DATA_FILE", "test_data.json")
	v.SetDefault("ENV", "production")
	v.SetDefault("LOG_LEVEL", "info")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("PQL_ENDPOINT must not be empty")
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("PQL_ENDPOINT must be an http(s) URL, got %q", c.Endpoint)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("PQL_TIMEOUT must be positive, got %s", c.Timeout)
	}
	if _, err := dbcheck.ParseDialect(c.DBDriver); err != nil {
		return fmt.Errorf("DB_DRIVER: %w", err)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Logger builds the structured logger. Development mode and verbose output
// use the human-readable console writer.
func (c *Config) Logger(out io.Writer, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	if c.IsDev() || verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	}
	return logger.Level(level)
}
