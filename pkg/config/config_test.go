package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.sikkasoft.com/v4/practice_query", cfg.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "sqlserver", cfg.DBDriver)
	assert.Equal(t, "test_data.json", cfg.TestDataFile)
	assert.False(t, cfg.IsDev())
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvFileAndOverrides(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "PQL_REQUEST_KEY=from-file\nPQL_TIMEOUT=5s\nDB_DRIVER=sqlite\nENV=development\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0644))

	t.Setenv("DB_DRIVER", "postgres")

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.RequestKey)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.True(t, cfg.IsDev())
}

func TestValidate(t *testing.T) {
	base := Config{
		Endpoint: "https://example.test/pql",
		Timeout:  time.Second,
		DBDriver: "sqlite",
		LogLevel: "info",
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty endpoint", func(c *Config) { c.Endpoint = "" }},
		{"non-http endpoint", func(c *Config) { c.Endpoint = "ftp://x" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"unknown driver", func(c *Config) { c.DBDriver = "oracle" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
	}

	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateDriverAliases(t *testing.T) {
	for _, driver := range []string{"sqlserver", "mssql", "postgres", "postgresql", "pgx", "sqlite", "sqlite3", "SQLite"} {
		cfg := Config{Endpoint: "https://example.test/pql", Timeout: time.Second, DBDriver: driver, LogLevel: "info"}
		assert.NoError(t, cfg.Validate(), driver)
	}
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	cfg := &Config{LogLevel: "warn"}

	log := cfg.Logger(&buf, false)
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"message":"shown"`)

	buf.Reset()
	verbose := cfg.Logger(&buf, true)
	verbose.Debug().Msg("debugging")
	assert.Contains(t, buf.String(), "debugging")
	assert.NotContains(t, buf.String(), `"message"`)
}
