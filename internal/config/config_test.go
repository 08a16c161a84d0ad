package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/simclinic/internal/config"
)

func validConfig() config.Config {
	return config.Config{
		Addr:                  ":8080",
		DBPath:                "test.db",
		LogLevel:              "INFO",
		OracleURL:             "http://oracle:8001",
		OracleTimeout:         2 * time.Minute,
		MemoryURL:             "https://memory.internal",
		MemoryTimeout:         15 * time.Second,
		EffectTimeout:         30 * time.Second,
		NearTimeoutSeconds:    300,
		AssessmentWorkerCount: 2,
		AssessmentQueueSize:   64,
		SweepInterval:         time.Minute,
		SweepMinAge:           2 * time.Minute,
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_EmptyAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADDR cannot be empty")
}

func TestValidate_URLs(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		expected string
	}{
		{
			name:     "empty oracle url",
			mutate:   func(c *config.Config) { c.OracleURL = "" },
			expected: "ORACLE_URL cannot be empty",
		},
		{
			name:     "oracle url without scheme",
			mutate:   func(c *config.Config) { c.OracleURL = "oracle:8001" },
			expected: "ORACLE_URL must use http or https",
		},
		{
			name:     "memory url with ftp scheme",
			mutate:   func(c *config.Config) { c.MemoryURL = "ftp://memory" },
			expected: "MEMORY_URL must use http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestValidate_WorkerSettings(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*config.Config)
		expected string
	}{
		{"zero workers", func(c *config.Config) { c.AssessmentWorkerCount = 0 }, "ASSESSMENT_WORKER_COUNT"},
		{"too many workers", func(c *config.Config) { c.AssessmentWorkerCount = 64 }, "ASSESSMENT_WORKER_COUNT"},
		{"zero queue", func(c *config.Config) { c.AssessmentQueueSize = 0 }, "ASSESSMENT_QUEUE_SIZE"},
		{"zero sweep interval", func(c *config.Config) { c.SweepInterval = 0 }, "SWEEP_INTERVAL"},
		{"zero oracle timeout", func(c *config.Config) { c.OracleTimeout = 0 }, "ORACLE_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expected)
		})
	}
}

func TestValidate_MissingKeywordsFile(t *testing.T) {
	cfg := validConfig()
	cfg.StageKeywordsPath = "/nonexistent/keywords.yaml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STAGE_KEYWORDS_PATH")
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := config.Config{LogLevel: "LOUD"}

	err := cfg.Validate()
	require.Error(t, err)
	errStr := err.Error()
	assert.Contains(t, errStr, "ADDR cannot be empty")
	assert.Contains(t, errStr, "DB_PATH cannot be empty")
	assert.Contains(t, errStr, "LOG_LEVEL")
	assert.Contains(t, errStr, "ORACLE_URL")
	assert.Contains(t, errStr, "MEMORY_URL")
	assert.Contains(t, errStr, "ASSESSMENT_WORKER_COUNT")
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("ADDR", ":9090")
	t.Setenv("DB_PATH", "custom.db")
	t.Setenv("ORACLE_TIMEOUT", "90s")
	t.Setenv("DEFERRED_ASSESSMENT", "true")
	t.Setenv("NEAR_TIMEOUT_SECONDS", "120")

	cfg := config.Load()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "custom.db", cfg.DBPath)
	assert.Equal(t, 90*time.Second, cfg.OracleTimeout)
	assert.True(t, cfg.DeferredAssessment)
	assert.Equal(t, 120, cfg.NearTimeoutSeconds)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("ORACLE_TIMEOUT", "two minutes")
	t.Setenv("ASSESSMENT_WORKER_COUNT", "many")
	t.Setenv("DEFERRED_ASSESSMENT", "maybe")

	cfg := config.Load()

	assert.Equal(t, 2*time.Minute, cfg.OracleTimeout)
	assert.Equal(t, 2, cfg.AssessmentWorkerCount)
	assert.False(t, cfg.DeferredAssessment)
}
