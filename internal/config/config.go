package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	DBPath   string
	LogLevel string

	OracleURL     string
	OracleTimeout time.Duration
	MemoryURL     string
	MemoryTimeout time.Duration
	EffectTimeout time.Duration

	NearTimeoutSeconds int
	StageKeywordsPath  string

	DeferredAssessment    bool
	AssessmentWorkerCount int
	AssessmentQueueSize   int
	SweepInterval         time.Duration
	SweepMinAge           time.Duration
}

// Load reads configuration from a .env file (if present) and environment variables,
// applying defaults when values are missing or invalid.
func Load() Config {
	// Ignore error so the app still starts when .env is absent in production.
	_ = godotenv.Load()

	return Config{
		Addr:                  envOr("ADDR", ":8080"),
		DBPath:                envOr("DB_PATH", "file:simclinic.db"),
		LogLevel:              envOr("LOG_LEVEL", "INFO"),
		OracleURL:             envOr("ORACLE_URL", "http://localhost:8001"),
		OracleTimeout:         envDurationOr("ORACLE_TIMEOUT", 2*time.Minute),
		MemoryURL:             envOr("MEMORY_URL", "http://localhost:8002"),
		MemoryTimeout:         envDurationOr("MEMORY_TIMEOUT", 15*time.Second),
		EffectTimeout:         envDurationOr("EFFECT_TIMEOUT", 30*time.Second),
		NearTimeoutSeconds:    envIntOr("NEAR_TIMEOUT_SECONDS", 300),
		StageKeywordsPath:     envOr("STAGE_KEYWORDS_PATH", ""),
		DeferredAssessment:    envBoolOr("DEFERRED_ASSESSMENT", false),
		AssessmentWorkerCount: envIntOr("ASSESSMENT_WORKER_COUNT", 2),
		AssessmentQueueSize:   envIntOr("ASSESSMENT_QUEUE_SIZE", 64),
		SweepInterval:         envDurationOr("SWEEP_INTERVAL", time.Minute),
		SweepMinAge:           envDurationOr("SWEEP_MIN_AGE", 2*time.Minute),
	}
}

// Validate checks every setting and reports all problems at once.
func (c Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Addr) == "" {
		problems = append(problems, "ADDR cannot be empty")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		problems = append(problems, "DB_PATH cannot be empty")
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		problems = append(problems, fmt.Sprintf("LOG_LEVEL must be one of DEBUG, INFO, WARN, ERROR (got %q)", c.LogLevel))
	}
	if err := checkURL(c.OracleURL); err != nil {
		problems = append(problems, fmt.Sprintf("ORACLE_URL %v", err))
	}
	if err := checkURL(c.MemoryURL); err != nil {
		problems = append(problems, fmt.Sprintf("MEMORY_URL %v", err))
	}
	if c.OracleTimeout <= 0 {
		problems = append(problems, "ORACLE_TIMEOUT must be positive")
	}
	if c.MemoryTimeout <= 0 {
		problems = append(problems, "MEMORY_TIMEOUT must be positive")
	}
	if c.EffectTimeout <= 0 {
		problems = append(problems, "EFFECT_TIMEOUT must be positive")
	}
	if c.NearTimeoutSeconds < 0 {
		problems = append(problems, "NEAR_TIMEOUT_SECONDS cannot be negative")
	}
	if c.StageKeywordsPath != "" {
		if _, err := os.Stat(c.StageKeywordsPath); err != nil {
			problems = append(problems, fmt.Sprintf("STAGE_KEYWORDS_PATH not readable: %v", err))
		}
	}
	if c.AssessmentWorkerCount < 1 || c.AssessmentWorkerCount > 32 {
		problems = append(problems, "ASSESSMENT_WORKER_COUNT must be between 1 and 32")
	}
	if c.AssessmentQueueSize < 1 {
		problems = append(problems, "ASSESSMENT_QUEUE_SIZE must be at least 1")
	}
	if c.SweepInterval <= 0 {
		problems = append(problems, "SWEEP_INTERVAL must be positive")
	}
	if c.SweepMinAge < 0 {
		problems = append(problems, "SWEEP_MIN_AGE cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func checkURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("cannot be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https (got %q)", raw)
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOr(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		log.Printf("invalid value for %s=%q, using default %d", key, v, def)
	}
	return def
}

func envBoolOr(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("invalid value for %s=%q, using default %t", key, v, def)
	}
	return def
}

func envDurationOr(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("invalid value for %s=%q, using default %s", key, v, def)
	}
	return def
}
