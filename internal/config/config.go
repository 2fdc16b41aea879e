// Package config assembles process-wide configuration from environment
// variables: a single Config struct with grouped sub-configs and a Load
// function that applies defaults before validating. There is no
// per-deployment authoring step, so configuration stays flat: environment
// variables in, one struct out.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/owensanzas/vulnsentinel/internal/database"
)

// Config is the umbrella configuration object passed to every long-running
// component at startup.
type Config struct {
	Database  database.Config
	Scheduler SchedulerConfig
	GitHub    GitHubConfig
	LLM       LLMConfig
	Mail      MailConfig
	Cursor    CursorConfig
	HTTP      HTTPConfig
}

// SchedulerConfig controls polling cadence per pipeline stage. Defaults
// place dependency scanning on the slowest cadence, then collection, then
// the downstream stages, all overridable in seconds via the
// VULNSENTINEL_*_INTERVAL variables.
type SchedulerConfig struct {
	ScanInterval         time.Duration
	CollectInterval      time.Duration
	ClassifyInterval     time.Duration
	AnalyzeInterval      time.Duration
	ImpactInterval       time.Duration
	ReachabilityInterval time.Duration
	NotifyInterval       time.Duration

	// ScanCutoff is how stale a library's last_scanned_at must be before
	// the collector considers it due again, independent of how often the
	// collector stage itself wakes up.
	ScanCutoff time.Duration

	CollectConcurrency int `validate:"min=1"`
	AnalyzeConcurrency int `validate:"min=1"`
	ImpactBatchSize    int `validate:"min=1"`
	NotifyBatchSize    int `validate:"min=1"`
}

// DefaultSchedulerConfig returns the built-in scheduler defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		ScanInterval:         30 * time.Minute,
		CollectInterval:      10 * time.Minute,
		ClassifyInterval:     2 * time.Minute,
		AnalyzeInterval:      2 * time.Minute,
		ImpactInterval:       time.Minute,
		ReachabilityInterval: 2 * time.Minute,
		NotifyInterval:       time.Minute,
		ScanCutoff:           time.Hour,
		CollectConcurrency:   5,
		AnalyzeConcurrency:   3,
		ImpactBatchSize:      50,
		NotifyBatchSize:      20,
	}
}

// loadFromEnv overlays the VULNSENTINEL_*_INTERVAL variables (whole
// seconds, per the deployment convention) onto the defaults.
func (s *SchedulerConfig) loadFromEnv() {
	s.ScanInterval = getEnvSecondsOrDefault("VULNSENTINEL_SCAN_INTERVAL", s.ScanInterval)
	s.CollectInterval = getEnvSecondsOrDefault("VULNSENTINEL_COLLECT_INTERVAL", s.CollectInterval)
	s.ClassifyInterval = getEnvSecondsOrDefault("VULNSENTINEL_CLASSIFY_INTERVAL", s.ClassifyInterval)
	s.AnalyzeInterval = getEnvSecondsOrDefault("VULNSENTINEL_ANALYZE_INTERVAL", s.AnalyzeInterval)
	s.ImpactInterval = getEnvSecondsOrDefault("VULNSENTINEL_IMPACT_INTERVAL", s.ImpactInterval)
	s.ReachabilityInterval = getEnvSecondsOrDefault("VULNSENTINEL_REACHABILITY_INTERVAL", s.ReachabilityInterval)
	s.NotifyInterval = getEnvSecondsOrDefault("VULNSENTINEL_NOTIFY_INTERVAL", s.NotifyInterval)
	if mins := getEnvIntOrDefault("VULNSENTINEL_SCAN_CUTOFF_MINUTES", 0); mins > 0 {
		s.ScanCutoff = time.Duration(mins) * time.Minute
	}
	s.CollectConcurrency = getEnvIntOrDefault("VULNSENTINEL_COLLECT_CONCURRENCY", s.CollectConcurrency)
	s.AnalyzeConcurrency = getEnvIntOrDefault("VULNSENTINEL_ANALYZE_CONCURRENCY", s.AnalyzeConcurrency)
}

// GitHubConfig holds the token and HTTP tuning used by pkg/githubapi.
type GitHubConfig struct {
	Token      string `validate:"required"`
	BaseURL    string `validate:"required,url"`
	MaxRetries int    `validate:"min=0"`
	Timeout    time.Duration
}

// LLMConfig selects the langchaingo-backed provider used by pkg/llmagent.
type LLMConfig struct {
	Provider string `validate:"required"`
	Model    string `validate:"required"`
	APIKey   string `validate:"required"`
	MaxTurns int    `validate:"min=1"`
}

// MailConfig configures the SMTP notifier in pkg/notify.
type MailConfig struct {
	SMTPHost string
	SMTPPort int
	User     string
	Password string
	From     string
	NotifyTo string
}

// CursorConfig carries the HMAC secret used by pkg/cursor.
type CursorConfig struct {
	Secret string
}

// HTTPConfig controls the operator-facing API surface.
type HTTPConfig struct {
	Addr           string
	MetricsEnabled bool
}

// Load reads configuration from the environment, applying defaults for
// everything optional and failing closed on anything required.
func Load() (Config, error) {
	dbCfg, err := database.LoadConfigFromEnv()
	if err != nil {
		return Config{}, fmt.Errorf("load database config: %w", err)
	}

	sched := DefaultSchedulerConfig()
	sched.loadFromEnv()

	cfg := Config{
		Database:  dbCfg,
		Scheduler: sched,
		GitHub: GitHubConfig{
			Token:      getEnvOrDefault("VULNSENTINEL_GITHUB_TOKEN", os.Getenv("GITHUB_TOKEN")),
			BaseURL:    getEnvOrDefault("VULNSENTINEL_GITHUB_API_URL", "https://api.github.com"),
			MaxRetries: getEnvIntOrDefault("VULNSENTINEL_GITHUB_MAX_RETRIES", 3),
			Timeout:    getEnvDurationOrDefault("VULNSENTINEL_GITHUB_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Provider: getEnvOrDefault("VULNSENTINEL_LLM_PROVIDER", "openai"),
			Model:    getEnvOrDefault("VULNSENTINEL_LLM_MODEL", "gpt-4o"),
			APIKey:   os.Getenv("VULNSENTINEL_LLM_API_KEY"),
			MaxTurns: getEnvIntOrDefault("VULNSENTINEL_LLM_MAX_TURNS", 12),
		},
		Mail: MailConfig{
			SMTPHost: getEnvOrDefault("VULNSENTINEL_SMTP_HOST", "smtp.gmail.com"),
			SMTPPort: getEnvIntOrDefault("VULNSENTINEL_SMTP_PORT", 587),
			User:     os.Getenv("VULNSENTINEL_SMTP_USER"),
			Password: os.Getenv("VULNSENTINEL_SMTP_PASSWORD"),
			From:     os.Getenv("VULNSENTINEL_SMTP_FROM"),
			NotifyTo: os.Getenv("VULNSENTINEL_NOTIFY_TO"),
		},
		Cursor: CursorConfig{
			Secret: getEnvOrDefault("VULNSENTINEL_CURSOR_SECRET", "changeme-cursor-secret"),
		},
		HTTP: HTTPConfig{
			Addr:           getEnvOrDefault("VULNSENTINEL_HTTP_ADDR", ":8080"),
			MetricsEnabled: getEnvBoolOrDefault("VULNSENTINEL_METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate runs the struct-tag rules across every sub-config. Database
// validation is delegated to database.Config.Validate, which already ran
// inside LoadConfigFromEnv — re-checking here would only duplicate it.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvSecondsOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(val)
	if err != nil || secs <= 0 {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
