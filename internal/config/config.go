package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/stock-packs/internal/inventory"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultLogLevel       = "info"
	defaultEnvFile        = ".env"
	defaultInventoryFile  = "data/inventory.yaml"
	defaultSQLitePath     = "data/inventory.db"
	defaultPollInterval   = 2 * time.Second
	defaultDeductionMode  = "best_effort"
)

// Storage backends.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

var backends = []string{BackendMemory, BackendFile, BackendSQLite, BackendPostgres, BackendFirestore}

var deductionModes = []string{"best_effort", "atomic"}

var logLevels = []string{"debug", "info", "warn", "error"}

// Config aggregates runtime configuration resolved from multiple sources.
// Precedence: CLI flags > YAML config > Environment variables > Defaults
type Config struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
	LogLevel             string
	Storage              StorageConfig
	DeductionMode        string
	Rules                inventory.Rules
}

// StorageConfig selects and configures the inventory store.
type StorageConfig struct {
	Backend                  string
	FilePath                 string
	SQLitePath               string
	DatabaseURL              string
	FirestoreProjectID       string
	FirestoreCollection      string
	FirestoreCredentialsFile string
	PollInterval             time.Duration
}

// yamlConfig represents the YAML configuration file structure.
type yamlConfig struct {
	Port                 string          `yaml:"port"`
	PackSizes            []string        `yaml:"pack_sizes"`
	ShutdownGracePeriod  string          `yaml:"shutdown_grace_period"`
	ReadHeaderTimeout    string          `yaml:"read_header_timeout"`
	WriteTimeout         string          `yaml:"write_timeout"`
	IdleTimeout          string          `yaml:"idle_timeout"`
	EnableRequestLogging *bool           `yaml:"enable_request_logging"`
	LogLevel             string          `yaml:"log_level"`
	RateLimit            yamlRateLimit   `yaml:"rate_limit"`
	Storage              yamlStorage     `yaml:"storage"`
	Deduction            yamlDeduction   `yaml:"deduction"`
	Rules                inventory.Rules `yaml:"rules"`
}

// yamlRateLimit represents the rate limit section in YAML.
type yamlRateLimit struct {
	RPS   *float64 `yaml:"rps"`
	Burst *int     `yaml:"burst"`
}

type yamlStorage struct {
	Backend      string        `yaml:"backend"`
	FilePath     string        `yaml:"file_path"`
	SQLitePath   string        `yaml:"sqlite_path"`
	DatabaseURL  string        `yaml:"database_url"`
	PollInterval string        `yaml:"poll_interval"`
	Firestore    yamlFirestore `yaml:"firestore"`
}

type yamlFirestore struct {
	ProjectID       string `yaml:"project_id"`
	Collection      string `yaml:"collection"`
	CredentialsFile string `yaml:"credentials_file"`
}

type yamlDeduction struct {
	Mode string `yaml:"mode"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	Port           *string
	PackSizesStr   *string
	RateLimitRPS   *float64
	RateLimitBurst *int
	LogLevel       *string
	StorageBackend *string
	DatabaseURL    *string
	DeductionMode  *string
}

// Load extracts configuration from multiple sources with precedence:
// CLI flags > YAML config > Environment variables > Defaults
//
// Variables from the env file (".env" unless overridden) are added to the
// process environment first; variables already set are left untouched.
func Load(overrides *CLIOverrides) (Config, error) {
	if err := loadEnvFile(overrides); err != nil {
		return Config{}, err
	}

	cfg := defaultConfig()

	// Apply environment variables
	if err := applyEnvConfig(&cfg); err != nil {
		return Config{}, err
	}

	// Load from YAML file if specified (overrides environment)
	if overrides != nil && overrides.ConfigFile != "" {
		yamlCfg, err := loadFromFile(overrides.ConfigFile)
		if err != nil {
			return Config{}, fmt.Errorf("load YAML config: %w", err)
		}
		if err := applyYAMLConfig(&cfg, yamlCfg); err != nil {
			return Config{}, fmt.Errorf("apply YAML config: %w", err)
		}
	}

	// Apply CLI overrides (highest precedence)
	if overrides != nil {
		if err := applyCLIOverrides(&cfg, overrides); err != nil {
			return Config{}, err
		}
	}

	// Validate final configuration
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadEnvFile loads an explicitly requested env file, failing if it is
// missing, or the default .env when present.
func loadEnvFile(overrides *CLIOverrides) error {
	if overrides != nil && overrides.EnvFile != "" {
		if err := godotenv.Load(overrides.EnvFile); err != nil {
			return fmt.Errorf("load env file %s: %w", overrides.EnvFile, err)
		}
		return nil
	}

	if _, err := os.Stat(defaultEnvFile); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(defaultEnvFile); err != nil {
		return fmt.Errorf("load env file %s: %w", defaultEnvFile, err)
	}
	return nil
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	return Config{
		Port:                 defaultPort,
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         defaultRateLimitRPS,
		RateLimitBurst:       defaultRateLimitBurst,
		LogLevel:             defaultLogLevel,
		Storage: StorageConfig{
			Backend:      BackendMemory,
			FilePath:     defaultInventoryFile,
			SQLitePath:   defaultSQLitePath,
			PollInterval: defaultPollInterval,
		},
		DeductionMode: defaultDeductionMode,
		Rules:         inventory.DefaultRules(),
	}
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*yamlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var yamlCfg yamlConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	return &yamlCfg, nil
}

// applyYAMLConfig applies YAML configuration to the Config struct.
func applyYAMLConfig(cfg *Config, yamlCfg *yamlConfig) error {
	if yamlCfg.Port != "" {
		cfg.Port = yamlCfg.Port
	}

	cfg.Rules = cfg.Rules.Merge(yamlCfg.Rules)
	if len(yamlCfg.PackSizes) > 0 {
		cfg.Rules.PackSizes = yamlCfg.PackSizes
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{yamlCfg.ShutdownGracePeriod, "shutdown_grace_period", &cfg.ShutdownGracePeriod},
		{yamlCfg.ReadHeaderTimeout, "read_header_timeout", &cfg.ReadHeaderTimeout},
		{yamlCfg.WriteTimeout, "write_timeout", &cfg.WriteTimeout},
		{yamlCfg.IdleTimeout, "idle_timeout", &cfg.IdleTimeout},
		{yamlCfg.Storage.PollInterval, "storage.poll_interval", &cfg.Storage.PollInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	if yamlCfg.EnableRequestLogging != nil {
		cfg.EnableRequestLogging = *yamlCfg.EnableRequestLogging
	}
	if yamlCfg.LogLevel != "" {
		cfg.LogLevel = yamlCfg.LogLevel
	}

	if yamlCfg.RateLimit.RPS != nil {
		cfg.RateLimitRPS = *yamlCfg.RateLimit.RPS
	}
	if yamlCfg.RateLimit.Burst != nil {
		cfg.RateLimitBurst = *yamlCfg.RateLimit.Burst
	}

	st := yamlCfg.Storage
	setIfNotEmpty(&cfg.Storage.Backend, st.Backend)
	setIfNotEmpty(&cfg.Storage.FilePath, st.FilePath)
	setIfNotEmpty(&cfg.Storage.SQLitePath, st.SQLitePath)
	setIfNotEmpty(&cfg.Storage.DatabaseURL, st.DatabaseURL)
	setIfNotEmpty(&cfg.Storage.FirestoreProjectID, st.Firestore.ProjectID)
	setIfNotEmpty(&cfg.Storage.FirestoreCollection, st.Firestore.Collection)
	setIfNotEmpty(&cfg.Storage.FirestoreCredentialsFile, st.Firestore.CredentialsFile)

	setIfNotEmpty(&cfg.DeductionMode, yamlCfg.Deduction.Mode)
	return nil
}

// applyEnvConfig applies environment variable configuration.
func applyEnvConfig(cfg *Config) error {
	if port := env("PORT"); port != "" {
		cfg.Port = port
	}

	if rawSizes := env("PACK_SIZES"); rawSizes != "" {
		sizes, err := parsePackSizes(rawSizes)
		if err != nil {
			return fmt.Errorf("PACK_SIZES: %w", err)
		}
		cfg.Rules.PackSizes = sizes
	}

	if rps := env("RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.RateLimitRPS = value
		}
	}

	if burst := env("RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.RateLimitBurst = value
		}
	}

	if raw := env("ENABLE_REQUEST_LOGGING"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			cfg.EnableRequestLogging = value
		}
	}

	if raw := env("STORAGE_POLL_INTERVAL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("STORAGE_POLL_INTERVAL: %w", err)
		}
		cfg.Storage.PollInterval = d
	}

	setIfNotEmpty(&cfg.LogLevel, env("LOG_LEVEL"))
	setIfNotEmpty(&cfg.Storage.Backend, env("STORAGE_BACKEND"))
	setIfNotEmpty(&cfg.Storage.FilePath, env("INVENTORY_FILE"))
	setIfNotEmpty(&cfg.Storage.SQLitePath, env("SQLITE_PATH"))
	setIfNotEmpty(&cfg.Storage.DatabaseURL, env("DATABASE_URL"))
	setIfNotEmpty(&cfg.Storage.FirestoreProjectID, env("GOOGLE_CLOUD_PROJECT"))
	setIfNotEmpty(&cfg.Storage.FirestoreProjectID, env("FIRESTORE_PROJECT_ID"))
	setIfNotEmpty(&cfg.Storage.FirestoreCollection, env("FIRESTORE_COLLECTION"))
	setIfNotEmpty(&cfg.Storage.FirestoreCredentialsFile, env("FIRESTORE_CREDENTIALS_FILE"))
	setIfNotEmpty(&cfg.DeductionMode, env("DEDUCTION_MODE"))
	return nil
}

// applyCLIOverrides applies command-line flag overrides.
func applyCLIOverrides(cfg *Config, overrides *CLIOverrides) error {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Port = *overrides.Port
	}

	if overrides.PackSizesStr != nil && *overrides.PackSizesStr != "" {
		sizes, err := parsePackSizes(*overrides.PackSizesStr)
		if err != nil {
			return fmt.Errorf("parse pack sizes: %w", err)
		}
		cfg.Rules.PackSizes = sizes
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.RateLimitBurst = *overrides.RateLimitBurst
	}

	if overrides.LogLevel != nil {
		setIfNotEmpty(&cfg.LogLevel, *overrides.LogLevel)
	}
	if overrides.StorageBackend != nil {
		setIfNotEmpty(&cfg.Storage.Backend, *overrides.StorageBackend)
	}
	if overrides.DatabaseURL != nil {
		setIfNotEmpty(&cfg.Storage.DatabaseURL, *overrides.DatabaseURL)
	}
	if overrides.DeductionMode != nil {
		setIfNotEmpty(&cfg.DeductionMode, *overrides.DeductionMode)
	}

	return nil
}

// validateConfig validates the final configuration.
func validateConfig(cfg Config) error {
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if !slices.Contains(logLevels, cfg.LogLevel) {
		return fmt.Errorf("log level %q must be one of %s", cfg.LogLevel, strings.Join(logLevels, ", "))
	}
	if !slices.Contains(deductionModes, cfg.DeductionMode) {
		return fmt.Errorf("deduction mode %q must be one of %s", cfg.DeductionMode, strings.Join(deductionModes, ", "))
	}
	if err := cfg.Rules.Validate(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	st := cfg.Storage
	if !slices.Contains(backends, st.Backend) {
		return fmt.Errorf("storage backend %q must be one of %s", st.Backend, strings.Join(backends, ", "))
	}
	switch st.Backend {
	case BackendFile:
		if st.FilePath == "" {
			return fmt.Errorf("storage.file_path is required for the file backend")
		}
	case BackendSQLite:
		if st.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if st.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendFirestore:
		if st.FirestoreProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for the firestore backend")
		}
	}
	if st.PollInterval <= 0 {
		return fmt.Errorf("storage.poll_interval must be positive")
	}
	return nil
}

// parsePackSizes parses a comma-separated list of size labels. Every label
// must be one of the fixed sizes.
func parsePackSizes(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !inventory.IsKnownSize(part) {
			return nil, fmt.Errorf("unknown size label %q", part)
		}
		sizes = append(sizes, part)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("no pack sizes provided")
	}
	return sizes, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func setIfNotEmpty(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}
