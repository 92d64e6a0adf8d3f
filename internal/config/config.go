package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the quality gate
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Guard    GuardConfig    `yaml:"guard"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// GuardConfig holds the rule engine thresholds and pattern lists.
type GuardConfig struct {
	Mode                    string   `yaml:"mode"` // hard, soft, disabled
	MaxRejections           int      `yaml:"max_rejections"`
	TTLDays                 int      `yaml:"ttl_days"`
	GenericDensityThreshold float64  `yaml:"generic_density_threshold"`
	BannedOpeners           []string `yaml:"banned_openers"`  // appended to the built-in seeds
	GenericPhrases          []string `yaml:"generic_phrases"` // appended to the built-in lexicon
	DecisionTimeoutMS       int      `yaml:"decision_timeout_ms"`
}

// DecisionTimeout bounds each write to the decision log.
func (c GuardConfig) DecisionTimeout() time.Duration {
	return time.Duration(c.DecisionTimeoutMS) * time.Millisecond
}

// StorageConfig selects the rejection memory backends.
type StorageConfig struct {
	Backend          string `yaml:"backend"` // redis, dynamodb, local
	LocalPath        string `yaml:"local_path"`
	DynamoDBTable    string `yaml:"dynamodb_table"`
	DynamoDBEndpoint string `yaml:"dynamodb_endpoint"` // dynamodb-local in dev
	AWSRegion        string `yaml:"aws_region"`
	AWSProfile       string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	AccessKey        string `yaml:"access_key"`
	SecretKey        string `yaml:"secret_key"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return ""
		}
		return envProfile
	}
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the primary key-value store connection.
type RedisConfig struct {
	URL       string `yaml:"url"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// Timeout returns the per-call timeout as a duration
func (c RedisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// DatabaseConfig holds the decision log database. Empty URL disables it.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// SweeperConfig controls opportunistic cleanup of expired records.
type SweeperConfig struct {
	Enabled               bool   `yaml:"enabled"`
	IntervalMinutes       int    `yaml:"interval_minutes"`
	Schedule              string `yaml:"schedule"` // cron expression; overrides interval_minutes
	DecisionRetentionDays int    `yaml:"decision_retention_days"`
}

// Interval returns the sweep interval as a duration
func (c SweeperConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// DecisionRetention returns how long logged decisions are kept.
func (c SweeperConfig) DecisionRetention() time.Duration {
	return time.Duration(c.DecisionRetentionDays) * 24 * time.Hour
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// ShouldRedact defaults to true when unset.
func (c LogConfig) ShouldRedact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Guard.Mode == "" {
		cfg.Guard.Mode = "hard"
	}
	if cfg.Guard.MaxRejections == 0 {
		cfg.Guard.MaxRejections = 2
	}
	if cfg.Guard.TTLDays == 0 {
		cfg.Guard.TTLDays = 30
	}
	if cfg.Guard.GenericDensityThreshold == 0 {
		cfg.Guard.GenericDensityThreshold = 0.40
	}
	if cfg.Guard.DecisionTimeoutMS == 0 {
		cfg.Guard.DecisionTimeoutMS = 200
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "redis"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data/rejections"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-west-2"
	}
	if cfg.Storage.DynamoDBTable == "" {
		cfg.Storage.DynamoDBTable = "outreach-rejection-memory"
	}
	if cfg.Redis.URL == "" {
		cfg.Redis.URL = "redis://localhost:6379/0"
	}
	if cfg.Redis.TimeoutMS == 0 {
		cfg.Redis.TimeoutMS = 500
	}
	if cfg.Sweeper.IntervalMinutes == 0 {
		cfg.Sweeper.IntervalMinutes = 60
	}
	if cfg.Sweeper.DecisionRetentionDays == 0 {
		cfg.Sweeper.DecisionRetentionDays = 90
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	if v := os.Getenv("GUARD_MODE"); v != "" {
		cfg.Guard.Mode = v
	}
	if v := os.Getenv("GUARD_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GUARD_ENABLED: %w", err)
		}
		if !enabled {
			cfg.Guard.Mode = "disabled"
		}
	}
	if v := os.Getenv("GUARD_MAX_REJECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GUARD_MAX_REJECTIONS: %w", err)
		}
		cfg.Guard.MaxRejections = n
	}
	if v := os.Getenv("GUARD_TTL_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GUARD_TTL_DAYS: %w", err)
		}
		cfg.Guard.TTLDays = n
	}
	if v := os.Getenv("GUARD_GENERIC_DENSITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GUARD_GENERIC_DENSITY: %w", err)
		}
		cfg.Guard.GenericDensityThreshold = f
	}
	if v := os.Getenv("GUARD_DECISION_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("GUARD_DECISION_TIMEOUT_MS: %w", err)
		}
		cfg.Guard.DecisionTimeoutMS = n
	}
	if v := os.Getenv("GUARD_BANNED_OPENERS"); v != "" {
		for _, p := range strings.Split(v, ";;") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Guard.BannedOpeners = append(cfg.Guard.BannedOpeners, p)
			}
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("REJECTION_LOCAL_PATH"); v != "" {
		cfg.Storage.LocalPath = v
	}
	if v := os.Getenv("DYNAMODB_TABLE"); v != "" {
		cfg.Storage.DynamoDBTable = v
	}
	if v := os.Getenv("DYNAMODB_ENDPOINT"); v != "" {
		cfg.Storage.DynamoDBEndpoint = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" && cfg.Storage.DynamoDBEndpoint != "" {
		cfg.Storage.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" && cfg.Storage.DynamoDBEndpoint != "" {
		cfg.Storage.SecretKey = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SWEEPER_SCHEDULE"); v != "" {
		cfg.Sweeper.Schedule = v
	}
	if v := os.Getenv("SWEEPER_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SWEEPER_ENABLED: %w", err)
		}
		cfg.Sweeper.Enabled = enabled
	}
	return nil
}

// Validate rejects configurations that indicate a misconfigured deployment.
func (cfg *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(cfg.Guard.Mode)) {
	case "hard", "soft", "disabled":
	default:
		return fmt.Errorf("guard.mode: unknown mode %q", cfg.Guard.Mode)
	}
	if cfg.Guard.MaxRejections < 1 {
		return fmt.Errorf("guard.max_rejections must be >= 1, got %d", cfg.Guard.MaxRejections)
	}
	if cfg.Guard.TTLDays < 1 {
		return fmt.Errorf("guard.ttl_days must be >= 1, got %d", cfg.Guard.TTLDays)
	}
	if cfg.Guard.GenericDensityThreshold <= 0 || cfg.Guard.GenericDensityThreshold > 1 {
		return fmt.Errorf("guard.generic_density_threshold must be in (0,1], got %v", cfg.Guard.GenericDensityThreshold)
	}
	if cfg.Guard.DecisionTimeoutMS < 1 {
		return fmt.Errorf("guard.decision_timeout_ms must be >= 1, got %d", cfg.Guard.DecisionTimeoutMS)
	}
	for _, p := range cfg.Guard.BannedOpeners {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("guard.banned_openers: %q: %w", p, err)
		}
	}
	if cfg.Sweeper.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Sweeper.Schedule); err != nil {
			return fmt.Errorf("sweeper.schedule: %w", err)
		}
	}
	switch cfg.Storage.Backend {
	case "redis", "dynamodb", "local":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", cfg.Storage.Backend)
	}
	return nil
}
