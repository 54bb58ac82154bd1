package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	configPathEnv     = "BILLSCAN_CONFIG"
	databaseDSNEnv    = "DATABASE_DSN"
	congressAPIKeyEnv = "CONGRESS_API_KEY"
	anthropicKeyEnv   = "ANTHROPIC_API_KEY"
	modelEnv          = "BILLSCAN_MODEL"
	serverAddrEnv     = "BILLSCAN_ADDR"
)

const defaultSystemPrompt = `You are Milton Friedman, the renowned economist and champion of free markets and individual liberty.
Analyze this legislative text from your perspective, focusing on:
1. The potential impact on economic freedom and market efficiency
2. Any expansion of government power or bureaucracy
3. The fiscal implications and potential waste of taxpayer money
4. Effects on individual liberty and property rights

Maintain your characteristic skepticism of government intervention while providing clear, data-driven analysis.`

// Config holds high-level settings required across the application.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Source     SourceConfig     `yaml:"source"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig describes Postgres connection details.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RetryConfig bounds retries around one class of external call.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	BaseDelay   Duration `yaml:"baseDelay"`
}

// SourceConfig describes the legislative data source.
type SourceConfig struct {
	BaseURL   string      `yaml:"baseUrl"`
	APIKey    string      `yaml:"apiKey"`
	Congress  int         `yaml:"congress"`
	ListLimit int         `yaml:"listLimit"`
	Lookback  Duration    `yaml:"lookback"`
	Retry     RetryConfig `yaml:"retry"`
}

// EnrichmentConfig defines how to contact the analysis model.
type EnrichmentConfig struct {
	APIKey       string `yaml:"apiKey"`
	Model        string `yaml:"model"`
	MaxTokens    int64  `yaml:"maxTokens"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// PipelineConfig defines the ingestion cycle cadence.
type PipelineConfig struct {
	Interval      Duration    `yaml:"interval"`
	ErrorInterval Duration    `yaml:"errorInterval"`
	ItemPause     Duration    `yaml:"itemPause"`
	Retry         RetryConfig `yaml:"retry"`
}

// ServerConfig describes the read-serving HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration is a yaml-parseable time.Duration ("15m", "24h").
type Duration time.Duration

// UnmarshalYAML parses the standard Go duration syntax.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// Validate enforces the credentials and endpoints the pipeline cannot run
// without. A failure here aborts process startup; it never occurs mid-cycle.
func (c Config) Validate() error {
	var errs []error
	if c.Source.APIKey == "" {
		errs = append(errs, fmt.Errorf("source API key is required (set %s)", congressAPIKeyEnv))
	}
	if c.Enrichment.APIKey == "" {
		errs = append(errs, fmt.Errorf("enrichment API key is required (set %s)", anthropicKeyEnv))
	}
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database DSN is required (set %s)", databaseDSNEnv))
	}
	if c.Source.Congress <= 0 {
		errs = append(errs, errors.New("source congress number must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(congressAPIKeyEnv); v != "" {
		c.Source.APIKey = v
	}

	if v := os.Getenv(anthropicKeyEnv); v != "" {
		c.Enrichment.APIKey = v
	}

	if v := os.Getenv(modelEnv); v != "" {
		c.Enrichment.Model = v
	}

	if v := os.Getenv(serverAddrEnv); v != "" {
		c.Server.Addr = v
	}
}

func mergeConfig(base, override Config) Config {
	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Source.BaseURL != "" {
		base.Source.BaseURL = override.Source.BaseURL
	}
	if override.Source.APIKey != "" {
		base.Source.APIKey = override.Source.APIKey
	}
	if override.Source.Congress != 0 {
		base.Source.Congress = override.Source.Congress
	}
	if override.Source.ListLimit != 0 {
		base.Source.ListLimit = override.Source.ListLimit
	}
	if override.Source.Lookback != 0 {
		base.Source.Lookback = override.Source.Lookback
	}
	base.Source.Retry = mergeRetry(base.Source.Retry, override.Source.Retry)

	if override.Enrichment.APIKey != "" {
		base.Enrichment.APIKey = override.Enrichment.APIKey
	}
	if override.Enrichment.Model != "" {
		base.Enrichment.Model = override.Enrichment.Model
	}
	if override.Enrichment.MaxTokens != 0 {
		base.Enrichment.MaxTokens = override.Enrichment.MaxTokens
	}
	if override.Enrichment.SystemPrompt != "" {
		base.Enrichment.SystemPrompt = override.Enrichment.SystemPrompt
	}

	if override.Pipeline.Interval != 0 {
		base.Pipeline.Interval = override.Pipeline.Interval
	}
	if override.Pipeline.ErrorInterval != 0 {
		base.Pipeline.ErrorInterval = override.Pipeline.ErrorInterval
	}
	if override.Pipeline.ItemPause != 0 {
		base.Pipeline.ItemPause = override.Pipeline.ItemPause
	}
	base.Pipeline.Retry = mergeRetry(base.Pipeline.Retry, override.Pipeline.Retry)

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	return base
}

func mergeRetry(base, override RetryConfig) RetryConfig {
	if override.MaxAttempts != 0 {
		base.MaxAttempts = override.MaxAttempts
	}
	if override.BaseDelay != 0 {
		base.BaseDelay = override.BaseDelay
	}
	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{DSN: ""},
		Source: SourceConfig{
			BaseURL:   "https://api.congress.gov/v3",
			Congress:  118,
			ListLimit: 50,
			Lookback:  Duration(24 * time.Hour),
			Retry:     RetryConfig{MaxAttempts: 3, BaseDelay: Duration(5 * time.Second)},
		},
		Enrichment: EnrichmentConfig{
			Model:        "claude-sonnet-4-5-20250929",
			MaxTokens:    2000,
			SystemPrompt: defaultSystemPrompt,
		},
		Pipeline: PipelineConfig{
			Interval:      Duration(24 * time.Hour),
			ErrorInterval: Duration(15 * time.Minute),
			ItemPause:     Duration(500 * time.Millisecond),
			Retry:         RetryConfig{MaxAttempts: 3, BaseDelay: Duration(5 * time.Second)},
		},
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info"},
	}
}
