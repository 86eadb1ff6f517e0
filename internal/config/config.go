// Package config handles configuration loading for y9cdash.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"   yaml:"source"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Insight  InsightConfig  `mapstructure:"insight"  yaml:"insight"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
}

// SourceConfig holds the hosted table service connection settings.
type SourceConfig struct {
	URL            string `mapstructure:"url"             yaml:"url"`
	APIKey         string `mapstructure:"api_key"         yaml:"api_key"`
	FilingsTable   string `mapstructure:"filings_table"   yaml:"filings_table"`
	DirectoryTable string `mapstructure:"directory_table" yaml:"directory_table"`
	PageSize       int    `mapstructure:"page_size"       yaml:"page_size"`
	MaxRows        int    `mapstructure:"max_rows"        yaml:"max_rows"`
	MaxRetries     int    `mapstructure:"max_retries"     yaml:"max_retries"`
	// RateLimit caps page requests per second as a courtesy to the
	// hosted service.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// PipelineConfig holds reconciliation settings.
type PipelineConfig struct {
	ReportingForms []string `mapstructure:"reporting_forms" yaml:"reporting_forms"`
	CacheTTL       int      `mapstructure:"cache_ttl"       yaml:"cache_ttl"` // seconds
}

// InsightConfig holds the completion-service analyst settings.
type InsightConfig struct {
	OpenAIKey   string  `mapstructure:"openai_key"  yaml:"openai_key"`
	BaseURL     string  `mapstructure:"base_url"    yaml:"base_url"`
	Model       string  `mapstructure:"model"       yaml:"model"`
	Temperature float64 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"  yaml:"max_tokens"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.y9cdash/config.yaml (home directory)
//  3. /etc/y9cdash/config.yaml (system)
//
// Environment variables override config file values.
// Format: Y9CDASH_<SECTION>_<KEY>, e.g., Y9CDASH_SOURCE_API_KEY
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".y9cdash"))
	v.AddConfigPath("/etc/y9cdash")

	v.SetEnvPrefix("Y9CDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — that's fine, use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("Y9CDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Source defaults
	v.SetDefault("source.filings_table", "y9c_full")
	v.SetDefault("source.directory_table", "mdrm_mapping")
	v.SetDefault("source.page_size", 500)
	v.SetDefault("source.max_rows", 0) // unbounded
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.rate_limit", 5)

	// Pipeline defaults
	v.SetDefault("pipeline.reporting_forms", []string{"FR Y-9C", "FR Y-15", "FFIEC 031", "FFIEC 041"})
	v.SetDefault("pipeline.cache_ttl", 600) // 10 minutes

	// Insight defaults
	v.SetDefault("insight.model", "gpt-4o")
	v.SetDefault("insight.temperature", 0.3)
	v.SetDefault("insight.max_tokens", 500)

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads sensitive keys from environment
// variables, accepting both the prefixed names and the bare names the
// hosted service's own tooling exports.
func overrideFromEnv(cfg *Config) {
	if u := os.Getenv("Y9CDASH_SOURCE_URL"); u != "" {
		cfg.Source.URL = u
	}
	if u := os.Getenv("SUPABASE_URL"); u != "" && cfg.Source.URL == "" {
		cfg.Source.URL = u
	}
	if k := os.Getenv("Y9CDASH_SOURCE_API_KEY"); k != "" {
		cfg.Source.APIKey = k
	}
	if k := os.Getenv("SUPABASE_KEY"); k != "" && cfg.Source.APIKey == "" {
		cfg.Source.APIKey = k
	}
	if k := os.Getenv("Y9CDASH_INSIGHT_OPENAI_KEY"); k != "" {
		cfg.Insight.OpenAIKey = k
	}
	if k := os.Getenv("OPENAI_API_KEY"); k != "" && cfg.Insight.OpenAIKey == "" {
		cfg.Insight.OpenAIKey = k
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
