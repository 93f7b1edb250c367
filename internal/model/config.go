package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds the complete ricedx configuration
type Config struct {
	Rules        RulesConfig        `yaml:"rules" mapstructure:"rules"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Diagnosis    DiagnosisConfig    `yaml:"diagnosis" mapstructure:"diagnosis"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
}

// RulesConfig locates the rule base
type RulesConfig struct {
	Source   string `yaml:"source" mapstructure:"source"`     // Path or http(s) URL
	Validate bool   `yaml:"validate" mapstructure:"validate"` // Reject rule bases with structural errors
}

// HTTPConfig configures remote rule base fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// CacheConfig configures the raw rule document cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig configures batch diagnosis
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig throttles remote rule fetches per host
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// DiagnosisConfig controls how answers become initial facts
type DiagnosisConfig struct {
	UnsureFactor  float64 `yaml:"unsure_factor" mapstructure:"unsure_factor"`
	DefaultAnswer string  `yaml:"default_answer" mapstructure:"default_answer"` // yes, unsure, no, or "" to leave unanswered facts absent
}

// OutputConfig controls rendering
type OutputConfig struct {
	Verbose       bool `yaml:"verbose" mapstructure:"verbose"`
	IncludeFooter bool `yaml:"include_footer" mapstructure:"include_footer"`
	IncludeTrace  bool `yaml:"include_trace" mapstructure:"include_trace"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // console or json
}

// LLMConfig configures the optional report narrative
type LLMConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // openai, or "" to disable
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"-" mapstructure:"api_key"` // RICEDX_LLM_API_KEY or OPENAI_API_KEY only
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Strict    bool          `yaml:"strict" mapstructure:"strict"` // Reject narratives naming diseases that were not concluded
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Rules: RulesConfig{
			Source:   "rules.json",
			Validate: true,
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "ricedx/0.1 (+https://github.com/ppiankov/ricedx)",
			MaxBodyBytes:  5_000_000,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       defaultCacheDir(),
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         5,
		},
		Diagnosis: DiagnosisConfig{
			UnsureFactor:  DefaultUnsureFactor,
			DefaultAnswer: "unsure",
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		LLM: LLMConfig{
			Model:     "gpt-4o-mini",
			Timeout:   30 * time.Second,
			MaxTokens: 600,
			Strict:    true,
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "ricedx")
	}
	return filepath.Join(dir, "ricedx")
}
