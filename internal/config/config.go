// Package config loads trailblaze settings from a YAML file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRAILBLAZE_LLM_MODEL.
const EnvPrefix = "TRAILBLAZE"

// Config holds the whole application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Device  DeviceConfig  `mapstructure:"device" yaml:"device"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Trails  TrailsConfig  `mapstructure:"trails" yaml:"trails"`
}

// LoggerConfig configures the process logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // console or json
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// RetryConfig mirrors engine.RetryPolicy.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier" yaml:"multiplier"`
	Jitter       bool          `mapstructure:"jitter" yaml:"jitter"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" yaml:"provider"` // anthropic, openai, gemini or an OpenAI-compatible server
	Model       string  `mapstructure:"model" yaml:"model"`
	APIKey      string  `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string  `mapstructure:"base_url" yaml:"base_url"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RequestsPerMinute throttles provider calls; 0 disables throttling.
	RequestsPerMinute int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retry             RetryConfig   `mapstructure:"retry" yaml:"retry"`
}

// AgentConfig tunes the prompt step loop.
type AgentConfig struct {
	MaxCalls        int  `mapstructure:"max_calls" yaml:"max_calls"`
	HistoryWindow   int  `mapstructure:"history_window" yaml:"history_window"`
	SetOfMark       bool `mapstructure:"set_of_mark" yaml:"set_of_mark"`
	CaptureAttempts int  `mapstructure:"capture_attempts" yaml:"capture_attempts"`
	SelfHeal        bool `mapstructure:"self_heal" yaml:"self_heal"`
}

// DeviceConfig picks the automation driver.
type DeviceConfig struct {
	Driver      string        `mapstructure:"driver" yaml:"driver"` // adb, web, mock
	Serial      string        `mapstructure:"serial" yaml:"serial"`
	ADBPath     string        `mapstructure:"adb_path" yaml:"adb_path"`
	WebURL      string        `mapstructure:"web_url" yaml:"web_url"`
	Headless    bool          `mapstructure:"headless" yaml:"headless"`
	Classifiers []string      `mapstructure:"classifiers" yaml:"classifiers"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SessionConfig selects where session logs go besides the in-process hub.
type SessionConfig struct {
	StorePath    string        `mapstructure:"store_path" yaml:"store_path"`
	LogDir       string        `mapstructure:"log_dir" yaml:"log_dir"`
	RedisAddr    string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisChannel string        `mapstructure:"redis_channel" yaml:"redis_channel"`
	RedisTTL     time.Duration `mapstructure:"redis_ttl" yaml:"redis_ttl"`
	HubLimit     int           `mapstructure:"hub_limit" yaml:"hub_limit"`
}

// ServerConfig configures the RPC server.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// JoinTimeout bounds how long a new run waits for the previous one.
	JoinTimeout time.Duration `mapstructure:"join_timeout" yaml:"join_timeout"`
}

// TrailsConfig locates trail files.
type TrailsConfig struct {
	Dir        string `mapstructure:"dir" yaml:"dir"`
	IgnoreFile string `mapstructure:"ignore_file" yaml:"ignore_file"`
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "trailblaze")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.requests_per_minute", 0)
	v.SetDefault("llm.timeout", "2m")
	v.SetDefault("llm.retry.max_retries", 3)
	v.SetDefault("llm.retry.initial_delay", "1s")
	v.SetDefault("llm.retry.max_delay", "30s")
	v.SetDefault("llm.retry.multiplier", 2.0)
	v.SetDefault("llm.retry.jitter", true)

	// -- Agent --
	v.SetDefault("agent.max_calls", 50)
	v.SetDefault("agent.history_window", 5)
	v.SetDefault("agent.set_of_mark", true)
	v.SetDefault("agent.capture_attempts", 3)
	v.SetDefault("agent.self_heal", false)

	// -- Device --
	v.SetDefault("device.driver", "adb")
	v.SetDefault("device.adb_path", "adb")
	v.SetDefault("device.headless", true)
	v.SetDefault("device.timeout", "30s")

	// -- Session --
	v.SetDefault("session.store_path", "~/.trailblaze/sessions.db")
	v.SetDefault("session.log_dir", "~/.trailblaze/logs")
	v.SetDefault("session.redis_channel", "trailblaze:events")
	v.SetDefault("session.redis_ttl", "24h")
	v.SetDefault("session.hub_limit", 2000)

	// -- Server --
	v.SetDefault("server.addr", "127.0.0.1:52525")
	v.SetDefault("server.join_timeout", "10s")

	// -- Trails --
	v.SetDefault("trails.dir", "trails")
	v.SetDefault("trails.ignore_file", ".trailignore")
}

// New returns a viper instance with defaults and environment binding. When
// path is empty, ./trailblaze.yaml and the user config dir are searched.
func New(path string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("trailblaze")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := defaultDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and decodes v. A missing file is not
// an error.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v)
}

// providerKeyEnv names the vendor variable read when llm.api_key is unset.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// FromViper decodes and validates the settings held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	_ = v.BindEnv("llm.api_key", EnvPrefix+"_LLM_API_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.LLM.APIKey == "" {
		if name, ok := providerKeyEnv[cfg.LLM.Provider]; ok {
			cfg.LLM.APIKey = os.Getenv(name)
		}
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration made of defaults only.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := FromViper(v)
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// Validate checks required fields and ranges.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	switch c.LLM.Provider {
	case "anthropic", "openai", "gemini", "ollama", "lmstudio", "deepseek", "groq":
	default:
		return fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return errors.New("llm.requests_per_minute must not be negative")
	}
	if c.Agent.MaxCalls <= 0 {
		return errors.New("agent.max_calls must be a positive integer")
	}
	if c.Agent.HistoryWindow <= 0 {
		return errors.New("agent.history_window must be a positive integer")
	}
	switch c.Device.Driver {
	case "adb", "mock":
	case "web":
		if c.Device.WebURL == "" {
			return errors.New("device.web_url is required for the web driver")
		}
	default:
		return fmt.Errorf("device.driver %q is not supported", c.Device.Driver)
	}
	return nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Session.StorePath, &c.Session.LogDir, &c.Trails.Dir} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}
