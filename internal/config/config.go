// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Agent    AgentConfig    `mapstructure:"agent" yaml:"agent"`
	Executor ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// APIConfig describes the remote inference service endpoint.
type APIConfig struct {
	URL        string        `mapstructure:"url" yaml:"url"`
	Key        string        `mapstructure:"key" yaml:"-"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries"`
}

// AgentConfig tunes the orchestration loop.
type AgentConfig struct {
	MaxSteps   int           `mapstructure:"max_steps" yaml:"max_steps"`
	StepDelay  time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	MaxHistory int           `mapstructure:"max_history" yaml:"max_history"`
	// DenialAborts controls what happens when a gated action is denied:
	// true aborts the task, false skips the action and continues.
	DenialAborts bool `mapstructure:"denial_aborts" yaml:"denial_aborts"`
	// RetryExecutorOnce retries a failed device action once before the step
	// is treated as failed.
	RetryExecutorOnce bool          `mapstructure:"retry_executor_once" yaml:"retry_executor_once"`
	ExecTimeout       time.Duration `mapstructure:"exec_timeout" yaml:"exec_timeout"`
}

// ExecutorConfig holds settings for the local browser-backed executor.
type ExecutorConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ViewportWidth  int           `mapstructure:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height" yaml:"viewport_height"`
	StartURL       string        `mapstructure:"start_url" yaml:"start_url"`
	TypeInterval   time.Duration `mapstructure:"type_interval" yaml:"type_interval"`
	DragDuration   time.Duration `mapstructure:"drag_duration" yaml:"drag_duration"`
}

// StoreConfig enables durable run/step history in PostgreSQL.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"-"`
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "quantum-agent")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- API --
	v.SetDefault("api.url", "https://api.agi.tech")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.max_retries", 3)

	// -- Agent --
	v.SetDefault("agent.max_steps", 100)
	v.SetDefault("agent.step_delay", "500ms")
	v.SetDefault("agent.max_history", 20)
	v.SetDefault("agent.denial_aborts", true)
	v.SetDefault("agent.retry_executor_once", false)
	v.SetDefault("agent.exec_timeout", "30s")

	// -- Executor --
	v.SetDefault("executor.headless", true)
	v.SetDefault("executor.viewport_width", 1280)
	v.SetDefault("executor.viewport_height", 800)
	v.SetDefault("executor.start_url", "about:blank")
	v.SetDefault("executor.type_interval", "20ms")
	v.SetDefault("executor.drag_duration", "500ms")

	// -- Store --
	v.SetDefault("store.enabled", false)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with defaults only, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from the given file (or the default search path
// when empty), environment variables prefixed with QUANTUM_, and defaults, in
// ascending precedence order.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".quantum"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("QUANTUM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	return NewConfigFromViper(v)
}

// NewConfigFromViper unmarshals and validates a configuration from a viper
// instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Bind environment variables for sensitive data.
	v.BindEnv("api.key", "QUANTUM_API_KEY")
	v.BindEnv("store.url", "QUANTUM_STORE_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return fmt.Errorf("api.url is a required configuration field")
	}
	if c.Agent.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be a positive integer")
	}
	if c.Agent.StepDelay < 0 {
		return fmt.Errorf("agent.step_delay must not be negative")
	}
	if c.Agent.MaxHistory <= 0 {
		return fmt.Errorf("agent.max_history must be a positive integer")
	}
	if c.API.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be a positive integer")
	}
	if c.Store.Enabled && c.Store.URL == "" {
		return fmt.Errorf("store.url is required when the store is enabled (set QUANTUM_STORE_URL)")
	}
	return nil
}
