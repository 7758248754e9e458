package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/llm-harassment-filter/")
	v.AddConfigPath("$HOME/.llm-harassment-filter")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("HARASSMENT_FILTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Classifier role defaults
	v.SetDefault("llm.gate_provider", "openai")
	v.SetDefault("llm.second_provider", "bedrock")
	v.SetDefault("llm.tiebreak_provider", "gemini")
	v.SetDefault("llm.escalation_provider", "gemini")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_text_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_text_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_text_size", 4096)

	// Moderation defaults
	v.SetDefault("moderation.monitor_mode", false)
	v.SetDefault("moderation.whitelisted_groups", []string{})
	v.SetDefault("moderation.critical_terms", []string{})
	v.SetDefault("moderation.aliases", map[string]string{})

	// Composite scoring defaults
	v.SetDefault("composite.targeting_multiplier", 1.5)
	v.SetDefault("composite.public_shaming_multiplier", 1.3)
	v.SetDefault("composite.friend_group_dampening", 0.5)
	v.SetDefault("composite.critical_floor", 16)

	// Ensemble defaults
	v.SetDefault("ensemble.timeout", "5s")
	v.SetDefault("ensemble.skip_confidence", 0.7)
	v.SetDefault("ensemble.healthy_low", 0.05)
	v.SetDefault("ensemble.healthy_high", 0.15)
	v.SetDefault("ensemble.min_samples", 20)

	// Escalation defaults
	v.SetDefault("escalation.band_low", 5)
	v.SetDefault("escalation.band_high", 10)
	v.SetDefault("escalation.context_before", 5)
	v.SetDefault("escalation.context_after", 5)
	v.SetDefault("escalation.confidence_threshold", 0.75)
	v.SetDefault("escalation.calls_per_hour", 6)
	v.SetDefault("escalation.timeout", "8s")

	// Temporal defaults
	v.SetDefault("temporal.window_size", 500)
	v.SetDefault("temporal.window_age", "24h")
	v.SetDefault("temporal.pile_on_window", "10m")
	v.SetDefault("temporal.repeat_target_window", "30m")
	v.SetDefault("temporal.history_horizon", "168h")
	v.SetDefault("temporal.sweep_interval", "15m")

	// Feedback defaults
	v.SetDefault("feedback.batch_size", 50)
	v.SetDefault("feedback.retune_interval", "720h")
	v.SetDefault("feedback.queue_size", 1024)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.cleanup_frequency", "1h")
	v.SetDefault("store.sqlite_path", "/data/harassment_filter.db")
	v.SetDefault("store.mysql_dsn", "user:password@tcp(localhost:3306)/harassment_filter")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetStringMapString gets a string map value from the configuration
func (c *Config) GetStringMapString(key string) map[string]string {
	return c.v.GetStringMapString(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) time.Duration {
	return c.v.GetDuration(key)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
