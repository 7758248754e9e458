package config

import "time"

// RolesConfig maps each classifier role to an LLM provider
type RolesConfig struct {
	Gate       string
	Second     string
	Tiebreak   string
	Escalation string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxTextSize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxTextSize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxTextSize int
}

// ModerationConfig represents the pipeline-wide moderation settings
type ModerationConfig struct {
	MonitorMode       bool
	WhitelistedGroups []string
	CriticalTerms     []string
	Aliases           map[string]string
}

// StoreConfig represents the key-value store settings
type StoreConfig struct {
	Type             string
	CleanupFrequency time.Duration
	SQLitePath       string
	MySQLDSN         string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
}

// GetLLMRoles returns the classifier role assignments
func (c *Config) GetLLMRoles() RolesConfig {
	return RolesConfig{
		Gate:       c.GetString("llm.gate_provider"),
		Second:     c.GetString("llm.second_provider"),
		Tiebreak:   c.GetString("llm.tiebreak_provider"),
		Escalation: c.GetString("llm.escalation_provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxTextSize: c.GetInt("bedrock.max_text_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxTextSize: c.GetInt("gemini.max_text_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxTextSize: c.GetInt("openai.max_text_size"),
	}
}

// GetModeration returns the moderation configuration
func (c *Config) GetModeration() ModerationConfig {
	return ModerationConfig{
		MonitorMode:       c.GetBool("moderation.monitor_mode"),
		WhitelistedGroups: c.GetStringSlice("moderation.whitelisted_groups"),
		CriticalTerms:     c.GetStringSlice("moderation.critical_terms"),
		Aliases:           c.GetStringMapString("moderation.aliases"),
	}
}

// GetStore returns the key-value store configuration
func (c *Config) GetStore() StoreConfig {
	return StoreConfig{
		Type:             c.GetString("store.type"),
		CleanupFrequency: c.GetDuration("store.cleanup_frequency"),
		SQLitePath:       c.GetString("store.sqlite_path"),
		MySQLDSN:         c.GetString("store.mysql_dsn"),
		RedisAddr:        c.GetString("store.redis_addr"),
		RedisPassword:    c.GetString("store.redis_password"),
		RedisDB:          c.GetInt("store.redis_db"),
	}
}
