package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	roles := cfg.GetLLMRoles()
	if roles.Gate != "openai" || roles.Second != "bedrock" || roles.Tiebreak != "gemini" {
		t.Errorf("unexpected default roles: %+v", roles)
	}

	store := cfg.GetStore()
	if store.Type != "memory" {
		t.Errorf("store.Type = %q, want memory", store.Type)
	}
	if store.CleanupFrequency != time.Hour {
		t.Errorf("store.CleanupFrequency = %v, want 1h", store.CleanupFrequency)
	}

	if got := cfg.GetDuration("ensemble.timeout"); got != 5*time.Second {
		t.Errorf("ensemble.timeout = %v, want 5s", got)
	}
	if got := cfg.GetInt("escalation.band_low"); got != 5 {
		t.Errorf("escalation.band_low = %d, want 5", got)
	}
	if got := cfg.GetFloat64("composite.critical_floor"); got != 16 {
		t.Errorf("composite.critical_floor = %v, want 16", got)
	}
	if got := cfg.GetBool("moderation.monitor_mode"); got {
		t.Error("moderation.monitor_mode = true, want false by default")
	}
}

func TestTypedGetters(t *testing.T) {
	v := NewEmptyViper()
	v.Set("openai.api_key", "sk-test")
	v.Set("openai.max_text_size", 1024)
	v.Set("bedrock.region", "eu-west-1")
	v.Set("gemini.model_name", "gemini-1.5-pro")
	v.Set("moderation.aliases", map[string]string{"smh": "shaking my head"})
	cfg := NewFromViper(v)

	if got := cfg.GetOpenAI(); got.APIKey != "sk-test" || got.MaxTextSize != 1024 {
		t.Errorf("GetOpenAI = %+v", got)
	}
	if got := cfg.GetBedrock(); got.Region != "eu-west-1" {
		t.Errorf("GetBedrock.Region = %q", got.Region)
	}
	if got := cfg.GetGemini(); got.ModelName != "gemini-1.5-pro" {
		t.Errorf("GetGemini.ModelName = %q", got.ModelName)
	}
	if got := cfg.GetModeration(); got.Aliases["smh"] != "shaking my head" {
		t.Errorf("GetModeration.Aliases = %v", got.Aliases)
	}
}
