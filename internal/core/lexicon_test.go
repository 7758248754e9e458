package core

import (
	"strings"
	"testing"
	"time"
)

func TestLexiconScoreCategories(t *testing.T) {
	s := NewLexiconScorer()

	tests := []struct {
		name     string
		text     string
		base     float64
		category Category
	}{
		{"insult", "you are such an idiot", 2, CategoryGeneralInsult},
		{"conditional insult", "you are all trash", 2, CategoryGeneralInsult},
		{"exclusion", "everyone hates you", 4, CategorySocialExclusion},
		{"threat", "watch your back tomorrow", 9, CategoryThreatViolence},
		{"doxxing", "i know your address", 9, CategoryDoxxing},
		{"self harm", "why are you even alive", 11, CategorySelfHarm},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Score(tt.text)
			if result.BaseScore != tt.base {
				t.Errorf("BaseScore = %v, want %v", result.BaseScore, tt.base)
			}
			if len(result.Categories) != 1 || result.Categories[0] != tt.category {
				t.Errorf("Categories = %v, want [%s]", result.Categories, tt.category)
			}
		})
	}
}

func TestLexiconScoreNoHits(t *testing.T) {
	s := NewLexiconScorer()

	result := s.Score("see you at practice tomorrow")
	if result.BaseScore != 0 || len(result.Hits) != 0 || len(result.Categories) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestLexiconHardCapPerCategory(t *testing.T) {
	s := NewLexiconScorer()

	// Ten repetitions of the same insult count as two hits, not ten.
	text := strings.TrimSpace(strings.Repeat("idiot ", 10))
	result := s.Score(text)
	if len(result.Hits) != 10 {
		t.Fatalf("expected all 10 hits recorded, got %d", len(result.Hits))
	}
	if result.BaseScore != 4 {
		t.Errorf("BaseScore = %v, want 4 (top 2 hits of 2 points)", result.BaseScore)
	}
}

func TestLexiconHardCapCategories(t *testing.T) {
	s := NewLexiconScorer()

	// Four categories hit; only the top three sum, all four are reported.
	text := "you are such an idiot, nobody likes you, how embarrassing for you, watch your back"
	result := s.Score(text)
	if len(result.Categories) != 4 {
		t.Fatalf("expected 4 categories reported, got %v", result.Categories)
	}
	// threat 9 + exclusion 4 + humiliation 4; the 2-point insult is capped out.
	if result.BaseScore != 17 {
		t.Errorf("BaseScore = %v, want 17", result.BaseScore)
	}
}

func TestLexiconWeightSnapshot(t *testing.T) {
	s := NewLexiconScorer()

	s.SetSnapshot(&WeightSnapshot{
		Version:    2,
		Categories: map[Category]float64{CategoryGeneralInsult: 0.5},
		Terms:      map[string]float64{},
		TunedAt:    time.Now(),
	})

	result := s.Score("you are such an idiot")
	if result.BaseScore != 1 {
		t.Errorf("BaseScore = %v, want 1 after downweighting", result.BaseScore)
	}
	if s.Snapshot().Version != 2 {
		t.Errorf("Version = %d, want 2", s.Snapshot().Version)
	}

	// A nil snapshot must not replace the published one.
	s.SetSnapshot(nil)
	if s.Snapshot() == nil {
		t.Error("nil snapshot replaced the current one")
	}
}

func TestLexiconEmojiAddOn(t *testing.T) {
	s := NewLexiconScorer()

	tests := []struct {
		name   string
		text   string
		addOns float64
	}{
		{"none", "hello there", 0},
		{"two skulls", "💀💀", 1},
		{"capped burst", "💀💀💀💀💀💀💀💀", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := s.Score(tt.text)
			if result.AddOns != tt.addOns {
				t.Errorf("AddOns = %v, want %v", result.AddOns, tt.addOns)
			}
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		label string
		want  Category
	}{
		{"threat_violence", CategoryThreatViolence},
		{" Self_Harm ", CategorySelfHarm},
		{"spam", CategoryGeneric},
		{"", CategoryGeneric},
	}
	for _, tt := range tests {
		if got := NormalizeCategory(tt.label); got != tt.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
