package core

import (
	"math"
	"regexp"
	"time"
)

// CompositeConfig holds the multipliers and the critical floor
type CompositeConfig struct {
	TargetingMultiplier     float64
	PublicShamingMultiplier float64
	FriendGroupDampening    float64
	CriticalFloor           int
}

// DefaultCompositeConfig returns the production scoring constants
func DefaultCompositeConfig() CompositeConfig {
	return CompositeConfig{
		TargetingMultiplier:     1.5,
		PublicShamingMultiplier: 1.3,
		FriendGroupDampening:    0.5,
		CriticalFloor:           16,
	}
}

// CompositeInput collects everything the composite formula needs for one
// message
type CompositeInput struct {
	Lexicon       *LexiconResult
	Behavior      *BehaviorSignals
	DirectAddress bool
	PublicShaming bool
	FriendGroup   bool
	Dampening     float64
	MonitorMode   bool
}

// CompositeScorer combines lexicon, temporal and context signals into the
// final score, severity tier and recommended action
type CompositeScorer struct {
	cfg CompositeConfig
}

// NewCompositeScorer creates a composite scorer
func NewCompositeScorer(cfg CompositeConfig) *CompositeScorer {
	return &CompositeScorer{cfg: cfg}
}

// directAddressPattern matches second-person language aimed at one person
var directAddressPattern = regexp.MustCompile(`\b(?:you|u|ur|your|you're|youre)\b|@[a-z0-9_.]+`)

// IsDirectAddress reports whether the message directly addresses a person
func IsDirectAddress(normalized string) bool {
	return directAddressPattern.MatchString(normalized)
}

// publicShamingPattern matches language that broadcasts the attack to the
// whole group
var publicShamingPattern = regexp.MustCompile(`\b(?:(?:everyone|everybody|every1) (?:look|listen|check|see|needs to see)|(?:let'?s|lets) all|all of you|whole group|sending this to the group)\b`)

// IsPublicShaming reports whether the message implies broadcasting to the
// group audience
func IsPublicShaming(normalized string) bool {
	return publicShamingPattern.MatchString(normalized)
}

// Score applies the composite formula:
//
//	raw = (base + addOns) * targeting * publicShaming * friendGroup
//	final = round(raw + behaviorPoints)
//
// then the critical floor and the tier-to-action ladder.
func (s *CompositeScorer) Score(messageID string, in *CompositeInput) *ScoreResult {
	multipliers := Multipliers{Targeting: 1.0, PublicShaming: 1.0, FriendGroup: 1.0}
	if in.DirectAddress {
		multipliers.Targeting = s.cfg.TargetingMultiplier
	}
	if in.PublicShaming {
		multipliers.PublicShaming = s.cfg.PublicShamingMultiplier
	}
	if in.FriendGroup {
		multipliers.FriendGroup = s.cfg.FriendGroupDampening
		if in.Dampening > 0 {
			multipliers.FriendGroup = in.Dampening
		}
	}

	var behaviorPoints float64
	if in.Behavior != nil {
		behaviorPoints = in.Behavior.Points
	}

	raw := (in.Lexicon.BaseScore + in.Lexicon.AddOns) *
		multipliers.Targeting * multipliers.PublicShaming * multipliers.FriendGroup
	final := int(math.Round(raw + behaviorPoints))

	hasCritical := false
	for _, cat := range in.Lexicon.Categories {
		if cat.IsCritical() {
			hasCritical = true
			break
		}
	}
	if hasCritical && final < s.cfg.CriticalFloor {
		final = s.cfg.CriticalFloor
	}

	severity := severityForScore(final)
	result := &ScoreResult{
		MessageID:      messageID,
		BaseScore:      in.Lexicon.BaseScore,
		AddOns:         in.Lexicon.AddOns,
		Multipliers:    multipliers,
		BehaviorPoints: behaviorPoints,
		FinalScore:     final,
		Severity:       severity,
		Categories:     in.Lexicon.Categories,
		ScoredAt:       time.Now(),
	}
	result.Action = actionFor(result, in.MonitorMode)
	return result
}

// CriticalBypass builds the maximum-severity result for a critical-term hit.
// This is the only path that skips every downstream layer.
func (s *CompositeScorer) CriticalBypass(messageID string, category Category, monitorMode bool) *ScoreResult {
	result := &ScoreResult{
		MessageID:   messageID,
		Multipliers: Multipliers{Targeting: 1.0, PublicShaming: 1.0, FriendGroup: 1.0},
		FinalScore:  s.cfg.CriticalFloor + 5,
		Severity:    SeverityCritical,
		Categories:  []Category{category},
		ScoredAt:    time.Now(),
	}
	result.Action = actionFor(result, monitorMode)
	return result
}

// SafeResult builds the canonical safe, unscored result used when both
// ensemble classifiers agree the message is harmless
func SafeResult(messageID string) *ScoreResult {
	return &ScoreResult{
		MessageID:   messageID,
		Multipliers: Multipliers{Targeting: 1.0, PublicShaming: 1.0, FriendGroup: 1.0},
		Severity:    SeverityNone,
		Action:      ActionNone,
		Skipped:     true,
		ScoredAt:    time.Now(),
	}
}

// severityForScore maps a final score onto the tier ladder
func severityForScore(score int) Severity {
	switch {
	case score < 2:
		return SeverityNone
	case score <= 4:
		return SeverityLow
	case score <= 10:
		return SeverityMedium
	case score <= 15:
		return SeverityHigh
	case score <= 20:
		return SeveritySevere
	default:
		return SeverityCritical
	}
}

// actionFor maps severity to the recommended action. Self-harm content is
// never deleted: it always routes to a private intervention so a cry for help
// is not silenced. Monitor mode downgrades destructive actions to alerts.
func actionFor(result *ScoreResult, monitorMode bool) Action {
	if result.HasCategory(CategorySelfHarm) {
		return ActionUrgentIntervention
	}

	var action Action
	switch result.Severity {
	case SeverityNone:
		action = ActionNone
	case SeverityLow:
		action = ActionLog
	case SeverityMedium:
		action = ActionAlert
	case SeverityHigh:
		action = ActionDeleteAndAlert
	case SeveritySevere:
		action = ActionDeleteAlertMute
	default:
		action = ActionDeleteAlertBan
	}

	if monitorMode && action.IsDestructive() {
		action = ActionAlert
	}
	return action
}
