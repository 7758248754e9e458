package core

import (
	"time"
)

// Message represents a single chat message delivered by the transport
type Message struct {
	ID        string
	SenderID  string
	GroupID   string
	Text      string
	Timestamp time.Time
}

// GroupContext carries the group metadata the transport resolves per message
type GroupContext struct {
	Size        int
	Whitelisted bool
	MonitorMode bool
}

// Category identifies a harassment category in the lexicon
type Category string

const (
	CategoryGeneralInsult     Category = "general_insult"
	CategorySexualHarassment  Category = "sexual_harassment"
	CategoryThreatViolence    Category = "threat_violence"
	CategorySocialExclusion   Category = "social_exclusion"
	CategoryDoxxing           Category = "doxxing"
	CategoryCoercion          Category = "coercion"
	CategoryPublicHumiliation Category = "public_humiliation"
	CategoryEmojiHarassment   Category = "emoji_harassment"
	CategorySelfHarm          Category = "self_harm"
	CategoryGeneric           Category = "generic"
)

// criticalCategories are the categories protected by the score floor
var criticalCategories = map[Category]bool{
	CategoryThreatViolence: true,
	CategoryDoxxing:        true,
	CategoryCoercion:       true,
	CategorySelfHarm:       true,
}

// IsCritical reports whether the category is protected by the critical floor
func (c Category) IsCritical() bool {
	return criticalCategories[c]
}

// Severity represents the ordered severity tier of a scored message
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeveritySevere
	SeverityCritical
)

// String returns the tier name
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeveritySevere:
		return "severe"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Action is the moderation directive recommended to the action executor
type Action string

const (
	ActionNone               Action = "none"
	ActionLog                Action = "log"
	ActionAlert              Action = "alert"
	ActionDeleteAndAlert     Action = "delete_and_alert"
	ActionDeleteAlertMute    Action = "delete_alert_mute"
	ActionDeleteAlertBan     Action = "delete_alert_ban"
	ActionUrgentIntervention Action = "urgent_private_intervention"
)

// IsDestructive reports whether the action deletes, mutes or bans
func (a Action) IsDestructive() bool {
	switch a {
	case ActionDeleteAndAlert, ActionDeleteAlertMute, ActionDeleteAlertBan:
		return true
	default:
		return false
	}
}

// LexiconHit represents a single weighted pattern match in a message
type LexiconHit struct {
	Term      string
	Category  Category
	BaseScore float64
	Weight    float64
}

// WeightedScore returns the hit's base score after the dynamic weight
func (h LexiconHit) WeightedScore() float64 {
	return h.BaseScore * h.Weight
}

// Multipliers holds the composite scoring multipliers applied to a message
type Multipliers struct {
	Targeting     float64
	PublicShaming float64
	FriendGroup   float64
}

// ScoreResult represents the outcome of scoring a single message
type ScoreResult struct {
	MessageID      string
	BaseScore      float64
	AddOns         float64
	Multipliers    Multipliers
	BehaviorPoints float64
	FinalScore     int
	Severity       Severity
	Categories     []Category
	Action         Action
	Skipped        bool
	Escalated      bool
	ScoredAt       time.Time
}

// HasCategory reports whether the result contains the given category
func (r *ScoreResult) HasCategory(c Category) bool {
	for _, cat := range r.Categories {
		if cat == c {
			return true
		}
	}
	return false
}

// Verdict is a classifier's judgment on a message
type Verdict string

const (
	VerdictSafe       Verdict = "safe"
	VerdictHarmful    Verdict = "harmful"
	VerdictAmbiguous  Verdict = "ambiguous"
	VerdictHarassment Verdict = "harassment"
	VerdictBanter     Verdict = "banter"
)

// ClassifierRequest represents a single call across the classifier boundary
type ClassifierRequest struct {
	SystemInstructions string
	UserPrompt         string
	MessageText        string
	ContextWindow      []string
}

// ClassifierResult represents a parsed classifier response
type ClassifierResult struct {
	Verdict       Verdict
	Confidence    float64
	Reason        string
	Categories    []Category
	AdjustedScore float64
	ModelUsed     string
	AnalyzedAt    time.Time
}

// FeedbackVerdict is a human reviewer's judgment on a scored message
type FeedbackVerdict string

const (
	FeedbackTruePositive  FeedbackVerdict = "true_positive"
	FeedbackFalsePositive FeedbackVerdict = "false_positive"
	FeedbackTrueNegative  FeedbackVerdict = "true_negative"
	FeedbackFalseNegative FeedbackVerdict = "false_negative"
)

// FeedbackRecord represents one human review of a scored message
type FeedbackRecord struct {
	MessageID     string
	Verdict       FeedbackVerdict
	Category      Category
	OriginalScore int
	ReviewedAt    time.Time
}

// WhitelistEntry marks a group whose scoring sensitivity is dampened
type WhitelistEntry struct {
	GroupID   string
	Dampening float64
	ExpiresAt time.Time
}

// Expired reports whether the entry has passed its optional expiry
func (e *WhitelistEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
