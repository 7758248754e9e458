package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LexiconSource is the lexicon scoring dependency of the service
type LexiconSource interface {
	Score(normalized string) *LexiconResult
}

// TemporalSource is the temporal analysis dependency of the service
type TemporalSource interface {
	Observe(msg *Message, targetID string, categories []Category) *BehaviorSignals
	RecordSeverity(senderID string, severity Severity, ts time.Time)
}

// EnsembleVoter is the two-classifier consensus dependency of the service
type EnsembleVoter interface {
	Evaluate(ctx context.Context, text string) *EnsembleResult
}

// EscalationReviewer is the ambiguous-band tiebreak dependency of the service
type EscalationReviewer interface {
	MaybeEscalate(ctx context.Context, msg *Message, result *ScoreResult, monitorMode bool) *ScoreResult
}

// ModerationService runs the full scoring pipeline over incoming messages.
// It always produces a score: classifier failures degrade to the rule-based
// layers, a missing store degrades to config-only whitelisting, and the only
// hard stop is context cancellation from the transport.
type ModerationService struct {
	normalizer *Normalizer
	critical   *CriticalFilter
	lexicon    LexiconSource
	temporal   TemporalSource
	composite  *CompositeScorer
	ensemble   EnsembleVoter
	escalator  EscalationReviewer
	store      KeyValueStore
	logger     *zap.Logger
}

// NewModerationService creates the pipeline service
func NewModerationService(
	normalizer *Normalizer,
	critical *CriticalFilter,
	lexicon LexiconSource,
	temporal TemporalSource,
	composite *CompositeScorer,
	ensemble EnsembleVoter,
	escalator EscalationReviewer,
	store KeyValueStore,
	logger *zap.Logger,
) *ModerationService {
	return &ModerationService{
		normalizer: normalizer,
		critical:   critical,
		lexicon:    lexicon,
		temporal:   temporal,
		composite:  composite,
		ensemble:   ensemble,
		escalator:  escalator,
		store:      store,
		logger:     logger,
	}
}

// ScoreMessage scores one message in its group context and returns the
// moderation recommendation. The returned error is non-nil only when the
// surrounding context is cancelled; every other failure mode still yields a
// usable (possibly under-scored) result.
func (s *ModerationService) ScoreMessage(ctx context.Context, msg *Message, group *GroupContext) (*ScoreResult, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	if group == nil {
		group = &GroupContext{}
	}

	normalized := s.normalizer.Normalize(msg.Text)
	if normalized == "" {
		result := SafeResult(msg.ID)
		s.temporal.RecordSeverity(msg.SenderID, result.Severity, msg.Timestamp)
		return result, nil
	}

	// Critical terms bypass every downstream layer, classifiers included.
	if hit, term, category := s.critical.Check(normalized); hit {
		result := s.composite.CriticalBypass(msg.ID, category, group.MonitorMode)
		s.logger.Warn("Critical term matched",
			zap.String("message_id", msg.ID),
			zap.String("group_id", msg.GroupID),
			zap.String("term", term),
			zap.String("category", string(category)))
		s.temporal.RecordSeverity(msg.SenderID, result.Severity, msg.Timestamp)
		return result, nil
	}

	consensus := s.ensemble.Evaluate(ctx, normalized)
	if err := ctx.Err(); err != nil {
		// Transport cancelled mid-flight: abandon without writing state.
		return nil, err
	}

	if consensus.SkipScoring {
		result := SafeResult(msg.ID)
		s.temporal.RecordSeverity(msg.SenderID, result.Severity, msg.Timestamp)
		return result, nil
	}

	lexicon := s.lexicon.Score(normalized)
	target := ExtractTarget(normalized)
	behavior := s.temporal.Observe(msg, target, lexicon.Categories)

	friendGroup, dampening := s.groupDampening(ctx, msg.GroupID, group)
	result := s.composite.Score(msg.ID, &CompositeInput{
		Lexicon:       lexicon,
		Behavior:      behavior,
		DirectAddress: IsDirectAddress(normalized),
		PublicShaming: IsPublicShaming(normalized),
		FriendGroup:   friendGroup,
		Dampening:     dampening,
		MonitorMode:   group.MonitorMode,
	})

	result = s.escalator.MaybeEscalate(ctx, msg, result, group.MonitorMode)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.temporal.RecordSeverity(msg.SenderID, result.Severity, msg.Timestamp)

	s.logger.Debug("Scored message",
		zap.String("message_id", msg.ID),
		zap.String("group_id", msg.GroupID),
		zap.Int("final_score", result.FinalScore),
		zap.String("severity", result.Severity.String()),
		zap.String("action", string(result.Action)),
		zap.String("consensus", string(consensus.Consensus)))
	return result, nil
}

// groupDampening resolves whether the group gets the friend-group multiplier
// and with which factor. Transport-declared whitelisting wins; otherwise the
// store is consulted for an explicit entry.
func (s *ModerationService) groupDampening(ctx context.Context, groupID string, group *GroupContext) (bool, float64) {
	if group.Whitelisted {
		return true, 0
	}
	if s.store == nil {
		return false, 0
	}

	value, err := s.store.Get(ctx, whitelistKey(groupID))
	if err != nil {
		if err != ErrKeyNotFound {
			s.logger.Debug("Whitelist lookup failed", zap.Error(err), zap.String("group_id", groupID))
		}
		return false, 0
	}

	var entry WhitelistEntry
	if err := json.Unmarshal([]byte(value), &entry); err != nil {
		s.logger.Warn("Malformed whitelist entry", zap.Error(err), zap.String("group_id", groupID))
		return false, 0
	}
	if entry.Expired(time.Now()) {
		return false, 0
	}
	return true, entry.Dampening
}

// Whitelist registers a group for friend-group dampening, with an optional
// expiry carried as the store TTL
func (s *ModerationService) Whitelist(ctx context.Context, entry *WhitelistEntry) error {
	if s.store == nil {
		return fmt.Errorf("no store configured")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal whitelist entry: %w", err)
	}

	var ttl time.Duration
	if !entry.ExpiresAt.IsZero() {
		ttl = time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			return fmt.Errorf("whitelist entry already expired")
		}
	}
	return s.store.Set(ctx, whitelistKey(entry.GroupID), string(data), ttl)
}

func whitelistKey(groupID string) string {
	return fmt.Sprintf("whitelist:group:%s", groupID)
}
