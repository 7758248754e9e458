package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// EscalationConfig tunes the ambiguous-band tiebreak pass
type EscalationConfig struct {
	BandLow             int
	BandHigh            int
	ContextBefore       int
	ContextAfter        int
	ConfidenceThreshold float64
	CallsPerHour        int
	Timeout             time.Duration
}

// DefaultEscalationConfig returns the production escalation settings
func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{
		BandLow:             5,
		BandHigh:            10,
		ContextBefore:       5,
		ContextAfter:        5,
		ConfidenceThreshold: 0.75,
		CallsPerHour:        6,
		Timeout:             8 * time.Second,
	}
}

// escalationSystemInstructions asks for a banter-vs-harassment judgment with
// conversational context
const escalationSystemInstructions = `You are reviewing a group chat message that scored in an ambiguous band.
The surrounding conversation is included; sender names are replaced with stable labels.
Decide whether the flagged message is harassment or friendly banter.
Respond with a JSON object containing:
- verdict: "harassment", "banter" or "ambiguous"
- confidence: number between 0 and 1
- reason: brief explanation
- adjusted_score: suggested integer score for the message

Respond only with the JSON object and nothing else.`

// Escalator invokes the escalation classifier for scores inside the
// ambiguous band, rate-limited per sender so classifier cost stays bounded.
// When rate-limited or on any failure the composite score stands unmodified.
type Escalator struct {
	classifier Classifier
	temporal   *TemporalAnalyzer
	cfg        EscalationConfig
	logger     *zap.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewEscalator creates an escalator backed by the given classifier
func NewEscalator(classifier Classifier, temporal *TemporalAnalyzer, cfg EscalationConfig, logger *zap.Logger) *Escalator {
	return &Escalator{
		classifier: classifier,
		temporal:   temporal,
		cfg:        cfg,
		logger:     logger,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// limiter returns the per-sender rate limiter, creating it on first use
func (e *Escalator) limiter(senderID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.limiters[senderID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Hour/time.Duration(e.cfg.CallsPerHour)), e.cfg.CallsPerHour)
		e.limiters[senderID] = l
	}
	return l
}

// InBand reports whether the score falls in the ambiguous band
func (e *Escalator) InBand(score int) bool {
	return score >= e.cfg.BandLow && score <= e.cfg.BandHigh
}

// MaybeEscalate runs the escalation classifier when the composite score sits
// in the ambiguous band and the sender's call budget allows it. A
// high-confidence banter verdict downgrades the action to log-only; a
// high-confidence harassment verdict confirms or raises the score.
func (e *Escalator) MaybeEscalate(ctx context.Context, msg *Message, result *ScoreResult, monitorMode bool) *ScoreResult {
	if e.classifier == nil || !e.InBand(result.FinalScore) {
		return result
	}
	if !e.limiter(msg.SenderID).Allow() {
		e.logger.Debug("Escalation rate limit reached, composite score stands",
			zap.String("sender_id", msg.SenderID))
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req := &ClassifierRequest{
		SystemInstructions: escalationSystemInstructions,
		UserPrompt:         "Review the flagged message in its conversation.",
		MessageText:        msg.Text,
		ContextWindow:      e.contextWindow(msg),
	}

	verdict, err := e.classifier.Classify(callCtx, req)
	if err != nil {
		e.logger.Warn("Escalation classifier failed, composite score stands", zap.Error(err))
		return result
	}

	result.Escalated = true
	if verdict.Confidence < e.cfg.ConfidenceThreshold {
		return result
	}

	switch verdict.Verdict {
	case VerdictBanter:
		e.logger.Info("Escalation verdict: banter, downgrading to log-only",
			zap.String("message_id", msg.ID),
			zap.Float64("confidence", verdict.Confidence))
		result.Action = ActionLog
	case VerdictHarassment:
		adjusted := int(verdict.AdjustedScore)
		if adjusted > result.FinalScore {
			result.FinalScore = adjusted
			result.Severity = severityForScore(adjusted)
		}
		result.Action = actionFor(result, monitorMode)
		e.logger.Info("Escalation verdict: harassment confirmed",
			zap.String("message_id", msg.ID),
			zap.Int("final_score", result.FinalScore),
			zap.Float64("confidence", verdict.Confidence))
	}
	return result
}

// contextWindow builds the pseudonymized surrounding conversation. Sender
// identities become stable labels in order of first appearance; raw
// identifiers never cross the classifier boundary.
func (e *Escalator) contextWindow(msg *Message) []string {
	if e.temporal == nil {
		return nil
	}
	// Scoring happens in real time, so only the preceding half of the
	// symmetric window exists yet.
	entries := e.temporal.Recent(msg.GroupID, e.cfg.ContextBefore+e.cfg.ContextAfter)

	labels := make(map[string]string)
	label := func(senderID string) string {
		if l, ok := labels[senderID]; ok {
			return l
		}
		l := fmt.Sprintf("user%d", len(labels)+1)
		labels[senderID] = l
		return l
	}

	window := make([]string, 0, len(entries)+1)
	for _, entry := range entries {
		window = append(window, fmt.Sprintf("%s: %s", label(entry.SenderID), strings.TrimSpace(entry.Text)))
	}
	window = append(window, fmt.Sprintf("%s (flagged): %s", label(msg.SenderID), strings.TrimSpace(msg.Text)))
	return window
}
