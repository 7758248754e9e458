package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EnsembleConfig tunes the two-classifier consensus vote
type EnsembleConfig struct {
	Timeout        time.Duration
	SkipConfidence float64
	HealthyLow     float64
	HealthyHigh    float64
	MinSamples     int64
}

// DefaultEnsembleConfig returns the production consensus settings
func DefaultEnsembleConfig() EnsembleConfig {
	return EnsembleConfig{
		Timeout:        5 * time.Second,
		SkipConfidence: 0.7,
		HealthyLow:     0.05,
		HealthyHigh:    0.15,
		MinSamples:     20,
	}
}

// EnsembleResult represents the reconciled verdict of both classifiers
type EnsembleResult struct {
	Gate        *ClassifierResult
	Second      *ClassifierResult
	Consensus   Verdict
	SkipScoring bool
	Disagreed   bool
}

// gateSystemInstructions is shared by both voting classifiers
const gateSystemInstructions = `You are a harassment detection system for group chats.
Judge whether the message is harassment or bullying aimed at a person.
Respond with a JSON object containing:
- verdict: "safe", "harmful" or "ambiguous"
- confidence: number between 0 and 1
- reason: brief explanation
- categories: optional list of category labels

Respond only with the JSON object and nothing else.`

// Ensemble runs the gate classifier and a second independent classifier
// concurrently and reconciles their verdicts by voting. Disagreement between
// the two goes to a tiebreak classifier and is tracked as a calibration
// signal.
type Ensemble struct {
	gate     Classifier
	second   Classifier
	tiebreak Classifier
	cfg      EnsembleConfig
	logger   *zap.Logger

	votes         atomic.Int64
	disagreements atomic.Int64
}

// NewEnsemble creates an ensemble over the three classifier roles
func NewEnsemble(gate, second, tiebreak Classifier, cfg EnsembleConfig, logger *zap.Logger) *Ensemble {
	return &Ensemble{
		gate:     gate,
		second:   second,
		tiebreak: tiebreak,
		cfg:      cfg,
		logger:   logger,
	}
}

// Evaluate issues both classifier calls concurrently, joins them under the
// ensemble deadline and applies the voting table. It never returns an error:
// classifier failures degrade to ambiguous verdicts and the rule-based layers
// still run.
func (e *Ensemble) Evaluate(ctx context.Context, text string) *EnsembleResult {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	req := &ClassifierRequest{
		SystemInstructions: gateSystemInstructions,
		UserPrompt:         "Classify the following group chat message.",
		MessageText:        text,
	}

	gateCh := make(chan *ClassifierResult, 1)
	secondCh := make(chan *ClassifierResult, 1)
	go func() { gateCh <- e.classifyOrAmbiguous(callCtx, e.gate, req) }()
	go func() { secondCh <- e.classifyOrAmbiguous(callCtx, e.second, req) }()

	result := &EnsembleResult{
		Gate:   <-gateCh,
		Second: <-secondCh,
	}
	e.votes.Add(1)

	gv, sv := result.Gate.Verdict, result.Second.Verdict
	switch {
	case gv == VerdictSafe && sv == VerdictSafe:
		result.Consensus = VerdictSafe
		result.SkipScoring = result.Gate.Confidence >= e.cfg.SkipConfidence &&
			result.Second.Confidence >= e.cfg.SkipConfidence
	case gv == VerdictHarmful && sv == VerdictHarmful:
		result.Consensus = VerdictHarmful
	case gv == VerdictAmbiguous || sv == VerdictAmbiguous:
		result.Consensus = VerdictAmbiguous
	default:
		// Clean disagreement: one says safe, the other harmful.
		result.Disagreed = true
		e.disagreements.Add(1)
		e.logDisagreement(text, result)
		e.resolveDisagreement(callCtx, req, result)
	}

	return result
}

// resolveDisagreement asks the tiebreak classifier to settle a clean split.
// The resolution only picks the consensus verdict; a split never skips the
// rule-based layers, that shortcut is reserved for two confident safe votes.
func (e *Ensemble) resolveDisagreement(ctx context.Context, req *ClassifierRequest, result *EnsembleResult) {
	tiebreak := e.classifyOrAmbiguous(ctx, e.tiebreak, req)
	switch tiebreak.Verdict {
	case VerdictSafe:
		result.Consensus = VerdictSafe
	case VerdictHarmful:
		result.Consensus = VerdictHarmful
	default:
		result.Consensus = VerdictAmbiguous
	}
}

// classifyOrAmbiguous wraps a classifier call with the fail-open default:
// timeouts, transport errors and malformed responses all come back as
// ambiguous with zero confidence
func (e *Ensemble) classifyOrAmbiguous(ctx context.Context, c Classifier, req *ClassifierRequest) *ClassifierResult {
	if c == nil {
		return ambiguousResult("classifier not configured")
	}
	result, err := c.Classify(ctx, req)
	if err != nil {
		e.logger.Warn("Classifier call failed, treating as ambiguous", zap.Error(err))
		return ambiguousResult(err.Error())
	}
	switch result.Verdict {
	case VerdictSafe, VerdictHarmful, VerdictAmbiguous:
		return result
	default:
		e.logger.Warn("Classifier returned unknown verdict, treating as ambiguous",
			zap.String("verdict", string(result.Verdict)))
		return ambiguousResult("unknown verdict")
	}
}

func ambiguousResult(reason string) *ClassifierResult {
	return &ClassifierResult{
		Verdict:    VerdictAmbiguous,
		Confidence: 0,
		Reason:     reason,
		AnalyzedAt: time.Now(),
	}
}

// logDisagreement records a disagreement with a content hash so lexicon gaps
// can be analyzed later without retaining raw message text
func (e *Ensemble) logDisagreement(text string, result *EnsembleResult) {
	sum := sha256.Sum256([]byte(text))
	e.logger.Info("Ensemble disagreement",
		zap.String("content_hash", hex.EncodeToString(sum[:])),
		zap.String("gate_verdict", string(result.Gate.Verdict)),
		zap.Float64("gate_confidence", result.Gate.Confidence),
		zap.String("second_verdict", string(result.Second.Verdict)),
		zap.Float64("second_confidence", result.Second.Confidence),
		zap.Float64("disagreement_rate", e.DisagreementRate()))
}

// DisagreementRate returns the running share of votes that split cleanly
func (e *Ensemble) DisagreementRate() float64 {
	votes := e.votes.Load()
	if votes == 0 {
		return 0
	}
	return float64(e.disagreements.Load()) / float64(votes)
}

// EnsembleHealth describes the calibration of the two classifiers
type EnsembleHealth string

const (
	EnsembleWarmingUp EnsembleHealth = "warming_up"
	EnsembleHealthy   EnsembleHealth = "healthy"
	EnsembleTooLow    EnsembleHealth = "miscalibrated_low"
	EnsembleTooHigh   EnsembleHealth = "miscalibrated_high"
)

// Health classifies the disagreement rate against the healthy band. A rate
// below the band means the second classifier adds no signal; above it means
// the two models disagree on fundamentals.
func (e *Ensemble) Health() EnsembleHealth {
	if e.votes.Load() < e.cfg.MinSamples {
		return EnsembleWarmingUp
	}
	rate := e.DisagreementRate()
	switch {
	case rate < e.cfg.HealthyLow:
		return EnsembleTooLow
	case rate > e.cfg.HealthyHigh:
		return EnsembleTooHigh
	default:
		return EnsembleHealthy
	}
}
