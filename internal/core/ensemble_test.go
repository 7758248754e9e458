package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// stubClassifier returns a canned result, optionally after a delay
type stubClassifier struct {
	verdict    Verdict
	confidence float64
	err        error
	delay      time.Duration
	calls      atomic.Int64
}

func (s *stubClassifier) Classify(ctx context.Context, req *ClassifierRequest) (*ClassifierResult, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ClassifierResult{
		Verdict:    s.verdict,
		Confidence: s.confidence,
		AnalyzedAt: time.Now(),
	}, nil
}

func newTestEnsemble(gate, second, tiebreak Classifier) *Ensemble {
	return NewEnsemble(gate, second, tiebreak, DefaultEnsembleConfig(), zap.NewNop())
}

func TestEnsembleVoting(t *testing.T) {
	tests := []struct {
		name      string
		gate      *stubClassifier
		second    *stubClassifier
		consensus Verdict
		skip      bool
		disagreed bool
	}{
		{
			"both safe confident",
			&stubClassifier{verdict: VerdictSafe, confidence: 0.9},
			&stubClassifier{verdict: VerdictSafe, confidence: 0.8},
			VerdictSafe, true, false,
		},
		{
			"both safe but hesitant",
			&stubClassifier{verdict: VerdictSafe, confidence: 0.9},
			&stubClassifier{verdict: VerdictSafe, confidence: 0.5},
			VerdictSafe, false, false,
		},
		{
			"both harmful",
			&stubClassifier{verdict: VerdictHarmful, confidence: 0.9},
			&stubClassifier{verdict: VerdictHarmful, confidence: 0.9},
			VerdictHarmful, false, false,
		},
		{
			"one ambiguous",
			&stubClassifier{verdict: VerdictAmbiguous, confidence: 0.4},
			&stubClassifier{verdict: VerdictSafe, confidence: 0.9},
			VerdictAmbiguous, false, false,
		},
		{
			"gate error degrades to ambiguous",
			&stubClassifier{err: errors.New("api down")},
			&stubClassifier{verdict: VerdictSafe, confidence: 0.9},
			VerdictAmbiguous, false, false,
		},
		{
			"unknown verdict degrades to ambiguous",
			&stubClassifier{verdict: Verdict("spammy"), confidence: 0.9},
			&stubClassifier{verdict: VerdictSafe, confidence: 0.9},
			VerdictAmbiguous, false, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnsemble(tt.gate, tt.second, nil)
			result := e.Evaluate(context.Background(), "some message")
			if result.Consensus != tt.consensus {
				t.Errorf("Consensus = %s, want %s", result.Consensus, tt.consensus)
			}
			if result.SkipScoring != tt.skip {
				t.Errorf("SkipScoring = %t, want %t", result.SkipScoring, tt.skip)
			}
			if result.Disagreed != tt.disagreed {
				t.Errorf("Disagreed = %t, want %t", result.Disagreed, tt.disagreed)
			}
		})
	}
}

func TestEnsembleDisagreementTiebreak(t *testing.T) {
	tests := []struct {
		name      string
		tiebreak  Classifier
		consensus Verdict
		skip      bool
	}{
		{"tiebreak harmful", &stubClassifier{verdict: VerdictHarmful, confidence: 0.9}, VerdictHarmful, false},
		// Even a confident safe tiebreak never skips scoring: the
		// short-circuit belongs to two confident safe votes alone.
		{"tiebreak safe confident", &stubClassifier{verdict: VerdictSafe, confidence: 0.9}, VerdictSafe, false},
		{"tiebreak safe hesitant", &stubClassifier{verdict: VerdictSafe, confidence: 0.3}, VerdictSafe, false},
		{"tiebreak missing", nil, VerdictAmbiguous, false},
		{"tiebreak fails", &stubClassifier{err: errors.New("api down")}, VerdictAmbiguous, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &stubClassifier{verdict: VerdictSafe, confidence: 0.9}
			second := &stubClassifier{verdict: VerdictHarmful, confidence: 0.9}
			e := newTestEnsemble(gate, second, tt.tiebreak)

			result := e.Evaluate(context.Background(), "some message")
			if !result.Disagreed {
				t.Fatal("clean split not marked as disagreement")
			}
			if result.Consensus != tt.consensus {
				t.Errorf("Consensus = %s, want %s", result.Consensus, tt.consensus)
			}
			if result.SkipScoring != tt.skip {
				t.Errorf("SkipScoring = %t, want %t", result.SkipScoring, tt.skip)
			}
		})
	}
}

func TestEnsembleTimeout(t *testing.T) {
	cfg := DefaultEnsembleConfig()
	cfg.Timeout = 20 * time.Millisecond

	gate := &stubClassifier{verdict: VerdictHarmful, confidence: 0.9, delay: time.Second}
	second := &stubClassifier{verdict: VerdictSafe, confidence: 0.9}
	e := NewEnsemble(gate, second, nil, cfg, zap.NewNop())

	result := e.Evaluate(context.Background(), "some message")
	if result.Gate.Verdict != VerdictAmbiguous {
		t.Errorf("timed-out gate verdict = %s, want ambiguous", result.Gate.Verdict)
	}
	if result.Consensus != VerdictAmbiguous {
		t.Errorf("Consensus = %s, want ambiguous", result.Consensus)
	}
}

func TestEnsembleNoClassifiers(t *testing.T) {
	e := newTestEnsemble(nil, nil, nil)

	result := e.Evaluate(context.Background(), "some message")
	if result.Consensus != VerdictAmbiguous || result.SkipScoring {
		t.Errorf("unexpected result without classifiers: %+v", result)
	}
}

func TestEnsembleHealth(t *testing.T) {
	harmful := &stubClassifier{verdict: VerdictHarmful, confidence: 0.9}
	safe := &stubClassifier{verdict: VerdictSafe, confidence: 0.9}
	agreeing := &stubClassifier{verdict: VerdictHarmful, confidence: 0.9}

	e := newTestEnsemble(harmful, agreeing, nil)
	if got := e.Health(); got != EnsembleWarmingUp {
		t.Fatalf("Health = %s before any votes, want %s", got, EnsembleWarmingUp)
	}

	// 18 agreements and 2 clean splits: rate 0.1, inside the healthy band.
	for i := 0; i < 18; i++ {
		e.Evaluate(context.Background(), "agree")
	}
	e.second = safe
	for i := 0; i < 2; i++ {
		e.Evaluate(context.Background(), "split")
	}
	if got := e.Health(); got != EnsembleHealthy {
		t.Errorf("Health = %s at 10%% disagreement, want %s", got, EnsembleHealthy)
	}
	if rate := e.DisagreementRate(); rate != 0.1 {
		t.Errorf("DisagreementRate = %v, want 0.1", rate)
	}

	// All agreements reads as the second model adding no signal.
	low := newTestEnsemble(harmful, agreeing, nil)
	for i := 0; i < 20; i++ {
		low.Evaluate(context.Background(), "agree")
	}
	if got := low.Health(); got != EnsembleTooLow {
		t.Errorf("Health = %s at zero disagreement, want %s", got, EnsembleTooLow)
	}

	// Constant splits read as miscalibration.
	high := newTestEnsemble(harmful, safe, nil)
	for i := 0; i < 20; i++ {
		high.Evaluate(context.Background(), "split")
	}
	if got := high.Health(); got != EnsembleTooHigh {
		t.Errorf("Health = %s at constant disagreement, want %s", got, EnsembleTooHigh)
	}
}
