package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeStore is an in-memory KeyValueStore for tests
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (s *fakeStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *fakeStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func (s *fakeStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return delta, nil
}

func (s *fakeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// fakeVoter returns a canned ensemble outcome and counts calls
type fakeVoter struct {
	result *EnsembleResult
	calls  int
}

func (v *fakeVoter) Evaluate(ctx context.Context, text string) *EnsembleResult {
	v.calls++
	return v.result
}

// countingLexicon wraps the real scorer and counts calls
type countingLexicon struct {
	scorer *LexiconScorer
	calls  int
}

func (l *countingLexicon) Score(normalized string) *LexiconResult {
	l.calls++
	return l.scorer.Score(normalized)
}

// countingTemporal wraps the real analyzer and counts observations
type countingTemporal struct {
	analyzer   *TemporalAnalyzer
	observed   int
	severities int
}

func (t *countingTemporal) Observe(msg *Message, targetID string, categories []Category) *BehaviorSignals {
	t.observed++
	return t.analyzer.Observe(msg, targetID, categories)
}

func (t *countingTemporal) RecordSeverity(senderID string, severity Severity, ts time.Time) {
	t.severities++
	t.analyzer.RecordSeverity(senderID, severity, ts)
}

// noopEscalator passes results through untouched
type noopEscalator struct{}

func (noopEscalator) MaybeEscalate(ctx context.Context, msg *Message, result *ScoreResult, monitorMode bool) *ScoreResult {
	return result
}

type serviceFixture struct {
	service  *ModerationService
	voter    *fakeVoter
	lexicon  *countingLexicon
	temporal *countingTemporal
	store    *fakeStore
	analyzer *TemporalAnalyzer
}

func ambiguousEnsemble() *EnsembleResult {
	return &EnsembleResult{Consensus: VerdictAmbiguous}
}

func newServiceFixture(t *testing.T, ensemble *EnsembleResult) *serviceFixture {
	t.Helper()
	analyzer := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	t.Cleanup(analyzer.Stop)

	voter := &fakeVoter{result: ensemble}
	lexicon := &countingLexicon{scorer: NewLexiconScorer()}
	temporal := &countingTemporal{analyzer: analyzer}
	store := newFakeStore()

	service := NewModerationService(
		NewNormalizer(nil),
		NewCriticalFilter(nil),
		lexicon,
		temporal,
		NewCompositeScorer(DefaultCompositeConfig()),
		voter,
		noopEscalator{},
		store,
		zap.NewNop(),
	)
	return &serviceFixture{
		service:  service,
		voter:    voter,
		lexicon:  lexicon,
		temporal: temporal,
		store:    store,
		analyzer: analyzer,
	}
}

func chatMsg(text string) *Message {
	return &Message{
		ID:        "m1",
		SenderID:  "alice",
		GroupID:   "g1",
		Text:      text,
		Timestamp: time.Now(),
	}
}

func TestScoreMessageNil(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())
	if _, err := f.service.ScoreMessage(context.Background(), nil, nil); err == nil {
		t.Error("expected error for nil message")
	}
}

func TestScoreMessageEmptyText(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	result, err := f.service.ScoreMessage(context.Background(), chatMsg("   "), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Error("empty message not skipped")
	}
	if f.voter.calls != 0 {
		t.Error("classifiers called for empty message")
	}
	if f.temporal.severities != 1 {
		t.Errorf("severities recorded %d times, want 1", f.temporal.severities)
	}
}

func TestScoreMessageCriticalBypass(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	result, err := f.service.ScoreMessage(context.Background(), chatMsg("you should kill yourself"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Severity != SeverityCritical {
		t.Errorf("Severity = %s, want %s", result.Severity, SeverityCritical)
	}
	if result.Action != ActionUrgentIntervention {
		t.Errorf("Action = %s, want %s", result.Action, ActionUrgentIntervention)
	}
	if f.voter.calls != 0 {
		t.Error("classifiers called despite critical bypass")
	}
	if f.lexicon.calls != 0 {
		t.Error("lexicon called despite critical bypass")
	}
}

func TestScoreMessageEnsembleSkip(t *testing.T) {
	f := newServiceFixture(t, &EnsembleResult{Consensus: VerdictSafe, SkipScoring: true})

	result, err := f.service.ScoreMessage(context.Background(), chatMsg("nice one, see you later"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped || result.FinalScore != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if f.lexicon.calls != 0 {
		t.Error("lexicon ran despite confident safe consensus")
	}
	if f.temporal.observed != 0 {
		t.Error("message observed despite confident safe consensus")
	}
	if f.temporal.severities != 1 {
		t.Errorf("severities recorded %d times, want 1", f.temporal.severities)
	}
}

func TestScoreMessageFullPipeline(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	result, err := f.service.ScoreMessage(context.Background(), chatMsg("you are trash, everyone hates you"), nil)
	if err != nil {
		t.Fatal(err)
	}

	// insult 2 + exclusion 4, targeted: (2+4) * 1.5 = 9
	if result.FinalScore != 9 {
		t.Errorf("FinalScore = %d, want 9", result.FinalScore)
	}
	if result.Severity != SeverityMedium || result.Action != ActionAlert {
		t.Errorf("Severity = %s Action = %s, want medium/alert", result.Severity, result.Action)
	}
	if !result.HasCategory(CategoryGeneralInsult) || !result.HasCategory(CategorySocialExclusion) {
		t.Errorf("Categories = %v", result.Categories)
	}
	if result.Multipliers.Targeting != 1.5 {
		t.Errorf("Targeting = %v, want 1.5", result.Multipliers.Targeting)
	}
	if f.temporal.observed != 1 || f.temporal.severities != 1 {
		t.Errorf("observed=%d severities=%d, want 1 and 1", f.temporal.observed, f.temporal.severities)
	}
}

func TestScoreMessageClassifierOutageStillScores(t *testing.T) {
	// Ambiguous consensus is what the ensemble degrades to when every
	// classifier call fails; the rule-based layers still produce a score.
	f := newServiceFixture(t, ambiguousEnsemble())

	result, err := f.service.ScoreMessage(context.Background(), chatMsg("you are such an idiot"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Skipped {
		t.Error("message skipped during classifier outage")
	}
	if result.FinalScore == 0 {
		t.Error("no score produced during classifier outage")
	}
}

func TestScoreMessageTransportWhitelist(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	result, err := f.service.ScoreMessage(context.Background(),
		chatMsg("you are trash, everyone hates you"),
		&GroupContext{Whitelisted: true})
	if err != nil {
		t.Fatal(err)
	}
	if result.Multipliers.FriendGroup != 0.5 {
		t.Errorf("FriendGroup = %v, want default dampening 0.5", result.Multipliers.FriendGroup)
	}
}

func TestScoreMessageStoredWhitelist(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	entry := &WhitelistEntry{GroupID: "g1", Dampening: 0.4}
	data, _ := json.Marshal(entry)
	f.store.data["whitelist:group:g1"] = string(data)

	result, err := f.service.ScoreMessage(context.Background(),
		chatMsg("you are trash, everyone hates you"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Multipliers.FriendGroup != 0.4 {
		t.Errorf("FriendGroup = %v, want stored dampening 0.4", result.Multipliers.FriendGroup)
	}
}

func TestScoreMessageExpiredWhitelist(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	entry := &WhitelistEntry{GroupID: "g1", Dampening: 0.4, ExpiresAt: time.Now().Add(-time.Hour)}
	data, _ := json.Marshal(entry)
	f.store.data["whitelist:group:g1"] = string(data)

	result, err := f.service.ScoreMessage(context.Background(),
		chatMsg("you are trash, everyone hates you"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Multipliers.FriendGroup != 1.0 {
		t.Errorf("FriendGroup = %v, want 1.0 for expired entry", result.Multipliers.FriendGroup)
	}
}

func TestScoreMessageCancelledContext(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.service.ScoreMessage(ctx, chatMsg("you are trash"), nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestWhitelistAdmin(t *testing.T) {
	f := newServiceFixture(t, ambiguousEnsemble())

	entry := &WhitelistEntry{GroupID: "g1", Dampening: 0.3, ExpiresAt: time.Now().Add(time.Hour)}
	if err := f.service.Whitelist(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.Get(context.Background(), "whitelist:group:g1"); err != nil {
		t.Errorf("entry not stored: %v", err)
	}

	expired := &WhitelistEntry{GroupID: "g2", ExpiresAt: time.Now().Add(-time.Hour)}
	if err := f.service.Whitelist(context.Background(), expired); err == nil {
		t.Error("expected error for already-expired entry")
	}
}
