package core

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func testTemporalConfig() TemporalConfig {
	cfg := DefaultTemporalConfig()
	cfg.SweepInterval = 0
	return cfg
}

func hostileMsg(id, sender, group string, ts time.Time) *Message {
	return &Message{ID: id, SenderID: sender, GroupID: group, Text: "@tommy you are trash", Timestamp: ts}
}

func TestExtractTarget(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"@tommy you are trash", "tommy"},
		{"you are trash", ""},
		{"hey @mia.22 stop", "mia.22"},
	}
	for _, tt := range tests {
		if got := ExtractTarget(tt.text); got != tt.want {
			t.Errorf("ExtractTarget(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestPileOnSecondAttackerOnly(t *testing.T) {
	a := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	defer a.Stop()

	now := time.Now()
	insult := []Category{CategoryGeneralInsult}

	first := a.Observe(hostileMsg("m1", "alice", "g1", now), "tommy", insult)
	if first.PileOn {
		t.Error("first attacker flagged as pile-on")
	}

	second := a.Observe(hostileMsg("m2", "bob", "g1", now.Add(time.Minute)), "tommy", insult)
	if !second.PileOn {
		t.Error("second attacker not flagged as pile-on")
	}
	if second.Points < pileOnBonus {
		t.Errorf("Points = %v, want at least %v", second.Points, pileOnBonus)
	}

	third := a.Observe(hostileMsg("m3", "carol", "g1", now.Add(2*time.Minute)), "tommy", insult)
	if !third.PileOn {
		t.Error("third attacker not flagged as pile-on")
	}

	// The first attacker never earns the bonus, even on later messages.
	again := a.Observe(hostileMsg("m4", "alice", "g1", now.Add(3*time.Minute)), "tommy", insult)
	if again.PileOn {
		t.Error("first attacker earned pile-on bonus on a later message")
	}
}

func TestPileOnWindowExpiry(t *testing.T) {
	cfg := testTemporalConfig()
	a := NewTemporalAnalyzer(cfg, zap.NewNop())
	defer a.Stop()

	now := time.Now()
	insult := []Category{CategoryGeneralInsult}

	a.Observe(hostileMsg("m1", "alice", "g1", now), "tommy", insult)
	late := a.Observe(hostileMsg("m2", "bob", "g1", now.Add(cfg.PileOnWindow+time.Minute)), "tommy", insult)
	if late.PileOn {
		t.Error("attack outside the pile-on window flagged as pile-on")
	}
}

func TestRepeatTargeting(t *testing.T) {
	a := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	defer a.Stop()

	now := time.Now()
	insult := []Category{CategoryGeneralInsult}

	first := a.Observe(hostileMsg("m1", "alice", "g1", now), "tommy", insult)
	if first.RepeatTargeting != 0 {
		t.Errorf("RepeatTargeting = %d, want 0", first.RepeatTargeting)
	}

	second := a.Observe(hostileMsg("m2", "alice", "g1", now.Add(time.Minute)), "tommy", insult)
	if second.RepeatTargeting != 1 || second.Points != repeatTargetBonus {
		t.Errorf("second attack: RepeatTargeting=%d Points=%v, want 1 and %v",
			second.RepeatTargeting, second.Points, repeatTargetBonus)
	}

	third := a.Observe(hostileMsg("m3", "alice", "g1", now.Add(2*time.Minute)), "tommy", insult)
	if third.RepeatTargeting != 2 || third.Points != repeatTargetBonusMax {
		t.Errorf("third attack: RepeatTargeting=%d Points=%v, want 2 and %v",
			third.RepeatTargeting, third.Points, repeatTargetBonusMax)
	}
}

func TestRepeatOffenderBonus(t *testing.T) {
	a := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	defer a.Stop()

	now := time.Now()
	a.RecordSeverity("alice", SeverityMedium, now.Add(-30*time.Minute))

	signals := a.Observe(hostileMsg("m1", "alice", "g1", now), "tommy", []Category{CategoryGeneralInsult})
	if !signals.RepeatOffender {
		t.Fatal("medium severity within the hour did not mark repeat offender")
	}
	if signals.Points != recentMediumBonus {
		t.Errorf("Points = %v, want %v", signals.Points, recentMediumBonus)
	}
}

func TestChronicOffenderBonus(t *testing.T) {
	a := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	defer a.Stop()

	now := time.Now()
	for i := 0; i < chronicMediumCount; i++ {
		a.RecordSeverity("alice", SeverityMedium, now.Add(-time.Duration(i+2)*24*time.Hour/7))
	}

	signals := a.Observe(hostileMsg("m1", "alice", "g1", now), "tommy", []Category{CategoryGeneralInsult})
	if !signals.RepeatOffender {
		t.Fatal("chronic medium history did not mark repeat offender")
	}
}

func TestSafeHistoryAccruesNoPoints(t *testing.T) {
	a := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	defer a.Stop()

	now := time.Now()
	for i := 0; i < 20; i++ {
		a.RecordSeverity("alice", SeverityNone, now.Add(-time.Duration(i)*time.Minute))
	}
	if got := a.HistoryLen("alice"); got != 20 {
		t.Fatalf("HistoryLen = %d, want 20", got)
	}

	signals := a.Observe(hostileMsg("m1", "alice", "g1", now), "", nil)
	if signals.Points != 0 || signals.RepeatOffender {
		t.Errorf("clean history produced points: %+v", signals)
	}
}

func TestWindowSizeBound(t *testing.T) {
	cfg := testTemporalConfig()
	cfg.WindowSize = 3
	a := NewTemporalAnalyzer(cfg, zap.NewNop())
	defer a.Stop()

	now := time.Now()
	for i := 0; i < 10; i++ {
		a.Observe(&Message{
			ID:        "m",
			SenderID:  "alice",
			GroupID:   "g1",
			Text:      "hello",
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}, "", nil)
	}

	if got := len(a.Recent("g1", 100)); got != 3 {
		t.Errorf("window holds %d entries, want 3", got)
	}
}

func TestRecentReturnsLatest(t *testing.T) {
	a := NewTemporalAnalyzer(testTemporalConfig(), zap.NewNop())
	defer a.Stop()

	now := time.Now()
	texts := []string{"one", "two", "three", "four"}
	for i, text := range texts {
		a.Observe(&Message{
			ID:        "m",
			SenderID:  "alice",
			GroupID:   "g1",
			Text:      text,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}, "", nil)
	}

	recent := a.Recent("g1", 2)
	if len(recent) != 2 || recent[0].Text != "three" || recent[1].Text != "four" {
		t.Errorf("Recent = %+v", recent)
	}
}

func TestSweepEvictsOldEntries(t *testing.T) {
	cfg := testTemporalConfig()
	cfg.WindowAge = time.Millisecond
	cfg.HistoryHorizon = time.Millisecond
	a := NewTemporalAnalyzer(cfg, zap.NewNop())
	defer a.Stop()

	old := time.Now().Add(-time.Hour)
	a.Observe(&Message{ID: "m1", SenderID: "alice", GroupID: "g1", Text: "old", Timestamp: old}, "", nil)
	a.RecordSeverity("alice", SeverityMedium, old)

	a.Sweep(nil)

	if got := len(a.Recent("g1", 10)); got != 0 {
		t.Errorf("window still holds %d entries after sweep", got)
	}
	if got := a.HistoryLen("alice"); got != 0 {
		t.Errorf("history still holds %d entries after sweep", got)
	}
}
