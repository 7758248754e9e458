package core

import (
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	pileOnBonus          = 3.0
	repeatTargetBonus    = 2.0
	repeatTargetBonusMax = 4.0
	recentMediumBonus    = 2.0
	recentHighBonus      = 3.0
	chronicMediumBonus   = 2.0
	chronicMediumCount   = 3
)

// TemporalConfig bounds the per-group windows and per-sender histories
type TemporalConfig struct {
	WindowSize         int
	WindowAge          time.Duration
	PileOnWindow       time.Duration
	RepeatTargetWindow time.Duration
	HistoryHorizon     time.Duration
	SweepInterval      time.Duration
}

// DefaultTemporalConfig returns the production bounds
func DefaultTemporalConfig() TemporalConfig {
	return TemporalConfig{
		WindowSize:         500,
		WindowAge:          24 * time.Hour,
		PileOnWindow:       10 * time.Minute,
		RepeatTargetWindow: 30 * time.Minute,
		HistoryHorizon:     7 * 24 * time.Hour,
		SweepInterval:      15 * time.Minute,
	}
}

// BehaviorSignals summarizes the temporal patterns around one message
type BehaviorSignals struct {
	PileOn          bool
	RepeatTargeting int
	RepeatOffender  bool
	Points          float64
}

// windowEntry is one observed message in a group's conversation window
type windowEntry struct {
	senderID   string
	targetID   string
	text       string
	timestamp  time.Time
	categories []Category
}

func (e *windowEntry) hostile() bool {
	return len(e.categories) > 0
}

// ContextEntry is a window entry exposed for escalation context building
type ContextEntry struct {
	SenderID string
	Text     string
}

// groupWindow is the bounded per-group ring of recent messages. Each group
// has its own lock so concurrent messages in different groups never contend.
type groupWindow struct {
	mu      sync.Mutex
	entries []windowEntry
}

// historyEntry is one scored outcome in a sender's rolling history
type historyEntry struct {
	timestamp time.Time
	severity  Severity
}

// senderHistory is the bounded per-sender list of past severities
type senderHistory struct {
	mu      sync.Mutex
	entries []historyEntry
}

// TemporalAnalyzer tracks conversation windows and sender histories to detect
// pile-ons, repeat targeting and repeat offenders. Eviction happens lazily on
// access and periodically on a sweep timer, never on the scoring path.
type TemporalAnalyzer struct {
	cfg    TemporalConfig
	logger *zap.Logger

	mu      sync.RWMutex
	groups  map[string]*groupWindow
	senders map[string]*senderHistory

	stopCh chan struct{}
}

// NewTemporalAnalyzer creates an analyzer and starts its background sweep
func NewTemporalAnalyzer(cfg TemporalConfig, logger *zap.Logger) *TemporalAnalyzer {
	a := &TemporalAnalyzer{
		cfg:     cfg,
		logger:  logger,
		groups:  make(map[string]*groupWindow),
		senders: make(map[string]*senderHistory),
		stopCh:  make(chan struct{}),
	}
	go a.startSweepTask()
	return a
}

// mentionPattern captures @handle style targeting in normalized text
var mentionPattern = regexp.MustCompile(`@([a-z0-9_.]+)`)

// ExtractTarget returns the mentioned handle when the message names its
// target, or an empty string when no explicit target is present
func ExtractTarget(normalized string) string {
	m := mentionPattern.FindStringSubmatch(normalized)
	if m == nil {
		return ""
	}
	return m[1]
}

// Observe records the message in its group window and reports the temporal
// signals for it. Only hostile messages (non-empty categories) count as
// attacks; every message is recorded so escalation context stays complete.
func (a *TemporalAnalyzer) Observe(msg *Message, targetID string, categories []Category) *BehaviorSignals {
	signals := &BehaviorSignals{}
	w := a.group(msg.GroupID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := msg.Timestamp
	a.evictLocked(w, now)

	hostile := len(categories) > 0
	if hostile && targetID != "" {
		signals.PileOn = a.pileOnLocked(w, msg.SenderID, targetID, now)
		signals.RepeatTargeting = a.repeatTargetingLocked(w, msg.SenderID, targetID, now)
	}

	w.entries = append(w.entries, windowEntry{
		senderID:   msg.SenderID,
		targetID:   targetID,
		text:       msg.Text,
		timestamp:  now,
		categories: categories,
	})
	if len(w.entries) > a.cfg.WindowSize {
		w.entries = w.entries[len(w.entries)-a.cfg.WindowSize:]
	}

	if signals.PileOn {
		signals.Points += pileOnBonus
	}
	switch {
	case signals.RepeatTargeting >= 2:
		signals.Points += repeatTargetBonusMax
	case signals.RepeatTargeting == 1:
		signals.Points += repeatTargetBonus
	}

	offenderPoints := a.offenderPoints(msg.SenderID, now)
	if offenderPoints > 0 {
		signals.RepeatOffender = true
		signals.Points += offenderPoints
	}

	return signals
}

// pileOnLocked reports whether a distinct sender already attacked the same
// target inside the pile-on window. The first attacker of the target never
// gets the bonus, not even on their own later messages; only the second and
// later distinct attackers do.
func (a *TemporalAnalyzer) pileOnLocked(w *groupWindow, senderID, targetID string, now time.Time) bool {
	cutoff := now.Add(-a.cfg.PileOnWindow)
	firstAttacker := ""
	othersAttacked := false
	for _, e := range w.entries {
		if e.timestamp.Before(cutoff) || !e.hostile() || e.targetID != targetID {
			continue
		}
		if firstAttacker == "" {
			firstAttacker = e.senderID
		}
		if e.senderID != senderID {
			othersAttacked = true
		}
	}
	return othersAttacked && firstAttacker != senderID
}

// repeatTargetingLocked counts earlier attacks by the same sender on the same
// target inside the repeat-targeting window
func (a *TemporalAnalyzer) repeatTargetingLocked(w *groupWindow, senderID, targetID string, now time.Time) int {
	cutoff := now.Add(-a.cfg.RepeatTargetWindow)
	count := 0
	for i := len(w.entries) - 1; i >= 0; i-- {
		e := &w.entries[i]
		if e.timestamp.Before(cutoff) {
			break
		}
		if e.hostile() && e.senderID == senderID && e.targetID == targetID {
			count++
		}
	}
	return count
}

// offenderPoints derives the repeat-offender bonus from the sender's own
// scored history
func (a *TemporalAnalyzer) offenderPoints(senderID string, now time.Time) float64 {
	h := a.sender(senderID)

	h.mu.Lock()
	defer h.mu.Unlock()

	pruneHistoryLocked(h, now.Add(-a.cfg.HistoryHorizon))

	var points float64
	var mediumWeek int
	recentMedium := false
	recentHigh := false
	for _, e := range h.entries {
		age := now.Sub(e.timestamp)
		if e.severity >= SeverityMedium && age <= time.Hour {
			recentMedium = true
		}
		if e.severity >= SeverityHigh && age <= 24*time.Hour {
			recentHigh = true
		}
		if e.severity >= SeverityMedium {
			mediumWeek++
		}
	}
	if recentMedium {
		points += recentMediumBonus
	}
	if recentHigh {
		points += recentHighBonus
	}
	if mediumWeek >= chronicMediumCount {
		points += chronicMediumBonus
	}
	return points
}

// RecordSeverity appends a scored outcome to the sender's history
func (a *TemporalAnalyzer) RecordSeverity(senderID string, severity Severity, ts time.Time) {
	h := a.sender(senderID)
	h.mu.Lock()
	defer h.mu.Unlock()
	pruneHistoryLocked(h, ts.Add(-a.cfg.HistoryHorizon))
	h.entries = append(h.entries, historyEntry{timestamp: ts, severity: severity})
}

// HistoryLen returns the sender's current history length
func (a *TemporalAnalyzer) HistoryLen(senderID string) int {
	h := a.sender(senderID)
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Recent returns up to n most recent window entries for the group, oldest
// first, for escalation context building
func (a *TemporalAnalyzer) Recent(groupID string, n int) []ContextEntry {
	w := a.group(groupID)
	w.mu.Lock()
	defer w.mu.Unlock()

	start := len(w.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]ContextEntry, 0, len(w.entries)-start)
	for _, e := range w.entries[start:] {
		out = append(out, ContextEntry{SenderID: e.senderID, Text: e.text})
	}
	return out
}

// group returns the window for a group, creating it on first sight
func (a *TemporalAnalyzer) group(groupID string) *groupWindow {
	a.mu.RLock()
	w, ok := a.groups[groupID]
	a.mu.RUnlock()
	if ok {
		return w
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok = a.groups[groupID]; ok {
		return w
	}
	w = &groupWindow{}
	a.groups[groupID] = w
	return w
}

// sender returns the history for a sender, creating it on first sight
func (a *TemporalAnalyzer) sender(senderID string) *senderHistory {
	a.mu.RLock()
	h, ok := a.senders[senderID]
	a.mu.RUnlock()
	if ok {
		return h
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if h, ok = a.senders[senderID]; ok {
		return h
	}
	h = &senderHistory{}
	a.senders[senderID] = h
	return h
}

// evictLocked drops window entries past the age bound
func (a *TemporalAnalyzer) evictLocked(w *groupWindow, now time.Time) {
	cutoff := now.Add(-a.cfg.WindowAge)
	i := 0
	for i < len(w.entries) && w.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = append([]windowEntry(nil), w.entries[i:]...)
	}
}

func pruneHistoryLocked(h *senderHistory, cutoff time.Time) {
	i := 0
	for i < len(h.entries) && h.entries[i].timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.entries = append([]historyEntry(nil), h.entries[i:]...)
	}
}

// startSweepTask periodically evicts stale windows and histories so idle
// groups do not pin memory
func (a *TemporalAnalyzer) startSweepTask() {
	if a.cfg.SweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Sweep(context.Background())
		case <-a.stopCh:
			return
		}
	}
}

// Sweep evicts expired entries across all groups and senders
func (a *TemporalAnalyzer) Sweep(_ context.Context) {
	now := time.Now()

	a.mu.RLock()
	groups := make([]*groupWindow, 0, len(a.groups))
	for _, w := range a.groups {
		groups = append(groups, w)
	}
	senders := make([]*senderHistory, 0, len(a.senders))
	for _, h := range a.senders {
		senders = append(senders, h)
	}
	a.mu.RUnlock()

	for _, w := range groups {
		w.mu.Lock()
		a.evictLocked(w, now)
		w.mu.Unlock()
	}
	cutoff := now.Add(-a.cfg.HistoryHorizon)
	for _, h := range senders {
		h.mu.Lock()
		pruneHistoryLocked(h, cutoff)
		h.mu.Unlock()
	}

	if a.logger != nil {
		a.logger.Debug("Swept temporal state",
			zap.Int("groups", len(groups)),
			zap.Int("senders", len(senders)))
	}
}

// Stop stops the background sweep task
func (a *TemporalAnalyzer) Stop() {
	close(a.stopCh)
}
