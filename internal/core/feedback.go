package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FeedbackConfig tunes the human-review retuning loop
type FeedbackConfig struct {
	BatchSize      int
	RetuneInterval time.Duration
	QueueSize      int
}

// DefaultFeedbackConfig returns the production feedback settings
func DefaultFeedbackConfig() FeedbackConfig {
	return FeedbackConfig{
		BatchSize:      50,
		RetuneInterval: 720 * time.Hour,
		QueueSize:      1024,
	}
}

// FeedbackStats summarizes review outcomes across all categories
type FeedbackStats struct {
	Reviewed  int     `json:"reviewed"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// categoryCounts tracks review outcomes for one category
type categoryCounts struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
}

func (c *categoryCounts) precision() (float64, bool) {
	flagged := c.TruePositives + c.FalsePositives
	if flagged == 0 {
		return 0, false
	}
	return float64(c.TruePositives) / float64(flagged), true
}

// FeedbackLoop ingests human verdicts asynchronously and retunes the lexicon
// weights from per-category precision. It never blocks message scoring: new
// weights apply to future scoring calls only.
type FeedbackLoop struct {
	lexicon *LexiconScorer
	store   KeyValueStore
	cfg     FeedbackConfig
	logger  *zap.Logger

	queue  chan FeedbackRecord
	stopCh chan struct{}
	done   chan struct{}

	mu       sync.Mutex
	pending  int
	counts   map[Category]*categoryCounts
	reviewed int
	totalTP  int
	totalFP  int
	totalFN  int
	totalTN  int
}

// NewFeedbackLoop creates the loop and starts its consumer goroutine
func NewFeedbackLoop(lexicon *LexiconScorer, store KeyValueStore, cfg FeedbackConfig, logger *zap.Logger) *FeedbackLoop {
	l := &FeedbackLoop{
		lexicon: lexicon,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		queue:   make(chan FeedbackRecord, cfg.QueueSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		counts:  make(map[Category]*categoryCounts),
	}
	go l.run()
	return l
}

// Record enqueues a human verdict. It never blocks: when the queue is full
// the record is dropped with a warning rather than delaying the caller.
func (l *FeedbackLoop) Record(rec FeedbackRecord) {
	select {
	case l.queue <- rec:
	default:
		l.logger.Warn("Feedback queue full, dropping record",
			zap.String("message_id", rec.MessageID))
	}
}

// run consumes the queue and retunes on batch size or on the schedule
func (l *FeedbackLoop) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.RetuneInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-l.queue:
			if l.ingest(rec) >= l.cfg.BatchSize {
				l.Retune()
			}
		case <-ticker.C:
			l.Retune()
		case <-l.stopCh:
			for {
				select {
				case rec := <-l.queue:
					l.ingest(rec)
				default:
					l.Retune()
					return
				}
			}
		}
	}
}

// ingest folds one record into the counts and returns the pending batch size
func (l *FeedbackLoop) ingest(rec FeedbackRecord) int {
	category := NormalizeCategory(string(rec.Category))

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counts[category]
	if !ok {
		c = &categoryCounts{}
		l.counts[category] = c
	}

	switch rec.Verdict {
	case FeedbackTruePositive:
		c.TruePositives++
		l.totalTP++
	case FeedbackFalsePositive:
		c.FalsePositives++
		l.totalFP++
	case FeedbackFalseNegative:
		c.FalseNegatives++
		l.totalFN++
	case FeedbackTrueNegative:
		l.totalTN++
	default:
		l.logger.Warn("Unknown feedback verdict", zap.String("verdict", string(rec.Verdict)))
		return l.pending
	}

	l.reviewed++
	l.pending++
	return l.pending
}

// Retune recomputes category weights from review precision and publishes a
// new snapshot. Higher precision earns a higher weight through a monotonic
// step function.
func (l *FeedbackLoop) Retune() {
	l.mu.Lock()
	if l.pending == 0 {
		l.mu.Unlock()
		return
	}
	l.pending = 0

	weights := make(map[Category]float64, len(l.counts))
	for category, c := range l.counts {
		if p, ok := c.precision(); ok {
			weights[category] = stepWeight(p)
		}
	}
	version := l.lexicon.Snapshot().Version + 1
	persisted := make(map[Category]categoryCounts, len(l.counts))
	for category, c := range l.counts {
		persisted[category] = *c
	}
	l.mu.Unlock()

	l.lexicon.SetSnapshot(&WeightSnapshot{
		Version:    version,
		Categories: weights,
		Terms:      map[string]float64{},
		TunedAt:    time.Now(),
	})
	l.logger.Info("Retuned lexicon weights",
		zap.Int64("version", version),
		zap.Int("categories", len(weights)))

	l.persist(persisted)
}

// stepWeight maps a precision band to a weight multiplier
func stepWeight(precision float64) float64 {
	switch {
	case precision >= 0.9:
		return 1.2
	case precision >= 0.75:
		return 1.0
	case precision >= 0.6:
		return 0.85
	case precision >= 0.4:
		return 0.7
	default:
		return 0.5
	}
}

// persist writes the per-category counters through the store so stats
// survive a restart. Store failures are logged and ignored: feedback state
// is advisory, not load-bearing.
func (l *FeedbackLoop) persist(counts map[Category]categoryCounts) {
	if l.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for category, c := range counts {
		data, err := json.Marshal(c)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("feedback:counts:%s", category)
		if err := l.store.Set(ctx, key, string(data), 0); err != nil {
			l.logger.Warn("Failed to persist feedback counts", zap.Error(err))
			return
		}
	}
}

// Stats returns precision, recall and F1 across all reviewed messages
func (l *FeedbackLoop) Stats() FeedbackStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := FeedbackStats{Reviewed: l.reviewed}
	if l.totalTP+l.totalFP > 0 {
		stats.Precision = float64(l.totalTP) / float64(l.totalTP+l.totalFP)
	}
	if l.totalTP+l.totalFN > 0 {
		stats.Recall = float64(l.totalTP) / float64(l.totalTP+l.totalFN)
	}
	if stats.Precision+stats.Recall > 0 {
		stats.F1 = 2 * stats.Precision * stats.Recall / (stats.Precision + stats.Recall)
	}
	return stats
}

// Stop drains the queue, runs a final retune and stops the consumer
func (l *FeedbackLoop) Stop() {
	close(l.stopCh)
	<-l.done
}
