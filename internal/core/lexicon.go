package core

import (
	"regexp"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

const (
	maxHitsPerCategory = 2
	maxCategories      = 3
	emojiAddOnStep     = 0.5
	emojiAddOnCap      = 3.0
)

// lexiconEntry is one weighted pattern in a category table
type lexiconEntry struct {
	term      string
	category  Category
	baseScore float64
	pattern   *regexp.Regexp
}

// LexiconResult represents one scoring pass over a normalized message
type LexiconResult struct {
	Hits       []LexiconHit
	Categories []Category
	BaseScore  float64
	AddOns     float64
}

// WeightSnapshot is an immutable view of the dynamic lexicon weights. The
// feedback loop publishes new snapshots; scoring reads whichever snapshot was
// current when the pass started, so a retune never tears a calculation.
type WeightSnapshot struct {
	Version    int64
	Categories map[Category]float64
	Terms      map[string]float64
	TunedAt    time.Time
}

// weightFor resolves the multiplier for a hit, defaulting to 1.0
func (s *WeightSnapshot) weightFor(term string, category Category) float64 {
	w := 1.0
	if s == nil {
		return w
	}
	if cw, ok := s.Categories[category]; ok {
		w *= cw
	}
	if tw, ok := s.Terms[term]; ok {
		w *= tw
	}
	return w
}

// LexiconScorer detects harassment categories with weighted pattern tables.
// The hard cap keeps spam repetition from inflating the score: only the top
// two hits per category count, and only the top three categories sum.
type LexiconScorer struct {
	entries  []lexiconEntry
	snapshot atomic.Pointer[WeightSnapshot]
}

func word(s string) string {
	return `\b` + s + `\b`
}

// defaultLexicon builds the built-in category tables
func defaultLexicon() []lexiconEntry {
	specs := []struct {
		term     string
		category Category
		score    float64
		pattern  string
	}{
		{"idiot", CategoryGeneralInsult, 2, word(`idiots?`)},
		{"stupid", CategoryGeneralInsult, 2, word(`stupid`)},
		{"loser", CategoryGeneralInsult, 3, word(`losers?`)},
		{"trash", CategoryGeneralInsult, 2, word(`(?:you|u)(?: are|'?re|r) (?:all )?trash`)},
		{"pathetic", CategoryGeneralInsult, 3, word(`pathetic`)},
		{"worthless", CategoryGeneralInsult, 4, word(`worthless`)},
		{"ugly", CategoryGeneralInsult, 2, word(`(?:so |really )?ugly`)},
		{"moron", CategoryGeneralInsult, 2, word(`morons?`)},
		{"clown", CategoryGeneralInsult, 2, word(`(?:you|u)(?: are|'?re|r) a clown`)},

		{"everyone hates you", CategorySocialExclusion, 4, word(`every(?:one|body) (?:here )?hates (?:you|u|them|her|him)`)},
		{"nobody likes you", CategorySocialExclusion, 4, word(`no(?:body| one) (?:here )?(?:likes|wants) (?:you|u)`)},
		{"you don't belong", CategorySocialExclusion, 3, word(`(?:you|u) don'?t belong (?:here|with us)`)},
		{"leave the group", CategorySocialExclusion, 3, word(`(?:leave|get out of) (?:the|this|our) group`)},
		{"not invited", CategorySocialExclusion, 2, word(`(?:you're|you are|ur) not invited`)},
		{"we all hate", CategorySocialExclusion, 4, word(`we all hate (?:you|u|her|him|them)`)},

		{"send nudes", CategorySexualHarassment, 7, word(`send (?:me )?(?:nudes|pics of)`)},
		{"sexual comment", CategorySexualHarassment, 6, word(`what are you wearing`)},
		{"body remark", CategorySexualHarassment, 6, word(`nice (?:body|ass|tits)`)},
		{"unwanted advance", CategorySexualHarassment, 7, word(`(?:i|we) want to (?:touch|see) you`)},

		{"kill threat", CategoryThreatViolence, 12, word(`i(?: a?m| will|'ll) (?:gonna |going to )?kill (?:you|u|ya)`)},
		{"beat threat", CategoryThreatViolence, 10, word(`i(?: a?m| will|'ll) (?:gonna |going to )?(?:beat|hurt|smash) (?:you|u|ya)`)},
		{"watch your back", CategoryThreatViolence, 9, word(`watch your back`)},
		{"you're dead", CategoryThreatViolence, 10, word(`(?:you're|you are|ur) (?:so )?dead`)},
		{"find you", CategoryThreatViolence, 9, word(`i(?: will|'ll) find (?:you|u|where you live)`)},
		{"wait after school", CategoryThreatViolence, 8, word(`wait(?:ing)? for you after (?:school|class|work)`)},

		{"post address", CategoryDoxxing, 10, word(`(?:post|share|leak)(?:ing)? your (?:address|number|location)`)},
		{"know your address", CategoryDoxxing, 9, word(`i (?:know|have|got) your (?:address|number|location)`)},
		{"expose photos", CategoryDoxxing, 10, word(`(?:post|share|leak|send)(?:ing)? your (?:photos|pics|pictures)`)},

		{"or else", CategoryCoercion, 7, word(`do (?:it|this|what i say) or (?:else|i will)`)},
		{"tell everyone", CategoryCoercion, 8, word(`(?:i will|i'll|or i) tell every(?:one|body) (?:your|about)`)},
		{"unless you", CategoryCoercion, 7, word(`unless you (?:pay|send|do)`)},
		{"blackmail", CategoryCoercion, 9, word(`i have screenshots(?: of you)?`)},

		{"laugh at", CategoryPublicHumiliation, 5, word(`(?:let'?s|lets) all laugh at`)},
		{"look at this", CategoryPublicHumiliation, 5, word(`(?:everyone|everybody) look at (?:this|what)`)},
		{"embarrassing", CategoryPublicHumiliation, 4, word(`how embarrassing for (?:you|u|her|him|them)`)},
		{"screenshot this", CategoryPublicHumiliation, 5, word(`screenshot(?:ting)? this and (?:sending|sharing|posting)`)},

		{"go die", CategorySelfHarm, 11, word(`go die`)},
		{"nobody would miss you", CategorySelfHarm, 12, word(`no(?:body| one) would (?:miss|care about) (?:you|u)`)},
		{"why are you alive", CategorySelfHarm, 11, word(`why are you (?:even |still )?alive`)},

		{"hostile emoji burst", CategoryEmojiHarassment, 2, `(?:🖕|🤮|💀|🤡|🐷|🗑){2,}`},
		{"mock laughter", CategoryEmojiHarassment, 1, `(?:😂|🤣){4,}`},
	}

	entries := make([]lexiconEntry, 0, len(specs))
	for _, s := range specs {
		entries = append(entries, lexiconEntry{
			term:      s.term,
			category:  s.category,
			baseScore: s.score,
			pattern:   regexp.MustCompile(s.pattern),
		})
	}
	return entries
}

// NewLexiconScorer creates a scorer with the built-in tables and a neutral
// weight snapshot
func NewLexiconScorer() *LexiconScorer {
	s := &LexiconScorer{entries: defaultLexicon()}
	s.snapshot.Store(&WeightSnapshot{
		Version:    1,
		Categories: map[Category]float64{},
		Terms:      map[string]float64{},
		TunedAt:    time.Now(),
	})
	return s
}

// Snapshot returns the weight snapshot scoring currently reads
func (s *LexiconScorer) Snapshot() *WeightSnapshot {
	return s.snapshot.Load()
}

// SetSnapshot atomically publishes a retuned weight snapshot
func (s *LexiconScorer) SetSnapshot(snap *WeightSnapshot) {
	if snap == nil {
		return
	}
	s.snapshot.Store(snap)
}

// Score runs all category tables over the normalized text and applies the
// hard cap. Emoji intensity contributes to AddOns rather than the base score.
func (s *LexiconScorer) Score(normalized string) *LexiconResult {
	snap := s.snapshot.Load()

	var hits []LexiconHit
	for _, e := range s.entries {
		matches := e.pattern.FindAllString(normalized, -1)
		for range matches {
			hits = append(hits, LexiconHit{
				Term:      e.term,
				Category:  e.category,
				BaseScore: e.baseScore,
				Weight:    snap.weightFor(e.term, e.category),
			})
		}
	}

	result := &LexiconResult{
		Hits:   hits,
		AddOns: emojiIntensity(normalized),
	}
	if len(hits) == 0 {
		return result
	}

	// Hard cap: top 2 hits per category, then top 3 categories by sum.
	byCategory := make(map[Category][]LexiconHit)
	for _, h := range hits {
		byCategory[h.Category] = append(byCategory[h.Category], h)
	}

	type categorySum struct {
		category Category
		sum      float64
	}
	sums := make([]categorySum, 0, len(byCategory))
	for cat, catHits := range byCategory {
		sort.Slice(catHits, func(i, j int) bool {
			return catHits[i].WeightedScore() > catHits[j].WeightedScore()
		})
		if len(catHits) > maxHitsPerCategory {
			catHits = catHits[:maxHitsPerCategory]
		}
		var sum float64
		for _, h := range catHits {
			sum += h.WeightedScore()
		}
		sums = append(sums, categorySum{category: cat, sum: sum})
	}
	sort.Slice(sums, func(i, j int) bool { return sums[i].sum > sums[j].sum })

	counted := sums
	if len(counted) > maxCategories {
		counted = counted[:maxCategories]
	}
	for _, cs := range counted {
		result.BaseScore += cs.sum
	}

	// All detected categories are reported even when capped out of the score.
	for _, cs := range sums {
		result.Categories = append(result.Categories, cs.category)
	}

	return result
}

// NormalizeCategory maps an arbitrary category label to a known category,
// folding anything unknown into the low-weight generic bucket
func NormalizeCategory(label string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(label)))
	switch c {
	case CategoryGeneralInsult, CategorySexualHarassment, CategoryThreatViolence,
		CategorySocialExclusion, CategoryDoxxing, CategoryCoercion,
		CategoryPublicHumiliation, CategoryEmojiHarassment, CategorySelfHarm:
		return c
	default:
		return CategoryGeneric
	}
}

// hostileEmoji are the emoji counted toward the intensity add-on
var hostileEmoji = []string{"🖕", "🤮", "💀", "🤡", "🐷", "🗑", "🔪"}

// emojiIntensity converts hostile emoji volume into a bounded score add-on
func emojiIntensity(text string) float64 {
	count := 0
	for _, e := range hostileEmoji {
		count += strings.Count(text, e)
	}
	if count == 0 {
		return 0
	}
	addOn := float64(count) * emojiAddOnStep
	if addOn > emojiAddOnCap {
		return emojiAddOnCap
	}
	return addOn
}
