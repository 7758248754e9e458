package core

import (
	"strings"
	"sync"
)

// defaultCriticalTerms is the curated startup set. The list stays small on
// purpose: every term here bypasses the classifiers entirely.
var defaultCriticalTerms = map[string]Category{
	"kill yourself":          CategorySelfHarm,
	"go kill yourself":       CategorySelfHarm,
	"better off dead":        CategorySelfHarm,
	"i will kill you":        CategoryThreatViolence,
	"i am going to kill you": CategoryThreatViolence,
	"i know where you live":  CategoryDoxxing,
	"post your address":      CategoryDoxxing,
	"leak your photos":       CategoryCoercion,
	"do it or i will tell":   CategoryCoercion,
}

// CriticalFilter holds the admin-curated set of terms that must always score
// maximum severity regardless of classifier judgment. Matching runs against
// the normalized text and a whitespace-stripped projection of it, so spacing
// inserted between letters does not evade the check.
type CriticalFilter struct {
	mu    sync.RWMutex
	terms map[string]Category
}

// NewCriticalFilter creates a filter seeded with the built-in terms plus any
// extra terms from configuration. Extra terms default to the violence-threat
// category; Add sets an explicit one.
func NewCriticalFilter(extraTerms []string) *CriticalFilter {
	terms := make(map[string]Category, len(defaultCriticalTerms)+len(extraTerms))
	for t, cat := range defaultCriticalTerms {
		terms[t] = cat
	}
	f := &CriticalFilter{terms: terms}
	for _, t := range extraTerms {
		f.Add(t, CategoryThreatViolence)
	}
	return f
}

// Check scans the normalized text for critical terms. On a hit it returns the
// matched term and its category; the pipeline must then skip every downstream
// layer.
func (f *CriticalFilter) Check(normalized string) (bool, string, Category) {
	if normalized == "" {
		return false, "", ""
	}

	squeezed := strings.ReplaceAll(normalized, " ", "")

	f.mu.RLock()
	defer f.mu.RUnlock()
	for term, cat := range f.terms {
		if strings.Contains(normalized, term) {
			return true, term, cat
		}
		if strings.Contains(squeezed, strings.ReplaceAll(term, " ", "")) {
			return true, term, cat
		}
	}
	return false, "", ""
}

// Add inserts a term into the set
func (f *CriticalFilter) Add(term string, category Category) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terms[term] = category
}

// Remove deletes a term from the set
func (f *CriticalFilter) Remove(term string) {
	term = strings.ToLower(strings.TrimSpace(term))
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.terms, term)
}

// Terms returns a copy of the current term set
func (f *CriticalFilter) Terms() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.terms))
	for t := range f.terms {
		out = append(out, t)
	}
	return out
}
