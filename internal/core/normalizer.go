package core

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// confusableRunes maps evasion spellings (leetspeak, lookalike symbols) to the
// canonical letter. A rune is only mapped inside a word, so plain numbers and
// trailing punctuation survive normalization.
var confusableRunes = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'|': 'l',
}

// zeroWidthRunes are invisible characters inserted to break pattern matching
var zeroWidthRunes = map[rune]bool{
	'\u200b': true, // zero width space
	'\u200c': true, // zero width non-joiner
	'\u200d': true, // zero width joiner
	'\u2060': true, // word joiner
	'\ufeff': true, // BOM
}

// defaultPhoneticAliases maps common latin-alphabet spellings of slurs and
// threats to their canonical form
var defaultPhoneticAliases = map[string]string{
	"kys":  "kill yourself",
	"stfu": "shut up",
	"gtfo": "get out",
	"hoe":  "whore",
}

// spacedWordPattern matches a word whose letters were separated with
// punctuation, e.g. "i.d.i.o.t" or "l-o-s-e-r"
var spacedWordPattern = regexp.MustCompile(`\b[a-z](?:[.\-_*+~/\\]+[a-z]){2,}\b`)

// diacriticStripper removes combining marks after canonical decomposition
var diacriticStripper = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalizer canonicalizes message text so that evasion spellings collapse to
// the same form the lexicon patterns match against. Normalize is idempotent.
type Normalizer struct {
	aliases map[string]string
}

// NewNormalizer creates a normalizer with the built-in alias table merged with
// any extra phonetic aliases from configuration
func NewNormalizer(extraAliases map[string]string) *Normalizer {
	aliases := make(map[string]string, len(defaultPhoneticAliases)+len(extraAliases))
	for k, v := range defaultPhoneticAliases {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	for k, v := range extraAliases {
		aliases[strings.ToLower(k)] = strings.ToLower(v)
	}
	return &Normalizer{aliases: aliases}
}

// Normalize returns the canonical form of the text. It never panics; invalid
// UTF-8 sequences are dropped and empty input yields an empty string.
func (n *Normalizer) Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = sanitizeUTF8(text)

	if stripped, _, err := transform.String(diacriticStripper, text); err == nil {
		text = stripped
	}
	text = strings.ToLower(text)
	text = dropZeroWidth(text)
	text = mapConfusables(text)
	text = joinSpacedLetters(text)
	text = spacedWordPattern.ReplaceAllStringFunc(text, stripSeparators)
	text = collapseRepeats(text)
	text = n.applyAliases(text)

	return strings.Join(strings.Fields(text), " ")
}

// sanitizeUTF8 drops invalid byte sequences
func sanitizeUTF8(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	result := make([]rune, 0, len(text))
	for i, r := range text {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(text[i:]); size == 1 {
				continue
			}
		}
		result = append(result, r)
	}
	return string(result)
}

func dropZeroWidth(text string) string {
	return strings.Map(func(r rune) rune {
		if zeroWidthRunes[r] {
			return -1
		}
		return r
	}, text)
}

// mapConfusables replaces lookalike runes sitting inside a word. The whole
// run of confusables maps at once, and only when a letter follows it and a
// letter or word boundary precedes it. Trailing runs never map, so plain
// punctuation emphasis ("trash!!!") survives and the result is stable under
// re-normalization.
func mapConfusables(text string) string {
	in := []rune(text)
	out := make([]rune, len(in))
	copy(out, in)

	i := 0
	for i < len(in) {
		if _, ok := confusableRunes[in[i]]; !ok {
			i++
			continue
		}
		j := i
		for j < len(in) {
			if _, ok := confusableRunes[in[j]]; !ok {
				break
			}
			j++
		}
		letterAfter := j < len(in) && unicode.IsLetter(in[j])
		boundaryBefore := i == 0 || unicode.IsLetter(in[i-1]) || unicode.IsSpace(in[i-1])
		if letterAfter && boundaryBefore {
			for k := i; k < j; k++ {
				out[k] = confusableRunes[in[k]]
			}
		}
		i = j
	}
	return string(out)
}

// collapseRepeats shortens any run of three or more identical letters to two
func collapseRepeats(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	var prev rune
	run := 0
	for _, r := range text {
		if r == prev && unicode.IsLetter(r) {
			run++
		} else {
			prev = r
			run = 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// joinSpacedLetters collapses runs of three or more single-letter tokens,
// the "i d i o t" spacing evasion
func joinSpacedLetters(text string) string {
	tokens := strings.Fields(text)
	out := make([]string, 0, len(tokens))
	i := 0
	for i < len(tokens) {
		j := i
		for j < len(tokens) && isSingleLetter(tokens[j]) {
			j++
		}
		if j-i >= 3 {
			out = append(out, strings.Join(tokens[i:j], ""))
		} else {
			out = append(out, tokens[i:j]...)
		}
		if j == i {
			out = append(out, tokens[i])
			j++
		}
		i = j
	}
	return strings.Join(out, " ")
}

func isSingleLetter(token string) bool {
	r, size := utf8.DecodeRuneInString(token)
	return size == len(token) && unicode.IsLetter(r)
}

// stripSeparators removes the punctuation inside a spaced word match
func stripSeparators(match string) string {
	var b strings.Builder
	for _, r := range match {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// applyAliases rewrites whole-word phonetic aliases to their canonical form
func (n *Normalizer) applyAliases(text string) string {
	tokens := strings.Fields(text)
	changed := false
	for i, tok := range tokens {
		if canonical, ok := n.aliases[tok]; ok {
			tokens[i] = canonical
			changed = true
		}
	}
	if !changed {
		return text
	}
	return strings.Join(tokens, " ")
}
