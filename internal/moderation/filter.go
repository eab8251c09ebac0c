// Package moderation provides content filtering for relayed chat messages.
// It screens text for prohibited terms and spam patterns before the session
// manager forwards it to the partner.
package moderation

import (
	"strings"
	"unicode"
)

// defaultTerms is the built-in blocklist. Terms containing spaces are matched
// as whole-token phrases; single words are matched per token, including
// leetspeak variants.
var defaultTerms = []string{
	// slurs
	"nigger",
	"faggot",
	"kike",
	"spic",
	"tranny",

	// self-harm incitement
	"kill yourself",
	"go die",
	"kys",

	// sexual exploitation
	"child porn",
	"cp trade",
	"send nudes",

	// extremism and threats
	"heil hitler",
	"bomb threat",
	"school shooting",

	// scams
	"free bitcoin",
	"crypto giveaway",
	"cash app flip",
}

// FilterResult is the outcome of a moderation check.
type FilterResult struct {
	Blocked bool
	Reason  string // "blocked_keyword" or "spam_pattern"
	Term    string // the matched term or pattern name
}

// phrase is a multi-word blocklist entry, kept both tokenized for matching
// and verbatim for reporting.
type phrase struct {
	term   string
	tokens []string
}

// Filter screens message text against a term blocklist and the spam
// patterns. Immutable after construction, safe for concurrent use.
type Filter struct {
	words   map[string]struct{}
	phrases []phrase
}

// NewFilter returns a Filter loaded with the default blocklist.
func NewFilter() *Filter {
	return NewFilterWithTerms(defaultTerms)
}

// NewFilterWithTerms builds a Filter from an explicit term list. Empty and
// whitespace-only terms are dropped; terms with spaces become phrases.
func NewFilterWithTerms(terms []string) *Filter {
	f := &Filter{words: make(map[string]struct{})}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		if strings.ContainsRune(term, ' ') {
			f.phrases = append(f.phrases, phrase{term: term, tokens: strings.Fields(term)})
		} else {
			f.words[term] = struct{}{}
		}
	}
	return f
}

// Check screens text and reports the first violation found. Keyword matches
// take precedence over spam patterns.
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)
	plain := tokenizePlain(lower)

	// Single-word terms: match whole tokens, never substrings, so "class"
	// and "assess" stay clean. The leet pass catches disguised spellings.
	for _, tok := range plain {
		if _, ok := f.words[tok]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: tok}
		}
	}
	for _, tok := range tokenizeLeet(lower) {
		norm := normalizeLeet(tok)
		if _, ok := f.words[norm]; ok {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: norm}
		}
	}

	for _, p := range f.phrases {
		if containsTokenSequence(plain, p.tokens) {
			return FilterResult{Blocked: true, Reason: "blocked_keyword", Term: p.term}
		}
	}

	return f.checkSpamPatterns(text)
}

// CheckInterests returns the subset of interest tags that pass the filter,
// preserving order.
func (f *Filter) CheckInterests(interests []string) []string {
	var clean []string
	for _, tag := range interests {
		if !f.Check(tag).Blocked {
			clean = append(clean, tag)
		}
	}
	return clean
}

// containsTokenSequence reports whether needle appears as a run of
// consecutive tokens in haystack.
func containsTokenSequence(haystack, needle []string) bool {
	if len(needle) == 0 || len(haystack) < len(needle) {
		return false
	}
outer:
	for i := 0; i <= len(haystack)-len(needle); i++ {
		for j, tok := range needle {
			if haystack[i+j] != tok {
				continue outer
			}
		}
		return true
	}
	return false
}

// tokenizePlain splits text into lowercase word tokens on any non-alphanumeric
// rune, so punctuation never hides or fabricates a match.
func tokenizePlain(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// tokenizeLeet splits on whitespace only, keeping symbol-laden tokens like
// "b@dw0rd" intact for leet normalization.
func tokenizeLeet(text string) []string {
	return strings.Fields(text)
}

// leetMap translates common character substitutions back to letters.
var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'@': 'a',
	'$': 's',
	'!': 'i',
}

// normalizeLeet lowercases text and reverses leetspeak substitutions.
func normalizeLeet(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if mapped, ok := leetMap[r]; ok {
			b.WriteRune(mapped)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
