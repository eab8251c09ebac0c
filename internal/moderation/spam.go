package moderation

import (
	"regexp"
	"strings"
)

// Spam heuristics applied to relayed text after the keyword pass. Links and
// phone numbers are the main channel for luring a stranger off-platform, so
// both are refused outright.
var (
	// urlPattern catches explicit http(s) and www links plus bare domains
	// with a path. Bare domains require the trailing path segment so
	// version strings and decimal numbers stay clean.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf)/\S*)`)

	// phonePattern matches dashed, dotted, spaced and parenthesized phone
	// formats, anchored to whitespace so digit runs inside ordinary text
	// are not caught.
	phonePattern = regexp.MustCompile(`(?:^|\s)(\+?\d{1,3}[-.\s]?)?\(?\d{2,4}\)?[-.\s]?\d{3,4}[-.\s]?\d{3,4}(?:\s|$)`)
)

const (
	charFloodRun   = 5 // identical consecutive runes
	wordFloodCount = 3 // identical consecutive words
)

// checkSpamPatterns applies the spam heuristics in order and reports the
// first hit. Term carries the pattern name for logging.
func (f *Filter) checkSpamPatterns(text string) FilterResult {
	switch {
	case urlPattern.MatchString(text):
		return spamResult("url")
	case phonePattern.MatchString(text):
		return spamResult("phone")
	case hasRuneRun(text, charFloodRun):
		return spamResult("char_flood")
	case hasRepeatedWord(text, wordFloodCount):
		return spamResult("word_flood")
	}
	return FilterResult{}
}

func spamResult(name string) FilterResult {
	return FilterResult{Blocked: true, Reason: "spam_pattern", Term: name}
}

// hasRuneRun reports a run of n or more identical consecutive runes. RE2 has
// no backreferences, so flooding is detected with a linear scan instead.
func hasRuneRun(text string, n int) bool {
	run := 0
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run >= n {
			return true
		}
	}
	return false
}

// hasRepeatedWord reports the same word appearing n or more times in a row,
// case-insensitively.
func hasRepeatedWord(text string, n int) bool {
	run := 0
	prev := ""
	for _, w := range strings.Fields(text) {
		w = strings.ToLower(w)
		if w == prev {
			run++
		} else {
			run = 1
			prev = w
		}
		if run >= n {
			return true
		}
	}
	return false
}
