// Package repetition detects degenerate, looping recognizer output.
package repetition

import (
	"strings"
	"unicode"
)

const (
	minTextLength   = 10
	minWords        = 4
	fuzzySimilarity = 0.7
	dominantRatio   = 0.4
)

// stopWords never form a repetition pattern on their own.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {}, "to": {},
	"for": {}, "of": {}, "with": {}, "by": {}, "a": {}, "an": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"can": {}, "may": {}, "might": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {},
	"we": {}, "they": {}, "me": {}, "him": {}, "her": {}, "us": {}, "them": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "here": {}, "there": {},
	"where": {}, "when": {}, "why": {}, "how": {}, "what": {}, "who": {}, "which": {},
	"so": {}, "now": {}, "then": {}, "well": {}, "okay": {}, "ok": {}, "yeah": {},
	"yes": {}, "no": {}, "not": {}, "just": {}, "like": {}, "know": {}, "think": {},
	"see": {}, "look": {}, "get": {}, "go": {}, "come": {},
}

// IsRepetitive reports whether text is dominated by a repeating word pattern.
func IsRepetitive(text string) bool {
	if len(text) < minTextLength {
		return false
	}

	words := Tokenize(text)
	total := len(words)
	if total < minWords {
		return false
	}

	minLen := max(2, total/20)
	maxLen := min(8, total/3)
	threshold := repetitionThreshold(total)

	for n := minLen; n <= maxLen; n++ {
		for start := 0; start+n <= total; start++ {
			pattern := words[start : start+n]
			if allStopWords(pattern) {
				continue
			}

			exact, fuzzy := countMatches(words, pattern)
			ratio := (float64(exact) + 0.5*float64(fuzzy)) * float64(n) / float64(total)
			if exact >= threshold || (exact+fuzzy >= threshold && ratio > dominantRatio) {
				return true
			}
		}
	}
	return false
}

// Tokenize lowercases text, strips punctuation from every word, and drops words
// left empty.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsPunct(r) || unicode.IsSymbol(r) {
				return -1
			}
			return unicode.ToLower(r)
		}, field)
		if cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func repetitionThreshold(total int) int {
	switch {
	case total > 50:
		return max(5, total/15)
	case total > 20:
		return 4
	default:
		return 3
	}
}

// countMatches scans every window of len(pattern) words. Windows equal to the
// pattern count as exact; windows agreeing on at least 70% of positions count
// as fuzzy.
func countMatches(words, pattern []string) (exact int, fuzzy int) {
	n := len(pattern)
	for i := 0; i+n <= len(words); i++ {
		same := 0
		for j := 0; j < n; j++ {
			if words[i+j] == pattern[j] {
				same++
			}
		}
		switch {
		case same == n:
			exact++
		case float64(same) >= float64(n)*fuzzySimilarity:
			fuzzy++
		}
	}
	return exact, fuzzy
}

func allStopWords(pattern []string) bool {
	for _, w := range pattern {
		if _, ok := stopWords[w]; !ok {
			return false
		}
	}
	return true
}
