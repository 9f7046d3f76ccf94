// Package textnorm canonicalizes answer and option text for comparison.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFC composition, trims, collapses internal whitespace
// runs to single spaces and case-folds without regard to locale.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(s)
}

// Tokens splits the normalized form of s on whitespace.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// LetterIndex maps a single option label ("a", "B") to its zero-based position.
func LetterIndex(s string) (int, bool) {
	s = Normalize(s)
	if len(s) != 1 || s[0] < 'a' || s[0] > 'z' {
		return 0, false
	}
	return int(s[0] - 'a'), true
}

// Letter returns the option label for a zero-based position.
func Letter(i int) string {
	if i < 0 || i >= 26 {
		return "?"
	}
	return string(rune('A' + i))
}

// MatchOption finds the option whose normalized text equals token.
func MatchOption(options []string, token string) (int, bool) {
	t := Normalize(token)
	if t == "" {
		return 0, false
	}
	for i, o := range options {
		if Normalize(o) == t {
			return i, true
		}
	}
	return 0, false
}

// ResolveOption resolves token as a positional letter first, then as option text.
func ResolveOption(options []string, token string) (int, bool) {
	if i, ok := LetterIndex(token); ok && i < len(options) {
		return i, true
	}
	return MatchOption(options, token)
}

// ChoiceTokens splits a choice answer on commas. A single part made only of
// space-separated letters ("A C") is split into those letters.
func ChoiceTokens(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) != 1 {
		return parts
	}
	fields := strings.Fields(parts[0])
	if len(fields) < 2 {
		return parts
	}
	for _, f := range fields {
		if _, ok := LetterIndex(f); !ok {
			return parts
		}
	}
	return fields
}
