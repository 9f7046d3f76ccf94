// Package grader decides whether a raw answer is correct for a question.
package grader

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/textnorm"
)

const (
	defaultLongAnswerChars = 10
	defaultTokenRatio      = 0.7
)

// Config tunes partial credit for long text answers.
type Config struct {
	LongAnswerChars int     // normalized answers longer than this allow partial credit (default 10)
	TokenRatio      float64 // share of expected tokens the answer must contain (default 0.7)
}

// Grader grades raw answers. It holds no state beyond its config.
type Grader struct {
	longAnswerChars int
	tokenRatio      float64
}

// Result is the verdict for one answer.
type Result struct {
	Correct bool
	// Partial is set when a long text answer was accepted on token coverage
	// rather than exact equality.
	Partial  bool
	Given    string
	Expected []string
}

// New creates a grader, filling zero fields with defaults.
func New(cfg Config) *Grader {
	long := cfg.LongAnswerChars
	if long == 0 {
		long = defaultLongAnswerChars
	}
	ratio := cfg.TokenRatio
	if ratio == 0 {
		ratio = defaultTokenRatio
	}
	return &Grader{longAnswerChars: long, tokenRatio: ratio}
}

// Normalize is the canonical comparison form of an answer.
func Normalize(s string) string {
	return textnorm.Normalize(s)
}

// Grade checks raw against q. An *InvalidAnswerFormatError means the input
// could not be interpreted and nothing should be recorded.
func (g *Grader) Grade(q deck.Question, raw string) (Result, error) {
	res := Result{Given: raw, Expected: q.CorrectAnswers}
	if Normalize(raw) == "" {
		return res, &InvalidAnswerFormatError{QuestionID: q.ID, Reason: "empty answer"}
	}

	switch q.Kind {
	case deck.Text:
		res.Correct, res.Partial = g.gradeText(q, raw)
		return res, nil
	case deck.SingleChoice:
		i, ok := textnorm.ResolveOption(q.Options, raw)
		if !ok {
			return res, &InvalidAnswerFormatError{QuestionID: q.ID, Token: raw, Reason: "matches no option"}
		}
		res.Correct = len(q.CorrectAnswers) == 1 && Normalize(q.Options[i]) == Normalize(q.CorrectAnswers[0])
		return res, nil
	case deck.MultipleChoice:
		given, err := resolveSet(q, raw)
		if err != nil {
			return res, err
		}
		res.Correct = slices.Equal(given, normalizedSet(q.CorrectAnswers))
		return res, nil
	}
	return res, fmt.Errorf("grader: unsupported question kind %v", q.Kind)
}

func (g *Grader) gradeText(q deck.Question, raw string) (correct, partial bool) {
	if len(q.CorrectAnswers) == 0 {
		return false, false
	}
	given := Normalize(raw)
	expected := Normalize(q.CorrectAnswers[0])
	if given == expected {
		return true, false
	}
	if utf8.RuneCountInString(expected) <= g.longAnswerChars {
		return false, false
	}

	want := distinct(textnorm.Tokens(expected))
	have := make(map[string]bool)
	for _, t := range textnorm.Tokens(given) {
		have[t] = true
	}
	hits := 0
	for _, t := range want {
		if have[t] {
			hits++
		}
	}
	if float64(hits)/float64(len(want)) >= g.tokenRatio {
		return true, true
	}
	return false, false
}

// resolveSet maps every token of a multiple-choice answer onto an option and
// returns the sorted, de-duplicated normalized option texts.
func resolveSet(q deck.Question, raw string) ([]string, error) {
	var out []string
	for _, tok := range textnorm.ChoiceTokens(raw) {
		i, ok := textnorm.ResolveOption(q.Options, tok)
		if !ok {
			return nil, &InvalidAnswerFormatError{QuestionID: q.ID, Token: tok, Reason: "matches no option"}
		}
		out = append(out, Normalize(q.Options[i]))
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func normalizedSet(answers []string) []string {
	out := make([]string, 0, len(answers))
	for _, a := range answers {
		out = append(out, Normalize(a))
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func distinct(tokens []string) []string {
	slices.Sort(tokens)
	return slices.Compact(tokens)
}
