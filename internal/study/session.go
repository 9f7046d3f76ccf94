package study

import (
	"fmt"
	"time"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/grader"
	"github.com/p-n-ai/pai-recall/internal/srs"
	"github.com/p-n-ai/pai-recall/internal/store"
)

// Mode selects how a session picks questions.
type Mode string

const (
	// ModeReview asks due questions and updates their schedule.
	ModeReview Mode = store.ModeReview
	// ModeRandom samples questions and only logs attempts.
	ModeRandom Mode = store.ModeRandom
)

// ParseMode maps "review" or "random" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeReview, ModeRandom:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

type item struct {
	deckID   string
	question deck.Question
}

func (it item) key() string {
	return it.deckID + "\x00" + it.question.ID
}

// Session is one pass over a queue of questions. It is not safe for
// concurrent use.
type Session struct {
	ID        string
	DeckID    string // empty for all decks
	Mode      Mode
	StartedAt time.Time

	queue    []item
	current  *item
	shownAt  time.Time
	requeued map[string]bool

	asked         int
	correct       int
	totalResponse time.Duration
	endedAt       time.Time
	ended         bool
}

// Remaining returns the number of questions still queued, including the
// current one.
func (s *Session) Remaining() int {
	n := len(s.queue)
	if s.current != nil {
		n++
	}
	return n
}

// CurrentDeckID returns the deck of the question being asked, if any.
func (s *Session) CurrentDeckID() string {
	if s.current == nil {
		return ""
	}
	return s.current.deckID
}

// GradeResult is the outcome of one submitted answer.
type GradeResult struct {
	grader.Result
	// State is the updated schedule. Nil in random mode.
	State *srs.ReviewState
	// Requeued reports that the question comes back later in this session.
	Requeued bool
}

// Stats summarizes a finished session.
type Stats struct {
	Asked           int
	Correct         int
	Accuracy        float64
	Elapsed         time.Duration
	AvgResponseTime time.Duration
}

func (s *Session) stats() Stats {
	st := Stats{
		Asked:   s.asked,
		Correct: s.correct,
		Elapsed: s.endedAt.Sub(s.StartedAt),
	}
	if s.asked > 0 {
		st.Accuracy = float64(s.correct) / float64(s.asked)
		st.AvgResponseTime = s.totalResponse / time.Duration(s.asked)
	}
	return st
}
