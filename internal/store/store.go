// Package store persists review states and the attempt log.
package store

import (
	"context"
	"time"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/srs"
)

// Attempt modes.
const (
	ModeReview = "review"
	ModeRandom = "random"
)

// Attempt is one graded answer. The attempt log is append-only.
type Attempt struct {
	DeckID       string        `json:"deck_id"`
	QuestionID   string        `json:"question_id"`
	AnsweredAt   time.Time     `json:"answered_at"`
	GivenAnswer  string        `json:"given_answer"`
	Correct      bool          `json:"correct"`
	ResponseTime time.Duration `json:"response_time"`
	Mode         string        `json:"mode"`
}

// Scope narrows analytics. The zero value covers everything.
type Scope struct {
	DeckID   string
	Category string
}

// SyncResult counts what SyncDeck changed.
type SyncResult struct {
	Added   int // questions seen for the first time
	Kept    int // questions already known
	Removed int // questions no longer in the deck file
}

// Summary aggregates performance within a Scope.
type Summary struct {
	Questions       int
	Learned         int // questions with at least one successful repetition
	Attempts        int
	CorrectAttempts int
	Accuracy        float64 // CorrectAttempts / Attempts, 0 without attempts
	AvgResponseTime time.Duration
	AvgEasiness     float64
}

// ProblemQuestion is a question with a poor answer record.
type ProblemQuestion struct {
	DeckID     string
	QuestionID string
	Text       string
	Category   string
	Attempts   int
	Correct    int
	Accuracy   float64
}

// StateFactory creates the initial review state of a question. *srs.Scheduler
// implements it.
type StateFactory interface {
	NewState(deckID, questionID string, now time.Time) srs.ReviewState
}

// Store is the durable review store.
type Store interface {
	// SyncDeck records the deck's questions and creates review states for
	// new ones. Syncing an unchanged deck again changes nothing.
	SyncDeck(ctx context.Context, d *deck.Deck, now time.Time) (SyncResult, error)
	// State returns the review state of one question or ErrNotFound.
	State(ctx context.Context, deckID, questionID string) (srs.ReviewState, error)
	// States returns the states of all current questions of a deck, or of
	// every deck when deckID is empty.
	States(ctx context.Context, deckID string) ([]srs.ReviewState, error)
	// SaveReview writes the new state and its attempt in one transaction.
	SaveReview(ctx context.Context, st srs.ReviewState, a Attempt) error
	// AppendAttempt logs an attempt without touching scheduling state.
	AppendAttempt(ctx context.Context, a Attempt) error
	Summary(ctx context.Context, scope Scope) (Summary, error)
	// ProblemQuestions lists questions with at least minAttempts attempts,
	// lowest accuracy first, then most attempts.
	ProblemQuestions(ctx context.Context, scope Scope, minAttempts, limit int) ([]ProblemQuestion, error)
	Attempts(ctx context.Context, scope Scope) ([]Attempt, error)
	// Reset deletes all decks, states and attempts.
	Reset(ctx context.Context) error
	Close() error
}

func defaultFactory(f StateFactory) StateFactory {
	if f != nil {
		return f
	}
	s, err := srs.NewScheduler(srs.Config{})
	if err != nil {
		panic(err)
	}
	return s
}

func accuracy(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
