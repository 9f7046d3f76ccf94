package study

import "errors"

var (
	// ErrSessionEnded is returned when a finished session is used again.
	ErrSessionEnded = errors.New("study: session ended")
	// ErrNoCurrentQuestion is returned by SubmitAnswer before NextQuestion.
	ErrNoCurrentQuestion = errors.New("study: no current question")
	// ErrUnknownDeck is returned for deck IDs that were never loaded.
	ErrUnknownDeck = errors.New("study: unknown deck")
	// ErrUnknownMode is returned for modes other than review and random.
	ErrUnknownMode = errors.New("study: unknown mode")
)
