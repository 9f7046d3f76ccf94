package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for unknown decks or questions.
	ErrNotFound = errors.New("store: not found")
	// ErrStoreCorrupt marks persisted data that could not be read.
	ErrStoreCorrupt = errors.New("store: corrupt")
)

// StoreCorruptionError describes data lost while recovering from an
// unreadable store file or record.
type StoreCorruptionError struct {
	Path       string
	MovedTo    string // where the unreadable file was moved, if any
	DeckID     string
	QuestionID string
	Err        error
}

func (e *StoreCorruptionError) Error() string {
	switch {
	case e.QuestionID != "":
		return fmt.Sprintf("store: corrupt review state %s/%s reset: %v", e.DeckID, e.QuestionID, e.Err)
	case e.MovedTo != "":
		return fmt.Sprintf("store: corrupt store %s moved to %s: %v", e.Path, e.MovedTo, e.Err)
	default:
		return fmt.Sprintf("store: corrupt store %s: %v", e.Path, e.Err)
	}
}

func (e *StoreCorruptionError) Is(target error) bool {
	return target == ErrStoreCorrupt
}

func (e *StoreCorruptionError) Unwrap() error {
	return e.Err
}
