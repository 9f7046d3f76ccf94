// Package srs implements an SM-2 style spaced-repetition scheduler.
//
// A ReviewState starts New (LastReviewed nil) and moves to Reviewed on its
// first graded attempt. Correct answers grow the interval 1, 6, then
// previous × easiness; incorrect answers send it back to tomorrow.
package srs

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// ErrInvalidConfig is returned by NewScheduler for inconsistent settings.
var ErrInvalidConfig = errors.New("srs: invalid config")

const (
	defaultEasiness        = 2.5
	defaultMinEasiness     = 1.3
	defaultMaxEasiness     = 3.0
	defaultEasinessBonus   = 0.1
	defaultEasinessPenalty = 0.2
	defaultMinGrowthDays   = 1
	defaultMaxIntervalDays = 36500

	firstInterval  = 1
	secondInterval = 6
)

// Config holds scheduler parameters. Zero fields take defaults.
type Config struct {
	DefaultEasiness float64 // easiness of a new question (default 2.5)
	MinEasiness     float64 // floor (default 1.3)
	MaxEasiness     float64 // ceiling (default 3.0)
	EasinessBonus   float64 // added on a correct answer (default 0.1)
	EasinessPenalty float64 // subtracted on an incorrect answer (default 0.2)
	MinGrowthDays   int     // minimum interval growth from the third repetition (default 1)
	MaxIntervalDays int     // interval cap (default 36500)
	// Location defines calendar days for due dates (default time.Local).
	Location *time.Location
}

// ReviewState is the scheduling state of one question.
type ReviewState struct {
	DeckID          string     `json:"deck_id"`
	QuestionID      string     `json:"question_id"`
	IntervalDays    int        `json:"interval_days"`
	EasinessFactor  float64    `json:"easiness_factor"`
	DueDate         time.Time  `json:"due_date"` // civil date at UTC midnight
	RepetitionCount int        `json:"repetition_count"`
	LastReviewed    *time.Time `json:"last_reviewed,omitempty"`
}

// IsNew reports whether the question has never been graded.
func (s ReviewState) IsNew() bool {
	return s.LastReviewed == nil
}

// Scheduler computes review transitions. It is stateless and safe to share.
type Scheduler struct {
	cfg Config
}

// NewScheduler validates cfg and fills defaults.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.DefaultEasiness == 0 {
		cfg.DefaultEasiness = defaultEasiness
	}
	if cfg.MinEasiness == 0 {
		cfg.MinEasiness = defaultMinEasiness
	}
	if cfg.MaxEasiness == 0 {
		cfg.MaxEasiness = defaultMaxEasiness
	}
	if cfg.EasinessBonus == 0 {
		cfg.EasinessBonus = defaultEasinessBonus
	}
	if cfg.EasinessPenalty == 0 {
		cfg.EasinessPenalty = defaultEasinessPenalty
	}
	if cfg.MinGrowthDays == 0 {
		cfg.MinGrowthDays = defaultMinGrowthDays
	}
	if cfg.MaxIntervalDays == 0 {
		cfg.MaxIntervalDays = defaultMaxIntervalDays
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	switch {
	case cfg.MinEasiness < 1:
		return nil, fmt.Errorf("%w: easiness floor %.2f is below 1", ErrInvalidConfig, cfg.MinEasiness)
	case cfg.MinEasiness > cfg.MaxEasiness:
		return nil, fmt.Errorf("%w: easiness floor %.2f above ceiling %.2f", ErrInvalidConfig, cfg.MinEasiness, cfg.MaxEasiness)
	case cfg.DefaultEasiness < cfg.MinEasiness || cfg.DefaultEasiness > cfg.MaxEasiness:
		return nil, fmt.Errorf("%w: default easiness %.2f outside [%.2f, %.2f]", ErrInvalidConfig, cfg.DefaultEasiness, cfg.MinEasiness, cfg.MaxEasiness)
	case cfg.EasinessBonus < 0 || cfg.EasinessPenalty < 0:
		return nil, fmt.Errorf("%w: easiness adjustments must not be negative", ErrInvalidConfig)
	case cfg.MinGrowthDays < 1:
		return nil, fmt.Errorf("%w: minimum growth must be at least 1 day", ErrInvalidConfig)
	case cfg.MaxIntervalDays < secondInterval:
		return nil, fmt.Errorf("%w: interval cap %d below %d days", ErrInvalidConfig, cfg.MaxIntervalDays, secondInterval)
	}
	return &Scheduler{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (s *Scheduler) Config() Config {
	return s.cfg
}

// NewState returns the state of a question first seen at now. It is due
// immediately.
func (s *Scheduler) NewState(deckID, questionID string, now time.Time) ReviewState {
	return ReviewState{
		DeckID:         deckID,
		QuestionID:     questionID,
		EasinessFactor: s.cfg.DefaultEasiness,
		DueDate:        s.Today(now),
	}
}

// Review applies one graded attempt and returns the next state. The input
// is not modified.
func (s *Scheduler) Review(st ReviewState, correct bool, now time.Time) ReviewState {
	next := st
	reviewed := now
	next.LastReviewed = &reviewed

	ef := st.EasinessFactor
	if ef == 0 {
		ef = s.cfg.DefaultEasiness
	}

	switch {
	case correct:
		next.RepetitionCount = st.RepetitionCount + 1
		switch next.RepetitionCount {
		case 1:
			next.IntervalDays = firstInterval
		case 2:
			next.IntervalDays = secondInterval
		default:
			next.IntervalDays = s.grow(st.IntervalDays, ef)
		}
		next.EasinessFactor = s.clampEasiness(ef + s.cfg.EasinessBonus)
	case st.IsNew():
		// Retry today.
		next.RepetitionCount = 0
		next.IntervalDays = 0
		next.EasinessFactor = s.clampEasiness(ef - s.cfg.EasinessPenalty)
	default:
		next.RepetitionCount = 0
		next.IntervalDays = firstInterval
		next.EasinessFactor = s.clampEasiness(ef - s.cfg.EasinessPenalty)
	}

	next.DueDate = s.Today(now).AddDate(0, 0, next.IntervalDays)
	return next
}

// grow computes the interval from the third repetition on using the
// easiness held before the current review.
func (s *Scheduler) grow(prev int, ef float64) int {
	n := int(math.Round(float64(prev) * ef))
	n = max(n, prev+s.cfg.MinGrowthDays)
	return min(n, s.cfg.MaxIntervalDays)
}

func (s *Scheduler) clampEasiness(ef float64) float64 {
	// Round away float drift from repeated ±0.1 steps.
	ef = math.Round(ef*1000) / 1000
	return min(max(ef, s.cfg.MinEasiness), s.cfg.MaxEasiness)
}

// Today returns the civil date of now in the scheduler's location as UTC
// midnight.
func (s *Scheduler) Today(now time.Time) time.Time {
	y, m, d := now.In(s.cfg.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsDue reports whether st should be reviewed on the day of now.
func (s *Scheduler) IsDue(st ReviewState, now time.Time) bool {
	return st.IsNew() || !st.DueDate.After(s.Today(now))
}

// Due returns the due states ordered by due date, then repetition count
// (struggling items first), then deck and question id.
func (s *Scheduler) Due(states []ReviewState, now time.Time) []ReviewState {
	var due []ReviewState
	for _, st := range states {
		if s.IsDue(st, now) {
			due = append(due, st)
		}
	}
	slices.SortFunc(due, compareDue)
	return due
}

func compareDue(a, b ReviewState) int {
	return cmp.Or(
		a.DueDate.Compare(b.DueDate),
		cmp.Compare(a.RepetitionCount, b.RepetitionCount),
		cmp.Compare(a.DeckID, b.DeckID),
		cmp.Compare(a.QuestionID, b.QuestionID),
	)
}
