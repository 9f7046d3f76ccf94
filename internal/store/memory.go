package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/srs"
)

type questionKey struct {
	deckID     string
	questionID string
}

type memQuestion struct {
	text     string
	category string
	position int
	active   bool
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	factory   StateFactory
	questions map[questionKey]*memQuestion
	states    map[questionKey]srs.ReviewState
	attempts  []Attempt
	mu        sync.RWMutex
}

// NewMemoryStore creates a new in-memory review store. A nil factory uses
// default scheduler settings.
func NewMemoryStore(f StateFactory) *MemoryStore {
	return &MemoryStore{
		factory:   defaultFactory(f),
		questions: make(map[questionKey]*memQuestion),
		states:    make(map[questionKey]srs.ReviewState),
	}
}

func (s *MemoryStore) SyncDeck(_ context.Context, d *deck.Deck, now time.Time) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SyncResult
	seen := make(map[questionKey]bool, len(d.Questions))
	for i, q := range d.Questions {
		k := questionKey{d.ID, q.ID}
		seen[k] = true
		if mq, ok := s.questions[k]; ok {
			mq.text, mq.category, mq.position, mq.active = q.Text, q.Category, i, true
		} else {
			s.questions[k] = &memQuestion{text: q.Text, category: q.Category, position: i, active: true}
		}
		if _, ok := s.states[k]; ok {
			res.Kept++
			continue
		}
		s.states[k] = s.factory.NewState(d.ID, q.ID, now)
		res.Added++
	}
	for k, mq := range s.questions {
		if k.deckID == d.ID && mq.active && !seen[k] {
			mq.active = false
			res.Removed++
		}
	}
	return res, nil
}

func (s *MemoryStore) State(_ context.Context, deckID, questionID string) (srs.ReviewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[questionKey{deckID, questionID}]
	if !ok {
		return srs.ReviewState{}, fmt.Errorf("%w: question %s/%s", ErrNotFound, deckID, questionID)
	}
	return st, nil
}

func (s *MemoryStore) States(_ context.Context, deckID string) ([]srs.ReviewState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.activeKeys(Scope{DeckID: deckID})
	out := make([]srs.ReviewState, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.states[k])
	}
	return out, nil
}

func (s *MemoryStore) SaveReview(_ context.Context, st srs.ReviewState, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := questionKey{st.DeckID, st.QuestionID}
	if _, ok := s.states[k]; !ok {
		return fmt.Errorf("%w: question %s/%s", ErrNotFound, st.DeckID, st.QuestionID)
	}
	a.DeckID, a.QuestionID = st.DeckID, st.QuestionID
	s.states[k] = st
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *MemoryStore) AppendAttempt(_ context.Context, a Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.questions[questionKey{a.DeckID, a.QuestionID}]; !ok {
		return fmt.Errorf("%w: question %s/%s", ErrNotFound, a.DeckID, a.QuestionID)
	}
	s.attempts = append(s.attempts, a)
	return nil
}

func (s *MemoryStore) Summary(_ context.Context, scope Scope) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum Summary
	var easiness float64
	for _, k := range s.activeKeys(scope) {
		st := s.states[k]
		sum.Questions++
		easiness += st.EasinessFactor
		if st.RepetitionCount > 0 {
			sum.Learned++
		}
	}
	if sum.Questions > 0 {
		sum.AvgEasiness = easiness / float64(sum.Questions)
	}

	var total time.Duration
	for _, a := range s.attempts {
		if !s.inScope(questionKey{a.DeckID, a.QuestionID}, scope) {
			continue
		}
		sum.Attempts++
		total += a.ResponseTime
		if a.Correct {
			sum.CorrectAttempts++
		}
	}
	sum.Accuracy = accuracy(sum.CorrectAttempts, sum.Attempts)
	if sum.Attempts > 0 {
		sum.AvgResponseTime = total / time.Duration(sum.Attempts)
	}
	return sum, nil
}

func (s *MemoryStore) ProblemQuestions(_ context.Context, scope Scope, minAttempts, limit int) ([]ProblemQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byKey := make(map[questionKey]*ProblemQuestion)
	for _, a := range s.attempts {
		k := questionKey{a.DeckID, a.QuestionID}
		if !s.inScope(k, scope) || !s.questions[k].active {
			continue
		}
		pq, ok := byKey[k]
		if !ok {
			mq := s.questions[k]
			pq = &ProblemQuestion{DeckID: k.deckID, QuestionID: k.questionID, Text: mq.text, Category: mq.category}
			byKey[k] = pq
		}
		pq.Attempts++
		if a.Correct {
			pq.Correct++
		}
	}

	var out []ProblemQuestion
	for _, pq := range byKey {
		if pq.Attempts < minAttempts {
			continue
		}
		pq.Accuracy = accuracy(pq.Correct, pq.Attempts)
		out = append(out, *pq)
	}
	slices.SortFunc(out, compareProblems)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Attempts(_ context.Context, scope Scope) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Attempt
	for _, a := range s.attempts {
		if s.inScope(questionKey{a.DeckID, a.QuestionID}, scope) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.questions)
	clear(s.states)
	s.attempts = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// activeKeys returns current questions in scope ordered by deck and file
// position. Callers hold the lock.
func (s *MemoryStore) activeKeys(scope Scope) []questionKey {
	var keys []questionKey
	for k, mq := range s.questions {
		if mq.active && s.inScope(k, scope) {
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, func(a, b questionKey) int {
		return cmp.Or(
			cmp.Compare(a.deckID, b.deckID),
			cmp.Compare(s.questions[a].position, s.questions[b].position),
		)
	})
	return keys
}

func (s *MemoryStore) inScope(k questionKey, scope Scope) bool {
	mq, ok := s.questions[k]
	if !ok {
		return false
	}
	if scope.DeckID != "" && k.deckID != scope.DeckID {
		return false
	}
	return scope.Category == "" || mq.category == scope.Category
}

func compareProblems(a, b ProblemQuestion) int {
	return cmp.Or(
		cmp.Compare(a.Accuracy, b.Accuracy),
		cmp.Compare(b.Attempts, a.Attempts),
		cmp.Compare(a.DeckID, b.DeckID),
		cmp.Compare(a.QuestionID, b.QuestionID),
	)
}
