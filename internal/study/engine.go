// Package study runs review and practice sessions over loaded decks.
package study

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/grader"
	"github.com/p-n-ai/pai-recall/internal/report"
	"github.com/p-n-ai/pai-recall/internal/srs"
	"github.com/p-n-ai/pai-recall/internal/store"
)

const (
	defaultSessionLimit       = 20
	defaultProblemMinAttempts = 3
	defaultProblemLimit       = 10
)

// EngineConfig holds dependencies for the study engine.
type EngineConfig struct {
	Store              store.Store // required
	Scheduler          *srs.Scheduler
	Grader             *grader.Grader
	Loader             *deck.Loader
	Clock              func() time.Time
	Rand               *rand.Rand
	SessionLimit       int // questions per session (default 20)
	ProblemMinAttempts int // attempts before a question can be a problem (default 3)
	ProblemLimit       int // problem questions in analytics (default 10)
}

// Engine connects decks, the scheduler, the grader and the review store.
type Engine struct {
	store              store.Store
	scheduler          *srs.Scheduler
	grader             *grader.Grader
	loader             *deck.Loader
	clock              func() time.Time
	rand               *rand.Rand
	sessionLimit       int
	problemMinAttempts int
	problemLimit       int

	mu    sync.RWMutex
	decks map[string]*deck.Deck
}

// NewEngine creates a new study engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("study: store is required")
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		s, err := srs.NewScheduler(srs.Config{})
		if err != nil {
			return nil, err
		}
		scheduler = s
	}
	g := cfg.Grader
	if g == nil {
		g = grader.New(grader.Config{})
	}
	loader := cfg.Loader
	if loader == nil {
		loader = deck.NewLoader(deck.LoaderOptions{})
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	limit := cfg.SessionLimit
	if limit == 0 {
		limit = defaultSessionLimit
	}
	minAttempts := cfg.ProblemMinAttempts
	if minAttempts == 0 {
		minAttempts = defaultProblemMinAttempts
	}
	problemLimit := cfg.ProblemLimit
	if problemLimit == 0 {
		problemLimit = defaultProblemLimit
	}
	return &Engine{
		store:              cfg.Store,
		scheduler:          scheduler,
		grader:             g,
		loader:             loader,
		clock:              clock,
		rand:               r,
		sessionLimit:       limit,
		problemMinAttempts: minAttempts,
		problemLimit:       problemLimit,
		decks:              make(map[string]*deck.Deck),
	}, nil
}

// LoadDecks loads every deck under dir and syncs it into the store. Files
// that fail to parse are reported, not fatal.
func (e *Engine) LoadDecks(ctx context.Context, dir string) (deck.LoadReport, error) {
	rep, err := e.loader.LoadDir(ctx, dir)
	if err != nil {
		return rep, err
	}
	for _, d := range rep.Decks {
		if _, err := e.AddDeck(ctx, d); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// AddDeck makes d available for study and syncs its questions into the store.
func (e *Engine) AddDeck(ctx context.Context, d *deck.Deck) (store.SyncResult, error) {
	res, err := e.store.SyncDeck(ctx, d, e.clock())
	if err != nil {
		return res, fmt.Errorf("syncing deck %s: %w", d.ID, err)
	}

	e.mu.Lock()
	e.decks[d.ID] = d
	e.mu.Unlock()

	slog.Debug("deck synced",
		"deck_id", d.ID,
		"added", res.Added,
		"kept", res.Kept,
		"removed", res.Removed,
	)
	return res, nil
}

// Decks returns the loaded decks ordered by ID.
func (e *Engine) Decks() []*deck.Deck {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*deck.Deck, 0, len(e.decks))
	for _, d := range e.decks {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b *deck.Deck) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Deck returns a loaded deck or ErrUnknownDeck.
func (e *Engine) Deck(id string) (*deck.Deck, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.decks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDeck, id)
	}
	return d, nil
}

// StartSession builds a question queue. An empty deckID studies every
// loaded deck.
func (e *Engine) StartSession(ctx context.Context, deckID string, mode Mode) (*Session, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if deckID != "" {
		if _, err := e.Deck(deckID); err != nil {
			return nil, err
		}
	}

	now := e.clock()
	var queue []item
	var err error
	switch mode {
	case ModeReview:
		queue, err = e.reviewQueue(ctx, deckID, now)
	case ModeRandom:
		queue = e.randomQueue(deckID)
	}
	if err != nil {
		return nil, err
	}

	s := &Session{
		ID:        uuid.NewString(),
		DeckID:    deckID,
		Mode:      mode,
		StartedAt: now,
		queue:     queue,
		requeued:  make(map[string]bool),
	}
	slog.Info("study session started",
		"session_id", s.ID,
		"deck_id", deckID,
		"mode", mode,
		"questions", len(queue),
	)
	return s, nil
}

func (e *Engine) reviewQueue(ctx context.Context, deckID string, now time.Time) ([]item, error) {
	states, err := e.store.States(ctx, deckID)
	if err != nil {
		return nil, fmt.Errorf("loading review states: %w", err)
	}

	var queue []item
	for _, st := range e.scheduler.Due(states, now) {
		q, ok := e.question(st.DeckID, st.QuestionID)
		if !ok {
			// State of a deck not loaded in this run.
			continue
		}
		queue = append(queue, item{deckID: st.DeckID, question: q})
		if len(queue) == e.sessionLimit {
			break
		}
	}
	return queue, nil
}

func (e *Engine) randomQueue(deckID string) []item {
	var pool []item
	for _, d := range e.Decks() {
		if deckID != "" && d.ID != deckID {
			continue
		}
		for _, q := range d.Questions {
			pool = append(pool, item{deckID: d.ID, question: q})
		}
	}

	e.mu.Lock()
	e.rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	e.mu.Unlock()

	if len(pool) > e.sessionLimit {
		pool = pool[:e.sessionLimit]
	}
	return pool
}

func (e *Engine) question(deckID, questionID string) (deck.Question, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	d, ok := e.decks[deckID]
	if !ok {
		return deck.Question{}, false
	}
	return d.Question(questionID)
}

// NextQuestion returns the question to ask, or false once the queue is
// exhausted. Until it is answered, the same question is returned again.
func (e *Engine) NextQuestion(_ context.Context, s *Session) (deck.Question, bool, error) {
	if s.ended {
		return deck.Question{}, false, ErrSessionEnded
	}
	if s.current != nil {
		return s.current.question, true, nil
	}
	if len(s.queue) == 0 {
		return deck.Question{}, false, nil
	}

	next := s.queue[0]
	s.queue = s.queue[1:]
	s.current = &next
	s.shownAt = e.clock()
	return next.question, true, nil
}

// SubmitAnswer grades raw against the current question and records the
// attempt. An InvalidAnswerFormatError leaves the question current so it can
// be answered again.
func (e *Engine) SubmitAnswer(ctx context.Context, s *Session, raw string) (GradeResult, error) {
	if s.ended {
		return GradeResult{}, ErrSessionEnded
	}
	if s.current == nil {
		return GradeResult{}, ErrNoCurrentQuestion
	}
	cur := *s.current

	verdict, err := e.grader.Grade(cur.question, raw)
	if err != nil {
		return GradeResult{}, err
	}

	now := e.clock()
	attempt := store.Attempt{
		DeckID:       cur.deckID,
		QuestionID:   cur.question.ID,
		AnsweredAt:   now,
		GivenAnswer:  raw,
		Correct:      verdict.Correct,
		ResponseTime: max(now.Sub(s.shownAt), 0),
		Mode:         string(s.Mode),
	}

	result := GradeResult{Result: verdict}
	switch s.Mode {
	case ModeReview:
		st, err := e.store.State(ctx, cur.deckID, cur.question.ID)
		if err != nil {
			return GradeResult{}, fmt.Errorf("loading review state: %w", err)
		}
		next := e.scheduler.Review(st, verdict.Correct, now)
		if err := e.store.SaveReview(ctx, next, attempt); err != nil {
			return GradeResult{}, fmt.Errorf("saving review: %w", err)
		}
		result.State = &next
		if !verdict.Correct && e.scheduler.IsDue(next, now) && !s.requeued[cur.key()] {
			s.requeued[cur.key()] = true
			s.queue = append(s.queue, cur)
			result.Requeued = true
		}
	case ModeRandom:
		if err := e.store.AppendAttempt(ctx, attempt); err != nil {
			return GradeResult{}, fmt.Errorf("saving attempt: %w", err)
		}
	}

	s.current = nil
	s.asked++
	s.totalResponse += attempt.ResponseTime
	if verdict.Correct {
		s.correct++
	}
	return result, nil
}

// EndSession finishes s and returns its statistics. Ending twice returns the
// same statistics.
func (e *Engine) EndSession(s *Session) Stats {
	if !s.ended {
		s.ended = true
		s.endedAt = e.clock()
		s.current = nil
		st := s.stats()
		slog.Info("study session ended",
			"session_id", s.ID,
			"asked", st.Asked,
			"correct", st.Correct,
			"elapsed", st.Elapsed,
		)
		return st
	}
	return s.stats()
}

// Analytics is the performance overview for a scope.
type Analytics struct {
	Summary  store.Summary
	Due      int
	Problems []store.ProblemQuestion
}

// Analytics summarizes performance within scope.
func (e *Engine) Analytics(ctx context.Context, scope store.Scope) (Analytics, error) {
	sum, err := e.store.Summary(ctx, scope)
	if err != nil {
		return Analytics{}, fmt.Errorf("loading summary: %w", err)
	}
	problems, err := e.store.ProblemQuestions(ctx, scope, e.problemMinAttempts, e.problemLimit)
	if err != nil {
		return Analytics{}, fmt.Errorf("loading problem questions: %w", err)
	}
	rows, err := e.schedule(ctx, scope)
	if err != nil {
		return Analytics{}, err
	}

	a := Analytics{Summary: sum, Problems: problems}
	now := e.clock()
	for _, r := range rows {
		if e.scheduler.IsDue(r.State, now) {
			a.Due++
		}
	}
	return a, nil
}

// Report collects everything the workbook export needs for scope.
func (e *Engine) Report(ctx context.Context, scope store.Scope) (report.Report, error) {
	a, err := e.Analytics(ctx, scope)
	if err != nil {
		return report.Report{}, err
	}
	rows, err := e.schedule(ctx, scope)
	if err != nil {
		return report.Report{}, err
	}
	attempts, err := e.store.Attempts(ctx, scope)
	if err != nil {
		return report.Report{}, fmt.Errorf("loading attempts: %w", err)
	}
	return report.Report{
		GeneratedAt: e.clock(),
		Scope:       scope,
		Summary:     a.Summary,
		Due:         a.Due,
		Problems:    a.Problems,
		Schedule:    rows,
		Attempts:    attempts,
	}, nil
}

// schedule returns the review states in scope joined with their loaded
// questions, soonest due first.
func (e *Engine) schedule(ctx context.Context, scope store.Scope) ([]report.ScheduleRow, error) {
	states, err := e.store.States(ctx, scope.DeckID)
	if err != nil {
		return nil, fmt.Errorf("loading review states: %w", err)
	}

	var rows []report.ScheduleRow
	for _, st := range states {
		q, ok := e.question(st.DeckID, st.QuestionID)
		if !ok {
			continue
		}
		if scope.Category != "" && q.Category != scope.Category {
			continue
		}
		rows = append(rows, report.ScheduleRow{Text: q.Text, Category: q.Category, State: st})
	}
	slices.SortStableFunc(rows, func(a, b report.ScheduleRow) int {
		return a.State.DueDate.Compare(b.State.DueDate)
	})
	return rows, nil
}

// ResetProgress deletes all review history and recreates fresh states for
// the loaded decks.
func (e *Engine) ResetProgress(ctx context.Context) error {
	if err := e.store.Reset(ctx); err != nil {
		return fmt.Errorf("resetting progress: %w", err)
	}
	for _, d := range e.Decks() {
		if _, err := e.AddDeck(ctx, d); err != nil {
			return err
		}
	}
	slog.Info("study progress reset")
	return nil
}
