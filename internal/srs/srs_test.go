package srs_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/p-n-ai/pai-recall/internal/srs"
)

var t0 = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func newScheduler(t *testing.T) *srs.Scheduler {
	t.Helper()
	s, err := srs.NewScheduler(srs.Config{Location: time.UTC})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	return s
}

func day(n int) time.Time {
	return time.Date(2025, 3, 10+n, 0, 0, 0, 0, time.UTC)
}

func TestNewState(t *testing.T) {
	s := newScheduler(t)
	st := s.NewState("geo.json", "fr", t0)

	if !st.IsNew() {
		t.Error("new state should be New")
	}
	if st.EasinessFactor != 2.5 {
		t.Errorf("EasinessFactor = %v, want 2.5", st.EasinessFactor)
	}
	if !st.DueDate.Equal(day(0)) {
		t.Errorf("DueDate = %v, want %v", st.DueDate, day(0))
	}
	if !s.IsDue(st, t0) {
		t.Error("new state should be due")
	}
}

func TestReview_Progression(t *testing.T) {
	s := newScheduler(t)
	st := s.NewState("d", "q", t0)

	st = s.Review(st, true, t0)
	if st.IntervalDays != 1 || st.RepetitionCount != 1 {
		t.Fatalf("after 1st correct: interval %d reps %d, want 1/1", st.IntervalDays, st.RepetitionCount)
	}
	if !st.DueDate.Equal(day(1)) {
		t.Errorf("DueDate = %v, want %v", st.DueDate, day(1))
	}

	st = s.Review(st, true, t0.AddDate(0, 0, 1))
	if st.IntervalDays != 6 || st.RepetitionCount != 2 {
		t.Fatalf("after 2nd correct: interval %d reps %d, want 6/2", st.IntervalDays, st.RepetitionCount)
	}

	ef := st.EasinessFactor
	st = s.Review(st, true, t0.AddDate(0, 0, 7))
	want := int(math.Round(6 * ef))
	if st.IntervalDays != want || st.RepetitionCount != 3 {
		t.Errorf("after 3rd correct: interval %d reps %d, want %d/3", st.IntervalDays, st.RepetitionCount, want)
	}
	if !st.DueDate.Equal(day(7 + want)) {
		t.Errorf("DueDate = %v, want %v", st.DueDate, day(7+want))
	}
}

func TestReview_NewIncorrectRetriesToday(t *testing.T) {
	s := newScheduler(t)
	st := s.Review(s.NewState("d", "q", t0), false, t0)

	if st.IsNew() {
		t.Error("state should be Reviewed after any attempt")
	}
	if st.IntervalDays != 0 || st.RepetitionCount != 0 {
		t.Errorf("interval %d reps %d, want 0/0", st.IntervalDays, st.RepetitionCount)
	}
	if !s.IsDue(st, t0) {
		t.Error("failed new question should be due today")
	}
	if st.EasinessFactor != 2.3 {
		t.Errorf("EasinessFactor = %v, want 2.3", st.EasinessFactor)
	}
}

func TestReview_IncorrectResets(t *testing.T) {
	s := newScheduler(t)

	for streak := 1; streak <= 8; streak++ {
		st := s.NewState("d", "q", t0)
		now := t0
		for i := 0; i < streak; i++ {
			st = s.Review(st, true, now)
			now = now.AddDate(0, 0, st.IntervalDays)
		}
		before := st.EasinessFactor

		st = s.Review(st, false, now)
		if st.IntervalDays != 1 || st.RepetitionCount != 0 {
			t.Errorf("streak %d: interval %d reps %d, want 1/0", streak, st.IntervalDays, st.RepetitionCount)
		}
		if st.EasinessFactor >= before {
			t.Errorf("streak %d: easiness %v not decreased from %v", streak, st.EasinessFactor, before)
		}
		if s.IsDue(st, now) {
			t.Errorf("streak %d: should not be due the same day", streak)
		}
		if !s.IsDue(st, now.AddDate(0, 0, 1)) {
			t.Errorf("streak %d: should be due tomorrow", streak)
		}
	}
}

func TestReview_Monotonic(t *testing.T) {
	s := newScheduler(t)

	for _, ef := range []float64{1.3, 1.31, 1.5, 2.5, 3.0} {
		st := s.NewState("d", "q", t0)
		st.EasinessFactor = ef
		now := t0
		prev := 0
		for i := 0; i < 40; i++ {
			st = s.Review(st, true, now)
			if st.IntervalDays < prev {
				t.Fatalf("ef %v review %d: interval %d < previous %d", ef, i, st.IntervalDays, prev)
			}
			if i >= 2 && st.IntervalDays == prev && prev < 36500 {
				t.Fatalf("ef %v review %d: interval did not grow from %d", ef, i, prev)
			}
			prev = st.IntervalDays
			now = now.AddDate(0, 0, st.IntervalDays)
		}
		if prev > 36500 {
			t.Errorf("ef %v: interval %d exceeds cap", ef, prev)
		}
	}
}

func TestReview_EasinessBounds(t *testing.T) {
	s := newScheduler(t)
	st := s.NewState("d", "q", t0)

	for i := 0; i < 30; i++ {
		st = s.Review(st, false, t0)
	}
	if st.EasinessFactor != 1.3 {
		t.Errorf("EasinessFactor after many misses = %v, want floor 1.3", st.EasinessFactor)
	}

	for i := 0; i < 30; i++ {
		st = s.Review(st, true, t0)
	}
	if st.EasinessFactor != 3.0 {
		t.Errorf("EasinessFactor after many hits = %v, want ceiling 3.0", st.EasinessFactor)
	}
}

func TestReview_DoesNotMutateInput(t *testing.T) {
	s := newScheduler(t)
	st := s.NewState("d", "q", t0)
	_ = s.Review(st, true, t0)

	if !st.IsNew() || st.IntervalDays != 0 || st.RepetitionCount != 0 {
		t.Errorf("input state mutated: %+v", st)
	}
}

func TestDue_Ordering(t *testing.T) {
	s := newScheduler(t)
	now := t0.AddDate(0, 0, 10)

	states := []srs.ReviewState{
		{DeckID: "b", QuestionID: "1", DueDate: day(5), RepetitionCount: 2, LastReviewed: &t0},
		{DeckID: "a", QuestionID: "2", DueDate: day(5), RepetitionCount: 2, LastReviewed: &t0},
		{DeckID: "a", QuestionID: "1", DueDate: day(5), RepetitionCount: 2, LastReviewed: &t0},
		{DeckID: "a", QuestionID: "3", DueDate: day(5), RepetitionCount: 0, LastReviewed: &t0},
		{DeckID: "a", QuestionID: "4", DueDate: day(2), RepetitionCount: 5, LastReviewed: &t0},
		{DeckID: "a", QuestionID: "future", DueDate: day(11), LastReviewed: &t0},
		{DeckID: "a", QuestionID: "today", DueDate: day(10), LastReviewed: &t0},
		{DeckID: "a", QuestionID: "new", DueDate: day(30)},
	}

	due := s.Due(states, now)
	var got []string
	for _, st := range due {
		got = append(got, st.DeckID+"/"+st.QuestionID)
	}
	want := []string{"a/4", "a/3", "a/1", "a/2", "b/1", "a/today", "a/new"}
	if len(got) != len(want) {
		t.Fatalf("Due() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Due() = %v, want %v", got, want)
		}
	}
}

func TestToday_UsesLocation(t *testing.T) {
	warsaw := time.FixedZone("CET", 3600)
	s, err := srs.NewScheduler(srs.Config{Location: warsaw})
	if err != nil {
		t.Fatal(err)
	}
	// 23:30 UTC on the 10th is already the 11th at UTC+1.
	now := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	if got := s.Today(now); !got.Equal(day(1)) {
		t.Errorf("Today() = %v, want %v", got, day(1))
	}
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  srs.Config
	}{
		{"floor below 1", srs.Config{MinEasiness: 0.5}},
		{"floor above ceiling", srs.Config{MinEasiness: 2.8, MaxEasiness: 2.0, DefaultEasiness: 2.5}},
		{"default outside range", srs.Config{DefaultEasiness: 3.5}},
		{"negative bonus", srs.Config{EasinessBonus: -0.1}},
		{"negative growth", srs.Config{MinGrowthDays: -1}},
		{"tiny cap", srs.Config{MaxIntervalDays: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := srs.NewScheduler(tt.cfg); !errors.Is(err, srs.ErrInvalidConfig) {
				t.Errorf("NewScheduler() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
