package grader_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/grader"
)

var (
	capital = deck.Question{ID: "fr", Text: "Capital of France?", Kind: deck.Text, CorrectAnswers: []string{"Paris"}}
	phrase  = deck.Question{
		ID:             "pt",
		Text:           "Who wrote Pan Tadeusz?",
		Kind:           deck.Text,
		CorrectAnswers: []string{"Adam Bernard Mickiewicz the poet"},
	}
	single = deck.Question{
		ID:             "pl",
		Text:           "Capital of Poland?",
		Kind:           deck.SingleChoice,
		Options:        []string{"Kraków", "Warszawa", "Gdańsk"},
		CorrectAnswers: []string{"Warszawa"},
	}
	multi = deck.Question{
		ID:             "types",
		Text:           "Which are Go types?",
		Kind:           deck.MultipleChoice,
		Options:        []string{"int", "string", "banana"},
		CorrectAnswers: []string{"int", "string"},
	}
)

func TestGrade_Text(t *testing.T) {
	g := grader.New(grader.Config{})

	tests := []struct {
		name        string
		q           deck.Question
		raw         string
		wantCorrect bool
		wantPartial bool
	}{
		{"exact", capital, "Paris", true, false},
		{"lowercase", capital, "paris", true, false},
		{"padded", capital, " Paris ", true, false},
		{"shouting", capital, "PARIS", true, false},
		{"wrong", capital, "London", false, false},
		{"short answers need exact match", capital, "Paris France", false, false},
		{"long exact", phrase, "adam bernard  mickiewicz the poet", true, false},
		{"long partial", phrase, "Adam Mickiewicz the poet", true, true},
		{"long partial superset", phrase, "it was Adam Bernard Mickiewicz the poet", true, true},
		{"long too little", phrase, "Mickiewicz", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := g.Grade(tt.q, tt.raw)
			if err != nil {
				t.Fatalf("Grade() error = %v", err)
			}
			if res.Correct != tt.wantCorrect || res.Partial != tt.wantPartial {
				t.Errorf("Grade(%q) = correct %v partial %v, want %v %v",
					tt.raw, res.Correct, res.Partial, tt.wantCorrect, tt.wantPartial)
			}
		})
	}
}

func TestGrade_CaseAndWhitespaceInsensitive(t *testing.T) {
	g := grader.New(grader.Config{})
	var verdicts []bool
	for _, raw := range []string{"Paris", "paris", " Paris "} {
		res, err := g.Grade(capital, raw)
		if err != nil {
			t.Fatalf("Grade(%q) error = %v", raw, err)
		}
		verdicts = append(verdicts, res.Correct)
	}
	for _, v := range verdicts {
		if v != verdicts[0] || !v {
			t.Errorf("verdicts = %v, want all true", verdicts)
		}
	}
}

func TestGrade_ConfigurablePartialCredit(t *testing.T) {
	strict := grader.New(grader.Config{TokenRatio: 1})
	res, err := strict.Grade(phrase, "Adam Mickiewicz the poet")
	if err != nil {
		t.Fatal(err)
	}
	if res.Correct {
		t.Error("TokenRatio 1 should reject a partial answer")
	}

	lenient := grader.New(grader.Config{LongAnswerChars: 3, TokenRatio: 0.5})
	q := deck.Question{ID: "x", Kind: deck.Text, CorrectAnswers: []string{"red fox"}}
	res, err = lenient.Grade(q, "fox")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Correct || !res.Partial {
		t.Errorf("got %+v, want partial credit", res)
	}
}

func TestGrade_SingleChoice(t *testing.T) {
	g := grader.New(grader.Config{})

	tests := []struct {
		raw  string
		want bool
	}{
		{"B", true},
		{"b", true},
		{" warszawa ", true},
		{"WARSZAWA", true},
		{"A", false},
		{"Kraków", false},
	}

	for _, tt := range tests {
		res, err := g.Grade(single, tt.raw)
		if err != nil {
			t.Fatalf("Grade(%q) error = %v", tt.raw, err)
		}
		if res.Correct != tt.want {
			t.Errorf("Grade(%q) = %v, want %v", tt.raw, res.Correct, tt.want)
		}
	}
}

func TestGrade_MultipleChoice(t *testing.T) {
	g := grader.New(grader.Config{})

	tests := []struct {
		raw  string
		want bool
	}{
		{"A, B", true},
		{"B, A", true},
		{"B,A", true},
		{"a b", true},
		{"string, int", true},
		{"A, string", true},
		{"A, A, B", true},
		{"A", false},
		{"A, B, C", false},
		{"C", false},
	}

	for _, tt := range tests {
		res, err := g.Grade(multi, tt.raw)
		if err != nil {
			t.Fatalf("Grade(%q) error = %v", tt.raw, err)
		}
		if res.Correct != tt.want {
			t.Errorf("Grade(%q) = %v, want %v", tt.raw, res.Correct, tt.want)
		}
	}
}

func TestGrade_InvalidFormat(t *testing.T) {
	g := grader.New(grader.Config{})

	tests := []struct {
		name string
		q    deck.Question
		raw  string
	}{
		{"empty text", capital, "   "},
		{"empty choice", single, ""},
		{"letter out of range", single, "E"},
		{"unknown option", single, "Poznań"},
		{"one bad token", multi, "A, Z"},
		{"garbage", multi, "????"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Grade(tt.q, tt.raw)
			if !errors.Is(err, grader.ErrInvalidAnswerFormat) {
				t.Fatalf("error = %v, want ErrInvalidAnswerFormat", err)
			}
			var iafe *grader.InvalidAnswerFormatError
			if !errors.As(err, &iafe) || iafe.QuestionID != tt.q.ID {
				t.Errorf("error = %#v", err)
			}
		})
	}
}

func TestGrade_ParsedMarkup(t *testing.T) {
	content := "Q: Which are Go types?\nA) int B) string\nAnswer: A, B\n"
	d, err := deck.Parse(deck.FormatMarkup, "go.md", []byte(content))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(d.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(d.Questions))
	}

	res, err := grader.New(grader.Config{}).Grade(d.Questions[0], "B,A")
	if err != nil {
		t.Fatalf("Grade() error = %v", err)
	}
	if !res.Correct {
		t.Error("B,A should grade correct")
	}
}
