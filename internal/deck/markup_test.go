package deck_test

import (
	"slices"
	"testing"

	"github.com/p-n-ai/pai-recall/internal/deck"
)

func TestMarkup_QA(t *testing.T) {
	d := parse(t, "history.md", "Q: W którym roku był chrzest Polski?\nA: 966\n\nq:   Capital of France?   \na: Paris  \n")

	if len(d.Questions) != 2 {
		t.Fatalf("questions = %d, want 2", len(d.Questions))
	}
	q := d.Questions[0]
	if q.Kind != deck.Text || q.Text != "W którym roku był chrzest Polski?" {
		t.Errorf("got %v %q", q.Kind, q.Text)
	}
	if !slices.Equal(q.CorrectAnswers, []string{"966"}) {
		t.Errorf("CorrectAnswers = %v", q.CorrectAnswers)
	}
	if d.Questions[1].CorrectAnswers[0] != "Paris" {
		t.Errorf("trailing whitespace kept: %q", d.Questions[1].CorrectAnswers[0])
	}
}

func TestMarkup_InlineMultipleChoice(t *testing.T) {
	d := parse(t, "go.md", "Q: Which are Go types?\nA) int B) string\nAnswer: A, B\n")

	if len(d.Questions) != 1 {
		t.Fatalf("questions = %d, want 1 (warnings %v)", len(d.Questions), d.Warnings)
	}
	q := d.Questions[0]
	if q.Kind != deck.MultipleChoice {
		t.Errorf("Kind = %v, want multiple_choice", q.Kind)
	}
	if !slices.Equal(q.Options, []string{"int", "string"}) {
		t.Errorf("Options = %v", q.Options)
	}
	if !slices.Equal(q.CorrectAnswers, []string{"int", "string"}) {
		t.Errorf("CorrectAnswers = %v", q.CorrectAnswers)
	}
}

func TestMarkup_FullyInline(t *testing.T) {
	d := parse(t, "go.md", "Which are Go types? A) int B) string C) banana Answer: A, B\n")

	if len(d.Questions) != 1 {
		t.Fatalf("questions = %d, want 1 (warnings %v)", len(d.Questions), d.Warnings)
	}
	q := d.Questions[0]
	if q.Text != "Which are Go types?" {
		t.Errorf("Text = %q", q.Text)
	}
	if !slices.Equal(q.Options, []string{"int", "string", "banana"}) {
		t.Errorf("Options = %v", q.Options)
	}
	if !slices.Equal(q.CorrectAnswers, []string{"int", "string"}) {
		t.Errorf("CorrectAnswers = %v", q.CorrectAnswers)
	}
}

func TestMarkup_SingleChoice(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"letter", "## Capital of Poland?\nA) Kraków\nB) Warszawa\nC) Gdańsk\nAnswer: B", "Warszawa"},
		{"lowercase letter", "**Capital of Poland?**\na. Kraków\nb. Warszawa\nPoprawna: b", "Warszawa"},
		{"option text", "Capital of Poland?\nA] Kraków\nB] Warszawa\n\nCorrect: warszawa", "Warszawa"},
		{"polish keyword", "Q: Stolica Polski?\nA) Kraków\nB) Warszawa\nOdpowiedź: B", "Warszawa"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := parse(t, "q.md", tt.content)
			if len(d.Questions) != 1 {
				t.Fatalf("questions = %d, want 1 (warnings %v)", len(d.Questions), d.Warnings)
			}
			q := d.Questions[0]
			if q.Kind != deck.SingleChoice {
				t.Errorf("Kind = %v, want single_choice", q.Kind)
			}
			if !slices.Equal(q.CorrectAnswers, []string{tt.want}) {
				t.Errorf("CorrectAnswers = %v, want [%s]", q.CorrectAnswers, tt.want)
			}
		})
	}
}

func TestMarkup_SpaceSeparatedLetters(t *testing.T) {
	d := parse(t, "math.md", "Q: Pick the primes\nA) 2\nB) 4\nC) 5\nAnswer: A C\n")

	if len(d.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(d.Questions))
	}
	if got := d.Questions[0].CorrectAnswers; !slices.Equal(got, []string{"2", "5"}) {
		t.Errorf("CorrectAnswers = %v", got)
	}
}

func TestMarkup_HeadingsAndLooseAnswers(t *testing.T) {
	content := `# Historia Polski

## Władcy

## Kto był pierwszym królem Polski?
Bolesław Chrobry

**Kto napisał Pana Tadeusza?**
[Adam Mickiewicz]

## Daty

Q: W którym roku był chrzest Polski?
A: 966
`
	d := parse(t, "historia.md", content)

	if d.Name != "Historia Polski" {
		t.Errorf("Name = %q, want Historia Polski", d.Name)
	}
	if len(d.Questions) != 3 {
		t.Fatalf("questions = %d, want 3 (warnings %v)", len(d.Questions), d.Warnings)
	}

	want := []struct {
		text, answer, category string
	}{
		{"Kto był pierwszym królem Polski?", "Bolesław Chrobry", "Władcy"},
		{"Kto napisał Pana Tadeusza?", "Adam Mickiewicz", "Władcy"},
		{"W którym roku był chrzest Polski?", "966", "Daty"},
	}
	for i, w := range want {
		q := d.Questions[i]
		if q.Text != w.text || q.CorrectAnswers[0] != w.answer || q.Category != w.category {
			t.Errorf("Questions[%d] = %q/%q/%q, want %q/%q/%q",
				i, q.Text, q.CorrectAnswers[0], q.Category, w.text, w.answer, w.category)
		}
	}
}

func TestMarkup_UnrecognizedBlocksWarn(t *testing.T) {
	content := "Some introductory prose\nthat spans two lines.\n\nQ: 2+2?\nA: 4\n"
	d := parse(t, "notes.md", content)

	if len(d.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(d.Questions))
	}
	if len(d.Warnings) != 1 || d.Warnings[0].Line != 1 {
		t.Errorf("warnings = %v, want one at line 1", d.Warnings)
	}
}

func TestMarkup_ChoiceWithoutAnswer(t *testing.T) {
	content := "Q: Pick one\nA) x\nB) y\n\nQ: Next?\nA: z\n"
	d := parse(t, "q.md", content)

	if len(d.Questions) != 1 || d.Questions[0].Text != "Next?" {
		t.Fatalf("questions = %+v", d.Questions)
	}
	if len(d.Warnings) != 1 || d.Warnings[0].Line != 1 {
		t.Errorf("warnings = %v", d.Warnings)
	}
}

func TestMarkup_AnswerMatchesNoOption(t *testing.T) {
	d := parse(t, "q.md", "Q: Pick\nA) x\nB) y\nAnswer: E\n")

	if len(d.Questions) != 0 {
		t.Errorf("questions = %d, want 0", len(d.Questions))
	}
	if len(d.Warnings) != 1 {
		t.Errorf("warnings = %v", d.Warnings)
	}
}

func TestMarkup_OptionCountWarning(t *testing.T) {
	d := parse(t, "q.md", "Q: Pick\nA) a\nB) b\nC) c\nD) d\nE) e\nAnswer: E\n")

	if len(d.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(d.Questions))
	}
	if len(d.Warnings) != 1 {
		t.Errorf("warnings = %v, want 1", d.Warnings)
	}
}

func TestMarkup_CRLF(t *testing.T) {
	d := parse(t, "win.txt", "Q: Hello?\r\nA: World\r\n")
	if len(d.Questions) != 1 || d.Questions[0].CorrectAnswers[0] != "World" {
		t.Errorf("questions = %+v", d.Questions)
	}
}
