package deck

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Kind is the question type. Graders and schedulers switch on it exhaustively.
type Kind int

const (
	Text Kind = iota + 1
	SingleChoice
	MultipleChoice
)

var (
	kindNames  = [...]string{Text: "text", SingleChoice: "single_choice", MultipleChoice: "multiple_choice"}
	kindByName = map[string]Kind{
		"text":            Text,
		"single_choice":   SingleChoice,
		"multiple_choice": MultipleChoice,
	}
)

var (
	_ fmt.Stringer             = Kind(0)
	_ encoding.TextMarshaler   = Kind(0)
	_ encoding.TextUnmarshaler = (*Kind)(nil)
	_ json.Marshaler           = Kind(0)
)

func (k Kind) valid() bool {
	return k >= Text && k <= MultipleChoice
}

// IsChoice reports whether answers are picked from Options.
func (k Kind) IsChoice() bool {
	return k == SingleChoice || k == MultipleChoice
}

func (k Kind) String() string {
	if k.valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps "text", "single_choice" or "multiple_choice" to a Kind.
func ParseKind(s string) (Kind, error) {
	k, ok := kindByName[s]
	if !ok {
		return 0, fmt.Errorf("deck: unknown question type %q", s)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, fmt.Errorf("deck: invalid kind: %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MarshalJSON encodes the kind as its string name.
func (k Kind) MarshalJSON() ([]byte, error) {
	text, err := k.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// Question is one normalized flashcard.
type Question struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Kind           Kind     `json:"kind"`
	Options        []string `json:"options,omitempty"`
	CorrectAnswers []string `json:"correct_answers"`
	Category       string   `json:"category,omitempty"`
	SourceFile     string   `json:"source_file"`
}

// Format tags the encoding of a quiz source file.
type Format int

const (
	FormatJSON Format = iota + 1
	FormatYAML
	FormatMarkup
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	case FormatMarkup:
		return "markup"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Warning is a non-fatal parse finding.
type Warning struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("line %d: %s", w.Line, w.Message)
	}
	return w.Message
}

// Deck is the set of questions parsed from one source file.
type Deck struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	SourceFile string     `json:"source_file"`
	Format     Format     `json:"format"`
	Questions  []Question `json:"questions"`
	Warnings   []Warning  `json:"warnings,omitempty"`
}

// Question returns the question with the given ID.
func (d *Deck) Question(id string) (Question, bool) {
	for _, q := range d.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}
