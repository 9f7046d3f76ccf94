package deck

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-recall/internal/textnorm"
)

//go:embed schema.json
var schemaJSON []byte

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
})

const maxSchemaErrors = 3

func parseJSON(path string, data []byte) (*Deck, error) {
	root, err := jsonToNode(data)
	if err != nil {
		var syn *jsonSyntaxError
		if errors.As(err, &syn) {
			return nil, malformed(path, syn.line, "json", "%s", syn.msg)
		}
		return nil, malformed(path, 0, "json", "%v", err)
	}
	return parseStructured(path, root)
}

func parseYAML(path string, data []byte) (*Deck, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, malformed(path, yamlErrorLine(err), "yaml", "%v", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return parseStructured(path, &yaml.Node{})
	}
	return parseStructured(path, doc.Content[0])
}

// yamlErrorLine pulls the line out of "yaml: line 3: ..." messages.
func yamlErrorLine(err error) int {
	msg := err.Error()
	i := strings.Index(msg, "line ")
	if i < 0 {
		return 0
	}
	rest := msg[i+len("line "):]
	j := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if j <= 0 {
		return 0
	}
	n, _ := strconv.Atoi(rest[:j])
	return n
}

func parseStructured(path string, root *yaml.Node) (*Deck, error) {
	d := &Deck{}
	if root.Kind == 0 {
		return d, nil
	}
	if err := validateStructure(path, root); err != nil {
		return nil, err
	}

	switch root.Kind {
	case yaml.SequenceNode:
		return d, buildEntries(path, d, root.Content)
	case yaml.MappingNode:
		if qs := field(root, "questions"); qs != nil {
			d.Name = scalar(field(root, "title"))
			return d, buildEntries(path, d, qs.Content)
		}
		return d, buildFlat(d, root)
	}
	return nil, malformed(path, root.Line, "document", "expected an object or a list")
}

func validateStructure(path string, root *yaml.Node) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("loading deck schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(nodeToAny(root)))
	if err != nil {
		return malformed(path, root.Line, "schema", "%v", err)
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	line := lineForField(root, errs[0].Field())
	var msgs []string
	for i, e := range errs {
		if i == maxSchemaErrors {
			msgs = append(msgs, fmt.Sprintf("and %d more", len(errs)-maxSchemaErrors))
			break
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return malformed(path, line, "schema", "%s", strings.Join(msgs, "; "))
}

// buildFlat reads {"question": "answer", ...} documents as text questions.
func buildFlat(d *Deck, root *yaml.Node) error {
	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		text := strings.TrimSpace(k.Value)
		answer := strings.TrimSpace(scalar(v))
		if text == "" || answer == "" {
			d.Warnings = append(d.Warnings, Warning{Line: k.Line, Message: "skipping entry with empty question or answer"})
			continue
		}
		d.Questions = append(d.Questions, Question{
			ID:             SynthesizeID(text, i/2),
			Text:           text,
			Kind:           Text,
			CorrectAnswers: []string{answer},
		})
	}
	return nil
}

func buildEntries(path string, d *Deck, entries []*yaml.Node) error {
	seen := make(map[string]int)
	for i, e := range entries {
		q, warn, err := buildEntry(path, i, e)
		if err != nil {
			return err
		}
		if warn != "" {
			d.Warnings = append(d.Warnings, Warning{Line: e.Line, Message: warn})
		}
		if q == nil {
			continue
		}
		if first, dup := seen[q.ID]; dup {
			return &DuplicateIdentityError{Path: path, ID: q.ID, FirstLine: first, Line: e.Line}
		}
		seen[q.ID] = e.Line
		if q.Kind.IsChoice() && (len(q.Options) < 2 || len(q.Options) > 4) {
			d.Warnings = append(d.Warnings, Warning{
				Line:    e.Line,
				Message: fmt.Sprintf("question %q has %d options; 2 to 4 is standard", q.ID, len(q.Options)),
			})
		}
		d.Questions = append(d.Questions, *q)
	}
	return nil
}

// buildEntry returns (nil, warning, nil) for entries that are skipped.
func buildEntry(path string, index int, e *yaml.Node) (*Question, string, error) {
	section := fmt.Sprintf("questions[%d]", index)
	text := strings.TrimSpace(firstScalar(e, "question", "q", "text"))
	if text == "" {
		return nil, fmt.Sprintf("skipping entry %d without question text", index), nil
	}

	ansNode := field(e, "answer", "a")
	listAnswer := ansNode != nil && ansNode.Kind == yaml.SequenceNode
	var answers []string
	switch {
	case listAnswer:
		answers = scalarList(ansNode)
	case ansNode != nil:
		if v := strings.TrimSpace(scalar(ansNode)); v != "" {
			answers = []string{v}
		}
	}
	correct := scalarList(field(e, "correct_answers"))
	if len(correct) == 0 {
		correct = answers
	}
	options := scalarList(field(e, "options", "choices"))

	var kind Kind
	if t := strings.TrimSpace(firstScalar(e, "type")); t != "" {
		k, err := ParseKind(t)
		if err != nil {
			return nil, "", malformed(path, e.Line, section, "unknown question type %q", t)
		}
		kind = k
	} else {
		switch {
		case len(options) == 0:
			kind = Text
		case len(correct) > 1 || listAnswer:
			kind = MultipleChoice
		default:
			kind = SingleChoice
		}
	}

	q := &Question{
		ID:       strings.TrimSpace(firstScalar(e, "id")),
		Text:     text,
		Kind:     kind,
		Category: strings.TrimSpace(firstScalar(e, "category", "topic")),
	}
	if q.ID == "" {
		q.ID = SynthesizeID(text, index)
	}

	var warn string
	switch kind {
	case Text:
		if len(correct) == 0 {
			return nil, fmt.Sprintf("skipping question %q without an answer", q.ID), nil
		}
		if len(correct) > 1 {
			warn = fmt.Sprintf("text question %q lists %d answers; using the first", q.ID, len(correct))
		}
		q.CorrectAnswers = correct[:1]
	case SingleChoice, MultipleChoice:
		if len(options) == 0 {
			return nil, "", malformed(path, e.Line, section, "%s question %q has no options", kind, q.ID)
		}
		if kind == MultipleChoice && len(correct) == 1 && !listAnswer {
			if _, ok := textnorm.MatchOption(options, correct[0]); !ok {
				correct = splitList(correct[0])
			}
		}
		if len(correct) == 0 {
			return nil, fmt.Sprintf("skipping question %q without a correct answer", q.ID), nil
		}
		resolved, err := resolveCorrect(options, correct)
		if err != nil {
			return nil, "", malformed(path, e.Line, section, "question %q: %v", q.ID, err)
		}
		if kind == SingleChoice && len(resolved) != 1 {
			return nil, "", malformed(path, e.Line, section, "single_choice question %q has %d correct answers", q.ID, len(resolved))
		}
		q.Options = options
		q.CorrectAnswers = resolved
	}
	return q, warn, nil
}

// resolveCorrect maps declared answers onto option texts: exact option text
// first, then positional letters. Every answer must name an option.
func resolveCorrect(options, declared []string) ([]string, error) {
	var out []string
	taken := make(map[int]bool)
	for _, c := range declared {
		i, ok := textnorm.MatchOption(options, c)
		if !ok {
			if li, lok := textnorm.LetterIndex(c); lok && li < len(options) {
				i, ok = li, true
			}
		}
		if !ok {
			return nil, fmt.Errorf("correct answer %q is not one of the options", c)
		}
		if taken[i] {
			continue
		}
		taken[i] = true
		out = append(out, options[i])
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// field returns the value node of the first key present in a mapping.
func field(n *yaml.Node, names ...string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for _, name := range names {
		for i := 0; i+1 < len(n.Content); i += 2 {
			if n.Content[i].Value == name {
				return n.Content[i+1]
			}
		}
	}
	return nil
}

func firstScalar(n *yaml.Node, names ...string) string {
	for _, name := range names {
		if v := scalar(field(n, name)); v != "" {
			return v
		}
	}
	return ""
}

func scalar(n *yaml.Node) string {
	if n == nil || n.Kind != yaml.ScalarNode || n.ShortTag() == "!!null" {
		return ""
	}
	return n.Value
}

func scalarList(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, c := range n.Content {
		if v := strings.TrimSpace(scalar(c)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// nodeToAny converts a node tree to plain Go values for schema validation.
// Scalars become strings so "966" and 966 validate alike.
func nodeToAny(n *yaml.Node) any {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return nodeToAny(n.Content[0])
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			m[n.Content[i].Value] = nodeToAny(n.Content[i+1])
		}
		return m
	case yaml.SequenceNode:
		s := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			s = append(s, nodeToAny(c))
		}
		return s
	case yaml.AliasNode:
		if n.Alias != nil {
			return nodeToAny(n.Alias)
		}
		return nil
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil
		}
		return n.Value
	}
	return nil
}

// lineForField follows a gojsonschema field path ("questions.2.type") to the
// line of the node it names, falling back to the closest ancestor.
func lineForField(root *yaml.Node, path string) int {
	line := root.Line
	if path == "" || path == "(root)" {
		return line
	}
	n := root
	for _, part := range strings.Split(path, ".") {
		var next *yaml.Node
		switch n.Kind {
		case yaml.MappingNode:
			next = field(n, part)
		case yaml.SequenceNode:
			if i, err := strconv.Atoi(part); err == nil && i >= 0 && i < len(n.Content) {
				next = n.Content[i]
			}
		}
		if next == nil {
			break
		}
		n = next
		line = n.Line
	}
	return line
}
