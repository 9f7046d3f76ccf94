package deck

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/p-n-ai/pai-recall/internal/textnorm"
)

var (
	headingRe    = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*$`)
	boldLineRe   = regexp.MustCompile(`^\*\*(.+?)\*\*$`)
	bracketRe    = regexp.MustCompile(`^\[(.+)\]$`)
	questionRe   = regexp.MustCompile(`^(?i:q|question)\s*:\s*(.*)$`)
	textAnswerRe = regexp.MustCompile(`^(?i:a)\s*:\s*(.*)$`)
	optionRe     = regexp.MustCompile(`^([A-Za-z])[).\]]\s*(.*)$`)
	answerKeyRe  = regexp.MustCompile(`^(?i:answer|correct|odpowiedź|poprawna)\s*:\s*(.*)$`)
	inlineOptRe  = regexp.MustCompile(`\s([A-H])\)\s`)
	inlineAnsRe  = regexp.MustCompile(`\s(?i:answer|correct|odpowiedź|poprawna)\s*:`)
)

// mline is one logical markup line. Inline option lists ("A) x B) y") are
// split into several mlines sharing the source line number.
type mline struct {
	n int
	s string
}

type markupParser struct {
	lines    []mline
	i        int
	d        *Deck
	category string
	titled   bool
	count    int
}

// parseMarkup reads the line-oriented quiz format:
//
//	Q: question            ## Heading question?       Which are types?
//	A: answer              [answer]                   A) int
//	                                                  B) string
//	                                                  Answer: A, B
//
// Headings without a question body are section separators and name the
// category of the questions that follow. Unrecognized blocks become warnings.
func parseMarkup(_ string, data []byte) (*Deck, error) {
	p := &markupParser{lines: splitLines(data), d: &Deck{}}
	for p.i < len(p.lines) {
		p.step()
	}
	return p.d, nil
}

func splitLines(data []byte) []mline {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	var out []mline
	for i, raw := range strings.Split(text, "\n") {
		l := strings.TrimSpace(raw)
		if l == "" {
			out = append(out, mline{n: i + 1})
			continue
		}
		for _, seg := range splitInline(l) {
			out = append(out, mline{n: i + 1, s: seg})
		}
	}
	return out
}

// splitInline breaks "Q: pick A) int B) string Answer: A" into its parts.
// Option markers only split in alphabetical sequence starting at A.
func splitInline(l string) []string {
	expected := byte('A')
	if idx, _, ok := optionLabel(l); ok && idx == 0 {
		expected = 'B'
	}
	startExpected := expected

	var segs []string
	start := 0
	for _, loc := range inlineOptRe.FindAllStringSubmatchIndex(l, -1) {
		if l[loc[2]] != expected {
			continue
		}
		segs = append(segs, l[start:loc[0]])
		start = loc[0] + 1
		expected++
	}
	if startExpected == 'A' && len(segs) == 0 {
		return []string{l}
	}
	segs = append(segs, l[start:])

	last := segs[len(segs)-1]
	if loc := inlineAnsRe.FindStringIndex(last); loc != nil {
		segs[len(segs)-1] = last[:loc[0]]
		segs = append(segs, last[loc[0]:])
	}

	out := segs[:0]
	for _, s := range segs {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (p *markupParser) step() {
	l := p.lines[p.i]
	if l.s == "" {
		p.i++
		return
	}

	if m := headingRe.FindStringSubmatch(l.s); m != nil {
		if p.question(m[2], false, true) {
			return
		}
		p.section(len(m[1]), m[2])
		p.i++
		return
	}

	switch {
	case questionRe.MatchString(l.s):
		m := questionRe.FindStringSubmatch(l.s)
		if p.question(m[1], true, true) {
			return
		}
	case boldLineRe.MatchString(l.s):
		m := boldLineRe.FindStringSubmatch(l.s)
		if p.question(m[1], false, true) {
			return
		}
	case !isStructural(l.s):
		if p.question(l.s, false, strings.HasSuffix(l.s, "?")) {
			return
		}
	}
	p.skipBlock("unrecognized block")
}

// question tries to read a question whose text starts at p.i. It reports
// whether any lines were consumed.
func (p *markupParser) question(text string, allowQA, allowLoose bool) bool {
	start := p.lines[p.i]
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	j := p.nextNonBlank(p.i + 1)
	if j < 0 {
		return false
	}
	next := p.lines[j].s

	if allowQA {
		if m := textAnswerRe.FindStringSubmatch(next); m != nil {
			p.i = j + 1
			p.emitText(start.n, text, m[1])
			return true
		}
	}
	if idx, _, ok := optionLabel(next); ok && idx == 0 {
		p.choice(start.n, text, j)
		return true
	}
	if allowLoose && j == p.i+1 && !isStructural(next) {
		p.i = j + 1
		p.emitText(start.n, text, stripAnswerDecor(next))
		return true
	}
	return false
}

func (p *markupParser) choice(line int, text string, j int) {
	var options []string
	k := j
	for k < len(p.lines) {
		s := p.lines[k].s
		if s == "" {
			k++
			continue
		}
		idx, body, ok := optionLabel(s)
		if !ok || idx != len(options) {
			break
		}
		options = append(options, strings.TrimSpace(body))
		k++
	}

	if k >= len(p.lines) {
		p.i = k
		p.warn(line, fmt.Sprintf("choice question %q has no Answer: line", text))
		return
	}
	m := answerKeyRe.FindStringSubmatch(p.lines[k].s)
	if m == nil {
		p.i = k
		p.warn(line, fmt.Sprintf("choice question %q has no Answer: line", text))
		return
	}
	p.i = k + 1

	tokens := textnorm.ChoiceTokens(m[1])
	if len(tokens) == 0 {
		p.warn(line, fmt.Sprintf("choice question %q has an empty answer", text))
		return
	}
	var correct []string
	taken := make(map[int]bool)
	for _, tok := range tokens {
		i, ok := textnorm.ResolveOption(options, tok)
		if !ok {
			p.warn(line, fmt.Sprintf("choice question %q: answer %q matches no option", text, tok))
			return
		}
		if !taken[i] {
			taken[i] = true
			correct = append(correct, options[i])
		}
	}

	kind := SingleChoice
	if len(correct) > 1 {
		kind = MultipleChoice
	}
	if len(options) < 2 || len(options) > 4 {
		p.warn(line, fmt.Sprintf("choice question %q has %d options; 2 to 4 is standard", text, len(options)))
	}
	p.emit(Question{Text: text, Kind: kind, Options: options, CorrectAnswers: correct})
}

func (p *markupParser) emitText(line int, text, answer string) {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		p.warn(line, fmt.Sprintf("question %q has an empty answer", text))
		return
	}
	p.emit(Question{Text: text, Kind: Text, CorrectAnswers: []string{answer}})
}

func (p *markupParser) emit(q Question) {
	q.ID = SynthesizeID(q.Text, p.count)
	q.Category = p.category
	p.count++
	p.d.Questions = append(p.d.Questions, q)
}

func (p *markupParser) section(level int, text string) {
	if level == 1 && !p.titled && len(p.d.Questions) == 0 {
		p.d.Name = text
		p.titled = true
		return
	}
	p.category = text
}

func (p *markupParser) skipBlock(reason string) {
	l := p.lines[p.i]
	p.warn(l.n, fmt.Sprintf("%s: %q", reason, truncate(l.s, 40)))
	p.i++
	for p.i < len(p.lines) {
		s := p.lines[p.i].s
		if s == "" || headingRe.MatchString(s) || questionRe.MatchString(s) || boldLineRe.MatchString(s) {
			return
		}
		p.i++
	}
}

func (p *markupParser) warn(line int, msg string) {
	p.d.Warnings = append(p.d.Warnings, Warning{Line: line, Message: msg})
}

func (p *markupParser) nextNonBlank(from int) int {
	for k := from; k < len(p.lines); k++ {
		if p.lines[k].s != "" {
			return k
		}
	}
	return -1
}

func optionLabel(s string) (int, string, bool) {
	m := optionRe.FindStringSubmatch(s)
	if m == nil {
		return 0, "", false
	}
	return int(strings.ToLower(m[1])[0] - 'a'), m[2], true
}

func isStructural(s string) bool {
	if headingRe.MatchString(s) || questionRe.MatchString(s) || answerKeyRe.MatchString(s) {
		return true
	}
	idx, _, ok := optionLabel(s)
	return ok && idx == 0
}

func stripAnswerDecor(s string) string {
	s = strings.TrimSpace(s)
	if m := bracketRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := boldLineRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := textAnswerRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
