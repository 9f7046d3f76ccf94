package deck

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// jsonToNode decodes a JSON document into a yaml.Node tree. Object key order
// and line numbers survive, which plain json.Unmarshal into a map would lose.
func jsonToNode(data []byte) (*yaml.Node, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &yaml.Node{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	lines := newLineIndex(data)

	n, err := decodeJSONValue(dec, lines)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &jsonSyntaxError{line: lines.at(dec.InputOffset()), msg: "unexpected data after document"}
	}
	return n, nil
}

type jsonSyntaxError struct {
	line int
	msg  string
}

func (e *jsonSyntaxError) Error() string {
	return e.msg
}

func decodeJSONValue(dec *json.Decoder, lines lineIndex) (*yaml.Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, wrapJSONError(err, dec, lines)
	}
	line := lines.at(dec.InputOffset() - 1)

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map", Line: line}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, wrapJSONError(err, dec, lines)
				}
				key, _ := kt.(string)
				n.Content = append(n.Content, &yaml.Node{
					Kind:  yaml.ScalarNode,
					Tag:   "!!str",
					Value: key,
					Line:  lines.at(dec.InputOffset() - 1),
				})
				val, err := decodeJSONValue(dec, lines)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, wrapJSONError(err, dec, lines)
			}
			return n, nil
		case '[':
			n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Line: line}
			for dec.More() {
				val, err := decodeJSONValue(dec, lines)
				if err != nil {
					return nil, err
				}
				n.Content = append(n.Content, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, wrapJSONError(err, dec, lines)
			}
			return n, nil
		default:
			return nil, &jsonSyntaxError{line: line, msg: fmt.Sprintf("unexpected %q", v)}
		}
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v, Line: line}, nil
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(v.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v.String(), Line: line}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(v), Line: line}, nil
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null", Line: line}, nil
	}
	return nil, &jsonSyntaxError{line: line, msg: fmt.Sprintf("unexpected token %v", tok)}
}

func wrapJSONError(err error, dec *json.Decoder, lines lineIndex) error {
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		return &jsonSyntaxError{line: lines.at(int64(syn.Offset) - 1), msg: syn.Error()}
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &jsonSyntaxError{line: lines.at(dec.InputOffset()), msg: "unexpected end of JSON input"}
	}
	return &jsonSyntaxError{line: lines.at(dec.InputOffset()), msg: err.Error()}
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(data []byte) lineIndex {
	var idx lineIndex
	for i, b := range data {
		if b == '\n' {
			idx = append(idx, i)
		}
	}
	return idx
}

func (l lineIndex) at(offset int64) int {
	if offset < 0 {
		return 1
	}
	return sort.SearchInts(l, int(offset)) + 1
}
