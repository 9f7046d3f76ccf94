package deck

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	utf8BOM    = []byte{0xEF, 0xBB, 0xBF}
	markupHint = regexp.MustCompile(`(?m)^\s*(Q:|#{1,6}\s|\*\*|(?i:answer):)`)
)

// Sniff decides which parser handles a file. The extension wins; content is
// only inspected for unknown extensions.
func Sniff(path string, data []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".md", ".markdown", ".txt":
		return FormatMarkup, nil
	}

	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, utf8BOM))
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", ErrUnknownFormat, path)
	}
	switch trimmed[0] {
	case '{', '[':
		return FormatJSON, nil
	}
	if markupHint.Match(trimmed) {
		return FormatMarkup, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Parse runs the parser selected by format. Each format has exactly one parser.
func Parse(format Format, path string, data []byte) (*Deck, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var (
		d   *Deck
		err error
	)
	switch format {
	case FormatJSON:
		d, err = parseJSON(path, data)
	case FormatYAML:
		d, err = parseYAML(path, data)
	case FormatMarkup:
		d, err = parseMarkup(path, data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, err
	}

	d.Format = format
	d.SourceFile = path
	if d.ID == "" {
		d.ID = filepath.ToSlash(path)
	}
	if d.Name == "" {
		d.Name = humanizeFileName(path)
	}
	for i := range d.Questions {
		d.Questions[i].SourceFile = path
	}
	return d, nil
}
