package deck

import (
	"errors"
	"fmt"
)

// Sentinel errors. Match with errors.Is.
var (
	ErrMalformedContent  = errors.New("deck: malformed content")
	ErrDuplicateIdentity = errors.New("deck: duplicate question id")
	ErrUnknownFormat     = errors.New("deck: unknown file format")
)

// MalformedContentError reports an unparsable file and where it broke.
type MalformedContentError struct {
	Path    string
	Line    int
	Section string
	Reason  string
}

func (e *MalformedContentError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Line)
	}
	if e.Section != "" {
		return fmt.Sprintf("deck: malformed content at %s (%s): %s", loc, e.Section, e.Reason)
	}
	return fmt.Sprintf("deck: malformed content at %s: %s", loc, e.Reason)
}

func (e *MalformedContentError) Is(target error) bool {
	return target == ErrMalformedContent
}

// DuplicateIdentityError reports two questions in one file sharing an explicit id.
type DuplicateIdentityError struct {
	Path      string
	ID        string
	FirstLine int
	Line      int
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("deck: duplicate question id %q in %s (lines %d and %d)", e.ID, e.Path, e.FirstLine, e.Line)
}

// Is matches both ErrDuplicateIdentity and ErrMalformedContent: a duplicate
// id makes the whole file unloadable.
func (e *DuplicateIdentityError) Is(target error) bool {
	return target == ErrDuplicateIdentity || target == ErrMalformedContent
}

func malformed(path string, line int, section, format string, args ...any) *MalformedContentError {
	return &MalformedContentError{
		Path:    path,
		Line:    line,
		Section: section,
		Reason:  fmt.Sprintf(format, args...),
	}
}
