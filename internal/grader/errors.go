package grader

import (
	"errors"
	"fmt"
)

// ErrInvalidAnswerFormat marks answers that could not be graded at all.
var ErrInvalidAnswerFormat = errors.New("grader: invalid answer format")

// InvalidAnswerFormatError reports input the grader cannot interpret. The
// answer is ungraded, not wrong: callers re-prompt without touching state.
type InvalidAnswerFormatError struct {
	QuestionID string
	Token      string
	Reason     string
}

func (e *InvalidAnswerFormatError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("grader: invalid answer for %s: %q %s", e.QuestionID, e.Token, e.Reason)
	}
	return fmt.Sprintf("grader: invalid answer for %s: %s", e.QuestionID, e.Reason)
}

func (e *InvalidAnswerFormatError) Is(target error) bool {
	return target == ErrInvalidAnswerFormat
}
