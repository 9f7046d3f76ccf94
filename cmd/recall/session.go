package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/p-n-ai/pai-recall/internal/deck"
	"github.com/p-n-ai/pai-recall/internal/grader"
	"github.com/p-n-ai/pai-recall/internal/study"
)

const quitCommand = ":q"

// runSession asks questions from in until the queue is empty, the input ends
// or the user types :q.
func runSession(ctx context.Context, eng *study.Engine, deckID string, mode study.Mode, in io.Reader, out io.Writer) error {
	s, err := eng.StartSession(ctx, deckID, mode)
	if err != nil {
		return err
	}
	if s.Remaining() == 0 {
		if mode == study.ModeReview {
			fmt.Fprintln(out, "Nothing is due for review. Try --mode random.")
		} else {
			fmt.Fprintln(out, "No questions to ask.")
		}
		eng.EndSession(s)
		return nil
	}

	sc := bufio.NewScanner(in)
	n := 0
	for {
		q, ok, err := eng.NextQuestion(ctx, s)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		n++
		printQuestion(out, n, s.Remaining()+n-1, s.CurrentDeckID(), q)

		answered := false
		for !answered {
			fmt.Fprint(out, "> ")
			if !sc.Scan() {
				return finish(eng, s, out)
			}
			line := sc.Text()
			if strings.TrimSpace(line) == quitCommand {
				return finish(eng, s, out)
			}

			res, err := eng.SubmitAnswer(ctx, s, line)
			var formatErr *grader.InvalidAnswerFormatError
			if errors.As(err, &formatErr) {
				fmt.Fprintf(out, "Could not read that answer (%s). Try again.\n", formatErr.Reason)
				continue
			}
			if err != nil {
				return err
			}
			printVerdict(out, res)
			answered = true
		}
	}
	return finish(eng, s, out)
}

func printQuestion(out io.Writer, n, total int, deckID string, q deck.Question) {
	fmt.Fprintf(out, "\n[%d/%d] %s\n%s\n", n, total, deckID, q.Text)
	for i, o := range q.Options {
		fmt.Fprintf(out, "  %c) %s\n", 'A'+i, o)
	}
	if q.Kind == deck.MultipleChoice {
		fmt.Fprintln(out, "(select all that apply, e.g. A, C)")
	}
}

func printVerdict(out io.Writer, res study.GradeResult) {
	switch {
	case res.Correct && res.Partial:
		fmt.Fprintf(out, "Correct (partial credit). Full answer: %s\n", strings.Join(res.Expected, ", "))
	case res.Correct:
		fmt.Fprintln(out, "Correct!")
	default:
		fmt.Fprintf(out, "Incorrect. Answer: %s\n", strings.Join(res.Expected, ", "))
	}
	if res.State != nil {
		fmt.Fprintf(out, "Next review: %s\n", res.State.DueDate.Format(time.DateOnly))
	}
	if res.Requeued {
		fmt.Fprintln(out, "This question will come back later in the session.")
	}
}

func finish(eng *study.Engine, s *study.Session, out io.Writer) error {
	st := eng.EndSession(s)
	fmt.Fprintf(out, "\nSession finished: %d/%d correct (%.0f%%) in %s, %s per answer.\n",
		st.Correct, st.Asked, st.Accuracy*100,
		st.Elapsed.Round(time.Second), st.AvgResponseTime.Round(100*time.Millisecond))
	return nil
}
