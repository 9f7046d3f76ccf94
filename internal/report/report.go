// Package report exports study analytics as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-recall/internal/srs"
	"github.com/p-n-ai/pai-recall/internal/store"
)

// Sheet names, in workbook order.
const (
	SheetSummary  = "Summary"
	SheetProblems = "Problems"
	SheetSchedule = "Schedule"
	SheetAttempts = "Attempts"
)

// ScheduleRow is one question's review state with its text.
type ScheduleRow struct {
	Text     string
	Category string
	State    srs.ReviewState
}

// Report is everything written to the workbook.
type Report struct {
	GeneratedAt time.Time
	Scope       store.Scope
	Summary     store.Summary
	Due         int
	Problems    []store.ProblemQuestion
	Schedule    []ScheduleRow
	Attempts    []store.Attempt
}

// WriteWorkbook writes r as an XLSX workbook with one sheet per section.
func WriteWorkbook(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	for _, name := range []string{SheetProblems, SheetSchedule, SheetAttempts} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("report: creating sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	sw := sheetWriter{f: f, header: bold}

	sw.rows(SheetSummary, []string{"Metric", "Value"}, summaryRows(r))
	sw.rows(SheetProblems, []string{"Deck", "Question ID", "Question", "Category", "Attempts", "Correct", "Accuracy"}, problemRows(r.Problems))
	sw.rows(SheetSchedule, []string{"Deck", "Question ID", "Question", "Category", "Due", "Interval (days)", "Easiness", "Repetitions", "Last reviewed"}, scheduleRows(r.Schedule))
	sw.rows(SheetAttempts, []string{"Answered at", "Deck", "Question ID", "Mode", "Answer", "Correct", "Response (s)"}, attemptRows(r.Attempts))
	if sw.err != nil {
		return sw.err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("report: writing workbook: %w", err)
	}
	return nil
}

// sheetWriter keeps the first error so sheets can be written in sequence.
type sheetWriter struct {
	f      *excelize.File
	header int
	err    error
}

func (sw *sheetWriter) rows(sheet string, header []string, rows [][]any) {
	if sw.err != nil {
		return
	}
	head := make([]any, len(header))
	for i, h := range header {
		head[i] = h
	}
	if err := sw.f.SetSheetRow(sheet, "A1", &head); err != nil {
		sw.err = fmt.Errorf("report: %s header: %w", sheet, err)
		return
	}
	if err := sw.f.SetRowStyle(sheet, 1, 1, sw.header); err != nil {
		sw.err = fmt.Errorf("report: %s header: %w", sheet, err)
		return
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			sw.err = fmt.Errorf("report: %s row %d: %w", sheet, i+2, err)
			return
		}
		if err := sw.f.SetSheetRow(sheet, cell, &row); err != nil {
			sw.err = fmt.Errorf("report: %s row %d: %w", sheet, i+2, err)
			return
		}
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		sw.err = fmt.Errorf("report: %s: %w", sheet, err)
		return
	}
	if err := sw.f.SetColWidth(sheet, "A", last, 18); err != nil {
		sw.err = fmt.Errorf("report: %s: %w", sheet, err)
		return
	}
	err = sw.f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	if err != nil {
		sw.err = fmt.Errorf("report: %s: %w", sheet, err)
	}
}

func summaryRows(r Report) [][]any {
	scope := "all decks"
	if r.Scope.DeckID != "" {
		scope = r.Scope.DeckID
	}
	if r.Scope.Category != "" {
		scope += " / " + r.Scope.Category
	}
	s := r.Summary
	return [][]any{
		{"Generated", r.GeneratedAt.UTC().Format(time.RFC3339)},
		{"Scope", scope},
		{"Questions", s.Questions},
		{"Learned", s.Learned},
		{"Due today", r.Due},
		{"Attempts", s.Attempts},
		{"Correct", s.CorrectAttempts},
		{"Accuracy", round(s.Accuracy)},
		{"Average response (s)", round(s.AvgResponseTime.Seconds())},
		{"Average easiness", round(s.AvgEasiness)},
	}
}

func problemRows(problems []store.ProblemQuestion) [][]any {
	rows := make([][]any, 0, len(problems))
	for _, p := range problems {
		rows = append(rows, []any{p.DeckID, p.QuestionID, p.Text, p.Category, p.Attempts, p.Correct, round(p.Accuracy)})
	}
	return rows
}

func scheduleRows(schedule []ScheduleRow) [][]any {
	rows := make([][]any, 0, len(schedule))
	for _, r := range schedule {
		st := r.State
		last := ""
		if st.LastReviewed != nil {
			last = st.LastReviewed.UTC().Format(time.RFC3339)
		}
		rows = append(rows, []any{
			st.DeckID, st.QuestionID, r.Text, r.Category,
			st.DueDate.Format(time.DateOnly), st.IntervalDays, st.EasinessFactor, st.RepetitionCount, last,
		})
	}
	return rows
}

func attemptRows(attempts []store.Attempt) [][]any {
	rows := make([][]any, 0, len(attempts))
	for _, a := range attempts {
		rows = append(rows, []any{
			a.AnsweredAt.UTC().Format(time.RFC3339), a.DeckID, a.QuestionID, a.Mode,
			a.GivenAnswer, a.Correct, round(a.ResponseTime.Seconds()),
		})
	}
	return rows
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
