package report_test

import (
	"bytes"
	"slices"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-recall/internal/report"
	"github.com/p-n-ai/pai-recall/internal/srs"
	"github.com/p-n-ai/pai-recall/internal/store"
)

func sampleReport() report.Report {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	due := time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC)
	return report.Report{
		GeneratedAt: now,
		Scope:       store.Scope{DeckID: "geo.json"},
		Summary: store.Summary{
			Questions:       2,
			Learned:         1,
			Attempts:        4,
			CorrectAttempts: 3,
			Accuracy:        0.75,
			AvgResponseTime: 1500 * time.Millisecond,
			AvgEasiness:     2.55,
		},
		Due: 1,
		Problems: []store.ProblemQuestion{
			{DeckID: "geo.json", QuestionID: "jp", Text: "Capital of Japan?", Category: "asia", Attempts: 3, Correct: 1, Accuracy: 1.0 / 3},
		},
		Schedule: []report.ScheduleRow{
			{Text: "Capital of France?", Category: "europe", State: srs.ReviewState{
				DeckID: "geo.json", QuestionID: "fr", IntervalDays: 1, EasinessFactor: 2.6,
				DueDate: due, RepetitionCount: 1, LastReviewed: &now,
			}},
			{Text: "Capital of Japan?", Category: "asia", State: srs.ReviewState{
				DeckID: "geo.json", QuestionID: "jp", EasinessFactor: 2.5, DueDate: due.AddDate(0, 0, -1),
			}},
		},
		Attempts: []store.Attempt{
			{DeckID: "geo.json", QuestionID: "fr", AnsweredAt: now, GivenAnswer: "paris", Correct: true, ResponseTime: time.Second, Mode: store.ModeReview},
		},
	}
}

func readBack(t *testing.T, r report.Report) *excelize.File {
	t.Helper()
	var buf bytes.Buffer
	if err := report.WriteWorkbook(&buf, r); err != nil {
		t.Fatalf("WriteWorkbook() error = %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteWorkbook_Sheets(t *testing.T) {
	f := readBack(t, sampleReport())

	want := []string{report.SheetSummary, report.SheetProblems, report.SheetSchedule, report.SheetAttempts}
	if got := f.GetSheetList(); !slices.Equal(got, want) {
		t.Errorf("GetSheetList() = %v, want %v", got, want)
	}
}

func TestWriteWorkbook_Rows(t *testing.T) {
	f := readBack(t, sampleReport())

	tests := []struct {
		sheet string
		rows  int
		cell  string
		want  string
	}{
		{report.SheetSummary, 11, "B3", "geo.json"},
		{report.SheetSummary, 11, "B4", "2"},
		{report.SheetSummary, 11, "B6", "1"},
		{report.SheetProblems, 2, "C2", "Capital of Japan?"},
		{report.SheetProblems, 2, "E2", "3"},
		{report.SheetSchedule, 3, "B2", "fr"},
		{report.SheetSchedule, 3, "E2", "2025-03-11"},
		{report.SheetSchedule, 3, "I3", ""},
		{report.SheetAttempts, 2, "E2", "paris"},
		{report.SheetAttempts, 2, "D2", "review"},
	}

	for _, tt := range tests {
		t.Run(tt.sheet+"!"+tt.cell, func(t *testing.T) {
			rows, err := f.GetRows(tt.sheet)
			if err != nil {
				t.Fatalf("GetRows() error = %v", err)
			}
			if len(rows) != tt.rows {
				t.Errorf("GetRows() = %d rows, want %d", len(rows), tt.rows)
			}
			got, err := f.GetCellValue(tt.sheet, tt.cell)
			if err != nil {
				t.Fatalf("GetCellValue() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("%s!%s = %q, want %q", tt.sheet, tt.cell, got, tt.want)
			}
		})
	}
}

func TestWriteWorkbook_Empty(t *testing.T) {
	f := readBack(t, report.Report{GeneratedAt: time.Now()})

	for _, sheet := range []string{report.SheetProblems, report.SheetSchedule, report.SheetAttempts} {
		rows, err := f.GetRows(sheet)
		if err != nil {
			t.Fatalf("GetRows(%s) error = %v", sheet, err)
		}
		if len(rows) != 1 {
			t.Errorf("%s has %d rows, want header only", sheet, len(rows))
		}
	}
	scope, _ := f.GetCellValue(report.SheetSummary, "B3")
	if scope != "all decks" {
		t.Errorf("scope = %q, want all decks", scope)
	}
}
