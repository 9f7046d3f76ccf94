package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

const geoDeck = `{"title": "Geography", "questions": [
  {"id": "fr", "question": "Capital of France?", "answer": "Paris", "category": "europe"},
  {"id": "jp", "question": "Capital of Japan?", "answer": "Tokyo", "category": "asia"}
]}`

// setupEnv points every setting at a fresh temporary directory and returns
// it. The deck directory holds geo.json.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	decks := filepath.Join(dir, "decks")
	if err := os.MkdirAll(decks, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(decks, "geo.json"), []byte(geoDeck), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("LEARN_STORE_DRIVER", "sqlite")
	t.Setenv("LEARN_STORE_PATH", filepath.Join(dir, "data", "recall.db"))
	t.Setenv("LEARN_DECKS_DIR", decks)
	t.Setenv("LEARN_CACHE_URL", "")
	t.Setenv("LEARN_LOG_LEVEL", "error")
	t.Setenv("LEARN_SESSION_SEED", "1")
	return dir
}

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	code, out, errOut := runCLI(t, stdin, args...)
	if code != 0 {
		t.Fatalf("recall %v exited %d: %s", args, code, errOut)
	}
	return out
}

func TestRun_Decks(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "", "decks")
	if !regexp.MustCompile(`geo\.json\s+Geography\s+json\s+2\s+0`).MatchString(out) {
		t.Errorf("decks output = %q", out)
	}
}

func TestRun_StudyReviewPersists(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "Paris\nKyoto\nTokyo\n", "study", "geo.json")
	for _, want := range []string{
		"Capital of France?",
		"Correct!",
		"Incorrect. Answer: Tokyo",
		"come back later",
		"Session finished: 2/3 correct",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("study output missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "", "stats", "geo.json")
	if !regexp.MustCompile(`Attempts:\s+3`).MatchString(out) || !regexp.MustCompile(`Learned:\s+2`).MatchString(out) {
		t.Errorf("stats output = %q", out)
	}

	out = mustRun(t, "", "study")
	if !strings.Contains(out, "Nothing is due") {
		t.Errorf("second study output = %q, want nothing due", out)
	}
}

func TestRun_StudyInvalidAnswerAsksAgain(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "\nParis\n:q\n", "study")
	if !strings.Contains(out, "Could not read that answer (empty answer)") {
		t.Errorf("output = %q, want retry prompt", out)
	}
	if !strings.Contains(out, "Session finished: 1/1 correct") {
		t.Errorf("output = %q, want one graded answer", out)
	}
}

func TestRun_StudyRandomLeavesScheduleAlone(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "x\nx\n", "study", "--mode", "random")
	if !strings.Contains(out, "Session finished: 0/2 correct") {
		t.Errorf("random output = %q", out)
	}
	if strings.Contains(out, "Next review") {
		t.Errorf("random mode printed a schedule: %q", out)
	}

	out = mustRun(t, ":q\n", "study", "--mode", "review")
	if !strings.Contains(out, "[1/2]") {
		t.Errorf("review output = %q, want both questions still due", out)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown mode", []string{"study", "--mode", "cram"}, "unknown mode"},
		{"unknown deck", []string{"study", "nope.json"}, "unknown deck"},
		{"unknown deck stats", []string{"stats", "nope.json"}, "unknown deck"},
		{"reset without force", []string{"reset"}, "--force"},
		{"export without out", []string{"export"}, "out"},
		{"unknown command", []string{"fly"}, "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t)
			code, _, errOut := runCLI(t, "", tt.args...)
			if code != 2 {
				t.Errorf("exit code = %d, want 2", code)
			}
			if !strings.Contains(errOut, tt.wantErr) {
				t.Errorf("stderr = %q, want %q", errOut, tt.wantErr)
			}
		})
	}
}

func TestRun_StoreInitFailure(t *testing.T) {
	dir := setupEnv(t)
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("not a directory"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEARN_STORE_PATH", filepath.Join(blocker, "recall.db"))

	code, _, errOut := runCLI(t, "", "decks")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut, "opening review store") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRun_Reset(t *testing.T) {
	setupEnv(t)
	mustRun(t, "Paris\n:q\n", "study")

	out := mustRun(t, "", "reset", "--force")
	if !strings.Contains(out, "Review history deleted.") {
		t.Errorf("reset output = %q", out)
	}
	out = mustRun(t, "", "stats")
	if !regexp.MustCompile(`Attempts:\s+0`).MatchString(out) || !regexp.MustCompile(`Due today:\s+2`).MatchString(out) {
		t.Errorf("stats after reset = %q", out)
	}
}

func TestRun_Export(t *testing.T) {
	dir := setupEnv(t)
	mustRun(t, "Paris\nTokyo\n", "study")

	path := filepath.Join(dir, "report.xlsx")
	out := mustRun(t, "", "export", "--out", path)
	if !strings.Contains(out, "2 questions and 2 attempts") {
		t.Errorf("export output = %q", out)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	if !slices.Contains(f.GetSheetList(), "Attempts") {
		t.Errorf("sheets = %v", f.GetSheetList())
	}
	rows, err := f.GetRows("Attempts")
	if err != nil || len(rows) != 3 {
		t.Errorf("Attempts rows = %d, %v, want header and 2 attempts", len(rows), err)
	}
}

func TestRun_Init(t *testing.T) {
	dir := setupEnv(t)
	decks := filepath.Join(dir, "fresh")

	out := mustRun(t, "", "init", "--decks", decks)
	if strings.Count(out, "created") != 2 {
		t.Errorf("init output = %q, want two created files", out)
	}
	out = mustRun(t, "", "init", "--decks", decks)
	if strings.Count(out, "exists") != 2 {
		t.Errorf("second init output = %q, want existing files kept", out)
	}

	out = mustRun(t, "", "decks", "--decks", decks)
	for _, re := range []string{
		`python_basics\.json\s+Python Basics\s+json\s+6\s+0`,
		`world_history\.md\s+World History\s+markup\s+5\s+0`,
	} {
		if !regexp.MustCompile(re).MatchString(out) {
			t.Errorf("decks output = %q, want match for %s", out, re)
		}
	}
	if strings.Contains(out, "not loaded") {
		t.Errorf("sample deck failed to load: %q", out)
	}
}
