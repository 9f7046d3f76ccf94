package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/p-n-ai/pai-recall/internal/platform/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
			}
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	log.Info("dropped")
	log.Warn("kept", "deck_id", "geo.json")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if rec["msg"] != "kept" || rec["deck_id"] != "geo.json" || rec["level"] != "WARN" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_TextFallback(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: "nonsense", Format: "nonsense"}, &buf)

	log.Debug("dropped")
	log.Info("kept", "questions", 3)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "msg=kept") || !strings.Contains(out, "questions=3") {
		t.Errorf("output = %q, want text record", out)
	}
}
