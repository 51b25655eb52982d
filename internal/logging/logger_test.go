package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Init(Config{Level: "debug", Format: "json", Output: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Init(DefaultConfig())

	logger := Component("holes")
	logger.Debug().Str("satellite", "G05").Msg("counted")

	out := buf.String()
	if !strings.Contains(out, `"component":"holes"`) || !strings.Contains(out, `"satellite":"G05"`) {
		t.Errorf("Unexpected log output: %s", out)
	}
	if !strings.Contains(out, `"time":`) {
		t.Errorf("Expected time field in %s", out)
	}
}

func TestInit_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	if _, err := Init(Config{Level: "warn", Output: &buf}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Init(DefaultConfig())

	Info().Msg("hidden")
	Warn().Msg("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Unexpected log output: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInit_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	var console bytes.Buffer

	f, err := Init(Config{Level: "info", File: path, RetentionDays: 30, Output: &console})
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Init(DefaultConfig())
	defer f.Close()

	Info().Msg("to both")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(console.String(), "to both") {
		t.Errorf("Expected record in file and console")
	}
}

func TestFile_Prune(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	lines := []string{
		`{"level":"info","time":"2024-01-01T10:00:00Z","message":"old"}`,
		`not a json line`,
		`{"level":"info","time":"2024-03-01T10:00:00Z","message":"fresh"}`,
		`continuation without time`,
		`{"level":"info","time":"2024-03-15T11:00:00Z","message":"latest"}`,
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("Failed to write log file: %v", err)
	}

	f, err := OpenFile(path, 30)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	removed, err := f.Prune(now)
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 removed lines, got %d", removed)
	}

	if _, err := f.Write([]byte("appended\n")); err != nil {
		t.Fatalf("Write after prune failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := append(append([]string(nil), lines[2:]...), "appended")
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Unexpected file content:\n%s", data)
	}
}

func TestFile_PruneMissingFile(t *testing.T) {
	f := &File{path: filepath.Join(t.TempDir(), "missing.log"), retention: time.Hour}
	removed, err := f.Prune(time.Now())
	if err != nil || removed != 0 {
		t.Errorf("Expected no-op, got removed=%d err=%v", removed, err)
	}
}
