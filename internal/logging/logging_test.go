package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"notus-gateway/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_ConsoleFormats(t *testing.T) {
	tests := []struct {
		format   string
		wantJSON bool
	}{
		{"json", true},
		{"", true},
		{"text", false},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, cleanup, err := New(&config.LogConfig{Level: "info", Format: tt.format}, &buf)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer cleanup()

			logger.Info("hello", "k", "v")

			isJSON := json.Valid(bytes.TrimSpace(buf.Bytes()))
			if isJSON != tt.wantJSON {
				t.Errorf("output %q: JSON = %v, want %v", buf.String(), isJSON, tt.wantJSON)
			}
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(&config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer cleanup()

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn record missing")
	}
}

func TestNew_WritesRotatedFile(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		t.Run(format, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "logs", "gateway.log")
			var buf bytes.Buffer
			logger, cleanup, err := New(&config.LogConfig{
				Level:      "info",
				Format:     format,
				File:       path,
				MaxSizeMB:  1,
				MaxBackups: 1,
				MaxAgeDays: 1,
			}, &buf)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			logger.With("component", "test").Info("to file", "n", 1)
			cleanup()

			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read log file: %v", err)
			}
			var entry map[string]any
			if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
				t.Fatalf("file line %q is not JSON: %v", data, err)
			}
			if entry["msg"] != "to file" || entry["component"] != "test" {
				t.Errorf("file entry = %v", entry)
			}
			if !strings.Contains(buf.String(), "to file") {
				t.Error("console output missing record")
			}
		})
	}
}
