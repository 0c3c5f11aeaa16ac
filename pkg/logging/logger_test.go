package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Level = %s, want %s", cfg.Level, LevelInfo)
	}
	if cfg.Pretty {
		t.Error("Pretty = true, want false")
	}
	if cfg.File.Path != "" {
		t.Errorf("File.Path = %q, want file logging disabled", cfg.File.Path)
	}
	if cfg.File.MaxSize != 10 || cfg.File.MaxBackups != 3 {
		t.Errorf("rotation = %d MB / %d backups, want 10 / 3", cfg.File.MaxSize, cfg.File.MaxBackups)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"WARNING", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetup_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger := NewLogger("fetch")
	logger.Info().Str("url", "http://example.test/").Msg("fetched page")
	logger.Warn().Int("attempt", 2).Msg("retrying fetch")

	out := buf.String()
	if strings.Contains(out, "fetched page") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, "retrying fetch") {
		t.Errorf("warn record missing from %q", out)
	}
	if !strings.Contains(out, `"component":"fetch"`) {
		t.Errorf("component field missing from %q", out)
	}
}

func TestSetup_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harvester.log")
	buf := &bytes.Buffer{}

	Setup(Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: buf,
		File:   FileConfig{Path: path, MaxSize: 1},
	})

	logger := NewLogger("sink")
	logger.Info().Str("path", "quotes.json").Msg("saved records")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"saved records"`) {
		t.Errorf("log file should hold JSON records, got %q", data)
	}
	if !strings.Contains(buf.String(), "saved records") {
		t.Errorf("console output missing record: %q", buf.String())
	}
}
