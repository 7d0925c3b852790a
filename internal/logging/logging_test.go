package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		raw  string
		want zapcore.Level
		ok   bool
	}{
		{"", zapcore.InfoLevel, false},
		{"DEBUG", zapcore.DebugLevel, true},
		{" warn ", zapcore.WarnLevel, true},
		{"error", zapcore.ErrorLevel, true},
		{"off", disabled, true},
		{"loud", zapcore.InfoLevel, false},
	}
	for _, tc := range cases {
		got, ok := parseLevel(tc.raw)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("parseLevel(%q) = %v, %v; want %v, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}

func TestEnvOverridesOptions(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvLogFile, "")

	opts := Options{Level: "error"}
	applyEnvOverrides(&opts)
	if opts.Level != "debug" || !opts.JSON {
		t.Fatalf("env overrides not applied: %+v", opts)
	}

	t.Setenv(EnvLogLevel, "bogus")
	opts = Options{Level: "error"}
	applyEnvOverrides(&opts)
	if opts.Level != "error" {
		t.Fatalf("invalid env level should be ignored, got %q", opts.Level)
	}
}

func TestJSONCoreWritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	logger := zap.New(NewCore(&buf, zapcore.InfoLevel, true))
	logger.Debug("hidden")
	logger.Info("sent block", zap.Int("seq", 3))
	logger.Sync()

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected exactly one JSON entry, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "sent block" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if entry["seq"] != float64(3) {
		t.Fatalf("missing field, got %v", entry)
	}
}

func TestNewWritesToFileWithSessionID(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvLogJSON, "")
	t.Setenv(EnvLogFile, "")

	path := filepath.Join(t.TempDir(), "tool.log")
	logger, closeLog, err := New(Options{Level: "info", File: path, JSON: true, Quiet: true})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hello")
	logger.Sync()
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"session":`) || !strings.Contains(string(data), "hello") {
		t.Fatalf("unexpected log contents %q", data)
	}
}
