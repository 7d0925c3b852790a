// Package logging builds the zap loggers used by the command-line tools.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogLevel = "XMODEM_LOG_LEVEL"
	EnvLogJSON  = "XMODEM_LOG_JSON"
	EnvLogFile  = "XMODEM_LOG_FILE"
)

type Options struct {
	Level string
	File  string
	JSON  bool

	// Quiet disables output to stderr. File logging still works. Used
	// when the transfer itself runs over the terminal.
	Quiet bool
}

// New builds a logger from opts with environment overrides applied.
// Every entry carries a per-run session id. The returned func closes the
// log file, if any.
func New(opts Options) (*zap.Logger, func(), error) {
	applyEnvOverrides(&opts)

	level, ok := parseLevel(opts.Level)
	if !ok {
		level = zapcore.InfoLevel
	}
	if level == disabled {
		return zap.NewNop(), func() {}, nil
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	switch {
	case opts.File != "":
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = f
		closer = func() { f.Close() }
	case opts.Quiet:
		return zap.NewNop(), func() {}, nil
	}

	logger := zap.New(NewCore(w, level, opts.JSON)).With(zap.String("session", uuid.NewString()))
	return logger, closer, nil
}

// NewCore returns a core writing to w with the tools' encoder settings.
func NewCore(w io.Writer, level zapcore.Level, json bool) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	var enc zapcore.Encoder
	if json {
		enc = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewCore(enc, zapcore.AddSync(w), level)
}

func applyEnvOverrides(opts *Options) {
	if raw := strings.TrimSpace(os.Getenv(EnvLogLevel)); raw != "" {
		if _, ok := parseLevel(raw); ok {
			opts.Level = raw
		}
	}
	if v, ok := parseBool(os.Getenv(EnvLogJSON)); ok {
		opts.JSON = v
	}
	if f := strings.TrimSpace(os.Getenv(EnvLogFile)); f != "" {
		opts.File = f
	}
}

// disabled is above every real level.
const disabled = zapcore.FatalLevel + 1

func parseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zapcore.InfoLevel, false
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return disabled, true
	default:
		return zapcore.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
