package xmodem

import (
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logger interface for XMODEM protocol logging
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// FileLogger writes logs to a file
type FileLogger struct {
	file *os.File
	mu   sync.Mutex
}

// NewFileLogger creates a logger that writes to a file
func NewFileLogger(path string) (*FileLogger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: file}, nil
}

func (l *FileLogger) log(level, format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(l.file, "[%s] %s: %s\n", timestamp, level, msg)
}

func (l *FileLogger) Debug(format string, args ...interface{}) {
	l.log("DEBUG", format, args...)
}

func (l *FileLogger) Info(format string, args ...interface{}) {
	l.log("INFO", format, args...)
}

func (l *FileLogger) Warn(format string, args ...interface{}) {
	l.log("WARN", format, args...)
}

func (l *FileLogger) Error(format string, args ...interface{}) {
	l.log("ERROR", format, args...)
}

func (l *FileLogger) Close() error {
	if l != nil && l.file != nil {
		return l.file.Close()
	}
	return nil
}

// NoopLogger does nothing
type NoopLogger struct{}

func (NoopLogger) Debug(format string, args ...interface{}) {}
func (NoopLogger) Info(format string, args ...interface{})  {}
func (NoopLogger) Warn(format string, args ...interface{})  {}
func (NoopLogger) Error(format string, args ...interface{}) {}

// zapLogger forwards to a zap SugaredLogger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger adapts a zap logger to the Logger interface.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return &zapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *zapLogger) Debug(format string, args ...interface{}) { z.s.Debugf(format, args...) }
func (z *zapLogger) Info(format string, args ...interface{})  { z.s.Infof(format, args...) }
func (z *zapLogger) Warn(format string, args ...interface{})  { z.s.Warnf(format, args...) }
func (z *zapLogger) Error(format string, args ...interface{}) { z.s.Errorf(format, args...) }

// orNoop returns l, or a NoopLogger when l is nil.
func orNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// FormatFrameLog formats a frame for logging with data truncated to the
// first 16 bytes.
func FormatFrameLog(direction string, frame []byte) string {
	if len(frame) == 0 {
		return direction + " <empty>"
	}
	if len(frame) == 1 {
		return fmt.Sprintf("%s %s", direction, ControlName(frame[0]))
	}
	msg := fmt.Sprintf("%s %s", direction, ControlName(frame[0]))
	if size := BlockSizeFor(frame[0]); size > 0 && len(frame) >= headerLen {
		msg += fmt.Sprintf(" seq=%d len=%d", frame[1], len(frame))
		data := frame[headerLen:]
		if len(data) > 16 {
			return msg + fmt.Sprintf(", data=%q...[truncated]", data[:16])
		}
		return msg + fmt.Sprintf(", data=%q", data)
	}
	return msg + fmt.Sprintf(" +%d bytes", len(frame)-1)
}

// LoggingTransport wraps a Transport and logs all traffic at debug level.
// Single bytes are logged by their control name; frames are summarised.
type LoggingTransport struct {
	t      Transport
	logger Logger
	name   string
}

func NewLoggingTransport(t Transport, logger Logger, name string) *LoggingTransport {
	return &LoggingTransport{
		t:      t,
		logger: orNoop(logger),
		name:   name,
	}
}

func (lt *LoggingTransport) ReadByteTimeout(timeout time.Duration) (byte, error) {
	b, err := lt.t.ReadByteTimeout(timeout)
	switch {
	case err == nil:
		lt.logger.Debug("%s: read %s", lt.name, ControlName(b))
	case IsTimeout(err):
		if timeout > 0 {
			lt.logger.Debug("%s: read timed out after %v", lt.name, timeout)
		}
	default:
		lt.logger.Error("%s: read error: %v", lt.name, err)
	}
	return b, err
}

func (lt *LoggingTransport) Write(p []byte) error {
	err := lt.t.Write(p)
	if err != nil {
		lt.logger.Error("%s: write error: %v", lt.name, err)
		return err
	}
	lt.logger.Debug("%s: %s", lt.name, FormatFrameLog("wrote", p))
	return nil
}

// Flush forwards to the wrapped transport when it buffers writes.
func (lt *LoggingTransport) Flush() error {
	if f, ok := lt.t.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
