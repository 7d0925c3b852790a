package xmodem

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/drunlade/go-xmodem/internal/testutil/simlink"
)

func TestFormatFrameLog(t *testing.T) {
	frame := encodeFrame(t, 3, testPayload(BlockSize128, 0), ModeCRC16)
	cases := []struct {
		in   []byte
		want string
	}{
		{nil, "sent <empty>"},
		{[]byte{ACK}, "sent ACK"},
		{[]byte{CAN, CAN}, "sent CAN +1 bytes"},
		{frame, "sent SOH seq=3 len=133, data="},
	}
	for _, tc := range cases {
		got := FormatFrameLog("sent", tc.in)
		if !strings.HasPrefix(got, tc.want) {
			t.Fatalf("FormatFrameLog(% x) = %q, want prefix %q", tc.in, got, tc.want)
		}
	}
	if got := FormatFrameLog("sent", frame); !strings.HasSuffix(got, "...[truncated]") {
		t.Fatalf("long frame not truncated: %q", got)
	}
}

func TestZapLoggerAndLoggingTransport(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	port := simlink.NewScripted()
	port.Inject(NAK)
	lt := NewLoggingTransport(port, logger, "line")

	if b, err := lt.ReadByteTimeout(0); err != nil || b != NAK {
		t.Fatalf("read: %x, %v", b, err)
	}
	if err := lt.Write([]byte{ACK}); err != nil {
		t.Fatal(err)
	}
	if _, err := lt.ReadByteTimeout(0); !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}

	if logs.FilterMessage("line: read NAK").Len() != 1 {
		t.Fatalf("read not logged: %v", logs.All())
	}
	if logs.FilterMessage("line: wrote ACK").Len() != 1 {
		t.Fatalf("write not logged: %v", logs.All())
	}
	// polls that time out are not worth a line each
	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", logs.Len())
	}
	for _, e := range logs.All() {
		if e.Level != zapcore.DebugLevel {
			t.Fatalf("traffic logged at %v", e.Level)
		}
	}

	if _, ok := NewZapLogger(nil).(NoopLogger); !ok {
		t.Fatalf("nil zap logger should give a NoopLogger")
	}
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xmodem.log")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("sent %d blocks", 3)
	l.Warn("slow line")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "INFO: sent 3 blocks") || !strings.Contains(out, "WARN: slow line") {
		t.Fatalf("log contents: %q", out)
	}
}
