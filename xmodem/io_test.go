package xmodem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

func TestLineBuffersAndTimesOut(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	line := NewLine(a, a)

	go b.Write([]byte{1, 2, 3})
	for want := byte(1); want <= 3; want++ {
		got, err := line.ReadByteTimeout(time.Second)
		if err != nil || got != want {
			t.Fatalf("read: got %d, %v; want %d", got, err, want)
		}
	}

	if _, err := line.ReadByteTimeout(20 * time.Millisecond); !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, err := line.ReadByteTimeout(0); !IsTimeout(err) {
		t.Fatalf("poll on an idle line should time out, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	line.SetContext(ctx)
	cancel()
	if _, err := line.ReadByteTimeout(time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestLinePurge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	line := NewLine(a, a)

	go b.Write([]byte{ACK, ACK, ACK})
	if _, err := line.ReadByteTimeout(time.Second); err != nil {
		t.Fatal(err)
	}
	line.Purge()
	if _, err := line.ReadByteTimeout(20 * time.Millisecond); !IsTimeout(err) {
		t.Fatalf("purged bytes were delivered: %v", err)
	}
}

func TestTransferOverNetPipe(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	data := testPayload(2000, 4)
	cfg := pairConfig()
	cfg.Padding = PaddingStrip
	var out bytes.Buffer

	var so, ro Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		so = Run(context.Background(), NewSender(NewLine(a, a), NewReaderSource(bytes.NewReader(data)), cfg), nil)
	}()
	go func() {
		defer wg.Done()
		ro = Run(context.Background(), NewReceiver(NewLine(b, b), NewWriterSink(&out, PaddingStrip, CPMEOF), cfg), nil)
	}()
	wg.Wait()

	if so.Status != StatusCompleted || ro.Status != StatusCompleted {
		t.Fatalf("sender %v, receiver %v", so, ro)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Fatalf("received %d bytes, want %d", out.Len(), len(data))
	}
}

func TestStreamLine(t *testing.T) {
	pr, pw := io.Pipe()
	var sent bytes.Buffer
	line := NewStreamLine(pr, &sent)
	defer line.Close()

	go pw.Write([]byte("Cx"))
	got, err := line.ReadByteTimeout(time.Second)
	if err != nil || got != CRC {
		t.Fatalf("read: got %q, %v", got, err)
	}
	if got, err := line.ReadByteTimeout(0); err != nil || got != 'x' {
		t.Fatalf("buffered byte: got %q, %v", got, err)
	}
	if _, err := line.ReadByteTimeout(20 * time.Millisecond); !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}

	if err := line.Write([]byte{ACK}); err != nil || !bytes.Equal(sent.Bytes(), []byte{ACK}) {
		t.Fatalf("write: %v, sent % x", err, sent.Bytes())
	}

	pw.Close()
	if _, err := line.ReadByteTimeout(time.Second); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after the writer closed, got %v", err)
	}
}

func TestStreamLineReportsReadError(t *testing.T) {
	pr, pw := io.Pipe()
	line := NewStreamLine(pr, io.Discard)
	defer line.Close()

	boom := errors.New("channel reset")
	pw.CloseWithError(boom)
	if _, err := line.ReadByteTimeout(time.Second); !errors.Is(err, boom) {
		t.Fatalf("expected pump error, got %v", err)
	}
}
