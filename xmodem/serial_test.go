package xmodem

import (
	"bytes"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakePort implements the parts of serial.Port a SerialLine uses.
type fakePort struct {
	serial.Port

	in       []byte
	out      bytes.Buffer
	chunk    int // max bytes per Write call
	timeouts []time.Duration
	drained  int
	resets   int
}

func (p *fakePort) Read(b []byte) (int, error) {
	n := copy(b, p.in)
	p.in = p.in[n:]
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	if p.chunk > 0 && len(b) > p.chunk {
		b = b[:p.chunk]
	}
	return p.out.Write(b)
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeouts = append(p.timeouts, t)
	return nil
}

func (p *fakePort) Drain() error            { p.drained++; return nil }
func (p *fakePort) ResetInputBuffer() error { p.resets++; return nil }

func TestSerialLine(t *testing.T) {
	port := &fakePort{in: []byte{CRC, ACK}, chunk: 7}
	line := NewSerialLine(port)

	for _, want := range []byte{CRC, ACK} {
		b, err := line.ReadByteTimeout(time.Second)
		if err != nil || b != want {
			t.Fatalf("read: %s, %v", ControlName(b), err)
		}
	}
	if _, err := line.ReadByteTimeout(time.Second); !IsTimeout(err) {
		t.Fatalf("empty read should be a timeout, got %v", err)
	}
	if _, err := line.ReadByteTimeout(0); !IsTimeout(err) {
		t.Fatalf("poll should time out, got %v", err)
	}
	// the port timeout is only changed when it differs
	if len(port.timeouts) != 2 || port.timeouts[0] != time.Second || port.timeouts[1] != 0 {
		t.Fatalf("SetReadTimeout calls %v", port.timeouts)
	}

	frame := encodeFrame(t, 1, testPayload(BlockSize128, 1), ModeCRC16)
	if err := line.Write(frame); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(port.out.Bytes(), frame) {
		t.Fatalf("short writes not completed")
	}

	line.Flush()
	port.in = []byte{NAK, NAK}
	line.ReadByteTimeout(0)
	line.Purge()
	if port.drained != 1 || port.resets != 1 {
		t.Fatalf("drained=%d resets=%d", port.drained, port.resets)
	}
	if _, err := line.ReadByteTimeout(0); !IsTimeout(err) {
		t.Fatalf("purged input delivered: %v", err)
	}
}
