package xmodem

import "time"

// Transport is the minimal byte channel the protocol engine needs.
//
// ReadByteTimeout waits at most timeout for one byte. A timeout <= 0 polls
// without blocking. When no byte arrives in time it returns an error for
// which IsTimeout is true; any other error is fatal to the session.
//
// Write sends all of p or returns an error, which is fatal to the session.
type Transport interface {
	ReadByteTimeout(timeout time.Duration) (byte, error)
	Write(p []byte) error
}

// Flusher is implemented by transports that buffer writes.
// The machines flush after every frame or control byte they send.
type Flusher interface {
	Flush() error
}

// link wraps a Transport with the helpers shared by all machines.
type link struct {
	t      Transport
	logger Logger
}

func (l *link) send(p []byte) error {
	if err := l.t.Write(p); err != nil {
		return WrapError(ErrTransport, "write failed", err)
	}
	if f, ok := l.t.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return WrapError(ErrTransport, "flush failed", err)
		}
	}
	return nil
}

func (l *link) sendByte(b byte) error {
	buf := [1]byte{b}
	return l.send(buf[:])
}

// recv reads one byte. ok is false on timeout; err is set only for fatal
// transport failures.
func (l *link) recv(timeout time.Duration) (b byte, ok bool, err error) {
	b, err = l.t.ReadByteTimeout(timeout)
	if err != nil {
		if IsTimeout(err) {
			return 0, false, nil
		}
		return 0, false, WrapError(ErrTransport, "read failed", err)
	}
	return b, true, nil
}

// drainLimit bounds how many pending bytes one drain call may discard.
const drainLimit = 2 * MaxFrameLen

// drain discards input that is already waiting, without blocking.
// It reports whether a CAN was among the discarded bytes.
func (l *link) drain() (sawCAN bool, err error) {
	for i := 0; i < drainLimit; i++ {
		b, ok, err := l.recv(0)
		if err != nil {
			return sawCAN, err
		}
		if !ok {
			return sawCAN, nil
		}
		if b == CAN {
			sawCAN = true
		}
	}
	return sawCAN, nil
}

// abort sends the abort sequence, ignoring errors. The session is already
// over when this is called.
func (l *link) abort() {
	if err := l.send(abortSequence[:]); err != nil {
		l.logger.Warn("sending abort sequence: %v", err)
	}
}

// readFrame reads the rest of a frame whose marker byte is already in
// buf[0]. It returns the number of bytes collected; a short count means
// the line went quiet mid-frame.
func (l *link) readFrame(buf []byte, mode Mode, byteTimeout time.Duration) (int, error) {
	size := BlockSizeFor(buf[0])
	want := FrameLen(size, mode)
	n := 1
	for n < want {
		b, ok, err := l.recv(byteTimeout)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		buf[n] = b
		n++
	}
	return n, nil
}
