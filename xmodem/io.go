package xmodem

import (
	"context"
	"io"
	"sync"
	"time"
)

// ReaderWithTimeout is an interface for reading with timeout support.
// net.Conn, os.File on pollable descriptors and net.Pipe satisfy it.
type ReaderWithTimeout interface {
	io.Reader
	SetReadDeadline(time.Time) error
}

// pollWindow is the deadline used for zero-timeout reads. Deadline based
// readers fail immediately on an expired deadline without looking at
// pending data, so a poll needs a small window instead.
const pollWindow = time.Millisecond

// Line is a Transport over a reader that supports read deadlines.
// Reads are buffered; a single Read may return a whole frame.
type Line struct {
	reader ReaderWithTimeout
	writer io.Writer
	rbuf   [MaxFrameLen]byte
	rpos   int
	rleft  int
	ctx    context.Context
}

// NewLine creates a deadline based transport.
func NewLine(reader ReaderWithTimeout, writer io.Writer) *Line {
	return &Line{
		reader: reader,
		writer: writer,
		ctx:    context.Background(),
	}
}

// SetContext sets the context for cancellation. Reads fail with the
// context's error once it is done.
func (l *Line) SetContext(ctx context.Context) {
	l.ctx = ctx
}

// ReadByteTimeout reads a single byte, waiting at most timeout.
func (l *Line) ReadByteTimeout(timeout time.Duration) (byte, error) {
	if l.rleft > 0 {
		l.rleft--
		b := l.rbuf[l.rpos]
		l.rpos++
		return b, nil
	}

	if err := l.ctx.Err(); err != nil {
		return 0, err
	}

	if timeout <= 0 {
		timeout = pollWindow
	}
	if err := l.reader.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}

	n, err := l.reader.Read(l.rbuf[:])
	if n == 0 {
		if err == nil {
			err = errTimeout
		}
		return 0, err
	}
	// Bytes that arrived with an error are still delivered; the error
	// will come back on the next read.
	l.rpos = 1
	l.rleft = n - 1
	return l.rbuf[0], nil
}

// Write writes all of buf to the underlying writer.
func (l *Line) Write(buf []byte) error {
	_, err := l.writer.Write(buf)
	return err
}

// Flush flushes the underlying writer if it buffers.
func (l *Line) Flush() error {
	if f, ok := l.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Purge discards any buffered input.
func (l *Line) Purge() {
	l.rleft = 0
	l.rpos = 0
}

// StreamLine is a Transport over a plain io.Reader, such as an SSH
// channel or a pipe from a child process. A goroutine pumps the reader
// into a channel so reads can time out; Close stops it once the
// underlying reader returns.
type StreamLine struct {
	writer io.Writer
	ch     chan []byte
	cur    []byte
	err    error // set by the pump before ch is closed
	done   chan struct{}
	once   sync.Once
}

// NewStreamLine starts pumping reader and returns the transport.
func NewStreamLine(reader io.Reader, writer io.Writer) *StreamLine {
	l := &StreamLine{
		writer: writer,
		ch:     make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go l.pump(reader)
	return l
}

func (l *StreamLine) pump(reader io.Reader) {
	defer close(l.ch)
	for {
		buf := make([]byte, MaxFrameLen)
		n, err := reader.Read(buf)
		if n > 0 {
			select {
			case l.ch <- buf[:n]:
			case <-l.done:
				return
			}
		}
		if err != nil {
			l.err = err
			return
		}
	}
}

func (l *StreamLine) take(buf []byte, ok bool) (byte, error) {
	if !ok {
		if l.err != nil {
			return 0, l.err
		}
		return 0, io.EOF
	}
	l.cur = buf[1:]
	return buf[0], nil
}

// ReadByteTimeout reads a single byte, waiting at most timeout.
func (l *StreamLine) ReadByteTimeout(timeout time.Duration) (byte, error) {
	if len(l.cur) > 0 {
		b := l.cur[0]
		l.cur = l.cur[1:]
		return b, nil
	}

	if timeout <= 0 {
		select {
		case buf, ok := <-l.ch:
			return l.take(buf, ok)
		default:
			return 0, errTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case buf, ok := <-l.ch:
		return l.take(buf, ok)
	case <-timer.C:
		return 0, errTimeout
	}
}

// Write writes all of buf to the underlying writer.
func (l *StreamLine) Write(buf []byte) error {
	_, err := l.writer.Write(buf)
	return err
}

// Flush flushes the underlying writer if it buffers.
func (l *StreamLine) Flush() error {
	if f, ok := l.writer.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close stops the pump. It does not close the reader or writer.
func (l *StreamLine) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
