package xmodem

import (
	"errors"
	"io"
)

// Source supplies outbound data. NextChunk fills p with up to len(p) bytes
// and returns io.EOF (with n == 0) once no data remains. A short count
// means the data ends inside this chunk.
type Source interface {
	NextChunk(p []byte) (int, error)
}

// Sink receives inbound blocks. data aliases the receiver's frame buffer
// and must be copied if retained past the call.
type Sink interface {
	Deliver(seq uint8, data []byte) error
}

// Finisher is implemented by sinks that need to know the transfer
// completed, for example to flush a held-back final block.
type Finisher interface {
	Finish() error
}

// readerSource adapts an io.Reader with full-read semantics so that only
// the final chunk is ever short.
type readerSource struct {
	r   io.Reader
	eof bool
}

// NewReaderSource returns a Source reading from r.
func NewReaderSource(r io.Reader) Source {
	return &readerSource{r: r}
}

func (s *readerSource) NextChunk(p []byte) (int, error) {
	if s.eof {
		return 0, io.EOF
	}
	n, err := io.ReadFull(s.r, p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		s.eof = true
		return 0, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.eof = true
		return n, nil
	default:
		return n, err
	}
}

// Padding selects what the receiver does with the final block of a plain
// XMODEM transfer, whose true length is unknown.
type Padding int

const (
	// PaddingKeep writes every received byte, padding included.
	PaddingKeep Padding = iota

	// PaddingStrip drops trailing pad bytes from the final block.
	PaddingStrip
)

func (p Padding) String() string {
	if p == PaddingStrip {
		return "strip"
	}
	return "keep"
}

// WriterSink writes delivered blocks to an io.Writer.
//
// The most recent block is held back until the next one arrives, because
// only the final block carries padding. Finish writes it out with the
// padding policy applied. When a size limit is set (YMODEM headers supply
// one) output is truncated at exactly that many bytes and the padding
// policy is not needed.
type WriterSink struct {
	w       io.Writer
	policy  Padding
	pad     byte
	limit   int64
	written int64

	held    [BlockSize1K]byte
	heldLen int
}

// NewWriterSink returns a sink writing to w.
func NewWriterSink(w io.Writer, policy Padding, pad byte) *WriterSink {
	return &WriterSink{w: w, policy: policy, pad: pad, limit: -1}
}

// Limit truncates output at size bytes. A negative size removes the limit.
func (s *WriterSink) Limit(size int64) {
	s.limit = size
}

// Written returns the number of bytes written to the underlying writer.
func (s *WriterSink) Written() int64 {
	return s.written
}

func (s *WriterSink) Deliver(seq uint8, data []byte) error {
	if s.heldLen > 0 {
		if err := s.write(s.held[:s.heldLen]); err != nil {
			return err
		}
	}
	s.heldLen = copy(s.held[:], data)
	return nil
}

func (s *WriterSink) Finish() error {
	if s.heldLen == 0 {
		return nil
	}
	last := s.held[:s.heldLen]
	s.heldLen = 0
	if s.limit < 0 && s.policy == PaddingStrip {
		end := len(last)
		for end > 0 && last[end-1] == s.pad {
			end--
		}
		last = last[:end]
	}
	return s.write(last)
}

func (s *WriterSink) write(p []byte) error {
	if s.limit >= 0 {
		room := s.limit - s.written
		if room <= 0 {
			return nil
		}
		if int64(len(p)) > room {
			p = p[:room]
		}
	}
	n, err := s.w.Write(p)
	s.written += int64(n)
	return err
}
