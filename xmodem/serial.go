package xmodem

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialLine is a Transport over a serial port.
type SerialLine struct {
	port    serial.Port
	timeout time.Duration // read timeout currently set on the port
	rbuf    [MaxFrameLen]byte
	rpos    int
	rleft   int
}

// NewSerialLine wraps an open port.
func NewSerialLine(port serial.Port) *SerialLine {
	return &SerialLine{port: port, timeout: -1}
}

// OpenSerialLine opens name at baud, 8N1.
func OpenSerialLine(name string, baud int) (*SerialLine, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return NewSerialLine(port), nil
}

// ReadByteTimeout reads a single byte, waiting at most timeout. The port
// reports a timeout as a zero-length read.
func (s *SerialLine) ReadByteTimeout(timeout time.Duration) (byte, error) {
	if s.rleft > 0 {
		s.rleft--
		b := s.rbuf[s.rpos]
		s.rpos++
		return b, nil
	}

	if timeout < 0 {
		timeout = 0
	}
	if timeout != s.timeout {
		if err := s.port.SetReadTimeout(timeout); err != nil {
			return 0, err
		}
		s.timeout = timeout
	}

	n, err := s.port.Read(s.rbuf[:])
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errTimeout
	}
	s.rpos = 1
	s.rleft = n - 1
	return s.rbuf[0], nil
}

// Write writes all of buf to the port.
func (s *SerialLine) Write(buf []byte) error {
	for len(buf) > 0 {
		n, err := s.port.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// Flush waits until all written bytes have left the port.
func (s *SerialLine) Flush() error {
	return s.port.Drain()
}

// Purge discards buffered and pending input.
func (s *SerialLine) Purge() error {
	s.rleft = 0
	s.rpos = 0
	return s.port.ResetInputBuffer()
}

// Close closes the port.
func (s *SerialLine) Close() error {
	return s.port.Close()
}
