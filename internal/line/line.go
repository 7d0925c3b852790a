// Package line opens the byte link a transfer runs over: a serial port,
// a TCP connection, or the process's own standard input and output.
package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/drunlade/go-xmodem/internal/config"
	"github.com/drunlade/go-xmodem/xmodem"
)

// DialTimeout bounds the TCP connect.
const DialTimeout = 10 * time.Second

// Link is an open transport plus whatever must be undone when the
// transfer ends.
type Link struct {
	xmodem.Transport

	// Kind is "serial", "tcp" or "stdio".
	Kind string

	closers []func() error
}

// Close releases the link in reverse order of acquisition.
func (l *Link) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}

// Flush forwards to the transport when it buffers writes.
func (l *Link) Flush() error {
	if f, ok := l.Transport.(xmodem.Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (l *Link) onClose(f func() error) {
	l.closers = append(l.closers, f)
}

// Open connects the link described by cfg.
func Open(ctx context.Context, cfg config.LineConfig) (*Link, error) {
	switch {
	case cfg.Device != "":
		return openSerial(cfg.Device, cfg.Baud)
	case cfg.Address != "":
		return openTCP(ctx, cfg.Address)
	default:
		return openStdio(os.Stdin, os.Stdout)
	}
}

func openSerial(device string, baud int) (*Link, error) {
	port, err := xmodem.OpenSerialLine(device, baud)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}
	// Leftovers from a previous session would be read as handshake bytes.
	if err := port.Purge(); err != nil {
		port.Close()
		return nil, fmt.Errorf("purge %s: %w", device, err)
	}
	l := &Link{Transport: port, Kind: "serial"}
	l.onClose(port.Close)
	return l, nil
}

func openTCP(ctx context.Context, address string) (*Link, error) {
	d := net.Dialer{Timeout: DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}

	ln := xmodem.NewLine(conn, conn)
	ln.SetContext(ctx)
	l := &Link{Transport: ln, Kind: "tcp"}
	l.onClose(conn.Close)
	return l, nil
}

// openStdio puts a terminal on stdin into raw mode so control bytes pass
// through untouched, and restores it on Close.
func openStdio(in *os.File, out io.Writer) (*Link, error) {
	l := &Link{Kind: "stdio"}
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, fmt.Errorf("raw mode: %w", err)
		}
		l.onClose(func() error { return term.Restore(fd, state) })
	}

	sl := xmodem.NewStreamLine(in, out)
	l.Transport = sl
	l.onClose(sl.Close)
	return l, nil
}
