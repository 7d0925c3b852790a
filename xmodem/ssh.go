package xmodem

import (
	"context"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/ssh"
)

// SSHSession runs lrzsz's XMODEM and YMODEM tools (rx, sx, rb, sb) on a
// remote host and transfers files with them over the SSH channel.
// An ssh.Session runs a single command, so each SSHSession carries out
// one transfer.
type SSHSession struct {
	*Session
	sshSession *ssh.Session
	line       *StreamLine
	stdin      io.WriteCloser
	stderr     io.Reader
}

// NewSSHSession creates a transfer session from an SSH session.
func NewSSHSession(sshSession *ssh.Session, opts ...Option) (*SSHSession, error) {
	stdin, err := sshSession.StdinPipe()
	if err != nil {
		return nil, err
	}

	stdout, err := sshSession.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	stderr, err := sshSession.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, err
	}

	line := NewStreamLine(stdout, stdin)
	return &SSHSession{
		Session:    NewSession(line, opts...),
		sshSession: sshSession,
		line:       line,
		stdin:      stdin,
		stderr:     stderr,
	}, nil
}

// shellQuote quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// remoteCommand builds the lrzsz command line for tool and its arguments.
func (s *SSHSession) remoteCommand(tool string, args ...string) string {
	var b strings.Builder
	b.WriteString(tool)
	switch tool {
	case "rx":
		if s.config.Mode == ModeCRC16 {
			b.WriteString(" -c")
		}
	case "sx", "sb":
		if s.config.BlockSize == BlockSize1K {
			b.WriteString(" -k")
		}
	}
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

// runRemote starts cmd, runs transfer and waits for the remote side.
func (s *SSHSession) runRemote(ctx context.Context, cmd string, transfer func() error) error {
	if ctx == nil {
		ctx = s.ctx
	}
	s.logger.Info("SSH: starting remote %q", cmd)
	if err := s.sshSession.Start(cmd); err != nil {
		return err
	}

	// Wait for command to finish in background
	done := make(chan error, 1)
	go func() {
		done <- s.sshSession.Wait()
	}()

	err := transfer()

	// Close stdin to signal completion
	s.stdin.Close()

	select {
	case err2 := <-done:
		var exitErr *ssh.ExitError
		if err == nil && err2 != nil && !errors.As(err2, &exitErr) {
			err = err2
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	s.line.Close()
	return err
}

// SendFile uploads a local file with XMODEM; the remote runs rx.
func (s *SSHSession) SendFile(ctx context.Context, path, remotePath string) error {
	return s.runRemote(ctx, s.remoteCommand("rx", remotePath), func() error {
		return s.Session.SendFile(ctx, path)
	})
}

// ReceiveFile downloads a remote file with XMODEM; the remote runs sx.
func (s *SSHSession) ReceiveFile(ctx context.Context, remotePath, path string) error {
	return s.runRemote(ctx, s.remoteCommand("sx", remotePath), func() error {
		return s.Session.ReceiveFile(ctx, path)
	})
}

// SendFiles uploads files as a YMODEM batch; the remote runs rb in its
// working directory.
func (s *SSHSession) SendFiles(ctx context.Context, files []FileInfo) error {
	return s.runRemote(ctx, s.remoteCommand("rb"), func() error {
		return s.Session.SendFiles(ctx, files)
	})
}

// ReceiveFiles downloads remote files as a YMODEM batch into dir; the
// remote runs sb.
func (s *SSHSession) ReceiveFiles(ctx context.Context, dir string, remotePaths ...string) (int, error) {
	var n int
	err := s.runRemote(ctx, s.remoteCommand("sb", remotePaths...), func() error {
		var err error
		n, err = s.Session.ReceiveFiles(ctx, dir)
		return err
	})
	return n, err
}

// Close closes the SSH session and cleans up resources.
func (s *SSHSession) Close() error {
	var errs []error

	s.line.Close()
	if s.stdin != nil {
		if err := s.stdin.Close(); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, err)
		}
	}

	if s.sshSession != nil {
		if err := s.sshSession.Close(); err != nil && !errors.Is(err, io.EOF) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Stderr returns the stderr reader for monitoring remote command output.
func (s *SSHSession) Stderr() io.Reader {
	return s.stderr
}
