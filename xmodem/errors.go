package xmodem

import (
	"errors"
	"fmt"
	"net"
	"os"
)

// Error represents an XMODEM protocol error
type Error struct {
	// Type is the error type
	Type ErrorType

	// Message is a human-readable error message
	Message string

	// Seq is the block sequence number involved, or -1
	Seq int

	// Err is the underlying cause, if any
	Err error
}

// ErrorType categorizes XMODEM errors
type ErrorType int

const (
	// ErrTransport indicates the byte transport failed
	ErrTransport ErrorType = iota

	// ErrDecode indicates a corrupt frame was received
	ErrDecode

	// ErrProtocol indicates an out-of-sequence block or unexpected control byte
	ErrProtocol

	// ErrTimeout indicates a read timed out
	ErrTimeout

	// ErrRetriesExhausted indicates the retry budget ran out
	ErrRetriesExhausted

	// ErrCancelled indicates the transfer was cancelled
	ErrCancelled

	// ErrStorage indicates the source or sink failed
	ErrStorage

	// ErrHeader indicates an invalid YMODEM header block
	ErrHeader
)

func (e *Error) Error() string {
	msg := fmt.Sprintf("xmodem %s: %s", e.Type, e.Message)
	if e.Seq >= 0 {
		msg += fmt.Sprintf(" (block %d)", e.Seq)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (t ErrorType) String() string {
	switch t {
	case ErrTransport:
		return "transport error"
	case ErrDecode:
		return "corrupt block"
	case ErrProtocol:
		return "protocol error"
	case ErrTimeout:
		return "timeout"
	case ErrRetriesExhausted:
		return "retries exhausted"
	case ErrCancelled:
		return "cancelled"
	case ErrStorage:
		return "storage error"
	case ErrHeader:
		return "bad header"
	default:
		return "unknown error"
	}
}

// NewError creates a new XMODEM error
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Seq:     -1,
	}
}

// WrapError creates a new XMODEM error around a cause
func WrapError(errType ErrorType, message string, err error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Seq:     -1,
		Err:     err,
	}
}

// errTimeout is returned by adapters whose underlying reader has no
// timeout error of its own.
var errTimeout = NewError(ErrTimeout, "read timed out")

// IsTimeout checks if an error is a timeout error. Deadline errors from
// os and net are timeouts too, so deadline-based readers need no mapping.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) && e.Type == ErrTimeout {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsCancelled checks if an error indicates cancellation
func IsCancelled(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrCancelled
}

// IsRetriesExhausted checks if an error indicates the retry budget ran out
func IsRetriesExhausted(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == ErrRetriesExhausted
}
