package xmodem

import "fmt"

// State is the position of a machine in its protocol state machine.
type State int

const (
	// Sender states
	StateAwaitHandshake State = iota
	StateSending
	StateAwaitEOTAck

	// Receiver states
	StateHandshaking
	StateReceiving

	// YMODEM batch states
	StateAwaitHeader   // batch sender waiting for 'C' before a header
	StateSendingHeader // batch sender transmitting block 0
	StateTransferring  // batch machine running the per-file machine

	// Terminal states
	StateDone
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateAwaitHandshake: "AwaitHandshake",
	StateSending:        "Sending",
	StateAwaitEOTAck:    "AwaitEOTAck",
	StateHandshaking:    "Handshaking",
	StateReceiving:      "Receiving",
	StateAwaitHeader:    "AwaitHeader",
	StateSendingHeader:  "SendingHeader",
	StateTransferring:   "Transferring",
	StateDone:           "Done",
	StateCancelled:      "Cancelled",
	StateFailed:         "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// Status is the coarse result of an Advance call.
type Status int

const (
	StatusRunning Status = iota
	StatusCompleted
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Party identifies a side of the transfer.
type Party int

const (
	PartySender Party = iota
	PartyReceiver
)

func (p Party) String() string {
	if p == PartyReceiver {
		return "receiver"
	}
	return "sender"
}

// FailureReason says why a session failed.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonTimeout
	ReasonTooManyRetries
	ReasonTransport
	ReasonStorage
	ReasonProtocol
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTimeout:
		return "timeout"
	case ReasonTooManyRetries:
		return "too many retries"
	case ReasonTransport:
		return "transport"
	case ReasonStorage:
		return "storage"
	case ReasonProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Outcome is the result of a step. Only terminal outcomes (Done) carry a
// meaning beyond "keep going"; a machine produces its terminal outcome once
// and returns the same value from every later call.
type Outcome struct {
	Status Status

	// By is the party that cancelled. Set when Status is StatusCancelled.
	By Party

	// Reason and Err describe a failure. Set when Status is StatusFailed.
	Reason FailureReason
	Err    error
}

var running = Outcome{Status: StatusRunning}

func completed() Outcome {
	return Outcome{Status: StatusCompleted}
}

func cancelledBy(p Party) Outcome {
	return Outcome{Status: StatusCancelled, By: p}
}

func failed(reason FailureReason, err error) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason, Err: err}
}

// Done reports whether the outcome is terminal.
func (o Outcome) Done() bool {
	return o.Status != StatusRunning
}

// Error converts a non-completed terminal outcome into an *Error.
// It returns nil for running and completed outcomes.
func (o Outcome) Error() error {
	switch o.Status {
	case StatusCancelled:
		return NewError(ErrCancelled, "cancelled by "+o.By.String())
	case StatusFailed:
		var t ErrorType
		switch o.Reason {
		case ReasonTimeout:
			t = ErrTimeout
		case ReasonTooManyRetries:
			t = ErrRetriesExhausted
		case ReasonStorage:
			t = ErrStorage
		case ReasonProtocol:
			t = ErrProtocol
		default:
			t = ErrTransport
		}
		return WrapError(t, o.Reason.String(), o.Err)
	}
	return nil
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusCancelled:
		return fmt.Sprintf("cancelled by %s", o.By)
	case StatusFailed:
		if o.Err != nil {
			return fmt.Sprintf("failed (%s): %v", o.Reason, o.Err)
		}
		return fmt.Sprintf("failed (%s)", o.Reason)
	}
	return o.Status.String()
}

// Stats counts what a machine has done so far.
type Stats struct {
	Blocks     int   // blocks acknowledged (sender) or delivered (receiver)
	Bytes      int64 // payload bytes sent or delivered
	Retries    int   // failed attempts over the whole session
	Duplicates int   // duplicate blocks acknowledged without delivery
}
