// Package xmodem implements the XMODEM file transfer protocol family
// (XMODEM, XMODEM-CRC, XMODEM-1K) and the YMODEM batch extension.
//
// The protocol engine is a pair of step-driven state machines. A caller
// owns a Sender or Receiver, supplies a Transport and a Source or Sink,
// and calls Advance until the returned Outcome is terminal. Each Advance
// performs one bounded exchange on the transport and returns; the engine
// never allocates per step and never starts goroutines.
//
// The package also provides transport adapters (deadline based lines,
// stream pumps, serial ports, SSH sessions), a Run loop with context
// cancellation and a high-level Session API with callbacks for file
// prompting and progress tracking.
package xmodem

import "fmt"

// Ward Christensen / CP/M control bytes. Don't change these!
const (
	SOH    byte = 0x01 // 128-byte block follows
	STX    byte = 0x02 // 1024-byte block follows
	EOT    byte = 0x04 // end of transmission
	ACK    byte = 0x06
	NAK    byte = 0x15 // negative ack, or checksum mode request
	CAN    byte = 0x18 // cancel
	CRC    byte = 'C'  // send C not NAK to get crc not checksum
	CPMEOF byte = 0x1A // default pad byte for the final block
)

// Block sizes
const (
	BlockSize128 = 128
	BlockSize1K  = 1024
)

const (
	// headerLen covers marker, sequence and complement bytes.
	headerLen = 3

	// MaxFrameLen is the largest frame on the wire: STX block with CRC.
	MaxFrameLen = headerLen + BlockSize1K + 2
)

// abortSequence is sent when this side gives up or is cancelled locally.
// Two CANs are needed by lrzsz style receivers.
var abortSequence = [2]byte{CAN, CAN}

// ControlName returns a human-readable name for a control byte.
// Used for debugging and logging.
func ControlName(b byte) string {
	switch b {
	case SOH:
		return "SOH"
	case STX:
		return "STX"
	case EOT:
		return "EOT"
	case ACK:
		return "ACK"
	case NAK:
		return "NAK"
	case CAN:
		return "CAN"
	case CRC:
		return "C"
	case CPMEOF:
		return "CPMEOF"
	default:
		return fmt.Sprintf("0x%02x", b)
	}
}
