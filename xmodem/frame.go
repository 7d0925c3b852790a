package xmodem

import (
	"errors"
	"fmt"
)

// ErrInvalidBlock is returned by Encode for payloads that are not exactly
// one block long, or for a destination buffer that cannot hold the frame.
var ErrInvalidBlock = errors.New("xmodem: invalid block")

// Block is a single decoded protocol block.
//
// Payload is always BlockSize128 or BlockSize1K bytes. When produced by
// Decode it aliases the frame buffer passed in, so it is only valid until
// that buffer is reused.
type Block struct {
	Seq     uint8
	Payload []byte
}

// DecodeReason says why a frame was rejected.
type DecodeReason int

const (
	ReasonBadMarker  DecodeReason = iota // first byte is neither SOH nor STX
	ReasonLength                         // frame length does not match the marker
	ReasonComplement                     // complement byte is not 255-seq
	ReasonValidator                      // checksum or CRC mismatch
)

func (r DecodeReason) String() string {
	switch r {
	case ReasonBadMarker:
		return "bad marker"
	case ReasonLength:
		return "length mismatch"
	case ReasonComplement:
		return "complement mismatch"
	case ReasonValidator:
		return "validator mismatch"
	default:
		return "unknown"
	}
}

// DecodeError reports a corrupt frame. The state machines treat every
// reason the same way; the distinction is for diagnostics.
type DecodeError struct {
	Reason DecodeReason
	Seq    uint8 // sequence byte as received, if the frame got that far
	Len    int   // length of the rejected frame
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("xmodem: corrupt block %d: %s (len=%d)", e.Seq, e.Reason, e.Len)
}

// BlockSizeFor returns the payload size announced by a marker byte,
// or 0 if b does not start a block.
func BlockSizeFor(marker byte) int {
	switch marker {
	case SOH:
		return BlockSize128
	case STX:
		return BlockSize1K
	}
	return 0
}

// FrameLen returns the wire length of a block of size bytes in mode.
func FrameLen(size int, mode Mode) int {
	return headerLen + size + mode.ValidatorLen()
}

// Encode writes the frame for payload into dst and returns its length.
//
// Frame layout:
//
//	marker | seq | 255-seq | payload | checksum (1) or CRC-16 (2, high byte first)
func Encode(dst []byte, seq uint8, payload []byte, mode Mode) (int, error) {
	var marker byte
	switch len(payload) {
	case BlockSize128:
		marker = SOH
	case BlockSize1K:
		marker = STX
	default:
		return 0, ErrInvalidBlock
	}

	n := FrameLen(len(payload), mode)
	if len(dst) < n {
		return 0, ErrInvalidBlock
	}

	dst[0] = marker
	dst[1] = seq
	dst[2] = 0xFF - seq
	copy(dst[headerLen:], payload)
	putValidator(dst[headerLen+len(payload):], payload, mode)
	return n, nil
}

// Decode validates a complete frame and returns the block it carries.
// It never accepts a frame partially: any mismatch yields a *DecodeError.
func Decode(frame []byte, mode Mode) (Block, error) {
	if len(frame) == 0 {
		return Block{}, &DecodeError{Reason: ReasonLength}
	}

	size := BlockSizeFor(frame[0])
	if size == 0 {
		return Block{}, &DecodeError{Reason: ReasonBadMarker, Len: len(frame)}
	}

	var seq uint8
	if len(frame) > 1 {
		seq = frame[1]
	}
	if len(frame) != FrameLen(size, mode) {
		return Block{}, &DecodeError{Reason: ReasonLength, Seq: seq, Len: len(frame)}
	}
	if frame[2] != 0xFF-seq {
		return Block{}, &DecodeError{Reason: ReasonComplement, Seq: seq, Len: len(frame)}
	}

	payload := frame[headerLen : headerLen+size]
	if !validatorOK(frame[headerLen+size:], payload, mode) {
		return Block{}, &DecodeError{Reason: ReasonValidator, Seq: seq, Len: len(frame)}
	}

	return Block{Seq: seq, Payload: payload}, nil
}

// IsDecode reports whether err is a corrupt frame error.
func IsDecode(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
