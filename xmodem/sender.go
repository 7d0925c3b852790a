package xmodem

import (
	"errors"
	"io"
)

// Sender transmits one file. It waits for the receiver's handshake byte,
// which fixes the validation mode, then sends numbered blocks starting at 1
// and finishes with EOT.
//
// A Sender is owned by one goroutine; Advance must not be called
// concurrently.
type Sender struct {
	core
	src Source
	cfg *Config

	mode   Mode
	seq    uint8
	resend bool // write the current frame before the next read

	dataLen  int // source bytes carried by the current frame
	frameLen int
	chunk    [BlockSize1K]byte
	frame    [MaxFrameLen]byte
}

// NewSender creates a sender reading from src. A nil cfg uses DefaultConfig.
func NewSender(t Transport, src Source, cfg *Config) *Sender {
	s := new(Sender)
	s.init(t, src, cfg.clone())
	return s
}

// init resets s in place so batch machines can reuse one Sender per file.
func (s *Sender) init(t Transport, src Source, cfg *Config) {
	*s = Sender{
		core:   newCore(t, cfg.Logger, PartySender, StateAwaitHandshake),
		src:    src,
		cfg:    cfg,
		seq:    1,
		resend: true,
	}
}

// Mode returns the validation mode chosen by the receiver. It is only
// meaningful once the handshake is over.
func (s *Sender) Mode() Mode { return s.mode }

// Seq returns the sequence number of the block in flight.
func (s *Sender) Seq() uint8 { return s.seq }

// Advance performs one step of the transfer. Once the returned outcome is
// terminal, later calls return it again without touching the transport.
func (s *Sender) Advance() Outcome {
	switch s.state {
	case StateAwaitHandshake:
		return s.awaitHandshake()
	case StateSending:
		return s.sendBlock()
	case StateAwaitEOTAck:
		return s.sendEOT()
	}
	return s.outcome
}

func (s *Sender) awaitHandshake() Outcome {
	b, ok, err := s.recv(s.cfg.Timeout)
	if err != nil {
		return s.fail(ReasonTransport, err)
	}
	if ok {
		if b == CAN {
			return s.cancelled()
		}
		if mode, ok := ModeFromRequest(b); ok {
			s.mode = mode
			s.retries = 0
			s.logger.Info("sender: receiver requested %s mode", mode)
			return s.loadNext()
		}
		s.logger.Debug("sender: ignoring %s during handshake", ControlName(b))
	}
	return s.retry(s.cfg.HandshakeRetries, ReasonTimeout, "no handshake from receiver")
}

// loadNext reads the next chunk from the source and encodes its frame.
// The data cursor only moves here, after the previous block was ACKed.
func (s *Sender) loadNext() Outcome {
	size := s.cfg.BlockSize
	n, err := s.src.NextChunk(s.chunk[:size])
	switch {
	case err != nil && !errors.Is(err, io.EOF):
		return s.fail(ReasonStorage, WrapError(ErrStorage, "reading source", err))
	case n == 0:
		s.state = StateAwaitEOTAck
		return running
	}

	if n < size {
		if size == BlockSize1K && s.cfg.ShortFinalBlock && n <= BlockSize128 {
			size = BlockSize128
		}
		for i := n; i < size; i++ {
			s.chunk[i] = s.cfg.PadByte
		}
	}

	fl, err := Encode(s.frame[:], s.seq, s.chunk[:size], s.mode)
	if err != nil {
		return s.fail(ReasonProtocol, err)
	}
	s.frameLen = fl
	s.dataLen = n
	s.resend = true
	s.state = StateSending
	return running
}

// purge discards stale input before a transmission. A CAN among it ends
// the session before anything is written.
func (s *Sender) purge() (Outcome, bool) {
	sawCAN, err := s.drain()
	if err != nil {
		return s.fail(ReasonTransport, err), true
	}
	if sawCAN {
		return s.cancelled(), true
	}
	return running, false
}

func (s *Sender) sendBlock() Outcome {
	if s.resend {
		if o, stop := s.purge(); stop {
			return o
		}
		if err := s.send(s.frame[:s.frameLen]); err != nil {
			return s.fail(ReasonTransport, err)
		}
	}

	b, ok, err := s.recv(s.cfg.Timeout)
	if err != nil {
		return s.fail(ReasonTransport, err)
	}
	if !ok {
		s.resend = true
		return s.retry(s.cfg.MaxRetries, ReasonTooManyRetries, "timeout waiting for ACK")
	}

	switch b {
	case ACK:
		s.stats.Blocks++
		s.stats.Bytes += int64(s.dataLen)
		s.seq++
		s.retries = 0
		return s.loadNext()
	case NAK:
		s.resend = true
		return s.retry(s.cfg.MaxRetries, ReasonTooManyRetries, "block NAKed")
	case CAN:
		return s.cancelled()
	default:
		s.resend = false
		return s.retry(s.cfg.MaxRetries, ReasonTooManyRetries, "unexpected "+ControlName(b)+" after block")
	}
}

func (s *Sender) sendEOT() Outcome {
	if o, stop := s.purge(); stop {
		return o
	}
	if err := s.sendByte(EOT); err != nil {
		return s.fail(ReasonTransport, err)
	}

	b, ok, err := s.recv(s.cfg.Timeout)
	if err != nil {
		return s.fail(ReasonTransport, err)
	}
	if !ok {
		return s.retry(s.cfg.MaxRetries, ReasonTooManyRetries, "timeout waiting for EOT ACK")
	}
	switch b {
	case ACK:
		s.logger.Info("sender: transfer complete, %d blocks", s.stats.Blocks)
		return s.finish(completed())
	case CAN:
		return s.cancelled()
	default:
		return s.retry(s.cfg.MaxRetries, ReasonTooManyRetries, ControlName(b)+" after EOT")
	}
}
