package xmodem

// Receiver accepts one file. It requests a validation mode, then ACKs
// each good block in sequence and hands its payload to the sink exactly
// once, until the sender signals EOT.
//
// A Receiver is owned by one goroutine; Advance must not be called
// concurrently.
type Receiver struct {
	core
	sink Sink
	cfg  *Config

	mode      Mode
	expected  uint8
	requested bool // first handshake request written
	requests  int  // handshake requests written so far
	eotSeen   bool

	frame [MaxFrameLen]byte
}

// NewReceiver creates a receiver delivering to sink. A nil cfg uses
// DefaultConfig.
func NewReceiver(t Transport, sink Sink, cfg *Config) *Receiver {
	r := new(Receiver)
	r.init(t, sink, cfg.clone())
	return r
}

func (r *Receiver) init(t Transport, sink Sink, cfg *Config) {
	*r = Receiver{
		core:     newCore(t, cfg.Logger, PartyReceiver, StateHandshaking),
		sink:     sink,
		cfg:      cfg,
		mode:     cfg.Mode,
		expected: 1,
	}
}

// Mode returns the validation mode in use. During the handshake this is
// the mode of the last request sent.
func (r *Receiver) Mode() Mode { return r.mode }

// Expected returns the sequence number of the next block to deliver.
func (r *Receiver) Expected() uint8 { return r.expected }

// Advance performs one step of the transfer. Once the returned outcome is
// terminal, later calls return it again without touching the transport.
func (r *Receiver) Advance() Outcome {
	switch r.state {
	case StateHandshaking:
		return r.handshake()
	case StateReceiving:
		return r.receive()
	}
	return r.outcome
}

func (r *Receiver) request() error {
	r.requests++
	r.logger.Debug("receiver: requesting %s mode (attempt %d)", r.mode, r.requests)
	return r.sendByte(r.mode.RequestByte())
}

// handshake writes the request byte on the first call and afterwards only
// when the previous wait timed out, so a CAN waiting on the line is seen
// before anything else is written.
func (r *Receiver) handshake() Outcome {
	if !r.requested {
		r.requested = true
		if err := r.request(); err != nil {
			return r.fail(ReasonTransport, err)
		}
	}

	b, ok, err := r.recv(r.cfg.Timeout)
	if err != nil {
		return r.fail(ReasonTransport, err)
	}
	if !ok {
		if o := r.retry(r.cfg.HandshakeRetries, ReasonTimeout, "no response to handshake"); o.Done() {
			return o
		}
		if r.mode == ModeCRC16 && r.cfg.CRCAttempts > 0 && r.requests >= r.cfg.CRCAttempts {
			r.logger.Info("receiver: no answer to CRC requests, falling back to checksum")
			r.mode = ModeChecksum
		}
		if err := r.request(); err != nil {
			return r.fail(ReasonTransport, err)
		}
		return running
	}

	switch b {
	case SOH, STX:
		return r.block(b)
	case EOT:
		return r.endOfTransfer()
	case CAN:
		return r.cancelled()
	}
	r.logger.Debug("receiver: ignoring %s during handshake", ControlName(b))
	return r.retry(r.cfg.HandshakeRetries, ReasonTimeout, "garbage during handshake")
}

func (r *Receiver) receive() Outcome {
	b, ok, err := r.recv(r.cfg.Timeout)
	if err != nil {
		return r.fail(ReasonTransport, err)
	}
	if !ok {
		return r.nak("timeout waiting for block")
	}

	switch b {
	case SOH, STX:
		return r.block(b)
	case EOT:
		return r.endOfTransfer()
	case CAN:
		return r.cancelled()
	}
	return r.nak("unexpected " + ControlName(b))
}

// limit returns the retry budget and failure reason for the current state.
func (r *Receiver) limit() (int, FailureReason) {
	if r.state == StateHandshaking {
		return r.cfg.HandshakeRetries, ReasonTimeout
	}
	return r.cfg.MaxRetries, ReasonTooManyRetries
}

// nak counts a failed attempt and asks for a retransmission.
func (r *Receiver) nak(what string) Outcome {
	limit, reason := r.limit()
	if o := r.retry(limit, reason, what); o.Done() {
		return o
	}
	if err := r.sendByte(NAK); err != nil {
		return r.fail(ReasonTransport, err)
	}
	return running
}

func (r *Receiver) ack() Outcome {
	if err := r.sendByte(ACK); err != nil {
		return r.fail(ReasonTransport, err)
	}
	return running
}

// block reads and handles a frame whose marker has just been read.
// The receiver leaves the handshake only once it accepts a new block, so
// a repeated block 0 from a YMODEM sender that lost our ACK is answered
// while still handshaking.
func (r *Receiver) block(marker byte) Outcome {
	r.frame[0] = marker
	n, err := r.readFrame(r.frame[:], r.mode, r.cfg.ByteTimeout)
	if err != nil {
		return r.fail(ReasonTransport, err)
	}

	blk, err := Decode(r.frame[:n], r.mode)
	if err != nil {
		r.logger.Debug("receiver: %v", err)
		sawCAN, err := r.drain()
		if err != nil {
			return r.fail(ReasonTransport, err)
		}
		if sawCAN {
			return r.cancelled()
		}
		return r.nak("corrupt block")
	}

	switch blk.Seq {
	case r.expected:
		if err := r.sink.Deliver(blk.Seq, blk.Payload); err != nil {
			return r.fail(ReasonStorage, WrapError(ErrStorage, "delivering block", err))
		}
		r.state = StateReceiving
		r.stats.Blocks++
		r.stats.Bytes += int64(len(blk.Payload))
		r.expected++
		r.retries = 0
		r.eotSeen = false
		return r.ack()

	case r.expected - 1:
		r.stats.Duplicates++
		r.logger.Debug("receiver: duplicate block %d", blk.Seq)
		limit, reason := r.limit()
		if o := r.retry(limit, reason, "duplicate block"); o.Done() {
			return o
		}
		return r.ack()
	}

	r.logger.Warn("receiver: block %d out of sequence, expected %d", blk.Seq, r.expected)
	return r.nak("block out of sequence")
}

func (r *Receiver) endOfTransfer() Outcome {
	r.state = StateReceiving
	if r.cfg.ConfirmEOT && !r.eotSeen {
		r.eotSeen = true
		r.logger.Debug("receiver: NAKing first EOT")
		if err := r.sendByte(NAK); err != nil {
			return r.fail(ReasonTransport, err)
		}
		return running
	}

	if f, ok := r.sink.(Finisher); ok {
		if err := f.Finish(); err != nil {
			return r.fail(ReasonStorage, WrapError(ErrStorage, "finishing output", err))
		}
	}
	if err := r.sendByte(ACK); err != nil {
		return r.fail(ReasonTransport, err)
	}
	r.logger.Info("receiver: transfer complete, %d blocks", r.stats.Blocks)
	return r.finish(completed())
}
