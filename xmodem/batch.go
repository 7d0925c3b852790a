package xmodem

import (
	"errors"
	"io"
)

// BatchSender sends a YMODEM batch. For each file it waits for the
// receiver's 'C', sends the header in block 0 and, once that is ACKed,
// runs a Sender for the file body. An empty block 0 ends the batch.
type BatchSender struct {
	core
	files FileSource
	cfg   *Config

	inner   Sender
	current Header
	count   int
	last    bool // block 0 in flight is the end-of-batch block
	resend  bool

	done     Stats // counters of completed files
	frameLen int
	payload  [BlockSize1K]byte
	frame    [MaxFrameLen]byte
}

// NewBatchSender creates a batch sender. A nil cfg uses YModemConfig.
func NewBatchSender(t Transport, files FileSource, cfg *Config) *BatchSender {
	if cfg == nil {
		cfg = YModemConfig()
	}
	cfg = cfg.clone()
	return &BatchSender{
		core:  newCore(t, cfg.Logger, PartySender, StateAwaitHeader),
		files: files,
		cfg:   cfg,
	}
}

// Current returns the header of the file being sent.
func (b *BatchSender) Current() Header { return b.current }

// Files returns the number of files sent completely.
func (b *BatchSender) Files() int { return b.count }

// Stats returns counters summed over all files so far.
func (b *BatchSender) Stats() Stats {
	st := b.done
	if b.state == StateTransferring {
		st = addStats(st, b.inner.Stats())
	}
	st.Retries += b.stats.Retries
	return st
}

func (b *BatchSender) Advance() Outcome {
	switch b.state {
	case StateAwaitHeader:
		return b.awaitRequest()
	case StateSendingHeader:
		return b.sendHeader()
	case StateTransferring:
		return b.transfer()
	}
	return b.outcome
}

func (b *BatchSender) awaitRequest() Outcome {
	c, ok, err := b.recv(b.cfg.Timeout)
	if err != nil {
		return b.fail(ReasonTransport, err)
	}
	if ok {
		switch c {
		case CRC:
			b.retries = 0
			return b.loadHeader()
		case CAN:
			return b.cancelled()
		}
		b.logger.Debug("batch sender: ignoring %s while waiting for header request", ControlName(c))
	}
	return b.retry(b.cfg.HandshakeRetries, ReasonTimeout, "no header request from receiver")
}

func (b *BatchSender) loadHeader() Outcome {
	h, src, err := b.files.NextFile()
	switch {
	case errors.Is(err, io.EOF):
		b.last = true
		b.current = Header{}
	case err != nil:
		return b.fail(ReasonStorage, WrapError(ErrStorage, "opening next file", err))
	default:
		b.last = false
		b.current = h
		b.inner.init(b.t, src, b.cfg)
	}

	size, err := EncodeHeader(b.payload[:], b.current)
	if err != nil {
		return b.fail(ReasonProtocol, err)
	}
	fl, err := Encode(b.frame[:], 0, b.payload[:size], ModeCRC16)
	if err != nil {
		return b.fail(ReasonProtocol, err)
	}
	b.frameLen = fl
	b.resend = true
	b.state = StateSendingHeader
	if !b.last {
		b.logger.Info("batch sender: sending header for %q (%d bytes)", b.current.Name, b.current.Size)
	}
	return running
}

func (b *BatchSender) sendHeader() Outcome {
	if b.resend {
		sawCAN, err := b.drain()
		if err != nil {
			return b.fail(ReasonTransport, err)
		}
		if sawCAN {
			return b.cancelled()
		}
		if err := b.send(b.frame[:b.frameLen]); err != nil {
			return b.fail(ReasonTransport, err)
		}
	}

	c, ok, err := b.recv(b.cfg.Timeout)
	if err != nil {
		return b.fail(ReasonTransport, err)
	}
	if !ok {
		b.resend = true
		return b.retry(b.cfg.MaxRetries, ReasonTooManyRetries, "timeout waiting for header ACK")
	}

	switch c {
	case ACK:
		b.retries = 0
		if b.last {
			b.logger.Info("batch sender: batch complete, %d files", b.count)
			return b.finish(completed())
		}
		b.state = StateTransferring
		return running
	case NAK, CRC:
		b.resend = true
		return b.retry(b.cfg.MaxRetries, ReasonTooManyRetries, "header rejected")
	case CAN:
		return b.cancelled()
	}
	b.resend = false
	return b.retry(b.cfg.MaxRetries, ReasonTooManyRetries, "unexpected "+ControlName(c)+" after header")
}

func (b *BatchSender) transfer() Outcome {
	o := b.inner.Advance()
	switch o.Status {
	case StatusRunning:
		return running
	case StatusCompleted:
		b.done = addStats(b.done, b.inner.Stats())
		b.count++
		b.state = StateAwaitHeader
		return running
	}
	// The inner machine already did any signalling the outcome needed.
	return b.finish(o)
}

// BatchReceiver receives a YMODEM batch. It requests headers with 'C',
// opens a sink for each file through the FileSink and runs a Receiver in
// CRC mode with confirmed EOT for the file body, until the empty block 0.
type BatchReceiver struct {
	core
	files FileSink
	cfg   *Config
	inner Receiver
	fcfg  *Config // per-file receiver config

	current   Header
	count     int
	requested bool

	done  Stats
	frame [MaxFrameLen]byte
}

// NewBatchReceiver creates a batch receiver. A nil cfg uses YModemConfig.
func NewBatchReceiver(t Transport, files FileSink, cfg *Config) *BatchReceiver {
	if cfg == nil {
		cfg = YModemConfig()
	}
	cfg = cfg.clone()
	fcfg := cfg.clone()
	fcfg.Mode = ModeCRC16
	fcfg.CRCAttempts = 0
	fcfg.ConfirmEOT = true
	return &BatchReceiver{
		core:  newCore(t, cfg.Logger, PartyReceiver, StateAwaitHeader),
		files: files,
		cfg:   cfg,
		fcfg:  fcfg,
	}
}

// Current returns the header of the file being received.
func (b *BatchReceiver) Current() Header { return b.current }

// Files returns the number of files received completely.
func (b *BatchReceiver) Files() int { return b.count }

// Stats returns counters summed over all files so far.
func (b *BatchReceiver) Stats() Stats {
	st := b.done
	if b.state == StateTransferring {
		st = addStats(st, b.inner.Stats())
	}
	st.Retries += b.stats.Retries
	st.Duplicates += b.stats.Duplicates
	return st
}

func (b *BatchReceiver) Advance() Outcome {
	switch b.state {
	case StateAwaitHeader:
		return b.awaitHeader()
	case StateTransferring:
		return b.transfer()
	}
	return b.outcome
}

func (b *BatchReceiver) awaitHeader() Outcome {
	if !b.requested {
		b.requested = true
		if err := b.sendByte(CRC); err != nil {
			return b.fail(ReasonTransport, err)
		}
	}

	c, ok, err := b.recv(b.cfg.Timeout)
	if err != nil {
		return b.fail(ReasonTransport, err)
	}
	if !ok {
		if o := b.retry(b.cfg.HandshakeRetries, ReasonTimeout, "no header from sender"); o.Done() {
			return o
		}
		if err := b.sendByte(CRC); err != nil {
			return b.fail(ReasonTransport, err)
		}
		return running
	}

	switch c {
	case SOH, STX:
		return b.header(c)
	case EOT:
		// The sender missed our ACK of its last EOT.
		b.stats.Duplicates++
		if o := b.retry(b.cfg.MaxRetries, ReasonTooManyRetries, "repeated EOT"); o.Done() {
			return o
		}
		if err := b.sendByte(ACK); err != nil {
			return b.fail(ReasonTransport, err)
		}
		return running
	case CAN:
		return b.cancelled()
	}
	b.logger.Debug("batch receiver: ignoring %s while waiting for header", ControlName(c))
	return b.retry(b.cfg.HandshakeRetries, ReasonTimeout, "garbage while waiting for header")
}

func (b *BatchReceiver) nak(what string) Outcome {
	if o := b.retry(b.cfg.MaxRetries, ReasonTooManyRetries, what); o.Done() {
		return o
	}
	if err := b.sendByte(NAK); err != nil {
		return b.fail(ReasonTransport, err)
	}
	return running
}

func (b *BatchReceiver) header(marker byte) Outcome {
	b.frame[0] = marker
	n, err := b.readFrame(b.frame[:], ModeCRC16, b.cfg.ByteTimeout)
	if err != nil {
		return b.fail(ReasonTransport, err)
	}
	blk, err := Decode(b.frame[:n], ModeCRC16)
	if err != nil {
		b.logger.Debug("batch receiver: %v", err)
		sawCAN, err := b.drain()
		if err != nil {
			return b.fail(ReasonTransport, err)
		}
		if sawCAN {
			return b.cancelled()
		}
		return b.nak("corrupt header")
	}
	if blk.Seq != 0 {
		return b.nak("expected block 0")
	}

	h, end, err := ParseHeader(blk.Payload)
	if err != nil {
		return b.fail(ReasonProtocol, err)
	}
	if end {
		if err := b.sendByte(ACK); err != nil {
			return b.fail(ReasonTransport, err)
		}
		b.logger.Info("batch receiver: batch complete, %d files", b.count)
		return b.finish(completed())
	}

	sink, err := b.files.OpenFile(h)
	if err != nil {
		return b.fail(ReasonStorage, WrapError(ErrStorage, "opening "+h.Name, err))
	}
	if sink == nil {
		b.logger.Info("batch receiver: skipping %q", h.Name)
		sink = NewWriterSink(io.Discard, PaddingKeep, b.cfg.PadByte)
	}
	if l, ok := sink.(limiter); ok && h.HasSize {
		l.Limit(h.Size)
	}
	b.logger.Info("batch receiver: receiving %q (%d bytes)", h.Name, h.Size)

	b.current = h
	b.retries = 0
	b.requested = false
	b.inner.init(b.t, sink, b.fcfg)
	b.state = StateTransferring
	if err := b.sendByte(ACK); err != nil {
		return b.fail(ReasonTransport, err)
	}
	return running
}

func (b *BatchReceiver) transfer() Outcome {
	o := b.inner.Advance()
	switch o.Status {
	case StatusRunning:
		return running
	case StatusCompleted:
		b.done = addStats(b.done, b.inner.Stats())
		b.count++
		b.state = StateAwaitHeader
		return running
	}
	return b.finish(o)
}

func addStats(a, b Stats) Stats {
	return Stats{
		Blocks:     a.Blocks + b.Blocks,
		Bytes:      a.Bytes + b.Bytes,
		Retries:    a.Retries + b.Retries,
		Duplicates: a.Duplicates + b.Duplicates,
	}
}
