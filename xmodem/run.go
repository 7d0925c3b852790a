package xmodem

import "context"

// Machine is a protocol state machine stepped by Advance.
// It is implemented by *Sender, *Receiver, *BatchSender and *BatchReceiver.
type Machine interface {
	// Advance performs one bounded exchange with the peer.
	Advance() Outcome

	// Cancel sends the abort sequence and ends the session as cancelled
	// by the local party. It is a no-op on a finished machine.
	Cancel() Outcome

	State() State
	Stats() Stats

	sealed()
}

// Run steps m until it finishes or ctx is done. step, if not nil, is
// called after every Advance; the Session uses it for progress updates.
// When ctx ends first the machine is cancelled and the cancellation
// outcome is returned with ctx's error attached.
func Run(ctx context.Context, m Machine, step func(Machine)) Outcome {
	for {
		select {
		case <-ctx.Done():
			o := m.Cancel()
			if o.Status == StatusCancelled && o.Err == nil {
				o.Err = ctx.Err()
			}
			return o
		default:
		}

		o := m.Advance()
		if step != nil {
			step(m)
		}
		if o.Done() {
			return o
		}
	}
}

// core carries the state every machine shares.
type core struct {
	link
	self    Party
	state   State
	outcome Outcome
	stats   Stats
	retries int
}

func newCore(t Transport, logger Logger, self Party, initial State) core {
	return core{
		link:  link{t: t, logger: orNoop(logger)},
		self:  self,
		state: initial,
	}
}

func (c *core) sealed() {}

// State returns the current state.
func (c *core) State() State { return c.state }

// Stats returns the counters so far.
func (c *core) Stats() Stats { return c.stats }

// Outcome returns the terminal outcome, or a running outcome.
func (c *core) Outcome() Outcome {
	if !c.state.Terminal() {
		return running
	}
	return c.outcome
}

func (c *core) Cancel() Outcome {
	if c.state.Terminal() {
		return c.outcome
	}
	c.logger.Info("%s: cancelling transfer", c.self)
	c.abort()
	return c.finish(cancelledBy(c.self))
}

// finish records the terminal outcome o.
func (c *core) finish(o Outcome) Outcome {
	switch o.Status {
	case StatusCompleted:
		c.state = StateDone
	case StatusCancelled:
		c.state = StateCancelled
	case StatusFailed:
		c.state = StateFailed
	default:
		return o
	}
	c.outcome = o
	return o
}

// fail ends the session. The abort sequence is sent when the peer may
// still be waiting on us; handshake timeouts and dead transports skip it.
func (c *core) fail(reason FailureReason, err error) Outcome {
	c.logger.Error("%s: %s: %v", c.self, reason, err)
	if reason != ReasonTimeout && reason != ReasonTransport {
		c.abort()
	}
	return c.finish(failed(reason, err))
}

// retry counts one failed attempt against limit.
func (c *core) retry(limit int, reason FailureReason, what string) Outcome {
	c.retries++
	c.stats.Retries++
	c.logger.Debug("%s: %s (retry %d/%d)", c.self, what, c.retries, limit)
	if c.retries > limit {
		t := ErrRetriesExhausted
		if reason == ReasonTimeout {
			t = ErrTimeout
		}
		return c.fail(reason, NewError(t, what))
	}
	return running
}

// cancelled ends the session because the peer sent CAN. Nothing is written.
func (c *core) cancelled() Outcome {
	peer := PartyReceiver
	if c.self == PartyReceiver {
		peer = PartySender
	}
	c.logger.Info("%s: transfer cancelled by %s", c.self, peer)
	return c.finish(cancelledBy(peer))
}
