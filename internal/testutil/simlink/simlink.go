// Package simlink simulates a half-duplex byte link for protocol tests.
//
// A Port from NewScripted plays against a scripted peer: reads never
// block, an empty queue reads as an immediate timeout, and every write
// releases the next scripted reply. Ports from NewPair are connected to
// each other and block on reads for the full timeout, for running two
// machines in separate goroutines.
package simlink

import (
	"io"
	"os"
	"sync"
	"time"
)

// Port is one end of a simulated link. It implements the protocol
// engine's transport interface.
type Port struct {
	mu       sync.Mutex
	in       []byte
	notify   chan struct{}
	peer     *Port
	blocking bool
	closed   bool

	replies [][]byte
	writes  [][]byte
	drop    func(p []byte) bool
	failErr error
}

// NewScripted returns a port for single-machine tests.
func NewScripted() *Port {
	return &Port{notify: make(chan struct{}, 1)}
}

// NewPair returns two connected ports with blocking reads.
func NewPair() (a, b *Port) {
	a = &Port{notify: make(chan struct{}, 1), blocking: true}
	b = &Port{notify: make(chan struct{}, 1), blocking: true}
	a.peer, b.peer = b, a
	return a, b
}

// Inject makes p readable immediately.
func (p *Port) Inject(data ...byte) {
	p.mu.Lock()
	p.in = append(p.in, data...)
	p.mu.Unlock()
	p.wake()
}

// Reply queues data to become readable when the next write happens.
// Reply() with no bytes lets one write go unanswered.
func (p *Port) Reply(data ...byte) {
	p.mu.Lock()
	p.replies = append(p.replies, append([]byte(nil), data...))
	p.mu.Unlock()
}

// Pending returns the number of unread input bytes.
func (p *Port) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.in)
}

// Writes returns a copy of every write made through p, in order.
func (p *Port) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.writes))
	copy(out, p.writes)
	return out
}

// Written returns every byte written through p, concatenated.
func (p *Port) Written() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []byte
	for _, w := range p.writes {
		out = append(out, w...)
	}
	return out
}

// ResetWrites forgets the recorded writes.
func (p *Port) ResetWrites() {
	p.mu.Lock()
	p.writes = nil
	p.mu.Unlock()
}

// SetDrop installs a filter on p's outgoing writes. Writes for which drop
// returns true are recorded but never reach the peer.
func (p *Port) SetDrop(drop func(p []byte) bool) {
	p.mu.Lock()
	p.drop = drop
	p.mu.Unlock()
}

// FailWrites makes every later write return err.
func (p *Port) FailWrites(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
}

// Close makes further reads on both ends return io.EOF once drained.
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	peer := p.peer
	p.mu.Unlock()
	p.wake()
	if peer != nil {
		peer.mu.Lock()
		peer.closed = true
		peer.mu.Unlock()
		peer.wake()
	}
	return nil
}

func (p *Port) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// ReadByteTimeout returns the next input byte. Scripted ports and
// timeouts <= 0 never wait.
func (p *Port) ReadByteTimeout(timeout time.Duration) (byte, error) {
	var deadline time.Time
	if p.blocking && timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		p.mu.Lock()
		if len(p.in) > 0 {
			b := p.in[0]
			p.in = p.in[1:]
			p.mu.Unlock()
			return b, nil
		}
		closed := p.closed
		p.mu.Unlock()

		if closed {
			return 0, io.EOF
		}
		wait := time.Until(deadline)
		if deadline.IsZero() || wait <= 0 {
			return 0, os.ErrDeadlineExceeded
		}
		timer := time.NewTimer(wait)
		select {
		case <-p.notify:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Write records data and delivers it to the peer, or releases the next
// scripted reply on a scripted port.
func (p *Port) Write(data []byte) error {
	p.mu.Lock()
	if p.failErr != nil {
		err := p.failErr
		p.mu.Unlock()
		return err
	}
	p.writes = append(p.writes, append([]byte(nil), data...))
	dropped := p.drop != nil && p.drop(data)
	peer := p.peer
	var reply []byte
	haveReply := false
	if peer == nil && len(p.replies) > 0 {
		reply, p.replies = p.replies[0], p.replies[1:]
		haveReply = true
	}
	p.mu.Unlock()

	switch {
	case peer != nil && !dropped:
		peer.Inject(data...)
	case haveReply && len(reply) > 0:
		p.Inject(reply...)
	}
	return nil
}
