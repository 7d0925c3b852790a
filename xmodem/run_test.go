package xmodem

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/drunlade/go-xmodem/internal/testutil/simlink"
)

func TestRunStepsUntilDone(t *testing.T) {
	port := simlink.NewScripted()
	port.Inject(CRC)
	port.Reply(ACK)
	port.Reply(ACK)

	var steps int
	var states []State
	s := NewSender(port, NewReaderSource(bytes.NewReader([]byte("abc"))), scriptedConfig())
	o := Run(context.Background(), s, func(m Machine) {
		steps++
		states = append(states, m.State())
	})
	if o.Status != StatusCompleted {
		t.Fatalf("outcome %v", o)
	}
	if steps != 3 {
		t.Fatalf("step called %d times, want 3", steps)
	}
	if states[len(states)-1] != StateDone {
		t.Fatalf("final state %v", states[len(states)-1])
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := simlink.NewScripted()
	r := NewReceiver(port, NewWriterSink(new(bytes.Buffer), PaddingKeep, CPMEOF), scriptedConfig())
	o := Run(ctx, r, nil)
	if o.Status != StatusCancelled || o.By != PartyReceiver {
		t.Fatalf("outcome %v", o)
	}
	if !errors.Is(o.Err, context.Canceled) {
		t.Fatalf("Err = %v", o.Err)
	}
	if !bytes.Equal(port.Written(), []byte{CAN, CAN}) {
		t.Fatalf("wrote % x", port.Written())
	}
}

func TestOutcomeError(t *testing.T) {
	cases := []struct {
		o    Outcome
		want ErrorType
	}{
		{cancelledBy(PartySender), ErrCancelled},
		{failed(ReasonTimeout, nil), ErrTimeout},
		{failed(ReasonTooManyRetries, nil), ErrRetriesExhausted},
		{failed(ReasonStorage, errors.New("eio")), ErrStorage},
		{failed(ReasonTransport, nil), ErrTransport},
	}
	for _, tc := range cases {
		var xe *Error
		if err := tc.o.Error(); !errors.As(err, &xe) || xe.Type != tc.want {
			t.Fatalf("%v: Error() = %v", tc.o, err)
		}
	}
	if running.Error() != nil || completed().Error() != nil {
		t.Fatalf("non-failure outcomes must not produce errors")
	}
	if StateFailed.String() != "Failed" || State(99).String() != "UNKNOWN" {
		t.Fatalf("state names")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	if err := YModemConfig().Validate(); err != nil {
		t.Fatal(err)
	}

	bad := []func(*Config){
		func(c *Config) { c.BlockSize = 512 },
		func(c *Config) { c.Mode = Mode(9) },
		func(c *Config) { c.MaxRetries = -1 },
		func(c *Config) { c.Timeout = 0 },
		func(c *Config) { c.ByteTimeout = -1 },
	}
	for i, mutate := range bad {
		c := DefaultConfig()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: invalid config accepted", i)
		}
	}
}
