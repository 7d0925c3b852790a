package xmodem

import (
	"fmt"
	"time"
)

// Config holds the protocol parameters shared by senders and receivers.
type Config struct {
	// BlockSize is the sender's payload size, BlockSize128 or BlockSize1K.
	// Receivers accept both sizes regardless.
	BlockSize int

	// Mode is the validation mode a receiver requests first.
	Mode Mode

	// CRCAttempts is how many unanswered 'C' requests a receiver sends
	// before falling back to checksum mode. 0 never falls back.
	CRCAttempts int

	// MaxRetries bounds consecutive failures on one block or EOT.
	MaxRetries int

	// HandshakeRetries bounds unanswered handshake attempts.
	HandshakeRetries int

	// Timeout bounds the wait for a response or the start of a block.
	Timeout time.Duration

	// ByteTimeout bounds the wait for each byte inside a block.
	ByteTimeout time.Duration

	// PadByte fills the unused tail of the final block.
	PadByte byte

	// Padding is the receiver's policy for the final block's tail when
	// the true length is unknown.
	Padding Padding

	// ShortFinalBlock sends a final chunk of at most 128 bytes as an SOH
	// block when BlockSize is BlockSize1K.
	ShortFinalBlock bool

	// ConfirmEOT makes the receiver NAK the first EOT and complete only on
	// a repeated one.
	ConfirmEOT bool

	// Progress update interval
	ProgressInterval time.Duration

	Logger Logger
}

// DefaultConfig returns a configuration for classic XMODEM-CRC with
// checksum fallback.
func DefaultConfig() *Config {
	return &Config{
		BlockSize:        BlockSize128,
		Mode:             ModeCRC16,
		CRCAttempts:      3,
		MaxRetries:       10,
		HandshakeRetries: 10,
		Timeout:          10 * time.Second,
		ByteTimeout:      1 * time.Second,
		PadByte:          CPMEOF,
		Padding:          PaddingKeep,
		ProgressInterval: 100 * time.Millisecond,
	}
}

// YModemConfig returns the configuration used for YMODEM batches:
// 1K blocks, CRC only, confirmed EOT.
func YModemConfig() *Config {
	c := DefaultConfig()
	c.BlockSize = BlockSize1K
	c.CRCAttempts = 0
	c.MaxRetries = 16
	c.ShortFinalBlock = true
	c.ConfirmEOT = true
	return c
}

// Validate checks the configuration for values the machines cannot run with.
func (c *Config) Validate() error {
	if c.BlockSize != BlockSize128 && c.BlockSize != BlockSize1K {
		return fmt.Errorf("xmodem: block size must be %d or %d, got %d", BlockSize128, BlockSize1K, c.BlockSize)
	}
	if c.Mode != ModeChecksum && c.Mode != ModeCRC16 {
		return fmt.Errorf("xmodem: unknown mode %d", c.Mode)
	}
	if c.CRCAttempts < 0 || c.MaxRetries < 0 || c.HandshakeRetries < 0 {
		return fmt.Errorf("xmodem: retry counts must not be negative")
	}
	if c.Timeout <= 0 || c.ByteTimeout <= 0 {
		return fmt.Errorf("xmodem: timeouts must be positive")
	}
	return nil
}

func (c *Config) clone() *Config {
	if c == nil {
		return DefaultConfig()
	}
	cc := *c
	return &cc
}
