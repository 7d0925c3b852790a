// Package config loads the TOML configuration shared by gsx and grx.
//
// Every key is optional; values not present in the file keep their
// defaults. Command-line flags are applied on top by the tools.
//
//	[line]
//	device = "/dev/ttyUSB0"   # serial port, or
//	address = "host:2323"     # TCP endpoint; neither means stdio
//	baud = 115200
//
//	[transfer]
//	block_size = 1024
//	checksum = false          # request the 8-bit checksum instead of CRC
//	crc_attempts = 3
//	retries = 10
//	handshake_retries = 10
//	timeout = "10s"
//	byte_timeout = "1s"
//	padding = "strip"         # or "keep"
//	pad_byte = 26
//	ymodem = false
//
//	[log]
//	level = "info"
//	file = "/tmp/xmodem.log"
//	json = false
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/drunlade/go-xmodem/xmodem"
)

type Config struct {
	Line     LineConfig
	Transfer TransferConfig
	Log      LogConfig
}

type LineConfig struct {
	Device  string
	Address string
	Baud    int
}

// Stdio reports whether the transfer runs over standard input and output.
func (c LineConfig) Stdio() bool {
	return c.Device == "" && c.Address == ""
}

type TransferConfig struct {
	BlockSize        int
	Checksum         bool
	CRCAttempts      int
	Retries          int
	HandshakeRetries int
	Timeout          time.Duration
	ByteTimeout      time.Duration
	Padding          xmodem.Padding
	PadByte          byte
	YModem           bool
}

type LogConfig struct {
	Level string
	File  string
	JSON  bool
}

type fileConfig struct {
	Line struct {
		Device  string `toml:"device"`
		Address string `toml:"address"`
		Baud    int    `toml:"baud"`
	} `toml:"line"`
	Transfer struct {
		BlockSize        int    `toml:"block_size"`
		Checksum         bool   `toml:"checksum"`
		CRCAttempts      int    `toml:"crc_attempts"`
		Retries          int    `toml:"retries"`
		HandshakeRetries int    `toml:"handshake_retries"`
		Timeout          string `toml:"timeout"`
		ByteTimeout      string `toml:"byte_timeout"`
		Padding          string `toml:"padding"`
		PadByte          int    `toml:"pad_byte"`
		YModem           bool   `toml:"ymodem"`
	} `toml:"transfer"`
	Log struct {
		Level string `toml:"level"`
		File  string `toml:"file"`
		JSON  bool   `toml:"json"`
	} `toml:"log"`
}

// Default returns the built-in configuration: stdio line, classic
// XMODEM-CRC parameters, info logging.
func Default() Config {
	p := xmodem.DefaultConfig()
	return Config{
		Line: LineConfig{Baud: 115200},
		Transfer: TransferConfig{
			BlockSize:        p.BlockSize,
			CRCAttempts:      p.CRCAttempts,
			Retries:          p.MaxRetries,
			HandshakeRetries: p.HandshakeRetries,
			Timeout:          p.Timeout,
			ByteTimeout:      p.ByteTimeout,
			Padding:          p.Padding,
			PadByte:          p.PadByte,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path on top of Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("line", "device") {
		cfg.Line.Device = strings.TrimSpace(raw.Line.Device)
	}
	if meta.IsDefined("line", "address") {
		cfg.Line.Address = strings.TrimSpace(raw.Line.Address)
	}
	if meta.IsDefined("line", "baud") {
		cfg.Line.Baud = raw.Line.Baud
	}

	t := raw.Transfer
	if meta.IsDefined("transfer", "ymodem") {
		cfg.Transfer.YModem = t.YModem
		if t.YModem {
			applyYModemDefaults(&cfg.Transfer)
		}
	}
	if meta.IsDefined("transfer", "block_size") {
		cfg.Transfer.BlockSize = t.BlockSize
	}
	if meta.IsDefined("transfer", "checksum") {
		cfg.Transfer.Checksum = t.Checksum
	}
	if meta.IsDefined("transfer", "crc_attempts") {
		cfg.Transfer.CRCAttempts = t.CRCAttempts
	}
	if meta.IsDefined("transfer", "retries") {
		cfg.Transfer.Retries = t.Retries
	}
	if meta.IsDefined("transfer", "handshake_retries") {
		cfg.Transfer.HandshakeRetries = t.HandshakeRetries
	}
	if meta.IsDefined("transfer", "timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(t.Timeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse transfer.timeout: %w", err)
		}
		cfg.Transfer.Timeout = d
	}
	if meta.IsDefined("transfer", "byte_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(t.ByteTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse transfer.byte_timeout: %w", err)
		}
		cfg.Transfer.ByteTimeout = d
	}
	if meta.IsDefined("transfer", "padding") {
		p, err := ParsePadding(t.Padding)
		if err != nil {
			return Config{}, err
		}
		cfg.Transfer.Padding = p
	}
	if meta.IsDefined("transfer", "pad_byte") {
		if t.PadByte < 0 || t.PadByte > 0xFF {
			return Config{}, fmt.Errorf("transfer.pad_byte out of range: %d", t.PadByte)
		}
		cfg.Transfer.PadByte = byte(t.PadByte)
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "json") {
		cfg.Log.JSON = raw.Log.JSON
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UseYModem switches the transfer section to YMODEM defaults.
func (c *Config) UseYModem() {
	c.Transfer.YModem = true
	applyYModemDefaults(&c.Transfer)
}

func applyYModemDefaults(t *TransferConfig) {
	y := xmodem.YModemConfig()
	t.BlockSize = y.BlockSize
	t.CRCAttempts = y.CRCAttempts
	t.Retries = y.MaxRetries
	t.Checksum = false
}

// ParsePadding parses "keep" or "strip".
func ParsePadding(raw string) (xmodem.Padding, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "keep", "":
		return xmodem.PaddingKeep, nil
	case "strip":
		return xmodem.PaddingStrip, nil
	}
	return 0, fmt.Errorf("unknown padding policy %q (want keep or strip)", raw)
}

func (c Config) Validate() error {
	if c.Line.Device != "" && c.Line.Address != "" {
		return fmt.Errorf("line: device and address are mutually exclusive")
	}
	if c.Line.Device != "" && c.Line.Baud <= 0 {
		return fmt.Errorf("line: baud must be positive")
	}
	if c.Transfer.YModem && c.Transfer.Checksum {
		return fmt.Errorf("transfer: ymodem requires CRC")
	}
	if err := c.Protocol().Validate(); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}

// Protocol converts the transfer section into protocol parameters.
func (c Config) Protocol() *xmodem.Config {
	p := xmodem.DefaultConfig()
	if c.Transfer.YModem {
		p = xmodem.YModemConfig()
	}
	t := c.Transfer
	p.BlockSize = t.BlockSize
	if t.Checksum {
		p.Mode = xmodem.ModeChecksum
	}
	p.CRCAttempts = t.CRCAttempts
	p.MaxRetries = t.Retries
	p.HandshakeRetries = t.HandshakeRetries
	p.Timeout = t.Timeout
	p.ByteTimeout = t.ByteTimeout
	p.Padding = t.Padding
	p.PadByte = t.PadByte
	return p
}
