// Package app holds what gsx and grx share: flags, configuration
// layering, logging setup and exit codes.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/drunlade/go-xmodem/internal/config"
	"github.com/drunlade/go-xmodem/internal/line"
	"github.com/drunlade/go-xmodem/internal/logging"
	"github.com/drunlade/go-xmodem/internal/progress"
	"github.com/drunlade/go-xmodem/xmodem"
)

// Version is set via ldflags at build time.
var Version = "0.1.0"

// Exit codes.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitUsage     = 2
	ExitCancelled = 3
)

// Flags returns the flags common to both tools.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML configuration `FILE`"},
		&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "serial `PORT` to transfer over"},
		&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "TCP `HOST:PORT` to transfer over"},
		&cli.IntFlag{Name: "baud", Aliases: []string{"b"}, Usage: "serial line speed"},
		&cli.BoolFlag{Name: "ymodem", Aliases: []string{"y"}, Usage: "YMODEM batch mode"},
		&cli.BoolFlag{Name: "1k", Aliases: []string{"k"}, Usage: "send 1024 byte blocks"},
		&cli.BoolFlag{Name: "checksum", Usage: "request the 8-bit checksum instead of CRC-16"},
		&cli.StringFlag{Name: "padding", Usage: "final block padding: keep or strip"},
		&cli.DurationFlag{Name: "timeout", Aliases: []string{"t"}, Usage: "response timeout"},
		&cli.IntFlag{Name: "retries", Usage: "retries per block"},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn, error or off"},
		&cli.StringFlag{Name: "log-file", Usage: "write logs to `FILE`"},
		&cli.BoolFlag{Name: "log-json", Usage: "JSON log output"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "no progress output"},
	}
}

// LoadConfig reads --config and applies the command-line overrides.
func LoadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}

	if c.IsSet("device") {
		cfg.Line.Device = c.String("device")
	}
	if c.IsSet("address") {
		cfg.Line.Address = c.String("address")
	}
	if c.IsSet("baud") {
		cfg.Line.Baud = c.Int("baud")
	}
	if c.Bool("ymodem") {
		cfg.UseYModem()
	}
	if c.Bool("1k") {
		cfg.Transfer.BlockSize = xmodem.BlockSize1K
	}
	if c.IsSet("checksum") {
		cfg.Transfer.Checksum = c.Bool("checksum")
	}
	if c.IsSet("padding") {
		p, err := config.ParsePadding(c.String("padding"))
		if err != nil {
			return config.Config{}, err
		}
		cfg.Transfer.Padding = p
	}
	if c.IsSet("timeout") {
		cfg.Transfer.Timeout = c.Duration("timeout")
	}
	if c.IsSet("retries") {
		cfg.Transfer.Retries = c.Int("retries")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}
	if c.IsSet("log-json") {
		cfg.Log.JSON = c.Bool("log-json")
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Env is everything a transfer command needs once setup is done.
type Env struct {
	Config  config.Config
	Logger  *zap.Logger
	Link    *line.Link
	Session *xmodem.Session
	Ctx     context.Context

	closers []func()
}

// Close releases the link, progress output and logger.
func (e *Env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// Setup loads configuration, builds the logger, opens the link and
// creates the session. SIGINT and SIGTERM cancel Ctx, which cancels the
// transfer and sends the abort sequence to the peer.
func Setup(c *cli.Context) (*Env, error) {
	cfg, err := LoadConfig(c)
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitUsage)
	}

	// On stdio the terminal is the line; logs and bars would corrupt it.
	stdio := cfg.Line.Stdio()
	logger, closeLog, err := logging.New(logging.Options{
		Level: cfg.Log.Level,
		File:  cfg.Log.File,
		JSON:  cfg.Log.JSON,
		Quiet: stdio,
	})
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("log setup: %v", err), ExitUsage)
	}

	env := &Env{Config: cfg, Logger: logger}
	env.closers = append(env.closers, func() {
		logger.Sync()
		closeLog()
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	env.Ctx = ctx
	env.closers = append(env.closers, stop)

	link, err := line.Open(ctx, cfg.Line)
	if err != nil {
		env.Close()
		return nil, cli.Exit(err.Error(), ExitFailed)
	}
	env.Link = link
	env.closers = append(env.closers, func() {
		if err := link.Close(); err != nil {
			logger.Warn("closing line", zap.Error(err))
		}
	})
	logger.Info("line open",
		zap.String("kind", link.Kind),
		zap.String("device", cfg.Line.Device),
		zap.String("address", cfg.Line.Address),
	)

	callbacks := &xmodem.Callbacks{
		OnError: func(err error, where string) bool {
			logger.Error("transfer error", zap.String("where", where), zap.Error(err))
			return errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission)
		},
	}
	if !stdio && !c.Bool("quiet") {
		bars := progress.New(os.Stderr)
		callbacks = bars.Callbacks(callbacks)
		env.closers = append(env.closers, bars.Close)
	}

	xlog := xmodem.NewZapLogger(logger.Named("xmodem"))
	var t xmodem.Transport = link
	if logger.Core().Enabled(zap.DebugLevel) {
		t = xmodem.NewLoggingTransport(link, xlog, link.Kind)
	}
	env.Session = xmodem.NewSession(t,
		xmodem.WithConfig(cfg.Protocol()),
		xmodem.WithCallbacks(callbacks),
		xmodem.WithContext(ctx),
		xmodem.WithLogger(xlog),
	)
	return env, nil
}

// Result maps a transfer error to a cli exit error.
func Result(err error) error {
	switch {
	case err == nil:
		return nil
	case xmodem.IsCancelled(err), errors.Is(err, context.Canceled):
		return cli.Exit(fmt.Sprintf("transfer cancelled: %v", err), ExitCancelled)
	}
	return cli.Exit(fmt.Sprintf("transfer failed: %v", err), ExitFailed)
}

// ExitErrHandler prints the message of an exit error and exits with its
// code. Other errors exit with ExitFailed.
func ExitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitFailed)
}
