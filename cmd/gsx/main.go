// Command gsx sends files with XMODEM, or as a YMODEM batch with -y.
//
// Usage:
//
//	gsx [options] file         # XMODEM, one file
//	gsx -y [options] file...   # YMODEM batch
//
// Without --device or --address the transfer runs over stdin/stdout, so
// gsx can be started by a terminal program or a remote shell.
//
// Exit codes:
//   - 0: transfer complete
//   - 1: transfer failed
//   - 2: usage or configuration error
//   - 3: transfer cancelled
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/drunlade/go-xmodem/internal/app"
	"github.com/drunlade/go-xmodem/xmodem"
)

func main() {
	cliApp := &cli.App{
		Name:           "gsx",
		Usage:          "send files with XMODEM/YMODEM",
		ArgsUsage:      "file...",
		Version:        app.Version,
		Flags:          app.Flags(),
		ExitErrHandler: app.ExitErrHandler,
		Action:         send,
	}

	if err := cliApp.Run(os.Args); err != nil {
		os.Exit(app.ExitFailed)
	}
}

func send(c *cli.Context) error {
	files, err := collect(c.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), app.ExitUsage)
	}

	env, err := app.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.Config.Transfer.YModem {
		if len(files) != 1 {
			return cli.Exit("XMODEM sends exactly one file; use -y for a batch", app.ExitUsage)
		}
		env.Logger.Info("sending", zap.String("file", files[0].Filename), zap.Int64("size", files[0].Info.Size()))
		return app.Result(env.Session.SendFile(env.Ctx, files[0].Filename))
	}

	env.Logger.Info("sending batch", zap.Int("files", len(files)))
	return app.Result(env.Session.SendFiles(env.Ctx, files))
}

// collect resolves the arguments to regular files.
func collect(args []string) ([]xmodem.FileInfo, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no files specified")
	}
	files := make([]xmodem.FileInfo, 0, len(args))
	for _, name := range args {
		abs, err := filepath.Abs(name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s is not a regular file", name)
		}
		files = append(files, xmodem.FileInfo{Filename: abs, Info: info})
	}
	return files, nil
}
