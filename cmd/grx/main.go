// Command grx receives files with XMODEM, or a YMODEM batch with -y.
//
// Usage:
//
//	grx [options] file    # XMODEM into file
//	grx -y [options] [dir] # YMODEM batch into dir, default "."
//
// Exit codes match gsx.
package main

import (
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/drunlade/go-xmodem/internal/app"
)

func main() {
	cliApp := &cli.App{
		Name:           "grx",
		Usage:          "receive files with XMODEM/YMODEM",
		ArgsUsage:      "file | dir",
		Version:        app.Version,
		Flags:          app.Flags(),
		ExitErrHandler: app.ExitErrHandler,
		Action:         receive,
	}

	if err := cliApp.Run(os.Args); err != nil {
		os.Exit(app.ExitFailed)
	}
}

func receive(c *cli.Context) error {
	if c.NArg() > 1 {
		return cli.Exit("too many arguments", app.ExitUsage)
	}

	env, err := app.Setup(c)
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.Config.Transfer.YModem {
		path := c.Args().First()
		if path == "" {
			return cli.Exit("XMODEM carries no file name; give the output file", app.ExitUsage)
		}
		env.Logger.Info("receiving", zap.String("file", path))
		return app.Result(env.Session.ReceiveFile(env.Ctx, path))
	}

	dir := c.Args().First()
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cli.Exit(err.Error(), app.ExitFailed)
	}
	n, err := env.Session.ReceiveFiles(env.Ctx, dir)
	env.Logger.Info("batch received", zap.String("dir", dir), zap.Int("files", n))
	return app.Result(err)
}
