// Command segmuxctl reads and writes a sharded segmux address space kept in a
// local directory or an S3 bucket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(ctx).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "segmuxctl: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newApp(ctx context.Context) *cli.App {
	app := cli.NewApp()
	app.Name = "segmuxctl"
	app.Usage = "Read and write a sharded byte address space"
	app.Version = "0.1.0"

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "YAML configuration file",
		},
		cli.StringFlag{
			Name:   "dir, d",
			Usage:  "Directory holding the shard files",
			EnvVar: "SEGMUX_DIR",
		},
		cli.StringFlag{
			Name:  "prefix",
			Usage: "Shard file name prefix",
		},
		cli.StringFlag{
			Name:  "shard-size",
			Usage: "Bytes covered by one shard (e.g. 64MiB)",
		},
		cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of shards kept open (0 = unbounded)",
		},
		cli.StringFlag{
			Name:   "bucket",
			Usage:  "Keep shards in this S3 bucket instead of a directory",
			EnvVar: "SEGMUX_BUCKET",
		},
		cli.StringFlag{
			Name:  "bucket-prefix",
			Usage: "Key prefix for shard objects in --bucket",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "error",
			Usage: "Log level (debug, info, warn, error)",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "write",
			Aliases:   []string{"w"},
			Usage:     "Write data at an offset",
			ArgsUsage: "<offset> <data>",
			Action:    withArgCheck(2, withRouter(ctx, handleWrite)),
		},
		{
			Name:      "read",
			Aliases:   []string{"r"},
			Usage:     "Read length bytes from an offset",
			ArgsUsage: "<offset> <length>",
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:  "hex, x",
					Usage: "Print a hex dump instead of raw bytes",
				},
			},
			Action: withArgCheck(2, withRouter(ctx, handleRead)),
		},
		{
			Name:      "del",
			Aliases:   []string{"rm"},
			Usage:     "Discard length bytes from an offset",
			ArgsUsage: "<offset> <length>",
			Action:    withArgCheck(2, withRouter(ctx, handleDelete)),
		},
		{
			Name:   "ls",
			Usage:  "List the shards of the store",
			Action: withRouter(ctx, handleList),
		},
	}

	return app
}
