package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"github.com/iamBelugaa/segmux/pkg/seginfo"
)

const (
	exitSuccess = iota
	exitBadArgs
	exitFailure
)

type handlerFunc func(ctx context.Context, c *cli.Context, r *router) error

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	if coder, ok := err.(cli.ExitCoder); ok {
		return coder.ExitCode()
	}
	return exitFailure
}

func withArgCheck(n int, handler cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		if len(c.Args()) != n {
			return cli.NewExitError(
				fmt.Sprintf("%s expects %d arguments: %s", c.Command.Name, n, c.Command.ArgsUsage), exitBadArgs,
			)
		}
		return handler(c)
	}
}

func withRouter(ctx context.Context, handler handlerFunc) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		r, err := openRouter(ctx, c)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := r.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()

		return handler(ctx, c, r)
	}
}

func parseOffset(arg string) (uint64, error) {
	offset, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return 0, cli.NewExitError(fmt.Sprintf("invalid offset %q: %v", arg, err), exitBadArgs)
	}
	return offset, nil
}

// parseLength accepts plain byte counts and humanized sizes such as "4KiB".
func parseLength(arg string) (uint64, error) {
	length, err := humanize.ParseBytes(arg)
	if err != nil {
		return 0, cli.NewExitError(fmt.Sprintf("invalid length %q: %v", arg, err), exitBadArgs)
	}
	return length, nil
}

func handleWrite(ctx context.Context, c *cli.Context, r *router) error {
	offset, err := parseOffset(c.Args().Get(0))
	if err != nil {
		return err
	}

	data := []byte(c.Args().Get(1))
	if err := r.instance.Write(ctx, offset, data); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "wrote %s at %d\n", humanize.IBytes(uint64(len(data))), offset)
	return nil
}

func handleRead(ctx context.Context, c *cli.Context, r *router) error {
	offset, err := parseOffset(c.Args().Get(0))
	if err != nil {
		return err
	}
	length, err := parseLength(c.Args().Get(1))
	if err != nil {
		return err
	}

	data, err := r.instance.Read(ctx, offset, length)
	if err != nil {
		return err
	}

	if c.Bool("hex") {
		_, err = fmt.Fprint(c.App.Writer, hex.Dump(data))
		return err
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func handleDelete(ctx context.Context, c *cli.Context, r *router) error {
	offset, err := parseOffset(c.Args().Get(0))
	if err != nil {
		return err
	}
	length, err := parseLength(c.Args().Get(1))
	if err != nil {
		return err
	}

	if err := r.instance.Delete(ctx, offset, length); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "deleted %s at %d\n", humanize.IBytes(length), offset)
	return nil
}

func handleList(ctx context.Context, c *cli.Context, r *router) error {
	size := r.settings.options.SegmentOptions.Size
	prefix := r.settings.options.SegmentOptions.Prefix

	ids, err := r.shards(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s: prefix=%s shard-size=%s shards=%d\n",
		r.location(), prefix, humanize.IBytes(size), len(ids))

	for _, id := range ids {
		start := id * size
		name := seginfo.GenerateName(prefix, id)

		onDisk := "-"
		if r.dir != nil {
			if stat, err := os.Stat(filepath.Join(r.dir.Dir(), name)); err == nil {
				onDisk = humanize.IBytes(uint64(stat.Size()))
			}
		}

		fmt.Fprintf(c.App.Writer, "%s\t[%d, %d)\t%s\n", name, start, start+size, onDisk)
	}
	return nil
}
