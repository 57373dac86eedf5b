package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rickgao/basemap-orders/internal/version"
)

const usage = `usage: orderctl <command> [flags]

commands:
  submit         submit an order spec (-spec file.json) and optionally wait for it
  wait           poll an existing order (-id ID) until it finishes
  resume         poll every unfinished order recorded in the ledger
  orders         list orders
  quads          list the quads of a mosaic inside a bbox
  feeds          list analytics feeds
  subscriptions  list analytics subscriptions
  watch          follow the live progress of another orderctl process
  version        print version information

run "orderctl <command> -h" for command flags`

type command func(ctx context.Context, args []string, stdout io.Writer) error

var commands = map[string]command{
	"submit":        runSubmit,
	"wait":          runWait,
	"resume":        runResume,
	"orders":        runOrders,
	"quads":         runQuads,
	"feeds":         runFeeds,
	"subscriptions": runSubscriptions,
	"watch":         runWatch,
	"version":       runVersion,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "orderctl: unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd(ctx, os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		slog.Error("command failed", "command", os.Args[1], "error", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func runVersion(_ context.Context, _ []string, stdout io.Writer) error {
	_, err := fmt.Fprintln(stdout, "orderctl", version.String())
	return err
}
