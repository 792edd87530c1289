package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/zoobzio/docsync/internal/config"
)

const version = "0.1.0"

const usage = `docsync pages through and follows document collections.

The backend is selected with DOCSYNC_BACKEND (memory, sqlite, firestore,
mongo, couchdb) and configured from the environment or an env file.

Usage:
    docsync page <collection> --order=<field> [--desc] [--limit=<n>] [--pages=<n>] [--where=<expr>...] [--env=<file>] [--verbose=<level>]
    docsync listen <collection> [--order=<field>] [--desc] [--where=<expr>...] [--env=<file>] [--verbose=<level>]
    docsync get <collection> <id> [--env=<file>] [--verbose=<level>]
    docsync -h | --help
    docsync --version

Options:
    -h --help          Show this screen.
    --version          Show version.
    --order=<field>    Field to order by.
    --desc             Order descending.
    --limit=<n>        Page size. Defaults to DOCSYNC_PAGE_SIZE.
    --pages=<n>        Pages to fetch, 0 fetches until exhausted [default: 1].
    --where=<expr>     Filter, e.g. "status==open", "seq>=3", "owner in u1,u2",
                       "kind not-in draft", "tags contains red".
    --env=<file>       Env file to load [default: .env].
    --verbose=<level>  glog verbosity [default: 0].`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	setupLogging(opts)
	defer glog.Flush()

	if err := run(opts, os.Stdout); err != nil {
		glog.Errorf("%s", err)
		glog.Flush()
		os.Exit(1)
	}
}

// setupLogging routes glog to stderr. glog registers its flags on the
// default flag set, which docopt never parses, so they are set directly.
func setupLogging(opts docopt.Opts) {
	_ = flag.Set("logtostderr", "true")
	if level, _ := opts.String("--verbose"); level != "" {
		_ = flag.Set("v", level)
	}
	_ = flag.CommandLine.Parse(nil)
}

func run(opts docopt.Opts, w io.Writer) error {
	envFile, _ := opts.String("--env")
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer closeStore(store)

	unhook := hookSignals(ctx)
	defer unhook()

	glog.V(1).Infof("backend=%s", cfg.Backend)

	if page, _ := opts.Bool("page"); page {
		return runPage(ctx, store, cfg, opts, w)
	} else if listen, _ := opts.Bool("listen"); listen {
		return runListen(ctx, store, opts, w)
	} else if get, _ := opts.Bool("get"); get {
		return runGet(ctx, store, cfg, opts, w)
	}
	return nil
}
