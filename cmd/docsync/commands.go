package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/docopt/docopt-go"
	"github.com/golang/glog"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/internal/config"
)

// record is the payload type the CLI decodes every document into.
type record = map[string]any

// runPage fetches pages of an ordered query through a Sync session and
// prints the merged view as JSON lines.
func runPage(ctx context.Context, store docsync.DocumentStore, cfg *config.Config, opts docopt.Opts, w io.Writer) error {
	collection, _ := opts.String("<collection>")
	order, _ := opts.String("--order")
	desc, _ := opts.Bool("--desc")

	limit, err := intOption(opts, "--limit", cfg.Session.PageSize)
	if err != nil {
		return err
	}
	pages, err := intOption(opts, "--pages", 1)
	if err != nil {
		return err
	}
	filters, err := parseWheres(stringsOption(opts, "--where"))
	if err != nil {
		return err
	}

	spec := docsync.Paginate(docsync.Query(filters...), order, desc, limit)
	s, err := docsync.NewSync[record](store, collection, spec,
		docsync.WithErrorBuffer[record](cfg.Session.ErrorBuffer),
	)
	if err != nil {
		return err
	}
	defer s.Close()

	for i := 0; (pages == 0 || i < pages) && !s.Exhausted(); i++ {
		fetchCtx, cancel := context.WithTimeout(ctx, cfg.Session.Timeout)
		err := s.FetchNextPage(fetchCtx)
		cancel()
		if err != nil {
			return err
		}
		drainErrors(s.Errors())
	}

	enc := json.NewEncoder(w)
	for _, doc := range s.Items() {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	glog.V(1).Infof("page collection=%s items=%d exhausted=%t", collection, s.Len(), s.Exhausted())
	return nil
}

// snapshotLine is one listen emission on stdout.
type snapshotLine struct {
	Count     int                        `json:"count"`
	Documents []docsync.Document[record] `json:"documents"`
}

// runListen prints every snapshot of the query until interrupted.
func runListen(ctx context.Context, store docsync.DocumentStore, opts docopt.Opts, w io.Writer) error {
	collection, _ := opts.String("<collection>")
	order, _ := opts.String("--order")
	desc, _ := opts.Bool("--desc")

	filters, err := parseWheres(stringsOption(opts, "--where"))
	if err != nil {
		return err
	}
	spec := docsync.Query(filters...)
	if order != "" {
		spec = append(spec, docsync.OrderBy(order, desc))
	}

	coll, err := docsync.NewCollection[record](store, collection)
	if err != nil {
		return err
	}
	snaps, stop, err := coll.Listen(ctx, spec)
	if err != nil {
		return err
	}
	defer stop()

	enc := json.NewEncoder(w)
	for snap := range snaps {
		if snap.Err != nil {
			glog.Warningf("listen collection=%s: %s", collection, snap.Err)
			continue
		}
		for _, f := range snap.Failures {
			glog.Warningf("listen collection=%s: %s", collection, f)
		}
		line := snapshotLine{Count: len(snap.Documents), Documents: snap.Documents}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

// runGet prints a single document.
func runGet(ctx context.Context, store docsync.DocumentStore, cfg *config.Config, opts docopt.Opts, w io.Writer) error {
	collection, _ := opts.String("<collection>")
	id, _ := opts.String("<id>")

	coll, err := docsync.NewCollection[record](store, collection)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Session.Timeout)
	defer cancel()

	doc, err := coll.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return json.NewEncoder(w).Encode(doc)
}

func drainErrors(errs <-chan error) {
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			glog.Warningf("%s", err)
		default:
			return
		}
	}
}

func intOption(opts docopt.Opts, key string, def int) (int, error) {
	s, _ := opts.String(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s: expected a non-negative integer, got %q", key, s)
	}
	return n, nil
}

func stringsOption(opts docopt.Opts, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case string:
		return []string{v}
	}
	return nil
}
