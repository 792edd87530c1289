package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/docsync"
)

type loggedSignal struct {
	signal  capitan.Signal
	name    string
	failure bool
}

var loggedSignals = []loggedSignal{
	{docsync.GetFailed, "get.failed", true},
	{docsync.QueryFailed, "query.failed", true},
	{docsync.DecodeFailed, "decode.failed", true},
	{docsync.ListenFailed, "listen.failed", true},
	{docsync.FetchFailed, "fetch.failed", true},
	{docsync.GetCompleted, "get.completed", false},
	{docsync.QueryCompleted, "query.completed", false},
	{docsync.ListenSnapshot, "listen.snapshot", false},
	{docsync.FetchStarted, "fetch.started", false},
	{docsync.FetchCompleted, "fetch.completed", false},
	{docsync.SessionExhausted, "session.exhausted", false},
	{docsync.SessionClosed, "session.closed", false},
}

// hookSignals logs docsync events through glog. Failures are warnings;
// progress events need -v=1. The returned func drains and removes the hooks.
func hookSignals(ctx context.Context) (unhook func()) {
	closers := make([]func(), 0, len(loggedSignals))
	for _, ls := range loggedSignals {
		l := capitan.Hook(ls.signal, logEvent(ls.name, ls.failure))
		closers = append(closers, func() {
			l.Drain(context.WithoutCancel(ctx))
			l.Close()
		})
	}
	return func() {
		for _, c := range closers {
			c()
		}
	}
}

func logEvent(name string, failure bool) capitan.EventCallback {
	return func(_ context.Context, e *capitan.Event) {
		line := describe(e.Fields())
		if failure {
			glog.Warningf("%s %s", name, line)
			return
		}
		glog.V(1).Infof("%s %s", name, line)
	}
}

// describe renders the docsync fields present on an event.
func describe(fields []capitan.Field) string {
	var parts []string
	if c := docsync.FieldCollection.ExtractFromFields(fields); c != "" {
		parts = append(parts, "collection="+c)
	}
	if id := docsync.FieldID.ExtractFromFields(fields); id != "" {
		parts = append(parts, "id="+id)
	}
	if cursor := docsync.FieldCursor.ExtractFromFields(fields); cursor != "" {
		parts = append(parts, "cursor="+cursor)
	}
	if n := docsync.FieldCount.ExtractFromFields(fields); n != 0 {
		parts = append(parts, fmt.Sprintf("count=%d", n))
	}
	if d := docsync.FieldDuration.ExtractFromFields(fields); d != 0 {
		parts = append(parts, "duration="+d.String())
	}
	if err := docsync.FieldError.ExtractFromFields(fields); err != nil {
		parts = append(parts, "error="+err.Error())
	}
	return strings.Join(parts, " ")
}
