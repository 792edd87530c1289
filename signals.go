package docsync

import "github.com/zoobzio/capitan"

// Signals for document lifecycle events.
var (
	GetCompleted       = capitan.NewSignal("docsync.get.completed", "Document fetch succeeded")
	GetFailed          = capitan.NewSignal("docsync.get.failed", "Document fetch failed")
	QueryCompleted     = capitan.NewSignal("docsync.query.completed", "Query executed")
	QueryFailed        = capitan.NewSignal("docsync.query.failed", "Query failed")
	CreateStarted      = capitan.NewSignal("docsync.create.started", "Document creation initiated")
	CreateCompleted    = capitan.NewSignal("docsync.create.completed", "Document creation succeeded")
	CreateFailed       = capitan.NewSignal("docsync.create.failed", "Document creation failed")
	CreateSkipped      = capitan.NewSignal("docsync.create.skipped", "Document already existed, no write issued")
	UpdateStarted      = capitan.NewSignal("docsync.update.started", "Document merge write initiated")
	UpdateCompleted    = capitan.NewSignal("docsync.update.completed", "Document merge write succeeded")
	UpdateFailed       = capitan.NewSignal("docsync.update.failed", "Document merge write failed")
	DeleteStarted      = capitan.NewSignal("docsync.delete.started", "Document deletion initiated")
	DeleteCompleted    = capitan.NewSignal("docsync.delete.completed", "Document deletion succeeded")
	DeleteFailed       = capitan.NewSignal("docsync.delete.failed", "Document deletion failed")
	IncrementCompleted = capitan.NewSignal("docsync.increment.completed", "Field increment applied")
	IncrementFailed    = capitan.NewSignal("docsync.increment.failed", "Field increment failed")
	BatchCompleted     = capitan.NewSignal("docsync.batch.completed", "Batched write committed")
	BatchFailed        = capitan.NewSignal("docsync.batch.failed", "Batched write failed")
	DecodeFailed       = capitan.NewSignal("docsync.decode.failed", "Raw record could not be decoded")
	ListenSnapshot     = capitan.NewSignal("docsync.listen.snapshot", "Subscription delivered a snapshot")
	ListenFailed       = capitan.NewSignal("docsync.listen.failed", "Subscription reported an error")
	FetchStarted       = capitan.NewSignal("docsync.fetch.started", "Page fetch initiated")
	FetchCompleted     = capitan.NewSignal("docsync.fetch.completed", "Page fetch merged into view")
	FetchFailed        = capitan.NewSignal("docsync.fetch.failed", "Page fetch failed")
	SessionExhausted   = capitan.NewSignal("docsync.session.exhausted", "No further pages exist")
	SessionRefreshed   = capitan.NewSignal("docsync.session.refreshed", "View, cursor and exhausted flag reset")
	SessionClosed      = capitan.NewSignal("docsync.session.closed", "Session released its subscriptions")
)

// Field keys for event extraction.
var (
	FieldCollection = capitan.NewStringKey("collection")
	FieldID         = capitan.NewStringKey("id")
	FieldField      = capitan.NewStringKey("field")
	FieldCursor     = capitan.NewStringKey("cursor")
	FieldDuration   = capitan.NewDurationKey("duration")
	FieldError      = capitan.NewErrorKey("error")
	FieldCount      = capitan.NewIntKey("count")
	FieldLimit      = capitan.NewIntKey("limit")
	FieldDelta      = capitan.NewInt64Key("delta")
	FieldExhausted  = capitan.NewBoolKey("exhausted")
	FieldIDs        = capitan.NewKey[[]string]("ids", "docsync.IDs")
)
