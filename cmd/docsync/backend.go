package main

import (
	"context"

	"github.com/golang/glog"
	"github.com/zoobzio/docsync"
	"github.com/zoobzio/docsync/couchdb"
	"github.com/zoobzio/docsync/firestore"
	"github.com/zoobzio/docsync/internal/config"
	"github.com/zoobzio/docsync/memory"
	"github.com/zoobzio/docsync/mongo"
	"github.com/zoobzio/docsync/sqlite"
	"google.golang.org/api/option"
)

// openStore connects the backend cfg selects.
func openStore(ctx context.Context, cfg *config.Config) (docsync.DocumentStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		var opts []sqlite.Option
		if cfg.SQLite.Table != "" {
			opts = append(opts, sqlite.WithTable(cfg.SQLite.Table))
		}
		store, err := sqlite.Open(ctx, cfg.SQLite.DSN, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendFirestore:
		var opts []option.ClientOption
		if cfg.Firestore.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firestore.CredentialsFile))
		}
		store, err := firestore.Open(ctx, cfg.Firestore.ProjectID, cfg.Firestore.Database, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendMongo:
		store, err := mongo.Open(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.BackendCouchDB:
		store, err := couchdb.Open(ctx, cfg.CouchDB.URL, cfg.CouchDB.Database)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return memory.New(), nil
}

func closeStore(store docsync.DocumentStore) {
	lc, ok := store.(docsync.Lifecycle)
	if !ok {
		return
	}
	if err := lc.Close(context.Background()); err != nil {
		glog.Warningf("close store: %s", err)
	}
}
