package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable FromEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DOCSYNC_BACKEND",
		"DOCSYNC_SQLITE_DSN",
		"DOCSYNC_SQLITE_TABLE",
		"DOCSYNC_FIRESTORE_PROJECT",
		"DOCSYNC_FIRESTORE_DATABASE",
		"GOOGLE_APPLICATION_CREDENTIALS",
		"DOCSYNC_MONGO_URI",
		"DOCSYNC_MONGO_DATABASE",
		"DOCSYNC_COUCHDB_URL",
		"DOCSYNC_COUCHDB_DATABASE",
		"DOCSYNC_PAGE_SIZE",
		"DOCSYNC_ERROR_BUFFER",
		"DOCSYNC_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, 50, cfg.Session.PageSize)
	assert.Equal(t, 16, cfg.Session.ErrorBuffer)
	assert.Equal(t, 30*time.Second, cfg.Session.Timeout)
	assert.Equal(t, "docsync", cfg.CouchDB.Database)
}

func TestFromEnv_Backends(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name: "sqlite",
			env:  map[string]string{"DOCSYNC_BACKEND": "sqlite", "DOCSYNC_SQLITE_DSN": "file:docs.db"},
		},
		{
			name:    "sqlite without dsn",
			env:     map[string]string{"DOCSYNC_BACKEND": "sqlite"},
			wantErr: "SQLite.DSN",
		},
		{
			name: "firestore",
			env:  map[string]string{"DOCSYNC_BACKEND": "firestore", "DOCSYNC_FIRESTORE_PROJECT": "demo"},
		},
		{
			name:    "firestore without project",
			env:     map[string]string{"DOCSYNC_BACKEND": "firestore"},
			wantErr: "Firestore.ProjectID",
		},
		{
			name:    "firestore missing credentials file",
			env:     map[string]string{"DOCSYNC_BACKEND": "firestore", "DOCSYNC_FIRESTORE_PROJECT": "demo", "GOOGLE_APPLICATION_CREDENTIALS": "/nonexistent/creds.json"},
			wantErr: "Firestore.CredentialsFile",
		},
		{
			name: "mongo",
			env:  map[string]string{"DOCSYNC_BACKEND": "MONGO", "DOCSYNC_MONGO_URI": "mongodb://localhost:27017", "DOCSYNC_MONGO_DATABASE": "app"},
		},
		{
			name:    "mongo without database",
			env:     map[string]string{"DOCSYNC_BACKEND": "mongo", "DOCSYNC_MONGO_URI": "mongodb://localhost:27017"},
			wantErr: "Mongo.Database",
		},
		{
			name: "couchdb",
			env:  map[string]string{"DOCSYNC_BACKEND": "couchdb", "DOCSYNC_COUCHDB_URL": "http://localhost:5984"},
		},
		{
			name:    "couchdb without url",
			env:     map[string]string{"DOCSYNC_BACKEND": "couchdb"},
			wantErr: "CouchDB.URL",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"DOCSYNC_BACKEND": "redis"},
			wantErr: "Backend",
		},
		{
			name:    "page size out of range",
			env:     map[string]string{"DOCSYNC_PAGE_SIZE": "0"},
			wantErr: "Session.PageSize",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := FromEnv()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, cfg.Backend)
		})
	}
}

func TestFromEnv_OtherBackendsIgnored(t *testing.T) {
	clearEnv(t)
	// Required settings apply only to the selected backend.
	t.Setenv("DOCSYNC_MONGO_URI", "mongodb://localhost:27017")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.Mongo.Enabled)
}

func TestFromEnv_BadTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCSYNC_TIMEOUT", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCSYNC_TIMEOUT")
}

func TestFromEnv_NonNumericFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCSYNC_PAGE_SIZE", "lots")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Session.PageSize)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv does not override variables that are already set, so the
	// blanked ones must be removed for the file to apply.
	for _, key := range []string{"DOCSYNC_BACKEND", "DOCSYNC_SQLITE_DSN", "DOCSYNC_PAGE_SIZE"} {
		require.NoError(t, os.Unsetenv(key))
	}

	path := filepath.Join(t.TempDir(), ".env")
	content := "DOCSYNC_BACKEND=sqlite\nDOCSYNC_SQLITE_DSN=file::memory:\nDOCSYNC_PAGE_SIZE=25\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DOCSYNC_BACKEND")
		os.Unsetenv("DOCSYNC_SQLITE_DSN")
		os.Unsetenv("DOCSYNC_PAGE_SIZE")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "file::memory:", cfg.SQLite.DSN)
	assert.Equal(t, 25, cfg.Session.PageSize)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.Backend)
}
