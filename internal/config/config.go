// Package config loads docsync CLI configuration from the environment and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Backend names.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendMongo     = "mongo"
	BackendCouchDB   = "couchdb"
)

// Config selects and configures a document backend.
type Config struct {
	Backend   string `validate:"required,oneof=memory sqlite firestore mongo couchdb"`
	SQLite    SQLiteConfig
	Firestore FirestoreConfig
	Mongo     MongoConfig
	CouchDB   CouchDBConfig
	Session   SessionConfig
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	DSN   string `validate:"required_if=Enabled true"`
	Table string `validate:"omitempty,max=64"`

	Enabled bool `validate:"-"`
}

// FirestoreConfig configures the firestore backend.
type FirestoreConfig struct {
	ProjectID       string `validate:"required_if=Enabled true"`
	Database        string
	CredentialsFile string `validate:"omitempty,file"`

	Enabled bool `validate:"-"`
}

// MongoConfig configures the mongo backend.
type MongoConfig struct {
	URI      string `validate:"required_if=Enabled true,omitempty,uri"`
	Database string `validate:"required_if=Enabled true"`

	Enabled bool `validate:"-"`
}

// CouchDBConfig configures the couchdb backend.
type CouchDBConfig struct {
	URL      string `validate:"required_if=Enabled true,omitempty,url"`
	Database string `validate:"required_if=Enabled true"`

	Enabled bool `validate:"-"`
}

// SessionConfig tunes the CLI's sync sessions.
type SessionConfig struct {
	PageSize    int           `validate:"gt=0,lte=10000"`
	ErrorBuffer int           `validate:"gte=0"`
	Timeout     time.Duration `validate:"gt=0"`
}

// Load reads an optional .env file, then the environment, and validates
// the result. Variables already set in the environment win over .env.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds and validates a Config from environment variables.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Backend: strings.ToLower(getEnv("DOCSYNC_BACKEND", BackendMemory)),
		SQLite: SQLiteConfig{
			DSN:   getEnv("DOCSYNC_SQLITE_DSN", ""),
			Table: getEnv("DOCSYNC_SQLITE_TABLE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:       getEnv("DOCSYNC_FIRESTORE_PROJECT", ""),
			Database:        getEnv("DOCSYNC_FIRESTORE_DATABASE", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Mongo: MongoConfig{
			URI:      getEnv("DOCSYNC_MONGO_URI", ""),
			Database: getEnv("DOCSYNC_MONGO_DATABASE", ""),
		},
		CouchDB: CouchDBConfig{
			URL:      getEnv("DOCSYNC_COUCHDB_URL", ""),
			Database: getEnv("DOCSYNC_COUCHDB_DATABASE", "docsync"),
		},
		Session: SessionConfig{
			PageSize:    getEnvAsInt("DOCSYNC_PAGE_SIZE", 50),
			ErrorBuffer: getEnvAsInt("DOCSYNC_ERROR_BUFFER", 16),
		},
	}

	timeout, err := time.ParseDuration(getEnv("DOCSYNC_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid DOCSYNC_TIMEOUT: %w", err)
	}
	cfg.Session.Timeout = timeout

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the selected backend's settings.
func (c *Config) Validate() error {
	c.SQLite.Enabled = c.Backend == BackendSQLite
	c.Firestore.Enabled = c.Backend == BackendFirestore
	c.Mongo.Enabled = c.Backend == BackendMongo
	c.CouchDB.Enabled = c.Backend == BackendCouchDB

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
