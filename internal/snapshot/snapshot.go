// Package snapshot persists whole-store snapshots of the normalized cache.
//
// A Sink stores exactly one snapshot document and replaces it on every
// Save. Sinks exist for the local filesystem, process memory, S3-compatible
// object storage, SQLite, PostgreSQL and Badger; Open selects one from a
// Config, and ConfigFromEnv reads that Config from the environment.
package snapshot

import (
	"context"
	"errors"

	"github.com/hanpama/normcache/internal/store"
)

var (
	// ErrNotFound is returned by Load when no snapshot was saved yet.
	ErrNotFound = errors.New("snapshot not found")
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown snapshot driver")
)

// Driver names a Sink implementation.
type Driver string

const (
	DriverFile     Driver = "file"
	DriverMemory   Driver = "memory"
	DriverS3       Driver = "s3"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverBadger   Driver = "badger"
)

// Sink stores the latest snapshot of the cache.
type Sink interface {
	Driver() Driver
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap store.Snapshot) error
	// Load returns the stored snapshot or ErrNotFound.
	Load(ctx context.Context) (store.Snapshot, error)
	Close() error
}
