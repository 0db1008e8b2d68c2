package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/hanpama/normcache/internal/store"
)

var badgerKey = []byte("normcache/snapshot")

// BadgerConfig configures the embedded Badger sink.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path       string
	InMemory   bool
	SyncWrites bool
	// Logger receives Badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerSink stores the encoded snapshot under a single key.
type BadgerSink struct {
	db    *badger.DB
	codec Codec
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// NewBadger opens a Badger database as configured.
func NewBadger(cfg BadgerConfig, codec Codec) (*BadgerSink, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger path is required for persistent database")
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &BadgerSink{db: db, codec: codec}, nil
}

func (s *BadgerSink) Driver() Driver { return DriverBadger }

func (s *BadgerSink) Save(_ context.Context, snap store.Snapshot) error {
	data, err := s.codec.Marshal(snap)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey, data)
	})
}

func (s *BadgerSink) Load(_ context.Context) (store.Snapshot, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return store.Snapshot{}, err
	}
	var snap store.Snapshot
	if err := s.codec.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode badger snapshot: %w", err)
	}
	return snap, nil
}

func (s *BadgerSink) Close() error { return s.db.Close() }
