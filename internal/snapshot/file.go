package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hanpama/normcache/internal/store"
)

// DefaultFileName is the snapshot file written when only a directory is
// configured.
const DefaultFileName = "cache.json"

// FileSink writes the snapshot to a single file, replacing it atomically.
type FileSink struct {
	path  string
	codec Codec
}

// NewFile returns a sink writing to path. A path naming an existing
// directory gets DefaultFileName appended.
func NewFile(path string, codec Codec) (*FileSink, error) {
	if path == "" {
		path = DefaultFileName
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, DefaultFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	if codec == nil {
		codec = JSONCodec{}
	}
	return &FileSink{path: path, codec: codec}, nil
}

func (s *FileSink) Driver() Driver { return DriverFile }

// Path returns the snapshot file path.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Save(_ context.Context, snap store.Snapshot) error {
	data, err := s.codec.Marshal(snap)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileSink) Load(_ context.Context) (store.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return store.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return store.Snapshot{}, err
	}
	var snap store.Snapshot
	if err := s.codec.Unmarshal(data, &snap); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return snap, nil
}

func (s *FileSink) Close() error { return nil }
