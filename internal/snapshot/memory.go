package snapshot

import (
	"context"
	"sync"

	"github.com/hanpama/normcache/internal/store"
)

// MemorySink keeps the encoded snapshot in process memory.
type MemorySink struct {
	mu    sync.RWMutex
	codec Codec
	data  []byte
	saves int
}

func NewMemory(codec Codec) *MemorySink {
	if codec == nil {
		codec = JSONCodec{}
	}
	return &MemorySink{codec: codec}
}

func (s *MemorySink) Driver() Driver { return DriverMemory }

func (s *MemorySink) Save(_ context.Context, snap store.Snapshot) error {
	data, err := s.codec.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = data
	s.saves++
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Load(_ context.Context) (store.Snapshot, error) {
	s.mu.RLock()
	data := s.data
	s.mu.RUnlock()
	if data == nil {
		return store.Snapshot{}, ErrNotFound
	}
	var snap store.Snapshot
	err := s.codec.Unmarshal(data, &snap)
	return snap, err
}

// Saves returns how many snapshots were saved.
func (s *MemorySink) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func (s *MemorySink) Close() error { return nil }
