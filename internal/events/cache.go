package events

import "time"

// NormalizeStart is emitted before a result tree is normalized.
type NormalizeStart struct {
	Fields []string
}

// NormalizeFinish is emitted after a normalization pass commits or fails.
type NormalizeFinish struct {
	Fields   []string
	Changes  int
	Err      error
	Duration time.Duration
}

// TypeChanged is emitted once per record a normalization pass inserted or
// modified.
type TypeChanged struct {
	Type string
	ID   string
}

// QueryStart is emitted before a query is resolved against the cache.
type QueryStart struct {
	Query         string
	OperationName string
}

// QueryFinish is emitted after a query is resolved. ErrorKind is empty on
// success.
type QueryFinish struct {
	Query         string
	OperationName string
	ErrorKind     string
	Err           error
	Duration      time.Duration
}

// SnapshotFinish is emitted after a snapshot write completes.
type SnapshotFinish struct {
	Driver     string
	Generation uint64
	Err        error
	Duration   time.Duration
}

// CacheCleared is emitted after every bucket was emptied.
type CacheCleared struct{}

// FetchFinish is emitted after a network fetch by the client completes.
type FetchFinish struct {
	Endpoint string
	Policy   string
	Err      error
	Duration time.Duration
}
