package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"github.com/hanpama/normcache/internal/store"
)

const (
	bucketTypes  = "meta:types"
	bucketRoots  = "meta:roots"
	bucketPrefix = "type:"

	defaultSQLitePath  = "normcache.db"
	defaultPostgresDSN = "postgres://localhost/normcache?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

type dialect struct {
	driver Driver
	name   string // database/sql driver name
	ddl    string
	insert string
}

var (
	sqliteDialect = dialect{
		driver: DriverSQLite,
		name:   "sqlite",
		ddl: `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`,
		insert: `INSERT INTO state(bucket, payload) VALUES(?, ?)`,
	}
	postgresDialect = dialect{
		driver: DriverPostgres,
		name:   "pgx",
		ddl: `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`,
		insert: `INSERT INTO state(bucket, payload) VALUES($1, $2)
		ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`,
	}
)

// SQLSink stores the snapshot in a state table with one row per bucket,
// plus rows for bucket order and root pointers. Payloads are always JSON.
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	mu      sync.Mutex
}

// NewSQLite opens (or creates) a SQLite database at path.
func NewSQLite(path string) (*SQLSink, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	return openSQL(context.Background(), sqliteDialect, path)
}

// NewPostgres connects to the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*SQLSink, error) {
	if dsn == "" {
		dsn = defaultPostgresDSN
	}
	return openSQL(ctx, postgresDialect, dsn)
}

func openSQL(ctx context.Context, d dialect, dsn string) (*SQLSink, error) {
	openMu.Lock()
	db, err := sqlOpen(d.name, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.driver, err)
	}
	if _, err := db.ExecContext(ctx, d.ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &SQLSink{db: db, dialect: d}, nil
}

func (s *SQLSink) Driver() Driver { return s.dialect.driver }

// DB exposes the underlying sql.DB for tests.
func (s *SQLSink) DB() *sql.DB { return s.db }

func (s *SQLSink) Save(ctx context.Context, snap store.Snapshot) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(snap.Types))
	rows := make(map[string]any, len(snap.Types)+2)
	for _, ts := range snap.Types {
		names = append(names, ts.Name)
		entities := ts.Entities
		if entities == nil {
			entities = []store.Entity{}
		}
		rows[bucketPrefix+ts.Name] = entities
	}
	roots := snap.Roots
	if roots == nil {
		roots = []store.RootPointer{}
	}
	rows[bucketTypes] = names
	rows[bucketRoots] = roots

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if _, err := tx.ExecContext(ctx, `DELETE FROM state`); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	for bucket, v := range rows {
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.insert, bucket, string(payload)); err != nil {
			return fmt.Errorf("insert %s: %w", bucket, err)
		}
	}
	return tx.Commit()
}

func (s *SQLSink) Load(ctx context.Context) (store.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return store.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	payloads := make(map[string][]byte)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return store.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return store.Snapshot{}, err
	}
	order, ok := payloads[bucketTypes]
	if !ok {
		return store.Snapshot{}, ErrNotFound
	}

	var snap store.Snapshot
	var names []string
	if err := json.Unmarshal(order, &names); err != nil {
		return store.Snapshot{}, fmt.Errorf("decode %s: %w", bucketTypes, err)
	}
	snap.Types = make([]store.TypeSnapshot, 0, len(names))
	for _, name := range names {
		ts := store.TypeSnapshot{Name: name}
		if raw, ok := payloads[bucketPrefix+name]; ok {
			if err := json.Unmarshal(raw, &ts.Entities); err != nil {
				return store.Snapshot{}, fmt.Errorf("decode %s: %w", name, err)
			}
		}
		snap.Types = append(snap.Types, ts)
	}
	if raw, ok := payloads[bucketRoots]; ok {
		if err := json.Unmarshal(raw, &snap.Roots); err != nil {
			return store.Snapshot{}, fmt.Errorf("decode %s: %w", bucketRoots, err)
		}
	}
	return snap, nil
}

func (s *SQLSink) Close() error { return s.db.Close() }
