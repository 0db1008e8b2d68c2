package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config selects and configures a Sink.
type Config struct {
	Driver Driver `yaml:"driver" validate:"omitempty,oneof=file memory s3 sqlite postgres badger"`
	// Path is the file, SQLite database or Badger directory.
	Path string `yaml:"path"`
	// DSN is the PostgreSQL connection string.
	DSN   string   `yaml:"dsn"`
	Codec string   `yaml:"codec" validate:"omitempty,oneof=json proto"`
	S3    S3Config `yaml:"s3"`
}

// Environment variables read by ConfigFromEnv:
//
//	NORMCACHE_SNAPSHOT_DRIVER=file|memory|s3|sqlite|postgres|badger
//	NORMCACHE_SNAPSHOT_PATH=<file, sqlite database or badger directory>
//	NORMCACHE_SNAPSHOT_DSN=<postgres dsn>
//	NORMCACHE_SNAPSHOT_CODEC=json|proto
//	NORMCACHE_SNAPSHOT_S3_BUCKET / _REGION / _ENDPOINT / _KEY
//	NORMCACHE_SNAPSHOT_S3_PATH_STYLE=true|false

// ConfigFromEnv reads a Config from the process environment.
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(strings.ToLower(os.Getenv("NORMCACHE_SNAPSHOT_DRIVER"))),
		Path:   os.Getenv("NORMCACHE_SNAPSHOT_PATH"),
		DSN:    os.Getenv("NORMCACHE_SNAPSHOT_DSN"),
		Codec:  os.Getenv("NORMCACHE_SNAPSHOT_CODEC"),
		S3: S3Config{
			Bucket:    os.Getenv("NORMCACHE_SNAPSHOT_S3_BUCKET"),
			Region:    os.Getenv("NORMCACHE_SNAPSHOT_S3_REGION"),
			Endpoint:  os.Getenv("NORMCACHE_SNAPSHOT_S3_ENDPOINT"),
			Key:       os.Getenv("NORMCACHE_SNAPSHOT_S3_KEY"),
			PathStyle: strings.EqualFold(os.Getenv("NORMCACHE_SNAPSHOT_S3_PATH_STYLE"), "true"),
		},
	}
}

// Open returns the sink cfg selects. An empty driver returns a nil Sink and
// no error: persistence is disabled.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Sink, error) {
	codec, err := CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "":
		return nil, nil
	case DriverFile:
		return NewFile(cfg.Path, codec)
	case DriverMemory:
		return NewMemory(codec), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3, codec)
	case DriverSQLite:
		return NewSQLite(cfg.Path)
	case DriverPostgres:
		return NewPostgres(ctx, cfg.DSN)
	case DriverBadger:
		return NewBadger(BadgerConfig{Path: cfg.Path, SyncWrites: true, Logger: logger}, codec)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}
