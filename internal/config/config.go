// Package config loads the normcache configuration file.
//
// Values are resolved in order: defaults, the YAML file, then environment
// variables. The result is validated before it is returned.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	client "github.com/hanpama/normcache/internal/client"
	normalize "github.com/hanpama/normcache/internal/normalize"
	resolve "github.com/hanpama/normcache/internal/resolve"
	server "github.com/hanpama/normcache/internal/server"
	snapshot "github.com/hanpama/normcache/internal/snapshot"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	TypeMap   TypeMapConfig   `yaml:"typemap"`
	Snapshot  snapshot.Config `yaml:"snapshot"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" validate:"required"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" validate:"gte=0"`
	CORSOrigins  []string      `yaml:"cors_origins"`
	Pretty       bool          `yaml:"pretty"`
}

// CacheConfig holds the attribute conventions of the result trees.
type CacheConfig struct {
	TypeKey             string        `yaml:"type_key" validate:"required"`
	IDKey               string        `yaml:"id_key" validate:"required"`
	ConnectionSuffix    string        `yaml:"connection_suffix" validate:"required"`
	GlobalPrefix        string        `yaml:"global_prefix" validate:"required"`
	PassthroughSuffixes []string      `yaml:"passthrough_suffixes"`
	PassthroughTypes    []string      `yaml:"passthrough_types"`
	SnapshotTimeout     time.Duration `yaml:"snapshot_timeout" validate:"gte=0"`
}

// TypeMapConfig says where the field type table comes from: a file
// (.graphql, .json introspection result or .yaml table), or the upstream
// introspection query when Introspect is set.
type TypeMapConfig struct {
	Path       string `yaml:"path"`
	Introspect bool   `yaml:"introspect"`
}

type UpstreamConfig struct {
	Endpoint string            `yaml:"endpoint" validate:"omitempty,url"`
	Policy   string            `yaml:"policy" validate:"omitempty,oneof=cache-first cache-only network-only network-once"`
	Timeout  time.Duration     `yaml:"timeout" validate:"gte=0"`
	Headers  map[string]string `yaml:"headers"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name" validate:"required"`
	LogLevel     string `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	norm := normalize.DefaultOptions()
	return Config{
		Server: ServerConfig{Addr: ":8080", Timeout: 10 * time.Second},
		Cache: CacheConfig{
			TypeKey:             norm.TypeKey,
			IDKey:               norm.IDKey,
			ConnectionSuffix:    norm.ConnectionSuffix,
			GlobalPrefix:        "all",
			PassthroughSuffixes: norm.PassthroughSuffixes,
			PassthroughTypes:    norm.PassthroughTypes,
			SnapshotTimeout:     30 * time.Second,
		},
		Upstream:  UpstreamConfig{Policy: string(client.CacheFirst), Timeout: 30 * time.Second},
		Telemetry: TelemetryConfig{ServiceName: "normcache", LogLevel: "info"},
	}
}

// Load reads the file at path over the defaults and applies environment
// overrides. An empty path or a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides cfg from NORMCACHE_* variables. Snapshot variables are
// only applied when NORMCACHE_SNAPSHOT_DRIVER is set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("NORMCACHE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("NORMCACHE_UPSTREAM"); v != "" {
		cfg.Upstream.Endpoint = v
	}
	if v := os.Getenv("NORMCACHE_FETCH_POLICY"); v != "" {
		cfg.Upstream.Policy = v
	}
	if v := os.Getenv("NORMCACHE_TYPEMAP"); v != "" {
		cfg.TypeMap.Path = v
	}
	if v := os.Getenv("NORMCACHE_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("NORMCACHE_LOG_LEVEL"); v != "" {
		cfg.Telemetry.LogLevel = strings.ToLower(v)
	}
	if os.Getenv("NORMCACHE_SNAPSHOT_DRIVER") != "" {
		cfg.Snapshot = snapshot.ConfigFromEnv()
	}
}

var validate = validator.New()

// Validate checks field constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Snapshot.Driver == snapshot.DriverS3 && c.Snapshot.S3.Bucket == "" {
		return errors.New("snapshot.s3.bucket is required for the s3 driver")
	}
	if c.TypeMap.Introspect && c.Upstream.Endpoint == "" {
		return errors.New("typemap.introspect needs upstream.endpoint")
	}
	return nil
}

// NormalizeOptions returns the normalizer options of the cache section.
func (c CacheConfig) NormalizeOptions() []normalize.Option {
	return []normalize.Option{
		normalize.WithTypeKey(c.TypeKey),
		normalize.WithIDKey(c.IDKey),
		normalize.WithConnectionSuffix(c.ConnectionSuffix),
		normalize.WithPassthroughSuffixes(c.PassthroughSuffixes...),
		normalize.WithPassthroughTypes(c.PassthroughTypes...),
	}
}

// ResolveOptions returns the resolver options of the cache section.
func (c CacheConfig) ResolveOptions() []resolve.Option {
	return []resolve.Option{
		resolve.WithTypeKey(c.TypeKey),
		resolve.WithConnectionSuffix(c.ConnectionSuffix),
		resolve.WithGlobalPrefix(c.GlobalPrefix),
	}
}

// Options returns the handler options of the server section.
func (s ServerConfig) Options() []server.Option {
	opts := []server.Option{server.WithTimeout(s.Timeout)}
	if s.MaxBodyBytes > 0 {
		opts = append(opts, server.WithMaxBodyBytes(s.MaxBodyBytes))
	}
	if len(s.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(s.CORSOrigins...))
	}
	if s.Pretty {
		opts = append(opts, server.WithPretty())
	}
	return opts
}

// Options returns the client options of the upstream section.
func (u UpstreamConfig) Options() []client.Option {
	opts := []client.Option{client.WithPolicy(client.Policy(u.Policy))}
	if u.Timeout > 0 {
		opts = append(opts, client.WithHTTPClient(&http.Client{Timeout: u.Timeout}))
	}
	for k, v := range u.Headers {
		opts = append(opts, client.WithHeader(k, os.ExpandEnv(v)))
	}
	return opts
}

// Level returns the slog level named by LogLevel.
func (t TelemetryConfig) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(t.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
