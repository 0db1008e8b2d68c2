package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cache "github.com/hanpama/normcache/internal/cache"
	client "github.com/hanpama/normcache/internal/client"
	config "github.com/hanpama/normcache/internal/config"
	eventbus "github.com/hanpama/normcache/internal/eventbus"
	otel "github.com/hanpama/normcache/internal/otel"
	server "github.com/hanpama/normcache/internal/server"
	snapshot "github.com/hanpama/normcache/internal/snapshot"
	typemap "github.com/hanpama/normcache/internal/typemap"
)

const rootUsage = `normcache - normalized GraphQL result cache

USAGE:
  normcache <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL endpoint answered from the cache
  ingest           Normalize GraphQL result files into the snapshot sink
  query            Answer a query from the persisted snapshot
  dump             Print the persisted snapshot document
  help             Show help for any command
`

const commonUsage = `  -config <file>                      YAML configuration file
  -typemap <file>                     Type map file (.graphql, .json or .yaml)
  -snapshot.driver <name>             file, memory, s3, sqlite, postgres or badger
  -snapshot.path <path>               Snapshot file, database or directory path
`

const serveUsage = `serve FLAGS:
` + commonUsage + `  -server.addr <addr>                 HTTP listen address (default: :8080)
  -upstream.endpoint <url>            Fetch misses from this GraphQL endpoint
  -upstream.policy <policy>           cache-first, cache-only, network-only or network-once
  -otel.endpoint <addr>               OTLP collector endpoint
`

const ingestUsage = `ingest FLAGS:
` + commonUsage + `  <file>...                           Result files; "-" reads stdin
`

const queryUsage = `query FLAGS:
` + commonUsage + `  -query <document>                   GraphQL query document
  -query.file <file>                  Read the query document from a file
  -operation <name>                   Operation to run
  -variables <json>                   Variables object
`

const dumpUsage = `dump FLAGS:
` + commonUsage

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("normcache", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer))
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "ingest":
		return cmdIngest(cmdArgs)
	case "query":
		return cmdQuery(cmdArgs)
	case "dump":
		return cmdDump(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "ingest":
		fmt.Print(ingestUsage)
	case "query":
		fmt.Print(queryUsage)
	case "dump":
		fmt.Print(dumpUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

// commonFlags are shared by every command that opens the cache.
type commonFlags struct {
	configPath     string
	typeMapPath    string
	snapshotDriver string
	snapshotPath   string
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&f.typeMapPath, "typemap", "", "Type map file")
	fs.StringVar(&f.snapshotDriver, "snapshot.driver", "", "Snapshot driver")
	fs.StringVar(&f.snapshotPath, "snapshot.path", "", "Snapshot path")
}

// load reads the configuration and applies flag overrides.
func (f *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}
	if f.typeMapPath != "" {
		cfg.TypeMap.Path = f.typeMapPath
	}
	if f.snapshotDriver != "" {
		cfg.Snapshot.Driver = snapshot.Driver(f.snapshotDriver)
	}
	if f.snapshotPath != "" {
		cfg.Snapshot.Path = f.snapshotPath
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Telemetry.Level()}))
}

func loadTypes(ctx context.Context, cfg config.Config) (*typemap.Map, error) {
	switch {
	case cfg.TypeMap.Path != "":
		return typemap.LoadFile(cfg.TypeMap.Path)
	case cfg.TypeMap.Introspect:
		return client.LoadTypeMap(ctx, cfg.Upstream.Endpoint, cfg.Upstream.Options()...)
	default:
		return typemap.New(nil, nil), nil
	}
}

// openCache builds a cache from cfg and restores the persisted snapshot.
func openCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (*cache.Cache, error) {
	types, err := loadTypes(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load type map: %w", err)
	}
	sink, err := snapshot.Open(ctx, cfg.Snapshot, logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot sink: %w", err)
	}
	opts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithNormalizeOptions(cfg.Cache.NormalizeOptions()...),
		cache.WithResolveOptions(cfg.Cache.ResolveOptions()...),
	}
	if sink != nil {
		opts = append(opts, cache.WithSink(sink))
	}
	if cfg.Cache.SnapshotTimeout > 0 {
		opts = append(opts, cache.WithSnapshotTimeout(cfg.Cache.SnapshotTimeout))
	}
	c := cache.New(types, opts...)
	if err := c.Restore(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	return c, nil
}

func cmdServe(args []string) error {
	var common commonFlags
	addr := ""
	upstream := ""
	policy := ""
	otelEndpoint := ""

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&addr, "server.addr", addr, "HTTP listen address")
	fs.StringVar(&upstream, "upstream.endpoint", upstream, "Upstream GraphQL endpoint")
	fs.StringVar(&policy, "upstream.policy", policy, "Fetch policy")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if upstream != "" {
		cfg.Upstream.Endpoint = upstream
	}
	if policy != "" {
		cfg.Upstream.Policy = policy
	}
	if otelEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = otelEndpoint
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg)
	eventbus.Use(eventbus.New())
	shutdown, err := otel.Setup(cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	c, err := openCache(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Printf("close cache: %v", err)
		}
	}()

	var backend server.Backend = c
	if cfg.Upstream.Endpoint != "" {
		opts := append(cfg.Upstream.Options(), client.WithLogger(logger))
		backend = client.New(cfg.Upstream.Endpoint, c, opts...)
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewMux(c, backend, logger, cfg.Server.Options()...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("normcache listening on %s", cfg.Server.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cmdIngest(args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, ingestUsage)
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprint(os.Stderr, ingestUsage)
		return fmt.Errorf("no result files given")
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if cfg.Snapshot.Driver == "" {
		return fmt.Errorf("ingest needs a snapshot driver")
	}

	ctx := context.Background()
	c, err := openCache(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	for _, name := range fs.Args() {
		data, err := readInput(name)
		if err != nil {
			_ = c.Close()
			return err
		}
		if err := c.NormalizeJSON(ctx, data); err != nil {
			_ = c.Close()
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	records := c.Store().Len()
	if err := c.Close(); err != nil {
		return err
	}
	fmt.Printf("ingested %d result(s), %d record(s) cached\n", fs.NArg(), records)
	return nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func cmdQuery(args []string) error {
	var common commonFlags
	query := ""
	queryFile := ""
	operation := ""
	variables := ""
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	fs.StringVar(&query, "query", query, "GraphQL query document")
	fs.StringVar(&queryFile, "query.file", queryFile, "Query document file")
	fs.StringVar(&operation, "operation", operation, "Operation name")
	fs.StringVar(&variables, "variables", variables, "Variables object")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, queryUsage)
		return err
	}
	if queryFile != "" {
		b, err := os.ReadFile(queryFile)
		if err != nil {
			return err
		}
		query = string(b)
	}
	if query == "" {
		fmt.Fprint(os.Stderr, queryUsage)
		return fmt.Errorf("-query or -query.file is required")
	}
	var vars map[string]any
	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &vars); err != nil {
			return fmt.Errorf("parse -variables: %w", err)
		}
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	c, err := openCache(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer c.Close()

	resp := c.QueryOperation(ctx, query, operation, vars)
	if err := printJSON(resp); err != nil {
		return err
	}
	return resp.Err()
}

func cmdDump(args []string) error {
	var common commonFlags
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	common.register(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, dumpUsage)
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	ctx := context.Background()
	c, err := openCache(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer c.Close()
	return printJSON(c.Snapshot())
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
