// Package main is the Ruiji CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/bootstrap"
	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/watcher"
	"github.com/hyperjump/ruiji/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ruiji/config.yaml"
	defaultServerURL  = "http://localhost:8000"
	shutdownTimeout   = 10 * time.Second
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// When neither exists, built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes one subcommand. Commands return errors instead of exiting so their
// deferred cleanup (closing the store, syncing the logger) always runs.
func run(command string, args []string) error {
	switch command {
	case "server":
		return runServer(args)
	case "search":
		return runSearch(args)
	case "index":
		return runIndex(args)
	case "reset":
		return runReset(args)
	case "status":
		return runStatus(args)
	case "init":
		return runInit(args)
	case "version", "--version", "-v":
		fmt.Printf("ruiji version %s\n", version)
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

// setup loads config, builds the logger and all components. On error nothing is
// left open.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components, error) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("backend", cfg.Store.Backend),
		zap.Bool("debug", debugMode),
	)
	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, nil, fmt.Errorf("failed to initialize components: %w", err)
	}
	return cfg, logger, components, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, components, err := setup(*configPath, *debug)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrapIndex(ctx, cfg, components, logger); err != nil {
		return err
	}

	if cfg.Bootstrap.WatchCatalog && cfg.Bootstrap.CatalogPath != "" {
		w, err := watcher.NewWatcher([]string{cfg.Bootstrap.CatalogPath}, func(path string) {
			if _, err := components.Loader.ImportFile(ctx, path); err != nil {
				logger.Warn("catalog re-import failed", zap.String("path", path), zap.Error(err))
			}
		}, watcher.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create catalog watcher: %w", err)
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start catalog watcher: %w", err)
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, &cfg.Server, logger, server.WithDiskPaths(components.DiskPaths...))
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-sigChan:
	}

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

// bootstrapIndex prepares the index before the server accepts traffic: reset when
// configured, ensure, and seed from the catalog when the index is empty.
func bootstrapIndex(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error {
	runOpts := bootstrap.RunOptions{}
	if cfg.Bootstrap.EnabledOrDefault() {
		runOpts.Reset = cfg.Bootstrap.ResetOnStartOrDefault()
		runOpts.CatalogPath = cfg.Bootstrap.CatalogPath
	}
	n, err := c.Loader.Run(ctx, runOpts)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	logger.Info("index ready", zap.String("index", cfg.Store.IndexName), zap.Int("imported", n))
	return nil
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ruiji search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  ruiji search running shoe
  ruiji search "running shoe"                 # same as above
  ruiji search --top-k 10 --output json shoe
  ruiji search --server "" shoe               # open the store directly
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "ruiji search shoe -top-k 3"
// would otherwise leave -top-k unparsed.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the store directly)")
	searchType := fs.String("type", "text", "field to search: text or image")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	if err := fs.Parse(searchArgsReorder(args)); err != nil {
		return err
	}

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		return errors.New("search: missing query")
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	req := &models.SearchRequest{SearchType: *searchType, Query: queryStr, TopK: *topK}
	ctx := context.Background()

	var response *models.SearchResponse
	if *serverURL != "" {
		// A running server holds the embedded stores' locks, so go through its API.
		response, err = cli.NewClient(*serverURL).Search(ctx, req)
	} else {
		_, logger, components, setupErr := setup(*configPath, false)
		if setupErr != nil {
			return setupErr
		}
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.Search(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(os.Stdout, response, format)
}

func runIndex(args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL to index through (empty = open the store directly)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: ruiji index [flags] <catalog.json>")
	}
	catalogPath := fs.Arg(0)
	ctx := context.Background()

	var n int
	if *serverURL != "" {
		var err error
		if n, err = indexViaServer(ctx, cli.NewClient(*serverURL), catalogPath); err != nil {
			return err
		}
	} else {
		_, logger, components, err := setup(*configPath, false)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer components.Close()

		if err := components.Schema.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("ensure index failed: %w", err)
		}
		if n, err = components.Loader.ImportFile(ctx, catalogPath); err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
	}
	fmt.Printf("Indexed %d products from %s\n", n, catalogPath)
	return nil
}

// indexViaServer posts every catalog product to a running server, one request each.
// The server must answer /ping before anything is sent.
func indexViaServer(ctx context.Context, client *cli.Client, catalogPath string) (int, error) {
	products, err := bootstrap.LoadCatalog(catalogPath)
	if err != nil {
		return 0, err
	}
	if err := client.Ping(ctx); err != nil {
		return 0, fmt.Errorf("server not reachable: %w", err)
	}
	for i := range products {
		if err := client.IndexText(ctx, &products[i]); err != nil {
			return i, fmt.Errorf("index product %d: %w", products[i].ID, err)
		}
	}
	return len(products), nil
}

func runReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, logger, components, err := setup(*configPath, false)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer components.Close()

	if _, err := components.Loader.Run(context.Background(), bootstrap.RunOptions{Reset: true}); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}
	fmt.Printf("Index %s reset\n", cfg.Store.IndexName)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		return err
	}
	ctx := context.Background()

	var status *cli.Status
	if *serverURL != "" {
		status, err = cli.NewClient(*serverURL).Status(ctx)
	} else {
		_, logger, components, setupErr := setup(*configPath, false)
		if setupErr != nil {
			return setupErr
		}
		defer logger.Sync()
		defer components.Close()
		status, err = directStatus(ctx, components)
	}
	if err != nil {
		return fmt.Errorf("status failed: %w", err)
	}
	return cli.WriteStatus(os.Stdout, status, format)
}

func directStatus(ctx context.Context, c *Components) (*cli.Status, error) {
	stats, err := c.Engine.Status(ctx)
	if err != nil {
		return nil, err
	}
	st := &cli.Status{Index: stats.Name, UUID: stats.UUID, Documents: stats.Documents, Backend: stats.Backend}
	if len(c.DiskPaths) > 0 {
		if n, err := storage.DiskUsageBytes(c.DiskPaths...); err == nil {
			st.DiskUsageBytes = &n
		}
	}
	return st, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "where to write the config")
	backend := fs.String("backend", config.BackendOpenSearch, "store backend: opensearch, sqlite, or badger")
	force := fs.Bool("force", false, "overwrite an existing file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := os.Stat(*configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", *configPath)
	}
	cfg := config.Default()
	cfg.Store.Backend = *backend
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(*configPath, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", *configPath)
	return nil
}

func printUsage() {
	fmt.Println(`ruiji - multimodal product vector search

Usage:
  ruiji server [flags]                Start the HTTP server (bootstraps the index first)
  ruiji search [flags] <query>        Search products by text
  ruiji index [flags] <catalog.json>  Import a product catalog
  ruiji reset [flags]                 Drop and recreate the index
  ruiji status [flags]                Show index status
  ruiji init [flags]                  Write a starter config file
  ruiji version                       Show version
  ruiji help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/ruiji/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL (default: http://localhost:8000). Use --server "" to open the store directly.
  --type string      text or image (default: text)
  --top-k int        Number of results (default from config)
  --output string    text, compact, or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8000). Use --server "" to open the store directly.
  --output string    text or json (default: text)

Index Flags:
  --config string    Config file path (direct mode)
  --server string    Server URL to index through (default: open the store directly)

Init Flags:
  --config string    Output path (default: config.yaml)
  --backend string   opensearch, sqlite, or badger (default: opensearch)

Examples:
  ruiji init --backend sqlite
  ruiji server
  ruiji index data/products.json
  ruiji index --server http://localhost:8000 data/products.json
  ruiji search running shoe
  ruiji search --output json --top-k 3 "leather boot"
  ruiji status --output json`)
}
