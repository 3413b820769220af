package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"codegraph/internal/config"
	"codegraph/internal/graph"
	"codegraph/internal/linker"
	"codegraph/internal/metrics"
	"codegraph/internal/parser"
	"codegraph/internal/pipeline"
)

// CLI flags parsed from command line.
type cliFlags struct {
	Root    string
	RepoID  string
	Index   bool
	Watch   bool
	Stats   bool
	DBPath  string
	Verbose bool
	Version bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("codegraph", flag.ContinueOnError)
	fs.StringVar(&flags.Root, "root", ".", "path to the repository to index")
	fs.StringVar(&flags.RepoID, "repo", "", "repository id used in node identity (defaults to root basename)")
	fs.BoolVar(&flags.Index, "index", false, "run a full scan and exit")
	fs.BoolVar(&flags.Watch, "watch", false, "scan, then watch for changes until interrupted")
	fs.BoolVar(&flags.Stats, "stats", false, "print graph statistics after indexing")
	fs.StringVar(&flags.DBPath, "db", "", "kuzu database path (default: in-memory store)")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}
	if !flags.Index && !flags.Watch {
		fs.Usage()
		return fmt.Errorf("one of -index or -watch is required")
	}

	cfg, err := config.Load(flags.Root)
	if err != nil {
		return err
	}
	if flags.DBPath != "" {
		cfg.DBPath = flags.DBPath
	}
	if flags.Verbose {
		cfg.Verbose = true
	}

	logger := newLogger(cfg.Verbose)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runPipeline(ctx, flags, cfg, logger)
}

func runPipeline(ctx context.Context, flags cliFlags, cfg *config.ProjectConfig, logger *slog.Logger) error {
	repoID := flags.RepoID
	if repoID == "" {
		repoID = cfg.RepoID
	}
	if repoID == "" {
		abs, err := os.Getwd()
		if err == nil && flags.Root != "." {
			abs = flags.Root
		}
		repoID = baseName(abs)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}

	m := metrics.New()
	engine, err := parser.NewEngine(parser.NewRegistry(repoID), parser.Options{
		MaxFileSize:  cfg.MaxFileSizeBytes,
		MaxParse:     cfg.MaxParse(),
		CacheEntries: cfg.TreeCacheSize,
	}, logger, m)
	if err != nil {
		return err
	}
	defer engine.Close()

	applier := graph.NewApplier(store, graph.ApplyOptions{
		QueueSize:  cfg.ApplyQueueSize,
		MaxRetries: 3,
	}, logger, m)
	defer applier.Close()

	go func() {
		for perr := range applier.Parked() {
			logger.Error("apply.parked", "ops", perr.Patch.OperationCount(), "error", perr.Err)
		}
	}()

	filter := pipeline.NewPathFilter(flags.Root, cfg.Exclude)
	pipe := pipeline.New(pipeline.Options{
		RepoID:  repoID,
		Root:    flags.Root,
		Workers: cfg.Workers,
	}, engine, applier, filter, logger, m)

	scan, err := pipe.Scan(ctx)
	if err != nil {
		return err
	}
	if err := pipe.RunLinkers(ctx, store, []linker.Linker{
		linker.RouteLinker{},
		linker.SQLLinker{},
	}); err != nil {
		return err
	}
	if err := applier.Flush(ctx); err != nil {
		return err
	}
	fmt.Printf("indexed %d files (%d failed) in %s\n",
		scan.FilesIndexed, scan.FilesFailed, scan.Elapsed.Round(timeRounding))

	if flags.Watch {
		watcher, err := pipeline.NewWatcher(flags.Root, filter, cfg.Debounce(), logger)
		if err != nil {
			return err
		}
		defer watcher.Close()
		logger.Info("watch.start", "root", flags.Root, "debounce", cfg.Debounce())
		if err := pipe.Run(ctx, watcher.Events()); err != nil && ctx.Err() == nil {
			return err
		}
	}

	if flags.Stats {
		printStats(ctx, store, m)
	}
	return nil
}

func openStore(dbPath string) (graph.Store, error) {
	if dbPath == "" {
		return graph.NewMemStore(), nil
	}
	return graph.NewKuzuFileStore(dbPath)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' || p[i] == os.PathSeparator {
			return p[i+1:]
		}
	}
	return p
}
