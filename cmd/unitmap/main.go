package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"unitmap/internal/cluster"
	"unitmap/internal/command"
	"unitmap/internal/config"
	"unitmap/internal/extract"
	"unitmap/internal/fetch"
	"unitmap/internal/ingest"
	"unitmap/internal/relation"
	"unitmap/internal/resolve"
	"unitmap/internal/server"
	"unitmap/internal/store"
	"unitmap/internal/trace"
	"unitmap/internal/vm"
	"unitmap/util"
)

const version = "0.3.0"

var (
	// Global flags
	verbose    bool
	configPath string
	dbPath     string

	// Logger
	logger *zap.Logger
)

// app bundles the wired components behind each subcommand.
type app struct {
	cfg        config.Config
	store      *store.SQLite
	ingester   *ingest.Ingester
	fetcher    *fetch.Fetcher
	partition  *cluster.Partitioner
	resolver   *resolve.Resolver
	tracer     *trace.Tracer
	executor   *vm.Executor
	updater    *relation.Updater
	dispatcher *command.Dispatcher
}

var rootCmd = &cobra.Command{
	Use:   "unitmap",
	Short: "unitmap - executable-unit index for source corpora",
	Long: `unitmap extracts executable units from source text, tracks their
static and observed dependencies, groups them into size-bounded clusters
and assembles runnable bundles on demand.

Run "unitmap serve" to expose the index over MCP stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the index over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		defer a.updater.Stop()

		srv := server.New(a.dispatcher, version, logger)
		return srv.Run(ctx)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Extract units from a source tree and index them",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		root := ""
		if len(args) == 1 {
			root = args[0]
		} else {
			root, err = util.FindGitRoot("")
			if err != nil {
				root = "."
			}
		}
		root, err = filepath.Abs(root)
		if err != nil {
			return err
		}

		prefix, _ := cmd.Flags().GetString("prefix")
		report, err := a.ingester.IngestDir(cmd.Context(), root, prefix)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var importCmd = &cobra.Command{
	Use:   "import [url]",
	Short: "Download a corpus archive and index its source files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		checksum, _ := cmd.Flags().GetString("checksum")
		report, err := a.fetcher.Import(cmd.Context(), args[0], checksum)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Recompute size-bounded clusters over the indexed units",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		clusters, report, err := a.partition.Partition(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"report": report, "clusters": clusters})
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview [unit-id]",
	Short: "Resolve a unit's closure and print the assembled bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		bundle, err := a.resolver.Resolve(cmd.Context(), args)
		if err != nil {
			return err
		}
		for _, w := range bundle.CycleWarnings {
			logger.Warn("dependency cycle", zap.String("detail", w))
		}
		fmt.Print(bundle.Code)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fold pending trace events into the dependency graph once",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		n, err := a.updater.RunCycle(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{"events_processed": n})
	},
}

func buildApp() (*app, error) {
	path := configPath
	if path == "" {
		home, err := config.Home()
		if err == nil {
			path = filepath.Join(home, "config.yaml")
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	st, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	pool := extract.NewPool(cfg.ExtractWorkers, cfg.StallTimeout(), logger)
	ingester := ingest.New(st, pool, cfg.ChunkLines, logger)
	fetcher, err := fetch.New(ingester, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	tracer := trace.New()

	a := &app{
		cfg:       cfg,
		store:     st,
		ingester:  ingester,
		fetcher:   fetcher,
		partition: cluster.New(st, cfg.ClusterSizeBound, logger),
		resolver:  resolve.New(st, cfg.HotEdgeThreshold, logger),
		tracer:    tracer,
		executor:  vm.New(tracer, logger),
		updater:   relation.New(tracer, st, logger),
	}
	a.dispatcher = command.NewDispatcher(command.Core{
		Store:          st,
		Resolver:       a.resolver,
		Executor:       a.executor,
		Partitioner:    a.partition,
		Ingester:       ingester,
		Updater:        a.updater,
		ClusterBound:   cfg.ClusterSizeBound,
		UpdateInterval: cfg.UpdateInterval(),
		Logger:         logger,
	})
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", zap.Error(err))
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "override database path")

	ingestCmd.Flags().String("prefix", "", "source prefix recorded for ingested files")
	importCmd.Flags().String("checksum", "", "expected hex sha256 of the archive")

	rootCmd.AddCommand(serveCmd, ingestCmd, importCmd, clusterCmd, previewCmd, updateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
