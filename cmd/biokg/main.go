package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/biomedkg/biokg/internal/config"
	"github.com/biomedkg/biokg/internal/graph"
	"github.com/biomedkg/biokg/internal/metrics"
	"github.com/biomedkg/biokg/internal/pipeline"
	"github.com/biomedkg/biokg/internal/platform/logger"
	"github.com/biomedkg/biokg/internal/platform/neo4jdb"
	"github.com/biomedkg/biokg/internal/resolve"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	log    *logger.Logger
	client *neo4jdb.Client
	loader *graph.Loader
	store  *graph.CheckpointStore
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "biokg",
		Short:         "Build and validate the biomedical knowledge graph",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	root.AddCommand(
		newBuildCmd(&configPath),
		newSchemaCmd(&configPath),
		newValidateCmd(&configPath),
		newResetCmd(&configPath),
	)
	return root
}

// setup wires the shared infrastructure: config, logger, store client,
// batched loader, and the checkpoint store.
func setup(configPath string) (*app, error) {
	log, err := logger.New(config.GetEnv("LOG_MODE", "development", nil))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(configPath, log)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := neo4jdb.New(neo4jdb.Config{
		URI:            cfg.Neo4j.URI,
		User:           cfg.Neo4j.User,
		Password:       cfg.Neo4j.Password,
		Database:       cfg.Neo4j.Database,
		TimeoutSeconds: cfg.Neo4j.TimeoutSeconds,
		MaxPoolSize:    cfg.Neo4j.MaxPoolSize,
	}, log)
	if err != nil {
		return nil, err
	}

	loader := graph.NewLoader(client, log, graph.Options{
		BatchSize:    cfg.Batch.Size,
		MaxBatchSize: cfg.Batch.MaxSize,
		Retry: graph.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Retryable:   neo4jdb.IsTransient,
			MinBackoff:  cfg.Retry.MinBackoff,
			MaxBackoff:  cfg.Retry.MaxBackoff,
			JitterFrac:  cfg.Retry.JitterFrac,
		},
		IsConstraintViolation: neo4jdb.IsConstraintViolation,
	})

	return &app{
		cfg:    cfg,
		log:    log,
		client: client,
		loader: loader,
		store:  &graph.CheckpointStore{Path: cfg.CheckpointPath},
	}, nil
}

func (a *app) close(ctx context.Context) {
	if err := a.client.Close(ctx); err != nil {
		a.log.Warn("closing store client", "error", err)
	}
	a.log.Sync()
}

func newBuildCmd(configPath *string) *cobra.Command {
	var resetCheckpoint bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the full build pipeline, resuming from the last checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.close(ctx)

			if resetCheckpoint {
				if err := a.store.Reset(); err != nil {
					return fmt.Errorf("reset checkpoint: %w", err)
				}
				a.log.Info("checkpoint reset, starting fresh")
			}

			var report *metrics.Report
			deps := pipeline.Deps{
				Client:   a.client,
				Loader:   a.loader,
				Resolver: resolve.New(a.log),
				Config:   a.cfg,
				Log:      a.log,
				Report:   &report,
			}
			p := pipeline.New(pipeline.BuildStages(deps), a.store, a.log)
			run, runErr := p.Run(ctx)
			if run != nil {
				printRun(cmd, run)
			}
			if report != nil {
				printReport(cmd, report)
			}
			return runErr
		},
	}
	cmd.Flags().BoolVar(&resetCheckpoint, "reset-checkpoint", false,
		"discard the saved checkpoint and rebuild from scratch")
	return cmd
}

func newSchemaCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Apply uniqueness constraints and indexes only",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.close(ctx)
			return graph.InitSchema(ctx, a.client, a.log)
		},
	}
}

func newValidateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "validate",
		Aliases: []string{"metrics"},
		Short:   "Run the read-only validation pass against the current graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.close(ctx)

			report, err := metrics.NewCollector(a.client, a.log).Collect(ctx)
			if err != nil {
				return err
			}
			printReport(cmd, report)
			if !report.Healthy() {
				return fmt.Errorf("validation failed with %d hard failure(s)", len(report.HardFailures))
			}
			return nil
		},
	}
}

func newResetCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-checkpoint",
		Short: "Discard the saved checkpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer a.close(cmd.Context())
			return a.store.Reset()
		},
	}
}

func printRun(cmd *cobra.Command, run *pipeline.Report) {
	cmd.Printf("run %s\n", run.RunID)
	for _, st := range run.Stages {
		line := fmt.Sprintf("  %-32s %s", st.Name, st.Status)
		if st.Status == pipeline.StatusCompleted {
			line += fmt.Sprintf(" (%s)", st.Duration.Round(time.Millisecond))
		}
		if st.Err != nil {
			line += fmt.Sprintf(": %v", st.Err)
		}
		cmd.Println(line)
	}
}

func printReport(cmd *cobra.Command, r *metrics.Report) {
	cmd.Println("nodes:")
	for _, k := range sortedKeys(r.NodeCounts) {
		cmd.Printf("  %-24s %d\n", k, r.NodeCounts[k])
	}
	cmd.Println("relationships:")
	for _, k := range sortedKeys(r.RelCounts) {
		cmd.Printf("  %-24s %d\n", k, r.RelCounts[k])
	}
	if len(r.GONamespaces) > 0 {
		cmd.Println("go terms by namespace:")
		for _, k := range sortedKeys(r.GONamespaces) {
			cmd.Printf("  %-24s %d\n", k, r.GONamespaces[k])
		}
	}
	cmd.Printf("multi-modal genes: %d\n", r.MultiModal)
	for _, w := range r.Warnings {
		cmd.Printf("warning: %s\n", w)
	}
	for _, f := range r.HardFailures {
		cmd.Printf("FAILURE: %s\n", f)
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
