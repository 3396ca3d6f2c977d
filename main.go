// Command surge-agent derives and executes asset patches against the
// blockchain-style asset backend from tabular input and a task description.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/surgetech/surge-agent/pkg/assets"
	"github.com/surgetech/surge-agent/pkg/backend"
	"github.com/surgetech/surge-agent/pkg/config"
	"github.com/surgetech/surge-agent/pkg/llm"
	"github.com/surgetech/surge-agent/pkg/logging"
	"github.com/surgetech/surge-agent/pkg/mirror"
	"github.com/surgetech/surge-agent/pkg/pipeline"
	"github.com/surgetech/surge-agent/pkg/tabular"
)

// version is set at build time via -ldflags.
var version = "dev"

type runFlags struct {
	configPath string
	dataPath   string
	task       string
	assetType  string
	operation  string
	envs       []string
	dryRun     bool
	yes        bool
}

func main() {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:          "surge-agent",
		Short:        "Derive and execute asset patches against the asset backend",
		Version:      version,
		SilenceUsage: true,
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Derive patches from tabular input and apply them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd.Context(), flags)
		},
	}
	run.Flags().StringVar(&flags.configPath, "config", "config.yaml", "path to config file")
	run.Flags().StringVar(&flags.dataPath, "data", "", "path to the CSV input file")
	run.Flags().StringVar(&flags.task, "task", "", "task description")
	run.Flags().StringVar(&flags.assetType, "asset-type", "", "target asset type (e.g. SupplierLibraryEntry)")
	run.Flags().StringVar(&flags.operation, "operation", "", "operation: create, update, delete or deprecation")
	run.Flags().StringSliceVar(&flags.envs, "env", nil, "target environments (prod, preprod, test, dev)")
	run.Flags().BoolVar(&flags.dryRun, "dry-run", true, "log mutating calls instead of executing them")
	run.Flags().BoolVar(&flags.yes, "yes", false, "skip the confirmation prompt")
	_ = run.MarkFlagRequired("data")
	_ = run.MarkFlagRequired("task")
	_ = run.MarkFlagRequired("asset-type")
	_ = run.MarkFlagRequired("operation")
	_ = run.MarkFlagRequired("env")

	root.AddCommand(run)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, flags *runFlags) error {
	cfg, err := config.Load(flags.configPath, version)
	if err != nil {
		return err
	}
	cfg.DryRun = flags.dryRun

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	operation := assets.Operation(flags.operation)
	switch operation {
	case assets.OperationCreate, assets.OperationUpdate, assets.OperationDelete, assets.OperationDeprecation:
	default:
		return fmt.Errorf("unsupported operation: %s", flags.operation)
	}

	environments := make([]assets.Environment, 0, len(flags.envs))
	for _, e := range flags.envs {
		environments = append(environments, assets.Environment(e))
	}

	rows, err := tabular.RowsFromFile(flags.dataPath)
	if err != nil {
		return err
	}
	logger.Info("loaded input data", zap.Int("rows", len(rows)))

	mappingClient, err := llm.NewOpenAIClient(&llm.OpenAIConfig{
		Endpoint:          cfg.Extraction.BaseURL,
		Model:             cfg.Extraction.Model,
		APIKey:            cfg.Extraction.APIKey,
		Temperature:       cfg.Extraction.Temperature,
		RequestsPerSecond: cfg.Extraction.RequestsPerSecond,
	}, logger)
	if err != nil {
		return fmt.Errorf("init extraction model: %w", err)
	}
	resolverClient := llm.NewAnthropicClient(cfg.Resolver.APIKey, cfg.Resolver.Model, logger)

	p := pipeline.New(mappingClient, resolverClient, logger)
	sessions := mirrorSessions(cfg, logger)

	tasksByEnv, err := deriveTasks(ctx, p, flags, operation, rows, environments, sessions)
	if err != nil {
		return err
	}

	refresher := newRefresher(cfg, logger)

	for _, env := range environments {
		tasks := tasksByEnv[env]

		fmt.Printf("Environment %s (dry run: %v):\n", env, cfg.DryRun)
		for _, task := range tasks {
			fmt.Printf("  %s %d %s\n", task.Operation, len(task.Patches), task.AssetType)
		}

		if !flags.yes && !cfg.DryRun {
			if !confirm(fmt.Sprintf("Apply these changes to %s? (y/n): ", env)) {
				fmt.Printf("Skipping %s.\n", env)
				continue
			}
		}

		client := backend.New(backend.Config{
			BaseURL:       cfg.Backend.BaseURL(),
			TypeNamespace: cfg.Backend.TypeNamespace,
			Timeout:       cfg.Backend.Timeout(),
			DryRun:        cfg.DryRun,
		}, logger)
		engine := pipeline.NewEngine(client, refresher, logger)

		if err := engine.RunTasks(ctx, env, tasks); err != nil {
			logger.Error("task run failed", zap.String("env", string(env)), zap.Error(err))
			return err
		}
	}

	return nil
}

// deriveTasks builds the per-environment execution tasks. Deprecation is
// decomposed into primitive update/create/update tasks; everything else maps
// to a single task per environment.
func deriveTasks(ctx context.Context, p *pipeline.Pipeline, flags *runFlags, operation assets.Operation, rows []map[string]string, environments []assets.Environment, sessions pipeline.SessionFactory) (map[assets.Environment][]assets.ExecutionTask, error) {
	assetType := assets.AssetType(flags.assetType)

	if operation == assets.OperationDeprecation {
		deprecations, err := p.ExtractDeprecations(ctx, flags.task, rows)
		if err != nil {
			return nil, err
		}
		return p.DecomposeDeprecation(ctx, flags.task, deprecations, environments, sessions)
	}

	patchesByEnv, err := p.CreateEnrichedPatches(ctx, pipeline.PatchRequest{
		AssetType:       assetType,
		Operation:       operation,
		TaskDescription: flags.task,
		Rows:            rows,
	}, environments, sessions)
	if err != nil {
		return nil, err
	}

	tasksByEnv := make(map[assets.Environment][]assets.ExecutionTask, len(environments))
	for env, patches := range patchesByEnv {
		tasksByEnv[env] = []assets.ExecutionTask{{
			AssetType: assetType,
			Operation: operation,
			Patches:   patches,
		}}
	}
	return tasksByEnv, nil
}

// mirrorSessions opens a fresh mirror connection per environment with an
// explicit close, so the per-type cache never leaks across environments.
func mirrorSessions(cfg *config.Config, logger *zap.Logger) pipeline.SessionFactory {
	return func(ctx context.Context, env assets.Environment) (*pipeline.EnvSession, error) {
		m, err := mirror.NewMongo(mirror.Config{
			URI:      cfg.Mirror.URI,
			Database: cfg.Mirror.Database,
			Timeout:  cfg.Mirror.Timeout(),
		}, logger)
		if err != nil {
			return nil, err
		}
		return &pipeline.EnvSession{
			Mirror: m,
			Close:  m.Close,
		}, nil
	}
}

// newRefresher loads the machine secrets for downstream cache refreshes.
// A missing secrets file disables refresh with a warning; it never blocks the
// run.
func newRefresher(cfg *config.Config, logger *zap.Logger) *backend.CacheRefresher {
	secrets, err := backend.LoadSecrets(cfg.CacheRefresh.SecretsPath)
	if err != nil {
		logger.Warn("cache refresh disabled", zap.Error(err))
		return nil
	}
	return backend.NewCacheRefresher(secrets, cfg.CacheRefresh.Domain, cfg.CacheRefresh.Timeout(), logger)
}

func confirm(prompt string) bool {
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print(prompt)
		answer, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		default:
			fmt.Println("Please enter Yes/No or Y/N.")
		}
	}
}
