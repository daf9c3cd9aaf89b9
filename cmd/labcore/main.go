// Command labcore is the operational entry point for the catalog core. It
// opens the configured persistent store, registers the built-in plugins,
// and exposes plugin inspection and analysis dispatch.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"labcore/internal/artifacts"
	"labcore/internal/core"
	"labcore/pkg/domain"
	"labcore/pkg/pluginapi"
	"labcore/plugins/pixeltrack"
)

var version = "dev"

var (
	runExperiment string
	runPlugin     string
	runCapability string
	runConfig     map[string]string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "labcore",
		Short:         "Research catalog core: plugin registry, dispatcher, repositories",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("storage", "", "storage driver: memory|sqlite|postgres (default sqlite)")
	_ = viper.BindPFlag("storage_driver", root.PersistentFlags().Lookup("storage"))
	viper.SetEnvPrefix("LABCORE")
	viper.AutomaticEnv()

	root.AddCommand(newPluginsCmd(), newRunCmd(), newVersionCmd())
	return root
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(viper.GetString("log_level")); err == nil && viper.GetString("log_level") != "" {
		level = parsed
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

type runtime struct {
	store      core.PersistentStore
	registry   *core.Registry
	repos      *core.Repositories
	dispatcher *core.Dispatcher
	logger     zerolog.Logger
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	if driver := viper.GetString("storage_driver"); driver != "" {
		if err := os.Setenv("LABCORE_STORAGE_DRIVER", driver); err != nil {
			return nil, err
		}
	}
	logger := newLogger()
	store, err := core.OpenPersistentStore()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	registry := core.NewRegistry(store, logger)
	if _, err := registry.Discover(cmd.Context(), pluginapi.StaticSource(pixeltrack.New())); err != nil {
		return nil, fmt.Errorf("register plugins: %w", err)
	}
	repos := core.NewRepositories(store)
	metrics, err := core.NewPrometheusMetricsRecorder(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	return &runtime{
		store:      store,
		registry:   registry,
		repos:      repos,
		dispatcher: core.NewDispatcher(registry, repos, metrics, logger),
		logger:     logger,
	}, nil
}

func newPluginsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugins as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			descriptors := make([]core.PluginDescriptor, 0)
			for _, plugin := range rt.registry.Plugins() {
				descriptors = append(descriptors, plugin.Describe())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(descriptors)
		},
	}
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch one analysis capability against an experiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := openRuntime(cmd)
			if err != nil {
				return err
			}
			cfg := pluginapi.Config{}
			for k, v := range runConfig {
				cfg[k] = v
			}
			result, err := rt.dispatcher.RunAnalysis(cmd.Context(), runExperiment, runPlugin, runCapability, cfg)
			if err != nil {
				return err
			}
			if len(result.OutputFiles) > 0 && viper.GetString("artifact_driver") != "" {
				store, err := artifacts.Open(cmd.Context())
				if err != nil {
					return fmt.Errorf("open artifact store: %w", err)
				}
				key := domain.ResultKey{ExperimentID: runExperiment, PluginName: runPlugin, Capability: runCapability}
				if err := archiveOutputs(cmd.Context(), store, key, result.OutputFiles); err != nil {
					return err
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&runExperiment, "experiment", "", "experiment id (required)")
	cmd.Flags().StringVar(&runPlugin, "plugin", "", "plugin name (required)")
	cmd.Flags().StringVar(&runCapability, "capability", "", "capability name (required)")
	cmd.Flags().StringToStringVar(&runConfig, "config", nil, "project configuration key=value pairs")
	_ = cmd.MarkFlagRequired("experiment")
	_ = cmd.MarkFlagRequired("plugin")
	_ = cmd.MarkFlagRequired("capability")
	return cmd
}

// archiveOutputs copies the dispatch's output files into the artifact
// store under the result's key prefix, so re-running a dispatch overwrites
// its previous artifacts.
func archiveOutputs(ctx context.Context, store artifacts.Store, key domain.ResultKey, paths []string) error {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open output %s: %w", path, err)
		}
		_, putErr := store.Put(ctx, artifacts.ResultKeyFor(key, filepath.Base(path)), f, artifacts.PutOptions{})
		closeErr := f.Close()
		if putErr != nil {
			return fmt.Errorf("archive %s: %w", path, putErr)
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the labcore version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "labcore %s (plugin contract %s)\n", version, pluginapi.Version)
		},
	}
}
