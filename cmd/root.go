// Package cmd defines the CLI commands of the collector executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/press-release-collector/internal/app"
	"github.com/JakeFAU/press-release-collector/internal/collector"
	"github.com/JakeFAU/press-release-collector/internal/config"
	"github.com/JakeFAU/press-release-collector/internal/logging"
	"github.com/JakeFAU/press-release-collector/internal/progress"
)

// Pipelines is what the commands need from the application. Tests swap in a
// fake through newPipelines.
type Pipelines interface {
	CollectSERP(ctx context.Context, queries []collector.Query) (app.RunReport, error)
	ScrapeContent(ctx context.Context, urls []string) (app.RunReport, error)
	Runs() progress.RunReader
	Close(ctx context.Context) error
}

// newPipelines is the application factory.
var newPipelines = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Pipelines, error) {
	return app.New(ctx, cfg, logger)
}

type stateKeyType struct{}

// state is built once by the root command and shared with subcommands.
type state struct {
	cfg       config.Config
	logger    *zap.Logger
	pipelines Pipelines
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Collects press releases from newsroom search results.",
		Long: `collector walks paginated search results for a list of newsroom sites,
then scrapes each result page into a structured content record, falling back
through progressively heavier extraction strategies.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			pipelines, err := newPipelines(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), stateKeyType{}, &state{
				cfg:       cfg,
				logger:    logger,
				pipelines: pipelines,
			}))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")
	cmd.AddCommand(newSERPCmd(), newScrapeCmd(), newRunCmd(), newServeCmd())
	return cmd
}

// withState hands the shared state to run and closes the application
// afterwards, whether run failed or not.
func withState(run func(cmd *cobra.Command, st *state, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		st, err := stateFrom(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			closeErr := st.pipelines.Close(context.WithoutCancel(cmd.Context()))
			_ = st.logger.Sync()
			if err == nil {
				err = closeErr
			}
		}()
		return run(cmd, st, args)
	}
}

func stateFrom(ctx context.Context) (*state, error) {
	st, ok := ctx.Value(stateKeyType{}).(*state)
	if !ok || st == nil {
		return nil, errors.New("application state not initialized")
	}
	return st, nil
}

// Execute runs the root command until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		stop()
		os.Exit(1)
	}
}
