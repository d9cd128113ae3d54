// Package cmd defines the CLI commands for the jobcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobposting-crawler/internal/api"
	"github.com/JakeFAU/jobposting-crawler/internal/app"
	"github.com/JakeFAU/jobposting-crawler/internal/config"
	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
	"github.com/JakeFAU/jobposting-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the application surface the commands use.
// Tests swap in a fake through newApp.
type App interface {
	Run(ctx context.Context) (crawler.RunReport, error)
	OpsHandler(trigger api.Trigger) http.Handler
	Logger() *zap.Logger
	Config() config.Config
	Close()
}

// newApp is the application factory.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "jobcrawler",
		Short: "Crawls job-board search results into a relational store.",
		Long: `jobcrawler resolves the keywords to crawl, probes each one for volume,
walks the paginated search results (per region for high-volume keywords),
and stores the extracted postings together with a per-run log entry.`,
		SilenceUsage: true,

		// Build the application after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := cfgFile
			if path == "" {
				path = config.Discover()
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: first config.yaml in ., /etc/jobcrawler, $HOME/.jobcrawler)")

	cmd.AddCommand(newRunCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// withApp resolves the App for a subcommand and closes it once the
// subcommand returns, including on error.
func withApp(run func(cmd *cobra.Command, appInstance App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			appInstance.Close()
			_ = appInstance.Logger().Sync()
		}()
		return run(cmd, appInstance)
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
