// Package cmd defines and implements the CLI commands for the leadcrawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/app"
	"github.com/JakeFAU/remote-lead-crawler/internal/config"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
	"github.com/JakeFAU/remote-lead-crawler/internal/logging"
)

// envKeyType is the key for storing the loaded environment in the command context.
type envKeyType string

const envKey envKeyType = "env"

// env is what the root command prepares for its subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// Runner is the slice of *app.App the commands drive. Tests swap in a fake.
type Runner interface {
	Run(ctx context.Context) (crawler.RunState, error)
	Close()
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, opts app.Options, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, opts, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "leadcrawler",
		Short: "Discovers remote job postings and the contact emails behind them.",
		Long: `leadcrawler searches job boards for remote roles, resolves a contact
email for every posting through a bounded fallback chain, and checkpoints the
accepted leads so an interrupted run can be resumed.`,
		SilenceUsage: true,

		// Loads .env, configuration and the logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newRunCmd())

	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("configuration not loaded")
	}
	return e, nil
}

// Execute is the main entry point. Any command error exits with status 1.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "leadcrawler:", err)
		os.Exit(1)
	}
}
