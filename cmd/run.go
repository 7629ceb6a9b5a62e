package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/remote-lead-crawler/internal/app"
	"github.com/JakeFAU/remote-lead-crawler/internal/crawler"
)

// newRunCmd creates the 'run' subcommand, which executes one pipeline run.
func newRunCmd() *cobra.Command {
	var opts app.Options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the lead discovery pipeline",
		Long: `Searches every configured source for each search term until the target
number of leads is reached or every term is exhausted. SIGINT or SIGTERM stops the
run and saves the leads found so far; --resume continues from the last checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.Target, "target", 0, "number of leads to collect (overrides run.target)")
	cmd.Flags().BoolVar(&opts.Resume, "resume", false, "resume from the last saved checkpoint")
	return cmd
}

func runPipeline(ctx context.Context, opts app.Options) error {
	e, err := resolveEnv(ctx)
	if err != nil {
		return err
	}
	if opts.Target < 0 {
		return fmt.Errorf("%w: --target must be positive", crawler.ErrFatalConfig)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := newApp(ctx, e.cfg, opts, e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer runner.Close()

	state, err := runner.Run(ctx)
	switch state {
	case crawler.RunStateCompleted:
		e.logger.Info("run completed")
		return nil
	case crawler.RunStateInterrupted:
		e.logger.Warn("run interrupted; partial results saved")
		return nil
	default:
		if err == nil {
			err = fmt.Errorf("run ended in state %s", state)
		}
		e.logger.Error("run failed", zap.Error(err))
		return fmt.Errorf("run failed: %w", err)
	}
}
