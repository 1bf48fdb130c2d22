package cli

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jtbeebe/taxcalc/internal/barrier"
	"github.com/jtbeebe/taxcalc/internal/compare"
	"github.com/jtbeebe/taxcalc/internal/harness"
	"github.com/jtbeebe/taxcalc/internal/reform"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	WorkerIndex int

	// Runner allows overriding the engine runner (for testing).
	// If nil, one is built from the config's engine section.
	Runner harness.Runner
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yaml>",
		Short: "Run one worker of a regression session",
		Long: `Run one worker of a multi-worker regression session.

Every worker process of a session is started with the same configuration
file and a distinct --worker-index. Worker 0 coordinates: it clears stale
artifacts, raises the init flag, and after all result files appear it
aggregates them and compares against the committed baseline. The other
workers wait for the flag, evaluate their assigned reforms, and exit.

Example:
  taxharness run ./harness.yaml --worker-index 0
  taxharness run ./harness.yaml --worker-index 3 --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.WorkerIndex, "worker-index", 0, "this worker's index (0 = coordinator)")

	return cmd
}

func runWorker(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)

	cfg, err := harness.LoadConfig(configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	var catalog *reform.Catalog
	if cfg.Reforms != "" {
		catalog, err = reform.LoadCatalog(cfg.Reforms)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load reform catalog", err)
		}
		logger.Info("reform catalog loaded", "dir", cfg.Reforms, "reforms", catalog.Len())
	}

	runner := opts.Runner
	if runner == nil {
		if cfg.Engine == nil {
			return NewExitError(ExitCommandError, "config has no engine section")
		}
		runner = harness.NewCommandRunner(*cfg.Engine)
	}

	session, err := harness.NewSession(*cfg, opts.WorkerIndex, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create session", err)
	}

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("worker starting",
		"role", session.Role().String(),
		"index", opts.WorkerIndex,
		"dir", cfg.Dir,
	)

	if err := session.Start(ctx); err != nil {
		return classifyRunError("initialization failed", err)
	}
	if err := session.RunAssigned(ctx, catalog, runner); err != nil {
		return classifyRunError("reform evaluation failed", err)
	}
	if err := session.Finish(ctx); err != nil {
		var mm *compare.MismatchError
		if errors.As(err, &mm) {
			// The full diagnostic report belongs on stdout so it
			// survives log filtering and ends up in CI transcripts.
			cmd.Println(mm.Error())
			return WrapExitError(ExitFailure, "actual results differ from baseline", err)
		}
		return classifyRunError("completion failed", err)
	}

	logger.Info("worker finished", "role", session.Role().String())
	return nil
}

// classifyRunError maps session errors to exit codes: a barrier timeout is a
// regression signal (a peer is stuck or dead), everything else is an
// environment or configuration problem.
func classifyRunError(msg string, err error) error {
	if barrier.IsTimeout(err) {
		return WrapExitError(ExitFailure, msg, err)
	}
	return WrapExitError(ExitCommandError, msg, err)
}
