package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// PromoteResult holds promotion results for JSON output.
type PromoteResult struct {
	Rows     int    `json:"rows"`
	Baseline string `json:"baseline"`
}

// NewPromoteCommand creates the promote command.
func NewPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := struct {
		Keep bool
	}{}

	cmd := &cobra.Command{
		Use:   "promote <dir>",
		Short: "Adopt a retained actual-results artifact as the new baseline",
		Long: `Adopt a retained actual-results artifact as the new baseline.

After a mismatched session, once the actual values have been reviewed and
judged correct, promote copies the retained artifact over the baseline
byte-for-byte and removes the artifact. Because sessions write producer
data lines verbatim, a promoted baseline matches the next identical run
exactly.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPromote(rootOpts, args[0], opts.Keep, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Keep, "keep", false, "keep the actual-results artifact after promotion")

	return cmd
}

func runPromote(opts *RootOptions, dir string, keep bool, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	actualPath := resultfile.ActualPath(dir)
	expectPath := resultfile.ExpectPath(dir)

	// Parse before copying so a corrupt artifact never becomes the baseline.
	recs, err := resultfile.LoadTable(actualPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("no actual-results artifact at %s: nothing to promote", actualPath))
		}
		return WrapExitError(ExitCommandError, "refusing to promote malformed artifact", err)
	}

	data, err := os.ReadFile(actualPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read artifact", err)
	}
	if err := os.WriteFile(expectPath, data, 0o644); err != nil {
		return WrapExitError(ExitCommandError, "failed to write baseline", err)
	}
	if !keep {
		if err := os.Remove(actualPath); err != nil {
			return WrapExitError(ExitCommandError, "failed to remove promoted artifact", err)
		}
	}
	formatter.VerboseLog("Promoted %d rows from %s", len(recs), actualPath)

	if formatter.Format == "json" {
		return formatter.Success(PromoteResult{Rows: len(recs), Baseline: expectPath})
	}
	fmt.Fprintf(formatter.Writer, "✓ Promoted %d reforms to baseline %s\n", len(recs), expectPath)
	return nil
}
