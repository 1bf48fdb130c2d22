package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/jtbeebe/taxcalc/internal/compare"
	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// VerifyResult holds comparison results for JSON output.
type VerifyResult struct {
	Match      bool               `json:"match"`
	Rows       int                `json:"rows"`
	Values     int                `json:"values"`
	Mismatches []compare.Mismatch `json:"mismatches,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <dir>",
		Short: "Compare a retained actual-results artifact against the baseline",
		Long: `Compare a retained actual-results artifact against the committed baseline.

A mismatched session leaves its aggregated actual results in the shared
directory. verify re-runs the bit-for-bit comparison without starting a new
session, so a retained artifact can be re-examined after the fact.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runVerify(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	actualPath := resultfile.ActualPath(dir)
	expectPath := resultfile.ExpectPath(dir)

	actual, err := resultfile.LoadTable(actualPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("no actual-results artifact at %s: nothing to verify", actualPath))
		}
		return WrapExitError(ExitCommandError, "failed to load actual results", err)
	}
	expect, err := resultfile.LoadTable(expectPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load baseline", err)
	}
	formatter.VerboseLog("Comparing %d actual rows against %s", len(actual), expectPath)

	result, err := compare.Tables(actual, expect)
	if err != nil {
		return WrapExitError(ExitFailure, "comparison failed", err)
	}

	if result.AnyMismatch() {
		if formatter.Format == "json" {
			_ = json.NewEncoder(formatter.Writer).Encode(CLIResponse{
				Status: "error",
				Data: VerifyResult{
					Match:      false,
					Rows:       result.Rows,
					Values:     result.Values,
					Mismatches: result.Mismatches,
				},
				Error: &CLIError{
					Code:    "baseline_mismatch",
					Message: fmt.Sprintf("%d of %d values differ", len(result.Mismatches), result.Values),
				},
			})
		} else {
			fmt.Fprintln(formatter.Writer, result.Report(actualPath, expectPath))
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d values differ from baseline", len(result.Mismatches), result.Values))
	}

	if formatter.Format == "json" {
		return formatter.Success(VerifyResult{Match: true, Rows: result.Rows, Values: result.Values})
	}
	fmt.Fprintf(formatter.Writer, "✓ Actual results match baseline (%d reforms)\n", result.Rows)
	return nil
}
