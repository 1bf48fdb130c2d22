package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
	"github.com/jtbeebe/taxcalc/internal/store"
)

// SessionSummary is the JSON shape of one archived session.
type SessionSummary struct {
	ID            string `json:"id"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at"`
	NumReforms    int    `json:"num_reforms"`
	MismatchCount int    `json:"mismatch_count"`
	Verdict       string `json:"verdict"`
}

// SessionDetail extends a summary with the archived per-reform values.
type SessionDetail struct {
	SessionSummary
	Results []SessionRow `json:"results"`
}

// SessionRow is one archived reform result row.
type SessionRow struct {
	RID  int        `json:"rid"`
	Res  [4]float64 `json:"res"`
	Line string     `json:"line"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := struct {
		Database string
	}{}

	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "List archived regression sessions",
		Long: `List archived regression sessions, newest first.

With a session id, show that session's archived per-reform values instead.
Sessions are archived only when the harness config sets an archive path.

Example:
  taxharness history --db ./archive.db
  taxharness history --db ./archive.db 0192a7e4-... --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := ""
			if len(args) == 1 {
				sessionID = args[0]
			}
			return runHistory(rootOpts, opts.Database, sessionID, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the session archive database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *RootOptions, dbPath, sessionID string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open archive", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if sessionID != "" {
		return showSession(ctx, formatter, st, sessionID)
	}
	return listSessions(ctx, formatter, st)
}

func listSessions(ctx context.Context, formatter *OutputFormatter, st *store.Store) error {
	sessions, err := st.ListSessions(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list sessions", err)
	}

	if formatter.Format == "json" {
		summaries := make([]SessionSummary, 0, len(sessions))
		for _, s := range sessions {
			summaries = append(summaries, summarize(s))
		}
		return formatter.Success(summaries)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(formatter.Writer, "No archived sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Fprintf(formatter.Writer, "%s  %s  %-8s  reforms=%d  mismatches=%d\n",
			s.ID,
			s.StartedAt.Format(time.RFC3339),
			s.Verdict,
			s.NumReforms,
			s.MismatchCount,
		)
	}
	return nil
}

func showSession(ctx context.Context, formatter *OutputFormatter, st *store.Store, id string) error {
	sess, err := st.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return NewExitError(ExitCommandError, fmt.Sprintf("session %s not found", id))
		}
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}
	recs, err := st.SessionResults(ctx, id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session results", err)
	}

	if formatter.Format == "json" {
		detail := SessionDetail{SessionSummary: summarize(sess)}
		for _, rec := range recs {
			detail.Results = append(detail.Results, SessionRow{
				RID:  rec.RID,
				Res:  rec.Res,
				Line: rec.DataLine(),
			})
		}
		return formatter.Success(detail)
	}

	fmt.Fprintf(formatter.Writer, "Session %s (%s)\n", sess.ID, sess.Verdict)
	fmt.Fprintf(formatter.Writer, "  started  %s\n", sess.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(formatter.Writer, "  finished %s\n", sess.FinishedAt.Format(time.RFC3339))
	fmt.Fprintf(formatter.Writer, "  reforms %d, mismatches %d\n", sess.NumReforms, sess.MismatchCount)
	fmt.Fprintln(formatter.Writer, resultfile.Header)
	for _, rec := range recs {
		fmt.Fprintln(formatter.Writer, rec.DataLine())
	}
	return nil
}

func summarize(s store.Session) SessionSummary {
	return SessionSummary{
		ID:            s.ID,
		StartedAt:     s.StartedAt.Format(time.RFC3339Nano),
		FinishedAt:    s.FinishedAt.Format(time.RFC3339Nano),
		NumReforms:    s.NumReforms,
		MismatchCount: s.MismatchCount,
		Verdict:       s.Verdict,
	}
}
