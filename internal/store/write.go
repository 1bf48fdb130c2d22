package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// Verdict values recorded for a session.
const (
	VerdictMatch    = "match"
	VerdictMismatch = "mismatch"
)

// Session is one archived coordinator run.
type Session struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	NumReforms    int
	MismatchCount int
	Verdict       string
}

// WriteSession inserts a session row together with its aggregated results
// in a single transaction, so history never contains a session without its
// values or vice versa.
func (s *Store) WriteSession(ctx context.Context, sess Session, recs []resultfile.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions
		(id, started_at, finished_at, num_reforms, mismatch_count, verdict)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		sess.ID,
		sess.StartedAt.UTC().Format(time.RFC3339Nano),
		sess.FinishedAt.UTC().Format(time.RFC3339Nano),
		sess.NumReforms,
		sess.MismatchCount,
		sess.Verdict,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (session_id, rid, res1, res2, res3, res4)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write session results: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, sess.ID, rec.RID, rec.Res[0], rec.Res[1], rec.Res[2], rec.Res[3]); err != nil {
			return fmt.Errorf("write session result for reform %d: %w", rec.RID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}
