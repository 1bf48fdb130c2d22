package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

// ErrSessionNotFound is returned when a session id has no archived row.
var ErrSessionNotFound = errors.New("session not found")

// ListSessions returns all archived sessions, newest first.
// Ordering includes the id as a tiebreaker so results are deterministic.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, num_reforms, mismatch_count, verdict
		FROM sessions
		ORDER BY started_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// GetSession returns the archived session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, num_reforms, mismatch_count, verdict
		FROM sessions
		WHERE id = ?
	`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, err
}

// SessionResults returns the archived aggregate rows for a session,
// ordered by reform id.
func (s *Store) SessionResults(ctx context.Context, sessionID string) ([]resultfile.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rid, res1, res2, res3, res4
		FROM results
		WHERE session_id = ?
		ORDER BY rid ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session results: %w", err)
	}
	defer rows.Close()

	var recs []resultfile.Record
	for rows.Next() {
		var rid int
		var res resultfile.Results
		if err := rows.Scan(&rid, &res[0], &res[1], &res[2], &res[3]); err != nil {
			return nil, fmt.Errorf("session results: %w", err)
		}
		recs = append(recs, resultfile.NewRecord(rid, res))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session results: %w", err)
	}
	return recs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(sc scanner) (Session, error) {
	var sess Session
	var started, finished string
	if err := sc.Scan(&sess.ID, &started, &finished, &sess.NumReforms, &sess.MismatchCount, &sess.Verdict); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	var err error
	if sess.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	if sess.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Session{}, fmt.Errorf("parse finished_at: %w", err)
	}
	return sess, nil
}
