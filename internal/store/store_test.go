package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtbeebe/taxcalc/internal/resultfile"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRecords() []resultfile.Record {
	return []resultfile.Record{
		resultfile.NewRecord(1, resultfile.Results{10, 20, 30, 40}),
		resultfile.NewRecord(2, resultfile.Results{11, 21, 31, 41}),
		resultfile.NewRecord(3, resultfile.Results{12, 22, 32, 42}),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestWriteAndReadSession(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	sess := Session{
		ID:            NewSessionID(),
		StartedAt:     started,
		FinishedAt:    started.Add(90 * time.Second),
		NumReforms:    3,
		MismatchCount: 0,
		Verdict:       VerdictMatch,
	}
	require.NoError(t, st.WriteSession(ctx, sess, sampleRecords()))

	got, err := st.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.True(t, got.StartedAt.Equal(sess.StartedAt))
	assert.True(t, got.FinishedAt.Equal(sess.FinishedAt))
	assert.Equal(t, 3, got.NumReforms)
	assert.Equal(t, 0, got.MismatchCount)
	assert.Equal(t, VerdictMatch, got.Verdict)

	recs, err := st.SessionResults(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.RID)
		assert.Equal(t, sampleRecords()[i].Res, rec.Res)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		sess := Session{
			ID:            NewSessionID(),
			StartedAt:     base.Add(time.Duration(i) * time.Hour),
			FinishedAt:    base.Add(time.Duration(i)*time.Hour + time.Minute),
			NumReforms:    3,
			MismatchCount: i,
			Verdict:       VerdictMismatch,
		}
		if i == 0 {
			sess.Verdict = VerdictMatch
			sess.MismatchCount = 0
		}
		require.NoError(t, st.WriteSession(ctx, sess, sampleRecords()))
		ids = append(ids, sess.ID)
	}

	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
	assert.Equal(t, ids[0], sessions[2].ID)
	assert.Equal(t, VerdictMatch, sessions[2].Verdict)
}

func TestGetSessionNotFound(t *testing.T) {
	st := openTestStore(t)

	_, err := st.GetSession(context.Background(), "absent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWriteSessionRejectsBadVerdict(t *testing.T) {
	st := openTestStore(t)

	sess := Session{
		ID:         NewSessionID(),
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		NumReforms: 3,
		Verdict:    "maybe",
	}
	err := st.WriteSession(context.Background(), sess, nil)
	require.Error(t, err)
}

func TestWriteSessionAtomic(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	// A duplicate rid violates the results primary key; the transaction
	// must roll back the session row too.
	sess := Session{
		ID:         NewSessionID(),
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		NumReforms: 2,
		Verdict:    VerdictMatch,
	}
	recs := []resultfile.Record{
		resultfile.NewRecord(1, resultfile.Results{1, 2, 3, 4}),
		resultfile.NewRecord(1, resultfile.Results{5, 6, 7, 8}),
	}
	require.Error(t, st.WriteSession(ctx, sess, recs))

	_, err := st.GetSession(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestNewSessionIDSortable(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}
