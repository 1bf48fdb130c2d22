// Package harness implements the multi-worker reform-regression protocol.
//
// A regression run evaluates N independent reform scenarios across several
// worker processes that share nothing but a filesystem directory. One worker
// (index 0, fixed by convention) is the coordinator; the rest are pure
// producers. The coordinator clears stale artifacts and raises an init flag;
// producers wait on the flag, evaluate their assigned reforms, and write one
// result file apiece; the coordinator waits for all N result files, folds
// them into a single ordered table, compares it bit-for-bit against the
// checked-in baseline, and cleans up. On mismatch the aggregated actual
// results are retained for inspection and possible promotion.
//
// Both waits are bounded polls (see the barrier package): workers share no
// IPC channel besides the filesystem, so push notification is unavailable
// and a stuck peer must surface as a timeout, not a hang.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jtbeebe/taxcalc/internal/barrier"
	"github.com/jtbeebe/taxcalc/internal/compare"
	"github.com/jtbeebe/taxcalc/internal/reform"
	"github.com/jtbeebe/taxcalc/internal/resultfile"
	"github.com/jtbeebe/taxcalc/internal/store"
)

// Role distinguishes the one coordinating worker from producers.
type Role int

const (
	// RoleProducer evaluates its reform subset and writes result files.
	RoleProducer Role = iota

	// RoleCoordinator additionally owns initialization, aggregation,
	// comparison, and cleanup. Exactly one worker holds this role.
	RoleCoordinator
)

// String implements fmt.Stringer.
func (r Role) String() string {
	if r == RoleCoordinator {
		return "coordinator"
	}
	return "producer"
}

// Session is one worker's view of a regression run.
//
// Lifecycle is Start, RunAssigned, Finish, in that order, once per run.
// There is no retry or re-entry: any error aborts the session.
type Session struct {
	cfg         Config
	workerIndex int
	logger      *slog.Logger
	startedAt   time.Time

	// sleep is the barrier sleep; in-package tests substitute a fake.
	sleep func(ctx context.Context, d time.Duration) error

	// now is the clock used for archive timestamps.
	now func() time.Time
}

// NewSession creates the session for one worker of a run.
//
// workerIndex identifies this worker in [0, cfg.WorkerCount); index 0 is the
// coordinator. The role is fixed here, by injected configuration, and is
// never read from the environment.
func NewSession(cfg Config, workerIndex int, logger *slog.Logger) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if workerIndex < 0 || workerIndex >= cfg.WorkerCount {
		return nil, fmt.Errorf("worker index %d outside 0..%d", workerIndex, cfg.WorkerCount-1)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:         cfg,
		workerIndex: workerIndex,
		logger:      logger.With("worker", workerIndex),
		now:         time.Now,
	}, nil
}

// Role returns this worker's role.
func (s *Session) Role() Role {
	if s.workerIndex == 0 {
		return RoleCoordinator
	}
	return RoleProducer
}

// Assigned returns this worker's reform ids in ascending order.
//
// Reforms are dealt round-robin: worker w owns every rid with
// (rid-1) mod WorkerCount == w. Subsets are disjoint and cover 1..N, so no
// two workers ever write the same result file.
func (s *Session) Assigned() []int {
	var rids []int
	for rid := s.workerIndex + 1; rid <= s.cfg.NumReforms; rid += s.cfg.WorkerCount {
		rids = append(rids, rid)
	}
	return rids
}

// Start runs the initialization phase.
//
// The coordinator deletes any artifacts left by a prior interrupted run and
// raises the init flag. Producers block on the flag's existence, which
// guarantees no producer writes a result file into a directory that still
// holds stale state.
func (s *Session) Start(ctx context.Context) error {
	s.startedAt = s.now()
	if s.Role() == RoleCoordinator {
		return s.initialize()
	}
	return s.awaitInit(ctx)
}

func (s *Session) initialize() error {
	dir := s.cfg.Dir

	if err := removeIfExists(resultfile.ActualPath(dir)); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	stale, err := resultfile.ListResults(dir)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("initialize: remove stale result file: %w", err)
		}
	}
	if len(stale) > 0 {
		s.logger.Info("removed stale result files from prior run", "count", len(stale))
	}

	if err := os.WriteFile(resultfile.InitFlagPath(dir), []byte(resultfile.InitFlagContent), 0o644); err != nil {
		return fmt.Errorf("initialize: create init flag: %w", err)
	}
	s.logger.Info("initialization done", "dir", dir, "reforms", s.cfg.NumReforms)
	return nil
}

func (s *Session) awaitInit(ctx context.Context) error {
	flag := resultfile.InitFlagPath(s.cfg.Dir)
	s.logger.Debug("waiting for init flag", "path", flag)
	err := barrier.Await(ctx, func() (bool, error) {
		return fileExists(flag)
	}, s.barrierOptions())
	if err != nil {
		return fmt.Errorf("init wait: %w", err)
	}
	return nil
}

// RunAssigned evaluates this worker's reform subset, writing one result file
// per reform. The catalog may be nil when the runner needs only reform ids.
func (s *Session) RunAssigned(ctx context.Context, catalog *reform.Catalog, runner Runner) error {
	if catalog != nil && catalog.Len() != s.cfg.NumReforms {
		return fmt.Errorf("catalog has %d reforms, config expects %d", catalog.Len(), s.cfg.NumReforms)
	}
	for _, rid := range s.Assigned() {
		rf := reform.Reform{ID: rid}
		if catalog != nil {
			var ok bool
			if rf, ok = catalog.ByID(rid); !ok {
				return fmt.Errorf("reform %d missing from catalog", rid)
			}
		}
		res, err := runner.Run(ctx, rf)
		if err != nil {
			return fmt.Errorf("reform %d: %w", rid, err)
		}
		if err := resultfile.Write(s.cfg.Dir, resultfile.NewRecord(rid, res)); err != nil {
			return err
		}
		s.logger.Debug("scenario complete", "reform", rid, "name", rf.Name)
	}
	return nil
}

// Finish runs the completion phase.
//
// Producers are done once their result files exist. The coordinator waits
// for all N result files, aggregates them in reform-id order with
// exactly-once consumption, writes the actual-results artifact, compares it
// against the baseline, archives the session if configured, and cleans up.
// The init flag is always removed; the actual artifact is removed only when
// the comparison found no mismatch.
func (s *Session) Finish(ctx context.Context) error {
	if s.Role() != RoleCoordinator {
		s.logger.Debug("producer finished")
		return nil
	}

	dir := s.cfg.Dir
	if err := s.awaitCompletion(ctx); err != nil {
		return err
	}

	recs, err := s.aggregate()
	if err != nil {
		// Fail fast: a malformed or missing result file is a producer
		// defect. Aggregation may already have consumed earlier files;
		// the next coordinator Start clears whatever remains.
		return err
	}

	actualPath := resultfile.ActualPath(dir)
	if err := resultfile.WriteTable(actualPath, recs); err != nil {
		return err
	}

	expect, err := resultfile.LoadTable(resultfile.ExpectPath(dir))
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}
	result, err := compare.Tables(recs, expect)
	if err != nil {
		return err
	}

	if err := s.archive(ctx, result, recs); err != nil {
		return err
	}

	// Unconditional cleanup: the init flag never survives a session.
	if err := os.Remove(resultfile.InitFlagPath(dir)); err != nil {
		return fmt.Errorf("remove init flag: %w", err)
	}

	if result.AnyMismatch() {
		s.logger.Error("actual results differ from baseline",
			"mismatches", len(result.Mismatches),
			"artifact", actualPath,
		)
		return &compare.MismatchError{
			Result:     result,
			ActualPath: actualPath,
			ExpectPath: resultfile.ExpectPath(dir),
		}
	}

	if err := os.Remove(actualPath); err != nil {
		return fmt.Errorf("remove actual artifact: %w", err)
	}
	s.logger.Info("actual results match baseline", "reforms", s.cfg.NumReforms)
	return nil
}

func (s *Session) awaitCompletion(ctx context.Context) error {
	dir := s.cfg.Dir
	want := s.cfg.NumReforms
	s.logger.Debug("waiting for result files", "want", want)
	err := barrier.Await(ctx, func() (bool, error) {
		n, err := resultfile.CountResults(dir)
		if err != nil {
			return false, err
		}
		return n == want, nil
	}, s.barrierOptions())
	if err != nil {
		return fmt.Errorf("completion wait: %w", err)
	}
	return nil
}

// aggregate reads result files in strictly increasing reform-id order,
// deleting each after reading. The order is independent of producer
// completion order, so the aggregate table is deterministic across runs.
func (s *Session) aggregate() ([]resultfile.Record, error) {
	dir := s.cfg.Dir
	recs := make([]resultfile.Record, 0, s.cfg.NumReforms)
	for rid := 1; rid <= s.cfg.NumReforms; rid++ {
		rec, err := resultfile.ReadForReform(dir, rid)
		if err != nil {
			return nil, err
		}
		if err := os.Remove(resultfile.ResultPath(dir, rid)); err != nil {
			return nil, fmt.Errorf("consume result file for reform %d: %w", rid, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// archive records the session and its aggregated values when configured.
func (s *Session) archive(ctx context.Context, result compare.Result, recs []resultfile.Record) error {
	if s.cfg.Archive == "" {
		return nil
	}
	st, err := store.Open(s.cfg.Archive)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer st.Close()

	verdict := store.VerdictMatch
	if result.AnyMismatch() {
		verdict = store.VerdictMismatch
	}
	sess := store.Session{
		ID:            store.NewSessionID(),
		StartedAt:     s.startedAt,
		FinishedAt:    s.now(),
		NumReforms:    s.cfg.NumReforms,
		MismatchCount: len(result.Mismatches),
		Verdict:       verdict,
	}
	if err := st.WriteSession(ctx, sess, recs); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	s.logger.Info("session archived", "id", sess.ID, "verdict", verdict)
	return nil
}

func (s *Session) barrierOptions() barrier.Options {
	return barrier.Options{
		Interval: s.cfg.pollInterval(),
		MaxPolls: s.cfg.maxPolls(),
		Sleep:    s.sleep,
	}
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
