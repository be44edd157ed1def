package state

import (
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/teranos/noculars/errors"
)

// Store handles persistence of pipeline runs and run records.
// All timestamps are stored in UTC.
type Store struct {
	db *sql.DB
}

// NewStore creates a run state store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRun inserts a new pipeline run.
func (s *Store) CreateRun(run *PipelineRun) error {
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, status, force_run, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.Force, run.StartedAt, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(errors.ErrStoreWrite, errors.Wrapf(err, "create run %s", run.ID).Error())
	}
	return nil
}

// FinishRun records the run's terminal aggregate status.
func (s *Store) FinishRun(run *PipelineRun) error {
	_, err := s.db.Exec(`
		UPDATE pipeline_runs
		SET status = ?, finished_at = ?, updated_at = ?
		WHERE id = ?`,
		run.Status, run.FinishedAt, time.Now().UTC(), run.ID,
	)
	if err != nil {
		return errors.Wrap(errors.ErrStoreWrite, errors.Wrapf(err, "finish run %s", run.ID).Error())
	}
	return nil
}

// GetRun retrieves a pipeline run by id, without its records.
func (s *Store) GetRun(runID string) (*PipelineRun, error) {
	row := s.db.QueryRow(`
		SELECT id, status, force_run, started_at, finished_at
		FROM pipeline_runs WHERE id = ?`, runID)
	return scanRun(row)
}

// LatestRun returns the most recently started pipeline run, or nil when the
// store is empty.
func (s *Store) LatestRun() (*PipelineRun, error) {
	row := s.db.QueryRow(`
		SELECT id, status, force_run, started_at, finished_at
		FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT 1`)
	run, err := scanRun(row)
	if errors.IsNotFoundError(err) {
		return nil, nil
	}
	return run, err
}

// AppendRecord durably inserts a run record. The transaction commit under
// synchronous=FULL gives write-then-fsync semantics: once this returns,
// the record survives a process crash.
func (s *Store) AppendRecord(rec *RunRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO run_records
			(id, run_id, agent_name, status, attempt, started_at, finished_at, duration_ms, error_message, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.AgentName, rec.Status, rec.Attempt,
		rec.StartedAt, rec.FinishedAt, rec.DurationMs, nullString(rec.ErrorMessage),
		time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(errors.ErrStoreWrite,
			errors.Wrapf(err, "append record for %s attempt %d", rec.AgentName, rec.Attempt).Error())
	}
	return nil
}

// FinishRecord closes the record opened by AppendRecord with its terminal
// status, finish time, duration and error message.
func (s *Store) FinishRecord(rec *RunRecord) error {
	_, err := s.db.Exec(`
		UPDATE run_records
		SET status = ?, finished_at = ?, duration_ms = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		rec.Status, rec.FinishedAt, rec.DurationMs, nullString(rec.ErrorMessage),
		time.Now().UTC(), rec.ID,
	)
	if err != nil {
		return errors.Wrap(errors.ErrStoreWrite,
			errors.Wrapf(err, "finish record for %s attempt %d", rec.AgentName, rec.Attempt).Error())
	}
	return nil
}

// LoadRun returns all records for a run ordered by agent and attempt.
// Empty (not an error) for an unknown run id.
func (s *Store) LoadRun(runID string) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, agent_name, status, attempt, started_at, finished_at, duration_ms, error_message
		FROM run_records
		WHERE run_id = ?
		ORDER BY started_at ASC, attempt ASC`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "load records for run %s", runID)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LatestTerminal returns the most recent terminal record for the agent
// across all runs, or nil when the agent has never reached a terminal
// status. Used for cross-run dependency checks and staleness.
func (s *Store) LatestTerminal(agentName string) (*RunRecord, error) {
	recs, err := s.RecentTerminal(agentName, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// LatestSuccess returns the most recent succeeded record for the agent
// across all runs, or nil when it has never succeeded.
func (s *Store) LatestSuccess(agentName string) (*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, agent_name, status, attempt, started_at, finished_at, duration_ms, error_message
		FROM run_records
		WHERE agent_name = ? AND status = ?
		ORDER BY finished_at DESC LIMIT 1`, agentName, StatusSucceeded)
	if err != nil {
		return nil, errors.Wrapf(err, "latest success for %s", agentName)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// RecentTerminal returns up to n most recent terminal records for the agent
// across all runs, newest first. Feeds the health monitor's windowed rates.
func (s *Store) RecentTerminal(agentName string, n int) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, agent_name, status, attempt, started_at, finished_at, duration_ms, error_message
		FROM run_records
		WHERE agent_name = ? AND status IN (?, ?, ?, ?)
		ORDER BY finished_at DESC LIMIT ?`,
		agentName, StatusSucceeded, StatusFailed, StatusTimedOut, StatusSkipped, n)
	if err != nil {
		return nil, errors.Wrapf(err, "recent terminal records for %s", agentName)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RunningRecords returns records still marked running for the given run.
// After a crash these are orphaned attempts awaiting MarkAborted.
func (s *Store) RunningRecords(runID string) ([]*RunRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, agent_name, status, attempt, started_at, finished_at, duration_ms, error_message
		FROM run_records
		WHERE run_id = ? AND status = ?
		ORDER BY started_at ASC`, runID, StatusRunning)
	if err != nil {
		return nil, errors.Wrapf(err, "running records for run %s", runID)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RunningAgents returns the names of agents with a running record in any
// non-terminal run. Feeds the monitor's currently-running flag.
func (s *Store) RunningAgents() (map[string]bool, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT agent_name FROM run_records WHERE status = ?`, StatusRunning)
	if err != nil {
		return nil, errors.Wrap(err, "list running agents")
	}
	defer rows.Close()

	running := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan running agent")
		}
		running[name] = true
	}
	return running, rows.Err()
}

// MarkAborted closes a lingering running record left behind by a crashed
// process. The aborted attempt counts toward the agent's attempt cap.
func (s *Store) MarkAborted(rec *RunRecord, reason string) error {
	rec.Finish(StatusFailed, reason)
	return s.FinishRecord(rec)
}

// AcquireRunLock takes the exclusive lock for a run id. Returns a wrapped
// ErrRunLocked when another invocation holds it. Serializes concurrent
// invocations for the same run; distinct runs are independent.
func (s *Store) AcquireRunLock(runID, owner string) error {
	_, err := s.db.Exec(`INSERT INTO run_locks (run_id, owner, acquired_at) VALUES (?, ?, ?)`,
		runID, owner, time.Now().UTC())
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return errors.Wrapf(errors.ErrRunLocked, "run %s already locked (requested by %s)", runID, owner)
	}
	return errors.Wrap(errors.ErrStoreWrite, errors.Wrapf(err, "acquire lock for run %s", runID).Error())
}

// GetRunLock returns the owner and acquisition time of a run's lock, or a
// wrapped ErrNotFound when no lock is held.
func (s *Store) GetRunLock(runID string) (string, time.Time, error) {
	var owner string
	var acquiredAt time.Time
	err := s.db.QueryRow(`SELECT owner, acquired_at FROM run_locks WHERE run_id = ?`, runID).
		Scan(&owner, &acquiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, errors.NewNotFoundError("no lock held for run %s", runID)
	}
	if err != nil {
		return "", time.Time{}, errors.Wrapf(err, "lock for run %s", runID)
	}
	return owner, acquiredAt, nil
}

// ReleaseRunLock releases the exclusive lock for a run id.
func (s *Store) ReleaseRunLock(runID string) error {
	_, err := s.db.Exec(`DELETE FROM run_locks WHERE run_id = ?`, runID)
	if err != nil {
		return errors.Wrapf(err, "release lock for run %s", runID)
	}
	return nil
}

// ClearStaleLocks removes locks older than the given age. Locks left behind
// by a crashed process would otherwise block resume forever.
func (s *Store) ClearStaleLocks(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM run_locks WHERE acquired_at < ?`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "clear stale locks")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return int(n), nil
}

func scanRun(row *sql.Row) (*PipelineRun, error) {
	var run PipelineRun
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.Status, &run.Force, &run.StartedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("pipeline run not found")
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan pipeline run")
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}

func scanRecords(rows *sql.Rows) ([]*RunRecord, error) {
	var records []*RunRecord
	for rows.Next() {
		var rec RunRecord
		var finishedAt sql.NullTime
		var durationMs sql.NullInt64
		var errMsg sql.NullString
		if err := rows.Scan(
			&rec.ID, &rec.RunID, &rec.AgentName, &rec.Status, &rec.Attempt,
			&rec.StartedAt, &finishedAt, &durationMs, &errMsg,
		); err != nil {
			return nil, errors.Wrap(err, "scan run record")
		}
		if finishedAt.Valid {
			rec.FinishedAt = &finishedAt.Time
		}
		if durationMs.Valid {
			ms := int(durationMs.Int64)
			rec.DurationMs = &ms
		}
		rec.ErrorMessage = errMsg.String
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate run records")
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
