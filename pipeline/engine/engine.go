package engine

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/teranos/noculars/config"
	"github.com/teranos/noculars/errors"
	"github.com/teranos/noculars/pipeline/registry"
	"github.com/teranos/noculars/pipeline/state"
)

// Engine executes the agent chain. It is the sole writer of run state:
// every attempt transition is persisted before and after the attempt so a
// crash at any point leaves a consistent, resumable record.
type Engine struct {
	registry *registry.Registry
	store    *state.Store
	resolver *Resolver
	invoker  Invoker
	log      *zap.SugaredLogger

	deadline          time.Duration // optional overall pipeline deadline, 0 = none
	storeWriteRetries int

	// sleep is swapped out in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine over the given registry, store and invoker.
func New(reg *registry.Registry, store *state.Store, invoker Invoker, cfg *config.PipelineConfig, log *zap.SugaredLogger) *Engine {
	return &Engine{
		registry:          reg,
		store:             store,
		resolver:          NewResolver(reg, store, cfg.MaxDependencyAge()),
		invoker:           invoker,
		log:               log,
		deadline:          cfg.Deadline(),
		storeWriteRetries: cfg.StoreWriteRetries,
		sleep:             ctxSleep,
	}
}

// RunAll executes every registered agent in declaration order and returns
// the finished run. force bypasses dependency gating but never retry or
// timeout policy. The returned error is non-nil only for run-level faults
// (lock contention, store write failure, cancellation); individual agent
// failures are reported through the run's aggregate status.
func (e *Engine) RunAll(ctx context.Context, force bool) (*state.PipelineRun, error) {
	run := state.NewPipelineRun(force)
	if err := e.store.AcquireRunLock(run.ID, lockOwner()); err != nil {
		return nil, err
	}
	defer e.releaseLock(run.ID)

	if err := e.persist(func() error { return e.store.CreateRun(run) }); err != nil {
		return nil, err
	}

	e.log.Infow("Pipeline run started", "run_id", run.ID, "force", force, "agents", len(e.registry.Names()))

	runStatus := make(map[string]state.Status)
	attempts := make(map[string]int)
	err := e.executeChain(ctx, run, e.registry.List(), runStatus, attempts)
	return e.finishRun(run, runStatus, err)
}

// Resume continues an interrupted run. Lingering running records are closed
// as failed attempts (they count toward the attempt cap), agents that
// already succeeded are not re-run, and execution picks up from the first
// agent without a successful record.
func (e *Engine) Resume(ctx context.Context, runID string) (*state.PipelineRun, error) {
	run, err := e.store.GetRun(runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, errors.Newf("run %s already finished with status %s", runID, run.Status)
	}

	// A crashed process never released its lock; resume must get past it
	// or the run is stuck forever.
	if err := e.acquireOrReclaimLock(run.ID); err != nil {
		return nil, err
	}
	defer e.releaseLock(run.ID)

	orphans, err := e.store.RunningRecords(runID)
	if err != nil {
		return nil, err
	}
	for _, orphan := range orphans {
		e.log.Warnw("Closing orphaned attempt from interrupted run",
			"run_id", runID, "agent", orphan.AgentName, "attempt", orphan.Attempt)
		if err := e.persist(func() error {
			return e.store.MarkAborted(orphan, "attempt interrupted by process crash")
		}); err != nil {
			return nil, err
		}
	}

	records, err := e.store.LoadRun(runID)
	if err != nil {
		return nil, err
	}
	runStatus := make(map[string]state.Status)
	attempts := make(map[string]int)
	for _, rec := range records {
		if rec.Attempt > attempts[rec.AgentName] {
			attempts[rec.AgentName] = rec.Attempt
			runStatus[rec.AgentName] = rec.Status
		}
	}

	// Agents with a terminal non-success record but remaining attempt
	// budget get their retries back.
	var pending []*registry.Descriptor
	for _, d := range e.registry.List() {
		status, seen := runStatus[d.Name]
		if seen && status == state.StatusSucceeded {
			continue
		}
		if seen && status == state.StatusSkipped {
			continue
		}
		if seen && attempts[d.Name] >= d.MaxRetries {
			continue
		}
		if seen {
			delete(runStatus, d.Name)
		}
		pending = append(pending, d)
	}

	e.log.Infow("Resuming pipeline run", "run_id", runID, "pending_agents", len(pending))

	err = e.executeChain(ctx, run, pending, runStatus, attempts)
	return e.finishRun(run, runStatus, err)
}

// RunAgent executes a single agent within a fresh run. Dependency gating
// still applies unless force is set; dependencies may be satisfied by
// sufficiently recent successes from earlier runs.
func (e *Engine) RunAgent(ctx context.Context, name string, force bool) (*state.PipelineRun, error) {
	d, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}

	run := state.NewPipelineRun(force)
	if err := e.store.AcquireRunLock(run.ID, lockOwner()); err != nil {
		return nil, err
	}
	defer e.releaseLock(run.ID)

	if err := e.persist(func() error { return e.store.CreateRun(run) }); err != nil {
		return nil, err
	}

	runStatus := make(map[string]state.Status)
	attempts := make(map[string]int)
	err = e.executeChain(ctx, run, []*registry.Descriptor{d}, runStatus, attempts)
	return e.finishRun(run, runStatus, err)
}

// executeChain runs the given descriptors in order, updating runStatus and
// attempts in place. Returns an error only for run-level faults.
func (e *Engine) executeChain(ctx context.Context, run *state.PipelineRun, chain []*registry.Descriptor, runStatus map[string]state.Status, attempts map[string]int) error {
	skipped := make(map[string]string) // agent -> reason
	for name, status := range runStatus {
		if status != state.StatusSucceeded {
			for _, dependent := range e.registry.Dependents(name) {
				skipped[dependent] = fmt.Sprintf("dependency %s did not succeed", name)
			}
		}
	}

	for _, d := range chain {
		if _, done := runStatus[d.Name]; done {
			continue
		}

		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "pipeline canceled")
		}
		if e.deadlineExceeded(run) {
			if err := e.skip(run, d, attempts, runStatus, "pipeline deadline exceeded"); err != nil {
				return err
			}
			continue
		}

		if reason, ok := skipped[d.Name]; ok && !run.Force {
			if err := e.skip(run, d, attempts, runStatus, reason); err != nil {
				return err
			}
			continue
		}

		if err := e.resolver.Check(d, runStatus, run.Force); err != nil {
			if !errors.IsDependencyNotMetError(err) {
				return err
			}
			if skipErr := e.skip(run, d, attempts, runStatus, err.Error()); skipErr != nil {
				return skipErr
			}
			e.markDependentsSkipped(d.Name, skipped)
			continue
		}

		status, err := e.executeAgent(ctx, run, d, attempts)
		if err != nil {
			return err
		}
		runStatus[d.Name] = status
		if status != state.StatusSucceeded {
			e.markDependentsSkipped(d.Name, skipped)
		}
	}
	return nil
}

// executeAgent runs the attempt loop for one agent and returns its terminal
// status. Attempts already consumed (resume) count toward the cap.
func (e *Engine) executeAgent(ctx context.Context, run *state.PipelineRun, d *registry.Descriptor, attempts map[string]int) (state.Status, error) {
	var lastStatus state.Status
	for attempts[d.Name] < d.MaxRetries {
		attempts[d.Name]++
		attempt := attempts[d.Name]

		rec := state.NewRunningRecord(run.ID, d.Name, attempt)
		if err := e.persist(func() error { return e.store.AppendRecord(rec) }); err != nil {
			return "", err
		}

		e.log.Infow("Agent attempt started",
			"run_id", run.ID, "agent", d.Name, "attempt", attempt, "max_attempts", d.MaxRetries)

		attemptCtx, cancel := context.WithTimeout(ctx, d.Timeout)
		invokeErr := e.invoker.Invoke(attemptCtx, d)
		cancel()

		if invokeErr == nil {
			rec.Finish(state.StatusSucceeded, "")
			if err := e.persist(func() error { return e.store.FinishRecord(rec) }); err != nil {
				return "", err
			}
			e.log.Infow("Agent attempt succeeded",
				"run_id", run.ID, "agent", d.Name, "attempt", attempt, "duration_ms", *rec.DurationMs)
			return state.StatusSucceeded, nil
		}

		lastStatus = state.StatusFailed
		if errors.IsAgentTimeoutError(invokeErr) {
			lastStatus = state.StatusTimedOut
		}
		rec.Finish(lastStatus, invokeErr.Error())
		if err := e.persist(func() error { return e.store.FinishRecord(rec) }); err != nil {
			return "", err
		}

		e.log.Warnw("Agent attempt failed",
			"run_id", run.ID, "agent", d.Name, "attempt", attempt,
			"status", lastStatus, "error", invokeErr.Error())

		if err := ctx.Err(); err != nil {
			return "", errors.Wrap(err, "pipeline canceled")
		}
		if attempts[d.Name] >= d.MaxRetries {
			break
		}
		if e.deadlineExceeded(run) {
			break
		}

		wait := backoff(d.BackoffBase, d.BackoffFactor, attempt)
		e.log.Infow("Backing off before retry",
			"run_id", run.ID, "agent", d.Name, "next_attempt", attempt+1, "wait", wait)
		if err := e.sleep(ctx, wait); err != nil {
			return "", errors.Wrap(err, "pipeline canceled")
		}
	}
	return lastStatus, nil
}

// skip records a terminal skipped attempt without invoking the agent.
func (e *Engine) skip(run *state.PipelineRun, d *registry.Descriptor, attempts map[string]int, runStatus map[string]state.Status, reason string) error {
	attempts[d.Name]++
	rec := state.NewSkippedRecord(run.ID, d.Name, attempts[d.Name], reason)
	if err := e.persist(func() error { return e.store.AppendRecord(rec) }); err != nil {
		return err
	}
	runStatus[d.Name] = state.StatusSkipped
	e.log.Warnw("Agent skipped", "run_id", run.ID, "agent", d.Name, "reason", reason)
	return nil
}

func (e *Engine) markDependentsSkipped(name string, skipped map[string]string) {
	for _, dependent := range e.registry.Dependents(name) {
		if _, ok := skipped[dependent]; !ok {
			skipped[dependent] = fmt.Sprintf("dependency %s did not succeed", name)
		}
	}
}

// finishRun computes the aggregate status, persists it and attaches the
// run's records. runErr, when set, marks the whole run failed.
func (e *Engine) finishRun(run *state.PipelineRun, runStatus map[string]state.Status, runErr error) (*state.PipelineRun, error) {
	succeeded, failed := 0, 0
	for _, status := range runStatus {
		if status == state.StatusSucceeded {
			succeeded++
		} else {
			failed++
		}
	}

	var aggregate state.RunStatus
	switch {
	case runErr != nil:
		aggregate = state.RunStatusFailed
	case failed == 0 && succeeded > 0:
		aggregate = state.RunStatusSucceeded
	case succeeded > 0:
		aggregate = state.RunStatusPartiallyFailed
	default:
		aggregate = state.RunStatusFailed
	}

	run.Finish(aggregate)
	if err := e.persist(func() error { return e.store.FinishRun(run) }); err != nil {
		if runErr == nil {
			runErr = err
		}
	}

	if records, err := e.store.LoadRun(run.ID); err == nil {
		run.Records = records
	}

	e.log.Infow("Pipeline run finished",
		"run_id", run.ID, "status", aggregate, "succeeded", succeeded, "not_succeeded", failed)
	return run, runErr
}

// storeRetryPause separates retries of a failed run-state write, enough for
// a transient busy-database condition to clear.
const storeRetryPause = 100 * time.Millisecond

// persist retries a run-state write a bounded number of times. Exhausting
// the budget aborts the run: downstream correctness depends on accurate
// durable state.
func (e *Engine) persist(write func() error) error {
	var err error
	for i := 0; i <= e.storeWriteRetries; i++ {
		if err = write(); err == nil {
			return nil
		}
		e.log.Warnw("Run state write failed", "attempt", i+1, "error", err.Error())
		if i < e.storeWriteRetries {
			time.Sleep(storeRetryPause)
		}
	}
	return errors.Wrap(errors.ErrStoreWrite, err.Error())
}

func (e *Engine) deadlineExceeded(run *state.PipelineRun) bool {
	return e.deadline > 0 && time.Since(run.StartedAt) > e.deadline
}

// staleLockAge bounds how long a lock from an unreachable owner is honored
// when liveness of the owning process cannot be determined.
const staleLockAge = 24 * time.Hour

// acquireOrReclaimLock takes the run lock, reclaiming one left behind by a
// crashed process. A live owner still wins: the caller gets ErrRunLocked.
func (e *Engine) acquireOrReclaimLock(runID string) error {
	err := e.store.AcquireRunLock(runID, lockOwner())
	if err == nil || !errors.IsRunLockedError(err) {
		return err
	}

	owner, acquiredAt, lockErr := e.store.GetRunLock(runID)
	if errors.IsNotFoundError(lockErr) {
		// Holder released between the failed insert and the lookup.
		return e.store.AcquireRunLock(runID, lockOwner())
	}
	if lockErr != nil {
		return err
	}
	if !lockAbandoned(owner, acquiredAt) {
		return err
	}

	e.log.Warnw("Reclaiming run lock from crashed owner",
		"run_id", runID, "owner", owner, "acquired_at", acquiredAt)
	if relErr := e.store.ReleaseRunLock(runID); relErr != nil {
		return relErr
	}
	return e.store.AcquireRunLock(runID, lockOwner())
}

// lockAbandoned reports whether a lock's owner cannot still be running: an
// owner on this host whose pid no longer exists, or any owner whose lock is
// older than staleLockAge.
func lockAbandoned(owner string, acquiredAt time.Time) bool {
	if time.Since(acquiredAt) > staleLockAge {
		return true
	}

	host, err := os.Hostname()
	if err != nil {
		return false
	}
	pidStr, ok := strings.CutPrefix(owner, host+"/")
	if !ok {
		// Another host's lock; pid liveness is unknowable from here.
		return false
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return !alive
}

func (e *Engine) releaseLock(runID string) {
	if err := e.store.ReleaseRunLock(runID); err != nil {
		e.log.Warnw("Failed to release run lock", "run_id", runID, "error", err.Error())
	}
}

// backoff computes the wait before the next attempt: base * factor^(n-1)
// where n is the attempt that just failed.
func backoff(base time.Duration, factor float64, attempt int) time.Duration {
	return time.Duration(float64(base) * math.Pow(factor, float64(attempt-1)))
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func lockOwner() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}
