// Package driver orchestrates a run: it discovers nothing on its own
// (the caller supplies the action list), schedules each action through
// build → install → run → cleanup on the Scheduler's worker pools,
// applies the per-action timeout watcher, and folds every completed
// outcome through the Expectation Store and History Store before handing
// it to a Console.
package driver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/execmode"
	"go.crosstest.dev/harness/internal/expectation"
	"go.crosstest.dev/harness/internal/history"
	"go.crosstest.dev/harness/internal/monitor"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/logging"
)

// caliperRunnerTag marks a benchmark outcome, which runs with an
// effectively unbounded timeout and suppressed history recording.
const caliperRunnerTag = "caliper"

// maxResumeAttempts bounds the resume-after-crash retry loop so a
// pathologically crash-looping runner cannot hang a run forever; it is
// only a backstop, not a tuned limit.
const maxResumeAttempts = 20

// Config configures a Driver.
type Config struct {
	Mode             execmode.Mode
	ExpectationStore *expectation.Store
	HistoryStore     *history.Store
	Console          Console

	// WorkDirRoot is the host directory under which each action's
	// per-action WorkDir is created.
	WorkDirRoot string

	FirstMonitorPort     int
	SocketMonitorTimeout time.Duration
	SmallTimeout         time.Duration

	BuilderLimit int
	RunnerLimit  int // 0 = auto; forced to 1 for streaming or single-runner modes.

	// KeepScratchBefore, if false (the default), removes any scratch
	// directory left over under WorkDirRoot from a prior run before this
	// one starts.
	KeepScratchBefore bool
	// KeepScratchAfter, if true, skips the Mode.Cleanup call normally run
	// after each action, leaving its scratch directory in place for
	// inspection.
	KeepScratchAfter bool
}

// Driver runs a list of actions to completion and produces a Summary.
type Driver struct {
	cfg       Config
	scheduler *Scheduler

	mu       sync.Mutex
	outcomes map[string]expectation.AnnotatedOutcome
}

// New constructs a Driver from cfg.
func New(cfg Config) *Driver {
	runnerLimit := cfg.RunnerLimit
	if !cfg.Mode.UseSocketMonitor() {
		runnerLimit = 1 // streaming console mode requires linear output
	}
	if sr, ok := cfg.Mode.(execmode.SingleRunnerMode); ok && sr.ForceSingleRunner() {
		runnerLimit = 1
	}
	return &Driver{
		cfg:       cfg,
		scheduler: &Scheduler{BuilderLimit: cfg.BuilderLimit, RunnerLimit: runnerLimit},
		outcomes:  map[string]expectation.AnnotatedOutcome{},
	}
}

// Run drives every action in actions through the full lifecycle and
// returns the deterministic, name-sorted Summary.
func (d *Driver) Run(ctx context.Context, actions []*action.Action) (Summary, error) {
	if !d.cfg.KeepScratchBefore && d.cfg.WorkDirRoot != "" {
		if err := os.RemoveAll(d.cfg.WorkDirRoot); err != nil {
			logging.Warnf(ctx, "failed to clear leftover scratch dir %s: %v", d.cfg.WorkDirRoot, err)
		}
	}

	if err := d.cfg.Mode.Prepare(ctx); err != nil {
		return Summary{}, err
	}
	defer func() {
		if err := d.cfg.Mode.Shutdown(ctx); err != nil {
			logging.Warnf(ctx, "shutdown failed: %v", err)
		}
	}()

	runnerCount := d.scheduler.runnerLimit()

	build := func(ctx context.Context, a *action.Action) (bool, error) {
		return d.build(ctx, a)
	}
	run := func(ctx context.Context, a *action.Action, threadID int) error {
		return d.runAction(ctx, a, threadID, runnerCount)
	}

	if err := d.scheduler.Run(ctx, actions, build, run); err != nil {
		return Summary{}, err
	}

	return d.summary(), nil
}

// build assigns a's WorkDir, short-circuits actions whose expectation
// already says UNSUPPORTED, and otherwise compiles/installs via the
// configured Mode.
func (d *Driver) build(ctx context.Context, a *action.Action) (skip bool, err error) {
	if exp := d.cfg.ExpectationStore.GetByName(a.Name); exp.Result == outcome.UNSUPPORTED {
		d.record(ctx, outcome.New(a.Name, outcome.UNSUPPORTED, nil, time.Now()), "")
		return true, nil
	}

	if a.WorkDir == "" {
		if err := a.Prepare(filepath.Join(d.cfg.WorkDirRoot, a.Path())); err != nil {
			return false, err
		}
	}

	o, err := d.cfg.Mode.BuildAndInstall(ctx, a)
	if err != nil {
		return false, err
	}
	if o != nil {
		d.record(ctx, *o, "")
		return true, nil
	}
	return false, nil
}

// runAction launches a, decodes its Host Monitor stream, and resumes
// after a mid-run crash by replaying with skipPast set to the last
// outcome that finished.
func (d *Driver) runAction(ctx context.Context, a *action.Action, threadID, runnerCount int) error {
	if !d.cfg.KeepScratchAfter {
		defer func() {
			if err := d.cfg.Mode.Cleanup(ctx, a); err != nil {
				logging.Warnf(ctx, "cleanup failed for %s: %v", a.Name, err)
			}
		}()
	}

	exp := d.cfg.ExpectationStore.GetByName(a.Name)
	large := exp.HasTag("large")
	port := d.cfg.FirstMonitorPort
	if runnerCount > 1 {
		port += threadID % runnerCount
	}

	skipPast := ""
	for attempt := 0; attempt < maxResumeAttempts; attempt++ {
		done, next, err := d.runAttempt(ctx, a, skipPast, port, large)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		skipPast = next
	}
	d.record(ctx, outcome.New(a.Name, outcome.ERROR, []string{"exceeded maximum resume attempts"}, time.Now()), "")
	return nil
}

// runAttempt launches a single attempt of a and reports whether the
// action is finished (done) or needs to be relaunched with skipPast set
// to next.
func (d *Driver) runAttempt(ctx context.Context, a *action.Action, skipPast string, port int, large bool) (done bool, next string, err error) {
	argv := d.cfg.Mode.CreateActionCommand(a, skipPast, port)
	tgt := d.cfg.Mode.Target()

	runCtx, watcher := withTimeout(ctx, d.cfg.SmallTimeout, large)
	defer watcher.Stop()

	proc, startErr := tgt.StartProcess(runCtx, argv, a.WorkDir)
	if startErr != nil {
		d.record(ctx, outcome.New(a.Name, outcome.ERROR, []string{startErr.Error()}, time.Now()), "")
		return true, "", nil
	}

	var stream io.ReadCloser
	if d.cfg.Mode.UseSocketMonitor() {
		stream, err = monitor.SocketTransport(runCtx, port, d.cfg.SocketMonitorTimeout)
		if err != nil {
			proc.Kill()
			d.record(ctx, outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now()), "")
			return true, "", nil
		}
	} else {
		stream = monitor.StreamTransport(io.NopCloser(proc.Stdout()))
	}

	startTimeout := d.cfg.SmallTimeout
	if large {
		startTimeout *= LargeMultiplier
	}
	h := &runHandler{driver: d, parentCtx: ctx, attemptCtx: runCtx, watcher: watcher, timeout: startTimeout}
	_ = monitor.Run(runCtx, stream, h)
	stream.Close()
	waitErr := proc.Wait()
	proc.Kill()

	h.mu.Lock()
	firstStarted, lastFinished := h.firstStarted, h.lastFinished
	h.mu.Unlock()

	if waitErr == nil {
		// The runner process exited cleanly: whatever outcomes it produced
		// (including any synthesized abnormal finish for a still-open
		// outcome at EOF) are final, no relaunch needed.
		return true, "", nil
	}
	if runCtx.Err() == ErrExecTimeout {
		// The watcher killed the process on purpose; Finish already
		// recorded the EXEC_TIMEOUT outcome. A timed-out action is
		// terminal, not a crash — resuming would replay past the one
		// outcome that timed out and overwrite it with a spurious
		// "runner exited before starting" ERROR.
		return true, "", nil
	}
	if firstStarted == "" || (skipPast != "" && firstStarted == a.Name) {
		// The process died before producing a single outcome, on a
		// relaunch as much as on the first attempt, or a relaunch's first
		// outcome is the action itself: nothing got past the start — give
		// up rather than looping forever.
		d.record(ctx, outcome.New(a.Name, outcome.ERROR, []string{"runner exited before starting"}, time.Now()), "")
		return true, "", nil
	}
	return false, lastFinished, nil
}

// runHandler adapts one attempt's monitor.Handler callbacks into the
// Driver's bookkeeping, and tracks enough state to drive the resume loop
// above.
type runHandler struct {
	driver     *Driver
	parentCtx  context.Context
	attemptCtx context.Context
	watcher    *timeoutWatcher
	timeout    time.Duration

	mu           sync.Mutex
	tags         map[string]string
	firstStarted string
	lastFinished string
}

func (h *runHandler) Start(name, runnerTag string) {
	h.mu.Lock()
	if h.tags == nil {
		h.tags = map[string]string{}
	}
	h.tags[name] = runnerTag
	if h.firstStarted == "" {
		h.firstStarted = name
	}
	h.mu.Unlock()

	if runnerTag == caliperRunnerTag {
		h.watcher.Extend(24 * time.Hour) // benchmarks run with an effectively unbounded timeout
	} else {
		h.watcher.Extend(h.timeout)
	}
}

func (h *runHandler) Output(name, fragment string) {}

func (h *runHandler) Print(text string) {
	logging.Infof(h.parentCtx, "%s", text)
}

func (h *runHandler) Finish(o outcome.Outcome) {
	if h.attemptCtx.Err() == ErrExecTimeout && o.Result() == outcome.ERROR {
		o = outcome.New(o.Name(), outcome.EXEC_TIMEOUT, o.Output(), o.Finished())
	}

	h.mu.Lock()
	runnerTag := h.tags[o.Name()]
	h.lastFinished = o.Name()
	h.mu.Unlock()

	h.driver.record(h.parentCtx, o, runnerTag)
}

// record resolves o's expectation and history, updates the Driver's
// bookkeeping under its single lock, and notifies the Console.
// Benchmark outcomes (runnerTag == "caliper") are shown but never
// written to history.
func (d *Driver) record(ctx context.Context, o outcome.Outcome, runnerTag string) {
	var annotated expectation.AnnotatedOutcome
	if runnerTag != caliperRunnerTag && d.cfg.HistoryStore != nil {
		var err error
		annotated, err = d.cfg.HistoryStore.Read(ctx, d.cfg.ExpectationStore, o)
		if err != nil {
			logging.Warnf(ctx, "failed to read history for %s: %v", o.Name(), err)
			annotated = expectation.AnnotatedOutcome{Outcome: o, Expectation: d.cfg.ExpectationStore.Get(o)}
		}
		if err := d.cfg.HistoryStore.Write(ctx, o, annotated.Changed); err != nil {
			logging.Warnf(ctx, "failed to write history for %s: %v", o.Name(), err)
		}
	} else {
		annotated = expectation.AnnotatedOutcome{Outcome: o, Expectation: d.cfg.ExpectationStore.Get(o)}
	}

	d.mu.Lock()
	d.outcomes[o.Name()] = annotated
	d.mu.Unlock()

	if d.cfg.Console != nil {
		d.cfg.Console.Result(annotated)
	}
}

// Summary is the deterministic, name-sorted end-of-run report.
type Summary struct {
	ByName      map[string]expectation.AnnotatedOutcome
	Succeeded   int
	Failed      int
	Unsupported int
}

// Names returns every recorded action name, sorted.
func (s Summary) Names() []string {
	names := make([]string, 0, len(s.ByName))
	for name := range s.ByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExitCode returns 0 iff every recorded outcome matched its expectation,
// and 1 otherwise — the process exit status a caller should propagate.
func (s Summary) ExitCode() int {
	for _, ao := range s.ByName {
		if ao.Noteworthy {
			return 1
		}
	}
	return 0
}

// classify buckets ao for the Summary counters: a SUCCESS result always
// counts as succeeded; a non-noteworthy non-SUCCESS result (the action's
// own expectation predicted it, e.g. a declared UNSUPPORTED or a masked
// failure pattern) counts as skipped rather than a regression; anything
// else — a mismatch between result and expectation — counts as failed.
func classify(ao expectation.AnnotatedOutcome) (succeeded, failed, unsupported int) {
	switch {
	case ao.Result() == outcome.SUCCESS:
		return 1, 0, 0
	case !ao.Noteworthy:
		return 0, 0, 1
	default:
		return 0, 1, 0
	}
}

func (d *Driver) summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	byName := make(map[string]expectation.AnnotatedOutcome, len(d.outcomes))
	for k, v := range d.outcomes {
		byName[k] = v
	}
	s := Summary{ByName: byName}
	for _, ao := range byName {
		succeeded, failed, unsupported := classify(ao)
		s.Succeeded += succeeded
		s.Failed += failed
		s.Unsupported += unsupported
	}
	if d.cfg.Console != nil {
		d.cfg.Console.Summary(s)
	}
	return s
}
