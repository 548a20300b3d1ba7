package driver

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"
	"time"

	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/execmode"
	"go.crosstest.dev/harness/internal/expectation"
	"go.crosstest.dev/harness/internal/history"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
)

// fakeProcess implements target.Process over a canned stdout stream and a
// canned Wait() outcome, simulating a clean exit or a crash.
type fakeProcess struct {
	stdout  io.Reader
	waitErr error
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Wait() error       { return p.waitErr }
func (p *fakeProcess) Kill() error       { return nil }

var errFakeCrash = io.ErrUnexpectedEOF

// fakeTarget is a target.Target that only implements what the driver
// actually calls: PrepareProcess and StartProcess. Each entry in streams
// and waitErrs corresponds to one successive StartProcess call, modeling
// an initial attempt followed by resumes.
type fakeTarget struct {
	target.Target
	streams  [][]byte
	waitErrs []error
	next     int
}

func (t *fakeTarget) PrepareProcess(args []string, workDir string) []string { return args }

func (t *fakeTarget) StartProcess(ctx context.Context, args []string, workDir string) (target.Process, error) {
	i := t.next
	t.next++
	if i >= len(t.streams) {
		return &fakeProcess{stdout: bytes.NewReader(nil)}, nil
	}
	var waitErr error
	if i < len(t.waitErrs) {
		waitErr = t.waitErrs[i]
	}
	return &fakeProcess{stdout: bytes.NewReader(t.streams[i]), waitErr: waitErr}, nil
}

// fakeMode is a minimal execmode.Mode: one run attempt per action, no
// toolchain involved, stdout-streamed monitor transport.
type fakeMode struct {
	tgt *fakeTarget
}

func (m *fakeMode) Prepare(ctx context.Context) error { return nil }

func (m *fakeMode) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	return nil, nil
}

func (m *fakeMode) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	return []string{"run", a.Name}
}

func (m *fakeMode) Cleanup(ctx context.Context, a *action.Action) error { return nil }
func (m *fakeMode) Shutdown(ctx context.Context) error                 { return nil }
func (m *fakeMode) UseSocketMonitor() bool                             { return false }
func (m *fakeMode) Target() target.Target                              { return m.tgt }

var _ execmode.Mode = (*fakeMode)(nil)

// recordingConsole captures every Result/Summary call for assertions.
type recordingConsole struct {
	results []expectation.AnnotatedOutcome
	summary Summary
}

func (c *recordingConsole) Result(ao expectation.AnnotatedOutcome) {
	c.results = append(c.results, ao)
}

func (c *recordingConsole) Summary(s Summary) { c.summary = s }

const successStream = `<vogar-monitor>
  <outcome name="pkg.Test" runner="JUnit">
    all good
    <result value="SUCCESS" />
  </outcome>
</vogar-monitor>`

const crashThenResumeFirst = `<vogar-monitor>
  <outcome name="pkg.Test#a" runner="JUnit">
`

const crashThenResumeSecond = `<vogar-monitor>
  <outcome name="pkg.Test#b" runner="JUnit">
    <result value="SUCCESS" />
  </outcome>
</vogar-monitor>`

func newTestDriver(t *testing.T, mode execmode.Mode) (*Driver, *recordingConsole) {
	t.Helper()
	console := &recordingConsole{}
	d := New(Config{
		Mode:             mode,
		ExpectationStore: &expectation.Store{},
		HistoryStore:     history.NewStore(t.TempDir()),
		Console:          console,
		WorkDirRoot:      t.TempDir(),
		FirstMonitorPort: 9999,
	})
	return d, console
}

func TestDriverRunRecordsSuccess(t *testing.T) {
	tgt := &fakeTarget{streams: [][]byte{[]byte(successStream)}}
	mode := &fakeMode{tgt: tgt}
	d, console := newTestDriver(t, mode)

	actions := []*action.Action{{Name: "pkg.Test"}}
	summary, err := d.Run(context.Background(), actions)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v; want 1 succeeded, 0 failed", summary)
	}
	if len(console.results) != 1 || console.results[0].Result() != outcome.SUCCESS {
		t.Errorf("console results = %+v; want one SUCCESS", console.results)
	}
}

func TestDriverUnsupportedShortCircuitsBuild(t *testing.T) {
	expFile := t.TempDir() + "/expectations.json"
	if err := os.WriteFile(expFile, []byte(`[{"name": "pkg.Skipped", "result": "UNSUPPORTED"}]`), 0644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}
	store := &expectation.Store{}
	if err := store.Load(expFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tgt := &fakeTarget{streams: [][]byte{[]byte(successStream)}}
	mode := &fakeMode{tgt: tgt}
	d, console := newTestDriver(t, mode)
	d.cfg.ExpectationStore = store

	actions := []*action.Action{{Name: "pkg.Skipped"}}
	summary, err := d.Run(context.Background(), actions)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Unsupported != 1 {
		t.Errorf("summary = %+v; want 1 unsupported", summary)
	}
	if tgt.next != 0 {
		t.Errorf("StartProcess called %d times; an UNSUPPORTED action should never reach a runner", tgt.next)
	}
	if len(console.results) != 1 || console.results[0].Result() != outcome.UNSUPPORTED {
		t.Errorf("console.results = %+v; want a single UNSUPPORTED", console.results)
	}
}

func TestDriverResumesAfterMidRunCrash(t *testing.T) {
	tgt := &fakeTarget{
		streams: [][]byte{
			[]byte(crashThenResumeFirst),
			[]byte(crashThenResumeSecond),
		},
		waitErrs: []error{errFakeCrash, nil},
	}
	mode := &fakeMode{tgt: tgt}
	d, console := newTestDriver(t, mode)

	actions := []*action.Action{{Name: "pkg.Test"}}
	summary, err := d.Run(context.Background(), actions)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tgt.next != 2 {
		t.Fatalf("StartProcess called %d times; want 2 (initial + resume)", tgt.next)
	}
	if summary.Failed == 0 && summary.Succeeded == 0 {
		t.Errorf("summary = %+v; want at least one recorded outcome", summary)
	}
	if len(console.results) < 2 {
		t.Errorf("console.results = %d entries; want at least 2 (abnormal #a, SUCCESS #b)", len(console.results))
	}
}

func TestDriverGivesUpWhenNothingStarts(t *testing.T) {
	tgt := &fakeTarget{
		streams:  [][]byte{[]byte("")},
		waitErrs: []error{errFakeCrash},
	}
	mode := &fakeMode{tgt: tgt}
	d, console := newTestDriver(t, mode)

	actions := []*action.Action{{Name: "pkg.NeverStarts"}}
	if _, err := d.Run(context.Background(), actions); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tgt.next != 1 {
		t.Errorf("StartProcess called %d times; want exactly 1 — no point resuming a process that never started anything", tgt.next)
	}
	if len(console.results) != 1 || console.results[0].Result() != outcome.ERROR {
		t.Fatalf("console.results = %+v; want a single ERROR", console.results)
	}
}

// hangingProcess never closes its stdout on its own: Stdout's reader blocks
// on ctx (the attempt's timeout-watched context) after its initial bytes,
// simulating a runner that is still sleeping when the timeout fires.
type hangingProcess struct {
	ctx     context.Context
	initial []byte
	sent    bool
}

func (p *hangingProcess) Read(b []byte) (int, error) {
	if !p.sent {
		p.sent = true
		return copy(b, p.initial), nil
	}
	<-p.ctx.Done()
	return 0, io.EOF
}

func (p *hangingProcess) Stdout() io.Reader { return p }
func (p *hangingProcess) Wait() error       { <-p.ctx.Done(); return errFakeCrash }
func (p *hangingProcess) Kill() error       { return nil }

// hangingTarget launches a single hangingProcess per action and records how
// many times StartProcess was called.
type hangingTarget struct {
	target.Target
	calls int
}

func (t *hangingTarget) PrepareProcess(args []string, workDir string) []string { return args }

func (t *hangingTarget) StartProcess(ctx context.Context, args []string, workDir string) (target.Process, error) {
	t.calls++
	return &hangingProcess{ctx: ctx, initial: []byte(`<vogar-monitor>
  <outcome name="ex.Slow#a" runner="JUnit">
`)}, nil
}

// TestDriverTimeoutIsTerminalNotResumed covers the "timeout with recovery"
// scenario: a timeout kill must not be treated like a mid-run crash. If it
// were, the driver would relaunch with skipPast set past the only outcome,
// the resumed runner would produce nothing, and the correct EXEC_TIMEOUT
// would be overwritten by a spurious "runner exited before starting" ERROR.
func TestDriverTimeoutIsTerminalNotResumed(t *testing.T) {
	tgt := &hangingTarget{}
	mode := &hangingModeTarget{hangingTarget: tgt}
	d, console := newTestDriver(t, mode)
	d.cfg.SmallTimeout = 5 * time.Millisecond

	actions := []*action.Action{{Name: "ex.Slow"}}
	summary, err := d.Run(context.Background(), actions)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tgt.calls != 1 {
		t.Fatalf("StartProcess called %d times; want exactly 1 — a timeout must not trigger a resume", tgt.calls)
	}
	if len(console.results) != 1 || console.results[0].Result() != outcome.EXEC_TIMEOUT {
		t.Fatalf("console.results = %+v; want a single EXEC_TIMEOUT", console.results)
	}
	if summary.Failed != 1 || summary.Succeeded != 0 {
		t.Errorf("summary = %+v; want 1 failed, 0 succeeded", summary)
	}
}

// hangingModeTarget is a fakeMode variant whose Target() returns a
// hangingTarget instead of a fakeTarget.
type hangingModeTarget struct {
	hangingTarget *hangingTarget
}

func (m *hangingModeTarget) Prepare(ctx context.Context) error { return nil }
func (m *hangingModeTarget) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	return nil, nil
}
func (m *hangingModeTarget) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	return []string{"run", a.Name}
}
func (m *hangingModeTarget) Cleanup(ctx context.Context, a *action.Action) error { return nil }
func (m *hangingModeTarget) Shutdown(ctx context.Context) error                 { return nil }
func (m *hangingModeTarget) UseSocketMonitor() bool                             { return false }
func (m *hangingModeTarget) Target() target.Target                             { return m.hangingTarget }

var _ execmode.Mode = (*hangingModeTarget)(nil)

const crashThenResumeSameNameFirst = `<vogar-monitor>
  <outcome name="pkg.Test#b" runner="JUnit">
`

const crashThenResumeSameNameSecond = `<vogar-monitor>
  <outcome name="pkg.Test#b" runner="JUnit">
    <result value="SUCCESS" />
  </outcome>
</vogar-monitor>`

// TestDriverSameNameRecordedTwiceCountsOnce covers "mid-run crash and
// resume" when the crash and the resumed finish share the exact same
// outcome name: the first attempt's abnormal ERROR for pkg.Test#b must not
// leave a stale +1 in Failed once the resumed attempt overwrites it with
// SUCCESS.
func TestDriverSameNameRecordedTwiceCountsOnce(t *testing.T) {
	tgt := &fakeTarget{
		streams: [][]byte{
			[]byte(crashThenResumeSameNameFirst),
			[]byte(crashThenResumeSameNameSecond),
		},
		waitErrs: []error{errFakeCrash, nil},
	}
	mode := &fakeMode{tgt: tgt}
	d, console := newTestDriver(t, mode)

	actions := []*action.Action{{Name: "pkg.Test"}}
	summary, err := d.Run(context.Background(), actions)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if tgt.next != 2 {
		t.Fatalf("StartProcess called %d times; want 2 (initial + resume)", tgt.next)
	}
	if len(console.results) != 2 {
		t.Fatalf("console.results = %d entries; want 2 (abnormal ERROR, then resumed SUCCESS)", len(console.results))
	}
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v; want 1 succeeded, 0 failed — pkg.Test#b's final state is SUCCESS, recorded once", summary)
	}
	if len(summary.ByName) != 1 {
		t.Errorf("summary.ByName = %+v; want a single entry for pkg.Test#b", summary.ByName)
	}
}

// TestDriverMaskedFailureCountsAsSkipped covers "failure expectation masks
// known breakage": an EXEC_FAILED outcome matching a failure expectation
// must be counted under Unsupported (skipped), not Failed, even though its
// raw result is not SUCCESS.
func TestDriverMaskedFailureCountsAsSkipped(t *testing.T) {
	expFile := t.TempDir() + "/expectations.json"
	exp := `[{"failure": "ex.Net#tls", "pattern": ".*SocketException.*", "result": "EXEC_FAILED"}]`
	if err := os.WriteFile(expFile, []byte(exp), 0644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}
	store := &expectation.Store{}
	if err := store.Load(expFile); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	stream := `<vogar-monitor>
  <outcome name="ex.Net#tls" runner="JUnit">java.net.SocketException: connection reset<result value="EXEC_FAILED" /></outcome>
</vogar-monitor>`
	tgt := &fakeTarget{streams: [][]byte{[]byte(stream)}}
	mode := &fakeMode{tgt: tgt}
	d, console := newTestDriver(t, mode)
	d.cfg.ExpectationStore = store

	actions := []*action.Action{{Name: "ex.Net"}}
	summary, err := d.Run(context.Background(), actions)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(console.results) != 1 || console.results[0].Result() != outcome.EXEC_FAILED {
		t.Fatalf("console.results = %+v; want a single EXEC_FAILED", console.results)
	}
	if console.results[0].Noteworthy {
		t.Errorf("Noteworthy = true; want false, the failure expectation masks it")
	}
	if summary.Unsupported != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v; want 1 skipped, 0 failed — a masked failure is not a regression", summary)
	}
}
