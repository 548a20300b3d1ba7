// Package outcome defines the result of running one test point and the
// closed set of result kinds a run can produce.
package outcome

import "time"

// Result is the closed set of states a completed (or not-completed)
// outcome can be in.
type Result int

const (
	// SUCCESS indicates the test point ran and passed.
	SUCCESS Result = iota
	// COMPILE_FAILED indicates the action's sources failed to compile.
	COMPILE_FAILED
	// EXEC_FAILED indicates the runner reported a failure while executing.
	EXEC_FAILED
	// EXEC_TIMEOUT indicates the action was killed by the timeout watcher.
	EXEC_TIMEOUT
	// UNSUPPORTED indicates the test point is declared unsupported, either
	// by an expectation or because the runner reported it as such.
	UNSUPPORTED
	// ERROR indicates an infrastructure failure unrelated to the test
	// point's own logic (target unreachable, runner crashed before
	// reporting, toolchain missing).
	ERROR
)

// String returns a short, stable, upper-case label for r, matching the
// values used in expectation files and the wire protocol.
func (r Result) String() string {
	switch r {
	case SUCCESS:
		return "SUCCESS"
	case COMPILE_FAILED:
		return "COMPILE_FAILED"
	case EXEC_FAILED:
		return "EXEC_FAILED"
	case EXEC_TIMEOUT:
		return "EXEC_TIMEOUT"
	case UNSUPPORTED:
		return "UNSUPPORTED"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseResult parses the String() representation of a Result. It returns an
// error for any value outside the closed set.
func ParseResult(s string) (Result, error) {
	for _, r := range []Result{SUCCESS, COMPILE_FAILED, EXEC_FAILED, EXEC_TIMEOUT, UNSUPPORTED, ERROR} {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, errUnknownResult(s)
}

type errUnknownResult string

func (e errUnknownResult) Error() string { return "unknown result: " + string(e) }

// Outcome is the immutable result of running one test point.
type Outcome struct {
	name     string
	result   Result
	output   []string
	finished time.Time
}

// New constructs a completed Outcome. output is copied so later mutation of
// the caller's slice cannot affect the Outcome.
func New(name string, result Result, output []string, finished time.Time) Outcome {
	cp := make([]string, len(output))
	copy(cp, output)
	return Outcome{name: name, result: result, output: cp, finished: finished}
}

// Name returns the outcome's qualified test point name.
func (o Outcome) Name() string { return o.name }

// Result returns the outcome's result kind.
func (o Outcome) Result() Result { return o.result }

// Output returns the outcome's ordered output lines. The returned slice must
// not be mutated by the caller.
func (o Outcome) Output() []string { return o.output }

// CombinedOutput joins Output with newlines, the form failure expectations
// match against.
func (o Outcome) CombinedOutput() string {
	s := ""
	for i, line := range o.output {
		if i > 0 {
			s += "\n"
		}
		s += line
	}
	return s
}

// Finished returns the time the outcome completed.
func (o Outcome) Finished() time.Time { return o.finished }

// Builder accumulates output fragments for a single in-flight outcome
// before it is sealed into an immutable Outcome by Finish. It mirrors the
// wire monitor's "output may fire many times, fragments concatenate in
// arrival order" contract.
type Builder struct {
	name   string
	lines  []string
	cur    string
	sealed bool
}

// NewBuilder starts accumulating output for name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// AddFragment appends a raw text fragment as it arrives on the wire.
// Fragments are split on newlines into discrete output lines; a fragment
// with no trailing newline extends the last (possibly empty) line instead
// of starting a new one, matching streaming semantics.
func (b *Builder) AddFragment(fragment string) {
	if b.sealed {
		return
	}
	for _, r := range fragment {
		if r == '\n' {
			b.lines = append(b.lines, b.cur)
			b.cur = ""
			continue
		}
		b.cur += string(r)
	}
}

// Finish seals the builder and returns the completed Outcome. Calling
// Finish more than once returns the same Outcome every time.
func (b *Builder) Finish(result Result, finished time.Time) Outcome {
	if !b.sealed {
		lines := b.lines
		if b.cur != "" {
			lines = append(lines, b.cur)
		}
		b.lines = lines
		b.sealed = true
	}
	return New(b.name, result, b.lines, finished)
}
