// Package execmode implements the per-environment strategies ("modes")
// that own an action's artifact lifecycle: compiling, packaging,
// deploying, and launching it, and deciding how its Host Monitor stream
// is transported back.
package execmode

import (
	"context"

	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
)

// Compiler turns an action's sources into a jar. Concrete toolchain
// invocations (javac, an Android build system, whatever the environment
// provides) live outside this package; Mode implementations consume this
// interface rather than shelling out directly.
type Compiler interface {
	CompileToJar(ctx context.Context, a *action.Action, destJar string) error
}

// Dexer converts a jar into a Dalvik executable.
type Dexer interface {
	Dex(ctx context.Context, jar, destDex string) error
}

// Mode is the per-environment execution strategy, implemented by
// HostJVM, HostDalvik, DeviceDalvik, DeviceActivity, and AppProcess.
type Mode interface {
	// Prepare runs once per invocation: creates runner directories, pushes
	// the harness jar, sets up port forwarding on remote variants, and
	// extracts an embedded signing keystore when activity packaging is in
	// play.
	Prepare(ctx context.Context) error

	// BuildAndInstall compiles a's sources and produces the runtime
	// artifact for this environment (a jar, a dex file, or a signed APK).
	// It returns nil on success, or a failure Outcome carrying
	// outcome.COMPILE_FAILED or outcome.ERROR.
	BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error)

	// CreateActionCommand returns the argv to launch one action.
	// skipPast, if non-empty, names the last outcome started on a prior
	// attempt so the runner can resume after a mid-run crash.
	CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string

	// Cleanup removes a's per-action scratch directories on host and,
	// for remote variants, target.
	Cleanup(ctx context.Context, a *action.Action) error

	// Shutdown removes the global runner directory, if configured to
	// clean up after the run.
	Shutdown(ctx context.Context) error

	// UseSocketMonitor reports which Host Monitor transport this mode
	// requires: true for a TCP socket, false for a process stdout pipe.
	UseSocketMonitor() bool

	// Target returns the target.Target CreateActionCommand's argv was
	// prepared for, so the driver can start it without needing to know
	// which concrete transport this mode uses.
	Target() target.Target
}

// SingleRunnerMode is implemented by variants that must not be scheduled
// onto a runner pool larger than one, regardless of CPU count — only
// DeviceActivity does, since "am start -W" drives a single foreground
// activity at a time.
type SingleRunnerMode interface {
	Mode
	ForceSingleRunner() bool
}
