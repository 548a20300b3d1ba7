package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/google/subcommands"

	"go.crosstest.dev/harness/internal/driver"
	"go.crosstest.dev/harness/internal/expectation"
	"go.crosstest.dev/harness/internal/history"
	"go.crosstest.dev/harness/logging"
)

// runCmd implements subcommands.Command for the sole "run" action. A flag
// left at its zero value falls back to whatever the -config YAML file set.
type runCmd struct {
	configPath string

	mode             string
	sourceRoot       string
	resultsDir       string
	target           string
	expectationFiles stringListFlag
	classpath        stringListFlag
	buildClasspath   stringListFlag
	sourcepath       stringListFlag
	monitorPort      int
	timeoutSeconds   int
	keepBefore       bool
	keepAfter        bool
	tag              string
	compareTag       string
	debugPort        int
	benchmark        bool
}

var _ subcommands.Command = (*runCmd)(nil)

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "build, install, and run actions, recording their outcomes" }
func (*runCmd) Usage() string {
	return `Usage: harness run [flags] [qualified.Name ...]

Discovers actions under -sourceroot (or runs exactly the named actions, if
any are given), builds and installs each with the selected -mode, runs it,
and records its outcome against any -expectations files supplied.

`
}

func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "", "path to a YAML config file; flags override its values")
	f.StringVar(&r.mode, "mode", "", "execution mode: host-jvm, host-dalvik, device-dalvik, device-activity, app-process")
	f.StringVar(&r.sourceRoot, "sourceroot", "", "directory to walk for action discovery")
	f.StringVar(&r.resultsDir, "resultsdir", "", "directory to write scratch work dirs and history under")
	f.StringVar(&r.target, "target", "", "device/adb-server address for device modes, \"host[:port]\"")
	f.Var(&r.expectationFiles, "expectations", "comma-separated expectation JSON files; repeatable")
	f.Var(&r.classpath, "classpath", "comma-separated runtime classpath entries; repeatable")
	f.Var(&r.buildClasspath, "build-classpath", "comma-separated compile-time classpath entries; repeatable")
	f.Var(&r.sourcepath, "sourcepath", "comma-separated extra source directories; repeatable")
	f.IntVar(&r.monitorPort, "monitor-port", 8080, "first socket-monitor port; later runner threads use port+threadId mod N")
	f.IntVar(&r.timeoutSeconds, "timeout", 60, "per-action timeout in seconds; 0 disables")
	f.BoolVar(&r.keepBefore, "keep-scratch-before", false, "don't delete a leftover scratch dir before the run")
	f.BoolVar(&r.keepAfter, "keep-scratch-after", false, "don't delete the scratch dir after the run")
	f.StringVar(&r.tag, "tag", "", "name under which to snapshot this run's outcomes")
	f.StringVar(&r.compareTag, "compare-tag", "", "tag to compare outcomes against instead of -tag")
	f.IntVar(&r.debugPort, "debug-port", 0, "JDWP port; non-zero disables timeouts (the port is not passed to the runner process)")
	f.BoolVar(&r.benchmark, "benchmark", false, "required to run caliper benchmarks; disables timeouts and history recording")
}

func (r *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fc, err := loadFileConfig(r.configPath)
	if err != nil {
		logging.Errorf(ctx, "%v", err)
		return subcommands.ExitFailure
	}
	r.applyFileConfig(fc)

	if r.sourceRoot == "" {
		logging.Error(ctx, "missing -sourceroot")
		return subcommands.ExitUsageError
	}
	if r.resultsDir == "" {
		logging.Error(ctx, "missing -resultsdir")
		return subcommands.ExitUsageError
	}

	actions, err := discoverActions(r.sourceRoot, append([]string(nil), f.Args()...))
	if err != nil {
		logging.Errorf(ctx, "failed to discover actions: %v", err)
		return subcommands.ExitFailure
	}
	if len(actions) == 0 {
		logging.Error(ctx, "no actions found")
		return subcommands.ExitUsageError
	}

	expStore := &expectation.Store{}
	if len(r.expectationFiles) > 0 {
		if err := expStore.Load(r.expectationFiles...); err != nil {
			logging.Errorf(ctx, "failed to load expectations: %v", err)
			return subcommands.ExitFailure
		}
	}

	timeout := time.Duration(r.timeoutSeconds) * time.Second
	if r.debugPort != 0 || r.benchmark {
		timeout = 0
	}

	var histStore *history.Store
	if !r.benchmark {
		histStore = history.NewStore(r.resultsDir)
		if r.tag != "" {
			histStore = histStore.WithTag(r.resultsDir, r.tag)
		}
		if r.compareTag != "" {
			histStore = histStore.WithCompareTag(r.compareTag)
		}
	}

	// The runner dir and the scratch dirs under it are deleted by the
	// driver and the mode, so they live apart from the history files.
	runnerDir := filepath.Join(r.resultsDir, "runner")
	mode, err := buildMode(ctx, r.mergedFor(fc), runnerDir)
	if err != nil {
		logging.Errorf(ctx, "failed to build execution mode: %v", err)
		return subcommands.ExitFailure
	}

	console := driver.NewColorConsole(os.Stdout)
	d := driver.New(driver.Config{
		Mode:                 mode,
		ExpectationStore:     expStore,
		HistoryStore:         histStore,
		Console:              console,
		WorkDirRoot:          filepath.Join(runnerDir, "tmp"),
		FirstMonitorPort:     r.monitorPort,
		SocketMonitorTimeout: 30 * time.Second,
		SmallTimeout:         timeout,
		KeepScratchBefore:    r.keepBefore,
		KeepScratchAfter:     r.keepAfter,
	})

	logging.Infof(ctx, "running %d action(s) in mode %q", len(actions), r.mode)
	summary, err := d.Run(ctx, actions)
	if err != nil {
		logging.Errorf(ctx, "run failed: %v", err)
		return subcommands.ExitFailure
	}

	if summary.ExitCode() != 0 {
		return subcommands.ExitStatus(summary.ExitCode())
	}
	return subcommands.ExitSuccess
}

// applyFileConfig fills any flag left at its zero value from fc, so flags
// override file defaults.
func (r *runCmd) applyFileConfig(fc fileConfig) {
	if r.mode == "" {
		r.mode = fc.Mode
	}
	if r.sourceRoot == "" {
		r.sourceRoot = fc.SourceRoot
	}
	if r.resultsDir == "" {
		r.resultsDir = fc.ResultsDir
	}
	if r.target == "" {
		r.target = fc.Target
	}
	if len(r.expectationFiles) == 0 {
		r.expectationFiles = fc.ExpectationFiles
	}
	if len(r.classpath) == 0 {
		r.classpath = fc.Classpath
	}
	if len(r.buildClasspath) == 0 {
		r.buildClasspath = fc.BuildClasspath
	}
	if len(r.sourcepath) == 0 {
		r.sourcepath = fc.Sourcepath
	}
	if r.monitorPort == 0 {
		r.monitorPort = fc.FirstMonitorPort
	}
	if r.tag == "" {
		r.tag = fc.Tag
	}
	if r.compareTag == "" {
		r.compareTag = fc.CompareTag
	}
	if r.debugPort == 0 {
		r.debugPort = fc.DebugPort
	}
	if !r.benchmark {
		r.benchmark = fc.Benchmark
	}
	if !r.keepBefore {
		r.keepBefore = fc.KeepBefore
	}
	if !r.keepAfter {
		r.keepAfter = fc.KeepAfter
	}
}

// mergedFor returns the fileConfig view buildMode needs, reflecting any
// flag overrides applied on top of fc by applyFileConfig.
func (r *runCmd) mergedFor(fc fileConfig) fileConfig {
	fc.Mode = r.mode
	fc.Target = r.target
	fc.Classpath = r.classpath
	fc.BuildClasspath = r.buildClasspath
	fc.Sourcepath = r.sourcepath
	return fc
}
