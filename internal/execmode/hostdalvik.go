package execmode

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/fingerprint"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
	"go.crosstest.dev/harness/logging"
)

// HostDalvik compiles to a jar, dexes it, and runs it under a local
// Dalvik emulator/ART process reached over a socket monitor rather than
// a stdout pipe.
type HostDalvik struct {
	RunnerDir   string
	Compiler    Compiler
	Dexer       Dexer
	DexCache    *fingerprint.Cache
	EmulatorBin string   // defaults to "emulator" if empty
	Classpath   []string // extra runtime classpath entries, ahead of the action's own dex

	local target.Local
}

var _ Mode = (*HostDalvik)(nil)

func (m *HostDalvik) emulatorBin() string {
	if m.EmulatorBin == "" {
		return "emulator"
	}
	return m.EmulatorBin
}

func (m *HostDalvik) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(m.RunnerDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create runner directory %s", m.RunnerDir)
	}
	if running, err := m.emulatorAlreadyRunning(); err != nil {
		logging.Warnf(ctx, "failed to probe for a running emulator: %v", err)
	} else if running {
		logging.Infof(ctx, "reusing already-running local emulator")
	}
	return nil
}

// emulatorAlreadyRunning inspects the local process table via gopsutil and
// reports whether a process whose name contains "emulator" or "art" is
// running. Prepare only logs the result; it never spawns an emulator.
func (m *HostDalvik) emulatorAlreadyRunning() (bool, error) {
	procs, err := process.Processes()
	if err != nil {
		return false, errors.Wrap(err, "failed to list processes")
	}
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if strings.Contains(name, "emulator") || strings.Contains(name, "art") {
			return true, nil
		}
	}
	return false, nil
}

func (m *HostDalvik) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	jar := jarPath(a)
	if err := compileToJar(ctx, m.Compiler, a, jar); err != nil {
		o := outcome.New(a.Name, outcome.COMPILE_FAILED, []string{err.Error()}, time.Now())
		return &o, nil
	}

	dex := dexPath(a)
	if m.DexCache != nil {
		jarBytes, err := os.ReadFile(jar)
		if err != nil {
			o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
			return &o, nil
		}
		key := fingerprint.MakeKey("dex", jarBytes)
		if hit, err := m.DexCache.Lookup(ctx, key, dex); err == nil && hit {
			logging.Debugf(ctx, "dex cache hit for %s", a.Name)
			return nil, nil
		}
		if err := m.dexAndPublish(ctx, jar, dex, key); err != nil {
			o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
			return &o, nil
		}
		return nil, nil
	}

	if err := m.Dexer.Dex(ctx, jar, dex); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}
	return nil, nil
}

func (m *HostDalvik) dexAndPublish(ctx context.Context, jar, dex string, key fingerprint.Key) error {
	if err := m.Dexer.Dex(ctx, jar, dex); err != nil {
		return errors.Wrap(err, "failed to dex")
	}
	return m.DexCache.Publish(ctx, key, dex)
}

func (m *HostDalvik) classpath(a *action.Action) string {
	return strings.Join(append(append([]string{}, m.Classpath...), dexPath(a)), string(filepath.ListSeparator))
}

func (m *HostDalvik) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	args := []string{m.emulatorBin(), "-cp", m.classpath(a)}
	args = append(args, fillRuntimeProps(a, map[string]string{
		"vogar.monitorPort": strconv.Itoa(monitorPort),
		"vogar.skipPast":    skipPast,
	})...)
	args = append(args, "vogar.target.TargetMonitorRunner")
	return m.local.PrepareProcess(args, a.WorkDir)
}

func (m *HostDalvik) Cleanup(ctx context.Context, a *action.Action) error {
	return m.local.Remove(ctx, a.WorkDir)
}

func (m *HostDalvik) Shutdown(ctx context.Context) error {
	return m.local.Remove(ctx, m.RunnerDir)
}

func (m *HostDalvik) UseSocketMonitor() bool { return true }

func (m *HostDalvik) Target() target.Target { return m.local }
