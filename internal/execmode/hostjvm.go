package execmode

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
)

// HostJVM runs a compiled jar directly on the host JVM via target.Local.
// It is the simplest variant: no dexing, no device, no socket monitor.
type HostJVM struct {
	RunnerDir string
	Compiler  Compiler
	JavaBin   string   // defaults to "java" if empty
	Classpath []string // extra runtime classpath entries, ahead of the action's own jar

	local target.Local
}

var _ Mode = (*HostJVM)(nil)

func (m *HostJVM) javaBin() string {
	if m.JavaBin == "" {
		return "java"
	}
	return m.JavaBin
}

func (m *HostJVM) Prepare(ctx context.Context) error {
	if err := os.MkdirAll(m.RunnerDir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create runner directory %s", m.RunnerDir)
	}
	return nil
}

func (m *HostJVM) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	dest := jarPath(a)
	if err := compileToJar(ctx, m.Compiler, a, dest); err != nil {
		o := outcome.New(a.Name, outcome.COMPILE_FAILED, []string{err.Error()}, time.Now())
		return &o, nil
	}
	return nil, nil
}

func (m *HostJVM) classpath(a *action.Action) string {
	return strings.Join(append(append([]string{}, m.Classpath...), jarPath(a)), string(filepath.ListSeparator))
}

func (m *HostJVM) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	args := []string{m.javaBin(), "-cp", m.classpath(a)}
	args = append(args, fillRuntimeProps(a, map[string]string{
		"vogar.monitorPort": strconv.Itoa(monitorPort),
		"vogar.skipPast":    skipPast,
	})...)
	args = append(args, "vogar.target.TargetMonitorRunner")
	return m.local.PrepareProcess(args, a.WorkDir)
}

func (m *HostJVM) Cleanup(ctx context.Context, a *action.Action) error {
	return m.local.Remove(ctx, a.WorkDir)
}

func (m *HostJVM) Shutdown(ctx context.Context) error {
	return m.local.Remove(ctx, m.RunnerDir)
}

func (m *HostJVM) UseSocketMonitor() bool { return false }

func (m *HostJVM) Target() target.Target { return m.local }
