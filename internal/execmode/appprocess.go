package execmode

import (
	"context"
	"path"
	"strconv"

	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/fingerprint"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
)

// AppProcess runs a pushed dex artifact via "app_process" on-device,
// without full APK packaging. It shares DeviceDalvik's caching and push
// logic through the embedded deviceCommon rather than duplicating it.
type AppProcess struct {
	deviceCommon
}

var _ Mode = (*AppProcess)(nil)

// NewAppProcess assembles an AppProcess mode against an already-dialed
// device, for callers outside this package that cannot set the embedded
// deviceCommon fields directly.
func NewAppProcess(device *target.Device, compiler Compiler, dexer Dexer, cache *fingerprint.Cache) *AppProcess {
	return &AppProcess{deviceCommon{Device: device, Compiler: compiler, Dexer: dexer, DexCache: cache}}
}

func (m *AppProcess) Prepare(ctx context.Context) error {
	return m.prepare(ctx)
}

func (m *AppProcess) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	return m.buildInstallDex(ctx, a)
}

func (m *AppProcess) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	dex := path.Join(m.devicePath(a), "action.dex")
	args := []string{"app_process", "-cp", dex, "/system/bin"}
	args = append(args, fillRuntimeProps(a, map[string]string{
		"vogar.monitorPort": strconv.Itoa(monitorPort),
		"vogar.skipPast":    skipPast,
	})...)
	args = append(args, "vogar.target.TargetMonitorRunner")
	return m.Device.PrepareProcess(args, m.devicePath(a))
}

func (m *AppProcess) Cleanup(ctx context.Context, a *action.Action) error {
	return m.cleanup(ctx, a)
}

func (m *AppProcess) Shutdown(ctx context.Context) error {
	return m.shutdown(ctx)
}

func (m *AppProcess) UseSocketMonitor() bool { return true }

func (m *AppProcess) Target() target.Target { return m.Device }
