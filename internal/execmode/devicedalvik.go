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

// DeviceDalvik pushes a dexed artifact to an Android device and runs it
// under "dalvikvm" there, reached over a forwarded-port socket monitor.
type DeviceDalvik struct {
	deviceCommon
}

var _ Mode = (*DeviceDalvik)(nil)

// NewDeviceDalvik assembles a DeviceDalvik mode against an already-dialed
// device, for callers outside this package that cannot set the embedded
// deviceCommon fields directly.
func NewDeviceDalvik(device *target.Device, compiler Compiler, dexer Dexer, cache *fingerprint.Cache) *DeviceDalvik {
	return &DeviceDalvik{deviceCommon{Device: device, Compiler: compiler, Dexer: dexer, DexCache: cache}}
}

func (m *DeviceDalvik) Prepare(ctx context.Context) error {
	return m.prepare(ctx)
}

func (m *DeviceDalvik) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	return m.buildInstallDex(ctx, a)
}

func (m *DeviceDalvik) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	dex := path.Join(m.devicePath(a), "action.dex")
	args := []string{"dalvikvm", "-cp", dex}
	args = append(args, fillRuntimeProps(a, map[string]string{
		"vogar.monitorPort": strconv.Itoa(monitorPort),
		"vogar.skipPast":    skipPast,
	})...)
	args = append(args, "vogar.target.TargetMonitorRunner")
	return m.Device.PrepareProcess(args, m.devicePath(a))
}

func (m *DeviceDalvik) Cleanup(ctx context.Context, a *action.Action) error {
	return m.cleanup(ctx, a)
}

func (m *DeviceDalvik) Shutdown(ctx context.Context) error {
	return m.shutdown(ctx)
}

func (m *DeviceDalvik) UseSocketMonitor() bool { return true }

func (m *DeviceDalvik) Target() target.Target { return m.Device }
