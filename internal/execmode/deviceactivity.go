package execmode

import (
	"context"
	"path"
	"strconv"
	"time"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/fingerprint"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
)

// APKPackager packages a dexed artifact and manifest into a signed APK.
// Like Compiler and Dexer, the concrete toolchain invocation lives
// outside this package.
type APKPackager interface {
	PackageAndSign(ctx context.Context, dex, manifestPath, keystorePath, destAPK string) error
}

// DeviceActivity packages the dexed artifact into a signed APK and
// launches it as a foreground activity via "am start -W". It is the
// heaviest device variant and forces a socket monitor and a
// single-runner pool.
type DeviceActivity struct {
	deviceCommon
	APKPackager APKPackager

	keystorePath string // set by Prepare
}

var _ Mode = (*DeviceActivity)(nil)
var _ SingleRunnerMode = (*DeviceActivity)(nil)

// NewDeviceActivity assembles a DeviceActivity mode against an
// already-dialed device, for callers outside this package that cannot
// set the embedded deviceCommon fields directly.
func NewDeviceActivity(device *target.Device, compiler Compiler, dexer Dexer, cache *fingerprint.Cache, packager APKPackager) *DeviceActivity {
	return &DeviceActivity{
		deviceCommon: deviceCommon{Device: device, Compiler: compiler, Dexer: dexer, DexCache: cache},
		APKPackager:  packager,
	}
}

func (m *DeviceActivity) Prepare(ctx context.Context) error {
	if err := m.prepare(ctx); err != nil {
		return err
	}
	m.keystorePath = path.Join(deviceRoot, "testkey.jks")
	local := path.Join(deviceRoot, "testkey.jks.local")
	if err := extractKeystore(local); err != nil {
		return err
	}
	return m.Device.PushFile(ctx, local, m.keystorePath)
}

func (m *DeviceActivity) BuildAndInstall(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	if o, err := m.buildInstallDex(ctx, a); o != nil || err != nil {
		return o, err
	}

	manifestPath := path.Join(a.WorkDir, "AndroidManifest.xml")
	if err := writeManifest(manifestPath, a.Name); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}

	apk := path.Join(a.WorkDir, "action.apk")
	if err := m.packageAndSignAPK(ctx, a, manifestPath, apk); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}

	remoteAPK := path.Join(m.devicePath(a), "action.apk")
	if err := m.Device.PushFile(ctx, apk, remoteAPK); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}
	if _, err := m.Device.RunCommand(ctx, []string{"pm", "install", "-r", remoteAPK}, ""); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}
	return nil, nil
}

// packageAndSignAPK is left as a thin seam over an external APK
// builder/signer toolchain, keeping concrete toolchain invocations
// external to the core, the same way compileToJar and Dex
// do for javac and the dexer.
func (m *DeviceActivity) packageAndSignAPK(ctx context.Context, a *action.Action, manifestPath, destAPK string) error {
	if m.APKPackager == nil {
		return errors.New("execmode: DeviceActivity requires an APKPackager")
	}
	return m.APKPackager.PackageAndSign(ctx, dexPath(a), manifestPath, m.keystorePath, destAPK)
}

func (m *DeviceActivity) CreateActionCommand(a *action.Action, skipPast string, monitorPort int) []string {
	pkg := manifestPackage(a.Name)
	args := []string{
		"am", "start", "-W",
		"-n", pkg + "/.TargetMonitorActivity",
		"--es", "vogar.monitorPort", strconv.Itoa(monitorPort),
	}
	if skipPast != "" {
		args = append(args, "--es", "vogar.skipPast", skipPast)
	}
	return m.Device.PrepareProcess(args, "")
}

func (m *DeviceActivity) Cleanup(ctx context.Context, a *action.Action) error {
	pkg := manifestPackage(a.Name)
	_, _ = m.Device.RunCommand(ctx, []string{"pm", "uninstall", pkg}, "")
	return m.cleanup(ctx, a)
}

func (m *DeviceActivity) Shutdown(ctx context.Context) error {
	_ = m.Device.Remove(ctx, m.keystorePath)
	return m.shutdown(ctx)
}

func (m *DeviceActivity) UseSocketMonitor() bool { return true }

func (m *DeviceActivity) Target() target.Target { return m.Device }

func (m *DeviceActivity) ForceSingleRunner() bool { return true }
