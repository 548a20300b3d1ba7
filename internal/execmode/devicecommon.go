package execmode

import (
	"context"
	"os"
	"path"
	"time"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/fingerprint"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/internal/target"
	"go.crosstest.dev/harness/logging"
)

// deviceRoot is the on-device directory all device variants push
// per-action artifacts under, matching the host RunnerDir's role.
const deviceRoot = "/data/local/tmp/vogar"

// deviceCommon holds the compile/dex/push logic shared by DeviceDalvik
// and AppProcess, collapsing what would otherwise be duplicated methods
// on two structs into one embedded helper (composition in place of the
// deep inheritance chain the variants would otherwise need).
type deviceCommon struct {
	Device   *target.Device
	Compiler Compiler
	Dexer    Dexer
	DexCache *fingerprint.Cache // keyed by the pushed dex's own fingerprint
}

func (c *deviceCommon) devicePath(a *action.Action) string {
	return path.Join(deviceRoot, action.NamePath(a.Name))
}

func (c *deviceCommon) prepare(ctx context.Context) error {
	return c.Device.MakeDirs(ctx, deviceRoot)
}

// buildInstallDex compiles, dexes, and pushes a's artifact to the
// device. With a DexCache, a cache hit is only logged: the dex is pushed
// on every call and its fingerprint is then published to DexCache.
func (c *deviceCommon) buildInstallDex(ctx context.Context, a *action.Action) (*outcome.Outcome, error) {
	jar := jarPath(a)
	if err := compileToJar(ctx, c.Compiler, a, jar); err != nil {
		o := outcome.New(a.Name, outcome.COMPILE_FAILED, []string{err.Error()}, time.Now())
		return &o, nil
	}

	dex := dexPath(a)
	if err := c.Dexer.Dex(ctx, jar, dex); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}

	dexBytes, err := os.ReadFile(dex)
	if err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}
	remote := path.Join(c.devicePath(a), "action.dex")

	if c.DexCache != nil {
		key := fingerprint.MakeKey("device-dex", dexBytes)
		if hit, err := c.DexCache.Lookup(ctx, key, dex); err == nil && hit {
			logging.Debugf(ctx, "device dex fingerprint already cached for %s", a.Name)
		}
		if err := c.pushAndPublish(ctx, dex, remote, key); err != nil {
			o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
			return &o, nil
		}
		return nil, nil
	}

	if err := c.Device.PushFile(ctx, dex, remote); err != nil {
		o := outcome.New(a.Name, outcome.ERROR, []string{err.Error()}, time.Now())
		return &o, nil
	}
	return nil, nil
}

func (c *deviceCommon) pushAndPublish(ctx context.Context, localDex, remote string, key fingerprint.Key) error {
	if err := c.Device.PushFile(ctx, localDex, remote); err != nil {
		return errors.Wrapf(err, "failed to push %s to device:%s", localDex, remote)
	}
	return c.DexCache.Publish(ctx, key, localDex)
}

func (c *deviceCommon) cleanup(ctx context.Context, a *action.Action) error {
	return c.Device.Remove(ctx, c.devicePath(a))
}

func (c *deviceCommon) shutdown(ctx context.Context) error {
	return c.Device.Remove(ctx, deviceRoot)
}
