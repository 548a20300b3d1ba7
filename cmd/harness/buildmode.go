package main

import (
	"context"
	"net"
	"path/filepath"
	"strconv"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/execmode"
	"go.crosstest.dev/harness/internal/fingerprint"
	"go.crosstest.dev/harness/internal/target"
)

// defaultDeviceServerPort is the standard adb server port, used when
// cfg.Target omits one.
const defaultDeviceServerPort = 5037

// buildMode constructs the execmode.Mode named by cfg.Mode, wiring the
// target it runs against and the default shell-based toolchain seams.
// Supported names: "host-jvm", "host-dalvik", "device-dalvik",
// "device-activity", "app-process".
func buildMode(ctx context.Context, cfg fileConfig, runnerDir string) (execmode.Mode, error) {
	compiler := &shellCompiler{
		bin:  "javac",
		args: append([]string{"-cp", filepath.Join(cfg.BuildClasspath...)}, sourcepathArgs(cfg.Sourcepath)...),
	}
	dexer := &shellDexer{bin: "d8"}

	switch cfg.Mode {
	case "", "host-jvm":
		return &execmode.HostJVM{
			RunnerDir: runnerDir,
			Compiler:  compiler,
			Classpath: cfg.Classpath,
		}, nil

	case "host-dalvik":
		cache, err := dexCache(runnerDir)
		if err != nil {
			return nil, err
		}
		return &execmode.HostDalvik{
			RunnerDir: runnerDir,
			Compiler:  compiler,
			Dexer:     dexer,
			DexCache:  cache,
			Classpath: cfg.Classpath,
		}, nil

	case "device-dalvik":
		dev, cache, err := dialDeviceAndCache(ctx, cfg, runnerDir)
		if err != nil {
			return nil, err
		}
		return execmode.NewDeviceDalvik(dev, compiler, dexer, cache), nil

	case "app-process":
		dev, cache, err := dialDeviceAndCache(ctx, cfg, runnerDir)
		if err != nil {
			return nil, err
		}
		return execmode.NewAppProcess(dev, compiler, dexer, cache), nil

	case "device-activity":
		dev, cache, err := dialDeviceAndCache(ctx, cfg, runnerDir)
		if err != nil {
			return nil, err
		}
		packager := &shellAPKPackager{aaptBin: "aapt", apksignerBin: "apksigner"}
		return execmode.NewDeviceActivity(dev, compiler, dexer, cache, packager), nil

	default:
		return nil, errors.Errorf("unknown execution mode %q", cfg.Mode)
	}
}

func dexCache(runnerDir string) (*fingerprint.Cache, error) {
	cache, err := fingerprint.NewCache(filepath.Join(runnerDir, "dex-cache"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open dex cache")
	}
	return cache, nil
}

// dialDeviceAndCache dials the device target named by cfg.Target (a bare
// "host[:port]" adb server address) and opens the dex fingerprint cache
// shared by every device-mode variant.
func dialDeviceAndCache(ctx context.Context, cfg fileConfig, runnerDir string) (*target.Device, *fingerprint.Cache, error) {
	host, port := "localhost", defaultDeviceServerPort
	if cfg.Target != "" {
		h, p, err := splitHostPort(cfg.Target, defaultDeviceServerPort)
		if err != nil {
			return nil, nil, err
		}
		host, port = h, p
	}
	dev, err := target.DialDevice(ctx, host, port)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to dial device at %s:%d", host, port)
	}
	cache, err := dexCache(runnerDir)
	if err != nil {
		return nil, nil, err
	}
	return dev, cache, nil
}

func splitHostPort(spec string, defaultPort int) (string, int, error) {
	host, portStr, err := net.SplitHostPort(spec)
	if err != nil {
		return spec, defaultPort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, errors.Wrapf(err, "invalid target port in %q", spec)
	}
	return host, port, nil
}

func sourcepathArgs(sourcepath []string) []string {
	if len(sourcepath) == 0 {
		return nil
	}
	return []string{"-sourcepath", filepath.Join(sourcepath...)}
}
