package main

import (
	"context"
	"os/exec"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
)

// shellCompiler, shellDexer, and shellAPKPackager are the default
// implementations of execmode.Compiler/Dexer/APKPackager: thin wrappers
// over os/exec invoking whatever toolchain binaries are configured: a
// synchronous exec.CommandContext wrapper capturing combined output on
// failure. The core never imports these; they exist only to give
// cmd/harness something concrete to wire into execmode.Mode.
type shellCompiler struct {
	bin  string // e.g. "javac"
	args []string
}

func (c *shellCompiler) CompileToJar(ctx context.Context, a *action.Action, destJar string) error {
	args := append(append([]string{}, c.args...), "-d", destJar, a.SourcePath)
	out, err := exec.CommandContext(ctx, c.bin, args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "compile %s: %s", a.Name, out)
	}
	return nil
}

type shellDexer struct {
	bin  string // e.g. "d8" or "dx"
	args []string
}

func (d *shellDexer) Dex(ctx context.Context, jar, destDex string) error {
	args := append(append([]string{}, d.args...), "--output", destDex, jar)
	out, err := exec.CommandContext(ctx, d.bin, args...).CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "dex %s: %s", jar, out)
	}
	return nil
}

type shellAPKPackager struct {
	aaptBin      string
	apksignerBin string
}

func (p *shellAPKPackager) PackageAndSign(ctx context.Context, dex, manifestPath, keystorePath, destAPK string) error {
	packArgs := []string{"package", "-f", "-M", manifestPath, "-F", destAPK}
	if out, err := exec.CommandContext(ctx, p.aaptBin, packArgs...).CombinedOutput(); err != nil {
		return errors.Wrapf(err, "package APK: %s", out)
	}
	signArgs := []string{"sign", "--ks", keystorePath, destAPK}
	if out, err := exec.CommandContext(ctx, p.apksignerBin, signArgs...).CombinedOutput(); err != nil {
		return errors.Wrapf(err, "sign APK: %s", out)
	}
	return nil
}
