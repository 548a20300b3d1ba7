package main

import (
	"context"
	"path/filepath"
	"testing"

	"go.crosstest.dev/harness/internal/action"
)

func TestShellCompilerWrapsFailure(t *testing.T) {
	c := &shellCompiler{bin: "false"}
	a := &action.Action{Name: "pkg.Foo", SourcePath: "Foo.java"}
	err := c.CompileToJar(context.Background(), a, filepath.Join(t.TempDir(), "out.jar"))
	if err == nil {
		t.Fatal("expected an error from a failing compiler")
	}
}

func TestShellDexerWrapsFailure(t *testing.T) {
	d := &shellDexer{bin: "false"}
	err := d.Dex(context.Background(), "in.jar", filepath.Join(t.TempDir(), "out.dex"))
	if err == nil {
		t.Fatal("expected an error from a failing dexer")
	}
}

func TestShellAPKPackagerStopsAtFirstFailure(t *testing.T) {
	p := &shellAPKPackager{aaptBin: "false", apksignerBin: "true"}
	err := p.PackageAndSign(context.Background(), "a.dex", "Manifest.xml", "key.jks", filepath.Join(t.TempDir(), "out.apk"))
	if err == nil {
		t.Fatal("expected an error when aapt fails")
	}
}
