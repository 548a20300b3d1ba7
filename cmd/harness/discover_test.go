package main

import (
	"path/filepath"
	"testing"

	"go.crosstest.dev/harness/testutil"
)

func writeSource(t *testing.T, dir, rel, content string) string {
	t.Helper()
	if err := testutil.WriteFiles(dir, map[string]string{rel: content}); err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, rel)
}

func TestDiscoverActionsExplicitNames(t *testing.T) {
	root := t.TempDir()
	actions, err := discoverActions(root, []string{"pkg.Foo", "pkg.Bar#method"})
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 {
		t.Fatalf("got %d actions, want 2", len(actions))
	}
	if actions[0].Name != "pkg.Foo" || actions[1].Name != "pkg.Bar#method" {
		t.Errorf("unexpected names: %+v", actions)
	}
}

func TestDiscoverActionsWalksTree(t *testing.T) {
	root := t.TempDir()
	if err := testutil.WriteFiles(root, map[string]string{
		"ex/AddTest.java": "package ex;\n\npublic class AddTest {}\n",
		"ex/Helper.java":  "package ex;\n\nclass Helper {}\n",
		"README.md":       "not java",
	}); err != nil {
		t.Fatal(err)
	}

	actions, err := discoverActions(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 1 {
		t.Fatalf("got %d actions, want 1: %+v", len(actions), actions)
	}
	if actions[0].Name != "ex.AddTest" {
		t.Errorf("name = %q, want ex.AddTest", actions[0].Name)
	}
}

func TestDeclaredNameNoPublicType(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Helper.java", "package ex;\n\nclass Helper {}\n")
	name, err := declaredName(path)
	if err != nil {
		t.Fatal(err)
	}
	if name != "" {
		t.Errorf("name = %q, want empty", name)
	}
}

func TestDeclaredNameNoPackage(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "Standalone.java", "public class Standalone {}\n")
	name, err := declaredName(path)
	if err != nil {
		t.Fatal(err)
	}
	if name != "Standalone" {
		t.Errorf("name = %q, want Standalone", name)
	}
}
