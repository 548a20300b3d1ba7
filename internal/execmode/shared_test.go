package execmode

import (
	"testing"

	"go.crosstest.dev/harness/internal/action"
)

func TestFillRuntimePropsDeterministicOrder(t *testing.T) {
	a := &action.Action{Name: "pkg.Test", WorkDir: "/tmp/work", ResourcesDir: "/tmp/res"}
	got := fillRuntimeProps(a, map[string]string{"vogar.monitorPort": "1234"})
	want := []string{
		"-Dvogar.monitorPort=1234",
		"-Dvogar.resources=/tmp/res",
		"-Dvogar.target=pkg.Test",
		"-Dvogar.workdir=/tmp/work",
	}
	if len(got) != len(want) {
		t.Fatalf("fillRuntimeProps returned %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("fillRuntimeProps()[%d] = %q; want %q", i, got[i], want[i])
		}
	}
}

func TestFillRuntimePropsOmitsResourcesWhenUnset(t *testing.T) {
	a := &action.Action{Name: "pkg.Test", WorkDir: "/tmp/work"}
	got := fillRuntimeProps(a, nil)
	for _, prop := range got {
		if prop == "-Dvogar.resources=" {
			t.Errorf("fillRuntimeProps included an empty resources property: %v", got)
		}
	}
}

func TestManifestPackagePrefixedAndSanitized(t *testing.T) {
	for _, tc := range []struct{ name, want string }{
		{"pkg.Test", "vogar.test.pkg.Test"},
		{"pkg.Test#method", "vogar.test.pkg.Test_method"},
		{"SingleSegment", "vogar.test.SingleSegment"},
	} {
		if got := manifestPackage(tc.name); got != tc.want {
			t.Errorf("manifestPackage(%q) = %q; want %q", tc.name, got, tc.want)
		}
	}
}

func TestJarAndDexPathsAreWorkDirRelative(t *testing.T) {
	a := &action.Action{Name: "pkg.Test", WorkDir: "/tmp/work"}
	if got, want := jarPath(a), "/tmp/work/action.jar"; got != want {
		t.Errorf("jarPath() = %q; want %q", got, want)
	}
	if got, want := dexPath(a), "/tmp/work/action.dex"; got != want {
		t.Errorf("dexPath() = %q; want %q", got, want)
	}
}
