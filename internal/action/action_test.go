package action_test

import (
	"testing"

	"go.crosstest.dev/harness/internal/action"
)

func TestPrepareOnce(t *testing.T) {
	a := &action.Action{Name: "ex.AddTest#plus"}
	if err := a.Prepare("/tmp/work/1"); err != nil {
		t.Fatalf("first Prepare failed: %v", err)
	}
	if err := a.Prepare("/tmp/work/2"); err == nil {
		t.Error("second Prepare succeeded; want error")
	}
	if a.WorkDir != "/tmp/work/1" {
		t.Errorf("WorkDir = %q; want /tmp/work/1 (unchanged by failed re-Prepare)", a.WorkDir)
	}
}

func TestSplitPrefix(t *testing.T) {
	cases := []struct {
		name   string
		prefix string
		ok     bool
	}{
		{"a.b.c.d", "a.b.c", true},
		{"a.b.c", "a.b", true},
		{"a.b", "a", true},
		{"a", "", false},
		{"pkg.ClassTest#method", "pkg.ClassTest", true},
	}
	for _, c := range cases {
		prefix, ok := action.SplitPrefix(c.name)
		if prefix != c.prefix || ok != c.ok {
			t.Errorf("SplitPrefix(%q) = (%q, %v); want (%q, %v)", c.name, prefix, ok, c.prefix, c.ok)
		}
	}
}

func TestSplitPrefixWalk(t *testing.T) {
	name := "a.b.c.d"
	var walk []string
	for {
		walk = append(walk, name)
		prefix, ok := action.SplitPrefix(name)
		if !ok {
			break
		}
		name = prefix
	}
	want := []string{"a.b.c.d", "a.b.c", "a.b", "a"}
	if len(walk) != len(want) {
		t.Fatalf("walk = %v; want %v", walk, want)
	}
	for i := range want {
		if walk[i] != want[i] {
			t.Errorf("walk[%d] = %q; want %q", i, walk[i], want[i])
		}
	}
}

func TestMethod(t *testing.T) {
	base, method := action.Method("pkg.ClassTest#plus")
	if base != "pkg.ClassTest" || method != "plus" {
		t.Errorf("Method = (%q, %q); want (pkg.ClassTest, plus)", base, method)
	}
	base, method = action.Method("pkg.ClassTest")
	if base != "pkg.ClassTest" || method != "" {
		t.Errorf("Method = (%q, %q); want (pkg.ClassTest, \"\")", base, method)
	}
}

func TestPath(t *testing.T) {
	a := &action.Action{Name: "pkg.sub.ClassTest#plus"}
	if got, want := a.Path(), "pkg/sub/ClassTest@plus"; got != want {
		t.Errorf("Path() = %q; want %q", got, want)
	}
}
