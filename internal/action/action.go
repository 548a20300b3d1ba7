// Package action defines the compilable/runnable unit discovered and
// scheduled by the driver.
package action

import (
	"strings"

	"go.crosstest.dev/harness/errors"
)

// Action is a compilable/runnable unit. It is created during discovery and
// is immutable thereafter except for WorkDir, which is assigned exactly
// once during preparation.
type Action struct {
	// Name is the action's unique qualified name, dot-separated, optionally
	// carrying a "#method" selector (e.g. "pkg.ClassTest#method").
	Name string

	// SourcePath is the path to the action's source file, if discovered
	// from a directory walk rather than given as an explicit class name.
	SourcePath string

	// SourceRoot is the root directory SourcePath was discovered under.
	SourceRoot string

	// ResourcesDir is the directory containing any resource files the
	// action's run needs deployed alongside its compiled artifact.
	ResourcesDir string

	// WorkDir is the action's working directory on both host and target.
	// It is the empty string until Prepare assigns it.
	WorkDir string
}

// Prepare assigns WorkDir exactly once. Calling it a second time is a
// programming error, since the data model guarantees WorkDir is set only
// during preparation.
func (a *Action) Prepare(workDir string) error {
	if a.WorkDir != "" {
		return errors.Errorf("action %s: WorkDir already assigned to %q", a.Name, a.WorkDir)
	}
	a.WorkDir = workDir
	return nil
}

// Path returns a filesystem-safe relative path derived from Name, used to
// key per-action scratch directories and history/tag storage
// (<results-dir>/auto/<action.path>/...). Dots become path separators and
// "#" becomes "@" (not a valid path separator, but distinguishes a method
// selector from a package segment at a glance).
func (a *Action) Path() string {
	return NamePath(a.Name)
}

// NamePath derives a Path from a bare qualified name.
func NamePath(name string) string {
	name = strings.ReplaceAll(name, "#", "@")
	return strings.ReplaceAll(name, ".", "/")
}

// SplitPrefix returns the qualified name with its final "." or "#" segment
// removed, along with whether a strict prefix remains. It is used by the
// expectation store's longest-prefix lookup, walking a.b.c.d -> a.b.c ->
// a.b -> a -> "".
func SplitPrefix(name string) (prefix string, ok bool) {
	i := strings.LastIndexAny(name, ".#")
	if i < 0 {
		return "", false
	}
	return name[:i], true
}

// Method returns the "#method" selector of name, if any, and the bare
// class/package name with the selector stripped.
func Method(name string) (base, method string) {
	i := strings.IndexByte(name, '#')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}
