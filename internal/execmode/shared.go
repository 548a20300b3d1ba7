package execmode

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
)

// compileToJar is the shared free function every variant calls from
// BuildAndInstall: it has no variant-specific behavior, so it isn't a
// method on any one Mode.
func compileToJar(ctx context.Context, c Compiler, a *action.Action, destJar string) error {
	if c == nil {
		return errors.New("execmode: no compiler configured")
	}
	if err := c.CompileToJar(ctx, a, destJar); err != nil {
		return errors.Wrapf(err, "failed to compile %s", a.Name)
	}
	return nil
}

// fillRuntimeProps builds the runtime property list the in-target runner
// reads to find its action and deployed resources, returned in
// deterministic key order so unit tests and logs are stable.
func fillRuntimeProps(a *action.Action, extra map[string]string) []string {
	props := map[string]string{
		"vogar.target":  a.Name,
		"vogar.workdir": a.WorkDir,
	}
	if a.ResourcesDir != "" {
		props["vogar.resources"] = a.ResourcesDir
	}
	for k, v := range extra {
		props[k] = v
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, fmt.Sprintf("-D%s=%s", k, props[k]))
	}
	return args
}

// jarPath and dexPath derive the per-action artifact paths under a's
// WorkDir, shared by every variant that caches a compiled or dexed
// artifact there.
func jarPath(a *action.Action) string {
	return filepath.Join(a.WorkDir, "action.jar")
}

func dexPath(a *action.Action) string {
	return filepath.Join(a.WorkDir, "action.dex")
}

// manifestPackage derives the synthesized AndroidManifest.xml package
// name from an action name, prefixed with "vogar.test." to guarantee a
// "." separator is present even for a bare single-segment action name.
func manifestPackage(name string) string {
	sanitized := strings.Map(func(r rune) rune {
		if r == '#' {
			return '_'
		}
		return r
	}, name)
	return "vogar.test." + sanitized
}
