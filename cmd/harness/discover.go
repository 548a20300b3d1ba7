package main

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
)

// packageRe and classRe recognize the two top-level declarations a source
// file needs for discovery to derive a qualified action name without a full
// parse: a package statement and a public top-level type declaration.
var (
	packageRe = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
	classRe   = regexp.MustCompile(`(?m)^\s*public\s+(?:final\s+|abstract\s+)?(?:class|interface|enum)\s+(\w+)`)
)

// discoverActions derives one Action per recognized top-level declaration
// under root, or, if names is non-empty, builds one Action per explicit
// qualified name instead (skipping the directory walk entirely).
func discoverActions(root string, names []string) ([]*action.Action, error) {
	if len(names) > 0 {
		actions := make([]*action.Action, 0, len(names))
		for _, name := range names {
			actions = append(actions, &action.Action{Name: name, SourceRoot: root})
		}
		return actions, nil
	}

	var actions []*action.Action
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".java") {
			return nil
		}
		name, err := declaredName(path)
		if err != nil {
			return errors.Wrapf(err, "failed to discover %s", path)
		}
		if name == "" {
			return nil
		}
		actions = append(actions, &action.Action{
			Name:       name,
			SourcePath: path,
			SourceRoot: root,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// declaredName reads path and returns its dot-separated qualified name
// (package + public top-level type), or "" if no recognized declaration is
// found (e.g. a package-private helper class with no public entry point).
func declaredName(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	classMatch := classRe.FindSubmatch(data)
	if classMatch == nil {
		return "", nil
	}
	class := string(classMatch[1])

	pkgMatch := packageRe.FindSubmatch(data)
	if pkgMatch == nil {
		return class, nil
	}
	return string(pkgMatch[1]) + "." + class, nil
}
