// Package expectation implements the declarative matcher described by the
// expectations database: name/prefix lookups and output-pattern failure
// rules, resolving to an expected outcome.Result for any outcome the
// driver records.
package expectation

import (
	"encoding/json"
	"os"
	"regexp"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/outcome"
)

// Expectation is a predicate plus an expected result.
type Expectation struct {
	// Result is the expected outcome.Result.
	Result outcome.Result
	// Pattern matches an outcome's combined output. A nil Pattern matches
	// everything (the default for name expectations).
	Pattern *regexp.Regexp
	// Tags are free-form strings; "large" is recognised by the driver for
	// timeout scaling.
	Tags []string
	// Description is a free-text human explanation.
	Description string
	// Bug is an optional external bug identifier; zero means unset.
	Bug int
}

// HasTag reports whether e carries tag.
func (e Expectation) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Implicit is the expectation returned for any outcome with no matching
// record: SUCCESS, matching all output, with no tags.
var Implicit = Expectation{Result: outcome.SUCCESS}

// record is the on-disk JSON shape of one expectation file entry. Exactly
// one of Name, Names, or Failure must be set.
type record struct {
	Name        string   `json:"name"`
	Names       []string `json:"names"`
	Failure     string   `json:"failure"`
	Result      string   `json:"result"`
	Pattern     string   `json:"pattern"`
	Substring   string   `json:"substring"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	Bug         int      `json:"bug"`
}

type nameExpectation struct {
	name string
	exp  Expectation
}

type failureExpectation struct {
	name    string
	pattern *regexp.Regexp
	exp     Expectation
}

// Store is a loaded expectation database. The zero Store behaves as an
// empty one (every lookup resolves to Implicit).
type Store struct {
	names    []nameExpectation
	failures []failureExpectation
}

// Load reads and merges one or more expectation files. Duplicate names
// across files (or within one file) is a load error.
func (s *Store) Load(paths ...string) error {
	seen := map[string]bool{}
	for _, n := range s.names {
		seen[n.name] = true
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read expectation file %s", path)
		}
		var records []record
		if err := json.Unmarshal(data, &records); err != nil {
			return errors.Wrapf(err, "failed to parse expectation file %s", path)
		}
		for i, r := range records {
			if err := s.addRecord(r, seen); err != nil {
				return errors.Wrapf(err, "%s: record %d", path, i)
			}
		}
	}
	return nil
}

func (s *Store) addRecord(r record, seen map[string]bool) error {
	nSet := 0
	for _, set := range []bool{r.Name != "", len(r.Names) > 0, r.Failure != ""} {
		if set {
			nSet++
		}
	}
	if nSet != 1 {
		return errors.New(`exactly one of "name", "names", or "failure" must be set`)
	}

	result := outcome.SUCCESS
	if r.Result != "" {
		var err error
		result, err = outcome.ParseResult(r.Result)
		if err != nil {
			return err
		}
	}

	pattern, err := compilePattern(r.Pattern, r.Substring)
	if err != nil {
		return err
	}

	exp := Expectation{
		Result:      result,
		Pattern:     pattern,
		Tags:        r.Tags,
		Description: r.Description,
		Bug:         r.Bug,
	}

	if r.Failure != "" {
		if pattern == nil {
			return errors.Errorf("failure expectation %q requires a pattern or substring", r.Failure)
		}
		s.failures = append(s.failures, failureExpectation{name: r.Failure, pattern: pattern, exp: exp})
		return nil
	}

	names := r.Names
	if r.Name != "" {
		names = []string{r.Name}
	}
	for _, name := range names {
		if seen[name] {
			return errors.Errorf("duplicate expectation name %q", name)
		}
		seen[name] = true
		s.names = append(s.names, nameExpectation{name: name, exp: exp})
	}
	return nil
}

func compilePattern(pattern, substring string) (*regexp.Regexp, error) {
	switch {
	case pattern != "" && substring != "":
		return nil, errors.New(`"pattern" and "substring" are mutually exclusive`)
	case pattern != "":
		re, err := regexp.Compile("(?ms)" + pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", pattern)
		}
		return re, nil
	case substring != "":
		return regexp.MustCompile("(?ms)" + regexp.QuoteMeta(substring)), nil
	default:
		return nil, nil
	}
}

// Get resolves the expectation for a completed outcome, applying the
// 4-step resolution order: exact name match, failure-pattern scan,
// longest-prefix name match, then the implicit SUCCESS expectation.
func (s *Store) Get(o outcome.Outcome) Expectation {
	if exp, ok := s.lookupName(o.Name()); ok {
		return exp
	}
	if exp, ok := s.lookupFailure(o); ok {
		return exp
	}
	if exp, ok := s.lookupPrefix(o.Name()); ok {
		return exp
	}
	return Implicit
}

// GetByName resolves an expectation using only the name/prefix steps,
// skipping the failure-pattern scan (used when no outcome exists yet, e.g.
// to short-circuit UNSUPPORTED actions before building).
func (s *Store) GetByName(name string) Expectation {
	if exp, ok := s.lookupName(name); ok {
		return exp
	}
	if exp, ok := s.lookupPrefix(name); ok {
		return exp
	}
	return Implicit
}

func (s *Store) lookupName(name string) (Expectation, bool) {
	for _, n := range s.names {
		if n.name == name {
			return n.exp, true
		}
	}
	return Expectation{}, false
}

func (s *Store) lookupFailure(o outcome.Outcome) (Expectation, bool) {
	combined := o.CombinedOutput()
	for _, f := range s.failures {
		if f.pattern.MatchString(combined) {
			return f.exp, true
		}
	}
	return Expectation{}, false
}

func (s *Store) lookupPrefix(name string) (Expectation, bool) {
	for {
		prefix, ok := action.SplitPrefix(name)
		if !ok {
			return Expectation{}, false
		}
		if exp, ok := s.lookupName(prefix); ok {
			return exp, true
		}
		name = prefix
	}
}

// AnnotatedOutcome enriches an outcome with its resolved expectation,
// history, and derived flags.
type AnnotatedOutcome struct {
	outcome.Outcome
	Expectation     Expectation
	History         []outcome.Outcome // newest first
	Tag             *outcome.Outcome
	Changed         bool
	ChangedSinceTag bool
	Noteworthy      bool
}
