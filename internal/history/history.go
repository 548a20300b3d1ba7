// Package history implements the outcome store: a per-action directory of
// timestamped XML history files plus an optional named-tag canonical
// snapshot, as described by the on-disk layout
// "<results-dir>/auto/<action.path>/<timestamp>.xml".
package history

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/internal/expectation"
	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/logging"
)

// timestampLayout matches spec's "YYYY-MM-DD'T'HH:mm:ssZ" filename format,
// always rendered and parsed in UTC.
const timestampLayout = "2006-01-02T15:04:05Z"

// xmlOutcome is the on-disk XML shape of one history/tag entry.
type xmlOutcome struct {
	XMLName  xml.Name `xml:"outcome"`
	Name     string   `xml:"name"`
	Result   string   `xml:"result"`
	Output   []string `xml:"output>line"`
	Finished string   `xml:"finished"`
}

func toXML(o outcome.Outcome) xmlOutcome {
	return xmlOutcome{
		Name:     o.Name(),
		Result:   o.Result().String(),
		Output:   o.Output(),
		Finished: o.Finished().UTC().Format(time.RFC3339Nano),
	}
}

func fromXML(x xmlOutcome) (outcome.Outcome, error) {
	result, err := outcome.ParseResult(x.Result)
	if err != nil {
		return outcome.Outcome{}, err
	}
	finished, err := time.Parse(time.RFC3339Nano, x.Finished)
	if err != nil {
		return outcome.Outcome{}, errors.Wrapf(err, "invalid finished timestamp %q", x.Finished)
	}
	return outcome.New(x.Name, result, x.Output, finished), nil
}

// Store reads and writes outcome history rooted at resultsDir, with an
// optional tag snapshot directory. The tag written after a run and the tag
// compared against before it can differ — see WithTag and WithCompareTag.
type Store struct {
	resultsDir string
	tagDir     string // "" disables tag snapshotting
	tagName    string

	compareTagName string // "" means compare against tagName instead

	index *Index // optional acceleration; never authoritative
}

// NewStore creates a Store rooted at resultsDir. Tagging is enabled by
// calling WithTag.
func NewStore(resultsDir string) *Store {
	return &Store{resultsDir: resultsDir}
}

// WithTag enables canonical tag snapshotting under tagDir/results/tagName,
// written at the end of the run this Store records.
func (s *Store) WithTag(tagDir, tagName string) *Store {
	s.tagDir = tagDir
	s.tagName = tagName
	return s
}

// WithCompareTag reads ChangedSinceTag against a different previously
// written tag than the one this run will write, keeping "tag to write"
// and "tag to compare" as independent settings.
func (s *Store) WithCompareTag(tagName string) *Store {
	s.compareTagName = tagName
	return s
}

func (s *Store) compareTag() string {
	if s.compareTagName != "" {
		return s.compareTagName
	}
	return s.tagName
}

// WithIndex attaches a bbolt-backed acceleration Index.
func (s *Store) WithIndex(idx *Index) *Store {
	s.index = idx
	return s
}

func (s *Store) autoDir(a string) string {
	return filepath.Join(s.resultsDir, "auto", a)
}

func (s *Store) tagFile(a string) string {
	return filepath.Join(s.tagDir, "results", s.tagName, a, "canonical.xml")
}

func (s *Store) compareTagFile(a string) string {
	return filepath.Join(s.tagDir, "results", s.compareTag(), a, "canonical.xml")
}

func (s *Store) metaFile(a string) string {
	return filepath.Join(s.autoDir(a), ".meta")
}

// Read builds an AnnotatedOutcome for o: its resolved expectation, its full
// history (newest first), the tag outcome if tagging is configured, and the
// derived Changed/ChangedSinceTag/Noteworthy flags.
func (s *Store) Read(ctx context.Context, store *expectation.Store, o outcome.Outcome) (expectation.AnnotatedOutcome, error) {
	path := action.NamePath(o.Name())
	history, err := s.readHistory(path)
	if err != nil {
		return expectation.AnnotatedOutcome{}, err
	}

	var tag *outcome.Outcome
	if s.tagDir != "" {
		t, ok, err := s.readTag(path)
		if err != nil {
			return expectation.AnnotatedOutcome{}, err
		}
		if ok {
			tag = &t
		}
	}

	exp := expectation.Implicit
	if store != nil {
		exp = store.Get(o)
	}

	changed := len(history) == 0 || !sameOutcome(history[0], o)
	changedSinceTag := tag == nil || !sameOutcome(*tag, o)

	ao := expectation.AnnotatedOutcome{
		Outcome:         o,
		Expectation:     exp,
		History:         history,
		Tag:             tag,
		Changed:         changed,
		ChangedSinceTag: changedSinceTag,
		Noteworthy:      o.Result() != exp.Result,
	}
	return ao, nil
}

func sameOutcome(a, b outcome.Outcome) bool {
	return a.Result() == b.Result() && a.CombinedOutput() == b.CombinedOutput()
}

// Write appends a new timestamped history file only if changed is true, and
// always rewrites the tag canonical file when tagging is configured.
func (s *Store) Write(ctx context.Context, o outcome.Outcome, changed bool) error {
	path := action.NamePath(o.Name())
	now := o.Finished().UTC()
	filename := now.Format(timestampLayout) + ".xml"

	if changed {
		dir := s.autoDir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create history dir for %s", o.Name())
		}
		if err := writeXML(filepath.Join(dir, filename), toXML(o)); err != nil {
			return errors.Wrapf(err, "failed to write history file for %s", o.Name())
		}
		if err := s.appendMeta(path, now, filename); err != nil {
			return errors.Wrapf(err, "failed to update .meta for %s", o.Name())
		}
		if s.index != nil {
			if err := s.index.RecordWrite(o.Name(), now); err != nil {
				logging.Warnf(ctx, "failed to update history index for %s: %v", o.Name(), err)
			}
		}
	}

	if s.tagDir != "" {
		dir := filepath.Dir(s.tagFile(path))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create tag dir for %s", o.Name())
		}
		if err := writeXML(s.tagFile(path), toXML(o)); err != nil {
			return errors.Wrapf(err, "failed to write tag file for %s", o.Name())
		}
		if s.index != nil {
			if err := s.index.RecordTag(s.tagName, o.Name()); err != nil {
				logging.Warnf(ctx, "failed to update tag index for %s: %v", o.Name(), err)
			}
		}
	}
	return nil
}

func writeXML(path string, x xmlOutcome) error {
	data, err := xml.MarshalIndent(x, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *Store) appendMeta(path string, runTime time.Time, filename string) error {
	line := runTime.Format(time.RFC3339) + "\t" + filename + "\n"
	f, err := os.OpenFile(s.metaFile(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

func (s *Store) readHistory(path string) ([]outcome.Outcome, error) {
	dir := s.autoDir(path)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list history dir %s", dir)
	}

	type stamped struct {
		ts time.Time
		o  outcome.Outcome
	}
	var all []stamped
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".xml") {
			continue
		}
		ts, err := time.Parse(timestampLayout, strings.TrimSuffix(name, ".xml"))
		if err != nil {
			continue // not a history filename we recognize; skip it
		}
		o, err := readOutcomeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, stamped{ts: ts, o: o})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.After(all[j].ts) })

	out := make([]outcome.Outcome, len(all))
	for i, s := range all {
		out[i] = s.o
	}
	return out, nil
}

func (s *Store) readTag(path string) (outcome.Outcome, bool, error) {
	o, err := readOutcomeFile(s.compareTagFile(path))
	if os.IsNotExist(err) {
		return outcome.Outcome{}, false, nil
	}
	if err != nil {
		return outcome.Outcome{}, false, err
	}
	return o, true, nil
}

func readOutcomeFile(path string) (outcome.Outcome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome.Outcome{}, err
	}
	var x xmlOutcome
	if err := xml.Unmarshal(data, &x); err != nil {
		return outcome.Outcome{}, errors.Wrapf(err, "failed to parse %s", path)
	}
	return fromXML(x)
}
