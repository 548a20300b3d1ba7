// Package monitor decodes the host monitor wire protocol: a streaming XML
// event feed emitted by the in-target runner, carrying structured outcome
// events interleaved with unstructured console output.
//
//	<vogar-monitor>
//	  <outcome name="pkg.ClassTest#m" runner="RUNNER_CLASS_TAG">
//	    …characters…
//	    <result value="SUCCESS|EXEC_FAILED|…" />
//	  </outcome>
//	  <unstructured-output>…</unstructured-output>
//	</vogar-monitor>
package monitor

import (
	"context"
	"encoding/xml"
	"io"
	"time"

	"go.crosstest.dev/harness/internal/outcome"
	"go.crosstest.dev/harness/logging"
)

// maxDiagnosticBytes is the amount of offending input captured when the
// stream fails to parse as XML.
const maxDiagnosticBytes = 1024

// Handler receives monitor events. Embed BaseHandler to implement only the
// callbacks a caller cares about.
type Handler interface {
	// Start is called when a new outcome begins. runnerTag identifies the
	// runner class that produced it.
	Start(name, runnerTag string)
	// Output is called for each fragment of an outcome's output as it
	// arrives; fragments must be concatenated in arrival order. It may
	// fire many times per outcome.
	Output(name, fragment string)
	// Finish is called with the terminal outcome. It always precedes the
	// next Start call.
	Finish(o outcome.Outcome)
	// Print receives unstructured output interleaved with structured
	// outcomes.
	Print(text string)
}

// BaseHandler implements Handler with no-op methods.
type BaseHandler struct{}

var _ Handler = BaseHandler{}

func (BaseHandler) Start(name, runnerTag string) {}
func (BaseHandler) Output(name, fragment string) {}
func (BaseHandler) Finish(o outcome.Outcome)      {}
func (BaseHandler) Print(text string)             {}

// tee retains the last maxDiagnosticBytes read through it, for malformed-XML
// diagnostics.
type tee struct {
	r    io.Reader
	last []byte
}

func (t *tee) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.last = append(t.last, p[:n]...)
		if len(t.last) > maxDiagnosticBytes {
			t.last = t.last[len(t.last)-maxDiagnosticBytes:]
		}
	}
	return n, err
}

// state tracks the currently-open outcome or unstructured-output element,
// if any, across Token calls. At most one of the two is open at a time;
// the wire format never nests them.
type state struct {
	outcomeOpen bool
	name        string
	builder     *outcome.Builder

	unstructuredOpen bool
	unstructured     []byte
}

// Run decodes the monitor stream from r, invoking h's callbacks, until r is
// exhausted. Malformed XML is not fatal: Run logs it at WARN with up to
// 1 KiB of the offending bytes, synthesizes a "did not complete normally"
// outcome for whatever name was open (if any), and returns nil. A nil
// return does not imply every outcome in the stream was well-formed; it
// only means Run consumed the stream without an unrecoverable error.
func Run(ctx context.Context, r io.Reader, h Handler) error {
	t := &tee{r: r}
	dec := xml.NewDecoder(t)

	var st state
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			// The stream ended without a closing </outcome>/<result>; if
			// one was still open, it never completed normally.
			finishAbnormally(h, &st)
			return nil
		}
		if err != nil {
			logging.Warnf(ctx, "malformed monitor XML, last %d bytes: %q", len(t.last), t.last)
			finishAbnormally(h, &st)
			return nil
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "outcome":
				name := attr(el, "name")
				if st.outcomeOpen {
					// A new outcome started without the previous one
					// finishing: close it out as abnormal first, per
					// "finish must be called before any subsequent start".
					finishAbnormally(h, &st)
				}
				st.outcomeOpen = true
				st.name = name
				st.builder = outcome.NewBuilder(name)
				h.Start(name, attr(el, "runner"))
			case "result":
				if st.outcomeOpen {
					result, perr := outcome.ParseResult(attr(el, "value"))
					if perr != nil {
						result = outcome.ERROR
					}
					o := st.builder.Finish(result, time.Now())
					h.Finish(o)
					st.outcomeOpen = false
					st.builder = nil
				}
			case "unstructured-output":
				st.unstructuredOpen = true
				st.unstructured = nil
			}
		case xml.CharData:
			text := string(el)
			switch {
			case st.outcomeOpen:
				st.builder.AddFragment(text)
				h.Output(st.name, text)
			case st.unstructuredOpen:
				st.unstructured = append(st.unstructured, el...)
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "unstructured-output":
				if st.unstructuredOpen {
					h.Print(string(st.unstructured))
					st.unstructuredOpen = false
					st.unstructured = nil
				}
			case "outcome":
				// An <outcome> element closed without ever emitting
				// <result>: the runner crashed or hung mid-outcome.
				finishAbnormally(h, &st)
			}
		}
	}
}

func finishAbnormally(h Handler, st *state) {
	if !st.outcomeOpen {
		return
	}
	o := st.builder.Finish(outcome.ERROR, time.Now())
	h.Finish(o)
	st.outcomeOpen = false
	st.builder = nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
