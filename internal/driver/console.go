package driver

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"go.crosstest.dev/harness/internal/expectation"
)

// Console renders per-outcome results and the final run summary. The
// Driver depends only on this interface; ColorConsole is one concrete,
// swappable implementation constructed in cmd/harness.
type Console interface {
	Result(ao expectation.AnnotatedOutcome)
	Summary(s Summary)
}

// ColorConsole renders results with ANSI coloring via fatih/color when
// the destination is a terminal, falling back to plain text otherwise
// (checked once at construction with golang.org/x/term.IsTerminal).
type ColorConsole struct {
	w       io.Writer
	mu      sync.Mutex
	colored bool
}

// NewColorConsole constructs a ColorConsole writing to w. If w is an
// *os.File connected to a terminal, output is colored.
func NewColorConsole(w io.Writer) *ColorConsole {
	colored := false
	if f, ok := w.(*os.File); ok {
		colored = term.IsTerminal(int(f.Fd()))
	}
	return &ColorConsole{w: w, colored: colored}
}

func (c *ColorConsole) paint(attr color.Attribute, s string) string {
	if !c.colored {
		return s
	}
	return color.New(attr).Sprint(s)
}

func (c *ColorConsole) Result(ao expectation.AnnotatedOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := ao.Result().String()
	attr := color.FgGreen
	switch {
	case ao.Noteworthy:
		attr = color.FgRed
	case ao.ChangedSinceTag:
		attr = color.FgYellow
	}
	fmt.Fprintf(c.w, "%s %s\n", c.paint(attr, label), ao.Name())
}

func (c *ColorConsole) Summary(s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintf(c.w, "%s\n", c.paint(color.FgCyan, "=== summary ==="))
	for _, name := range s.Names() {
		ao := s.ByName[name]
		fmt.Fprintf(c.w, "  %-12s %s\n", ao.Result().String(), name)
	}
	fmt.Fprintf(c.w, "%d succeeded, %d failed, %d unsupported\n",
		s.Succeeded, s.Failed, s.Unsupported)
}
