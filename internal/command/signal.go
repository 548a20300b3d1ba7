// Package command holds small process-level helpers shared by cmd/harness
// binaries.
package command

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"golang.org/x/sys/unix"
)

var selfName = filepath.Base(os.Args[0])

// InstallSignalHandler installs a handler that runs callback once on the
// first SIGINT or SIGTERM, then exits the process — used so a harness run
// interrupted mid-action can still restore terminal state before dying.
func InstallSignalHandler(out io.Writer, callback func(sig os.Signal)) {
	ch := make(chan os.Signal, 1)
	go func() {
		sig := <-ch
		fmt.Fprintf(out, "\n%s: caught %v signal; exiting\n", selfName, sig)
		callback(sig)
		os.Exit(1)
	}()
	signal.Notify(ch, unix.SIGINT, unix.SIGTERM)
}
