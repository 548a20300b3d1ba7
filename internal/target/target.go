// Package target provides a uniform filesystem and process interface over
// three execution environments: a local process, a remote shell reached
// over SSH, and an Android device reached over ADB.
package target

import (
	"context"
	"io"
	"sync"
	"time"

	"go.crosstest.dev/harness/errors"
)

// ErrNotExist is returned by ListDir when the directory does not exist, so
// callers can distinguish "not found" from "found, empty".
var ErrNotExist = errors.New("target: no such file or directory")

// Process is a running remote or local command.
type Process interface {
	// Stdout returns the process's standard output stream.
	Stdout() io.Reader
	// Wait blocks until the process exits and returns its error, if any.
	Wait() error
	// Kill terminates the process. It is safe to call after the process
	// has already exited.
	Kill() error
}

// Target is the uniform interface consumed by the Execution Mode and
// Fingerprint Cache layers. Filesystem paths are always target-relative
// (the implementation resolves them against its own notion of "remote").
type Target interface {
	// PrepareProcess shapes the caller's argv prefixArgs for this target
	// and returns the full argv to pass to StartProcess, not just a
	// prefix: prefixArgs unchanged locally, and ["sh", "-c", line] on SSH
	// and device targets, where line is the shell-quoted argv preceded by
	// "cd workDir && " when workDir is set.
	PrepareProcess(prefixArgs []string, workDir string) []string

	// StartProcess launches args (already shaped by PrepareProcess) with
	// the given working directory and returns a handle to it.
	StartProcess(ctx context.Context, args []string, workDir string) (Process, error)

	// RunCommand runs args to completion and returns combined stdout.
	RunCommand(ctx context.Context, args []string, workDir string) ([]byte, error)

	PushFile(ctx context.Context, local, remote string) error
	PullFile(ctx context.Context, remote, local string) error
	ListDir(ctx context.Context, dir string) ([]string, error)
	MakeDirs(ctx context.Context, dir string) error
	Remove(ctx context.Context, path string) error
	Move(ctx context.Context, src, dst string) error
	Copy(ctx context.Context, src, dst string) error

	// AwaitReady polls probePath (e.g. "/sdcard") until it is reachable
	// or timeout elapses.
	AwaitReady(ctx context.Context, probePath string, timeout time.Duration) error

	// ForwardPort arranges for port to be reachable from the host at
	// localhost:port. A no-op for Local.
	ForwardPort(ctx context.Context, port int) error

	// Close releases any held connection.
	Close() error
}

// mkdirCache is the process-global set of directories already known to
// exist on a device target, the only mutable package-level state in this
// module, guarded by its own mutex as spec'd.
type mkdirCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMkdirCache() *mkdirCache {
	return &mkdirCache{seen: map[string]bool{}}
}

func (c *mkdirCache) has(dir string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[dir]
}

func (c *mkdirCache) mark(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[dir] = true
}

// deviceMkdirCache is the single process-wide cache shared by all Device
// targets in this process, as spec'd: "a process-wide set of already
// created directories ... initialised empty at startup."
var deviceMkdirCache = newMkdirCache()
