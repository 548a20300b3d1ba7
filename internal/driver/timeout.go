package driver

import (
	"context"
	"sync"
	"time"

	"go.crosstest.dev/harness/errors"
	"go.crosstest.dev/harness/internal/xerrcontext"
)

// LargeMultiplier scales the small timeout for actions whose expectation
// carries the "large" tag.
const LargeMultiplier = 10

// ErrExecTimeout is the cause an action's context is canceled with when
// its kill timer fires.
var ErrExecTimeout = errors.New("action exceeded its execution timeout")

// GraceMultiplier is the extra time, as a multiple of the action's own
// timeout, given to the target process to flush an in-process stack trace
// to the wire before it is actually killed: the target gets 2x its
// timeout as a grace period before the process is killed.
const GraceMultiplier = 2

// timeoutWatcher implements a single scheduled task that fires at
// killTime; if killTime has been pushed back ... the task re-schedules
// itself": a start event from the target pushes killTime forward via
// Extend, and the timer re-arms itself for the new remaining duration
// instead of firing early. The first time killTime is reached it enters a
// grace period instead of canceling immediately, giving the process extra
// time to flush output before the hard kill.
type timeoutWatcher struct {
	cancel   xerrcontext.CancelFunc
	timer    *time.Timer
	disabled bool
	grace    time.Duration

	mu       sync.Mutex
	killTime time.Time
	inGrace  bool
}

// withTimeout returns a context canceled with ErrExecTimeout once d (or
// d*LargeMultiplier, if large) elapses without an intervening Extend and
// a further grace period of GraceMultiplier times that duration has then
// passed; the cancellation is the signal to destroy the process. A
// non-positive d disables the timeout
// entirely, for the debug-port and benchmark carve-outs.
func withTimeout(parent context.Context, d time.Duration, large bool) (context.Context, *timeoutWatcher) {
	if d <= 0 {
		ctx, cancel := xerrcontext.WithCancel(parent)
		return ctx, &timeoutWatcher{cancel: cancel, disabled: true}
	}
	if large {
		d *= LargeMultiplier
	}
	ctx, cancel := xerrcontext.WithCancel(parent)
	w := &timeoutWatcher{cancel: cancel, killTime: time.Now().Add(d), grace: d * GraceMultiplier}
	w.timer = time.AfterFunc(d, w.fire)
	return ctx, w
}

func (w *timeoutWatcher) fire() {
	w.mu.Lock()
	remaining := time.Until(w.killTime)
	if remaining > 0 {
		w.mu.Unlock()
		w.timer.Reset(remaining)
		return
	}
	if !w.inGrace && w.grace > 0 {
		w.inGrace = true
		w.killTime = time.Now().Add(w.grace)
		w.mu.Unlock()
		w.timer.Reset(w.grace)
		return
	}
	w.mu.Unlock()
	w.cancel(ErrExecTimeout)
}

// Extend pushes killTime forward by d from now, called when the target
// reports a "start" event for the action's next outcome. A no-op on a
// disabled watcher. Also clears any in-progress grace period, since a new
// start event means the target is making progress again.
func (w *timeoutWatcher) Extend(d time.Duration) {
	if w.disabled {
		return
	}
	w.mu.Lock()
	w.killTime = time.Now().Add(d)
	w.inGrace = false
	w.mu.Unlock()
}

// Stop releases the underlying timer. Safe to call after the context has
// already been canceled some other way, and on a disabled watcher.
func (w *timeoutWatcher) Stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}
