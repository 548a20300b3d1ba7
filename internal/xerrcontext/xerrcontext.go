// Package xerrcontext provides a context.Context variant whose Err() can
// carry an arbitrary cause rather than only context.Canceled or
// context.DeadlineExceeded. The task graph driver uses this to distinguish
// "killed by the per-action timeout watcher" from "killed because input was
// prematurely exhausted" from ordinary cancellation, all of which otherwise
// collapse to context.DeadlineExceeded / context.Canceled.
package xerrcontext

import (
	"context"
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
)

// clk is replaced in unit tests to use a fake clock.
var clk = clock.NewClock()

// CancelFunc cancels an associated context with the given error. Calling it
// on an already-canceled context has no effect. It panics if err is nil.
// Upon return, the associated context is guaranteed to be canceled (its Done
// channel is closed and Err returns non-nil).
type CancelFunc func(err error)

type contextImpl struct {
	parent      context.Context
	hasDeadline bool
	deadline    time.Time
	done        chan struct{}
	req         chan error
	errValue    atomic.Value
}

func newContext(parent context.Context, deadlineErr error, reqDeadline time.Time) (context.Context, CancelFunc) {
	newDeadline := false
	deadline, hasDeadline := parent.Deadline()
	if deadlineErr != nil && (!hasDeadline || reqDeadline.Before(deadline)) {
		deadline = reqDeadline
		hasDeadline = true
		newDeadline = true
	}

	ctx := &contextImpl{
		parent:      parent,
		hasDeadline: hasDeadline,
		deadline:    deadline,
		done:        make(chan struct{}),
		req:         make(chan error, 1),
	}

	if err := func() error {
		if err := parent.Err(); err != nil {
			return err
		}
		if newDeadline && !deadline.After(clk.Now()) {
			return deadlineErr
		}
		return nil
	}(); err != nil {
		ctx.errValue.Store(err)
		close(ctx.done)
		return ctx, ctx.cancel
	}

	go func() {
		err := func() error {
			var dl <-chan time.Time
			if newDeadline {
				tm := clk.NewTimer(deadline.Sub(clk.Now()))
				defer tm.Stop()
				dl = tm.C()
			}
			select {
			case <-parent.Done():
				return parent.Err()
			case <-dl:
				return deadlineErr
			case err := <-ctx.req:
				return err
			}
		}()
		ctx.errValue.Store(err)
		close(ctx.done)
	}()

	return ctx, ctx.cancel
}

func (c *contextImpl) Deadline() (deadline time.Time, ok bool) {
	return c.deadline, c.hasDeadline
}

func (c *contextImpl) Done() <-chan struct{} {
	return c.done
}

// Err returns a non-nil error once the context has been canceled. Unlike
// context.Context, the returned error need not be context.Canceled or
// context.DeadlineExceeded.
func (c *contextImpl) Err() error {
	if val := c.errValue.Load(); val != nil {
		return val.(error)
	}
	return nil
}

func (c *contextImpl) Value(key interface{}) interface{} {
	return c.parent.Value(key)
}

func (c *contextImpl) cancel(err error) {
	if err == nil {
		panic("xerrcontext: cancel called with nil")
	}
	select {
	case c.req <- err:
	default:
	}
	<-c.done
}

// WithCancel returns a context that can be canceled with an arbitrary error.
func WithCancel(parent context.Context) (context.Context, CancelFunc) {
	return newContext(parent, nil, time.Time{})
}

// WithDeadline returns a context canceled with err when t is reached. It
// panics if err is nil.
func WithDeadline(parent context.Context, t time.Time, err error) (context.Context, CancelFunc) {
	if err == nil {
		panic("xerrcontext: WithDeadline called with nil err")
	}
	return newContext(parent, err, t)
}

// WithTimeout returns a context canceled with err after d elapses. It panics
// if err is nil.
func WithTimeout(parent context.Context, d time.Duration, err error) (context.Context, CancelFunc) {
	if err == nil {
		panic("xerrcontext: WithTimeout called with nil err")
	}
	return WithDeadline(parent, clk.Now().Add(d), err)
}
