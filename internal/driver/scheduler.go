package driver

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"go.crosstest.dev/harness/internal/action"
	"go.crosstest.dev/harness/logging"
)

// inputExhaustionTimeout is how long a runner will wait for the builder
// pool to hand it a newly installed action before concluding the
// builders are wedged.
const inputExhaustionTimeout = 5 * time.Minute

const handoffCapacity = 4

// BuildFunc compiles and installs a. skip reports whether a has already
// reached a terminal outcome (UNSUPPORTED, COMPILE_FAILED, or an
// expectation-driven short-circuit) and so should not be hand off to a
// runner at all. err is non-nil only for an infrastructure failure that
// should abort the whole run.
type BuildFunc func(ctx context.Context, a *action.Action) (skip bool, err error)

// RunFunc runs (and cleans up after) a on a runner goroutine.
// threadID is the runner goroutine's index in [0, runner pool size),
// used for monitor port assignment.
type RunFunc func(ctx context.Context, a *action.Action, threadID int) error

// Scheduler owns the builder and runner worker pools and the bounded
// handoff queue between them.
type Scheduler struct {
	// BuilderLimit bounds the build pool. Zero means runtime.NumCPU().
	BuilderLimit int
	// RunnerLimit bounds the run pool. Zero means runtime.NumCPU(); pass
	// 1 for streaming console mode, where output must be linear.
	RunnerLimit int

	exhausted atomic.Bool
}

func (s *Scheduler) builderLimit() int {
	if s.BuilderLimit > 0 {
		return s.BuilderLimit
	}
	return runtime.NumCPU()
}

func (s *Scheduler) runnerLimit() int {
	if s.RunnerLimit > 0 {
		return s.RunnerLimit
	}
	return runtime.NumCPU()
}

// InputExhausted reports whether a runner gave up waiting for work
// during the most recent Run, diagnosing a wedged builder pool.
func (s *Scheduler) InputExhausted() bool {
	return s.exhausted.Load()
}

// Run drives actions through build then run, respecting the builder and
// runner pool limits and the bounded handoff queue between them. It
// returns the first infrastructure error encountered by either stage, if
// any; per-action test failures are never surfaced here.
func (s *Scheduler) Run(ctx context.Context, actions []*action.Action, build BuildFunc, run RunFunc) error {
	handoff := make(chan *action.Action, handoffCapacity)

	builders, bctx := errgroup.WithContext(ctx)
	builders.SetLimit(s.builderLimit())
	for _, a := range actions {
		a := a
		builders.Go(func() error {
			skip, err := build(bctx, a)
			if err != nil {
				return err
			}
			if skip {
				return nil
			}
			select {
			case handoff <- a:
			case <-bctx.Done():
				return bctx.Err()
			}
			return nil
		})
	}

	buildErrCh := make(chan error, 1)
	go func() {
		buildErrCh <- builders.Wait()
		close(handoff)
	}()

	runners, rctx := errgroup.WithContext(ctx)
	runnerCount := s.runnerLimit()
	runners.SetLimit(runnerCount)
	for i := 0; i < runnerCount; i++ {
		threadID := i
		runners.Go(func() error {
			for {
				select {
				case a, ok := <-handoff:
					if !ok {
						return nil
					}
					if err := run(rctx, a, threadID); err != nil {
						return err
					}
				case <-time.After(inputExhaustionTimeout):
					s.exhausted.Store(true)
					logging.Warnf(ctx, "runner %d: no work for %v, assuming builders are wedged", threadID, inputExhaustionTimeout)
					return nil
				case <-rctx.Done():
					return rctx.Err()
				}
			}
		})
	}

	runErr := runners.Wait()
	buildErr := <-buildErrCh
	if runErr != nil {
		return runErr
	}
	return buildErr
}
