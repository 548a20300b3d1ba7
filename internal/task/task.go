// Package task provides the dependency-graph primitive the driver
// schedules: a task's dependency on another is expressed purely as a
// predicate closure over a shared result map, not as an explicit edge
// list.
package task

import (
	"sync"

	"go.crosstest.dev/harness/errors"
)

// Result is what a completed Task produced: an arbitrary value (an
// *action.Action for build/install, an outcome.Outcome for run, nil for
// prepare/cleanup/shutdown) paired with an error, if the task failed
// outright rather than producing a failure Outcome of its own.
type Result struct {
	Value interface{}
	Err   error
}

// Task is one scheduled unit of work. A Task's dependencies are not
// stored as edges: Ready consults the Graph's shared result map via a
// closure supplied at construction, matching the "dependency is
// expressed solely by predicate" data model.
type Task struct {
	// Name identifies the task for logging and summary rendering (e.g.
	// "build:pkg.Test", "prepare", "shutdown").
	Name string

	// Run performs the task's work. It receives the Graph so it can read
	// its dependencies' results.
	Run func(g *Graph) (interface{}, error)

	// ready reports whether every dependency this task needs has
	// completed (successfully or not — a failed prerequisite still
	// counts as "ready", since deciding whether to still proceed is the
	// Driver's call during Run, not the scheduler's).
	ready func(g *Graph) bool

	mu       sync.Mutex
	done     bool
	result   Result
	complete bool
}

// New creates a Task. ready, if nil, is treated as always-ready (used by
// the graph's entry tasks, e.g. "prepare").
func New(name string, ready func(g *Graph) bool, run func(g *Graph) (interface{}, error)) *Task {
	if ready == nil {
		ready = func(*Graph) bool { return true }
	}
	return &Task{Name: name, Run: run, ready: ready}
}

// Ready reports whether t's dependencies, as seen through g, have all
// completed.
func (t *Task) Ready(g *Graph) bool {
	return t.ready(g)
}

// Complete records t's result exactly once. A second call is a
// programming error — the scheduler guarantees each task runs to
// completion on exactly one worker — so it panics rather than silently
// racing.
func (t *Task) Complete(r Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.complete {
		panic(errors.Errorf("task %s: Complete called twice", t.Name))
	}
	t.result = r
	t.complete = true
	t.done = true
}

// Result returns t's result and whether it has completed yet.
func (t *Task) Result() (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.done
}

// Done reports whether t has completed.
func (t *Task) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Graph holds every Task in one run plus the shared result map their
// Ready predicates consult, all protected by one RWMutex ("readers use
// happens-before established by the
// scheduler").
type Graph struct {
	mu      sync.RWMutex
	tasks   []*Task
	results map[*Task]Result
	done    map[*Task]bool
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		results: map[*Task]Result{},
		done:    map[*Task]bool{},
	}
}

// Add registers t with the graph. It must be called before the graph is
// scheduled; Add itself is not safe for concurrent use with Tasks/
// Record/Result.
func (g *Graph) Add(t *Task) {
	g.tasks = append(g.tasks, t)
}

// Tasks returns every task registered with the graph, in registration
// order.
func (g *Graph) Tasks() []*Task {
	out := make([]*Task, len(g.tasks))
	copy(out, g.tasks)
	return out
}

// Record marks t complete, then publishes t's result into the graph's
// shared map so other tasks' Ready predicates can observe it.
func (g *Graph) Record(t *Task, r Result) {
	t.Complete(r)
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[t] = r
	g.done[t] = true
}

// Result returns t's recorded result and whether it has been recorded,
// as observed through the graph's shared map (used by Ready predicates,
// which must not reach into another Task's private fields directly).
func (g *Graph) Result(t *Task) (Result, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.results[t]
	return r, ok
}

// IsDone reports whether t has been recorded as complete.
func (g *Graph) IsDone(t *Task) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.done[t]
}

// AllDone reports whether every task in ts has been recorded as
// complete, a common building block for a Ready predicate that depends
// on several prerequisites at once.
func AllDone(g *Graph, ts ...*Task) bool {
	for _, t := range ts {
		if !g.IsDone(t) {
			return false
		}
	}
	return true
}
