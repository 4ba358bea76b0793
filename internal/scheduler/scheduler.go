// Package scheduler implements the parallel DAG task executor (spec.md
// §4.7): a single-threaded coordinator that owns up to W concurrent
// child-process workers, dispatches tasks by descending critical-path
// length, and propagates failure as a cancellation to transitive
// dependents. Grounded on the teacher's nebula.Scheduler (impact-sorted
// ready queue over a dag.TaskAnalyzer) and tycho.Scheduler (mutex-guarded
// coordinator state, goroutine-per-task workers reporting terminal
// status), generalized from AI-phase execution to project build tasks.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/forgetool/forge/internal/dag"
	"github.com/forgetool/forge/internal/diagnostics"
	"github.com/forgetool/forge/internal/forgeerr"
)

// Status is a task node's terminal or in-flight state.
type Status int

const (
	Ready Status = iota
	Executing
	Success
	SuccessWithWarnings
	Skipped
	Blocked
	Failure
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case Success:
		return "success"
	case SuccessWithWarnings:
		return "success_with_warnings"
	case Skipped:
		return "skipped"
	case Blocked:
		return "blocked"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a status a task does not leave on its own.
func (s Status) Terminal() bool {
	switch s {
	case Success, SuccessWithWarnings, Skipped, Blocked, Failure:
		return true
	default:
		return false
	}
}

// node is one task's scheduling state. deps tracks remaining unresolved
// dependency names; it shrinks as dependencies complete and is the
// gating condition for Ready. incrementalAllowed starts true and is
// cleared the moment any dependency finishes Success or
// SuccessWithWarnings (spec.md §4.7: a dependency's real rebuild
// invalidates every dependent's fingerprint match, but a Skipped
// dependency changed nothing and leaves it untouched).
type node struct {
	name               string
	deps               map[string]bool
	dependents         []string
	status             Status
	errors             []diagnostics.Diagnostic
	cpl                int
	incrementalAllowed bool
}

// TaskFunc runs one task's work. It is invoked on its own goroutine and
// must stream its output to w. incrementalAllowed reflects the runtime
// graph state at dispatch time: false once any dependency of this task
// has completed Success or SuccessWithWarnings during this Execute call.
// The returned Status must be one of Success, SuccessWithWarnings,
// Skipped, or Failure.
type TaskFunc func(ctx context.Context, name string, incrementalAllowed bool, w io.Writer) (Status, []diagnostics.Diagnostic, error)

// Scheduler is a DAG executor with a fixed maximum concurrency.
type Scheduler struct {
	maxConcurrency int
	interleaver    *Interleaver

	mu    sync.Mutex
	nodes map[string]*node
	order []string // registration order, for deterministic iteration
}

// New creates a Scheduler with the given maximum concurrency W. A
// non-positive W means "unbounded" is not supported; callers should
// resolve host CPU count before calling New (spec.md §4.7's "defaults
// to host CPU count" is a CLI-layer concern, not the scheduler's).
func New(maxConcurrency int, out io.Writer) *Scheduler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Scheduler{
		maxConcurrency: maxConcurrency,
		interleaver:    NewInterleaver(out),
		nodes:          make(map[string]*node),
	}
}

// AddTask registers a task node. Duplicate names are errors.
func (s *Scheduler) AddTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[name]; exists {
		return forgeerr.New(forgeerr.Internal, "scheduler: duplicate task %q", name)
	}
	s.nodes[name] = &node{name: name, deps: make(map[string]bool), status: Ready, incrementalAllowed: true}
	s.order = append(s.order, name)
	return nil
}

// AddDependencies wires name's dependencies and maintains inverse edges.
// Every dep must already be a registered task.
func (s *Scheduler) AddDependencies(name string, deps []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[name]
	if !ok {
		return forgeerr.New(forgeerr.Internal, "scheduler: unknown task %q", name)
	}
	for _, dep := range deps {
		d, ok := s.nodes[dep]
		if !ok {
			return forgeerr.New(forgeerr.Internal, "scheduler: task %q depends on unknown task %q", name, dep)
		}
		n.deps[dep] = true
		d.dependents = append(d.dependents, name)
	}
	return nil
}

// buildDAG constructs a dag.DAG mirroring the registered nodes, used to
// detect cycles up front and compute critical-path lengths.
func (s *Scheduler) buildDAG() (*dag.DAG, error) {
	g := dag.New()
	for _, name := range s.order {
		if err := g.AddNode(name, 0); err != nil {
			return nil, err
		}
	}
	for _, name := range s.order {
		n := s.nodes[name]
		for dep := range n.deps {
			if err := g.AddEdge(name, dep); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// Execute runs every registered task to completion via run, obeying the
// dependency graph and the concurrency cap. It returns a *forgeerr.Error
// of kind Diagnostic if any task reported Failure, aggregating the
// failed task names; nil otherwise.
func (s *Scheduler) Execute(ctx context.Context, run TaskFunc) error {
	s.mu.Lock()
	g, err := s.buildDAG()
	if err != nil {
		s.mu.Unlock()
		return forgeerr.Wrap(forgeerr.Configuration, err, "scheduler: dependency graph")
	}
	cpl, err := g.CriticalPathLengths()
	if err != nil {
		s.mu.Unlock()
		return forgeerr.Wrap(forgeerr.Configuration, err, "scheduler: dependency graph contains a cycle")
	}
	for name, n := range s.nodes {
		n.cpl = cpl[name]
	}
	s.mu.Unlock()

	type result struct {
		name string
		st   Status
		errs []diagnostics.Diagnostic
		err  error
	}
	results := make(chan result)
	active := 0
	var failed []string

	for {
		s.mu.Lock()
		queue := s.readyQueueLocked()
		s.mu.Unlock()

		for _, name := range queue {
			if active >= s.maxConcurrency {
				break
			}
			s.mu.Lock()
			n := s.nodes[name]
			if n.status != Ready {
				s.mu.Unlock()
				continue
			}
			n.status = Executing
			incAllowed := n.incrementalAllowed
			s.mu.Unlock()

			active++
			go func(name string, incAllowed bool) {
				w, flush := s.interleaver.taskWriter(name)
				st, errs, runErr := run(ctx, name, incAllowed, w)
				flush()
				results <- result{name: name, st: st, errs: errs, err: runErr}
			}(name, incAllowed)
		}

		if active == 0 {
			break
		}

		r := <-results
		active--

		s.mu.Lock()
		n := s.nodes[r.name]
		n.status = r.st
		n.errors = r.errs
		switch r.st {
		case Success, SuccessWithWarnings:
			for _, dep := range n.dependents {
				delete(s.nodes[dep].deps, r.name)
				s.nodes[dep].incrementalAllowed = false
			}
		case Skipped:
			for _, dep := range n.dependents {
				delete(s.nodes[dep].deps, r.name)
			}
		case Failure:
			failed = append(failed, r.name)
			s.blockDependentsLocked(r.name)
		}
		s.mu.Unlock()
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return forgeerr.New(forgeerr.Diagnostic, "scheduler: %d task(s) failed: %v", len(failed), failed)
	}
	return nil
}

// readyQueueLocked returns node names with empty deps and Ready status,
// sorted by descending critical-path length (furthest-from-finished
// nodes first), with alphabetical tie-breaking. Callers must hold s.mu.
func (s *Scheduler) readyQueueLocked() []string {
	var queue []string
	for _, name := range s.order {
		n := s.nodes[name]
		if n.status == Ready && len(n.deps) == 0 {
			queue = append(queue, name)
		}
	}
	sort.Slice(queue, func(i, j int) bool {
		ni, nj := s.nodes[queue[i]], s.nodes[queue[j]]
		if ni.cpl != nj.cpl {
			return ni.cpl > nj.cpl
		}
		return queue[i] < queue[j]
	})
	return queue
}

// blockDependentsLocked recursively marks every transitive dependent of
// name as Blocked. Callers must hold s.mu.
func (s *Scheduler) blockDependentsLocked(name string) {
	n := s.nodes[name]
	for _, dep := range n.dependents {
		d := s.nodes[dep]
		if d.status == Blocked {
			continue
		}
		d.status = Blocked
		s.blockDependentsLocked(dep)
	}
}

// Status returns the current status of a registered task.
func (s *Scheduler) Status(name string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[name]
	if !ok {
		return 0, fmt.Errorf("scheduler: unknown task %q", name)
	}
	return n.status, nil
}

// Errors returns the diagnostics collected for a registered task.
func (s *Scheduler) Errors(name string) []diagnostics.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[name]
	if !ok {
		return nil
	}
	return n.errors
}
