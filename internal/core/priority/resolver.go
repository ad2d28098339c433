package priority

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUndeclaredCategory = errors.New("undeclared category")
	ErrCyclicDependency   = errors.New("cyclic dependency")
	ErrNotResolved        = errors.New("priorities not resolved")
	ErrUnknownCategory    = errors.New("unknown category")
)

// CycleError reports one dependency cycle. Path starts and ends with the same
// category, e.g. [A B C A] for A depends on B depends on C depends on A.
type CycleError[K comparable] struct {
	Path []K
}

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = fmt.Sprint(k)
	}
	return "cyclic dependency: " + strings.Join(parts, " -> ")
}

func (e *CycleError[K]) Is(target error) bool { return target == ErrCyclicDependency }

type settings struct {
	start int
	step  int
}

type Option func(*settings)

// WithStart sets the priority given to categories without dependencies.
func WithStart(p int) Option {
	return func(s *settings) { s.start = p }
}

// WithStep sets the priority gap per dependency level. Non-positive values
// are ignored.
func WithStep(step int) Option {
	return func(s *settings) {
		if step > 0 {
			s.step = step
		}
	}
}

// Resolver turns "runs after" declarations between categories into execution
// priorities: priority(k) = start - depth(k)*step, where depth is 0 for a
// category with no dependencies and 1 + the deepest dependency otherwise.
// A dependency therefore always gets a strictly higher priority than its
// dependents, and runs first.
type Resolver[K comparable] struct {
	settings
	order    []K
	declared map[K]bool
	deps     map[K][]K // dependent -> dependencies
	resolved map[K]int // nil until ResolveAll succeeds
}

func NewResolver[K comparable](opts ...Option) *Resolver[K] {
	r := &Resolver[K]{
		settings: settings{start: 0, step: 1},
		declared: make(map[K]bool),
		deps:     make(map[K][]K),
	}
	for _, opt := range opts {
		opt(&r.settings)
	}
	return r
}

// Declaration is the handle returned by Category.
type Declaration[K comparable] struct {
	r   *Resolver[K]
	key K
}

// Category declares k (idempotently) and returns a handle for its edges.
func (r *Resolver[K]) Category(k K) *Declaration[K] {
	r.declare(k)
	return &Declaration[K]{r: r, key: k}
}

func (r *Resolver[K]) declare(k K) {
	if !r.declared[k] {
		r.declared[k] = true
		r.order = append(r.order, k)
		r.resolved = nil
	}
}

func (r *Resolver[K]) addEdge(dependent, dependency K) {
	for _, d := range r.deps[dependent] {
		if d == dependency {
			return
		}
	}
	r.deps[dependent] = append(r.deps[dependent], dependency)
	r.resolved = nil
}

// DependsOn makes d's category run after each of others. Targets must be
// declared by the time ResolveAll runs.
func (d *Declaration[K]) DependsOn(others ...K) *Declaration[K] {
	for _, o := range others {
		d.r.addEdge(d.key, o)
	}
	return d
}

// Precedes makes d's category run before each of others, declaring them.
func (d *Declaration[K]) Precedes(others ...K) *Declaration[K] {
	for _, o := range others {
		d.r.declare(o)
		d.r.addEdge(o, d.key)
	}
	return d
}

// ResolveAll validates the graph and assigns every priority. On error nothing
// is assigned.
func (r *Resolver[K]) ResolveAll() error {
	r.resolved = nil

	for _, k := range r.order {
		for _, d := range r.deps[k] {
			if !r.declared[d] {
				return fmt.Errorf("category %v depends on %v: %w", k, d, ErrUndeclaredCategory)
			}
		}
	}

	if cyc := r.findCycle(); cyc != nil {
		return cyc
	}

	depth := make(map[K]int, len(r.order))
	var depthOf func(K) int
	depthOf = func(k K) int {
		if v, ok := depth[k]; ok {
			return v
		}
		v := 0
		for _, d := range r.deps[k] {
			v = max(v, depthOf(d)+1)
		}
		depth[k] = v
		return v
	}

	resolved := make(map[K]int, len(r.order))
	for _, k := range r.order {
		resolved[k] = r.start - depthOf(k)*r.step
	}
	r.resolved = resolved
	return nil
}

// findCycle runs Tarjan's SCC algorithm over declaration order and returns the
// first component that forms a cycle.
func (r *Resolver[K]) findCycle() *CycleError[K] {
	var (
		index   = 0
		stack   []K
		indices = make(map[K]int)
		lowlink = make(map[K]int)
		onStack = make(map[K]bool)
		sccs    [][]K
	)

	var strongConnect func(K)
	strongConnect = func(v K) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range r.deps[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []K
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, k := range r.order {
		if _, visited := indices[k]; !visited {
			strongConnect(k)
		}
	}

	for _, scc := range sccs {
		if len(scc) > 1 || r.hasSelfLoop(scc[0]) {
			return &CycleError[K]{Path: r.cyclePath(scc)}
		}
	}
	return nil
}

func (r *Resolver[K]) hasSelfLoop(k K) bool {
	for _, d := range r.deps[k] {
		if d == k {
			return true
		}
	}
	return false
}

// cyclePath walks dependency edges inside scc from its earliest-declared
// member back to itself.
func (r *Resolver[K]) cyclePath(scc []K) []K {
	member := make(map[K]bool, len(scc))
	for _, k := range scc {
		member[k] = true
	}
	var start K
	for _, k := range r.order {
		if member[k] {
			start = k
			break
		}
	}

	visited := make(map[K]bool, len(scc))
	var path []K
	var walk func(K) bool
	walk = func(v K) bool {
		path = append(path, v)
		visited[v] = true
		for _, w := range r.deps[v] {
			if w == start {
				path = append(path, start)
				return true
			}
			if member[w] && !visited[w] && walk(w) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}
	walk(start)
	return path
}

// PriorityOf returns k's resolved priority.
func (r *Resolver[K]) PriorityOf(k K) (int, error) {
	if r.resolved == nil {
		return 0, ErrNotResolved
	}
	p, ok := r.resolved[k]
	if !ok {
		return 0, fmt.Errorf("%v: %w", k, ErrUnknownCategory)
	}
	return p, nil
}

// Resolved reports whether priorities are current.
func (r *Resolver[K]) Resolved() bool { return r.resolved != nil }

// Priorities returns a copy of the resolved table, or nil before resolving.
func (r *Resolver[K]) Priorities() map[K]int {
	if r.resolved == nil {
		return nil
	}
	out := make(map[K]int, len(r.resolved))
	for k, v := range r.resolved {
		out[k] = v
	}
	return out
}

// Keys returns the declared categories in declaration order.
func (r *Resolver[K]) Keys() []K {
	return append([]K(nil), r.order...)
}

// DependenciesOf returns the direct dependencies declared for k.
func (r *Resolver[K]) DependenciesOf(k K) []K {
	return append([]K(nil), r.deps[k]...)
}
