package priority

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPriority[K comparable](t *testing.T, r *Resolver[K], k K) int {
	t.Helper()
	p, err := r.PriorityOf(k)
	require.NoError(t, err)
	return p
}

func TestChain(t *testing.T) {
	r := NewResolver[string]()
	r.Category("A")
	r.Category("B").DependsOn("A")
	r.Category("C").DependsOn("B")
	r.Category("D").DependsOn("C")
	require.NoError(t, r.ResolveAll())

	a, b, c, d := mustPriority(t, r, "A"), mustPriority(t, r, "B"), mustPriority(t, r, "C"), mustPriority(t, r, "D")
	assert.Greater(t, a, b)
	assert.Greater(t, b, c)
	assert.Greater(t, c, d)
	assert.Equal(t, map[string]int{"A": 0, "B": -1, "C": -2, "D": -3}, r.Priorities())
}

func TestChainDeclaredInReverse(t *testing.T) {
	r := NewResolver[string]()
	r.Category("D").DependsOn("C")
	r.Category("C").DependsOn("B")
	r.Category("B").DependsOn("A")
	r.Category("A")
	require.NoError(t, r.ResolveAll())

	assert.Greater(t, mustPriority(t, r, "A"), mustPriority(t, r, "B"))
	assert.Greater(t, mustPriority(t, r, "C"), mustPriority(t, r, "D"))
	assert.Equal(t, []string{"D", "C", "B", "A"}, r.Keys())
}

func TestDiamond(t *testing.T) {
	r := NewResolver[string]()
	r.Category("A")
	r.Category("B").DependsOn("A")
	r.Category("C").DependsOn("A")
	r.Category("D").DependsOn("B", "C")
	require.NoError(t, r.ResolveAll())

	a, b, c, d := mustPriority(t, r, "A"), mustPriority(t, r, "B"), mustPriority(t, r, "C"), mustPriority(t, r, "D")
	assert.Greater(t, a, b)
	assert.Greater(t, a, c)
	assert.Greater(t, b, d)
	assert.Greater(t, c, d)
}

func TestStartAndStep(t *testing.T) {
	r := NewResolver[string](WithStart(500), WithStep(50))
	r.Category("A")
	r.Category("B").DependsOn("A")
	r.Category("C").DependsOn("B")
	require.NoError(t, r.ResolveAll())

	assert.Equal(t, 500, mustPriority(t, r, "A"))
	assert.Equal(t, 450, mustPriority(t, r, "B"))
	assert.Equal(t, 400, mustPriority(t, r, "C"))
}

func TestNonPositiveStepIsIgnored(t *testing.T) {
	r := NewResolver[int](WithStep(0), WithStep(-3))
	r.Category(1)
	r.Category(2).DependsOn(1)
	require.NoError(t, r.ResolveAll())
	assert.Equal(t, -1, mustPriority(t, r, 2))
}

func TestPrecedes(t *testing.T) {
	r := NewResolver[string]()
	r.Category("input").Precedes("physics", "render")
	r.Category("render").DependsOn("physics")
	require.NoError(t, r.ResolveAll())

	in, ph, re := mustPriority(t, r, "input"), mustPriority(t, r, "physics"), mustPriority(t, r, "render")
	assert.Greater(t, in, ph)
	assert.Greater(t, ph, re)
	assert.Equal(t, []string{"input", "physics", "render"}, r.Keys())
	assert.Equal(t, []string{"input"}, r.DependenciesOf("physics"))
}

func TestCycle(t *testing.T) {
	r := NewResolver[string]()
	r.Category("A").DependsOn("B")
	r.Category("B").DependsOn("C")
	r.Category("C").DependsOn("A")

	err := r.ResolveAll()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCyclicDependency))

	var cyc *CycleError[string]
	require.True(t, errors.As(err, &cyc))
	assert.Equal(t, []string{"A", "B", "C", "A"}, cyc.Path)
	assert.Equal(t, "cyclic dependency: A -> B -> C -> A", err.Error())

	assert.False(t, r.Resolved())
	assert.Nil(t, r.Priorities())
	_, err = r.PriorityOf("A")
	assert.True(t, errors.Is(err, ErrNotResolved))
}

func TestSelfDependencyIsCycle(t *testing.T) {
	r := NewResolver[string]()
	r.Category("ok")
	r.Category("loop").DependsOn("loop")

	var cyc *CycleError[string]
	require.True(t, errors.As(r.ResolveAll(), &cyc))
	assert.Equal(t, []string{"loop", "loop"}, cyc.Path)
}

func TestUndeclaredDependency(t *testing.T) {
	r := NewResolver[string]()
	r.Category("B").DependsOn("A")
	err := r.ResolveAll()
	assert.True(t, errors.Is(err, ErrUndeclaredCategory))
	assert.False(t, r.Resolved())
}

func TestPriorityOfBeforeResolve(t *testing.T) {
	r := NewResolver[string]()
	r.Category("A")
	_, err := r.PriorityOf("A")
	assert.True(t, errors.Is(err, ErrNotResolved))

	require.NoError(t, r.ResolveAll())
	_, err = r.PriorityOf("nope")
	assert.True(t, errors.Is(err, ErrUnknownCategory))

	// A new declaration invalidates the table.
	r.Category("B")
	_, err = r.PriorityOf("A")
	assert.True(t, errors.Is(err, ErrNotResolved))
}

func TestUnrelatedCategoriesMayShare(t *testing.T) {
	r := NewResolver[string](WithStart(10))
	r.Category("x")
	r.Category("y")
	require.NoError(t, r.ResolveAll())
	assert.Equal(t, 10, mustPriority(t, r, "x"))
	assert.Equal(t, 10, mustPriority(t, r, "y"))
}

func TestParseGraph(t *testing.T) {
	r, err := ParseGraph([]byte(`
start: 500
step: 50
categories:
  - name: input
    precedes: [logic]
  - name: logic
  - name: render
    depends_on: [logic]
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"input": 500, "logic": 450, "render": 400}, r.Priorities())
}

func TestParseGraphErrors(t *testing.T) {
	_, err := ParseGraph([]byte("categories: [{name: a}, {name: a}]"))
	assert.ErrorContains(t, err, "declared twice")

	_, err = ParseGraph([]byte("categories: [{depends_on: [a]}]"))
	assert.ErrorContains(t, err, "missing name")

	_, err = ParseGraph([]byte("categories: [{name: a, depends_on: [b]}, {name: b, depends_on: [a]}]"))
	assert.True(t, errors.Is(err, ErrCyclicDependency))

	_, err = ParseGraph([]byte("categories: {"))
	assert.Error(t, err)
}

func TestLoadGraph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("categories: [{name: only}]\n"), 0o644))

	r, err := LoadGraph(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, r.Keys())

	_, err = LoadGraph(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
