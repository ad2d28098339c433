package scripting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/codec"
	"github.com/hobgoblin/qao/internal/core/qao"
)

func newBoundEngine(t *testing.T) (*Engine, *qao.Runtime) {
	t.Helper()
	e, err := NewEngine("testdata/scripts", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	rt := qao.NewRuntime()
	e.Bind(rt)
	return e, rt
}

func frame(t *testing.T, rt *qao.Runtime) {
	t.Helper()
	require.NoError(t, rt.StartStep())
	_, err := rt.AdvanceStep(qao.AllEvents)
	require.NoError(t, err)
}

func traceLines(e *Engine) []string {
	var out []string
	for _, em := range e.Trace() {
		out = append(out, em.String())
	}
	return out
}

func TestLoadsClassesFromDir(t *testing.T) {
	e, _ := newBoundEngine(t)
	assert.Equal(t, []string{"broken", "counter", "mortal", "spawner"}, e.Classes())
}

func TestMissingDirIsEmpty(t *testing.T) {
	e, err := NewEngine("testdata/nope", zap.NewNop())
	require.NoError(t, err)
	defer e.Close()
	assert.Empty(t, e.Classes())
}

func TestCounterHook(t *testing.T) {
	e, rt := newBoundEngine(t)
	c, err := e.Spawn("counter", "c", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, "counter", c.Class())
	assert.Equal(t, c.ID().String(), c.Get("id"))
	assert.Equal(t, "c", c.Get("name"))

	frame(t, rt)
	frame(t, rt)

	assert.Equal(t, []string{
		"1 Update1 c ticks=1",
		"2 Update1 c ticks=2",
	}, traceLines(e))
	assert.Equal(t, 2.0, c.Get("ticks"))
	assert.Empty(t, e.Errors())
}

func TestHookErrorDoesNotStopDispatch(t *testing.T) {
	e, rt := newBoundEngine(t)
	_, err := e.Spawn("broken", "b", 10, nil)
	require.NoError(t, err)
	c, err := e.Spawn("counter", "c", 0, nil)
	require.NoError(t, err)

	frame(t, rt)

	errs := e.Errors()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken on purpose")
	assert.Equal(t, 1.0, c.Get("ticks"))
}

func TestRuntimeModuleFromScripts(t *testing.T) {
	e, rt := newBoundEngine(t)
	_, err := e.Spawn("spawner", "s", 10, nil)
	require.NoError(t, err)

	frame(t, rt)
	frame(t, rt)

	// The child lands at the end of the pass that spawned it, so it first
	// updates in the next frame.
	assert.Equal(t, []string{
		"1 Update1 s count=2",
		"1 PostUpdate s moved=true",
		"2 Update1 s.child ticks=101",
		"2 PostUpdate s moved=true",
	}, traceLines(e))

	child := rt.FindByName("s.child")
	require.NotNil(t, child)
	assert.Equal(t, -5, child.ObjectBase().ExecutionPriority())
	assert.Equal(t, 2, rt.ObjectCount())
}

func TestSelfDestroyRunsDestroyHook(t *testing.T) {
	e, rt := newBoundEngine(t)
	m, err := e.Spawn("mortal", "m", 0, map[string]any{"ttl": 2})
	require.NoError(t, err)
	_, err = e.Spawn("counter", "c", -1, nil)
	require.NoError(t, err)

	frame(t, rt)
	assert.Equal(t, 2, rt.ObjectCount())
	frame(t, rt)

	assert.Equal(t, 1, rt.ObjectCount())
	assert.Nil(t, m.Runtime())
	assert.Contains(t, traceLines(e), "2 Update2 m destroyed=Update2")
	assert.Empty(t, e.Errors())
}

func TestSpawnErrors(t *testing.T) {
	e, err := NewEngine("testdata/scripts", zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Spawn("counter", "c", 0, nil)
	assert.True(t, errors.Is(err, ErrNotBound))

	e.Bind(qao.NewRuntime())
	_, err = e.Spawn("nope", "n", 0, nil)
	assert.True(t, errors.Is(err, ErrUnknownClass))

	_, err = e.Spawn("counter", "c", 0, map[string]any{"bad": []int{1}})
	assert.ErrorContains(t, err, "unsupported value type")
}

func TestDefineClass(t *testing.T) {
	e, err := NewEngine("", zap.NewNop())
	require.NoError(t, err)
	defer e.Close()

	assert.ErrorContains(t, e.DefineClass("num", "return 42"), "want table")
	assert.Error(t, e.DefineClass("syntax", "return {"))

	require.NoError(t, e.DefineClass("inline", `return { update1 = function(self) self.hit = true end }`))
	rt := qao.NewRuntime()
	e.Bind(rt)
	obj, err := e.Spawn("inline", "i", 0, nil)
	require.NoError(t, err)
	frame(t, rt)
	assert.Equal(t, true, obj.Get("hit"))
}

func TestScriptObjectPersistence(t *testing.T) {
	e, rt := newBoundEngine(t)
	a, err := e.Spawn("counter", "a", 3, map[string]any{"ticks": 5, "label": "x", "flag": true})
	require.NoError(t, err)
	frame(t, rt)
	id := a.ID()

	w := codec.NewWriter()
	require.NoError(t, qao.Save(rt, w))
	require.NoError(t, rt.Close())

	types := qao.NewTypeRegistry()
	RegisterTypes(types)

	e2, err := NewEngine("testdata/scripts", zap.NewNop())
	require.NoError(t, err)
	defer e2.Close()
	rt2 := qao.NewRuntime()
	require.NoError(t, qao.Load(rt2, codec.NewReader(w.Bytes()), types, e2))
	assert.Same(t, rt2, e2.Runtime())

	got, ok := qao.FindAs[*ScriptObject](rt2, id)
	require.True(t, ok)
	assert.Equal(t, "counter", got.Class())
	assert.Equal(t, "a", got.Name())
	assert.Equal(t, 3, got.ExecutionPriority())
	assert.Equal(t, 6.0, got.Get("ticks"))
	assert.Equal(t, "x", got.Get("label"))
	assert.Equal(t, true, got.Get("flag"))
	assert.Equal(t, id.String(), got.Get("id"))

	frame(t, rt2)
	assert.Equal(t, 7.0, got.Get("ticks"))
}

func TestScriptObjectPersistsBinaryStrings(t *testing.T) {
	e, rt := newBoundEngine(t)
	a, err := e.Spawn("counter", "a", 0, map[string]any{"label": "a\x00b", "k\x00ey": "v"})
	require.NoError(t, err)
	id := a.ID()

	w := codec.NewWriter()
	require.NoError(t, qao.Save(rt, w))
	require.NoError(t, rt.Close())

	types := qao.NewTypeRegistry()
	RegisterTypes(types)
	e2, err := NewEngine("testdata/scripts", zap.NewNop())
	require.NoError(t, err)
	defer e2.Close()
	rt2 := qao.NewRuntime()
	require.NoError(t, qao.Load(rt2, codec.NewReader(w.Bytes()), types, e2))

	got, ok := qao.FindAs[*ScriptObject](rt2, id)
	require.True(t, ok)
	assert.Equal(t, "a\x00b", got.Get("label"))
	assert.Equal(t, "v", got.Get("k\x00ey"))
	assert.Nil(t, got.Get("key"))
}

func TestRestoreNeedsEngineContext(t *testing.T) {
	e, rt := newBoundEngine(t)
	_, err := e.Spawn("counter", "a", 0, nil)
	require.NoError(t, err)
	w := codec.NewWriter()
	require.NoError(t, qao.Save(rt, w))

	types := qao.NewTypeRegistry()
	RegisterTypes(types)
	err = qao.Load(qao.NewRuntime(), codec.NewReader(w.Bytes()), types, "not an engine")
	assert.ErrorContains(t, err, "want *scripting.Engine")
}
