package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/core/qao"
)

var (
	ErrUnknownClass = errors.New("unknown script class")
	ErrNotBound     = errors.New("engine is not bound to a runtime")
)

// Emission is one value recorded by rt.emit.
type Emission struct {
	Iteration int64
	Event     qao.EventKind
	Object    string
	Tag       string
	Value     string
}

func (e Emission) String() string {
	return fmt.Sprintf("%d %s %s %s=%s", e.Iteration, e.Event, e.Object, e.Tag, e.Value)
}

// Engine wraps a single gopher-lua VM hosting script classes. Each script
// file returns a table of hook functions; the file stem names the class.
// Single-goroutine access only (the goroutine driving the runtime).
type Engine struct {
	vm      *lua.LState
	log     *zap.Logger
	classes map[string]*lua.LTable
	rt      *qao.Runtime

	current []*ScriptObject // objects whose hooks are running, innermost last
	errs    []error
	trace   []Emission
}

// NewEngine creates a Lua engine and loads every *.lua file in scriptsDir.
// A missing directory yields an engine with no classes.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, classes: make(map[string]*lua.LTable)}
	vm.PreloadModule("rt", e.loadRuntimeModule)

	if scriptsDir != "" {
		if err := e.loadDir(scriptsDir); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load scripts: %w", err)
		}
	}
	return e, nil
}

// loadDir loads all .lua files in a directory, in file name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		class := strings.TrimSuffix(entry.Name(), ".lua")
		if err := e.DefineClass(class, string(src)); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path), zap.String("class", class))
	}
	return nil
}

// DefineClass runs src, which must return a table of hooks, and registers it
// as class. An existing class of the same name is replaced.
func (e *Engine) DefineClass(class, src string) error {
	fn, err := e.vm.LoadString(src)
	if err != nil {
		return err
	}
	e.vm.Push(fn)
	if err := e.vm.PCall(0, 1, nil); err != nil {
		return err
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)

	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return fmt.Errorf("class %q: script returned %s, want table", class, ret.Type())
	}
	e.classes[class] = tbl
	return nil
}

// Classes returns the loaded class names, sorted.
func (e *Engine) Classes() []string {
	out := make([]string, 0, len(e.classes))
	for c := range e.classes {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Bind attaches the runtime that rt.* functions and Spawn operate on.
func (e *Engine) Bind(rt *qao.Runtime) { e.rt = rt }

func (e *Engine) Runtime() *qao.Runtime { return e.rt }

// Spawn creates a script object of class and adds it, owned, to the bound
// runtime.
func (e *Engine) Spawn(class, name string, priority int, state map[string]any) (*ScriptObject, error) {
	if e.rt == nil {
		return nil, ErrNotBound
	}
	obj, err := e.newObject(class, name, priority)
	if err != nil {
		return nil, err
	}
	for k, v := range state {
		if reservedKey(k) {
			continue
		}
		lv, err := toLua(v)
		if err != nil {
			return nil, fmt.Errorf("spawn %s %q: state %q: %w", class, name, k, err)
		}
		obj.self.RawSetString(k, lv)
	}
	if _, err := e.rt.AddObject(obj); err != nil {
		return nil, fmt.Errorf("spawn %s %q: %w", class, name, err)
	}
	obj.syncIdentity()
	return obj, nil
}

func (e *Engine) newObject(class, name string, priority int) (*ScriptObject, error) {
	hooks, ok := e.classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	obj := &ScriptObject{
		Base:   qao.NewBase(name, priority),
		engine: e,
		class:  class,
		hooks:  hooks,
		self:   e.vm.NewTable(),
	}
	obj.self.RawSetString("class", lua.LString(class))
	return obj, nil
}

// call runs one hook of obj in protected mode. Failures are logged and kept
// for Errors; dispatch continues.
func (e *Engine) call(obj *ScriptObject, hook string) {
	fn, ok := obj.hooks.RawGetString(hook).(*lua.LFunction)
	if !ok {
		return
	}
	e.current = append(e.current, obj)
	defer func() { e.current = e.current[:len(e.current)-1] }()

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, obj.self); err != nil {
		e.log.Error("lua hook error",
			zap.String("class", obj.class),
			zap.String("object", obj.Name()),
			zap.String("hook", hook),
			zap.Error(err),
		)
		e.errs = append(e.errs, fmt.Errorf("%s %q %s: %w", obj.class, obj.Name(), hook, err))
	}
}

func (e *Engine) currentName() string {
	if n := len(e.current); n > 0 {
		return e.current[n-1].Name()
	}
	return "-"
}

// Errors returns the script failures recorded so far.
func (e *Engine) Errors() []error { return append([]error(nil), e.errs...) }

// Trace returns every rt.emit record so far.
func (e *Engine) Trace() []Emission { return append([]Emission(nil), e.trace...) }

// ResetTrace drops the recorded emissions.
func (e *Engine) ResetTrace() { e.trace = e.trace[:0] }

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

// --- Lua helpers ---

func toLua(v any) (lua.LValue, error) {
	switch x := v.(type) {
	case nil:
		return lua.LNil, nil
	case string:
		return lua.LString(x), nil
	case bool:
		return lua.LBool(x), nil
	case int:
		return lua.LNumber(x), nil
	case int32:
		return lua.LNumber(x), nil
	case int64:
		return lua.LNumber(x), nil
	case float64:
		return lua.LNumber(x), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}
