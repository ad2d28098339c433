package scripting

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/hobgoblin/qao/internal/core/qao"
)

// loadRuntimeModule backs require("rt").
func (e *Engine) loadRuntimeModule(L *lua.LState) int {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"spawn":        e.luaSpawn,
		"destroy":      e.luaDestroy,
		"set_priority": e.luaSetPriority,
		"find":         e.luaFind,
		"count":        e.luaCount,
		"event":        e.luaEvent,
		"step":         e.luaStep,
		"log":          e.luaLog,
		"emit":         e.luaEmit,
	})
	L.Push(mod)
	return 1
}

func (e *Engine) boundRuntime(L *lua.LState) *qao.Runtime {
	if e.rt == nil {
		L.RaiseError("rt: %v", ErrNotBound)
	}
	return e.rt
}

func checkID(L *lua.LState, n int) qao.ObjectID {
	id, err := qao.ParseObjectID(L.CheckString(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return id
}

// rt.spawn(class, name, priority[, state]) -> id
func (e *Engine) luaSpawn(L *lua.LState) int {
	e.boundRuntime(L)
	class := L.CheckString(1)
	name := L.CheckString(2)
	priority := L.CheckInt(3)
	state := L.OptTable(4, nil)

	obj, err := e.Spawn(class, name, priority, nil)
	if err != nil {
		L.RaiseError("rt.spawn: %v", err)
	}
	if state != nil {
		state.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok && !reservedKey(string(ks)) {
				obj.self.RawSet(k, v)
			}
		})
	}
	L.Push(lua.LString(obj.ID().String()))
	return 1
}

// rt.destroy(id) -> bool
func (e *Engine) luaDestroy(L *lua.LState) int {
	rt := e.boundRuntime(L)
	L.Push(lua.LBool(rt.EraseByID(checkID(L, 1))))
	return 1
}

// rt.set_priority(id, p) -> bool
func (e *Engine) luaSetPriority(L *lua.LState) int {
	rt := e.boundRuntime(L)
	id := checkID(L, 1)
	p := L.CheckInt(2)
	obj := rt.Find(id)
	if obj == nil {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(rt.SetExecutionPriority(obj, p) == nil))
	return 1
}

// rt.find(name) -> id | nil
func (e *Engine) luaFind(L *lua.LState) int {
	rt := e.boundRuntime(L)
	obj := rt.FindByName(L.CheckString(1))
	if obj == nil {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(obj.ObjectBase().ID().String()))
	return 1
}

// rt.count() -> n
func (e *Engine) luaCount(L *lua.LState) int {
	L.Push(lua.LNumber(e.boundRuntime(L).ObjectCount()))
	return 1
}

// rt.event() -> name of the event being dispatched
func (e *Engine) luaEvent(L *lua.LState) int {
	L.Push(lua.LString(e.boundRuntime(L).CurrentEvent().String()))
	return 1
}

// rt.step() -> number of StartStep calls so far
func (e *Engine) luaStep(L *lua.LState) int {
	L.Push(lua.LNumber(e.boundRuntime(L).Iteration()))
	return 1
}

// rt.log(msg)
func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("lua",
		zap.String("object", e.currentName()),
		zap.String("msg", L.CheckString(1)),
	)
	return 0
}

// rt.emit(tag, value)
func (e *Engine) luaEmit(L *lua.LState) int {
	rt := e.boundRuntime(L)
	e.trace = append(e.trace, Emission{
		Iteration: rt.Iteration(),
		Event:     rt.CurrentEvent(),
		Object:    e.currentName(),
		Tag:       L.CheckString(1),
		Value:     L.Get(2).String(),
	})
	return 0
}
