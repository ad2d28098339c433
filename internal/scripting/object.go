package scripting

import (
	"fmt"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/hobgoblin/qao/internal/codec"
	"github.com/hobgoblin/qao/internal/core/qao"
)

// TypeTag is the persistence tag of ScriptObject.
const TypeTag = "lua.script"

// Scalar kinds in a persisted state table.
const (
	kindString byte = 's'
	kindNumber byte = 'n'
	kindBool   byte = 'b'
)

// ScriptObject is an active object whose hooks are Lua functions. Each hook
// receives the object's state table as self.
type ScriptObject struct {
	qao.Base
	engine *Engine
	class  string
	hooks  *lua.LTable
	self   *lua.LTable
}

func (o *ScriptObject) Class() string { return o.class }

// State returns the object's Lua state table.
func (o *ScriptObject) State() *lua.LTable { return o.self }

// Get returns a state field converted to Go (string, float64, bool or nil).
func (o *ScriptObject) Get(key string) any {
	switch v := o.self.RawGetString(key).(type) {
	case lua.LString:
		return string(v)
	case lua.LNumber:
		return float64(v)
	case lua.LBool:
		return bool(v)
	default:
		return nil
	}
}

func (o *ScriptObject) syncIdentity() {
	o.self.RawSetString("id", lua.LString(o.ID().String()))
	o.self.RawSetString("name", lua.LString(o.Name()))
}

func (o *ScriptObject) StartFrame()    { o.engine.call(o, "start_frame") }
func (o *ScriptObject) PreUpdate()     { o.engine.call(o, "pre_update") }
func (o *ScriptObject) Update1()       { o.engine.call(o, "update1") }
func (o *ScriptObject) Update2()       { o.engine.call(o, "update2") }
func (o *ScriptObject) PostUpdate()    { o.engine.call(o, "post_update") }
func (o *ScriptObject) Draw1()         { o.engine.call(o, "draw1") }
func (o *ScriptObject) Draw2()         { o.engine.call(o, "draw2") }
func (o *ScriptObject) DrawGUI()       { o.engine.call(o, "draw_gui") }
func (o *ScriptObject) FinalizeFrame() { o.engine.call(o, "finalize_frame") }
func (o *ScriptObject) Destroy()       { o.engine.call(o, "destroy") }

func reservedKey(k string) bool {
	return k == "id" || k == "name" || k == "class"
}

func (o *ScriptObject) TypeTag() string { return TypeTag }

// Persist writes the class and the scalar string-keyed state entries in key
// order. Tables, functions and other values are not persisted.
func (o *ScriptObject) Persist(w *codec.Writer) error {
	type entry struct {
		key string
		val lua.LValue
	}
	var entries []entry
	o.self.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok || reservedKey(string(ks)) {
			return
		}
		switch v.(type) {
		case lua.LString, lua.LNumber, lua.LBool:
			entries = append(entries, entry{key: string(ks), val: v})
		}
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	w.WriteS(o.class)
	w.WriteD(int32(len(entries)))
	// Keys and string values are Lua strings and may hold any byte, so they
	// are length-prefixed rather than NUL-terminated.
	for _, en := range entries {
		w.WriteBlob([]byte(en.key))
		switch v := en.val.(type) {
		case lua.LString:
			w.WriteC(kindString)
			w.WriteBlob([]byte(v))
		case lua.LNumber:
			w.WriteC(kindNumber)
			w.WriteF(float64(v))
		case lua.LBool:
			w.WriteC(kindBool)
			w.WriteBool(bool(v))
		}
	}
	return nil
}

// RegisterTypes registers the ScriptObject factory. The restore context must
// be the *Engine that owns the classes.
func RegisterTypes(types *qao.TypeRegistry) {
	types.Register(TypeTag, restoreScriptObject)
}

func restoreScriptObject(r *codec.Reader, rt *qao.Runtime, ctx any) error {
	e, ok := ctx.(*Engine)
	if !ok {
		return fmt.Errorf("restore %s: context is %T, want *scripting.Engine", TypeTag, ctx)
	}
	h, err := qao.ReadObjectHeader(r)
	if err != nil {
		return err
	}
	class := r.ReadS()
	obj, err := e.newObject(class, h.Name, h.Priority)
	if err != nil {
		return err
	}

	n := int(r.ReadD())
	for i := 0; i < n && r.Err() == nil; i++ {
		key := string(r.ReadBlob())
		switch kind := r.ReadC(); kind {
		case kindString:
			obj.self.RawSetString(key, lua.LString(r.ReadBlob()))
		case kindNumber:
			obj.self.RawSetString(key, lua.LNumber(r.ReadF()))
		case kindBool:
			obj.self.RawSetString(key, lua.LBool(r.ReadBool()))
		default:
			if r.Err() == nil {
				return fmt.Errorf("restore %s %q: field %q: unknown kind %q", TypeTag, h.Name, key, kind)
			}
		}
	}
	if err := r.Err(); err != nil {
		return fmt.Errorf("restore %s %q: %w", TypeTag, h.Name, err)
	}

	if e.rt == nil {
		e.Bind(rt)
	}
	if err := qao.RestoreObject(rt, obj, h, true); err != nil {
		return err
	}
	obj.syncIdentity()
	return nil
}
