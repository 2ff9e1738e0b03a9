package sandbox

import (
	"strconv"

	"github.com/dop251/goja"
)

type hookKind int

const (
	hookState hookKind = iota
	hookEffect
	hookMemo
	hookRef
)

type hookSlot struct {
	kind    hookKind
	ready   bool
	value   goja.Value
	setter  goja.Value
	deps    []goja.Value
	cleanup goja.Callable
}

type hookFrame struct {
	path  string
	index int
	slots []*hookSlot
	first bool
}

type pendingEffect struct {
	slot *hookSlot
	fn   goja.Callable
}

// hooks keeps per-component state keyed by the component's position in the tree.
// Components that stop rendering lose their state and have their effect cleanups run.
type hooks struct {
	vm    *goja.Runtime
	slots map[string][]*hookSlot

	frame    *hookFrame
	stack    []*hookFrame
	effects  []pendingEffect
	rendered map[string]bool
	dirty    bool
}

func newHooks(vm *goja.Runtime) *hooks {
	return &hooks{vm: vm, slots: make(map[string][]*hookSlot)}
}

func (h *hooks) beginPass() {
	h.rendered = make(map[string]bool)
	h.effects = nil
	h.dirty = false
	h.frame = nil
	h.stack = nil
}

func (h *hooks) enter(path string) {
	existing, ok := h.slots[path]
	h.stack = append(h.stack, h.frame)
	h.frame = &hookFrame{path: path, slots: existing, first: !ok}
	h.rendered[path] = true
}

func (h *hooks) leave() error {
	f := h.frame
	h.frame = h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]

	if !f.first && f.index != len(f.slots) {
		return runtimeError("rendered fewer hooks than during the previous render")
	}
	h.slots[f.path] = f.slots
	return nil
}

// slot returns the next hook slot of the current component, panicking with a JS TypeError on misuse.
func (h *hooks) slot(kind hookKind, name string) *hookSlot {
	f := h.frame
	if f == nil {
		panic(h.vm.NewTypeError("%s can only be called inside a component", name))
	}

	if f.index < len(f.slots) {
		s := f.slots[f.index]
		if s.kind != kind {
			panic(h.vm.NewTypeError("%s called in a different order than during the previous render", name))
		}
		f.index++
		return s
	}

	if !f.first {
		panic(h.vm.NewTypeError("rendered more hooks than during the previous render"))
	}
	s := &hookSlot{kind: kind}
	f.slots = append(f.slots, s)
	f.index++
	return s
}

func (h *hooks) call(fn goja.Callable, args ...goja.Value) goja.Value {
	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		panic(err)
	}
	return v
}

func (h *hooks) useState(call goja.FunctionCall) goja.Value {
	s := h.slot(hookState, "useState")
	if !s.ready {
		initial := call.Argument(0)
		if fn, ok := goja.AssertFunction(initial); ok {
			initial = h.call(fn)
		}
		s.value = initial
		s.setter = h.vm.ToValue(func(c goja.FunctionCall) goja.Value {
			next := c.Argument(0)
			if fn, ok := goja.AssertFunction(next); ok {
				next = h.call(fn, s.value)
			}
			if !next.SameAs(s.value) {
				s.value = next
				h.dirty = true
			}
			return goja.Undefined()
		})
		s.ready = true
	}
	return h.vm.NewArray(s.value, s.setter)
}

func (h *hooks) useEffect(call goja.FunctionCall) goja.Value {
	s := h.slot(hookEffect, "useEffect")
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.vm.NewTypeError("useEffect expects a function"))
	}

	deps, hasDeps := h.deps(call.Argument(1))
	if !s.ready || !hasDeps || depsChanged(s.deps, deps) {
		s.deps = deps
		s.ready = true
		h.effects = append(h.effects, pendingEffect{slot: s, fn: fn})
	}
	return goja.Undefined()
}

func (h *hooks) useMemo(call goja.FunctionCall) goja.Value {
	s := h.slot(hookMemo, "useMemo")
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.vm.NewTypeError("useMemo expects a function"))
	}

	deps, hasDeps := h.deps(call.Argument(1))
	if !s.ready || !hasDeps || depsChanged(s.deps, deps) {
		s.value = h.call(fn)
		s.deps = deps
		s.ready = true
	}
	return s.value
}

func (h *hooks) useCallback(call goja.FunctionCall) goja.Value {
	s := h.slot(hookMemo, "useCallback")
	deps, hasDeps := h.deps(call.Argument(1))
	if !s.ready || !hasDeps || depsChanged(s.deps, deps) {
		s.value = call.Argument(0)
		s.deps = deps
		s.ready = true
	}
	return s.value
}

func (h *hooks) useRef(call goja.FunctionCall) goja.Value {
	s := h.slot(hookRef, "useRef")
	if !s.ready {
		ref := h.vm.NewObject()
		_ = ref.Set("current", call.Argument(0))
		s.value = ref
		s.ready = true
	}
	return s.value
}

func (h *hooks) deps(v goja.Value) ([]goja.Value, bool) {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	obj := v.ToObject(h.vm)
	n := int(obj.Get("length").ToInteger())
	out := make([]goja.Value, n)
	for i := range n {
		out[i] = obj.Get(strconv.Itoa(i))
	}
	return out, true
}

func depsChanged(prev, next []goja.Value) bool {
	if len(prev) != len(next) {
		return true
	}
	for i := range prev {
		if !prev[i].SameAs(next[i]) {
			return true
		}
	}
	return false
}

// commit runs scheduled effects and unmounts components that did not render this pass.
func (h *hooks) commit() error {
	for path, slots := range h.slots {
		if h.rendered[path] {
			continue
		}
		for _, s := range slots {
			if s.cleanup != nil {
				if _, err := s.cleanup(goja.Undefined()); err != nil {
					return err
				}
			}
		}
		delete(h.slots, path)
	}

	for _, e := range h.effects {
		if e.slot.cleanup != nil {
			cleanup := e.slot.cleanup
			e.slot.cleanup = nil
			if _, err := cleanup(goja.Undefined()); err != nil {
				return err
			}
		}
		ret, err := e.fn(goja.Undefined())
		if err != nil {
			return err
		}
		if fn, ok := goja.AssertFunction(ret); ok {
			e.slot.cleanup = fn
		}
	}
	h.effects = nil
	return nil
}
