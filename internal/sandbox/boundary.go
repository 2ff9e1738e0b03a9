package sandbox

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Boundary owns one sandbox instance: the runtime, the tree handed to render, and
// the component state. Each Render re-runs components against fresh data. Once a
// render fails the boundary stays failed; build a new one with Execute to recover.
type Boundary struct {
	opts options
	data DataFunc

	vm          *goja.Runtime
	hooks       *hooks
	elementTag  *goja.Object
	fragment    *goja.Object
	emptyModule *goja.Object
	dataCache   goja.Value

	root goja.Value
	err  *Error
}

// Err returns the captured failure, if any.
func (b *Boundary) Err() *Error {
	return b.err
}

func (b *Boundary) fail(err *Error) {
	b.err = err
	b.root = nil
}

// Render paints the current tree. A source that never called render yields an empty tree.
func (b *Boundary) Render() (result Result) {
	if b.err != nil {
		return Result{Err: b.err}
	}
	if b.root == nil {
		return Result{Tree: &Node{}}
	}

	defer func() {
		if r := recover(); r != nil {
			b.fail(runtimeError(fmt.Sprintf("%v", r)))
			result = Result{Err: b.err}
		}
	}()

	var tree *Node
	err := b.guard(func() error {
		var err error
		tree, err = b.renderPasses()
		return err
	})
	if err != nil {
		b.fail(fromScriptError(err))
		return Result{Err: b.err}
	}
	return Result{Tree: tree}
}

func (b *Boundary) renderPasses() (*Node, error) {
	for range maxRenderPasses {
		b.dataCache = nil
		b.hooks.beginPass()

		children, err := b.renderValue(b.root, "")
		if err != nil {
			return nil, err
		}
		if err := b.hooks.commit(); err != nil {
			return nil, err
		}
		if !b.hooks.dirty {
			return &Node{Children: children}, nil
		}
	}
	return nil, runtimeError("too many re-renders")
}

func (b *Boundary) renderValue(v goja.Value, path string) ([]*Node, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		if _, isBool := v.Export().(bool); isBool {
			return nil, nil
		}
		return []*Node{{Text: v.String()}}, nil
	}

	if obj.ClassName() == "Array" {
		n := int(obj.Get("length").ToInteger())
		var out []*Node
		for i := range n {
			child := obj.Get(strconv.Itoa(i))
			nodes, err := b.renderValue(child, path+"."+b.childKey(child, i))
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
		return out, nil
	}

	if b.isElement(obj) {
		return b.renderElement(obj, path)
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return nil, runtimeError("functions are not valid as a child; did you mean to render <Component />?")
	}
	return nil, runtimeError("objects are not valid as a child")
}

func (b *Boundary) childKey(child goja.Value, index int) string {
	if obj, ok := child.(*goja.Object); ok && b.isElement(obj) {
		if key := obj.Get("key"); key != nil && !goja.IsNull(key) && !goja.IsUndefined(key) {
			return "#" + key.String()
		}
	}
	return strconv.Itoa(index)
}

func (b *Boundary) renderElement(el *goja.Object, path string) ([]*Node, error) {
	typ := el.Get("type")
	props := el.Get("props").ToObject(b.vm)

	if typ.SameAs(b.fragment) {
		return b.renderValue(props.Get("children"), path)
	}

	if fn, ok := goja.AssertFunction(typ); ok {
		componentPath := path + "/" + componentName(typ.ToObject(b.vm))

		b.hooks.enter(componentPath)
		out, err := fn(goja.Undefined(), props)
		if leaveErr := b.hooks.leave(); err == nil {
			err = leaveErr
		}
		if err != nil {
			return nil, err
		}
		return b.renderValue(out, componentPath)
	}

	if _, ok := typ.(*goja.Object); ok {
		return nil, runtimeError("element type is invalid: expected a string or a component")
	}
	return b.renderHost(strings.ToLower(typ.String()), props, path)
}

func (b *Boundary) renderHost(tag string, props *goja.Object, path string) ([]*Node, error) {
	if !validTag(tag) {
		return nil, nil
	}

	node := &Node{Tag: tag}
	for _, k := range props.Keys() {
		val := props.Get(k)
		switch k {
		case "children":
			continue
		case "style":
			node.Style = b.styleDecls(val)
		default:
			name := attrName(k)
			if name == "" {
				continue
			}
			switch v := val.Export().(type) {
			case string:
				node.Attrs = append(node.Attrs, Attr{Name: name, Value: v})
			case int64, float64:
				node.Attrs = append(node.Attrs, Attr{Name: name, Value: val.String()})
			}
		}
	}

	children, err := b.renderValue(props.Get("children"), path+"/"+tag)
	if err != nil {
		return nil, err
	}
	node.Children = children
	return []*Node{node}, nil
}

func (b *Boundary) styleDecls(v goja.Value) []Decl {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil
	}

	var decls []Decl
	for _, k := range obj.Keys() {
		property := KebabCase(k)
		value := CSSValue(property, obj.Get(k).Export())
		if value == "" {
			continue
		}
		decls = append(decls, Decl{Property: property, Value: value})
	}
	return decls
}

func componentName(fn *goja.Object) string {
	if name := fn.Get("name"); name != nil && name.String() != "" {
		return name.String()
	}
	return "Anonymous"
}
