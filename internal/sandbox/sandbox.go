package sandbox

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/dop251/goja"
)

//go:embed prelude.js
var preludeSource string

const (
	defaultTimeout  = 250 * time.Millisecond
	maxRenderPasses = 25
)

// DataFunc supplies the current projected entries. It is called on every paint.
type DataFunc func() []domain.OverlayData

type options struct {
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*options)

// WithTimeout bounds a single evaluation or paint. Runaway scripts are interrupted.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger receives console output from scripts at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Execute transpiles and evaluates source in a fresh runtime and returns its boundary.
// Failures are captured in the boundary; Execute never panics.
func Execute(source string, data DataFunc, opts ...Option) *Boundary {
	o := options{timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Boundary{opts: o, data: data}

	code, err := Transpile(source)
	if err != nil {
		b.fail(fromScriptError(err))
		return b
	}

	if err := b.evaluate(code); err != nil {
		b.fail(fromScriptError(err))
	}
	return b
}

func (b *Boundary) evaluate(code string) error {
	b.vm = goja.New()
	b.hooks = newHooks(b.vm)

	if err := b.install(); err != nil {
		return fmt.Errorf("install capabilities: %w", err)
	}

	wrapper, err := b.vm.RunScript("overlay.js", "(function (exports, require, module) {\n"+code+"\n})")
	if err != nil {
		return err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return errors.New("overlay module is not callable")
	}

	module := b.vm.NewObject()
	exports := b.vm.NewObject()
	_ = module.Set("exports", exports)

	return b.guard(func() error {
		_, err := fn(goja.Undefined(), exports, b.vm.ToValue(b.require), module)
		return err
	})
}

// install exposes the sandbox capabilities. Nothing else is reachable from scripts
// beyond the ECMAScript built-ins.
func (b *Boundary) install() error {
	vm := b.vm

	b.elementTag = vm.NewObject()
	b.fragment = vm.NewObject()
	_ = b.fragment.Set("name", "Fragment")

	freeze, ok := goja.AssertFunction(vm.Get("Object").ToObject(vm).Get("freeze"))
	if !ok {
		return errors.New("Object.freeze unavailable")
	}
	b.emptyModule = vm.NewObject()
	if _, err := freeze(goja.Undefined(), b.emptyModule); err != nil {
		return err
	}

	react := vm.NewObject()
	set := func(obj *goja.Object, name string, fn func(goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}
	set(react, "createElement", b.createElement)
	set(react, "isValidElement", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(b.isElement(call.Argument(0)))
	})
	set(react, "useState", b.hooks.useState)
	set(react, "useEffect", b.hooks.useEffect)
	set(react, "useLayoutEffect", b.hooks.useEffect)
	set(react, "useMemo", b.hooks.useMemo)
	set(react, "useCallback", b.hooks.useCallback)
	set(react, "useRef", b.hooks.useRef)
	_ = react.Set("Fragment", b.fragment)
	if _, err := freeze(goja.Undefined(), react); err != nil {
		return err
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		set(console, level, b.consoleFunc(level))
	}

	globals := map[string]any{
		"React":        react,
		"useTimerData": b.useTimerData,
		"render":       b.render,
		"console":      console,
		"require":      b.require,
	}
	for name, value := range globals {
		if err := vm.Set(name, value); err != nil {
			return err
		}
	}

	prelude, err := vm.RunScript("prelude.js", preludeSource)
	if err != nil {
		return err
	}
	preludeFn, ok := goja.AssertFunction(prelude)
	if !ok {
		return errors.New("prelude is not callable")
	}
	kit, err := preludeFn(goja.Undefined(), react)
	if err != nil {
		return err
	}
	kitObj := kit.ToObject(vm)
	for _, name := range []string{"styled", "motion", "AnimatePresence", "AnimateSharedLayout"} {
		if err := vm.Set(name, kitObj.Get(name)); err != nil {
			return err
		}
	}
	ui := kitObj.Get("UI")
	if err := vm.Set("UI", ui); err != nil {
		return err
	}
	return vm.Set("Mui", ui)
}

func (b *Boundary) createElement(call goja.FunctionCall) goja.Value {
	vm := b.vm
	typ := call.Argument(0)
	if goja.IsUndefined(typ) || goja.IsNull(typ) {
		panic(vm.NewTypeError("element type is invalid: expected a string or a component but got %s", typ.String()))
	}

	props := vm.NewObject()
	key := goja.Null()
	if p := call.Argument(1); !goja.IsUndefined(p) && !goja.IsNull(p) {
		src := p.ToObject(vm)
		for _, k := range src.Keys() {
			if k == "key" {
				key = src.Get(k)
				continue
			}
			_ = props.Set(k, src.Get(k))
		}
	}

	switch n := len(call.Arguments); {
	case n == 3:
		_ = props.Set("children", call.Arguments[2])
	case n > 3:
		children := make([]any, 0, n-2)
		for _, c := range call.Arguments[2:] {
			children = append(children, c)
		}
		_ = props.Set("children", vm.NewArray(children...))
	}

	el := vm.NewObject()
	_ = el.Set("$$typeof", b.elementTag)
	_ = el.Set("type", typ)
	_ = el.Set("props", props)
	_ = el.Set("key", key)
	return el
}

func (b *Boundary) isElement(v goja.Value) bool {
	obj, ok := v.(*goja.Object)
	if !ok {
		return false
	}
	tag := obj.Get("$$typeof")
	return tag != nil && tag.SameAs(b.elementTag)
}

func (b *Boundary) render(call goja.FunctionCall) goja.Value {
	tree := call.Argument(0)
	if _, ok := goja.AssertFunction(tree); ok {
		tree = b.createElement(goja.FunctionCall{Arguments: []goja.Value{tree}})
	}
	b.root = tree
	return goja.Undefined()
}

func (b *Boundary) require(goja.FunctionCall) goja.Value {
	return b.emptyModule
}

func (b *Boundary) useTimerData(goja.FunctionCall) goja.Value {
	if b.dataCache != nil {
		return b.dataCache
	}

	var entries []domain.OverlayData
	if b.data != nil {
		entries = b.data()
	}

	items := make([]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, b.entryObject(e))
	}
	b.dataCache = b.vm.NewArray(items...)
	return b.dataCache
}

func (b *Boundary) entryObject(e domain.OverlayData) *goja.Object {
	vm := b.vm

	reward := vm.NewObject()
	_ = reward.Set("id", e.Reward.ID)
	_ = reward.Set("name", e.Reward.Name)
	_ = reward.Set("durationSeconds", e.Reward.DurationSeconds)
	_ = reward.Set("endsAt", e.Reward.EndsAt.UTC().Format(domain.TimestampLayout))
	_ = reward.Set("ownerChannelId", e.Reward.OwnerID.String())

	entry := vm.NewObject()
	_ = entry.Set("name", e.Name)
	_ = entry.Set("remainingSeconds", e.RemainingSeconds)
	_ = entry.Set("remainingTime", e.RemainingTime)
	_ = entry.Set("reward", reward)
	return entry
}

func (b *Boundary) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		b.opts.logger.Debug("Overlay console", "level", level, "message", strings.Join(parts, " "))
		return goja.Undefined()
	}
}

// guard runs fn under the execution timeout and converts host panics into runtime errors.
func (b *Boundary) guard(fn func() error) (err error) {
	w := startWatchdog(b.opts.timeout, func() { b.vm.Interrupt("timeout") })
	defer func() {
		w.stop()
		b.vm.ClearInterrupt()
	}()
	defer func() {
		if r := recover(); r != nil {
			err = runtimeError(fmt.Sprintf("%v", r))
		}
	}()

	return fn()
}

// watchdog calls interrupt once its deadline passes, unless stopped first.
// After stop returns, interrupt is never called.
type watchdog struct {
	mu        sync.Mutex
	stopped   bool
	interrupt func()
	timer     *time.Timer
}

func startWatchdog(d time.Duration, interrupt func()) *watchdog {
	w := &watchdog{interrupt: interrupt}
	w.timer = time.AfterFunc(d, w.fire)
	return w
}

func (w *watchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.stopped {
		w.interrupt()
	}
}

func (w *watchdog) stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.timer.Stop()
}
