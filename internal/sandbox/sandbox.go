// Package sandbox evaluates injected browser scripts in a minimal JS
// environment. The injected script is foreign-runtime code; it is verified
// here against a mock window before it is ever handed to a real browser.
package sandbox

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// evalTimeout guards against scripts that never terminate.
const evalTimeout = 2 * time.Second

// OpenCall records one invocation of the original window.open.
type OpenCall struct {
	Args []interface{}
}

// Harness hosts a goja VM with a mock window: window.open records calls and
// returns a handle value, window.location.href records navigations.
type Harness struct {
	vm          *goja.Runtime
	window      *goja.Object
	opens       []OpenCall
	navigations []string
	href        string
}

// New builds a fresh harness.
func New() (*Harness, error) {
	h := &Harness{vm: goja.New()}

	window := h.vm.NewObject()
	location := h.vm.NewObject()

	getter := h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return h.vm.ToValue(h.href)
	})
	setter := h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) > 0 {
			h.href = call.Arguments[0].String()
			h.navigations = append(h.navigations, h.href)
		}
		return goja.Undefined()
	})
	if err := location.DefineAccessorProperty("href", getter, setter, goja.FLAG_TRUE, goja.FLAG_TRUE); err != nil {
		return nil, fmt.Errorf("define location.href: %w", err)
	}

	open := h.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		rec := OpenCall{}
		for _, a := range call.Arguments {
			rec.Args = append(rec.Args, a.Export())
		}
		h.opens = append(h.opens, rec)
		target := ""
		if len(call.Arguments) > 0 {
			target = call.Arguments[0].String()
		}
		return h.vm.ToValue("window:" + target)
	})

	if err := window.Set("location", location); err != nil {
		return nil, err
	}
	if err := window.Set("open", open); err != nil {
		return nil, err
	}
	if err := h.vm.Set("window", window); err != nil {
		return nil, err
	}
	h.window = window
	return h, nil
}

// Run evaluates the script and returns its completion value.
func (h *Harness) Run(script string) (goja.Value, error) {
	timer := time.AfterFunc(evalTimeout, func() {
		h.vm.Interrupt("script evaluation timeout")
	})
	defer timer.Stop()
	return h.vm.RunString(script)
}

// CallOpen invokes the current window.open with the given URL, which after an
// injection run exercises the installed override.
func (h *Harness) CallOpen(url string) (goja.Value, error) {
	v := h.window.Get("open")
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("window.open is not callable")
	}
	return fn(h.window, h.vm.ToValue(url))
}

// OriginalOpenCalls returns the calls that reached the mock original open.
func (h *Harness) OriginalOpenCalls() []OpenCall {
	return h.opens
}

// Navigations returns every value assigned to window.location.href, in order.
func (h *Harness) Navigations() []string {
	return h.navigations
}

// Verify runs the script against a fresh harness and checks the contract the
// embedded container relies on: a truthy completion value, blob: URLs
// redirected to in-place navigation without reaching the original open, and
// all other URLs passed through to it untouched.
func Verify(script string) error {
	h, err := New()
	if err != nil {
		return err
	}

	val, err := h.Run(script)
	if err != nil {
		return fmt.Errorf("script evaluation: %w", err)
	}
	if val == nil || !val.ToBoolean() {
		return fmt.Errorf("script completion value is not truthy")
	}

	blob := "blob:https://portal.example/0f0e"
	ret, err := h.CallOpen(blob)
	if err != nil {
		return fmt.Errorf("open(blob): %w", err)
	}
	if len(h.OriginalOpenCalls()) != 0 {
		return fmt.Errorf("blob url leaked to the original open")
	}
	if navs := h.Navigations(); len(navs) != 1 || navs[0] != blob {
		return fmt.Errorf("blob url was not redirected to in-place navigation")
	}
	if ret != nil && !goja.IsNull(ret) && !goja.IsUndefined(ret) {
		return fmt.Errorf("open(blob) should return null")
	}

	plain := "https://portal.example/doc"
	ret, err = h.CallOpen(plain)
	if err != nil {
		return fmt.Errorf("open(non-blob): %w", err)
	}
	calls := h.OriginalOpenCalls()
	if len(calls) != 1 || len(calls[0].Args) == 0 || calls[0].Args[0] != plain {
		return fmt.Errorf("non-blob url did not reach the original open unmodified")
	}
	if ret == nil || ret.String() != "window:"+plain {
		return fmt.Errorf("non-blob open return value was not passed through")
	}
	return nil
}
