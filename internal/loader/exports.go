// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/pkg/types"
)

// Exports is a handle on the exports of a resolved module. Its methods take
// the runtime lock, so they are safe to call from any goroutine.
type Exports struct {
	l     *Loader
	id    types.ModuleID
	kind  types.TargetKind
	value goja.Value
}

// ID returns the canonical identifier of the module.
func (e *Exports) ID() types.ModuleID { return e.id }

// Kind returns how the module was loaded.
func (e *Exports) Kind() types.TargetKind { return e.kind }

// Value returns the raw JavaScript value. It must only be used while no
// other goroutine uses the loader.
func (e *Exports) Value() goja.Value { return e.value }

// SameAs reports whether both handles refer to the same exports container.
func (e *Exports) SameAs(other *Exports) bool {
	return other != nil && e.value.SameAs(other.value)
}

// Keys returns the enumerable export names.
func (e *Exports) Keys() []string {
	e.l.vmMu.Lock()
	defer e.l.vmMu.Unlock()
	obj, ok := e.value.(*goja.Object)
	if !ok {
		return nil
	}
	return obj.Keys()
}

// IsLive reports whether reads of name go through a live binding. Names
// the loader knows nothing about, including every export of a linked,
// remote or purged module, count as live.
func (e *Exports) IsLive(name string) bool {
	m, ok := e.l.graph.Compiled(e.id)
	if !ok || m.Meta == nil {
		return true
	}
	return m.Meta.IsLive(name)
}

// Get returns the exported value name, converted to Go.
func (e *Exports) Get(name string) (any, error) {
	e.l.vmMu.Lock()
	defer e.l.vmMu.Unlock()
	v, err := e.get(name)
	if err != nil {
		return nil, err
	}
	return v.Export(), nil
}

// Call invokes the exported function name with args. A returned promise is
// settled before Call returns; ctx cancellation interrupts the call.
func (e *Exports) Call(ctx context.Context, name string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := e.l
	l.vmMu.Lock()
	defer l.vmMu.Unlock()

	fnVal, err := e.get(name)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnVal)
	if !ok {
		return nil, fmt.Errorf("%s: %q: %w", e.id, name, ErrNotCallable)
	}

	defer l.interruptOn(ctx)()

	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = l.vm.ToValue(a)
	}
	ret, err := fn(e.value, jsArgs...)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("calling %s of %s: %w", name, e.id, context.Cause(ctx))
		}
		return nil, e.callError(name, err)
	}

	if p, ok := ret.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			ret = p.Result()
		case goja.PromiseStateRejected:
			return nil, e.callError(name, l.reasonError(p.Result()))
		default:
			return nil, fmt.Errorf("calling %s of %s: returned promise did not settle", name, e.id)
		}
	}
	return ret.Export(), nil
}

// interruptOn interrupts the runtime when ctx is done. The returned func
// must run before vmMu is released: once it returns, no interrupt from ctx
// can reach a later call.
func (l *Loader) interruptOn(ctx context.Context) func() {
	var (
		mu       sync.Mutex
		finished bool
	)
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if !finished {
			l.vm.Interrupt(ctx.Err())
		}
	})
	return func() {
		mu.Lock()
		finished = true
		mu.Unlock()
		stop()
		l.vm.ClearInterrupt()
	}
}

// JSON serialises the exports with JSON.stringify.
func (e *Exports) JSON() ([]byte, error) {
	l := e.l
	l.vmMu.Lock()
	defer l.vmMu.Unlock()

	stringify, ok := goja.AssertFunction(l.vm.Get("JSON").ToObject(l.vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify is not available")
	}
	out, err := stringify(goja.Undefined(), e.value, goja.Null(), l.vm.ToValue(2))
	if err != nil {
		if inner := hostError(err); inner != nil {
			return nil, inner
		}
		return nil, err
	}
	if goja.IsUndefined(out) {
		return []byte("null"), nil
	}
	return []byte(out.String()), nil
}

// get reads one export. Callers hold vmMu. The whole value of a CommonJS
// module doubles as its default export.
func (e *Exports) get(name string) (goja.Value, error) {
	obj, ok := e.value.(*goja.Object)
	if !ok {
		if name == "default" {
			return e.value, nil
		}
		return nil, &ExportNotFoundError{Module: e.id, Name: name}
	}
	if !e.kind.Compiled() && name == "default" && obj.Get("default") == nil {
		return e.value, nil
	}
	v, err := e.l.helpers.get(goja.Undefined(), obj, e.l.vm.ToValue(name))
	if err != nil {
		if inner := hostError(err); inner != nil {
			return nil, inner
		}
		return nil, err
	}
	return v, nil
}

func (e *Exports) callError(name string, err error) error {
	if inner := hostError(err); inner != nil {
		err = inner
	}
	return &ExecutionError{ID: e.id, Chain: []types.ModuleID{e.id}, Err: fmt.Errorf("calling %s: %w", name, err)}
}

// reasonError converts a rejection reason to an error.
func (l *Loader) reasonError(reason goja.Value) error {
	if obj, ok := reason.(*goja.Object); ok {
		if v := obj.Get("value"); v != nil {
			if err, ok := v.Export().(error); ok {
				return err
			}
		}
	}
	return errors.New(l.formatArgs([]goja.Value{reason}))
}
