// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"github.com/dop251/goja"

	"github.com/lazymod/lazymod/pkg/types"
)

// helperSource holds the property plumbing that is simpler to express in
// JavaScript than through the goja object API.
const helperSource = `({
  adopt(target, src) {
    for (const key of Reflect.ownKeys(src)) {
      const d = Object.getOwnPropertyDescriptor(src, key);
      d.configurable = true;
      Object.defineProperty(target, key, d);
    }
  },
  freeze(target, names) {
    for (const name of names) {
      const d = Object.getOwnPropertyDescriptor(target, name);
      if (!d || !d.get || !d.configurable) continue;
      let value;
      try { value = target[name]; } catch (e) { continue; }
      Object.defineProperty(target, name, { value: value, writable: false, enumerable: d.enumerable, configurable: false });
    }
  },
  legacy(target, value) {
    if (!Object.prototype.hasOwnProperty.call(target, "default")) {
      Object.defineProperty(target, "default", { value: value, enumerable: true, writable: true, configurable: true });
    }
    Object.defineProperty(target, "__esModule", { value: true, enumerable: false, configurable: true });
  },
  namespace(v) {
    if (v !== null && (typeof v === "object" || typeof v === "function")) {
      if (v.__esModule) return v;
      const ns = { default: v };
      for (const k of Object.keys(v)) {
        if (k !== "default") Object.defineProperty(ns, k, { enumerable: true, get: () => v[k] });
      }
      return ns;
    }
    return { default: v };
  },
  fulfilled(v) { return Promise.resolve(v); },
  rejected(e) { return Promise.reject(e); },
  get(o, k) { return o[k]; },
  inspect(v) {
    if (typeof v === "string") return v;
    if (v instanceof Error) return v.stack || String(v);
    if (v !== null && typeof v === "object") {
      try { return JSON.stringify(v); } catch (e) { return String(v); }
    }
    return String(v);
  },
})`

// passthrough names read as undefined on a container instead of throwing:
// promise and interop probes, serialisers and test matchers.
var passthrough = map[string]bool{
	"then":            true,
	"__esModule":      true,
	"toJSON":          true,
	"$$typeof":        true,
	"asymmetricMatch": true,
}

type helpers struct {
	adopt, freeze, legacy, namespace goja.Callable
	fulfilled, rejected, get         goja.Callable
	inspect                          goja.Callable
}

func newHelpers(vm *goja.Runtime) *helpers {
	v, err := vm.RunProgram(goja.MustCompile("lazymod:helpers", helperSource, true))
	if err != nil {
		panic(err)
	}
	o := v.ToObject(vm)
	fn := func(name string) goja.Callable {
		call, ok := goja.AssertFunction(o.Get(name))
		if !ok {
			panic("loader helper " + name + " is not a function")
		}
		return call
	}
	return &helpers{
		adopt:     fn("adopt"),
		freeze:    fn("freeze"),
		legacy:    fn("legacy"),
		namespace: fn("namespace"),
		fulfilled: fn("fulfilled"),
		rejected:  fn("rejected"),
		get:       fn("get"),
		inspect:   fn("inspect"),
	}
}

// newContainer returns the exports target of module id and the proxy that
// importers see. Reading a name the target lacks throws ExportNotFoundError.
func (l *Loader) newContainer(id types.ModuleID) (*goja.Object, *goja.Object) {
	target := l.vm.NewObject()
	proxy := l.vm.NewProxy(target, &goja.ProxyTrapConfig{
		Get: func(t *goja.Object, prop string, _ goja.Value) goja.Value {
			if v := t.Get(prop); v != nil {
				return v
			}
			if passthrough[prop] {
				return goja.Undefined()
			}
			panic(l.vm.NewGoError(&ExportNotFoundError{Module: id, Name: prop, Available: t.Keys()}))
		},
	})
	return target, l.vm.ToValue(proxy).ToObject(l.vm)
}

// throw raises err in the running JavaScript. Exceptions keep their original
// thrown value; Go errors become GoError objects.
func (l *Loader) throw(err error) {
	panic(l.errorValue(err))
}

func (l *Loader) errorValue(err error) goja.Value {
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value()
	}
	return l.vm.NewGoError(err)
}
