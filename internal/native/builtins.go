// SPDX-License-Identifier: MPL-2.0

package native

import (
	"path"
	"strings"

	"github.com/dop251/goja"
)

// pathModule is a POSIX subset of the Node path module.
func pathModule(vm *goja.Runtime, module *goja.Object) error {
	exports := vm.NewObject()
	strs := func(call goja.FunctionCall) []string {
		out := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			out = append(out, arg.String())
		}
		return out
	}
	set := func(name string, fn func(call goja.FunctionCall) goja.Value) {
		_ = exports.Set(name, fn)
	}

	set("join", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Join(strs(call)...))
	})
	set("resolve", func(call goja.FunctionCall) goja.Value {
		resolved := "/"
		for _, p := range strs(call) {
			if path.IsAbs(p) {
				resolved = p
			} else {
				resolved = path.Join(resolved, p)
			}
		}
		return vm.ToValue(path.Clean(resolved))
	})
	set("dirname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Dir(call.Argument(0).String()))
	})
	set("basename", func(call goja.FunctionCall) goja.Value {
		base := path.Base(call.Argument(0).String())
		if ext := call.Argument(1); !goja.IsUndefined(ext) {
			base = strings.TrimSuffix(base, ext.String())
		}
		return vm.ToValue(base)
	})
	set("extname", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Ext(call.Argument(0).String()))
	})
	set("isAbsolute", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.IsAbs(call.Argument(0).String()))
	})
	set("normalize", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(path.Clean(call.Argument(0).String()))
	})
	set("relative", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(relative(call.Argument(0).String(), call.Argument(1).String()))
	})
	_ = exports.Set("sep", "/")
	_ = exports.Set("delimiter", ":")

	return module.Set("exports", exports)
}

func relative(from, to string) string {
	fromParts := splitClean(from)
	toParts := splitClean(to)
	i := 0
	for i < len(fromParts) && i < len(toParts) && fromParts[i] == toParts[i] {
		i++
	}
	parts := make([]string, 0, len(fromParts)-i+len(toParts)-i)
	for range fromParts[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, toParts[i:]...)
	return strings.Join(parts, "/")
}

func splitClean(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
