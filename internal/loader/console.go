// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
)

var consoleLevels = map[string]slog.Level{
	"log":   slog.LevelInfo,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
	"debug": slog.LevelDebug,
	"trace": slog.LevelDebug,
}

// installConsole binds console methods to the logger, attributing each
// record to the innermost executing module.
func (l *Loader) installConsole() {
	console := l.vm.NewObject()
	for name, level := range consoleLevels {
		_ = console.Set(name, func(call goja.FunctionCall) goja.Value {
			attrs := []any{"source", "console"}
			if id := l.current(); id != "" {
				attrs = append(attrs, "module", id)
			}
			l.log.Log(context.Background(), level, l.formatArgs(call.Arguments), attrs...)
			return goja.Undefined()
		})
	}
	_ = l.vm.Set("console", console)
}

func (l *Loader) formatArgs(args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		s, err := l.helpers.inspect(goja.Undefined(), arg)
		if err != nil {
			parts = append(parts, arg.String())
			continue
		}
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " ")
}
