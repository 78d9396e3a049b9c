// SPDX-License-Identifier: MPL-2.0

package native

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

type (
	// shellOptions is the optional second argument of shell.run.
	shellOptions struct {
		Dir   string            `json:"dir"`
		Env   map[string]string `json:"env"`
		Args  []string          `json:"args"`
		Stdin string            `json:"stdin"`
	}

	// ShellResult is what shell.run returns to JavaScript.
	ShellResult struct {
		Code   int    `json:"code"`
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
	}
)

// shellModule runs POSIX shell scripts with the mvdan.cc/sh interpreter, so
// modules can run small build or setup steps without a system shell:
//
//	const { run } = require("shell");
//	const { code, stdout } = run("echo $1", { args: ["hi"] });
func shellModule(vm *goja.Runtime, module *goja.Object) error {
	exports := vm.NewObject()
	_ = exports.Set("run", func(call goja.FunctionCall) goja.Value {
		var opts shellOptions
		if arg := call.Argument(1); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			if err := vm.ExportTo(arg, &opts); err != nil {
				panic(vm.NewTypeError("shell.run options: %v", err))
			}
		}
		res, err := RunShell(context.Background(), call.Argument(0).String(), opts.Dir, opts.Env, opts.Args, opts.Stdin)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return vm.ToValue(res)
	})
	_ = exports.Set("check", func(script string) bool {
		_, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
		return err == nil
	})
	return module.Set("exports", exports)
}

// RunShell parses and runs script. A non-zero exit status is reported in
// the result, not as an error; errors are reserved for scripts that cannot
// be parsed or started.
func RunShell(ctx context.Context, script, dir string, env map[string]string, args []string, stdin string) (*ShellResult, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return nil, fmt.Errorf("script syntax error: %w", err)
	}

	environ := os.Environ()
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}
	var stdout, stderr bytes.Buffer
	opts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(environ...)),
		interp.StdIO(strings.NewReader(stdin), &stdout, &stderr),
	}
	if dir != "" {
		opts = append(opts, interp.Dir(dir))
	}
	// "--" keeps arguments such as "-v" from being read as shell options.
	if len(args) > 0 {
		opts = append(opts, interp.Params(append([]string{"--"}, args...)...))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}

	res := &ShellResult{}
	err = runner.Run(ctx, prog)
	res.Stdout, res.Stderr = stdout.String(), stderr.String()
	if err != nil {
		var status interp.ExitStatus
		if !errors.As(err, &status) {
			return nil, fmt.Errorf("script execution failed: %w", err)
		}
		res.Code = int(status)
	}
	return res, nil
}
