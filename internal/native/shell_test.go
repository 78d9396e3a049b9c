// SPDX-License-Identifier: MPL-2.0

package native

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
)

func TestRunShell(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name   string
		script string
		env    map[string]string
		args   []string
		stdin  string
		want   ShellResult
	}{
		{name: "stdout", script: "echo hello", want: ShellResult{Stdout: "hello\n"}},
		{name: "exit status", script: "echo oops >&2; exit 3", want: ShellResult{Code: 3, Stderr: "oops\n"}},
		{name: "args keep dashes", script: `echo "$1 $2"`, args: []string{"-v", "--env=x"}, want: ShellResult{Stdout: "-v --env=x\n"}},
		{name: "env", script: `echo "$GREETING"`, env: map[string]string{"GREETING": "hi"}, want: ShellResult{Stdout: "hi\n"}},
		{name: "stdin", script: "read line; echo got $line", stdin: "data\n", want: ShellResult{Stdout: "got data\n"}},
		{name: "dir", script: "pwd", want: ShellResult{Stdout: dir + "\n"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := RunShell(t.Context(), tt.script, dir, tt.env, tt.args, tt.stdin)
			if err != nil {
				t.Fatalf("RunShell() error: %v", err)
			}
			if diff := cmp.Diff(tt.want, *res); diff != "" {
				t.Errorf("RunShell() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunShellSyntaxError(t *testing.T) {
	t.Parallel()

	if _, err := RunShell(t.Context(), "if then fi (", "", nil, nil, ""); err == nil {
		t.Fatal("RunShell() error = nil, want a syntax error")
	}
}

func TestShellModule(t *testing.T) {
	t.Parallel()

	_, l := newTestLoader(t, map[string]string{})
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	exports, err := l.Require(vm, "shell")
	if err != nil {
		t.Fatalf("Require(shell) error: %v", err)
	}
	_ = vm.Set("shell", exports)

	v, err := vm.RunString(`const r = shell.run("echo $1", { args: ["js"] }); [r.code, r.stdout, shell.check("echo ok"), shell.check("if")].join("|")`)
	if err != nil {
		t.Fatalf("RunString() error: %v", err)
	}
	if got, want := v.String(), "0|js\n|true|false"; got != want {
		t.Errorf("shell result = %q, want %q", got, want)
	}
}
