// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/lazymod/lazymod/internal/testutil"
	"github.com/lazymod/lazymod/pkg/types"
)

func TestFSPipelineJavaScriptPassThrough(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, map[string]string{
		"plain.js": "export const x = 1 // untouched\n",
	})
	p := NewFSPipeline(Options{})

	out, err := p.Transform(context.Background(), types.ModuleID(dir+"/plain.js"))
	if err != nil {
		t.Fatalf("Transform() error: %v", err)
	}
	if out.Code != "export const x = 1 // untouched\n" {
		t.Errorf("Code = %q, want the file unchanged", out.Code)
	}
	if out.Map != nil {
		t.Error("plain JavaScript must not carry a source map")
	}
}

func TestFSPipelineTypeScriptAndJSX(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, map[string]string{
		"typed.ts":  "interface P { x: number }\nexport const get = (p: P): number => p.x;\n",
		"view.tsx":  "export const View = () => <><b>hi</b></>;\n",
		"query.mts": "export type T = string;\nexport const s: T = 'q';\n",
	})
	p := NewFSPipeline(Options{JSXFactory: "createElement"})

	tests := []struct {
		file    string
		want    []string
		notWant []string
	}{
		{file: "typed.ts", want: []string{"export const get"}, notWant: []string{"interface", ": number"}},
		{file: "view.tsx", want: []string{"createElement(Fragment", `createElement("b"`}},
		{file: "query.mts?raw", want: []string{`export const s = "q"`}, notWant: []string{"export type"}},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			t.Parallel()

			out, err := p.Transform(context.Background(), types.ModuleID(dir+"/"+tt.file))
			if err != nil {
				t.Fatalf("Transform() error: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out.Code, w) {
					t.Errorf("Code missing %q:\n%s", w, out.Code)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out.Code, nw) {
					t.Errorf("Code still contains %q:\n%s", nw, out.Code)
				}
			}
			if len(out.Map) == 0 {
				t.Error("transformed source must carry a source map")
			}
		})
	}
}

func TestFSPipelineVirtualModules(t *testing.T) {
	t.Parallel()

	p := NewFSPipeline(Options{})
	p.Register("virtual:greeting", "export default 'hello';\n")

	if !p.HasVirtual("virtual:greeting") {
		t.Fatal("HasVirtual() = false after Register")
	}
	out, err := p.Transform(context.Background(), "virtual:greeting")
	if err != nil {
		t.Fatalf("Transform() error: %v", err)
	}
	if out.Code != "export default 'hello';\n" {
		t.Errorf("Code = %q", out.Code)
	}

	p.Unregister("virtual:greeting")
	if _, err := p.Transform(context.Background(), "virtual:greeting"); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Transform() after Unregister error = %v, want ErrSourceNotFound", err)
	}
}

func TestFSPipelineErrors(t *testing.T) {
	t.Parallel()

	dir := testutil.WriteTree(t, map[string]string{"bad.ts": "export const = ;\n"})
	p := NewFSPipeline(Options{})

	_, err := p.Transform(context.Background(), types.ModuleID(dir+"/bad.ts"))
	var transformErr *Error
	if !errors.As(err, &transformErr) {
		t.Fatalf("Transform() error = %v, want *Error", err)
	}
	if !strings.Contains(err.Error(), "1:") {
		t.Errorf("error %q must carry a position", err)
	}

	if _, err := p.Transform(context.Background(), types.ModuleID(dir+"/missing.js")); !errors.Is(err, ErrSourceNotFound) {
		t.Errorf("Transform() error = %v, want ErrSourceNotFound", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transform(ctx, types.ModuleID(dir+"/bad.ts")); !errors.Is(err, context.Canceled) {
		t.Errorf("Transform() error = %v, want context.Canceled", err)
	}
}

func TestPipelineFunc(t *testing.T) {
	t.Parallel()

	var got types.ModuleID
	p := PipelineFunc(func(_ context.Context, id types.ModuleID) (*Output, error) {
		got = id
		return &Output{Code: "export {}"}, nil
	})
	if _, err := p.Transform(context.Background(), "/x.js"); err != nil {
		t.Fatalf("Transform() error: %v", err)
	}
	if got != "/x.js" {
		t.Errorf("PipelineFunc received %q", got)
	}
}

func TestParseTarget(t *testing.T) {
	t.Parallel()

	if got, err := ParseTarget("ES2020"); err != nil || got != api.ES2020 {
		t.Errorf("ParseTarget(ES2020) = %v, %v", got, err)
	}
	if _, err := ParseTarget("es3"); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("ParseTarget(es3) error = %v, want ErrInvalidTarget", err)
	}
}

func TestNeedsTransform(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"/a.ts": true, "/a.TSX": true, "/a.jsx": true, "/a.cts": true, "/a.mts?x": true,
		"/a.js": false, "/a.mjs": false, "/a.json": false,
	}
	for name, want := range tests {
		if got := NeedsTransform(name); got != want {
			t.Errorf("NeedsTransform(%q) = %v, want %v", name, got, want)
		}
	}
}
