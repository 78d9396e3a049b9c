// SPDX-License-Identifier: MPL-2.0

package rewrite

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustAnalyze(t *testing.T, src string) *analyzer {
	t.Helper()
	a, err := analyze("/app/mod.js", src, scan(src))
	if err != nil {
		t.Fatalf("analyze() error: %v", err)
	}
	return a
}

func TestExportClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []Binding
	}{
		{
			name: "declarations",
			src: `export let counter = 0;
export var legacy = 1;
export const limit = 10;
export function inc() { counter++; }
export async function load() {}
export class Box {}
export default function main() {}
`,
			want: []Binding{
				{Name: "counter", Local: "counter", Kind: Live},
				{Name: "legacy", Local: "legacy", Kind: Live},
				{Name: "limit", Local: "limit", Kind: Constant},
				{Name: "inc", Local: "inc", Kind: Constant},
				{Name: "load", Local: "load", Kind: Constant},
				{Name: "Box", Local: "Box", Kind: Constant},
				{Name: "default", Local: "main", Kind: Constant},
			},
		},
		{
			name: "reassigned function is live",
			src: `export function handler() {}
handler = wrap(handler)
`,
			want: []Binding{{Name: "handler", Local: "handler", Kind: Live}},
		},
		{
			name: "export list",
			src: `import def, { named } from "./dep";
import * as ns from "./ns";
const fixed = 1;
let moving = 2;
function fn() {}
export { fixed, moving as mobile, fn, named, ns, def, unknown as "odd name" };
`,
			want: []Binding{
				{Name: "fixed", Local: "fixed", Kind: Constant},
				{Name: "mobile", Local: "moving", Kind: Live},
				{Name: "fn", Local: "fn", Kind: Constant},
				{Name: "named", Local: "named", Kind: Live},
				{Name: "ns", Local: "ns", Kind: Live},
				{Name: "def", Local: "def", Kind: Live},
				{Name: "odd name", Local: "unknown", Kind: Live},
			},
		},
		{
			name: "re-exports",
			src: `export * from "./all";
export * as tools from './tools';
export { x, y as z } from "./xy";
export default 42;
`,
			want: []Binding{
				{Name: "*", Kind: Live, Source: "./all"},
				{Name: "tools", Kind: Live, Source: "./tools"},
				{Name: "x", Kind: Live, Source: "./xy"},
				{Name: "z", Kind: Live, Source: "./xy"},
				{Name: "default", Kind: Constant},
			},
		},
		{
			name: "destructuring",
			src: `export const { a, b: renamed, c = 1, ...rest } = source;
export const [first, , third = f(1, 2)] = list;
`,
			want: []Binding{
				{Name: "a", Local: "a", Kind: Constant},
				{Name: "renamed", Local: "renamed", Kind: Constant},
				{Name: "c", Local: "c", Kind: Constant},
				{Name: "rest", Local: "rest", Kind: Constant},
				{Name: "first", Local: "first", Kind: Constant},
				{Name: "third", Local: "third", Kind: Constant},
			},
		},
		{
			name: "asi without semicolons",
			src: `export const greeting = "hi"
export let count = compute(1, 2)
  + 3
count += 1
`,
			want: []Binding{
				{Name: "greeting", Local: "greeting", Kind: Constant},
				{Name: "count", Local: "count", Kind: Live},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, exports, _ := mustAnalyze(t, tt.src).result()
			if diff := cmp.Diff(tt.want, exports); diff != "" {
				t.Errorf("exports mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestImportClassification(t *testing.T) {
	t.Parallel()

	src := `import cfg from "./cfg";
import def, { named, other as alias } from "./dep";
import * as ns from "./ns";
import "./side-effect";
export { def };
`
	imports, _, _ := mustAnalyze(t, src).result()

	want := []Import{
		{Spec: "./cfg", Kind: ImportStatic, Line: 1, Column: 17, Bindings: []Binding{
			{Name: "default", Local: "cfg", Kind: Constant, Source: "./cfg"},
		}},
		{Spec: "./dep", Kind: ImportStatic, Line: 2, Column: 44, Bindings: []Binding{
			{Name: "default", Local: "def", Kind: Live, Source: "./dep"},
			{Name: "named", Local: "named", Kind: Live, Source: "./dep"},
			{Name: "other", Local: "alias", Kind: Live, Source: "./dep"},
		}},
		{Spec: "./ns", Kind: ImportStatic, Line: 3, Column: 21, Bindings: []Binding{
			{Name: "*", Local: "ns", Kind: Constant, Source: "./ns"},
		}},
		{Spec: "./side-effect", Kind: ImportStatic, Line: 4, Column: 8},
	}
	if diff := cmp.Diff(want, imports); diff != "" {
		t.Errorf("imports mismatch (-want +got):\n%s", diff)
	}
}

func TestImportOrderIncludesDynamic(t *testing.T) {
	t.Parallel()

	src := `import p from "./p";
const lazy = () => import("./lazy");
export * from "./q";
import r from "./r";
`
	imports, _, _ := mustAnalyze(t, src).result()

	var got []string
	for _, imp := range imports {
		got = append(got, imp.Kind.String()+" "+imp.Spec)
	}
	want := []string{"static ./p", "dynamic ./lazy", "re-export ./q", "static ./r"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("import order mismatch (-want +got):\n%s", diff)
	}
}

func TestMultiDeclaratorExportRejected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		line int
	}{
		{name: "const", src: "export const a = 1, b = 2;\n", line: 1},
		{name: "let without initializers", src: "// header\nexport let a, b\n", line: 2},
		{name: "var with pattern", src: "export var { x } = o, y = 1;\n", line: 1},
		{name: "across lines", src: "const z = 0;\nexport const a = 1,\n  b = 2\n", line: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := analyze("/app/multi.js", tt.src, scan(tt.src))
			if !errors.Is(err, ErrUnsupportedSyntax) {
				t.Fatalf("analyze() error = %v, want ErrUnsupportedSyntax", err)
			}
			var syntaxErr *UnsupportedSyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("analyze() error = %T, want *UnsupportedSyntaxError", err)
			}
			if syntaxErr.ID != "/app/multi.js" || syntaxErr.Line != tt.line || syntaxErr.Column != 1 {
				t.Errorf("error position = %s:%d:%d, want /app/multi.js:%d:1",
					syntaxErr.ID, syntaxErr.Line, syntaxErr.Column, tt.line)
			}
			if !strings.Contains(syntaxErr.Reason, "multiple declarators") {
				t.Errorf("Reason = %q, want it to name multiple declarators", syntaxErr.Reason)
			}
		})
	}
}

func TestSingleDeclaratorExportsAccepted(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"export const pair = [1, 2];\n",
		"export const add = (a, b) => a + b;\n",
		"export const cfg = { a: 1, b: 2 };\n",
		"export const msg = `${a}, ${b}`;\n",
		"export const { a, b } = obj;\n",
		"export let n = f(1,\n  2)\nlet other = 1, more = 2\n",
	} {
		if _, err := analyze("/app/ok.js", src, scan(src)); err != nil {
			t.Errorf("analyze(%q) error: %v", src, err)
		}
	}
}

func TestImportExpressionsKeepPositions(t *testing.T) {
	t.Parallel()

	src := "const mod = await import('./x');\nconsole.log(import.meta.url, import\n.meta);\nobj.import('./y');\n"
	a := mustAnalyze(t, src)
	out := a.apply()

	if len(out) != len(src) {
		t.Fatalf("apply() changed length: %d -> %d", len(src), len(out))
	}
	if strings.Count(out, "\n") != strings.Count(src, "\n") {
		t.Fatal("apply() changed the number of lines")
	}
	for _, want := range []string{"await __lzdi('./x')", "console.log(__lzim.meta.url, __lzim\n.meta)", "obj.import('./y')"} {
		if !strings.Contains(out, want) {
			t.Errorf("apply() output missing %q:\n%s", want, out)
		}
	}
}

func TestNativeImports(t *testing.T) {
	t.Parallel()

	src := `import local from "./local";
/* @native */ import fs from "fs";
import { join, "dash-name" as dash, default as pathDefault } from "native:path";
import * as os from "native:os";
import "native:side";
`
	a := mustAnalyze(t, src)
	imports, _, native := a.result()

	if len(imports) != 1 || imports[0].Spec != "./local" {
		t.Errorf("imports = %+v, want only ./local", imports)
	}
	var specs []string
	for _, n := range native {
		specs = append(specs, n.Spec)
	}
	if diff := cmp.Diff([]string{"fs", "path", "os", "side"}, specs); diff != "" {
		t.Errorf("native specs mismatch (-want +got):\n%s", diff)
	}

	out := a.apply()
	if strings.Contains(out, "native:") || strings.Contains(out, `"fs"`) {
		t.Errorf("native import statements must be blanked:\n%s", out)
	}
	if strings.Count(out, "\n") != strings.Count(src, "\n") {
		t.Error("blanking must keep line breaks")
	}

	want := `const fs = __lz_native("fs"); ` +
		`const pathDefault = __lz_native("path"); const { join, "dash-name": dash } = __lz_native("path"); ` +
		`const os = __lz_native("os"); ` +
		`__lz_native("side"); `
	if got := a.prologue(); got != want {
		t.Errorf("prologue() =\n%s\nwant\n%s", got, want)
	}
}

func TestFill(t *testing.T) {
	t.Parallel()

	tests := []struct {
		span, text, want string
	}{
		{"import", "__lzdi", "__lzdi"},
		{"import", "__lzim", "__lzim"},
		{"import\nx", "", "      \n "},
		{"import x from 'y';", "", "                  "},
	}
	for _, tt := range tests {
		if got := fill(tt.span, tt.text); got != tt.want {
			t.Errorf("fill(%q, %q) = %q, want %q", tt.span, tt.text, got, tt.want)
		}
	}
}
