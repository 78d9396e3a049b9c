// SPDX-License-Identifier: MPL-2.0

package rewrite

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// DefaultTarget is the language level rewritten modules are lowered to.
const DefaultTarget = api.ES2017

// Wrapper parameters, in call order. The executor passes one argument per
// name.
const (
	wrapperHeader = "(function (exports, require, module, __filename, __dirname, __lzim, __lzdi, __lz_native, __lz_link) {"
	wrapperFooter = "\n})"

	linkCall   = "__lz_link();"
	mapComment = "//# sourceMappingURL=data:application/json;base64,"
)

// exportsPublished matches the statement esbuild emits once the exports
// object of an ES module has every export getter installed.
var exportsPublished = regexp.MustCompile(`(?m)^module\.exports = __toCommonJS\([\w$]+\);`)

type (
	// Source is one module ready for rewriting: ES module text produced by
	// the transform pipeline plus its optional source map.
	Source struct {
		ID     string
		Code   string
		Map    []byte
		Target api.Target
	}

	// Result is the executable wrapper for a module and what the rewriter
	// learned about its imports and exports.
	Result struct {
		ID       string
		Code     string
		Map      []byte
		Imports  []Import
		Exports  []Binding
		Native   []NativeImport
		Warnings []string
	}
)

// Rewrite turns an ES module into a function expression whose static
// imports are requested through the injected require, in declaration order,
// before any top-level statement of the module runs.
func Rewrite(src Source) (*Result, error) {
	a, err := analyze(src.ID, src.Code, scan(src.Code))
	if err != nil {
		return nil, err
	}

	body := a.apply()
	if len(src.Map) > 0 {
		body += "\n" + mapComment + base64.StdEncoding.EncodeToString(src.Map)
	}

	target := src.Target
	if target == api.DefaultTarget {
		target = DefaultTarget
	}
	out := api.Transform(body, api.TransformOptions{
		Loader:         api.LoaderJS,
		Format:         api.FormatCommonJS,
		Target:         target,
		Sourcemap:      api.SourceMapExternal,
		SourcesContent: api.SourcesContentInclude,
		Sourcefile:     src.ID,
		LogLevel:       api.LogLevelSilent,
	})
	if len(out.Errors) > 0 {
		return nil, &TransformError{ID: src.ID, Messages: messages(out.Errors)}
	}

	code := string(out.Code)
	header := wrapperHeader + a.prologue()
	if loc := exportsPublished.FindStringIndex(code); loc != nil {
		code = code[:loc[1]] + linkCall + code[loc[1]:]
	} else {
		header += linkCall
	}

	sourceMap, err := shiftMap(out.Map, 1)
	if err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", src.ID, err)
	}

	imports, exports, native := a.result()
	res := &Result{
		ID:      src.ID,
		Map:     sourceMap,
		Imports: imports,
		Exports: exports,
		Native:  native,
		Code: header + "\n" + strings.TrimRight(code, "\n") + wrapperFooter + "\n" +
			mapComment + base64.StdEncoding.EncodeToString(sourceMap),
	}
	for _, w := range messages(out.Warnings) {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d:%d: %s", w.Line, w.Column, w.Text))
	}
	slog.Debug("module rewritten", "module", src.ID, "imports", len(imports), "exports", len(exports), "native", len(native))
	return res, nil
}

// Links returns the specifiers requested before the module body runs:
// import declarations and re-exports, in source order.
func (r *Result) Links() []string {
	var specs []string
	for _, imp := range r.Imports {
		if imp.Kind == ImportStatic || imp.Kind == ImportReExport {
			specs = append(specs, imp.Spec)
		}
	}
	return specs
}

// Constants returns the exported names safe to materialise as read-only
// values once the module has finished executing.
func (r *Result) Constants() []string {
	var names []string
	for _, b := range r.Exports {
		if b.Kind == Constant && b.Name != "*" {
			names = append(names, b.Name)
		}
	}
	return names
}

// IsLive reports whether the exported name is read through a getter. Names
// the rewriter cannot see are treated as live.
func (r *Result) IsLive(name string) bool {
	for _, b := range r.Exports {
		if b.Name == name {
			return b.Kind != Constant
		}
	}
	return true
}

// shiftMap moves every mapping down by lines to account for the wrapper
// header.
func shiftMap(raw []byte, lines int) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode source map: %w", err)
	}
	mappings, _ := m["mappings"].(string)
	m["mappings"] = strings.Repeat(";", lines) + mappings
	return json.Marshal(m)
}

func messages(in []api.Message) []Message {
	out := make([]Message, 0, len(in))
	for _, msg := range in {
		m := Message{Text: msg.Text}
		if msg.Location != nil {
			m.Line = msg.Location.Line
			m.Column = msg.Location.Column + 1
		}
		out = append(out, m)
	}
	return out
}
