// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lazymod/lazymod/internal/testutil"
	"github.com/lazymod/lazymod/pkg/types"
)

func newTestTree(t *testing.T) (string, *FS) {
	t.Helper()
	root := testutil.WriteTree(t, map[string]string{
		"src/main.ts":                           "",
		"src/util.js":                           "",
		"src/lib/index.ts":                      "",
		"src/data/config.yaml":                  "",
		"src/legacy.cjs":                        "",
		"src/widgets/button.tsx":                "",
		"node_modules/esm-pkg/package.json":     `{"name":"esm-pkg","module":"dist/index.mjs","main":"dist/index.cjs"}`,
		"node_modules/esm-pkg/dist/index.mjs":   "",
		"node_modules/esm-pkg/dist/index.cjs":   "",
		"node_modules/cjs-pkg/package.json":     `{"name":"cjs-pkg","main":"lib/main.js"}`,
		"node_modules/cjs-pkg/lib/main.js":      "",
		"node_modules/cjs-pkg/lib/extra.js":     "",
		"node_modules/typed-pkg/package.json":   `{"name":"typed-pkg","type":"module"}`,
		"node_modules/typed-pkg/index.js":       "",
		"node_modules/@scope/cond/package.json": `{"exports":{".":{"import":"./esm.js","require":"./cjs.js"},"./feature":"./feature.js"}}`,
		"node_modules/@scope/cond/esm.js":       "",
		"node_modules/@scope/cond/cjs.js":       "",
		"node_modules/@scope/cond/feature.js":   "",
	})
	r := NewFS(Options{
		Root:          root,
		VendorDirs:    []string{"**/node_modules/**"},
		Aliases:       map[string]string{"@app": "./src"},
		VirtualPrefix: "virtual:",
		IsBuiltin:     func(name string) bool { return name == "path" },
		IsVirtual:     func(id string) bool { return id == "/registered/mod.ts" },
	})
	return root, r
}

func TestResolve(t *testing.T) {
	t.Parallel()

	root, r := newTestTree(t)
	main := filepath.Join(root, "src", "main.ts")
	at := func(rel string) types.ModuleID {
		return types.ModuleID(filepath.Join(root, filepath.FromSlash(rel)))
	}

	tests := []struct {
		name     string
		spec     string
		importer string
		want     Target
	}{
		{"relative with extension", "./util.js", string(main), Target{ID: at("src/util.js"), Kind: types.KindLocal, Reloadable: true, Relative: true}},
		{"relative extensionless", "./util", string(main), Target{ID: at("src/util.js"), Kind: types.KindLocal, Reloadable: true, Relative: true}},
		{"directory index", "./lib", string(main), Target{ID: at("src/lib/index.ts"), Kind: types.KindLocal, Reloadable: true, Relative: true}},
		{"tsx probing", "./widgets/button", string(main), Target{ID: at("src/widgets/button.tsx"), Kind: types.KindLocal, Reloadable: true, Relative: true}},
		{"data file", "./data/config.yaml", string(main), Target{ID: at("src/data/config.yaml"), Kind: types.KindData, Reloadable: true, Relative: true}},
		{"cjs file", "./legacy.cjs", string(main), Target{ID: at("src/legacy.cjs"), Kind: types.KindExternal, Reloadable: true, Relative: true}},
		{"query suffix", "./util.js?raw", string(main), Target{ID: at("src/util.js") + "?raw", Kind: types.KindVirtual, Reloadable: true, Relative: true}},
		{"alias", "@app/util", string(main), Target{ID: at("src/util.js"), Kind: types.KindLocal, Reloadable: true}},
		{"importer-less", "./src/util.js", "", Target{ID: at("src/util.js"), Kind: types.KindLocal, Reloadable: true, Relative: true}},
		{"module field", "esm-pkg", string(main), Target{ID: at("node_modules/esm-pkg/dist/index.mjs"), Kind: types.KindLocal}},
		{"commonjs package", "cjs-pkg", string(main), Target{ID: at("node_modules/cjs-pkg/lib/main.js"), Kind: types.KindExternal}},
		{"commonjs subpath", "cjs-pkg/lib/extra", string(main), Target{ID: at("node_modules/cjs-pkg/lib/extra.js"), Kind: types.KindExternal}},
		{"type module package", "typed-pkg", string(main), Target{ID: at("node_modules/typed-pkg/index.js"), Kind: types.KindLocal}},
		{"conditional exports", "@scope/cond", string(main), Target{ID: at("node_modules/@scope/cond/esm.js"), Kind: types.KindLocal}},
		{"exports subpath", "@scope/cond/feature", string(main), Target{ID: at("node_modules/@scope/cond/feature.js"), Kind: types.KindExternal}},
		{"builtin", "path", string(main), Target{ID: "path", Kind: types.KindExternal}},
		{"node prefixed builtin", "node:path", string(main), Target{ID: "path", Kind: types.KindExternal}},
		{"virtual prefix", "virtual:env", string(main), Target{ID: "virtual:env", Kind: types.KindVirtual, Reloadable: true}},
		{"registered virtual", "/registered/mod.ts", string(main), Target{ID: "/registered/mod.ts", Kind: types.KindVirtual, Reloadable: true}},
		{"url", "https://cdn.example.com/a.js", string(main), Target{ID: "https://cdn.example.com/a.js", Kind: types.KindRemote}},
		{"relative to url", "../b.js", "https://cdn.example.com/x/a.js", Target{ID: "https://cdn.example.com/b.js", Kind: types.KindRemote, Relative: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := r.Resolve(tt.spec, tt.importer, false)
			if !ok {
				t.Fatalf("Resolve(%q) not resolved", tt.spec)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%q) mismatch (-want +got):\n%s", tt.spec, diff)
			}
		})
	}
}

func TestResolveUnresolved(t *testing.T) {
	t.Parallel()

	root, r := newTestTree(t)
	main := filepath.Join(root, "src", "main.ts")

	for _, spec := range []string{"", "./missing", "missing-pkg", "cjs-pkg/nope"} {
		if got, ok := r.Resolve(spec, main, false); ok {
			t.Errorf("Resolve(%q) = %+v, want unresolved", spec, got)
		}
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()

	root, r := newTestTree(t)
	dir := filepath.Join(root, "src")

	tests := []struct {
		spec string
		want string
	}{
		{"./legacy.cjs", filepath.Join(root, "src", "legacy.cjs")},
		{"./util", filepath.Join(root, "src", "util.js")},
		{"esm-pkg", filepath.Join(root, "node_modules", "esm-pkg", "dist", "index.cjs")},
		{"@scope/cond", filepath.Join(root, "node_modules", "@scope", "cond", "cjs.js")},
		{"node:path", "path"},
	}
	for _, tt := range tests {
		got, ok := r.Require(tt.spec, dir)
		if !ok {
			t.Fatalf("Require(%q) not resolved", tt.spec)
		}
		if got != tt.want {
			t.Errorf("Require(%q) = %q, want %q", tt.spec, got, tt.want)
		}
	}
}

func TestReloadable(t *testing.T) {
	t.Parallel()

	r := NewFS(Options{Root: "/proj", VendorDirs: []string{"**/node_modules/**", "/proj/vendor/**"}})
	tests := []struct {
		file string
		want bool
	}{
		{"/proj/src/a.ts", true},
		{"/proj/node_modules/x/index.js", false},
		{"/proj/vendor/lib.js", false},
	}
	for _, tt := range tests {
		if got := r.Reloadable(tt.file); got != tt.want {
			t.Errorf("Reloadable(%q) = %v, want %v", tt.file, got, tt.want)
		}
	}
}
