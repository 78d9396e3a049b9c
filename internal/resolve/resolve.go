// SPDX-License-Identifier: MPL-2.0

// Package resolve maps import specifiers to canonical module identifiers and
// classifies what they point at (local source, virtual module, legacy
// CommonJS package, remote URL or structured data).
package resolve

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/lazymod/lazymod/internal/dataimport"
	"github.com/lazymod/lazymod/pkg/types"
)

// DefaultExtensions are probed, in order, for extensionless specifiers.
var DefaultExtensions = []string{".ts", ".tsx", ".mts", ".jsx", ".js", ".mjs", ".cjs", ".json"}

// requireExtensions are probed by the legacy loader, matching Node.
var requireExtensions = []string{".js", ".cjs", ".json"}

type (
	// Target is the tagged result of resolution.
	Target struct {
		// ID is the canonical identifier: absolute path, URL or virtual id.
		ID types.ModuleID
		// Kind selects how the loader obtains the exports.
		Kind types.TargetKind
		// Reloadable is false for files under vendor directories.
		Reloadable bool
		// Relative records that the specifier was spelled as a relative path.
		Relative bool
	}

	// Options configures an FS resolver.
	Options struct {
		// Root anchors aliases and importer-less requests.
		Root string
		// Extensions are probed for extensionless specifiers.
		Extensions []string
		// VendorDirs are doublestar globs of non-reloadable files.
		VendorDirs []string
		// Aliases rewrite a specifier prefix to a path relative to Root.
		Aliases map[string]string
		// VirtualPrefix marks synthetic identifiers, e.g. "virtual:".
		VirtualPrefix string
		// IsBuiltin reports Go builtin modules of the legacy loader.
		IsBuiltin func(name string) bool
		// IsVirtual reports registered virtual identifiers.
		IsVirtual func(id string) bool
	}

	// FS resolves specifiers against the file system.
	FS struct {
		opts    Options
		aliases []string // alias keys, longest first
	}

	packageJSON struct {
		Main    string          `json:"main"`
		Module  string          `json:"module"`
		Type    string          `json:"type"`
		Exports json.RawMessage `json:"exports"`
	}
)

// NewFS creates an FS resolver.
func NewFS(opts Options) *FS {
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if abs, err := filepath.Abs(opts.Root); err == nil {
		opts.Root = abs
	}
	r := &FS{opts: opts}
	for k := range opts.Aliases {
		r.aliases = append(r.aliases, k)
	}
	slices.SortFunc(r.aliases, func(a, b string) int { return len(b) - len(a) })
	return r
}

// Resolve maps spec, requested by importer, to a Target.
func (r *FS) Resolve(spec, importer string, _ bool) (Target, bool) {
	if spec == "" {
		return Target{}, false
	}
	if isURL(spec) {
		return Target{ID: types.ModuleID(spec), Kind: types.KindRemote}, true
	}
	if isURL(importer) && isPathSpec(spec) {
		base, err := url.Parse(importer)
		if err != nil {
			return Target{}, false
		}
		ref, err := url.Parse(spec)
		if err != nil {
			return Target{}, false
		}
		return Target{ID: types.ModuleID(base.ResolveReference(ref).String()), Kind: types.KindRemote, Relative: true}, true
	}
	if r.virtual(spec) {
		return Target{ID: types.ModuleID(spec), Kind: types.KindVirtual, Reloadable: true}, true
	}
	if name, ok := r.builtin(spec); ok {
		return Target{ID: types.ModuleID(name), Kind: types.KindExternal}, true
	}

	p, query, _ := strings.Cut(spec, "?")
	relative := isRelative(p)
	base := r.importerDir(importer)
	if aliased, ok := r.alias(p); ok {
		p, base = aliased, r.opts.Root
	}

	var (
		file string
		esm  bool
		ok   bool
	)
	if isRelative(p) || filepath.IsAbs(p) {
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, filepath.FromSlash(p))
		}
		file, ok = r.probe(p, r.opts.Extensions)
	} else {
		file, esm, ok = r.resolvePackage(p, base, true)
	}
	if !ok {
		slog.Debug("specifier not resolved", "spec", spec, "importer", importer)
		return Target{}, false
	}

	t := Target{ID: types.ModuleID(file), Relative: relative, Reloadable: !r.vendored(file)}
	switch {
	case query != "":
		t.ID += types.ModuleID("?" + query)
		t.Kind = types.KindVirtual
	case dataimport.IsDataPath(file):
		t.Kind = types.KindData
	default:
		t.Kind = r.classify(file, esm)
	}
	return t, true
}

// Require resolves a CommonJS require() from a file in dir. Builtins are
// returned unchanged.
func (r *FS) Require(spec, dir string) (string, bool) {
	if name, ok := r.builtin(spec); ok {
		return name, true
	}
	if isRelative(spec) || filepath.IsAbs(spec) {
		if !filepath.IsAbs(spec) {
			spec = filepath.Join(dir, filepath.FromSlash(spec))
		}
		return r.probe(spec, requireExtensions)
	}
	file, _, ok := r.resolvePackage(spec, dir, false)
	return file, ok
}

// Reloadable reports whether a file lies outside every vendor directory.
func (r *FS) Reloadable(file string) bool { return !r.vendored(file) }

func (r *FS) classify(file string, esm bool) types.TargetKind {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".cjs":
		return types.KindExternal
	case ".js":
		if esm || !r.vendored(file) {
			return types.KindLocal
		}
		if pkg, ok := nearestPackage(filepath.Dir(file)); ok && pkg.Type == "module" {
			return types.KindLocal
		}
		return types.KindExternal
	}
	return types.KindLocal
}

func (r *FS) virtual(spec string) bool {
	if r.opts.VirtualPrefix != "" && strings.HasPrefix(spec, r.opts.VirtualPrefix) {
		return true
	}
	return r.opts.IsVirtual != nil && r.opts.IsVirtual(spec)
}

func (r *FS) builtin(spec string) (string, bool) {
	if r.opts.IsBuiltin == nil {
		return "", false
	}
	name := strings.TrimPrefix(spec, "node:")
	if r.opts.IsBuiltin(name) {
		return name, true
	}
	return "", false
}

func (r *FS) alias(spec string) (string, bool) {
	for _, key := range r.aliases {
		if spec == key || strings.HasPrefix(spec, key+"/") {
			return r.opts.Aliases[key] + strings.TrimPrefix(spec, key), true
		}
	}
	return "", false
}

func (r *FS) importerDir(importer string) string {
	if importer == "" || isURL(importer) || !filepath.IsAbs(importer) {
		return r.opts.Root
	}
	file, _, _ := strings.Cut(importer, "?")
	return filepath.Dir(file)
}

func (r *FS) vendored(file string) bool {
	slashed := strings.TrimPrefix(filepath.ToSlash(file), "/")
	for _, pattern := range r.opts.VendorDirs {
		if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), slashed); ok {
			return true
		}
	}
	return false
}

// probe finds the file p names: p itself, p plus an extension, the entry
// point of a package directory, or an index file.
func (r *FS) probe(p string, exts []string) (string, bool) {
	p = filepath.Clean(p)
	if isFile(p) {
		return p, true
	}
	for _, ext := range exts {
		if isFile(p + ext) {
			return p + ext, true
		}
	}
	if !isDir(p) {
		return "", false
	}
	if pkg, ok := readPackage(p); ok && pkg.Main != "" {
		if file, ok := r.probe(filepath.Join(p, pkg.Main), exts); ok {
			return file, true
		}
	}
	for _, ext := range exts {
		if index := filepath.Join(p, "index"+ext); isFile(index) {
			return index, true
		}
	}
	return "", false
}

// resolvePackage walks node_modules directories upwards from dir. ES module
// entry points are preferred when esmFirst is set; the returned flag says
// whether one was chosen.
func (r *FS) resolvePackage(spec, dir string, esmFirst bool) (string, bool, bool) {
	name, sub := splitPackage(spec)
	exts := r.opts.Extensions
	if !esmFirst {
		exts = requireExtensions
	}
	for d := dir; ; d = filepath.Dir(d) {
		pkgDir := filepath.Join(d, "node_modules", filepath.FromSlash(name))
		if isDir(pkgDir) {
			return r.packageEntry(pkgDir, sub, exts, esmFirst)
		}
		if parent := filepath.Dir(d); parent == d {
			return "", false, false
		}
	}
}

func (r *FS) packageEntry(pkgDir, sub string, exts []string, esmFirst bool) (string, bool, bool) {
	pkg, _ := readPackage(pkgDir)
	if target, esm, ok := pkg.export("./"+sub, esmFirst); ok {
		if file, ok := r.probe(filepath.Join(pkgDir, filepath.FromSlash(target)), exts); ok {
			return file, esm, true
		}
	}
	if sub != "" {
		file, ok := r.probe(filepath.Join(pkgDir, filepath.FromSlash(sub)), exts)
		return file, false, ok
	}
	if esmFirst && pkg.Module != "" {
		if file, ok := r.probe(filepath.Join(pkgDir, pkg.Module), exts); ok {
			return file, true, true
		}
	}
	file, ok := r.probe(pkgDir, exts)
	return file, false, ok
}

// export looks subpath up in the package "exports" field. Only string
// targets and the import/module/require/default conditions are understood.
func (p packageJSON) export(subpath string, esmFirst bool) (string, bool, bool) {
	if len(p.Exports) == 0 {
		return "", false, false
	}
	subpath = strings.TrimSuffix(subpath, "/")
	if subpath == "." || subpath == "./" {
		subpath = "."
	}

	var root any
	if err := json.Unmarshal(p.Exports, &root); err != nil {
		return "", false, false
	}
	entry := root
	if m, ok := root.(map[string]any); ok && hasSubpathKeys(m) {
		if entry, ok = m[subpath]; !ok {
			return "", false, false
		}
	} else if subpath != "." {
		return "", false, false
	}
	return pickCondition(entry, esmFirst)
}

func hasSubpathKeys(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, ".") {
			return true
		}
	}
	return false
}

func pickCondition(entry any, esmFirst bool) (string, bool, bool) {
	switch v := entry.(type) {
	case string:
		return v, false, true
	case map[string]any:
		order := []string{"require", "default"}
		if esmFirst {
			order = []string{"import", "module", "default"}
		}
		for _, cond := range order {
			if next, ok := v[cond]; ok {
				target, _, ok := pickCondition(next, esmFirst)
				return target, ok && (cond == "import" || cond == "module"), ok
			}
		}
	}
	return "", false, false
}

func nearestPackage(dir string) (packageJSON, bool) {
	for d := dir; ; d = filepath.Dir(d) {
		if pkg, ok := readPackage(d); ok {
			return pkg, true
		}
		if parent := filepath.Dir(d); parent == d {
			return packageJSON{}, false
		}
	}
}

func readPackage(dir string) (packageJSON, bool) {
	var pkg packageJSON
	data, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return pkg, false
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		slog.Warn("ignoring malformed package.json", "dir", dir, "error", err)
		return pkg, false
	}
	return pkg, true
}

func splitPackage(spec string) (name, sub string) {
	parts := strings.SplitN(spec, "/", 3)
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			sub = parts[2]
		}
		return name, sub
	}
	name, sub, _ = strings.Cut(spec, "/")
	return name, sub
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isRelative(s string) bool {
	return s == "." || s == ".." || strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../")
}

func isPathSpec(s string) bool {
	return isRelative(s) || path.IsAbs(s)
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
