// SPDX-License-Identifier: MPL-2.0

package rewrite

import (
	"fmt"
	"strconv"
	"strings"
)

type (
	// BindingKind says how an importer observes an exported or imported name.
	BindingKind uint8

	// ImportKind distinguishes the ways a module names a dependency.
	ImportKind uint8

	// Binding is one exported or imported name. For exports Name is the
	// exported name ("*" for export-all); for imports it is the imported name
	// ("default", "*" for namespaces). Local is the module-scope identifier,
	// empty for expressions and re-exports. Source is the specifier a
	// re-export or import comes from.
	Binding struct {
		Name   string
		Local  string
		Kind   BindingKind
		Source string
	}

	// Import is a dependency request found in the module, in source order.
	Import struct {
		Spec     string
		Kind     ImportKind
		Line     int
		Column   int
		Bindings []Binding
	}

	// NativeImport is an import statement that bypasses rewriting and is
	// served by the legacy synchronous loader.
	NativeImport struct {
		Spec     string
		Line     int
		Bindings []Binding
	}

	declKind uint8

	pendingExport struct {
		binding Binding
		// fromList marks export { local as name } entries, classified once
		// every declaration of the module is known.
		fromList bool
	}

	analyzer struct {
		id         string
		src        string
		toks       []token
		lines      lineIndex
		decls      map[string]declKind
		reassigned map[string]bool
		exported   map[string]bool

		imports []Import
		native  []NativeImport
		exports []pendingExport
		edits   []edit
	}

	// edit replaces src[start:end] with text of the same byte length.
	edit struct {
		start int
		end   int
		text  string
	}

	specifier struct {
		name  string
		alias string
	}
)

const (
	// Live bindings are read through a getter on every access.
	Live BindingKind = iota + 1
	// Constant bindings are never reassigned and may be copied once.
	Constant
)

const (
	// ImportStatic is an import declaration.
	ImportStatic ImportKind = iota + 1
	// ImportReExport is an export ... from declaration.
	ImportReExport
	// ImportDynamic is an import() call with a literal specifier.
	ImportDynamic
)

const (
	declVar declKind = iota + 1
	declLet
	declConst
	declFunction
	declClass
	declImportDefault
	declImportNamed
	declImportNamespace
)

// NativePrefix marks a specifier as served by the legacy loader, the same
// as annotating the import with a /* @native */ comment.
const NativePrefix = "native:"

var assignOps = map[string]bool{
	"=": true, "+=": true, "-=": true, "*=": true, "/=": true, "%=": true,
	"**=": true, "<<=": true, ">>=": true, ">>>=": true, "&=": true, "|=": true,
	"^=": true, "&&=": true, "||=": true, "??=": true,
}

func (k BindingKind) String() string {
	switch k {
	case Live:
		return "live"
	case Constant:
		return "constant"
	default:
		return "unknown"
	}
}

func (k ImportKind) String() string {
	switch k {
	case ImportStatic:
		return "static"
	case ImportReExport:
		return "re-export"
	case ImportDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}

func analyze(id, src string, toks []token) (*analyzer, error) {
	a := &analyzer{
		id:         id,
		src:        src,
		toks:       toks,
		lines:      newLineIndex(src),
		decls:      make(map[string]declKind),
		reassigned: make(map[string]bool),
		exported:   make(map[string]bool),
	}
	if strings.HasPrefix(src, "#!") {
		a.blank(0, strings.IndexAny(src+"\n", "\r\n"))
	}
	a.scanReassignments()
	a.scanImportExpressions()

	for i := 0; i < len(toks); {
		next, err := a.statement(i)
		if err != nil {
			return nil, err
		}
		i = next
	}
	a.classify()
	return a, nil
}

func (a *analyzer) tok(i int) token {
	if i < 0 || i >= len(a.toks) {
		return token{}
	}
	return a.toks[i]
}

func (a *analyzer) unsupported(t token, format string, args ...any) error {
	line, col := a.lines.position(t.start)
	return &UnsupportedSyntaxError{ID: a.id, Line: line, Column: col, Reason: fmt.Sprintf(format, args...)}
}

func (a *analyzer) statement(i int) (int, error) {
	t := a.toks[i]
	if t.kind != tokIdent || t.depth != 0 || !a.statementStart(i) {
		return i + 1, nil
	}
	switch t.text {
	case "import":
		if n := a.tok(i + 1).text; n == "(" || n == "." {
			return i + 1, nil
		}
		return a.importStatement(i)
	case "export":
		return a.exportStatement(i)
	case "const", "let", "var":
		n := a.tok(i + 1)
		if n.kind == tokIdent || n.text == "{" || n.text == "[" {
			a.declaration(i)
		}
	case "function", "async", "class":
		a.namedDeclaration(i)
	}
	return i + 1, nil
}

func (a *analyzer) statementStart(i int) bool {
	if i == 0 {
		return true
	}
	prev := a.toks[i-1]
	if prev.text == "." || prev.text == "?." {
		return false
	}
	return a.toks[i].nl || prev.text == ";" || prev.text == "}"
}

// statementEnd returns the index just past the statement beginning at i:
// after a ";" at depth, before the enclosing closer, or at a line break
// where automatic semicolon insertion applies.
func (a *analyzer) statementEnd(i int) int {
	if i >= len(a.toks) {
		return len(a.toks)
	}
	base := a.toks[i].depth
	for j := i; j < len(a.toks); j++ {
		t := a.toks[j]
		if t.depth < base {
			return j
		}
		if t.depth != base {
			continue
		}
		if t.kind == tokPunct && t.text == ";" {
			return j + 1
		}
		if j > i && t.nl && endsExpression(a.toks[j-1]) && beginsStatement(t) {
			return j
		}
	}
	return len(a.toks)
}

func endsExpression(t token) bool {
	switch t.kind {
	case tokIdent, tokNumber, tokString, tokRegex, tokPrivate:
		return true
	case tokTemplate:
		return strings.HasSuffix(t.text, "`")
	case tokPunct:
		switch t.text {
		case ")", "]", "}", "++", "--":
			return true
		}
	}
	return false
}

func beginsStatement(t token) bool {
	switch t.kind {
	case tokIdent:
		return t.text != "in" && t.text != "instanceof"
	case tokNumber, tokString, tokPrivate:
		return true
	case tokPunct:
		switch t.text {
		case "{", "!", "~", "++", "--":
			return true
		}
	}
	return false
}

// matching returns the index of the bracket closing the opener at i.
func (a *analyzer) matching(i int) int {
	depth := a.toks[i].depth
	for j := i + 1; j < len(a.toks); j++ {
		if a.toks[j].depth == depth && a.toks[j].kind == tokPunct {
			switch a.toks[j].text {
			case ")", "]", "}":
				return j
			}
		}
	}
	return len(a.toks) - 1
}

// afterSpec skips import attributes and an optional semicolon following
// the specifier string at i-1.
func (a *analyzer) afterSpec(i int) int {
	if t := a.tok(i); (t.text == "with" || t.text == "assert") && !t.nl && a.tok(i+1).text == "{" {
		i = a.matching(i+1) + 1
	}
	if a.tok(i).text == ";" {
		i++
	}
	return i
}

func (a *analyzer) importStatement(i int) (int, error) {
	start := a.toks[i]
	var bindings []Binding
	j := i + 1

	if a.tok(j).kind != tokString {
		if t := a.tok(j); t.kind == tokIdent && !(t.text == "from" && a.tok(j+1).kind == tokString) {
			bindings = append(bindings, Binding{Name: "default", Local: t.text})
			j++
			if a.tok(j).text == "," {
				j++
			}
		}
		switch a.tok(j).text {
		case "*":
			if a.tok(j+1).text != "as" || a.tok(j+2).kind != tokIdent {
				return 0, a.unsupported(a.tok(j), "malformed namespace import")
			}
			bindings = append(bindings, Binding{Name: "*", Local: a.tok(j + 2).text})
			j += 3
		case "{":
			end := a.matching(j)
			for _, s := range a.specifiers(j+1, end) {
				bindings = append(bindings, Binding{Name: s.name, Local: s.alias})
			}
			j = end + 1
		}
		if a.tok(j).text != "from" {
			return 0, a.unsupported(start, "malformed import declaration")
		}
		j++
	}

	specTok := a.tok(j)
	if specTok.kind != tokString {
		return 0, a.unsupported(start, "import declaration without a module specifier")
	}
	spec := unquote(specTok.text)
	end := a.afterSpec(j + 1)

	native := strings.HasPrefix(spec, NativePrefix)
	for k := i; k < end && !native; k++ {
		native = a.toks[k].native
	}
	for k := range bindings {
		b := &bindings[k]
		switch b.Name {
		case "*":
			a.decls[b.Local] = declImportNamespace
		case "default":
			a.decls[b.Local] = declImportDefault
		default:
			a.decls[b.Local] = declImportNamed
		}
		b.Source = spec
	}

	line, col := a.lines.position(specTok.start)
	if native {
		a.native = append(a.native, NativeImport{
			Spec:     strings.TrimPrefix(spec, NativePrefix),
			Line:     line,
			Bindings: bindings,
		})
		a.blank(start.start, a.toks[end-1].end)
		return end, nil
	}
	a.imports = append(a.imports, Import{Spec: spec, Kind: ImportStatic, Line: line, Column: col, Bindings: bindings})
	return end, nil
}

func (a *analyzer) exportStatement(i int) (int, error) {
	n := a.tok(i + 1)
	switch {
	case n.text == "default":
		return a.exportDefault(i + 2), nil

	case n.text == "*":
		j, name := i+2, "*"
		if a.tok(j).text == "as" {
			name = unquote(a.tok(j + 1).text)
			j += 2
		}
		if a.tok(j).text != "from" || a.tok(j+1).kind != tokString {
			return 0, a.unsupported(n, "malformed export-all declaration")
		}
		spec := unquote(a.tok(j + 1).text)
		a.addReExport(a.tok(j+1), spec, []Binding{{Name: name, Kind: Live, Source: spec}})
		return a.afterSpec(j + 2), nil

	case n.text == "{":
		end := a.matching(i + 1)
		specs := a.specifiers(i+2, end)
		if a.tok(end+1).text == "from" && a.tok(end+2).kind == tokString {
			spec := unquote(a.tok(end + 2).text)
			bindings := make([]Binding, 0, len(specs))
			for _, s := range specs {
				bindings = append(bindings, Binding{Name: s.alias, Kind: Live, Source: spec})
			}
			a.addReExport(a.tok(end+2), spec, bindings)
			return a.afterSpec(end + 3), nil
		}
		for _, s := range specs {
			a.exports = append(a.exports, pendingExport{
				binding:  Binding{Name: s.alias, Local: s.name},
				fromList: true,
			})
		}
		if a.tok(end+1).text == ";" {
			return end + 2, nil
		}
		return end + 1, nil

	case n.text == "const" || n.text == "let" || n.text == "var":
		decls, end := a.declarators(i + 2)
		if len(decls) > 1 {
			names := make([]string, 0, len(decls))
			for _, d := range decls {
				names = append(names, strings.Join(d, ", "))
			}
			return 0, a.unsupported(a.toks[i],
				"export declaration with multiple declarators (%s) is not supported; export each binding from its own declaration",
				strings.Join(names, "; "))
		}
		kind := declKindOf(n.text)
		for _, d := range decls {
			for _, name := range d {
				a.decls[name] = kind
				a.exports = append(a.exports, pendingExport{binding: Binding{Name: name, Local: name, Kind: a.declBinding(name, kind)}})
			}
		}
		return end, nil

	case n.text == "function" || n.text == "class" || (n.text == "async" && a.tok(i+2).text == "function"):
		if name, kind := a.namedDeclaration(i + 1); name != "" {
			a.exports = append(a.exports, pendingExport{binding: Binding{Name: name, Local: name, Kind: a.declBinding(name, kind)}})
		}
		return i + 2, nil
	}
	return i + 1, nil
}

func (a *analyzer) exportDefault(j int) int {
	t := a.tok(j)
	if t.text == "function" || t.text == "class" || (t.text == "async" && a.tok(j+1).text == "function") {
		name, kind := a.namedDeclaration(j)
		b := Binding{Name: "default", Local: name, Kind: Constant}
		if name != "" {
			b.Kind = a.declBinding(name, kind)
		}
		a.exports = append(a.exports, pendingExport{binding: b})
		return j + 1
	}
	a.exports = append(a.exports, pendingExport{binding: Binding{Name: "default", Kind: Constant}})
	return j
}

func (a *analyzer) addReExport(specTok token, spec string, bindings []Binding) {
	line, col := a.lines.position(specTok.start)
	a.imports = append(a.imports, Import{Spec: spec, Kind: ImportReExport, Line: line, Column: col})
	for _, b := range bindings {
		a.exports = append(a.exports, pendingExport{binding: b})
	}
}

// namedDeclaration records a function or class declaration at i and returns
// its name, or "" for an anonymous default export.
func (a *analyzer) namedDeclaration(i int) (string, declKind) {
	j, kind := i, declFunction
	if a.tok(j).text == "async" {
		if a.tok(j+1).text != "function" || a.tok(j+1).nl {
			return "", 0
		}
		j++
	}
	if a.tok(j).text == "class" {
		kind = declClass
	}
	j++
	if a.tok(j).text == "*" {
		j++
	}
	name := a.tok(j)
	if name.kind != tokIdent || name.text == "extends" {
		return "", kind
	}
	a.decls[name.text] = kind
	return name.text, kind
}

func (a *analyzer) declaration(i int) {
	kind := declKindOf(a.toks[i].text)
	decls, _ := a.declarators(i + 1)
	for _, d := range decls {
		for _, name := range d {
			a.decls[name] = kind
		}
	}
}

// declarators splits the declaration list starting at i and returns the
// names bound by each declarator plus the index past the statement.
func (a *analyzer) declarators(i int) ([][]string, int) {
	end := a.statementEnd(i)
	if i >= end {
		return nil, end
	}
	stop := end
	if a.tok(stop-1).text == ";" && a.tok(stop-1).depth == a.toks[i].depth {
		stop--
	}
	var decls [][]string
	for _, part := range splitTop(a.toks[i:stop], a.toks[i].depth) {
		eq := len(part)
		for k, t := range part {
			if t.depth == part[0].depth && t.kind == tokPunct && t.text == "=" {
				eq = k
				break
			}
		}
		decls = append(decls, patternNames(part[:eq]))
	}
	return decls, end
}

func (a *analyzer) declBinding(name string, kind declKind) BindingKind {
	switch kind {
	case declConst, declFunction, declClass:
		if !a.reassigned[name] {
			return Constant
		}
	}
	return Live
}

// specifiers parses "a, b as c, 'd' as e" between from and to.
func (a *analyzer) specifiers(from, to int) []specifier {
	if from >= to {
		return nil
	}
	var out []specifier
	for _, part := range splitTop(a.toks[from:to], a.toks[from].depth) {
		if len(part) == 0 {
			continue
		}
		s := specifier{name: unquote(part[0].text)}
		s.alias = s.name
		if len(part) >= 3 && part[1].text == "as" {
			s.alias = unquote(part[2].text)
		}
		out = append(out, s)
	}
	return out
}

// scanReassignments records every identifier that is the target of an
// assignment or update expression outside its own declaration.
func (a *analyzer) scanReassignments() {
	for i, t := range a.toks {
		if t.kind != tokIdent {
			continue
		}
		prev, next := a.tok(i-1), a.tok(i+1)
		switch prev.text {
		case ".", "?.", "const", "let", "var", "function", "class", "import":
			continue
		}
		if next.kind == tokPunct && (assignOps[next.text] || next.text == "++" || next.text == "--") {
			a.reassigned[t.text] = true
		}
		if prev.kind == tokPunct && (prev.text == "++" || prev.text == "--") {
			a.reassigned[t.text] = true
		}
	}
}

// scanImportExpressions rewrites import( to __lzdi( and import.meta to
// __lzim.meta anywhere in the module without moving line or column
// positions.
func (a *analyzer) scanImportExpressions() {
	for i, t := range a.toks {
		if t.kind != tokIdent || t.text != "import" {
			continue
		}
		if prev := a.tok(i - 1).text; prev == "." || prev == "?." {
			continue
		}
		switch next := a.tok(i + 1); {
		case next.text == "(":
			a.replace(t.start, t.end, "__lzdi")
			if arg := a.tok(i + 2); arg.kind == tokString {
				if closer := a.tok(i + 3).text; closer == ")" || closer == "," {
					line, col := a.lines.position(arg.start)
					a.imports = append(a.imports, Import{Spec: unquote(arg.text), Kind: ImportDynamic, Line: line, Column: col})
				}
			}
		case next.text == "." && a.tok(i+2).text == "meta":
			a.replace(t.start, t.end, "__lzim")
		}
	}
}

func (a *analyzer) classify() {
	for k := range a.exports {
		e := &a.exports[k]
		if e.binding.Local != "" {
			a.exported[e.binding.Local] = true
		}
		if !e.fromList {
			continue
		}
		switch kind := a.decls[e.binding.Local]; kind {
		case declConst, declFunction, declClass:
			e.binding.Kind = a.declBinding(e.binding.Local, kind)
		default:
			// let/var, imported bindings and names with no visible
			// declaration are all read through a getter.
			e.binding.Kind = Live
		}
	}

	for k := range a.imports {
		for b := range a.imports[k].Bindings {
			binding := &a.imports[k].Bindings[b]
			switch binding.Name {
			case "*":
				binding.Kind = Constant
			case "default":
				binding.Kind = Constant
				if a.reassigned[binding.Local] || a.exported[binding.Local] {
					binding.Kind = Live
				}
			default:
				binding.Kind = Live
			}
		}
	}
	for k := range a.native {
		for b := range a.native[k].Bindings {
			a.native[k].Bindings[b].Kind = Constant
		}
	}
}

func (a *analyzer) replace(start, end int, text string) {
	a.edits = append(a.edits, edit{start: start, end: end, text: fill(a.src[start:end], text)})
}

func (a *analyzer) blank(start, end int) {
	a.edits = append(a.edits, edit{start: start, end: end, text: fill(a.src[start:end], "")})
}

// apply returns src with every edit applied. Edits never overlap and keep
// byte lengths, so offsets stay valid.
func (a *analyzer) apply() string {
	if len(a.edits) == 0 {
		return a.src
	}
	buf := []byte(a.src)
	for _, e := range a.edits {
		copy(buf[e.start:e.end], e.text)
	}
	return string(buf)
}

// prologue renders the native imports as const declarations for the
// wrapper header line.
func (a *analyzer) prologue() string {
	var sb strings.Builder
	for _, n := range a.native {
		call := "__lz_native(" + strconv.Quote(n.Spec) + ")"
		if len(n.Bindings) == 0 {
			sb.WriteString(call + "; ")
			continue
		}
		var named []string
		for _, b := range n.Bindings {
			switch b.Name {
			case "*", "default":
				fmt.Fprintf(&sb, "const %s = %s; ", b.Local, call)
			default:
				key := b.Name
				if !isIdentifier(key) {
					key = strconv.Quote(key)
				}
				if key == b.Local {
					named = append(named, key)
				} else {
					named = append(named, key+": "+b.Local)
				}
			}
		}
		if len(named) > 0 {
			fmt.Fprintf(&sb, "const { %s } = %s; ", strings.Join(named, ", "), call)
		}
	}
	return sb.String()
}

func (a *analyzer) result() ([]Import, []Binding, []NativeImport) {
	exports := make([]Binding, 0, len(a.exports))
	for _, e := range a.exports {
		exports = append(exports, e.binding)
	}
	imports := make([]Import, len(a.imports))
	copy(imports, a.imports)
	sortImports(imports)
	return imports, exports, a.native
}

// sortImports orders imports by source position; dynamic imports are
// collected in a separate pass and interleave with the declarations.
func sortImports(imports []Import) {
	for i := 1; i < len(imports); i++ {
		for j := i; j > 0 && before(imports[j], imports[j-1]); j-- {
			imports[j], imports[j-1] = imports[j-1], imports[j]
		}
	}
}

func before(x, y Import) bool {
	if x.Line != y.Line {
		return x.Line < y.Line
	}
	return x.Column < y.Column
}

func splitTop(toks []token, depth int) [][]token {
	var parts [][]token
	start := 0
	for i, t := range toks {
		if t.depth == depth && t.kind == tokPunct && t.text == "," {
			parts = append(parts, toks[start:i])
			start = i + 1
		}
	}
	return append(parts, toks[start:])
}

// patternNames lists the identifiers bound by a binding pattern.
func patternNames(toks []token) []string {
	if len(toks) == 0 {
		return nil
	}
	first := toks[0]
	if first.kind == tokIdent {
		return []string{first.text}
	}
	if first.text != "{" && first.text != "[" {
		return nil
	}
	inner := toks[1:]
	if n := len(inner); n > 0 && inner[n-1].depth == first.depth {
		inner = inner[:n-1]
	}
	var names []string
	for _, el := range splitTop(inner, first.depth+1) {
		names = append(names, elementNames(el, first.text == "{")...)
	}
	return names
}

func elementNames(el []token, object bool) []string {
	if len(el) == 0 {
		return nil
	}
	depth := el[0].depth
	for i, t := range el {
		if t.depth == depth && t.kind == tokPunct && t.text == "=" {
			el = el[:i]
			break
		}
	}
	if len(el) == 0 {
		return nil
	}
	if el[0].text == "..." {
		return patternNames(el[1:])
	}
	if !object {
		return patternNames(el)
	}
	for i, t := range el {
		if t.depth == depth && t.text == ":" {
			return patternNames(el[i+1:])
		}
	}
	if el[0].kind == tokIdent {
		return []string{el[0].text}
	}
	return nil
}

func declKindOf(keyword string) declKind {
	switch keyword {
	case "const":
		return declConst
	case "let":
		return declLet
	default:
		return declVar
	}
}

// fill pads text with spaces to the length of span, keeping the line
// breaks of span so line numbers never move.
func fill(span, text string) string {
	buf := []byte(span)
	j := 0
	for i := range buf {
		switch {
		case buf[i] == '\n' || buf[i] == '\r':
		case j < len(text):
			buf[i] = text[j]
			j++
		default:
			buf[i] = ' '
		}
	}
	return string(buf)
}

func unquote(s string) string {
	if len(s) < 2 || (s[0] != '"' && s[0] != '\'') {
		return s
	}
	if s[0] == '\'' {
		inner := strings.ReplaceAll(s[1:len(s)-1], `\'`, `'`)
		s = `"` + strings.ReplaceAll(inner, `"`, `\"`) + `"`
	}
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return s[1 : len(s)-1]
}

func isIdentifier(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentPart(s[i]) {
			return false
		}
	}
	return true
}
