// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"slices"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"
)

const (
	ModuleNotFoundId Id = iota + 1
	UnsupportedSyntaxId
	CompileFailedId
	ExecutionFailedId
	ResolveTimeoutId
	ExportNotFoundId
	ConfigLoadFailedId
	RemoteImportFailedId
	DataImportFailedId
	DependencyCycleId
)

type (
	// Id identifies an entry of the issue catalog.
	Id int

	// MarkdownMsg is the Markdown body of an issue.
	MarkdownMsg string

	// HttpLink is a documentation or external link attached to an issue.
	HttpLink string

	Renderer interface {
		Render(in string, stylePath string) (string, error)
	}

	// Issue is a catalog entry describing a class of failure and the usual fixes.
	Issue struct {
		id       Id          // ID used to lookup the issue
		mdMsg    MarkdownMsg // Markdown text that will be rendered
		docLinks []HttpLink
		extLinks []HttpLink // external links that might be useful for the user
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the issue as terminal Markdown using the given glamour style.
func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n"
		extraMd += "## See also: "
		for _, link := range i.docLinks {
			extraMd += "- [" + string(link) + "]"
		}
		for _, link := range i.extLinks {
			extraMd += "- [" + string(link) + "]"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id: ModuleNotFoundId,
		mdMsg: `
# Module not found!

An import could not be mapped to a file, package, URL or virtual module.

## Things you can try:
- Check the spelling of the import and its extension
- Relative imports must start with ` + "`./`" + ` or ` + "`../`" + `
- Bare imports are looked up in ` + "`node_modules`" + ` next to the importer and its parents
- Declare an alias in ` + "`lazymod.cue`" + `:
~~~cue
aliases: {
  "@app": "./src"
}
~~~`,
	}

	unsupportedSyntaxIssue = &Issue{
		id: UnsupportedSyntaxId,
		mdMsg: `
# Unsupported module syntax!

The module uses a construct the loader refuses to guess about.

## Common causes:
- Exporting several names from one declaration:
~~~js
export const a = 1, b = 2
~~~

## Things you can try:
- Split the declaration:
~~~js
export const a = 1
export const b = 2
~~~`,
	}

	compileFailedIssue = &Issue{
		id: CompileFailedId,
		mdMsg: `
# Failed to compile module!

The source could not be transformed into an executable module.

## Things you can try:
- Check the reported line and column for syntax errors
- Make sure the file extension matches its content (` + "`.ts`" + `, ` + "`.tsx`" + `, ` + "`.jsx`" + `, ` + "`.js`" + `)
- Lower the ` + "`target`" + ` in ` + "`lazymod.cue`" + ` if newer syntax is rejected`,
	}

	executionFailedIssue = &Issue{
		id: ExecutionFailedId,
		mdMsg: `
# Module threw while executing!

A module's top-level code raised an exception. The import chain shows
which request led to the failing module.

## Things you can try:
- Fix the exception and save the file; the failure is cached until the module changes
- Run with verbose mode for the full error chain:
~~~
$ lazymod --verbose run ./src/main.ts
~~~`,
	}

	resolveTimeoutIssue = &Issue{
		id: ResolveTimeoutId,
		mdMsg: `
# Timed out waiting for a module!

The module did not finish loading in time. Loading continues in the
background, so a later request may succeed.

## Things you can try:
- Look at the pending chain for a module that blocks or loops forever
- Raise the limit in ` + "`lazymod.cue`" + `:
~~~cue
timeout: "2m"
~~~`,
	}

	exportNotFoundIssue = &Issue{
		id: ExportNotFoundId,
		mdMsg: `
# Export not found!

The requested name is not exported by the module.

## Things you can try:
- Check for typos in the import or the ` + "`--call`" + ` flag
- List the exports:
~~~
$ lazymod run ./src/module.ts
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

## Things you can try:
- Check ` + "`lazymod.cue`" + ` for CUE syntax errors
- Show the effective configuration:
~~~
$ lazymod config show
~~~`,
	}

	remoteImportFailedIssue = &Issue{
		id: RemoteImportFailedId,
		mdMsg: `
# Remote import failed!

A URL import could not be fetched.

## Things you can try:
- Check your network connection and the URL
- Remote imports can be disabled with ` + "`remote: enabled: false`" + ``,
	}

	dataImportFailedIssue = &Issue{
		id: DataImportFailedId,
		mdMsg: `
# Failed to decode data import!

Structured data files (json, yaml, toml, cue, hcl) are decoded by extension.

## Things you can try:
- Validate the file with the tool for its format
- Check that the extension matches the content`,
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Import cycle detected!

Cycles are supported, but a module that reads a binding from its cycle
partner during top-level execution may observe it before it is assigned.

## Things you can try:
- Move the read into a function called after loading
- Extract the shared values into a third module`,
	}

	issues = map[Id]*Issue{
		moduleNotFoundIssue.Id():     moduleNotFoundIssue,
		unsupportedSyntaxIssue.Id():  unsupportedSyntaxIssue,
		compileFailedIssue.Id():      compileFailedIssue,
		executionFailedIssue.Id():    executionFailedIssue,
		resolveTimeoutIssue.Id():     resolveTimeoutIssue,
		exportNotFoundIssue.Id():     exportNotFoundIssue,
		configLoadFailedIssue.Id():   configLoadFailedIssue,
		remoteImportFailedIssue.Id(): remoteImportFailedIssue,
		dataImportFailedIssue.Id():   dataImportFailedIssue,
		dependencyCycleIssue.Id():    dependencyCycleIssue,
	}
)

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
