// SPDX-License-Identifier: MPL-2.0

// Package transform turns module sources into ES module text for the
// rewriter. The default FSPipeline reads files (or registered virtual
// sources) and strips TypeScript and JSX with esbuild.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/lazymod/lazymod/pkg/types"
)

var (
	// ErrSourceNotFound is returned when neither the file system nor the
	// virtual registry holds a source for the id.
	ErrSourceNotFound = errors.New("module source not found")

	// ErrInvalidTarget is returned by ParseTarget for unknown language levels.
	ErrInvalidTarget = errors.New("invalid language target")
)

// Defaults for JSX lowering.
const (
	DefaultJSXFactory  = "h"
	DefaultJSXFragment = "Fragment"
)

type (
	// Output is transformed ES module text and an optional source map back
	// to the original file.
	Output struct {
		Code string
		Map  []byte
	}

	// Pipeline produces the source of a module by id.
	Pipeline interface {
		Transform(ctx context.Context, id types.ModuleID) (*Output, error)
	}

	// PipelineFunc adapts a function to Pipeline.
	PipelineFunc func(ctx context.Context, id types.ModuleID) (*Output, error)

	// Options configures an FSPipeline.
	Options struct {
		// Target is the language level esbuild lowers TypeScript and JSX to.
		Target api.Target
		// JSXFactory and JSXFragment name the functions JSX compiles to.
		JSXFactory  string
		JSXFragment string
		// ReadFile overrides os.ReadFile, mainly for tests.
		ReadFile func(path string) ([]byte, error)
	}

	// FSPipeline is the default Pipeline.
	FSPipeline struct {
		opts Options

		mu      sync.RWMutex
		virtual map[types.ModuleID]string
	}
)

var targets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

var loaders = map[string]api.Loader{
	".ts":  api.LoaderTS,
	".mts": api.LoaderTS,
	".cts": api.LoaderTS,
	".tsx": api.LoaderTSX,
	".jsx": api.LoaderJSX,
}

// Transform calls f(ctx, id).
func (f PipelineFunc) Transform(ctx context.Context, id types.ModuleID) (*Output, error) {
	return f(ctx, id)
}

// ParseTarget maps a configuration target name such as "es2017" to esbuild.
func ParseTarget(name string) (api.Target, error) {
	if t, ok := targets[strings.ToLower(name)]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTarget, name)
}

// NeedsTransform reports whether a file with this name is TypeScript or JSX.
func NeedsTransform(name string) bool {
	_, ok := loaders[strings.ToLower(filepath.Ext(stripQuery(name)))]
	return ok
}

// NewFSPipeline creates an FSPipeline, filling unset options with defaults.
func NewFSPipeline(opts Options) *FSPipeline {
	if opts.Target == api.DefaultTarget {
		opts.Target = api.ES2017
	}
	if opts.JSXFactory == "" {
		opts.JSXFactory = DefaultJSXFactory
	}
	if opts.JSXFragment == "" {
		opts.JSXFragment = DefaultJSXFragment
	}
	if opts.ReadFile == nil {
		opts.ReadFile = os.ReadFile
	}
	return &FSPipeline{opts: opts, virtual: make(map[types.ModuleID]string)}
}

// Register installs or replaces the source of a virtual module.
func (p *FSPipeline) Register(id types.ModuleID, source string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.virtual[id] = source
}

// Unregister removes a virtual module source.
func (p *FSPipeline) Unregister(id types.ModuleID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.virtual, id)
}

// HasVirtual reports whether id has a registered source.
func (p *FSPipeline) HasVirtual(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.virtual[types.ModuleID(id)]
	return ok
}

// Transform returns the module source. Plain JavaScript is returned as is;
// TypeScript and JSX are stripped with esbuild and carry a source map.
func (p *FSPipeline) Transform(ctx context.Context, id types.ModuleID) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := p.source(id)
	if err != nil {
		return nil, err
	}

	path := stripQuery(string(id))
	loader, ok := loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return &Output{Code: source}, nil
	}

	result := api.Transform(source, api.TransformOptions{
		Loader:         loader,
		Format:         api.FormatDefault,
		Target:         p.opts.Target,
		JSX:            api.JSXTransform,
		JSXFactory:     p.opts.JSXFactory,
		JSXFragment:    p.opts.JSXFragment,
		Sourcemap:      api.SourceMapExternal,
		SourcesContent: api.SourcesContentInclude,
		Sourcefile:     path,
		LogLevel:       api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, &Error{ID: id, Messages: result.Errors}
	}
	slog.Debug("module transformed", "module", id, "bytes", len(result.Code))
	return &Output{Code: string(result.Code), Map: result.Map}, nil
}

func (p *FSPipeline) source(id types.ModuleID) (string, error) {
	p.mu.RLock()
	src, ok := p.virtual[id]
	p.mu.RUnlock()
	if ok {
		return src, nil
	}

	data, err := p.opts.ReadFile(stripQuery(string(id)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSourceNotFound, id)
		}
		return "", fmt.Errorf("read module %s: %w", id, err)
	}
	return string(data), nil
}

// stripQuery drops a "?query" suffix used to key virtual variants of a file.
func stripQuery(id string) string {
	if i := strings.IndexByte(id, '?'); i >= 0 {
		return id[:i]
	}
	return id
}
