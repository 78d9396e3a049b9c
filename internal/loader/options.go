// SPDX-License-Identifier: MPL-2.0

package loader

import (
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/lazymod/lazymod/internal/config"
	"github.com/lazymod/lazymod/internal/graph"
	"github.com/lazymod/lazymod/internal/native"
	"github.com/lazymod/lazymod/internal/resolve"
	"github.com/lazymod/lazymod/internal/testutil"
	"github.com/lazymod/lazymod/internal/transform"
	"github.com/lazymod/lazymod/pkg/types"
)

// DefaultTimeout bounds a caller's wait for one Resolve.
const DefaultTimeout = 60 * time.Second

type (
	// IdentifierResolver maps a specifier requested by importer to a target.
	IdentifierResolver interface {
		Resolve(spec, importer string, dynamic bool) (resolve.Target, bool)
	}

	// Options configures a Loader. Every collaborator is optional.
	Options struct {
		// Pipeline produces module sources. Defaults to a transform.FSPipeline.
		Pipeline transform.Pipeline
		// Resolver defaults to a resolve.FS rooted at the working directory.
		// When it also implements native.Resolver it serves require() in
		// legacy modules.
		Resolver IdentifierResolver
		// Fetcher serves URL imports; nil disables them.
		Fetcher Fetcher
		// Natives are Go builtin modules for the legacy loader.
		Natives map[string]native.ModuleFunc
		// Timeout bounds each top-level Resolve. Defaults to DefaultTimeout.
		Timeout time.Duration
		// Target is the language level of rewritten modules.
		Target api.Target
		// WatchFile is told about every local file the loader reads.
		WatchFile func(path string)
		// IsLiveModule reports whether a legacy module is tracked for
		// invalidation. Defaults to the resolver's Reloadable flag.
		IsLiveModule func(path string) bool
		// ShouldReload forces re-execution of cached modules on every request.
		ShouldReload func(id types.ModuleID) bool
		// Accept overrides the purge accept predicate.
		Accept func(m, dep graph.Module) bool
		// Clock defaults to testutil.RealClock.
		Clock testutil.Clock
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}
)

// NewFromConfig builds a Loader from configuration. Collaborators already
// set in opts win over the ones derived from cfg.
func NewFromConfig(cfg *config.Config, opts Options) (*Loader, error) {
	target, err := transform.ParseTarget(string(cfg.Target))
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}

	if opts.Pipeline == nil {
		opts.Pipeline = transform.NewFSPipeline(transform.Options{
			Target:      target,
			JSXFactory:  cfg.JSX.Factory,
			JSXFragment: cfg.JSX.Fragment,
		})
	}
	if opts.Target == api.DefaultTarget {
		opts.Target = target
	}
	if opts.Timeout == 0 {
		opts.Timeout = cfg.Timeout
	}
	if opts.Fetcher == nil && cfg.Remote.Enabled {
		opts.Fetcher = &HTTPFetcher{Timeout: cfg.Remote.Timeout, MaxBytes: cfg.Remote.MaxBytes, UserAgent: "lazymod"}
	}
	if opts.ShouldReload == nil && len(cfg.AlwaysReload) > 0 {
		patterns := cfg.AlwaysReload
		opts.ShouldReload = func(id types.ModuleID) bool {
			return matchAny(patterns, string(id))
		}
	}

	var l *Loader
	if opts.Resolver == nil {
		fsOpts := resolve.Options{
			Root:          root,
			Extensions:    cfg.Extensions,
			VendorDirs:    cfg.VendorDirs,
			Aliases:       cfg.Aliases,
			VirtualPrefix: cfg.VirtualPrefix,
			IsBuiltin:     func(name string) bool { return l.natives.IsBuiltin(name) },
		}
		if p, ok := opts.Pipeline.(interface{ HasVirtual(id string) bool }); ok {
			fsOpts.IsVirtual = p.HasVirtual
		}
		opts.Resolver = resolve.NewFS(fsOpts)
	}
	l = New(opts)
	return l, nil
}

func matchAny(patterns []string, id string) bool {
	slashed := strings.TrimPrefix(filepath.ToSlash(id), "/")
	for _, p := range patterns {
		if ok, _ := doublestar.Match(strings.TrimPrefix(p, "/"), slashed); ok {
			return true
		}
	}
	return false
}
