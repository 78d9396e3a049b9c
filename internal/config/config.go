// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/lazymod/lazymod/internal/issue"
	"github.com/lazymod/lazymod/pkg/cueutil"

	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "lazymod"
	// ConfigFileName is the project config file looked up in the project directory.
	ConfigFileName = "lazymod.cue"
	// EnvPrefix prefixes environment overrides (LAZYMOD_TIMEOUT, ...).
	EnvPrefix = "LAZYMOD"
)

//go:embed config_schema.cue
var configSchema []byte

// loadWithOptions performs option-driven config loading. Precedence, lowest
// first: defaults, lazymod.cue, LAZYMOD_* environment variables.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'lazymod config show' to see the default configuration").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		dir := opts.ProjectDir
		if dir == "" {
			dir = "."
		}
		if candidate := filepath.Join(dir, ConfigFileName); fileExists(candidate) {
			resolvedPath = candidate
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestions(
					"Check that the file contains valid CUE syntax",
					"Verify the configuration values match the expected schema",
				).
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	// A relative root is anchored at the config file, or the project dir.
	if !filepath.IsAbs(cfg.Root) {
		base := opts.ProjectDir
		if resolvedPath != "" {
			base = filepath.Dir(resolvedPath)
		}
		abs, err := filepath.Abs(filepath.Join(base, cfg.Root))
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve root %q: %w", cfg.Root, err)
		}
		cfg.Root = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}
	return &cfg, resolvedPath, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("root", d.Root)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("vendor_dirs", d.VendorDirs)
	v.SetDefault("always_reload", d.AlwaysReload)
	v.SetDefault("virtual_prefix", d.VirtualPrefix)
	v.SetDefault("aliases", d.Aliases)
	v.SetDefault("target", string(d.Target))
	v.SetDefault("jsx.factory", d.JSX.Factory)
	v.SetDefault("jsx.fragment", d.JSX.Fragment)
	v.SetDefault("remote.enabled", d.Remote.Enabled)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.max_bytes", d.Remote.MaxBytes)
	v.SetDefault("watch.debounce", d.Watch.Debounce)
	v.SetDefault("watch.ignore", d.Watch.Ignore)
	v.SetDefault("log.level", string(d.Log.Level))
	v.SetDefault("log.format", string(d.Log.Format))
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// Viper. Fields are optional, so values need not be concrete.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	configMap, err := cueutil.DecodeAgainst(configSchema, data, "#Config",
		cueutil.WithConcrete(false), cueutil.WithFilename(path))
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GenerateCUE renders cfg as a lazymod.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// lazymod configuration\n\n")
	fmt.Fprintf(&sb, "root: %q\n", cfg.Root)
	fmt.Fprintf(&sb, "timeout: %q\n", cfg.Timeout.String())
	writeList(&sb, "", "extensions", cfg.Extensions)
	writeList(&sb, "", "vendor_dirs", cfg.VendorDirs)
	writeList(&sb, "", "always_reload", cfg.AlwaysReload)
	fmt.Fprintf(&sb, "virtual_prefix: %q\n", cfg.VirtualPrefix)
	if len(cfg.Aliases) > 0 {
		sb.WriteString("aliases: {\n")
		for _, k := range slices.Sorted(maps.Keys(cfg.Aliases)) {
			fmt.Fprintf(&sb, "\t%q: %q\n", k, cfg.Aliases[k])
		}
		sb.WriteString("}\n")
	}
	fmt.Fprintf(&sb, "target: %q\n", cfg.Target)

	sb.WriteString("\njsx: {\n")
	fmt.Fprintf(&sb, "\tfactory:  %q\n", cfg.JSX.Factory)
	fmt.Fprintf(&sb, "\tfragment: %q\n", cfg.JSX.Fragment)
	sb.WriteString("}\n")

	sb.WriteString("\nremote: {\n")
	fmt.Fprintf(&sb, "\tenabled:   %v\n", cfg.Remote.Enabled)
	fmt.Fprintf(&sb, "\ttimeout:   %q\n", cfg.Remote.Timeout.String())
	fmt.Fprintf(&sb, "\tmax_bytes: %d\n", cfg.Remote.MaxBytes)
	sb.WriteString("}\n")

	sb.WriteString("\nwatch: {\n")
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	writeList(&sb, "\t", "ignore", cfg.Watch.Ignore)
	sb.WriteString("}\n")

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel:  %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\tformat: %q\n", cfg.Log.Format)
	sb.WriteString("}\n")

	return sb.String()
}

func writeList(sb *strings.Builder, indent, key string, values []string) {
	quoted := make([]string, 0, len(values))
	for _, v := range values {
		quoted = append(quoted, fmt.Sprintf("%q", v))
	}
	fmt.Fprintf(sb, "%s%s: [%s]\n", indent, key, strings.Join(quoted, ", "))
}
