// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions selects where configuration is read from.
	LoadOptions struct {
		// ConfigFilePath names an explicit lazymod.cue; loading fails if it is missing.
		ConfigFilePath string
		// ProjectDir is searched for lazymod.cue and anchors a relative root.
		// Empty means the working directory.
		ProjectDir string
	}

	// Provider resolves the effective configuration for a command. The CLI
	// receives one through its dependencies so tests can substitute it.
	Provider interface {
		// Load returns the merged configuration.
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
		// Locate is Load plus the config file that was read, "" when only
		// defaults and environment overrides applied.
		Locate(ctx context.Context, opts LoadOptions) (*Config, string, error)
	}

	cueProvider struct{}
)

// NewProvider returns the Provider that reads lazymod.cue through viper.
func NewProvider() Provider {
	return cueProvider{}
}

func (cueProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	return cfg, err
}

func (cueProvider) Locate(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}
