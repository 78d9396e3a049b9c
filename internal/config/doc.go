// SPDX-License-Identifier: MPL-2.0

// Package config handles lazymod configuration using Viper with CUE as the
// file format.
//
// Configuration is read from lazymod.cue in the project directory (or the file
// given with --config), validated against the embedded config_schema.cue,
// merged over built-in defaults and overridden by LAZYMOD_* environment
// variables (LAZYMOD_TIMEOUT, LAZYMOD_REMOTE_ENABLED, ...).
package config
