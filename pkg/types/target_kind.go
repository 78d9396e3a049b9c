// SPDX-License-Identifier: MPL-2.0

package types

// TargetKind classifies what a resolved identifier points at. The loader
// matches on it exhaustively to decide how exports are obtained.
type TargetKind uint8

const (
	// KindLocal is a source file that is transformed, rewritten and executed.
	KindLocal TargetKind = iota
	// KindVirtual is a synthetic identifier with no backing file; always compiled.
	KindVirtual
	// KindExternal is loaded through the legacy synchronous CommonJS loader.
	KindExternal
	// KindRemote is an http(s) URL fetched on every request.
	KindRemote
	// KindData is a local structured-data file (json, yaml, toml, cue, hcl).
	KindData
)

// String returns the lowercase name of the kind.
func (k TargetKind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindVirtual:
		return "virtual"
	case KindExternal:
		return "external"
	case KindRemote:
		return "remote"
	case KindData:
		return "data"
	default:
		return "unknown"
	}
}

// Compiled reports whether targets of this kind go through the compile path.
func (k TargetKind) Compiled() bool { return k == KindLocal || k == KindVirtual }
