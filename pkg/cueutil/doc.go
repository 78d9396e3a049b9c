// SPDX-License-Identifier: MPL-2.0

// Package cueutil holds the CUE plumbing shared by configuration loading and
// .cue data imports: size limits, schema unification, decoding and
// path-annotated error messages.
//
//	//go:embed config_schema.cue
//	var schema []byte
//
//	m, err := cueutil.DecodeAgainst(schema, "#Config", data, cueutil.WithFilename("lazymod.cue"))
package cueutil
