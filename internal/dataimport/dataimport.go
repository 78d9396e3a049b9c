// SPDX-License-Identifier: MPL-2.0

// Package dataimport decodes structured data files into plain Go values
// (map[string]any, []any, string, float64/int, bool, nil) that the loader
// hands to JavaScript as a module's exports.
package dataimport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/lazymod/lazymod/pkg/cueutil"
)

// ErrUnsupportedFormat is returned for names without a data extension.
var ErrUnsupportedFormat = errors.New("unsupported data format")

type (
	// DecodeError reports a malformed data file.
	DecodeError struct {
		Name   string
		Format string
		Err    error
	}

	decoder func(name string, data []byte) (any, error)
)

var decoders = map[string]decoder{
	".json": decodeJSON,
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".toml": decodeTOML,
	".cue":  decodeCUE,
	".hcl":  decodeHCL,
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s data %s: %v", e.Format, e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Extension returns the lowercase data extension of name (a path or URL),
// ignoring any query or fragment, or "" when name is not a data file.
func Extension(name string) string {
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	ext := strings.ToLower(path.Ext(name))
	if _, ok := decoders[ext]; ok {
		return ext
	}
	return ""
}

// IsDataPath reports whether name has a structured-data extension.
func IsDataPath(name string) bool {
	return Extension(name) != ""
}

// Decode picks a decoder by the extension of name.
func Decode(name string, data []byte) (any, error) {
	ext := Extension(name)
	if ext == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	v, err := decoders[ext](name, data)
	if err != nil {
		return nil, &DecodeError{Name: name, Format: strings.TrimPrefix(ext, "."), Err: err}
	}
	return v, nil
}

func decodeJSON(_ string, data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func decodeYAML(_ string, data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeTOML(_ string, data []byte) (any, error) {
	var v map[string]any
	if err := toml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeCUE(name string, data []byte) (any, error) {
	return cueutil.Decode(data, cueutil.WithFilename(name))
}
