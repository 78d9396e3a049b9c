// SPDX-License-Identifier: MPL-2.0

package dataimport

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// decodeHCL maps attributes to keys and blocks to nested objects keyed by
// block type then labels:
//
//	service "web" { port = 80 }   ->   {"service": {"web": {"port": 80}}}
//
// Repeated blocks at the same path collect into a list. Expressions are
// evaluated without variables or functions.
func decodeHCL(name string, data []byte) (any, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, name)
	if diags.HasErrors() {
		return nil, diags
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, errors.New("unexpected HCL body type")
	}
	return hclBody(body)
}

func hclBody(body *hclsyntax.Body) (map[string]any, error) {
	out := make(map[string]any, len(body.Attributes)+len(body.Blocks))
	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		native, err := ctyToNative(val)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		out[name] = native
	}

	for _, block := range body.Blocks {
		inner, err := hclBody(block.Body)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", block.Type, err)
		}
		keys := append([]string{block.Type}, block.Labels...)
		if err := insertBlock(out, keys, inner, block.DefRange()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func insertBlock(into map[string]any, keys []string, value map[string]any, rng hcl.Range) error {
	for _, k := range keys[:len(keys)-1] {
		next, ok := into[k]
		if !ok {
			child := make(map[string]any)
			into[k] = child
			into = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%s: block %q conflicts with an attribute", rng, k)
		}
		into = child
	}

	last := keys[len(keys)-1]
	switch existing := into[last].(type) {
	case nil:
		into[last] = value
	case []any:
		into[last] = append(existing, value)
	case map[string]any:
		into[last] = []any{existing, value}
	default:
		return fmt.Errorf("%s: block %q conflicts with an attribute", rng, last)
	}
	return nil
}

// ctyToNative converts a known cty value to plain Go values. Whole numbers
// become int64, everything else float64.
func ctyToNative(v cty.Value) (any, error) {
	if v.IsNull() || !v.IsKnown() {
		return nil, nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil

	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return i, nil
			}
		}
		var f float64
		if err := gocty.FromCtyValue(v, &f); err != nil {
			return nil, err
		}
		return f, nil

	case ty == cty.Bool:
		return v.True(), nil

	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, native)
		}
		return out, nil

	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			native, err := ctyToNative(elem)
			if err != nil {
				return nil, fmt.Errorf("in attribute %q: %w", key.AsString(), err)
			}
			out[key.AsString()] = native
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported HCL value type %s", ty.FriendlyName())
}
