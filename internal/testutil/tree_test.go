// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTree(t *testing.T) {
	t.Parallel()

	root := WriteTree(t, map[string]string{
		"src/a.ts":     "export const a = 1",
		"package.json": "{}",
	})

	data, err := os.ReadFile(filepath.Join(root, "src", "a.ts"))
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(data) != "export const a = 1" {
		t.Errorf("content = %q", data)
	}
	if !filepath.IsAbs(root) {
		t.Errorf("WriteTree() root %q is not absolute", root)
	}
}
