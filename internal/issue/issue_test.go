// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"
	"testing"
)

func stubRender(t *testing.T) {
	t.Helper()
	original := render
	t.Cleanup(func() { render = original })
	render = func(in string, stylePath string) (string, error) {
		return in, nil
	}
}

func TestIdsAreUniqueAndStartAtOne(t *testing.T) {
	if ModuleNotFoundId != 1 {
		t.Errorf("ModuleNotFoundId = %d, want 1", ModuleNotFoundId)
	}

	seen := make(map[Id]bool)
	for _, is := range Values() {
		if seen[is.Id()] {
			t.Errorf("duplicate ID: %d", is.Id())
		}
		seen[is.Id()] = true
	}
	if len(seen) != int(DependencyCycleId) {
		t.Errorf("catalog has %d issues, want %d", len(seen), DependencyCycleId)
	}
}

func TestValuesAreOrdered(t *testing.T) {
	values := Values()
	for i := 1; i < len(values); i++ {
		if values[i-1].Id() >= values[i].Id() {
			t.Fatalf("Values() not ordered at %d: %d >= %d", i, values[i-1].Id(), values[i].Id())
		}
	}
}

func TestGet(t *testing.T) {
	tests := []struct {
		id       Id
		contains string
	}{
		{UnsupportedSyntaxId, "export const a = 1, b = 2"},
		{ResolveTimeoutId, "timeout"},
		{ModuleNotFoundId, "node_modules"},
	}

	for _, tt := range tests {
		is := Get(tt.id)
		if is == nil {
			t.Fatalf("Get(%d) returned nil", tt.id)
		}
		if !strings.Contains(string(is.MarkdownMsg()), tt.contains) {
			t.Errorf("Get(%d).MarkdownMsg() does not mention %q", tt.id, tt.contains)
		}
	}

	if Get(Id(9999)) != nil {
		t.Error("Get(9999) should return nil")
	}
}

func TestIssueRenderLinks(t *testing.T) {
	stubRender(t)

	withLinks := &Issue{
		id:       Id(9999),
		mdMsg:    "# Test Issue",
		docLinks: []HttpLink{"https://docs.example.com"},
		extLinks: []HttpLink{"https://external.example.com"},
	}
	rendered, err := withLinks.Render("")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(rendered, "See also") || !strings.Contains(rendered, "https://docs.example.com") {
		t.Errorf("Render() with links = %q", rendered)
	}

	noLinks := &Issue{id: Id(9998), mdMsg: "# Test Issue"}
	rendered, err = noLinks.Render("")
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if strings.Contains(rendered, "See also") {
		t.Error("Render() without links should not contain 'See also'")
	}
}

func TestLinksAreCopied(t *testing.T) {
	is := &Issue{docLinks: []HttpLink{"a"}}
	links := is.DocLinks()
	links[0] = "b"
	if is.DocLinks()[0] != "a" {
		t.Error("DocLinks() exposed internal slice")
	}
}

func TestAllIssuesAreRenderable(t *testing.T) {
	stubRender(t)

	for _, is := range Values() {
		rendered, err := is.Render("")
		if err != nil {
			t.Errorf("Issue %d failed to render: %v", is.Id(), err)
		}
		if strings.TrimSpace(rendered) == "" {
			t.Errorf("Issue %d rendered to empty string", is.Id())
		}
	}
}
