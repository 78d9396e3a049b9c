// SPDX-License-Identifier: MPL-2.0

package transform

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/lazymod/lazymod/pkg/types"
)

// Error reports esbuild diagnostics for a module.
type Error struct {
	ID       types.ModuleID
	Messages []api.Message
}

func (e *Error) Error() string {
	lines := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		if m.Location != nil {
			lines = append(lines, fmt.Sprintf("%d:%d: %s", m.Location.Line, m.Location.Column+1, m.Text))
			continue
		}
		lines = append(lines, m.Text)
	}
	return fmt.Sprintf("transform %s: %s", e.ID, strings.Join(lines, "; "))
}
