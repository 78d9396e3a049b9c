// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Color palette shared by all CLI output, tuned for dark terminals.
const (
	// ColorPrimary is purple, used for titles and headers.
	ColorPrimary = lipgloss.Color("#7C3AED")
	// ColorMuted is gray, used for subtitles and secondary text.
	ColorMuted = lipgloss.Color("#6B7280")
	// ColorSuccess is green, used for ready modules and positive outcomes.
	ColorSuccess = lipgloss.Color("#10B981")
	// ColorError is red, used for failed modules and errors.
	ColorError = lipgloss.Color("#EF4444")
	// ColorWarning is amber, used for pending modules and cycles.
	ColorWarning = lipgloss.Color("#F59E0B")
	// ColorHighlight is blue, used for module identifiers.
	ColorHighlight = lipgloss.Color("#3B82F6")
)

var (
	// TitleStyle is for primary headers and section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// SubtitleStyle is for secondary headers and descriptions.
	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// SuccessStyle is for success messages and ready modules.
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	// ErrorStyle is for error messages and failed modules.
	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorError)

	// WarningStyle is for warnings and pending modules.
	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	// IDStyle is for module identifiers.
	IDStyle = lipgloss.NewStyle().
		Foreground(ColorHighlight)

	// groupStyle indents the members of one dependency-order group.
	groupStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

// stateStyle picks the style for a module cell state.
func stateStyle(state string) lipgloss.Style {
	switch state {
	case "ready", "linked":
		return SuccessStyle
	case "failed":
		return ErrorStyle
	case "pending":
		return WarningStyle
	default:
		return SubtitleStyle
	}
}
