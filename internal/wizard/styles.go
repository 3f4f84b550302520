package wizard

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("86")
	colorOK     = lipgloss.Color("42")
	colorFail   = lipgloss.Color("196")
	colorHint   = lipgloss.Color("75")
	colorDim    = lipgloss.Color("240")
)

var (
	headerStyle        = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).Padding(0, 1)
	sectionHeaderStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).MarginTop(1)

	labelStyle   = lipgloss.NewStyle().Foreground(colorDim)
	infoStyle    = lipgloss.NewStyle().Foreground(colorHint)
	successStyle = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)

	// Backend list and focused input label.
	selectedStyle   = lipgloss.NewStyle().Foreground(colorOK).Bold(true)
	unselectedStyle = lipgloss.NewStyle().Foreground(colorDim)

	// Summary and done screens.
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(1, 2)
	hintBoxStyle = lipgloss.NewStyle().
			Foreground(colorHint).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorHint).
			PaddingLeft(1).
			MarginTop(1)
	keysStyle = lipgloss.NewStyle().Foreground(colorDim).Italic(true).MarginTop(1)
)

const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconSpinner = "⏳"
	iconArrow   = "►"
)

func renderHeader() string {
	return headerStyle.Render("ksmigrate init")
}

func renderSectionHeader(text string) string {
	return sectionHeaderStyle.Render(text)
}

func renderSuccess(text string) string {
	return successStyle.Render(iconSuccess + " " + text)
}

func renderError(text string) string {
	return errorStyle.Render(iconError + " " + text)
}

// renderInfo renders a hint to the user below the main content.
func renderInfo(text string) string {
	return hintBoxStyle.Render(text)
}

func renderOption(selected bool, text string) string {
	if selected {
		return selectedStyle.Render(iconArrow + " " + text)
	}
	return unselectedStyle.Render("  " + text)
}

// renderStatusBar renders the key bindings line.
func renderStatusBar(keys string) string {
	return keysStyle.Render(keys)
}
