package theme

import "github.com/charmbracelet/lipgloss"

// Color palette - dark theme inspired by Catppuccin Mocha
var (
	ColorBase     = lipgloss.Color("#1e1e2e")
	ColorSurface0 = lipgloss.Color("#313244")
	ColorSurface1 = lipgloss.Color("#45475a")
	ColorSurface2 = lipgloss.Color("#585b70")
	ColorOverlay0 = lipgloss.Color("#6c7086")
	ColorText     = lipgloss.Color("#cdd6f4")
	ColorSubtext0 = lipgloss.Color("#a6adc8")
	ColorSubtext1 = lipgloss.Color("#bac2de")

	ColorRed      = lipgloss.Color("#f38ba8")
	ColorGreen    = lipgloss.Color("#a6e3a1")
	ColorYellow   = lipgloss.Color("#f9e2af")
	ColorBlue     = lipgloss.Color("#89b4fa")
	ColorMauve    = lipgloss.Color("#cba6f7")
	ColorTeal     = lipgloss.Color("#94e2d5")
	ColorPeach    = lipgloss.Color("#fab387")
	ColorFlamingo = lipgloss.Color("#f2cdcd")
	ColorLavender = lipgloss.Color("#b4befe")
)

// Agent pipeline state markers
var (
	StatePending = lipgloss.NewStyle().Foreground(ColorOverlay0).SetString("○ ")
	StateWorking = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true).SetString("● ")
	StateDone    = lipgloss.NewStyle().Foreground(ColorGreen).Bold(true).SetString("✓ ")
	StateFailed  = lipgloss.NewStyle().Foreground(ColorRed).Bold(true).SetString("✗ ")
	StateSkipped = lipgloss.NewStyle().Foreground(ColorOverlay0).SetString("- ")
)

// AgentStateIndicator returns a styled marker for an agent pipeline state.
func AgentStateIndicator(state string) string {
	switch state {
	case "done":
		return StateDone.String()
	case "failed":
		return StateFailed.String()
	case "worktree", "running":
		return StateWorking.String()
	case "skipped":
		return StateSkipped.String()
	default:
		return StatePending.String()
	}
}
