package runtui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/agusx1211/swarmix/internal/theme"
)

// Header and status bar.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorBase).
			Background(theme.ColorBlue).
			Padding(0, 2)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(theme.ColorSubtext0).
			Background(theme.ColorSurface0).
			Padding(0, 1)

	statusKeyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorLavender).
			Background(theme.ColorSurface0)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(theme.ColorSubtext0).
				Background(theme.ColorSurface0)
)

// Body styles.
var (
	sectionTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(theme.ColorLavender)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorMauve).
			Width(6)

	valueStyle = lipgloss.NewStyle().
			Foreground(theme.ColorText)

	dimStyle = lipgloss.NewStyle().
			Foreground(theme.ColorOverlay0)

	okStyle = lipgloss.NewStyle().
		Foreground(theme.ColorGreen)

	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorYellow)

	errStyle = lipgloss.NewStyle().
			Foreground(theme.ColorRed)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(theme.ColorMauve)

	runningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(theme.ColorYellow)
)

func stateStyle(s agentState) lipgloss.Style {
	switch s {
	case stateDone:
		return okStyle
	case stateFailed:
		return errStyle
	case stateWorktree, stateRunning:
		return runningStyle
	default:
		return dimStyle
	}
}
