package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Command output styling. Colours degrade gracefully on dumb terminals
// because lipgloss detects the profile at render time.
var (
	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	styleScore   = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
)

// renderScore formats a [0,1] score for display.
func renderScore(score float64) string {
	return styleScore.Render(fmt.Sprintf("%.3f", score))
}
