package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

var (
	colorAccent  = lipgloss.Color("#20B9B4")
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorError   = lipgloss.Color("#E74C3C")
	colorMuted   = lipgloss.Color("#6C7A89")
)

var styles = struct {
	Title     lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
	Muted     lipgloss.Style
	Link      lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	User:      lipgloss.NewStyle().Bold(true),
	Assistant: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
	Success:   lipgloss.NewStyle().Foreground(colorSuccess),
	Error:     lipgloss.NewStyle().Foreground(colorError),
	Muted:     lipgloss.NewStyle().Foreground(colorMuted),
	Link:      lipgloss.NewStyle().Underline(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(colorAccent).
		Padding(0, 1),
}

// speaker renders the role label of a chat entry.
func speaker(role domain.Role) string {
	switch role {
	case domain.RoleUser:
		return styles.User.Render("you")
	default:
		return styles.Assistant.Render("applyai")
	}
}
