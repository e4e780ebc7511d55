package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F2A541")).
			MarginBottom(1)
	stepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8A8A8A"))
	labelStyle  = lipgloss.NewStyle().Width(18)
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F2A541"))
	fieldErr    = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).PaddingLeft(18)
	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E06C75")).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#E06C75")).
			Padding(0, 1)
	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5C6370")).MarginTop(1)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3E4451")).
			Padding(1, 2)
)
