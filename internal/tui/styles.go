package tui

import "github.com/charmbracelet/lipgloss"

const barColor = "#5dade2"

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#003262"))
	sectionStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	activeTab      = lipgloss.NewStyle().Bold(true).Padding(0, 1).Background(lipgloss.Color(barColor)).Foreground(lipgloss.Color("0"))
	inactiveTab    = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("8"))
)
