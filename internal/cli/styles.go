// Package cli renders ledger results for the terminal with lipgloss.
package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Palette. Each color has a light and a dark terminal variant.
var (
	accent   = lipgloss.AdaptiveColor{Light: "#2F5FC4", Dark: "#5B8DEF"}
	positive = lipgloss.AdaptiveColor{Light: "#1B8A80", Dark: "#4ECDC4"}
	caution  = lipgloss.AdaptiveColor{Light: "#A07800", Dark: "#FFE66D"}
	negative = lipgloss.AdaptiveColor{Light: "#C0392B", Dark: "#FF6B6B"}
	muted    = lipgloss.AdaptiveColor{Light: "#888888", Dark: "#666666"}
	rule     = lipgloss.AdaptiveColor{Light: "#CCCCCC", Dark: "#333333"}
)

// Text styles shared by the renderers.
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	SuccessStyle = lipgloss.NewStyle().Foreground(positive)
	WarningStyle = lipgloss.NewStyle().Foreground(caution)
	ErrorStyle   = lipgloss.NewStyle().Foreground(negative)
	SubtleStyle  = lipgloss.NewStyle().Foreground(muted)
)

// Layout styles.
var (
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(rule).
			Padding(0, 2)

	// LabelStyle pads report labels to a fixed column.
	LabelStyle  = lipgloss.NewStyle().Width(16)
	AmountStyle = lipgloss.NewStyle().Bold(true).Align(lipgloss.Right)

	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(rule)
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠️"
	LedgerIcon  = "📒"
)

func status(style lipgloss.Style, icon, message string) string {
	return style.Render(icon + " " + message)
}

// FormatSuccess prefixes message with a check mark.
func FormatSuccess(message string) string { return status(SuccessStyle, SuccessIcon, message) }

// FormatError prefixes message with a cross.
func FormatError(message string) string { return status(ErrorStyle, ErrorIcon, message) }

// FormatWarning prefixes message with a warning sign.
func FormatWarning(message string) string { return status(WarningStyle, WarningIcon, message) }

// FormatTitle renders a section title.
func FormatTitle(title string) string { return status(TitleStyle, LedgerIcon, title) }

// RenderBox draws content in a rounded border under title.
func RenderBox(title, content string) string {
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, TitleStyle.Render(title), content))
}
