package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	Primary = lipgloss.Color("#22d3ee") // cyan accent
	Success = lipgloss.Color("#10B981") // emerald
	Warning = lipgloss.Color("#F59E0B") // amber
	Error   = lipgloss.Color("#EF4444") // red
	Muted   = lipgloss.Color("#6B7280") // gray

	ProgressStart = "#22d3ee"
	ProgressEnd   = "#0ea5e9"
)

// Text styles
var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	BoldStyle    = lipgloss.NewStyle().Bold(true)
	CodeStyle    = lipgloss.NewStyle().Bold(true).Foreground(Primary)
)

var RoomBoxStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(Success).
	Padding(1, 2)

// Table styles
var (
	TableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	TableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	TableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

var SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

const (
	IconFile     = "📄"
	IconSend     = "📤"
	IconReceive  = "📥"
	IconSuccess  = "✅"
	IconError    = "❌"
	IconWarning  = "⚠️"
	IconInfo     = "ℹ️"
	IconPeer     = "👤"
	IconCopy     = "📋"
	IconWeb      = "🌐"
	IconComplete = "🎉"
	IconPending  = "○"
)

// Out is where the Print helpers write. Tests swap it.
var Out io.Writer = os.Stdout

func PrintError(msg string) {
	fmt.Fprintf(Out, "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(msg))
}

func PrintErrorf(format string, args ...any) {
	PrintError(fmt.Sprintf(format, args...))
}

func PrintWarning(msg string) {
	fmt.Fprintf(Out, "%s %s\n", WarningStyle.Render(IconWarning), WarningStyle.Render(msg))
}

func PrintWarningf(format string, args ...any) {
	PrintWarning(fmt.Sprintf(format, args...))
}

func PrintSuccess(msg string) {
	fmt.Fprintf(Out, "%s %s\n", SuccessStyle.Render(IconSuccess), msg)
}

func PrintSuccessf(format string, args ...any) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

func PrintInfo(msg string) {
	fmt.Fprintf(Out, "%s %s\n", IconInfo, msg)
}

func PrintInfof(format string, args ...any) {
	PrintInfo(fmt.Sprintf(format, args...))
}
