// Package console renders the event stream for terminals, live and in
// replay.
package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Each target kind has a distinct, consistent color.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	// Specialists - Magenta
	specialistStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("13"))

	// Tools - Blue
	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Final answer - Green
	answerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	seqStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Width(5).
			Align(lipgloss.Right)

	divider = lipgloss.NewStyle().
		Foreground(lipgloss.Color("8")).
		Render(strings.Repeat("━", 60))
)
