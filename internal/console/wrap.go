package console

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const minColumnWidth = 20

// wrapContent wraps each line to width. Timeline rows ("seq │ time │ body")
// wrap only the body and continue under its column.
func wrapContent(content string, width int) string {
	if width <= 0 {
		return content
	}

	var out []string
	for _, line := range strings.Split(content, "\n") {
		if lipgloss.Width(line) <= width {
			out = append(out, line)
			continue
		}

		if last := strings.LastIndex(line, "│"); last > 0 && last < len(line)-len("│") {
			start := last + len("│")
			for start < len(line) && line[start] == ' ' {
				start++
			}
			prefixWidth := lipgloss.Width(line[:start])
			bodyWidth := width - prefixWidth
			if bodyWidth < minColumnWidth {
				bodyWidth = minColumnWidth
			}
			wrapped := strings.Split(wordwrap.String(line[start:], bodyWidth), "\n")
			out = append(out, line[:start]+wrapped[0])
			pad := strings.Repeat(" ", prefixWidth)
			for _, w := range wrapped[1:] {
				out = append(out, pad+w)
			}
			continue
		}

		out = append(out, strings.Split(wordwrap.String(line, width), "\n")...)
	}
	return strings.Join(out, "\n")
}
