package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
)

const defaultWidth = 100

// Printer writes events to a terminal as they arrive. It is an events.Sink.
type Printer struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	verbose bool // also print specialist content chunks
}

// Option configures a Printer.
type Option func(*Printer)

// WithWidth sets the wrap width.
func WithWidth(w int) Option {
	return func(p *Printer) {
		if w > 20 {
			p.width = w
		}
	}
}

// WithVerbose prints specialist output chunks, not just the final answer.
func WithVerbose(v bool) Option {
	return func(p *Printer) { p.verbose = v }
}

// NewPrinter creates a printer.
func NewPrinter(out io.Writer, opts ...Option) *Printer {
	p := &Printer{out: out, width: defaultWidth}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish prints one event.
func (p *Printer) Publish(_ context.Context, ev events.Event) error {
	line := p.format(ev)
	if line == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintln(p.out, line)
	return err
}

func (p *Printer) format(ev events.Event) string {
	switch ev.Type {
	case events.StepStarted:
		style := specialistStyle
		if ev.Kind == events.KindTool {
			style = toolStyle
		}
		return fmt.Sprintf("%s %s %s", dimStyle.Render(fmt.Sprintf("[%d]", ev.Step)), style.Render("→ "+ev.Target), dimStyle.Render(ev.Kind))
	case events.ToolInvoked:
		room := p.width - len(ev.Tool) - 10
		if room < 10 {
			room = 10
		}
		args := truncate.StringWithTail(ev.ArgumentsSummary, uint(room), "...")
		return fmt.Sprintf("    %s %s", toolStyle.Render("⚙ "+ev.Tool), dimStyle.Render(args))
	case events.ContentChunk:
		if !p.verbose {
			return ""
		}
		return dimStyle.Render(p.block(ev.Text, 6))
	case events.Diagnostic:
		return warnStyle.Render(p.block("! "+ev.Text, 4))
	case events.TurnFinished:
		return "\n" + answerStyle.Render(p.block(ev.Text, 0)) + "\n"
	default:
		return ""
	}
}

// block wraps text to the printer width and indents it.
func (p *Printer) block(text string, pad int) string {
	wrapped := wordwrap.String(strings.TrimSpace(text), p.width-pad)
	if pad == 0 {
		return wrapped
	}
	return indent.String(wrapped, uint(pad))
}

// Render formats a recorded event stream as a timeline, one turn per
// section.
func Render(sessionID string, turns [][]events.Event, width int) string {
	if width <= 20 {
		width = defaultWidth
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Session"), sessionID)
	for i, turn := range turns {
		b.WriteString(divider + "\n")
		turnID := ""
		if len(turn) > 0 {
			turnID = turn[0].TurnID
		}
		fmt.Fprintf(&b, "%s %s\n", titleStyle.Render(fmt.Sprintf("Turn %d", i+1)), dimStyle.Render(turnID))
		for _, ev := range turn {
			b.WriteString(renderEvent(ev, width))
			b.WriteString("\n")
		}
		b.WriteString(renderStats(turn))
	}
	return b.String()
}

func renderEvent(ev events.Event, width int) string {
	prefix := fmt.Sprintf("%s │ %s │ ", seqStyle.Render(fmt.Sprintf("%d", ev.Seq)), dimStyle.Render(ev.Timestamp.Format("15:04:05")))
	body := ""
	switch ev.Type {
	case events.StepStarted:
		body = specialistStyle.Render(fmt.Sprintf("step %d → %s (%s)", ev.Step, ev.Target, ev.Kind))
	case events.ToolInvoked:
		body = toolStyle.Render(fmt.Sprintf("%s %s", ev.Tool, ev.ArgumentsSummary)) + dimStyle.Render(" "+ev.CallID)
	case events.ContentChunk:
		body = fmt.Sprintf("%s: %s", ev.Target, ev.Text)
	case events.StepFinished:
		body = dimStyle.Render(fmt.Sprintf("step %d done (%s)", ev.Step, ev.Target))
	case events.Diagnostic:
		body = warnStyle.Render("diagnostic: " + ev.Text)
	case events.TurnFinished:
		body = answerStyle.Render("final: " + ev.Text)
	default:
		body = string(ev.Type)
	}
	return wrapContent(prefix+body, width)
}

func renderStats(turn []events.Event) string {
	var steps, tools, diags int
	for _, ev := range turn {
		switch ev.Type {
		case events.StepStarted:
			steps++
		case events.ToolInvoked:
			tools++
		case events.Diagnostic:
			diags++
		}
	}
	return dimStyle.Render(fmt.Sprintf("  %d steps, %d tool calls, %d diagnostics", steps, tools, diags)) + "\n"
}
