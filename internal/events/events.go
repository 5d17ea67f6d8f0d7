// Package events defines the observer-facing event stream of a turn and
// the sinks that deliver it.
package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

// Type identifies an event.
type Type string

const (
	StepStarted  Type = "step_started"
	ContentChunk Type = "content_chunk"
	ToolInvoked  Type = "tool_invoked"
	StepFinished Type = "step_finished"
	TurnFinished Type = "turn_finished"
	Diagnostic   Type = "diagnostic"
)

// Kind of the target a step runs.
const (
	KindSpecialist = "specialist"
	KindTool       = "tool"
)

// Event is one entry of the stream.
type Event struct {
	Seq              int64     `json:"seq"`
	TurnID           string    `json:"turn_id"`
	Type             Type      `json:"type"`
	Target           string    `json:"target,omitempty"`
	Kind             string    `json:"kind,omitempty"`
	Step             int       `json:"step,omitempty"`
	CallID           string    `json:"call_id,omitempty"`
	Tool             string    `json:"tool,omitempty"`
	ArgumentsSummary string    `json:"arguments_summary,omitempty"`
	Text             string    `json:"text,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// maxSummaryLen bounds ArgumentsSummary.
const maxSummaryLen = 200

// Emitter stamps, deduplicates and forwards the events of one turn.
// Events for the same logical step are never emitted twice.
type Emitter struct {
	turnID string
	sink   Sink
	logger *logging.Logger

	mu   sync.Mutex
	seq  int64
	seen map[string]struct{}
}

// NewEmitter creates an emitter for a turn. A nil sink discards events.
func NewEmitter(turnID string, sink Sink) *Emitter {
	return &Emitter{
		turnID: turnID,
		sink:   sink,
		logger: logging.New().WithComponent("events"),
		seen:   make(map[string]struct{}),
	}
}

// TurnID returns the turn the emitter belongs to.
func (e *Emitter) TurnID() string { return e.turnID }

func (e *Emitter) emit(ctx context.Context, ev Event) bool {
	key := fmt.Sprintf("%s|%s|%d|%s", ev.Type, ev.Target, ev.Step, ev.CallID)
	if ev.Type == Diagnostic {
		key += "|" + ev.Text
	}

	// Publishing happens under the lock so sink order matches Seq.
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, dup := e.seen[key]; dup {
		return false
	}
	e.seen[key] = struct{}{}
	e.seq++
	ev.Seq = e.seq
	ev.TurnID = e.turnID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if e.sink == nil {
		return true
	}
	if err := e.sink.Publish(ctx, ev); err != nil {
		e.logger.Warn("event sink failed", map[string]interface{}{
			"type":  string(ev.Type),
			"error": err.Error(),
		})
	}
	return true
}

// StepStarted announces a dispatch to a specialist or tool.
func (e *Emitter) StepStarted(ctx context.Context, target, kind string, step int) bool {
	return e.emit(ctx, Event{Type: StepStarted, Target: target, Kind: kind, Step: step})
}

// ContentChunk streams text produced by a target.
func (e *Emitter) ContentChunk(ctx context.Context, target string, step int, text string) bool {
	return e.emit(ctx, Event{Type: ContentChunk, Target: target, Step: step, Text: text})
}

// ToolInvoked reports an executed tool call.
func (e *Emitter) ToolInvoked(ctx context.Context, target string, step int, callID, tool string, args map[string]any) bool {
	return e.emit(ctx, Event{
		Type:             ToolInvoked,
		Target:           target,
		Step:             step,
		CallID:           callID,
		Tool:             tool,
		ArgumentsSummary: SummarizeArgs(args),
	})
}

// StepFinished closes a dispatch.
func (e *Emitter) StepFinished(ctx context.Context, target string, step int) bool {
	return e.emit(ctx, Event{Type: StepFinished, Target: target, Step: step})
}

// TurnFinished carries the final answer.
func (e *Emitter) TurnFinished(ctx context.Context, text string) bool {
	return e.emit(ctx, Event{Type: TurnFinished, Text: text})
}

// Diagnostic reports a recovered contract violation or forced transition.
func (e *Emitter) Diagnostic(ctx context.Context, target string, step int, msg string) bool {
	return e.emit(ctx, Event{Type: Diagnostic, Target: target, Step: step, Text: msg})
}

// SummarizeArgs renders arguments as sorted key=value pairs, truncated.
func SummarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	s := strings.Join(parts, ", ")
	if r := []rune(s); len(r) > maxSummaryLen {
		s = string(r[:maxSummaryLen-3]) + "..."
	}
	return s
}
