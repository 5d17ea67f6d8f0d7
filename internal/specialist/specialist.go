// Package specialist runs one specialist's reasoning loop: think, execute
// requested tools, think again, until the model answers or the step budget
// runs out.
package specialist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/llm"
	"github.com/vinayprograms/agentkit/logging"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/guidance"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/holster"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tracing"
)

// DefaultMaxSteps is the default number of Thinking steps per invocation.
const DefaultMaxSteps = 6

// Phase is a state of the execution loop.
type Phase string

const (
	PhaseThinking         Phase = "thinking"
	PhaseToolCallsPending Phase = "tool_calls_pending"
	PhaseToolsExecuting   Phase = "tools_executing"
	PhaseDone             Phase = "done"
)

const budgetExhaustedText = "I was not able to finish this request within my step budget."

// Spec describes a specialist.
type Spec struct {
	ID           routing.Target
	Description  string
	SystemPrompt string
	Tools        []tools.Tool
}

// Config tunes the loop.
type Config struct {
	MaxSteps        int
	ToolConcurrency int
	ModelTimeout    time.Duration
}

// Request is one dispatch to a specialist.
type Request struct {
	Spec         Spec
	Instruction  string
	Question     string
	Conversation []routing.Message
	Step         int // routing step that dispatched this run, used for event identity
	Emitter      *events.Emitter
}

// Result is what a run produced. FinalText goes to the routing state's
// specialist responses; Delta holds the tool traffic only.
type Result struct {
	FinalText  string
	Delta      []routing.Message
	Steps      int
	ToolCalls  int
	ForcedDone bool
	Holstered  bool
	Diagnostic string
}

// Runner executes specialist invocations.
type Runner struct {
	provider llm.Provider
	invoker  *tools.Invoker
	gate     *holster.Gate
	guidance guidance.Loader
	cfg      Config
	logger   *logging.Logger
}

// NewRunner creates a runner. A nil gate uses the default phrase list and a
// nil loader disables guidance.
func NewRunner(provider llm.Provider, invoker *tools.Invoker, gate *holster.Gate, loader guidance.Loader, cfg Config) *Runner {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.ToolConcurrency <= 0 {
		cfg.ToolConcurrency = 4
	}
	if gate == nil {
		gate = holster.Default()
	}
	if loader == nil {
		loader = guidance.None{}
	}
	return &Runner{
		provider: provider,
		invoker:  invoker,
		gate:     gate,
		guidance: loader,
		cfg:      cfg,
		logger:   logging.New().WithComponent("specialist"),
	}
}

// run holds the mutable state of one invocation.
type run struct {
	r        *Runner
	req      Request
	target   string
	loadout  holster.Loadout
	messages []llm.Message
	result   Result
	lastText string
	callIDs  map[string]struct{}
}

// Run drives one invocation to Done. It never returns an error: model
// failures and budget exhaustion force Done with whatever text exists.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	if req.Emitter == nil {
		req.Emitter = events.NewEmitter("", nil)
	}
	target := req.Spec.ID.String()
	ctx, span := tracing.Start(ctx, "specialist."+target, attribute.Int("route.step", req.Step))
	start := time.Now()
	r.logger.PhaseStart("SPECIALIST", target, fmt.Sprint(req.Step))

	run := &run{
		r:       r,
		req:     req,
		target:  target,
		loadout: r.gate.Apply(req.Instruction, req.Spec.Tools),
	}
	run.result.Holstered = run.loadout.Holstered
	if run.loadout.Holstered {
		r.logger.Info("tools holstered", map[string]interface{}{
			"specialist": target,
			"phrase":     run.loadout.Phrase,
		})
	}
	run.messages = buildMessages(req, run.loadout)

	req.Emitter.StepStarted(ctx, target, events.KindSpecialist, req.Step)
	run.loop(ctx)
	req.Emitter.ContentChunk(ctx, target, req.Step, run.result.FinalText)
	req.Emitter.StepFinished(ctx, target, req.Step)

	status := "complete"
	if run.result.ForcedDone {
		status = "forced"
	}
	r.logger.PhaseComplete("SPECIALIST", target, fmt.Sprint(req.Step), time.Since(start), status)
	tracing.End(span, nil,
		attribute.Int("specialist.steps", run.result.Steps),
		attribute.Int("specialist.tool_calls", run.result.ToolCalls),
		attribute.Bool("specialist.forced_done", run.result.ForcedDone),
	)
	return run.result
}

func (run *run) transition(from, to Phase) {
	run.r.logger.Debug("phase transition", map[string]interface{}{
		"specialist": run.target,
		"from":       string(from),
		"to":         string(to),
		"step":       run.result.Steps,
	})
}

func (run *run) loop(ctx context.Context) {
	for {
		if run.result.Steps >= run.r.cfg.MaxSteps {
			run.finishForced(fmt.Sprintf("step budget of %d exhausted", run.r.cfg.MaxSteps))
			run.transition(PhaseThinking, PhaseDone)
			return
		}
		run.result.Steps++

		resp, err := run.think(ctx)
		if err != nil {
			run.finishForced(fmt.Sprintf("model call failed: %v", err))
			run.transition(PhaseThinking, PhaseDone)
			return
		}
		if text := strings.TrimSpace(resp.Content); text != "" {
			run.lastText = text
		}

		if len(resp.ToolCalls) == 0 {
			run.result.FinalText = strings.TrimSpace(resp.Content)
			if run.result.FinalText == "" {
				run.result.FinalText = run.lastText
			}
			run.transition(PhaseThinking, PhaseDone)
			return
		}

		if run.loadout.Holstered {
			// Tool intents under a holstered loadout are discarded unexecuted.
			run.r.logger.Warn("discarding tool calls from holstered specialist", map[string]interface{}{
				"specialist": run.target,
				"calls":      len(resp.ToolCalls),
			})
			if run.lastText != "" {
				run.result.FinalText = run.lastText
				run.transition(PhaseThinking, PhaseDone)
				return
			}
			run.messages = append(run.messages, llm.Message{
				Role:    "user",
				Content: "No tools are available for this request. Answer in plain text.",
			})
			continue
		}

		run.transition(PhaseThinking, PhaseToolCallsPending)
		run.assignCallIDs(resp.ToolCalls)
		note := run.loadGuidance(resp.ToolCalls)

		run.transition(PhaseToolCallsPending, PhaseToolsExecuting)
		results := run.executeTools(ctx, resp.ToolCalls)

		run.messages = append(run.messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for i, res := range results {
			run.messages = append(run.messages, llm.Message{
				Role:       "tool",
				ToolCallID: resp.ToolCalls[i].ID,
				Content:    res.Text(),
			})
			run.result.Delta = append(run.result.Delta, routing.Message{
				Role:   routing.RoleToolResult,
				Source: res.Tool,
				Content: routing.Blocks{
					{Kind: routing.BlockToolUse, ToolName: res.Tool, ToolArgs: res.Arguments},
					{Kind: routing.BlockToolResult, Text: res.Text()},
				},
			})
		}
		if note != "" {
			run.messages = append(run.messages, llm.Message{Role: "user", Content: note})
		}
		run.transition(PhaseToolsExecuting, PhaseThinking)
	}
}

func (run *run) think(ctx context.Context) (*llm.ChatResponse, error) {
	if run.r.cfg.ModelTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, run.r.cfg.ModelTimeout)
		defer cancel()
	}
	resp, err := run.r.provider.Chat(ctx, llm.ChatRequest{
		Messages: run.messages,
		Tools:    tools.Definitions(run.loadout.Tools),
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("empty response")
	}
	return resp, nil
}

// assignCallIDs gives every call an ID unique within the run. Models and
// providers sometimes omit IDs or reuse them across steps.
func (run *run) assignCallIDs(calls []llm.ToolCallResponse) {
	if run.callIDs == nil {
		run.callIDs = make(map[string]struct{})
	}
	for i := range calls {
		if _, dup := run.callIDs[calls[i].ID]; calls[i].ID == "" || dup {
			calls[i].ID = "call_" + uuid.NewString()[:8]
		}
		run.callIDs[calls[i].ID] = struct{}{}
	}
}

// loadGuidance collects execution guidance for the pending calls. It is
// loaded before the tools run and joined into one conversation turn.
func (run *run) loadGuidance(calls []llm.ToolCallResponse) string {
	var notes []string
	seen := make(map[string]bool)
	for _, tc := range calls {
		if seen[tc.Name] {
			continue
		}
		seen[tc.Name] = true
		if text, ok := run.r.guidance.Load(tc.Name, run.req.Question, tc.Args); ok {
			notes = append(notes, fmt.Sprintf("Guidance for %s:\n%s", tc.Name, text))
		}
	}
	return strings.Join(notes, "\n\n")
}

// executeTools runs the calls concurrently, bounded by ToolConcurrency, and
// returns results in request order once every call has finished. Workers
// only write their own slot; the loop goroutine merges afterwards.
func (run *run) executeTools(ctx context.Context, calls []llm.ToolCallResponse) []tools.CallResult {
	results := make([]tools.CallResult, len(calls))

	for _, tc := range calls {
		if run.loadout.Allows(tc.Name) {
			run.req.Emitter.ToolInvoked(ctx, run.target, run.req.Step, tc.ID, tc.Name, tc.Args)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(run.r.cfg.ToolConcurrency)
	for i, tc := range calls {
		if !run.loadout.Allows(tc.Name) {
			results[i] = tools.CallResult{
				CallID:      tc.ID,
				Tool:        tc.Name,
				Status:      tools.StatusError,
				Diagnostics: fmt.Sprintf("tool %s is not available to %s", tc.Name, run.target),
			}
			continue
		}
		run.result.ToolCalls++
		g.Go(func() error {
			results[i] = run.r.invoker.Invoke(gctx, tools.CallRequest{
				ID:           tc.ID,
				Tool:         tc.Name,
				RawArguments: tc.Args,
			})
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (run *run) finishForced(reason string) {
	run.result.ForcedDone = true
	run.result.Diagnostic = reason
	run.result.FinalText = run.lastText
	if run.result.FinalText == "" {
		run.result.FinalText = budgetExhaustedText
	}
	run.r.logger.Warn("specialist forced done", map[string]interface{}{
		"specialist": run.target,
		"reason":     reason,
		"steps":      run.result.Steps,
	})
}

func buildMessages(req Request, loadout holster.Loadout) []llm.Message {
	system := req.Spec.SystemPrompt
	if loadout.Holstered {
		system += "\n\nNo tools are available for this request. Answer in plain text."
	}
	msgs := []llm.Message{{Role: "system", Content: system}}
	for _, m := range req.Conversation {
		text := routing.PlainText(m.Content)
		if text == "" {
			continue
		}
		switch m.Role {
		case routing.RoleUser:
			msgs = append(msgs, llm.Message{Role: "user", Content: text})
		case routing.RoleSpecialist:
			msgs = append(msgs, llm.Message{Role: "assistant", Content: text})
		case routing.RoleToolResult:
			msgs = append(msgs, llm.Message{Role: "user", Content: fmt.Sprintf("[result from %s]\n%s", m.Source, text)})
		}
	}
	if instr := strings.TrimSpace(req.Instruction); instr != "" {
		msgs = append(msgs, llm.Message{Role: "user", Content: "Supervisor instruction: " + instr})
	}
	return msgs
}
