// Package supervision routes a user turn between specialists, a lookup
// tool and the terminal answer.
package supervision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vinayprograms/agentkit/logging"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/decision"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/specialist"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tracing"
)

// Phase is a state of the routing machine.
type Phase string

const (
	PhaseRouting    Phase = "ROUTING"
	PhaseDispatched Phase = "DISPATCHED"
	PhaseTerminal   Phase = "TERMINAL"
)

// Override records why a decision was replaced by terminal.
type Override string

const (
	OverrideNone             Override = ""
	OverrideLoopPrevention   Override = "loop_prevention"
	OverrideContractViolated Override = "contract_violation"
	OverrideStepBudget       Override = "routing_step_budget"
)

const (
	defaultMaxRoutingSteps       = 8
	defaultMaxContractViolations = 2
	unavailableMessage           = "Sorry, I can't reach the reasoning service right now. Please try again in a moment."
	noAnswerMessage              = "I wasn't able to produce an answer for that question."
)

// ErrEmptyQuestion is returned for blank input.
var ErrEmptyQuestion = errors.New("empty question")

// TurnError is a turn-level failure carrying a message safe to show users.
type TurnError struct {
	UserMessage string
	Err         error
}

func (e *TurnError) Error() string { return e.Err.Error() }
func (e *TurnError) Unwrap() error { return e.Err }

// SessionContext carries caller-side context into a turn.
type SessionContext struct {
	SessionID string
	History   []routing.Message
	Sink      events.Sink // optional per-turn observer
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	TurnID    string
	FinalText string
	Override  Override
	State     *routing.State
}

// Config holds supervisor dependencies and limits.
type Config struct {
	Decider     decision.Decider
	Dispatcher  *specialist.Dispatcher
	Invoker     *tools.Invoker
	Specialists []specialist.Spec
	LookupTool  string // registered tool backing the lookup target; empty disables it
	Sink        events.Sink

	MaxRoutingSteps       int
	MaxContractViolations int // consecutive invalid decisions that force terminal
}

type handler func(ctx context.Context, t *turn, step int)

// Supervisor runs turns. It holds only read-only configuration; every turn
// gets its own routing state.
type Supervisor struct {
	cfg         Config
	logger      *logging.Logger
	specialists map[routing.Target]specialist.Spec
	handlers    map[routing.Target]handler
	targets     []routing.Target
}

// turn is the per-turn execution context.
type turn struct {
	state   *routing.State
	emitter *events.Emitter
}

// New creates a supervisor.
func New(cfg Config) *Supervisor {
	if cfg.MaxRoutingSteps <= 0 {
		cfg.MaxRoutingSteps = defaultMaxRoutingSteps
	}
	if cfg.MaxContractViolations <= 0 {
		cfg.MaxContractViolations = defaultMaxContractViolations
	}
	s := &Supervisor{
		cfg:         cfg,
		logger:      logging.New().WithComponent("supervisor"),
		specialists: make(map[routing.Target]specialist.Spec),
		handlers:    make(map[routing.Target]handler),
	}
	for _, spec := range cfg.Specialists {
		if spec.ID.Kind() != routing.KindSpecialist {
			continue
		}
		s.specialists[spec.ID] = spec
		s.handlers[spec.ID] = s.runSpecialist
	}
	if cfg.LookupTool != "" && cfg.Invoker != nil && cfg.Invoker.Registry().Has(cfg.LookupTool) {
		s.handlers[routing.TargetLookup] = s.runLookup
	}
	for _, t := range routing.AllTargets() {
		if t == routing.TargetTerminal || s.handlers[t] != nil {
			s.targets = append(s.targets, t)
		}
	}
	return s
}

// Targets returns the targets offered to the decision model.
func (s *Supervisor) Targets() []routing.Target {
	return append([]routing.Target(nil), s.targets...)
}

// HandleTurn answers one user question.
func (s *Supervisor) HandleTurn(ctx context.Context, userText string, sess SessionContext) (string, error) {
	res, err := s.RunTurn(ctx, userText, sess)
	if err != nil {
		return "", err
	}
	return res.FinalText, nil
}

// RunTurn answers one user question and returns the final routing state.
func (s *Supervisor) RunTurn(ctx context.Context, userText string, sess SessionContext) (*TurnResult, error) {
	if strings.TrimSpace(userText) == "" {
		return nil, ErrEmptyQuestion
	}

	state := routing.NewState(userText, sess.History)
	var sink events.Sink = s.cfg.Sink
	if sess.Sink != nil {
		sink = events.Fanout{s.cfg.Sink, sess.Sink}
	}
	t := &turn{state: state, emitter: events.NewEmitter(state.TurnID, sink)}

	ctx, span := tracing.Start(ctx, "turn",
		attribute.String("turn.id", state.TurnID),
		attribute.String("session.id", sess.SessionID),
	)
	start := time.Now()
	s.logger.ExecutionStart(state.TurnID)

	final, override, err := s.route(ctx, t)
	if err != nil {
		s.logger.ExecutionComplete(state.TurnID, time.Since(start), "failed")
		tracing.End(span, err)
		return nil, err
	}

	t.emitter.TurnFinished(ctx, final)
	s.logger.ExecutionComplete(state.TurnID, time.Since(start), "complete")
	tracing.End(span, nil,
		attribute.Int("turn.routing_steps", state.RoutingSteps),
		attribute.String("turn.override", string(override)),
	)
	return &TurnResult{
		TurnID:    state.TurnID,
		FinalText: final,
		Override:  override,
		State:     state,
	}, nil
}

// route runs Routing -> Dispatched -> ... -> Terminal and returns the
// final text.
func (s *Supervisor) route(ctx context.Context, t *turn) (string, Override, error) {
	state := t.state
	violations := 0
	correction := ""

	for {
		if state.RoutingSteps >= s.cfg.MaxRoutingSteps {
			s.diagnose(ctx, t, "", 0, fmt.Sprintf("routing step budget of %d exhausted, finishing", s.cfg.MaxRoutingSteps))
			return s.terminal(ctx, t, routing.RouteDecision{Next: routing.TargetTerminal}), OverrideStepBudget, nil
		}
		state.RoutingSteps++
		step := state.RoutingSteps

		out, err := s.decide(ctx, t, step, correction)
		if err != nil {
			s.diagnose(ctx, t, "", step, "decision model unavailable")
			return "", OverrideNone, &TurnError{UserMessage: unavailableMessage, Err: err}
		}

		invalid, reason := !out.Valid, truncate(out.FreeText, 120)
		if out.Valid && out.Decision.Next != routing.TargetTerminal && s.handlers[out.Decision.Next] == nil {
			invalid, reason = true, fmt.Sprintf("no handler for target %q", out.Decision.Next.String())
		}
		if invalid {
			violations++
			s.diagnose(ctx, t, "", step, fmt.Sprintf("invalid routing decision (%d of %d): %s",
				violations, s.cfg.MaxContractViolations, reason))
			if violations >= s.cfg.MaxContractViolations {
				s.diagnose(ctx, t, "", step, "forcing terminal after repeated invalid decisions")
				return s.terminal(ctx, t, routing.RouteDecision{Next: routing.TargetTerminal}), OverrideContractViolated, nil
			}
			correction = "Your previous reply was not a valid routing decision. Reply with a single JSON object whose \"next\" is one of the listed targets."
			continue
		}
		violations = 0
		correction = ""

		dec := out.Decision
		override := OverrideNone
		if dec.Next == routing.TargetLookup && state.WasInvoked(routing.TargetLookup) {
			s.diagnose(ctx, t, dec.Next.String(), step, "lookup already ran this turn, finishing instead")
			dec = routing.RouteDecision{Next: routing.TargetTerminal, Rationale: dec.Rationale}
			override = OverrideLoopPrevention
		}

		if dec.Next == routing.TargetTerminal {
			return s.terminal(ctx, t, dec), override, nil
		}

		state.SetInstruction(dec.Instruction, dec.Next)
		s.logger.Debug("phase transition", map[string]interface{}{
			"from": string(PhaseRouting), "to": string(PhaseDispatched), "target": dec.Next.String(), "step": step,
		})
		s.handlers[dec.Next](ctx, t, step)
	}
}

func (s *Supervisor) decide(ctx context.Context, t *turn, step int, correction string) (decision.Outcome, error) {
	ctx, span := tracing.Start(ctx, "route.step", attribute.Int("route.step", step))
	prompt := buildPrompt(t.state, s.targets, s.specialists, s.lookupDescription(), correction)
	out, err := s.cfg.Decider.Decide(ctx, prompt, s.targets)
	next := "invalid"
	if out.Valid {
		next = out.Decision.Next.String()
	}
	tracing.End(span, err, attribute.String("route.next", next))
	if err == nil {
		s.logger.Info("routing decision", map[string]interface{}{
			"turn":  t.state.TurnID,
			"step":  step,
			"next":  next,
			"valid": out.Valid,
		})
	}
	return out, err
}

// terminal assembles the final answer. A lookup payload is reused verbatim;
// otherwise specialist responses are joined. With neither, the general
// specialist answers once.
func (s *Supervisor) terminal(ctx context.Context, t *turn, dec routing.RouteDecision) string {
	state := t.state
	state.NextTarget = routing.TargetTerminal
	s.logger.Debug("phase transition", map[string]interface{}{
		"from": string(PhaseRouting), "to": string(PhaseTerminal), "step": state.RoutingSteps,
	})

	if lookup, ok := state.LastLookup(); ok {
		return lookup.Payload
	}
	if responses := state.SpecialistResponses(); len(responses) > 0 {
		parts := make([]string, 0, len(responses))
		for _, r := range responses {
			if strings.TrimSpace(r.Text) != "" {
				parts = append(parts, r.Text)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}

	if _, ok := s.specialists[routing.TargetGeneral]; ok {
		instr := dec.Instruction
		if strings.TrimSpace(instr) == "" {
			instr = "Answer the user's question directly and concisely."
		}
		state.SetInstruction(instr, routing.TargetGeneral)
		s.runSpecialist(ctx, t, state.RoutingSteps+1)
		if responses := state.SpecialistResponses(); len(responses) > 0 {
			return responses[len(responses)-1].Text
		}
	}
	return noAnswerMessage
}

func (s *Supervisor) runSpecialist(ctx context.Context, t *turn, step int) {
	state := t.state
	target := state.NextTarget
	spec := s.specialists[target]

	res := s.cfg.Dispatcher.Dispatch(ctx, specialist.Request{
		Spec:         spec,
		Instruction:  state.ConsumeInstruction(),
		Question:     state.UserQuestion(),
		Conversation: state.Snapshot(),
		Step:         step,
		Emitter:      t.emitter,
	})

	state.AppendConversation(res.Delta...)
	if err := state.AppendSpecialistResponse(target, res.FinalText); err != nil {
		s.logger.Error("specialist response rejected", map[string]interface{}{"error": err.Error()})
	}
	if res.Diagnostic != "" {
		s.diagnose(ctx, t, target.String(), step, res.Diagnostic)
	}
}

func (s *Supervisor) runLookup(ctx context.Context, t *turn, step int) {
	state := t.state
	target := routing.TargetLookup.String()
	query := state.ConsumeInstruction()
	if strings.TrimSpace(query) == "" {
		query = state.UserQuestion()
	}
	state.MarkInvoked(routing.TargetLookup)

	args := map[string]any{"query": query}
	callID := fmt.Sprintf("lookup-%d", step)
	t.emitter.StepStarted(ctx, target, events.KindTool, step)
	t.emitter.ToolInvoked(ctx, target, step, callID, s.cfg.LookupTool, args)
	res := s.cfg.Invoker.Invoke(ctx, tools.CallRequest{ID: callID, Tool: s.cfg.LookupTool, RawArguments: args})
	t.emitter.StepFinished(ctx, target, step)

	state.AppendConversation(routing.Message{
		Role:   routing.RoleToolResult,
		Source: s.cfg.LookupTool,
		Content: routing.Blocks{
			{Kind: routing.BlockToolUse, ToolName: s.cfg.LookupTool, ToolArgs: res.Arguments},
			{Kind: routing.BlockToolResult, Text: res.Text()},
		},
	})
	if !res.OK() {
		s.diagnose(ctx, t, target, step, "lookup failed: "+res.Diagnostics)
		return
	}
	state.AppendLookupResponse(routing.TargetLookup, res.Payload)
}

func (s *Supervisor) lookupDescription() string {
	if s.handlers[routing.TargetLookup] == nil {
		return ""
	}
	if tool := s.cfg.Invoker.Registry().Get(s.cfg.LookupTool); tool != nil {
		return tool.Description()
	}
	return ""
}

func (s *Supervisor) diagnose(ctx context.Context, t *turn, target string, step int, msg string) {
	t.state.AddDiagnostic(msg)
	t.emitter.Diagnostic(ctx, target, step, msg)
	s.logger.Warn(msg, map[string]interface{}{"turn": t.state.TurnID, "step": step})
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
