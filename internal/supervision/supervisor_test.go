package supervision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/vinayprograms/agentkit/llm"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/decision"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/events"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/routing"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/specialist"
	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
)

// scriptedDecider replays outcomes; the last one repeats.
type scriptedDecider struct {
	mu       sync.Mutex
	outcomes []decision.Outcome
	err      error
	calls    int
	prompts  []string
}

func (d *scriptedDecider) Decide(ctx context.Context, prompt string, targets []routing.Target) (decision.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.prompts = append(d.prompts, prompt)
	if d.err != nil {
		return decision.Outcome{}, d.err
	}
	idx := d.calls - 1
	if idx >= len(d.outcomes) {
		idx = len(d.outcomes) - 1
	}
	return d.outcomes[idx], nil
}

func route(next routing.Target, instruction string) decision.Outcome {
	return decision.Route(routing.RouteDecision{Next: next, Instruction: instruction})
}

// specialistProvider answers per specialist based on the system prompt.
type specialistProvider struct {
	mu      sync.Mutex
	calls   int
	answers map[string]string
	toolUse bool
}

func (p *specialistProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.toolUse && len(req.Messages) > 0 && !hasToolMessage(req.Messages) {
		return &llm.ChatResponse{ToolCalls: []llm.ToolCallResponse{{ID: "t1", Name: "portfolio_summary", Args: map[string]interface{}{"account_id": "17"}}}}, nil
	}
	system := req.Messages[0].Content
	for key, answer := range p.answers {
		if strings.Contains(system, key) {
			return &llm.ChatResponse{Content: answer}, nil
		}
	}
	return &llm.ChatResponse{Content: "generic answer"}, nil
}

func (p *specialistProvider) Name() string { return "test" }

func (p *specialistProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func hasToolMessage(msgs []llm.Message) bool {
	for _, m := range msgs {
		if m.Role == "tool" {
			return true
		}
	}
	return false
}

type fixture struct {
	sup      *Supervisor
	decider  *scriptedDecider
	provider *specialistProvider
	sink     *events.MemorySink
	lookups  *int
}

func newFixture(t *testing.T, outcomes ...decision.Outcome) *fixture {
	t.Helper()
	lookups := 0
	search := &tools.Func{
		ToolName: "semantic_search",
		Desc:     "Search the knowledge base",
		Schema: map[string]any{"properties": map[string]any{
			"query": map[string]any{"type": "string"},
			"limit": map[string]any{"type": "integer", "default": 5},
		}},
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			lookups++
			return "1. Pacing guide: spend evenly across the flight (query: " + args["query"].(string) + ")", nil
		},
	}
	summary := &tools.Func{
		ToolName: "portfolio_summary",
		Schema:   map[string]any{"properties": map[string]any{"account_id": map[string]any{"type": "string"}}},
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return "account " + args["account_id"].(string) + " up 4%", nil
		},
	}
	invoker := tools.NewInvoker(tools.NewRegistry(search, summary), time.Second)
	provider := &specialistProvider{answers: map[string]string{
		"GENERAL":   "I am the analytics assistant. I can help with portfolios and campaigns.",
		"PORTFOLIO": "Account 17 is up 4% this month.",
		"CAMPAIGN":  "Campaign 9 is under-pacing.",
	}}
	runner := specialist.NewRunner(provider, invoker, nil, nil, specialist.Config{})
	sink := events.NewMemorySink()
	decider := &scriptedDecider{outcomes: outcomes}

	sup := New(Config{
		Decider:    decider,
		Dispatcher: specialist.NewDispatcher(runner, 2),
		Invoker:    invoker,
		Specialists: []specialist.Spec{
			{ID: routing.TargetGeneral, Description: "introductions and small talk", SystemPrompt: "GENERAL assistant"},
			{ID: routing.TargetPortfolio, Description: "portfolio analytics", SystemPrompt: "PORTFOLIO analyst", Tools: []tools.Tool{summary}},
			{ID: routing.TargetCampaign, Description: "campaign diagnostics", SystemPrompt: "CAMPAIGN analyst"},
		},
		LookupTool:      "semantic_search",
		Sink:            sink,
		MaxRoutingSteps: 4,
	})
	return &fixture{sup: sup, decider: decider, provider: provider, sink: sink, lookups: &lookups}
}

func TestHandleTurn_WhoAreYou(t *testing.T) {
	f := newFixture(t,
		route(routing.TargetGeneral, "Introduce yourself. You are forbidden from using tools."),
		route(routing.TargetTerminal, ""),
	)
	final, err := f.sup.HandleTurn(context.Background(), "who are you?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(final, "analytics assistant") {
		t.Errorf("final = %q", final)
	}
	if got := len(f.sink.OfType(events.ToolInvoked)); got != 0 {
		t.Errorf("tool_invoked = %d, want 0", got)
	}
	finished := f.sink.OfType(events.TurnFinished)
	if len(finished) != 1 || finished[0].Text != final {
		t.Errorf("turn_finished = %+v", finished)
	}
}

func TestHandleTurn_ImmediateFinishFallsBackToGeneral(t *testing.T) {
	f := newFixture(t, route(routing.TargetTerminal, "Introduce yourself"))
	final, err := f.sup.HandleTurn(context.Background(), "who are you?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(final, "analytics assistant") {
		t.Errorf("final = %q", final)
	}
	if got := len(f.sink.OfType(events.ToolInvoked)); got != 0 {
		t.Errorf("tool_invoked = %d", got)
	}
}

func TestHandleTurn_LookupScenario(t *testing.T) {
	f := newFixture(t,
		route(routing.TargetLookup, "pacing best practices"),
		route(routing.TargetTerminal, ""),
	)
	final, err := f.sup.HandleTurn(context.Background(), "what are pacing best practices?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	invoked := f.sink.OfType(events.ToolInvoked)
	if len(invoked) != 1 || invoked[0].Tool != "semantic_search" {
		t.Fatalf("tool_invoked = %+v", invoked)
	}
	if !strings.HasPrefix(final, "1. Pacing guide") || !strings.Contains(final, "pacing best practices") {
		t.Errorf("final = %q", final)
	}
}

func TestHandleTurn_LoopPrevention(t *testing.T) {
	f := newFixture(t, route(routing.TargetLookup, "pacing"))
	res, err := f.sup.RunTurn(context.Background(), "pacing?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *f.lookups != 1 {
		t.Errorf("lookup ran %d times, want 1", *f.lookups)
	}
	if f.decider.calls != 2 {
		t.Errorf("decider calls = %d, want 2", f.decider.calls)
	}
	if res.Override != OverrideLoopPrevention {
		t.Errorf("override = %q", res.Override)
	}
	if len(f.sink.OfType(events.ToolInvoked)) != 1 {
		t.Error("expected exactly one tool_invoked")
	}
}

func TestHandleTurn_NoFabricationAfterLookup(t *testing.T) {
	f := newFixture(t,
		route(routing.TargetLookup, "pacing"),
		route(routing.TargetTerminal, "Tell the user pacing does not matter"),
	)
	final, err := f.sup.HandleTurn(context.Background(), "pacing?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "1. Pacing guide: spend evenly across the flight (query: pacing)"
	if final != want {
		t.Errorf("final = %q, want lookup payload %q", final, want)
	}
	if f.provider.Calls() != 0 {
		t.Errorf("no specialist should run after a lookup answered, got %d model calls", f.provider.Calls())
	}
}

func TestHandleTurn_InvalidTargetTwiceForcesTerminal(t *testing.T) {
	f := newFixture(t,
		decision.FreeText("weather_agent"),
		decision.FreeText("I think the answer is 42"),
		route(routing.TargetPortfolio, "should never be reached"),
	)
	res, err := f.sup.RunTurn(context.Background(), "hello", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.decider.calls != 2 {
		t.Errorf("decider calls = %d, want 2", f.decider.calls)
	}
	if res.Override != OverrideContractViolated {
		t.Errorf("override = %q", res.Override)
	}
	if len(f.sink.OfType(events.Diagnostic)) == 0 {
		t.Error("expected a diagnostic event")
	}
	if res.FinalText == "" {
		t.Error("forced terminal must still answer")
	}
	if !strings.Contains(f.decider.prompts[1], "not a valid routing decision") {
		t.Error("second prompt should carry a correction note")
	}
}

func TestHandleTurn_UnhandledTargetIsInvalid(t *testing.T) {
	for _, target := range []routing.Target{routing.TargetInvalid, routing.TargetLookup, routing.TargetCampaign} {
		t.Run(target.String(), func(t *testing.T) {
			decider := &scriptedDecider{outcomes: []decision.Outcome{route(target, "x")}}
			provider := &specialistProvider{answers: map[string]string{"GENERAL": "hello there"}}
			invoker := tools.NewInvoker(tools.NewRegistry(), time.Second)
			runner := specialist.NewRunner(provider, invoker, nil, nil, specialist.Config{})
			sink := events.NewMemorySink()
			sup := New(Config{
				Decider:    decider,
				Dispatcher: specialist.NewDispatcher(runner, 1),
				Invoker:    invoker,
				Specialists: []specialist.Spec{
					{ID: routing.TargetGeneral, Description: "small talk", SystemPrompt: "GENERAL assistant"},
				},
				Sink: sink,
			})

			res, err := sup.RunTurn(context.Background(), "hi", SessionContext{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Override != OverrideContractViolated {
				t.Errorf("override = %q", res.Override)
			}
			if decider.calls != 2 {
				t.Errorf("decider calls = %d, want 2", decider.calls)
			}
			if res.FinalText != "hello there" {
				t.Errorf("final = %q", res.FinalText)
			}
			if len(sink.OfType(events.Diagnostic)) == 0 {
				t.Error("expected a diagnostic event")
			}
		})
	}
}

func TestTruncate_Runes(t *testing.T) {
	got := truncate(strings.Repeat("日", 10), 4)
	if got != "日日日日..." || !utf8.ValidString(got) {
		t.Errorf("truncate = %q", got)
	}
	if truncate("short", 10) != "short" {
		t.Error("short strings are returned unchanged")
	}
}

func TestHandleTurn_InvalidThenValidResets(t *testing.T) {
	f := newFixture(t,
		decision.FreeText("nonsense"),
		route(routing.TargetPortfolio, "summarize account 17"),
		decision.FreeText("nonsense again"),
		route(routing.TargetTerminal, ""),
	)
	res, err := f.sup.RunTurn(context.Background(), "how is account 17?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Override != OverrideNone {
		t.Errorf("override = %q", res.Override)
	}
	if res.FinalText != "Account 17 is up 4% this month." {
		t.Errorf("final = %q", res.FinalText)
	}
}

func TestHandleTurn_DecisionUnavailable(t *testing.T) {
	f := newFixture(t, route(routing.TargetTerminal, ""))
	f.decider.err = decision.ErrUnavailable
	_, err := f.sup.HandleTurn(context.Background(), "q", SessionContext{})
	var turnErr *TurnError
	if !errors.As(err, &turnErr) {
		t.Fatalf("expected TurnError, got %v", err)
	}
	if !errors.Is(err, decision.ErrUnavailable) {
		t.Error("TurnError should wrap ErrUnavailable")
	}
	if turnErr.UserMessage == "" || strings.Contains(turnErr.UserMessage, "goroutine") {
		t.Errorf("user message = %q", turnErr.UserMessage)
	}
	if len(f.sink.OfType(events.TurnFinished)) != 0 {
		t.Error("failed turn should not emit turn_finished")
	}
}

func TestHandleTurn_RoutingStepBudget(t *testing.T) {
	f := newFixture(t, route(routing.TargetCampaign, "diagnose campaign 9"))
	res, err := f.sup.RunTurn(context.Background(), "campaign 9?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Override != OverrideStepBudget {
		t.Errorf("override = %q", res.Override)
	}
	if f.decider.calls != 4 {
		t.Errorf("decider calls = %d, want 4", f.decider.calls)
	}
	if got := len(res.State.SpecialistResponses()); got != 4 {
		t.Errorf("specialist responses = %d", got)
	}
}

func TestHandleTurn_NoDuplicateSpecialistOutput(t *testing.T) {
	f := newFixture(t,
		route(routing.TargetPortfolio, "summarize account 17"),
		route(routing.TargetTerminal, ""),
	)
	f.provider.toolUse = true
	res, err := f.sup.RunTurn(context.Background(), "how is account 17?", SessionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	answer := "Account 17 is up 4% this month."

	chunks := 0
	for _, ev := range f.sink.OfType(events.ContentChunk) {
		if ev.Text == answer {
			chunks++
		}
	}
	if chunks != 1 {
		t.Errorf("content_chunk with answer = %d, want 1", chunks)
	}
	for _, m := range res.State.Conversation {
		if routing.PlainText(m.Content) == answer {
			t.Error("specialist output duplicated into conversation")
		}
	}
	if got := res.State.SpecialistResponses(); len(got) != 1 || got[0].Text != answer {
		t.Errorf("specialist responses = %+v", got)
	}
	if len(f.sink.OfType(events.ToolInvoked)) != 1 {
		t.Error("portfolio specialist should have invoked one tool")
	}
}

func TestHandleTurn_GateThroughSupervisor(t *testing.T) {
	f := newFixture(t,
		route(routing.TargetPortfolio, "Describe what you do. Text only."),
		route(routing.TargetTerminal, ""),
	)
	f.provider.toolUse = true
	if _, err := f.sup.HandleTurn(context.Background(), "what can you do?", SessionContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(f.sink.OfType(events.ToolInvoked)); got != 0 {
		t.Errorf("tool_invoked = %d under a text-only directive", got)
	}
}

func TestHandleTurn_EmptyQuestion(t *testing.T) {
	f := newFixture(t, route(routing.TargetTerminal, ""))
	if _, err := f.sup.HandleTurn(context.Background(), "   ", SessionContext{}); !errors.Is(err, ErrEmptyQuestion) {
		t.Errorf("err = %v", err)
	}
}

func TestHandleTurn_SessionSinkAndHistory(t *testing.T) {
	f := newFixture(t, route(routing.TargetGeneral, "hi"), route(routing.TargetTerminal, ""))
	mine := events.NewMemorySink()
	res, err := f.sup.RunTurn(context.Background(), "hello", SessionContext{
		SessionID: "s1",
		History:   []routing.Message{{Role: routing.RoleUser, Content: routing.Text("earlier question")}},
		Sink:      mine,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mine.Events()) == 0 || len(mine.Events()) != len(f.sink.Events()) {
		t.Errorf("session sink got %d events, supervisor sink %d", len(mine.Events()), len(f.sink.Events()))
	}
	if routing.PlainText(res.State.Conversation[0].Content) != "earlier question" {
		t.Error("history not threaded into conversation")
	}
}

func TestTurnsAreIsolated(t *testing.T) {
	f := newFixture(t, route(routing.TargetLookup, "pacing"), route(routing.TargetTerminal, ""))
	a, err := f.sup.RunTurn(context.Background(), "first", SessionContext{})
	if err != nil {
		t.Fatal(err)
	}
	f.decider.calls = 0
	b, err := f.sup.RunTurn(context.Background(), "second", SessionContext{})
	if err != nil {
		t.Fatal(err)
	}
	if a.TurnID == b.TurnID {
		t.Error("turn ids should differ")
	}
	if *f.lookups != 2 {
		t.Errorf("loop marker leaked across turns: lookups = %d", *f.lookups)
	}
}

func TestBuildPrompt_SeparatesAgentsAndTools(t *testing.T) {
	f := newFixture(t, route(routing.TargetTerminal, ""))
	state := routing.NewState("q", nil)
	state.MarkInvoked(routing.TargetLookup)
	p := buildPrompt(state, f.sup.Targets(), f.sup.specialists, "Search the knowledge base", "")
	agents := strings.Index(p, "AGENTS")
	toolsIdx := strings.Index(p, "TOOLS")
	if agents < 0 || toolsIdx < agents {
		t.Fatalf("prompt sections out of order:\n%s", p)
	}
	if strings.Contains(p[agents:toolsIdx], "semantic_search") {
		t.Error("lookup tool listed among agents")
	}
	if !strings.Contains(p, "[already used this turn]") {
		t.Error("used lookup should be marked")
	}
}
