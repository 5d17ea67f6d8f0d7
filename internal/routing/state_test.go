package routing

import (
	"errors"
	"testing"
)

func TestPlainText_BothShapes(t *testing.T) {
	tests := []struct {
		name string
		in   Content
		want string
	}{
		{"text", Text("hello"), "hello"},
		{"nil", nil, ""},
		{"empty blocks", Blocks{}, ""},
		{"tool use only", Blocks{{Kind: BlockToolUse, ToolName: "semantic_search"}}, ""},
		{"mixed", Blocks{
			{Kind: BlockText, Text: "first"},
			{Kind: BlockToolUse, ToolName: "x"},
			{Kind: BlockToolResult, Text: "second"},
			{Kind: BlockUnknown, Text: "ignored"},
		}, "first\nsecond"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasToolUse(t *testing.T) {
	if HasToolUse(Text("x")) {
		t.Error("text content has no tool use")
	}
	if !HasToolUse(Blocks{{Kind: BlockToolUse}}) {
		t.Error("expected tool use")
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want Target
		ok   bool
	}{
		{"FINISH", TargetTerminal, true},
		{" finish ", TargetTerminal, true},
		{`"Portfolio_Agent"`, TargetPortfolio, true},
		{"semantic_search", TargetLookup, true},
		{"general_agent", TargetGeneral, true},
		{"weather_agent", TargetInvalid, false},
		{"", TargetInvalid, false},
	}
	for _, tt := range tests {
		got, ok := ParseTarget(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTarget(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTargetKinds(t *testing.T) {
	for _, tgt := range AllTargets() {
		if !tgt.Valid() {
			t.Errorf("%v should be valid", tgt)
		}
		if tgt.Kind() == "" {
			t.Errorf("%v has no kind", tgt)
		}
	}
	if TargetInvalid.Valid() {
		t.Error("TargetInvalid should not be valid")
	}
	if TargetLookup.Kind() != KindTool {
		t.Errorf("lookup kind = %s", TargetLookup.Kind())
	}
}

func TestState_InstructionClearedAfterUse(t *testing.T) {
	s := NewState("q", nil)
	s.SetInstruction("do it", TargetPortfolio)
	if got := s.ConsumeInstruction(); got != "do it" {
		t.Errorf("got %q", got)
	}
	if got := s.ConsumeInstruction(); got != "" {
		t.Errorf("instruction should be cleared, got %q", got)
	}
	if s.NextTarget != TargetPortfolio {
		t.Errorf("next target = %v", s.NextTarget)
	}
}

func TestState_LookupCannotWriteSpecialistResponses(t *testing.T) {
	s := NewState("q", nil)
	err := s.AppendSpecialistResponse(TargetLookup, "payload")
	if !errors.Is(err, ErrNotSpecialist) {
		t.Fatalf("expected ErrNotSpecialist, got %v", err)
	}
	if len(s.SpecialistResponses()) != 0 {
		t.Error("lookup payload leaked into specialist responses")
	}
	if err := s.AppendSpecialistResponse(TargetCampaign, "ok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.SpecialistResponses(); len(got) != 1 || got[0].Text != "ok" {
		t.Errorf("responses = %+v", got)
	}
}

func TestState_LoopMarkers(t *testing.T) {
	s := NewState("q", nil)
	if s.WasInvoked(TargetLookup) {
		t.Error("fresh state should have no markers")
	}
	s.MarkInvoked(TargetLookup)
	if !s.WasInvoked(TargetLookup) {
		t.Error("marker not recorded")
	}
}

func TestState_HistoryPrecedesQuestion(t *testing.T) {
	hist := []Message{{Role: RoleUser, Content: Text("earlier")}}
	s := NewState("now", hist)
	if len(s.Conversation) != 2 {
		t.Fatalf("conversation len = %d", len(s.Conversation))
	}
	if PlainText(s.Conversation[1].Content) != "now" {
		t.Errorf("last entry = %q", PlainText(s.Conversation[1].Content))
	}
	if s.UserQuestion() != "now" {
		t.Errorf("user question = %q", s.UserQuestion())
	}
	if s.TurnID == "" {
		t.Error("turn id should be set")
	}
}
