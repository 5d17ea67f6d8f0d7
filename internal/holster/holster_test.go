package holster

import (
	"testing"

	"github.com/mpdl-bdrck/agent-orchestration-poc-sub000/internal/tools"
)

func fullSet() []tools.Tool {
	return []tools.Tool{
		&tools.Func{ToolName: "portfolio_summary"},
		&tools.Func{ToolName: "portfolio_holdings"},
	}
}

func TestGate_Apply(t *testing.T) {
	tests := []struct {
		instruction string
		holstered   bool
	}{
		{"Summarize account 17", false},
		{"You are FORBIDDEN FROM USING TOOLS. Introduce yourself.", true},
		{"Reply in text only please", true},
		{"Answer directly from what you know", true},
		{"Use No Tools for this one", true},
		{"", false},
		{"Use the notools flag", false},
	}
	g := Default()
	for _, tt := range tests {
		lo := g.Apply(tt.instruction, fullSet())
		if lo.Holstered != tt.holstered {
			t.Errorf("Apply(%q).Holstered = %v, want %v", tt.instruction, lo.Holstered, tt.holstered)
		}
		if tt.holstered && len(lo.Tools) != 0 {
			t.Errorf("Apply(%q) kept %d tools", tt.instruction, len(lo.Tools))
		}
		if !tt.holstered && len(lo.Tools) != 2 {
			t.Errorf("Apply(%q) dropped tools", tt.instruction)
		}
	}
}

func TestGate_ExtraPhrases(t *testing.T) {
	g := New("  Conversational Reply  ", "")
	lo := g.Apply("give a conversational reply", fullSet())
	if !lo.Holstered || lo.Phrase != "conversational reply" {
		t.Errorf("loadout = %+v", lo)
	}
}

func TestLoadout_Allows(t *testing.T) {
	lo := Default().Apply("check holdings", fullSet())
	if !lo.Allows("portfolio_holdings") {
		t.Error("expected holdings allowed")
	}
	if lo.Allows("semantic_search") {
		t.Error("semantic_search is not in the loadout")
	}
	if got := lo.Names(); len(got) != 2 {
		t.Errorf("names = %v", got)
	}
}
