package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var accountToolSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"account_id": map[string]any{"type": "string"},
		"period":     map[string]any{"type": "string", "default": "30d"},
		"verbose":    map[string]any{"type": "boolean"},
	},
}

func recordingTool(seen *map[string]any) *Func {
	return &Func{
		ToolName: "portfolio_summary",
		Desc:     "summary",
		Schema:   accountToolSchema,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			*seen = args
			id, ok := args["account_id"].(string)
			if !ok {
				return "", errors.New("account_id must be a string")
			}
			return "account " + strings.ToUpper(id), nil
		},
	}
}

func TestInvoker_NormalizesListArgument(t *testing.T) {
	var seen map[string]any
	inv := NewInvoker(NewRegistry(recordingTool(&seen)), 0)

	res := inv.Invoke(context.Background(), CallRequest{
		ID:           "c1",
		Tool:         "portfolio_summary",
		RawArguments: map[string]any{"account_id": []any{"17"}, "rogue": 1},
	})
	if !res.OK() {
		t.Fatalf("expected ok, got %s: %s", res.Status, res.Diagnostics)
	}
	if res.Payload != "account 17" {
		t.Errorf("payload = %q", res.Payload)
	}
	if seen["account_id"] != "17" {
		t.Errorf("tool saw account_id = %#v", seen["account_id"])
	}
	if _, ok := seen["rogue"]; ok {
		t.Error("unknown key reached the tool")
	}
	if seen["period"] != "30d" {
		t.Errorf("default period not applied: %#v", seen["period"])
	}
}

func TestInvoker_FiltersToAcceptedKeys(t *testing.T) {
	var seen map[string]any
	tool := recordingTool(&seen)
	tool.AcceptsKeys = []string{"account_id"}
	inv := NewInvoker(NewRegistry(tool), 0)

	inv.Invoke(context.Background(), CallRequest{
		Tool:         "portfolio_summary",
		RawArguments: map[string]any{"account_id": "5", "period": "7d", "verbose": true},
	})
	if len(seen) != 1 {
		t.Errorf("expected only account_id, got %v", seen)
	}
}

func TestInvoker_UnknownTool(t *testing.T) {
	inv := NewInvoker(NewRegistry(), 0)
	res := inv.Invoke(context.Background(), CallRequest{Tool: "nope"})
	if res.OK() {
		t.Fatal("expected error status")
	}
	if !strings.Contains(res.Diagnostics, "unknown tool") {
		t.Errorf("diagnostics = %q", res.Diagnostics)
	}
	if res.CallID == "" {
		t.Error("call id should be generated")
	}
}

func TestInvoker_ErrorBecomesResult(t *testing.T) {
	tool := &Func{ToolName: "fails", Fn: func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("backend down")
	}}
	res := NewInvoker(NewRegistry(tool), 0).Invoke(context.Background(), CallRequest{Tool: "fails"})
	if res.Status != StatusError || res.Diagnostics != "backend down" {
		t.Errorf("result = %+v", res)
	}
	if res.Text() != "Error: backend down" {
		t.Errorf("text = %q", res.Text())
	}
}

func TestInvoker_PanicBecomesResult(t *testing.T) {
	tool := &Func{ToolName: "boom", Fn: func(ctx context.Context, args map[string]any) (string, error) {
		var m map[string]int
		m["x"] = 1
		return "", nil
	}}
	res := NewInvoker(NewRegistry(tool), 0).Invoke(context.Background(), CallRequest{Tool: "boom"})
	if res.OK() {
		t.Fatal("expected panic to become an error result")
	}
	if !strings.Contains(res.Diagnostics, "panicked") {
		t.Errorf("diagnostics = %q", res.Diagnostics)
	}
}

func TestInvoker_Timeout(t *testing.T) {
	tool := &Func{ToolName: "slow", Fn: func(ctx context.Context, args map[string]any) (string, error) {
		select {
		case <-time.After(2 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}}
	res := NewInvoker(NewRegistry(tool), 20*time.Millisecond).Invoke(context.Background(), CallRequest{Tool: "slow"})
	if res.OK() {
		t.Fatal("expected timeout error result")
	}
	if !strings.Contains(res.Diagnostics, "deadline") {
		t.Errorf("diagnostics = %q", res.Diagnostics)
	}
}

func TestRegistry_SubsetAndDefinitions(t *testing.T) {
	a := &Func{ToolName: "a", Desc: "A"}
	b := &Func{ToolName: "b", Desc: "B"}
	reg := NewRegistry(b, a)

	if got := reg.Names(); len(got) != 2 || got[0] != "a" {
		t.Errorf("names = %v", got)
	}
	sub := reg.Subset([]string{"b", "missing"})
	if len(sub) != 1 || sub[0].Name() != "b" {
		t.Errorf("subset = %v", sub)
	}
	if defs := Definitions(nil); defs != nil {
		t.Error("no tools should yield nil definitions")
	}
	if defs := Definitions(sub); len(defs) != 1 || defs[0].Description != "B" {
		t.Errorf("defs = %+v", defs)
	}
}
